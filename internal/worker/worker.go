package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/andresmejia3/spritesheet/internal/types"
	"github.com/andresmejia3/spritesheet/internal/utils" // Using the SafeCommand wrapper
	"go.uber.org/zap"
)

// Response status bytes written by python/rembg_worker.py.
const (
	statusOK    byte = 0
	statusError byte = 1
)

// Config locates the interpreter and worker script.
type Config struct {
	Python string
	Script string
	// ReadTimeout bounds a single frame round trip. Zero disables it.
	ReadTimeout time.Duration
}

// Probe checks that the interpreter, the script and the rembg package are
// all usable, so a missing capability fails before any frame is decoded.
func Probe(ctx context.Context, cfg Config) error {
	if _, err := exec.LookPath(cfg.Python); err != nil {
		return fmt.Errorf("%w: background removal needs %s: %v", types.ErrConfiguration, cfg.Python, err)
	}
	if _, err := os.Stat(cfg.Script); err != nil {
		return fmt.Errorf("%w: rembg worker script: %v", types.ErrConfiguration, err)
	}
	py := utils.NewSafeCommand(ctx, cfg.Python, "-c", "import rembg")
	if err := py.Run(); err != nil {
		return fmt.Errorf("%w: python package rembg is not importable (pip install rembg): %s",
			types.ErrConfiguration, py.Logs())
	}
	return nil
}

// deadliner is satisfied by *os.File read ends.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// ErrWorkerBroken is returned for every request after a failed round trip.
// The stream may still carry a late response for the failed frame, so the
// worker is never reused.
var ErrWorkerBroken = errors.New("rembg worker unusable after a failed request")

// RembgWorker is a long-lived python process removing frame backgrounds.
// It is safe for concurrent use; requests are serialised.
type RembgWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	Timeout  time.Duration
	Logger   *zap.Logger

	mu     sync.Mutex
	broken error
}

// NewRembgWorker starts the worker script.
func NewRembgWorker(ctx context.Context, id int, cfg Config, logger *zap.Logger) (*RembgWorker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	py := utils.NewSafeCommand(ctx, cfg.Python, "-u", cfg.Script)

	// Create a side-channel pipe (FD 3) so stray prints on stdout never corrupt frames
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("%w: rembg worker %d failed to start: %v", types.ErrConfiguration, id, err)
	}

	// Only the child holds the write end now
	w.Close()

	logger.Debug("rembg worker started", zap.Int("worker", id), zap.Int("pid", py.Process.Pid))
	return &RembgWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
		Timeout:  cfg.ReadTimeout,
		Logger:   logger,
	}, nil
}

// Communicate sends one length-prefixed request and reads one
// length-prefixed response.
func (w *RembgWorker) Communicate(data []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if d, ok := w.DataPipe.(deadliner); ok && w.Timeout > 0 {
		if err := d.SetReadDeadline(time.Now().Add(w.Timeout)); err != nil {
			return nil, err
		}
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // A crashed interpreter surfaces here as EOF
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// ProcessFrame sends a PNG and returns the worker's PNG with alpha. A
// transport failure (timeout, EOF, short read) breaks the worker for good.
func (w *RembgWorker) ProcessFrame(pngData []byte) ([]byte, error) {
	if w.broken != nil {
		return nil, fmt.Errorf("rembg worker %d: %w: %v", w.ID, ErrWorkerBroken, w.broken)
	}
	resp, err := w.Communicate(pngData)
	if err != nil {
		w.broken = err
		w.kill()
		return nil, fmt.Errorf("rembg worker %d: %w (%s)", w.ID, err, w.Cmd.Logs())
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("rembg worker %d: empty response", w.ID)
	}

	switch resp[0] {
	case statusOK:
		return resp[1:], nil
	case statusError:
		r := bytes.NewReader(resp[1:])
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("rembg worker %d: truncated error: %w", w.ID, err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("rembg worker %d: truncated error: %w", w.ID, err)
		}
		return nil, fmt.Errorf("python worker error: %s", msg)
	default:
		return nil, fmt.Errorf("rembg worker %d: unknown status byte %#x", w.ID, resp[0])
	}
}

// Apply implements sprite.Transform.
func (w *RembgWorker) Apply(ctx context.Context, frame *image.NRGBA) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	w.mu.Lock()
	start := time.Now()
	out, err := w.ProcessFrame(buf.Bytes())
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("%w: rembg output: %v", types.ErrDecodeFailure, err)
	}
	w.log().Debug("background removed",
		zap.Int("worker", w.ID),
		zap.Int("bytes", len(out)),
		zap.Duration("took", time.Since(start)),
	)

	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba, nil
	}
	dst := image.NewNRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	return dst, nil
}

func (w *RembgWorker) log() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

// kill stops the process so a late response can never be read.
func (w *RembgWorker) kill() {
	if w.Cmd != nil && w.Cmd.Process != nil {
		_ = w.Cmd.Process.Kill()
	}
	w.log().Warn("rembg worker stopped after a failed request", zap.Int("worker", w.ID), zap.Error(w.broken))
}

// Close ends the worker: closing stdin tells the script to exit. The pipes
// are closed before taking the lock so a blocked read returns.
func (w *RembgWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken == nil {
		w.broken = os.ErrClosed
	}
	if w.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}
