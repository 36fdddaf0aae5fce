package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/andresmejia3/spritesheet/internal/types"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

// respond queues one framed response on the mock data pipe.
func respond(pipe *MockCloser, payload []byte) {
	binary.Write(pipe, binary.BigEndian, uint32(len(payload)))
	pipe.Write(payload)
}

func mockWorker() (*RembgWorker, *MockCloser, *MockCloser) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}
	// Cmd is nil because we aren't testing process management, just the protocol
	return &RembgWorker{ID: 1, Stdin: stdinMock, DataPipe: dataPipeMock}, stdinMock, dataPipeMock
}

func TestProcessFrame(t *testing.T) {
	w, stdinMock, dataPipeMock := mockWorker()

	// Protocol: [Status:0] [PNG bytes]
	cutout := []byte{0x89, 'P', 'N', 'G'}
	respond(dataPipeMock, append([]byte{statusOK}, cutout...))

	inputFrame := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	resp, err := w.ProcessFrame(inputFrame)
	if err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}

	// Verify Go sent the correct data TO Python
	sent := stdinMock.Bytes()
	if len(sent) != 4+len(inputFrame) {
		t.Fatalf("Expected %d bytes sent, got %d", 4+len(inputFrame), len(sent))
	}
	if n := binary.BigEndian.Uint32(sent[:4]); n != uint32(len(inputFrame)) {
		t.Errorf("Expected length header %d, got %d", len(inputFrame), n)
	}
	if !bytes.Equal(resp, cutout) {
		t.Errorf("Expected %x, got %x", cutout, resp)
	}
}

func TestProcessFrame_Error(t *testing.T) {
	w, _, dataPipeMock := mockWorker()

	// Protocol: [Status:1] [MsgLen] [Msg]
	payload := new(bytes.Buffer)
	payload.WriteByte(statusError)
	errMsg := "No module named 'onnxruntime'"
	binary.Write(payload, binary.BigEndian, uint32(len(errMsg)))
	payload.WriteString(errMsg)
	respond(dataPipeMock, payload.Bytes())

	_, err := w.ProcessFrame([]byte("frame"))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != "python worker error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "python worker error: "+errMsg, err)
	}
}

func TestProcessFrame_Malformed(t *testing.T) {
	tests := map[string][]byte{
		"Empty payload":    {},
		"Unknown status":   {7, 1, 2},
		"Truncated error":  {statusError, 0, 0},
		"Short error body": {statusError, 0, 0, 0, 9, 'x'},
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			w, _, dataPipeMock := mockWorker()
			respond(dataPipeMock, payload)
			if _, err := w.ProcessFrame([]byte("frame")); err == nil {
				t.Fatal("Expected error, got nil")
			}
		})
	}
}

func TestProcessFrame_WorkerDied(t *testing.T) {
	w, _, _ := mockWorker()
	// Nothing queued: the read hits EOF like a crashed interpreter.
	if _, err := w.ProcessFrame([]byte("frame")); err == nil {
		t.Fatal("Expected error, got nil")
	}
}

func TestProcessFrame_FailedWorkerStaysFailed(t *testing.T) {
	w, stdinMock, dataPipeMock := mockWorker()
	if _, err := w.ProcessFrame([]byte("frame")); err == nil {
		t.Fatal("Expected error, got nil")
	}

	// A late answer for the failed frame must never be handed to the next one.
	respond(dataPipeMock, []byte{statusOK, 'l', 'a', 't', 'e'})
	stdinMock.Reset()

	_, err := w.ProcessFrame([]byte("next"))
	if !errors.Is(err, ErrWorkerBroken) {
		t.Fatalf("Expected ErrWorkerBroken, got %v", err)
	}
	if stdinMock.Len() != 0 {
		t.Errorf("Expected no request after failure, %d bytes sent", stdinMock.Len())
	}
}

// pipeWorker wires a worker to real pipes served by serve, which gets the
// request stream and the response stream.
func pipeWorker(t *testing.T, timeout time.Duration, serve func(req io.Reader, resp io.Writer)) *RembgWorker {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("pipe read deadlines are not supported on windows")
	}
	reqR, reqW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	respR, respW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		defer respW.Close()
		defer reqR.Close()
		serve(reqR, respW)
	}()

	w := &RembgWorker{ID: 1, Stdin: reqW, DataPipe: respR, Timeout: timeout}
	t.Cleanup(func() { w.Close() })
	return w
}

func solid(r uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = r, 255
	}
	return img
}

func TestApply_TimeoutBreaksWorker(t *testing.T) {
	// The fake script echoes every frame back, the first one too slowly.
	w := pipeWorker(t, 100*time.Millisecond, func(req io.Reader, resp io.Writer) {
		for n := 0; ; n++ {
			var size uint32
			if err := binary.Read(req, binary.BigEndian, &size); err != nil {
				return
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(req, body); err != nil {
				return
			}
			if n == 0 {
				time.Sleep(300 * time.Millisecond)
			}
			payload := append([]byte{statusOK}, body...)
			binary.Write(resp, binary.BigEndian, uint32(len(payload)))
			resp.Write(payload)
		}
	})

	_, err := w.Apply(context.Background(), solid(10))
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}

	// Let the late response for the first frame land in the pipe.
	time.Sleep(300 * time.Millisecond)

	out, err := w.Apply(context.Background(), solid(200))
	if !errors.Is(err, ErrWorkerBroken) {
		t.Fatalf("Expected ErrWorkerBroken, got %v (image %v)", err, out)
	}
	if out != nil {
		t.Errorf("Expected no image from a broken worker, got %v", out.At(0, 0))
	}
}

func TestClose_UnblocksPendingApply(t *testing.T) {
	received := make(chan struct{})
	// The fake script reads the request and never answers.
	w := pipeWorker(t, 0, func(req io.Reader, resp io.Writer) {
		buf := make([]byte, 1)
		if _, err := req.Read(buf); err == nil {
			close(received)
		}
		io.Copy(io.Discard, req)
	})

	applied := make(chan error, 1)
	go func() {
		_, err := w.Apply(context.Background(), solid(1))
		applied <- err
	}()
	<-received

	closed := make(chan struct{})
	go func() {
		w.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked behind a pending Apply")
	}
	if err := <-applied; err == nil {
		t.Error("Expected the pending Apply to fail, got nil")
	}
}

func TestApply(t *testing.T) {
	w, _, dataPipeMock := mockWorker()

	// The "worker" answers with a 3x2 image whose left column is transparent.
	cut := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for y := 0; y < 2; y++ {
		for x := 1; x < 3; x++ {
			cut.SetNRGBA(x, y, color.NRGBA{10, 20, 30, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, cut); err != nil {
		t.Fatal(err)
	}
	respond(dataPipeMock, append([]byte{statusOK}, buf.Bytes()...))

	frame := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	out, err := w.Apply(context.Background(), frame)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out.Bounds() != frame.Bounds() {
		t.Fatalf("Expected bounds %v, got %v", frame.Bounds(), out.Bounds())
	}
	_, _, _, a := out.At(0, 0).RGBA()
	if a != 0 {
		t.Errorf("Expected transparent left column, alpha %d", a)
	}
	_, _, _, a = out.At(2, 1).RGBA()
	if a != 0xffff {
		t.Errorf("Expected opaque subject, alpha %d", a)
	}
}

func TestApply_BadPNG(t *testing.T) {
	w, _, dataPipeMock := mockWorker()
	respond(dataPipeMock, []byte{statusOK, 'n', 'o', 'p', 'e'})

	_, err := w.Apply(context.Background(), image.NewNRGBA(image.Rect(0, 0, 1, 1)))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !errors.Is(err, types.ErrDecodeFailure) {
		t.Errorf("Expected DecodeFailure, got %v", err)
	}
}

func TestProbe_MissingInterpreter(t *testing.T) {
	err := Probe(context.Background(), Config{Python: "no-such-python-xyz", Script: "python/rembg_worker.py"})
	if !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("Expected ConfigurationError, got %v", err)
	}
}
