// Package pipeline turns one video (or a directory of frames) into a sprite
// sheet: probe, extract, plan, compose, then write the PNG, the optional
// sidecar, the optional upload and the optional registry row.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/spritesheet/internal/sprite"
	"github.com/andresmejia3/spritesheet/internal/store"
	"github.com/andresmejia3/spritesheet/internal/types"
	"github.com/andresmejia3/spritesheet/internal/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// FrameSource decodes videos. ffmpeg.Source is the production implementation.
type FrameSource interface {
	Probe(ctx context.Context, path string) (types.VideoInfo, error)
	Extract(ctx context.Context, path, dir string, req types.ExtractRequest) (sprite.Frames, error)
}

// streamer is implemented by sources that may decode without a frame
// directory; Streams reports whether Extract ignores dir.
type streamer interface {
	Streams() bool
}

// Registry records finished sheets. store.Store implements it.
type Registry interface {
	EnsureVideoMetadata(ctx context.Context, videoID, path string, info types.VideoInfo) error
	InsertSheet(ctx context.Context, rec *store.SheetRecord) error
}

// Uploader copies finished files to object storage. storage.Storage implements it.
type Uploader interface {
	Upload(ctx context.Context, sheetID string, files ...string) ([]string, error)
}

// Options controls a single sheet. Zero size fields mean "not given".
type Options struct {
	Extract types.ExtractRequest

	Width     int
	Height    int
	Percent   float64
	Columns   int
	MaxPixels int64

	Scaler    draw.Scaler
	Transform sprite.Transform

	WriteJSON  bool
	Timestamps bool
	Label      string

	// TempDir hosts the per-input frame directory; empty means os.TempDir.
	TempDir string

	// Progress reports compositing progress per input.
	Progress func(input string, done, total int)
}

// Result describes one written sheet.
type Result struct {
	ID         uuid.UUID
	Input      string
	Output     string
	Sidecar    string // empty unless WriteJSON
	Info       *types.VideoInfo
	Plan       sprite.Plan
	Metadata   sprite.SheetMetadata
	ObjectKeys []string
	Took       time.Duration
}

// Runner wires a frame source to the compositor. Registry and Uploader are
// optional.
type Runner struct {
	Source   FrameSource
	Registry Registry
	Uploader Uploader
	Logger   *zap.Logger
}

func (r *Runner) log() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Run converts one video into a sheet at output.
func (r *Runner) Run(ctx context.Context, input, output string, opts Options) (*Result, error) {
	start := time.Now()
	if err := requireFile(input); err != nil {
		return nil, err
	}

	info, err := r.Source.Probe(ctx, input)
	if err != nil {
		return nil, err
	}

	var dir string
	if s, ok := r.Source.(streamer); !ok || !s.Streams() {
		dir, err = os.MkdirTemp(opts.TempDir, "spritesheet-*")
		if err != nil {
			return nil, fmt.Errorf("create frame dir: %w", err)
		}
		defer os.RemoveAll(dir)
	}

	frames, err := r.Source.Extract(ctx, input, dir, opts.Extract)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(input), err)
	}
	if frames.Len() == 0 {
		return nil, fmt.Errorf("%w: no frames extracted from %s (check --start/--end against the %.2fs duration)",
			types.ErrEmptyInput, filepath.Base(input), info.Duration)
	}

	var timing *sprite.Timing
	if opts.Timestamps {
		timing = &sprite.Timing{
			Video: filepath.Base(input),
			Start: opts.Extract.Start.Seconds(),
			Rate:  opts.Extract.Rate,
		}
	}

	res, err := r.build(ctx, input, output, frames, timing, opts)
	if err != nil {
		return nil, err
	}
	res.Info = &info

	if err := r.record(ctx, res, opts); err != nil {
		return nil, err
	}
	res.Took = time.Since(start)
	return res, nil
}

// ComposeDir builds a sheet from the images already present in dir.
func (r *Runner) ComposeDir(ctx context.Context, dir, output string, opts Options) (*Result, error) {
	start := time.Now()
	frames, err := sprite.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	if frames.Len() == 0 {
		return nil, fmt.Errorf("%w: no images in %s", types.ErrEmptyInput, dir)
	}

	res, err := r.build(ctx, dir, output, frames, nil, opts)
	if err != nil {
		return nil, err
	}
	if err := r.record(ctx, res, opts); err != nil {
		return nil, err
	}
	res.Took = time.Since(start)
	return res, nil
}

// build plans, composes and writes the raster and sidecar.
func (r *Runner) build(ctx context.Context, input, output string, frames sprite.Frames, timing *sprite.Timing, opts Options) (*Result, error) {
	size, err := sprite.FrameSize(frames, 0)
	if err != nil {
		return nil, fmt.Errorf("frame 0: %w", err)
	}

	plan, err := sprite.NewPlan(sprite.PlanRequest{
		FrameCount:     frames.Len(),
		OriginalWidth:  size.X,
		OriginalHeight: size.Y,
		Width:          opts.Width,
		Height:         opts.Height,
		Percent:        opts.Percent,
		Columns:        opts.Columns,
		MaxPixels:      opts.MaxPixels,
	})
	if err != nil {
		return nil, err
	}
	r.log().Debug("sheet planned",
		zap.String("input", input),
		zap.Int("frames", plan.FrameCount),
		zap.Int("columns", plan.Columns),
		zap.Int("rows", plan.Rows),
		zap.Int("sheet_w", plan.SheetWidth),
		zap.Int("sheet_h", plan.SheetHeight),
	)

	composeOpts := sprite.ComposeOptions{
		Scaler:    opts.Scaler,
		Transform: opts.Transform,
		Logger:    r.log().With(zap.String("input", filepath.Base(input))),
	}
	if opts.Progress != nil {
		composeOpts.Progress = func(done, total int) { opts.Progress(input, done, total) }
	}

	canvas, rects, err := sprite.Compose(ctx, frames, plan, composeOpts)
	if err != nil {
		return nil, err
	}

	md := sprite.Emit(plan, rects)
	if timing != nil {
		md = sprite.EmitTimed(plan, rects, *timing)
	}

	res := &Result{ID: uuid.New(), Input: input, Output: output, Plan: plan, Metadata: md}
	if err := writeOutputs(res, canvas, opts.WriteJSON); err != nil {
		return nil, err
	}
	return res, nil
}

func writeOutputs(res *Result, canvas image.Image, withJSON bool) error {
	if err := sprite.SavePNG(res.Output, canvas); err != nil {
		return fmt.Errorf("write %s: %w", res.Output, err)
	}
	if !withJSON {
		return nil
	}
	res.Sidecar = sprite.SidecarPath(res.Output)
	if err := sprite.WriteSidecar(res.Sidecar, res.Metadata); err != nil {
		return fmt.Errorf("write %s: %w", res.Sidecar, err)
	}
	return nil
}

// record uploads and registers a written sheet. Either step failing fails
// the input; the files on disk are kept.
func (r *Runner) record(ctx context.Context, res *Result, opts Options) error {
	if r.Uploader != nil {
		files := []string{res.Output}
		if res.Sidecar != "" {
			files = append(files, res.Sidecar)
		}
		keys, err := r.Uploader.Upload(ctx, res.ID.String(), files...)
		if err != nil {
			r.log().Warn("upload failed", zap.String("output", res.Output), zap.Error(err))
			return fmt.Errorf("upload %s: %w", filepath.Base(res.Output), err)
		}
		res.ObjectKeys = keys
	}

	if r.Registry == nil {
		return nil
	}

	md, err := res.Metadata.Encode()
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	rec := &store.SheetRecord{
		ID:          res.ID,
		Label:       opts.Label,
		SourcePath:  res.Input,
		OutputPath:  res.Output,
		FrameCount:  res.Plan.FrameCount,
		Columns:     res.Plan.Columns,
		Rows:        res.Plan.Rows,
		SheetWidth:  res.Plan.SheetWidth,
		SheetHeight: res.Plan.SheetHeight,
		FrameWidth:  res.Plan.TargetWidth,
		FrameHeight: res.Plan.TargetHeight,
		Metadata:    md,
		ObjectKeys:  res.ObjectKeys,
	}

	if res.Info != nil {
		videoID, err := utils.GenerateVideoID(res.Input)
		if err != nil {
			return fmt.Errorf("video id: %w", err)
		}
		if err := r.Registry.EnsureVideoMetadata(ctx, videoID, res.Input, *res.Info); err != nil {
			r.log().Warn("registry failed", zap.String("input", res.Input), zap.Error(err))
			return fmt.Errorf("register video: %w", err)
		}
		rec.VideoID = videoID
	}

	if err := r.Registry.InsertSheet(ctx, rec); err != nil {
		r.log().Warn("registry failed", zap.String("output", res.Output), zap.Error(err))
		return fmt.Errorf("register sheet: %w", err)
	}
	return nil
}

func requireFile(path string) error {
	st, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", types.ErrInputNotFound, path)
	}
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("%w: %s is a directory", types.ErrInvalidInput, path)
	}
	return nil
}
