package sprite

import (
	"context"
	"fmt"
	"image"

	"github.com/andresmejia3/spritesheet/internal/types"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// Transform rewrites a single resized frame before it is placed. The result
// must carry alpha and be no larger than the input.
type Transform interface {
	Apply(ctx context.Context, frame *image.NRGBA) (image.Image, error)
}

// TransformFunc adapts a function to Transform.
type TransformFunc func(ctx context.Context, frame *image.NRGBA) (image.Image, error)

func (f TransformFunc) Apply(ctx context.Context, frame *image.NRGBA) (image.Image, error) {
	return f(ctx, frame)
}

// ComposeOptions tunes Compose. The zero value is usable.
type ComposeOptions struct {
	// Scaler resamples frames whose size differs from the cell.
	// Defaults to draw.CatmullRom.
	Scaler draw.Scaler
	// Transform is applied to every frame after resizing. Nil disables it.
	Transform Transform
	// Progress is called after each placed frame.
	Progress func(done, total int)
	Logger   *zap.Logger
}

// Compose draws frames onto a transparent canvas following plan and returns
// the canvas with one FrameRect per frame, in index order. Cells past the
// last frame stay transparent and are not reported.
func Compose(ctx context.Context, frames Frames, plan Plan, opts ComposeOptions) (*image.NRGBA, []FrameRect, error) {
	n := frames.Len()
	if n == 0 {
		return nil, nil, fmt.Errorf("%w: no frames to compose", types.ErrEmptyInput)
	}
	if n > plan.Capacity() || plan.TargetWidth <= 0 || plan.TargetHeight <= 0 {
		return nil, nil, fmt.Errorf("%w: %d frames do not fit a %dx%d grid of %dx%d cells",
			types.ErrInvalidInput, n, plan.Columns, plan.Rows, plan.TargetWidth, plan.TargetHeight)
	}

	scaler := opts.Scaler
	if scaler == nil {
		scaler = draw.CatmullRom
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, plan.SheetWidth, plan.SheetHeight))
	rects := make([]FrameRect, 0, n)

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		src, err := frames.Open(i)
		if err != nil {
			return nil, nil, fmt.Errorf("frame %d: %w", i, err)
		}

		frame := normalize(src, plan.TargetWidth, plan.TargetHeight, scaler)

		var placed image.Image = frame
		if opts.Transform != nil {
			placed, err = opts.Transform.Apply(ctx, frame)
			if err != nil {
				return nil, nil, fmt.Errorf("transform frame %d: %w", i, err)
			}
			if placed == nil {
				return nil, nil, fmt.Errorf("%w: transform returned no image for frame %d", types.ErrInvalidInput, i)
			}
			if s := placed.Bounds().Size(); s.X > plan.TargetWidth || s.Y > plan.TargetHeight {
				return nil, nil, fmt.Errorf("%w: transform grew frame %d to %dx%d", types.ErrInvalidInput, i, s.X, s.Y)
			}
		}

		cell := plan.Cell(i)
		pb := placed.Bounds()
		dst := image.Rectangle{Min: cell.Min, Max: cell.Min.Add(pb.Size())}
		draw.Draw(canvas, dst, placed, pb.Min, draw.Src)

		rects = append(rects, FrameRect{
			Index: i,
			X:     cell.Min.X,
			Y:     cell.Min.Y,
			W:     plan.TargetWidth,
			H:     plan.TargetHeight,
		})

		log.Debug("frame placed",
			zap.Int("index", i),
			zap.Int("x", cell.Min.X),
			zap.Int("y", cell.Min.Y),
			zap.Int("src_w", src.Bounds().Dx()),
			zap.Int("src_h", src.Bounds().Dy()),
		)
		if opts.Progress != nil {
			opts.Progress(i+1, n)
		}
	}

	return canvas, rects, nil
}

// normalize returns src as a w x h NRGBA image. Sources without alpha come
// out fully opaque.
func normalize(src image.Image, w, h int, scaler draw.Scaler) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}
	scaler.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Filters lists the resampling kernels callers may pick by name. All of them
// are anti-aliased when downscaling.
var Filters = map[string]draw.Scaler{
	"catmullrom": draw.CatmullRom,
	"bilinear":   draw.BiLinear,
}

// ParseFilter resolves a resampling kernel name. The empty name selects
// catmullrom.
func ParseFilter(name string) (draw.Scaler, error) {
	if name == "" {
		return draw.CatmullRom, nil
	}
	s, ok := Filters[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown filter %q (use catmullrom or bilinear)", types.ErrInvalidInput, name)
	}
	return s, nil
}
