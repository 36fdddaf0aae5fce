package sprite

import (
	"fmt"
	"image"
	"math"

	"github.com/andresmejia3/spritesheet/internal/types"
)

// DefaultMaxSheetPixels caps the canvas at 16384x16384 (1 GiB of NRGBA).
const DefaultMaxSheetPixels int64 = 16384 * 16384

// PlanRequest holds the inputs of NewPlan. Zero Width, Height, Percent and
// Columns mean "not given".
type PlanRequest struct {
	FrameCount     int
	OriginalWidth  int
	OriginalHeight int

	Width   int
	Height  int
	Percent float64
	Columns int

	// MaxPixels bounds SheetWidth*SheetHeight. Zero selects
	// DefaultMaxSheetPixels, a negative value disables the check.
	MaxPixels int64
}

// Plan is the grid shape and per-cell size of a sheet.
type Plan struct {
	FrameCount   int
	TargetWidth  int
	TargetHeight int
	Columns      int
	Rows         int
	SheetWidth   int
	SheetHeight  int
}

// NewPlan resolves the target frame size and the grid for a sheet.
//
// Target size resolution, first match wins: Percent scales both axes;
// Width and Height are used as is; a lone Width or Height keeps the aspect
// ratio; otherwise the original size is kept. Without explicit Columns the
// grid is ceil(sqrt(n)) columns wide.
func NewPlan(req PlanRequest) (Plan, error) {
	if req.FrameCount <= 0 {
		return Plan{}, fmt.Errorf("%w: frame count must be positive, got %d", types.ErrInvalidInput, req.FrameCount)
	}
	if req.OriginalWidth <= 0 || req.OriginalHeight <= 0 {
		return Plan{}, fmt.Errorf("%w: original frame size %dx%d", types.ErrInvalidInput, req.OriginalWidth, req.OriginalHeight)
	}
	if req.Width < 0 || req.Height < 0 {
		return Plan{}, fmt.Errorf("%w: negative frame size %dx%d", types.ErrInvalidInput, req.Width, req.Height)
	}
	if req.Percent < 0 || math.IsNaN(req.Percent) || math.IsInf(req.Percent, 0) {
		return Plan{}, fmt.Errorf("%w: percent must be positive, got %v", types.ErrInvalidInput, req.Percent)
	}
	if req.Columns < 0 {
		return Plan{}, fmt.Errorf("%w: columns must be positive, got %d", types.ErrInvalidInput, req.Columns)
	}

	tw, th := targetSize(req)
	if tw <= 0 || th <= 0 {
		return Plan{}, fmt.Errorf("%w: computed frame size %dx%d is empty", types.ErrInvalidInput, tw, th)
	}

	cols, rows := Grid(req.FrameCount, req.Columns)
	p := Plan{
		FrameCount:   req.FrameCount,
		TargetWidth:  tw,
		TargetHeight: th,
		Columns:      cols,
		Rows:         rows,
		SheetWidth:   cols * tw,
		SheetHeight:  rows * th,
	}

	limit := req.MaxPixels
	if limit == 0 {
		limit = DefaultMaxSheetPixels
	}
	if limit > 0 && p.Pixels() > limit {
		return Plan{}, fmt.Errorf("%w: sheet %dx%d exceeds %d pixels", types.ErrInvalidInput, p.SheetWidth, p.SheetHeight, limit)
	}
	return p, nil
}

// Grid returns the column and row count for n frames. columns <= 0 selects
// the near-square layout.
func Grid(n, columns int) (cols, rows int) {
	cols = columns
	if cols <= 0 {
		cols = int(math.Ceil(math.Sqrt(float64(n))))
	}
	rows = (n + cols - 1) / cols
	return cols, rows
}

func targetSize(req PlanRequest) (int, int) {
	ow, oh := float64(req.OriginalWidth), float64(req.OriginalHeight)
	switch {
	case req.Percent > 0:
		scale := req.Percent / 100
		return round(ow * scale), round(oh * scale)
	case req.Width > 0 && req.Height > 0:
		return req.Width, req.Height
	case req.Width > 0:
		return req.Width, round(oh * float64(req.Width) / ow)
	case req.Height > 0:
		return round(ow * float64(req.Height) / oh), req.Height
	default:
		return req.OriginalWidth, req.OriginalHeight
	}
}

func round(v float64) int {
	return int(math.Round(v))
}

// Pixels is the canvas area.
func (p Plan) Pixels() int64 {
	return int64(p.SheetWidth) * int64(p.SheetHeight)
}

// Capacity is the number of cells in the grid.
func (p Plan) Capacity() int {
	return p.Columns * p.Rows
}

// Cell returns the canvas rectangle of frame i in row-major order.
func (p Plan) Cell(i int) image.Rectangle {
	col, row := i%p.Columns, i/p.Columns
	origin := image.Pt(col*p.TargetWidth, row*p.TargetHeight)
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(p.TargetWidth, p.TargetHeight))}
}
