// Package sprite lays out, composites and describes sprite sheets.
//
// A sheet is built in three steps that never look back:
//
//	plan, err := sprite.NewPlan(sprite.PlanRequest{
//	    FrameCount:     frames.Len(),
//	    OriginalWidth:  640,
//	    OriginalHeight: 360,
//	    Width:          160, // height follows the aspect ratio
//	})
//	canvas, rects, err := sprite.Compose(ctx, frames, plan, sprite.ComposeOptions{})
//	md := sprite.Emit(plan, rects)
//
// # Layout
//
// Without explicit columns the grid is ceil(sqrt(n)) columns wide and just
// tall enough for n frames, so the last row is never empty. Frames are placed
// row-major: frame i lands in column i%cols, row i/cols.
//
// # Compositing
//
// The canvas starts fully transparent. Each frame is resampled to the cell
// size with an anti-aliased kernel, converted to NRGBA, passed through the
// optional Transform and copied into its cell. Unused trailing cells stay
// transparent.
//
// # Metadata
//
// Emit is a pure function of the plan and the rects; encoding the same
// inputs twice yields identical bytes. The sidecar lives next to the sheet
// with a .json extension (see SidecarPath).
package sprite
