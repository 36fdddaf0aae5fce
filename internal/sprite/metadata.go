package sprite

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

// FrameRect locates one frame on the sheet.
type FrameRect struct {
	Index int `json:"index"`
	X     int `json:"x"`
	Y     int `json:"y"`
	W     int `json:"w"`
	H     int `json:"h"`
	// Time is the offset of the frame in the source video, in seconds.
	Time *float64 `json:"time,omitempty"`
}

// Size is a width/height pair.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// Source describes where the frames were sampled from.
type Source struct {
	Video string  `json:"video"`
	FPS   float64 `json:"fps"`
	Start float64 `json:"start"`
}

// Meta is the sheet-wide part of SheetMetadata.
type Meta struct {
	Size        Size    `json:"size"`
	FrameSize   Size    `json:"frameSize"`
	Columns     int     `json:"columns"`
	Rows        int     `json:"rows"`
	TotalFrames int     `json:"totalFrames"`
	Source      *Source `json:"source,omitempty"`
}

// SheetMetadata is the sidecar document written next to a sheet.
type SheetMetadata struct {
	Frames []FrameRect `json:"frames"`
	Meta   Meta        `json:"meta"`
}

// Timing maps frame indexes back to video time. A zero Rate disables it.
type Timing struct {
	Video string
	Start float64 // seconds
	Rate  float64 // sampled frames per second
}

// Emit builds the metadata for a composed sheet. It copies rects and never
// modifies its inputs.
func Emit(plan Plan, rects []FrameRect) SheetMetadata {
	frames := make([]FrameRect, len(rects))
	copy(frames, rects)
	return SheetMetadata{
		Frames: frames,
		Meta: Meta{
			Size:        Size{W: plan.SheetWidth, H: plan.SheetHeight},
			FrameSize:   Size{W: plan.TargetWidth, H: plan.TargetHeight},
			Columns:     plan.Columns,
			Rows:        plan.Rows,
			TotalFrames: len(frames),
		},
	}
}

// EmitTimed is Emit plus a time for every frame and a source block.
func EmitTimed(plan Plan, rects []FrameRect, t Timing) SheetMetadata {
	md := Emit(plan, rects)
	if t.Rate <= 0 {
		return md
	}
	for i := range md.Frames {
		ts := t.Start + float64(md.Frames[i].Index)/t.Rate
		md.Frames[i].Time = &ts
	}
	md.Meta.Source = &Source{Video: t.Video, FPS: t.Rate, Start: t.Start}
	return md
}

// Encode renders the metadata as indented JSON.
func (m SheetMetadata) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// SidecarPath returns the metadata path for a sheet: same base name, .json.
func SidecarPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".json"
}

// WriteSidecar encodes md to path.
func WriteSidecar(path string, md SheetMetadata) error {
	data, err := md.Encode()
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// SavePNG writes img losslessly, creating parent directories as needed.
func SavePNG(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	return f.Close()
}
