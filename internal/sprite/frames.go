package sprite

import (
	"fmt"
	"image"
	_ "image/gif" // decoder registration
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresmejia3/spritesheet/internal/types"
)

// Frames is an ordered sequence of decoded rasters. The position of a frame
// is its index on the sheet.
type Frames interface {
	Len() int
	Open(i int) (image.Image, error)
}

// FileFrames decodes frames lazily from image files, in slice order.
type FileFrames []string

func (f FileFrames) Len() int { return len(f) }

func (f FileFrames) Open(i int) (image.Image, error) {
	file, err := os.Open(f[i])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDecodeFailure, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrDecodeFailure, filepath.Base(f[i]), err)
	}
	return img, nil
}

// Size reads frame i's dimensions from its header without decoding pixels.
func (f FileFrames) Size(i int) (image.Point, error) {
	file, err := os.Open(f[i])
	if err != nil {
		return image.Point{}, fmt.Errorf("%w: %v", types.ErrDecodeFailure, err)
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return image.Point{}, fmt.Errorf("%w: %s: %v", types.ErrDecodeFailure, filepath.Base(f[i]), err)
	}
	return image.Pt(cfg.Width, cfg.Height), nil
}

// Sizer is implemented by Frames that can report a frame's size more
// cheaply than Open.
type Sizer interface {
	Size(i int) (image.Point, error)
}

// FrameSize returns the size of frame i, using Sizer when available.
func FrameSize(frames Frames, i int) (image.Point, error) {
	if s, ok := frames.(Sizer); ok {
		return s.Size(i)
	}
	img, err := frames.Open(i)
	if err != nil {
		return image.Point{}, err
	}
	return img.Bounds().Size(), nil
}

// MemoryFrames holds frames that were decoded ahead of time.
type MemoryFrames []image.Image

func (m MemoryFrames) Len() int { return len(m) }

func (m MemoryFrames) Open(i int) (image.Image, error) { return m[i], nil }

var imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

// LoadDir lists the image files in dir in lexical order, which is temporal
// order for zero-padded sequential names.
func LoadDir(dir string) (FileFrames, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrInputNotFound, dir)
		}
		return nil, err
	}

	var frames FileFrames
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		frames = append(frames, filepath.Join(dir, e.Name()))
	}
	sort.Strings(frames)
	return frames, nil
}
