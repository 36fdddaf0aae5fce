// Package transform holds pure-Go per-frame transforms for the compositor.
package transform

import (
	"context"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/andresmejia3/spritesheet/internal/types"
)

// AutoKey selects the key colour from each frame's top-left pixel.
const AutoKey = "auto"

// ColorKey makes every pixel within Tolerance of Key fully transparent.
// Tolerance is compared per channel, so 0 only removes exact matches.
type ColorKey struct {
	Key       color.NRGBA
	Tolerance int
	Auto      bool
}

// ParseColorKey accepts "auto", "#rrggbb" or "rrggbb".
func ParseColorKey(value string, tolerance int) (*ColorKey, error) {
	if tolerance < 0 || tolerance > 255 {
		return nil, fmt.Errorf("%w: key tolerance must be in [0, 255], got %d", types.ErrInvalidInput, tolerance)
	}

	value = strings.ToLower(strings.TrimSpace(value))
	if value == AutoKey {
		return &ColorKey{Tolerance: tolerance, Auto: true}, nil
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(value, "#"))
	if err != nil || len(raw) != 3 {
		return nil, fmt.Errorf("%w: color key %q is not auto or #rrggbb", types.ErrInvalidInput, value)
	}
	return &ColorKey{
		Key:       color.NRGBA{R: raw[0], G: raw[1], B: raw[2], A: 255},
		Tolerance: tolerance,
	}, nil
}

// Apply keys frame in place and returns it.
func (k *ColorKey) Apply(ctx context.Context, frame *image.NRGBA) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := frame.Bounds()
	if b.Empty() {
		return frame, nil
	}

	key := k.Key
	if k.Auto {
		key = frame.NRGBAAt(b.Min.X, b.Min.Y)
	}

	pix := frame.Pix
	stride := frame.Stride
	tol := k.Tolerance
	for y := 0; y < b.Dy(); y++ {
		rowStart := y * stride
		for x := 0; x < b.Dx(); x++ {
			off := rowStart + x*4
			if near(pix[off], key.R, tol) && near(pix[off+1], key.G, tol) && near(pix[off+2], key.B, tol) {
				pix[off] = 0
				pix[off+1] = 0
				pix[off+2] = 0
				pix[off+3] = 0
			}
		}
	}
	return frame, nil
}

func near(a, b uint8, tol int) bool {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	return d <= tol
}
