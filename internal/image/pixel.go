// Package image synthesizes pixel payloads for generated instances: random
// noise in the modality's stored bit range with a burnt-in identification
// label, so viewers can tell instances apart at a glance.
package image

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math/rand/v2"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/flatmapit/dicom-maker/internal/dicom"
)

// Synthesize produces pixel data for one frame of the given modality
// profile: seeded noise across the stored bit range with label burnt into
// the top of the frame. The returned bytes are little-endian, one or two
// bytes per sample per the profile's allocation, always even in length.
func Synthesize(profile dicom.ModalityProfile, seed uint64, label string) ([]byte, error) {
	width, height := int(profile.Columns), int(profile.Rows)
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("image: invalid geometry %dx%d for modality %s", width, height, profile.Code)
	}

	maxValue := uint32(1)<<profile.BitsStored - 1
	rng := rand.New(rand.NewPCG(seed, seed))
	pixels := make([]uint32, width*height)
	for i := range pixels {
		pixels[i] = rng.Uint32N(maxValue + 1)
	}

	if label != "" {
		burnLabel(pixels, width, height, maxValue, label)
	}

	if profile.BitsAllocated() == 8 {
		out := make([]byte, len(pixels))
		for i, p := range pixels {
			out[i] = byte(p)
		}
		if len(out)%2 == 1 {
			out = append(out, 0x00)
		}
		return out, nil
	}
	out := make([]byte, len(pixels)*2)
	for i, p := range pixels {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(p))
	}
	return out, nil
}

// burnLabel draws label near the top of the frame, white on a black
// outline, then folds the drawn region back into the stored bit range.
func burnLabel(pixels []uint32, width, height int, maxValue uint32, label string) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gray := uint8(pixels[y*width+x] * 255 / maxValue)
			img.SetRGBA(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, label).Ceil()
	x := (width - textWidth) / 2
	if x < 0 {
		x = 0
	}
	y := height/20 + face.Metrics().Ascent.Ceil()

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			drawer.Dot = fixed.P(x+dx, y+dy)
			drawer.DrawString(label)
		}
	}
	drawer.Src = image.NewUniform(color.White)
	drawer.Dot = fixed.P(x, y)
	drawer.DrawString(label)

	for py := 0; py < height; py++ {
		for px := 0; px < width; px++ {
			r, g, b, _ := img.At(px, py).RGBA()
			gray8 := (r + g + b) / (3 * 256)
			pixels[py*width+px] = gray8 * maxValue / 255
		}
	}
}
