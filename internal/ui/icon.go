package ui

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

var iconBytes = renderIcon(22)

// renderIcon draws three stacked track bars, the middle one offset like a
// clip mid-drag.
func renderIcon(size int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	bar := color.NRGBA{R: 0xe8, G: 0x5d, B: 0x3a, A: 0xff}

	h := size / 5
	rows := []struct{ y, x0, x1 int }{
		{h / 2, 1, size - 6},
		{2 * h, 5, size - 1},
		{size - h - h/2, 1, size - 9},
	}
	for _, r := range rows {
		for y := r.y; y < r.y+h && y < size; y++ {
			for x := r.x0; x < r.x1; x++ {
				img.SetNRGBA(x, y, bar)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}
