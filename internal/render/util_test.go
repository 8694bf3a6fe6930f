package render

import (
	"image"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

func colorAt(img image.Image, x, y int) drawing.Color {
	r, g, b, a := img.At(x, y).RGBA()
	return drawing.Color{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}
}
