package render

import (
	"image"

	"github.com/ALEYI17/InfraSight_gpuview/pkg/logutil"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
)

// Band is the horizontal slice of the plot kept by a snapshot, as fractions
// of the plot height.
type Band struct {
	Offset float64
	Height float64
}

var DefaultBand = Band{Offset: 0.45, Height: 0.10}

// Rect returns the pixel rows of the band for a plot of height h.
func (b Band) Rect(width, height int) image.Rectangle {
	y0 := int(b.Offset*float64(height)) + 1
	return image.Rect(0, y0, width, y0+int(b.Height*float64(height)))
}

var (
	backgroundColor = drawing.Color{R: 255, G: 255, B: 255, A: 255}
	kernelColor     = drawing.Color{R: 218, G: 165, B: 32, A: 255}
	transferColors  = map[uint8]drawing.Color{
		types.DIR_HTOD: {R: 70, G: 130, B: 180, A: 255},
		types.DIR_DTOH: {R: 178, G: 34, B: 34, A: 255},
		types.DIR_DTOD: {R: 46, G: 139, B: 87, A: 255},
		types.DIR_HTOH: {R: 128, G: 128, B: 128, A: 255},
	}
)

// Surface is the plot of one cluster. It is only touched from the owner loop.
type Surface struct {
	Key    types.ClusterKey
	gen    uint64
	origin types.Time
	rng    types.Range
	size   types.Size

	transfers []types.DataTransfer
	kernels   []types.KernelExecution
}

func newSurface(key types.ClusterKey, gen uint64, extent types.Interval) *Surface {
	return &Surface{
		Key:    key,
		gen:    gen,
		origin: extent.Begin,
		rng:    types.Range{Lower: 0, Upper: types.RelativeMs(extent.Begin, extent.End)},
	}
}

func (s *Surface) Add(rec types.Record) {
	switch r := rec.(type) {
	case types.DataTransfer:
		s.transfers = append(s.transfers, r)
	case types.KernelExecution:
		s.kernels = append(s.kernels, r)
	}
}

func (s *Surface) Configure(r types.Range, size types.Size) {
	s.rng = r
	s.size = size
}

func (s *Surface) Range() types.Range { return s.rng }
func (s *Surface) Size() types.Size   { return s.size }

// Render draws the plot at the configured size and range and returns the
// band of it. It reports false for degenerate geometry.
func (s *Surface) Render(band Band) (image.Image, bool) {
	if s.size.Empty() || !s.rng.Valid() || s.rng.Empty() {
		return nil, false
	}
	crop := band.Rect(s.size.Width, s.size.Height)
	if crop.Empty() || crop.Max.Y > s.size.Height {
		return nil, false
	}

	full := image.NewRGBA(image.Rect(0, 0, s.size.Width, s.size.Height))
	gc, err := drawing.NewRasterGraphicContext(full)
	if err != nil {
		logutil.GetLogger().Error("creating raster context", zap.Stringer("key", s.Key), zap.Error(err))
		return nil, false
	}

	w, h := float64(s.size.Width), float64(s.size.Height)
	fillRect(gc, backgroundColor, 0, 0, w, h)

	kernelTop, mid, transferBottom := band.Offset*h, (band.Offset+band.Height/2)*h, (band.Offset+band.Height)*h
	for _, k := range s.kernels {
		if x0, x1, ok := s.span(k.Begin, k.End, w); ok {
			fillRect(gc, kernelColor, x0, kernelTop, x1, mid)
		}
	}
	for _, dt := range s.transfers {
		if x0, x1, ok := s.span(dt.Begin, dt.End, w); ok {
			c, found := transferColors[dt.Dir]
			if !found {
				c = transferColors[types.DIR_HTOH]
			}
			fillRect(gc, c, x0, mid, x1, transferBottom)
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	xdraw.Copy(out, image.Point{}, full, crop, xdraw.Src, nil)
	return out, true
}

// span maps [begin, end] to pixel columns, reporting false when it lies
// outside the visible range. Every visible event is at least one pixel wide.
func (s *Surface) span(begin, end types.Time, width float64) (float64, float64, bool) {
	lower, upper := s.rng.Lower, s.rng.Upper
	b, e := types.RelativeMs(s.origin, begin), types.RelativeMs(s.origin, end)
	if e < lower || b > upper {
		return 0, 0, false
	}
	scale := width / (upper - lower)
	x0 := (max(b, lower) - lower) * scale
	x1 := (min(e, upper) - lower) * scale
	if x1-x0 < 1 {
		x1 = x0 + 1
	}
	return x0, x1, true
}

func fillRect(gc *drawing.RasterGraphicContext, c drawing.Color, x0, y0, x1, y1 float64) {
	gc.SetFillColor(c)
	gc.BeginPath()
	gc.MoveTo(x0, y0)
	gc.LineTo(x1, y0)
	gc.LineTo(x1, y1)
	gc.LineTo(x0, y1)
	gc.Close()
	gc.Fill()
}
