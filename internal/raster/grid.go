// Package raster provides access to georeferenced single-band rasters.
//
// A Grid holds pixel values as float64 in row-major order together with the
// affine transform that maps pixel coordinates to map coordinates. Readers
// and Writers move Grids to and from storage; the TIFF implementation keeps
// georeferencing in a YAML sidecar next to each image.
package raster

import (
	"fmt"
)

// GeoTransform is an affine pixel-to-map transform in GDAL coefficient order:
// origin x, pixel width, row rotation, origin y, column rotation, pixel height.
type GeoTransform [6]float64

// IdentityTransform maps pixel (col, row) to map (col, row).
func IdentityTransform() GeoTransform {
	return GeoTransform{0, 1, 0, 0, 0, 1}
}

// Apply maps a pixel position to map coordinates.
func (g GeoTransform) Apply(col, row float64) (x, y float64) {
	x = g[0] + g[1]*col + g[2]*row
	y = g[3] + g[4]*col + g[5]*row
	return x, y
}

// Shift returns the transform of a sub-window whose top-left pixel is
// (col, row) in the receiver's pixel space. Pixel scale is unchanged.
func (g GeoTransform) Shift(col, row int) GeoTransform {
	x, y := g.Apply(float64(col), float64(row))
	g[0], g[3] = x, y
	return g
}

// Grid is a single-band raster held in memory.
type Grid struct {
	Width     int
	Height    int
	Data      []float64
	Transform GeoTransform
	CRS       string

	// Scale and Offset describe the integer storage encoding:
	// value = raw*Scale + Offset.
	Scale  float64
	Offset float64

	// Float marks grids decoded from floating point or signed samples.
	// They are written back as 32-bit float samples and ignore Scale and
	// Offset.
	Float bool
}

// NewGrid allocates a zeroed width x height grid with an identity transform.
func NewGrid(width, height int) *Grid {
	return &Grid{
		Width:     width,
		Height:    height,
		Data:      make([]float64, width*height),
		Transform: IdentityTransform(),
		Scale:     1,
	}
}

// Fill sets every pixel to v.
func (g *Grid) Fill(v float64) *Grid {
	for i := range g.Data {
		g.Data[i] = v
	}
	return g
}

func (g *Grid) At(x, y int) float64 {
	return g.Data[y*g.Width+x]
}

func (g *Grid) Set(x, y int, v float64) {
	g.Data[y*g.Width+x] = v
}

// Window copies the w x h rectangle whose top-left pixel is (x, y). The
// result carries the shifted transform and the source's CRS and encoding.
func (g *Grid) Window(x, y, w, h int) (*Grid, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("window %dx%d has no area", w, h)
	}
	if x < 0 || y < 0 || x+w > g.Width || y+h > g.Height {
		return nil, fmt.Errorf("window (%d,%d %dx%d) outside %dx%d raster", x, y, w, h, g.Width, g.Height)
	}

	out := &Grid{
		Width:     w,
		Height:    h,
		Data:      make([]float64, w*h),
		Transform: g.Transform.Shift(x, y),
		CRS:       g.CRS,
		Scale:     g.Scale,
		Offset:    g.Offset,
		Float:     g.Float,
	}
	for row := 0; row < h; row++ {
		src := (y+row)*g.Width + x
		copy(out.Data[row*w:(row+1)*w], g.Data[src:src+w])
	}
	return out, nil
}

// Reader opens a raster file.
type Reader interface {
	Read(path string) (*Grid, error)
}

// Writer persists a raster file.
type Writer interface {
	Write(path string, g *Grid) error
}

// Sizer reports raster dimensions without reading pixels.
type Sizer interface {
	Size(path string) (width, height int, err error)
}

// ReadWriter combines Reader and Writer.
type ReadWriter interface {
	Reader
	Writer
}
