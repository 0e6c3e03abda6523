package raster

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"
)

// TIFF reads and writes single-band TIFF files. Integer grids are stored
// as 16-bit samples through the grid's Scale and Offset; float grids as
// 32-bit float samples. The transform, CRS and encoding live in a sidecar
// written by WriteMetadata.
type TIFF struct{}

// Read decodes a single-band TIFF. 8- and 16-bit unsigned images go through
// golang.org/x/image/tiff, other color models are converted to 16-bit
// luminance, and float, signed or 32-bit samples yield a Float grid. Without
// a sidecar the transform comes from GeoTIFF model tags when present, else
// it is the identity.
func (TIFF) Read(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raster %s: %w", path, err)
	}
	defer f.Close()

	dir, err := readIFD(f)
	if err != nil {
		return nil, fmt.Errorf("decode raster %s: %w", path, err)
	}

	meta, err := ReadMetadata(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(MetadataPath(path)); os.IsNotExist(err) {
		if gt, ok := dir.geoTransform(); ok {
			meta.Transform = gt
		}
	}

	if dir.needsSampleDecoder() {
		data, err := decodeSamples(f, dir)
		if err != nil {
			return nil, fmt.Errorf("decode raster %s: %w", path, err)
		}
		width, height := dir.size()
		return &Grid{
			Width:     width,
			Height:    height,
			Data:      data,
			Transform: meta.Transform,
			CRS:       meta.CRS,
			Scale:     1,
			Float:     true,
		}, nil
	}

	img, err := tiff.Decode(io.NewSectionReader(f, 0, math.MaxInt64))
	if err != nil {
		return nil, fmt.Errorf("decode raster %s: %w", path, err)
	}

	b := img.Bounds()
	g := &Grid{
		Width:     b.Dx(),
		Height:    b.Dy(),
		Data:      make([]float64, b.Dx()*b.Dy()),
		Transform: meta.Transform,
		CRS:       meta.CRS,
		Scale:     meta.Scale,
		Offset:    meta.Offset,
	}

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			var raw float64
			switch m := img.(type) {
			case *image.Gray16:
				raw = float64(m.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			case *image.Gray:
				raw = float64(m.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			default:
				raw = float64(color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16).Y)
			}
			g.Data[y*g.Width+x] = raw*g.Scale + g.Offset
		}
	}
	return g, nil
}

// Write encodes g as a deflate-compressed TIFF and writes its sidecar.
// Float grids keep 32-bit float samples. Other grids are stored as 16-bit
// grayscale; values that do not map onto the 16-bit range under the grid's
// encoding are rejected rather than clamped.
func (TIFF) Write(path string, g *Grid) error {
	if g.Width*g.Height != len(g.Data) {
		return fmt.Errorf("raster %s: %dx%d grid holds %d values", path, g.Width, g.Height, len(g.Data))
	}
	if g.Float {
		return writeFloat(path, g)
	}
	scale := g.Scale
	if scale == 0 {
		scale = 1
	}

	img := image.NewGray16(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := g.Data[y*g.Width+x]
			raw := math.Round((v - g.Offset) / scale)
			if math.IsNaN(raw) || raw < 0 || raw > math.MaxUint16 {
				return fmt.Errorf("raster %s: value %g at (%d,%d) not representable with scale %g offset %g",
					path, v, x, y, scale, g.Offset)
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(raw)})
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create raster directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create raster %s: %w", path, err)
	}
	if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		f.Close()
		return fmt.Errorf("encode raster %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close raster %s: %w", path, err)
	}

	return WriteMetadata(path, Metadata{
		Transform: g.Transform,
		CRS:       g.CRS,
		Scale:     scale,
		Offset:    g.Offset,
	})
}

func writeFloat(path string, g *Grid) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create raster directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create raster %s: %w", path, err)
	}
	if err := encodeFloat32(f, g); err != nil {
		f.Close()
		return fmt.Errorf("encode raster %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close raster %s: %w", path, err)
	}
	return WriteMetadata(path, Metadata{Transform: g.Transform, CRS: g.CRS, Scale: 1})
}

// Size returns the raster dimensions without decoding pixel data.
func (TIFF) Size(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open raster %s: %w", path, err)
	}
	defer f.Close()

	dir, err := readIFD(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode raster header %s: %w", path, err)
	}
	width, height = dir.size()
	return width, height, nil
}
