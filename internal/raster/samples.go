package raster

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"golang.org/x/image/tiff/lzw"
)

// golang.org/x/image/tiff decodes unsigned samples up to 16 bits. Float,
// signed and 32-bit rasters, which GDAL writes for continuous layers, are
// decoded here from the image file directory.

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339

	tagModelPixelScale    = 33550
	tagModelTiepoint      = 33922
	tagModelTransform     = 34264
	maxEntryValues        = 1 << 24
	sampleFormatUnsigned  = 1
	sampleFormatSigned    = 2
	sampleFormatFloat     = 3
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionDeflateOld = 32946
	predictorNone         = 1
	predictorHorizontal   = 2
	predictorFloat        = 3
)

// ifd holds the integer and double valued tags of a TIFF's first image.
type ifd struct {
	order   binary.ByteOrder
	ints    map[uint16][]uint64
	doubles map[uint16][]float64
}

func (d *ifd) first(tag uint16, def uint64) uint64 {
	if v := d.ints[tag]; len(v) > 0 {
		return v[0]
	}
	return def
}

func readIFD(r io.ReaderAt) (*ifd, error) {
	var h [8]byte
	if _, err := r.ReadAt(h[:], 0); err != nil {
		return nil, fmt.Errorf("read tiff header: %w", err)
	}
	d := &ifd{ints: map[uint16][]uint64{}, doubles: map[uint16][]float64{}}
	switch string(h[:2]) {
	case "II":
		d.order = binary.LittleEndian
	case "MM":
		d.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a tiff file")
	}
	switch d.order.Uint16(h[2:]) {
	case 42:
	case 43:
		return nil, fmt.Errorf("BigTIFF is not supported")
	default:
		return nil, fmt.Errorf("not a tiff file")
	}

	off := int64(d.order.Uint32(h[4:]))
	var nb [2]byte
	if _, err := r.ReadAt(nb[:], off); err != nil {
		return nil, fmt.Errorf("read tiff directory: %w", err)
	}
	entries := make([]byte, 12*int(d.order.Uint16(nb[:])))
	if _, err := r.ReadAt(entries, off+2); err != nil {
		return nil, fmt.Errorf("read tiff directory: %w", err)
	}

	for e := 0; e < len(entries); e += 12 {
		tag := d.order.Uint16(entries[e:])
		typ := d.order.Uint16(entries[e+2:])
		n := d.order.Uint32(entries[e+4:])

		var size int
		switch typ {
		case 1: // BYTE
			size = 1
		case 3: // SHORT
			size = 2
		case 4: // LONG
			size = 4
		case 12: // DOUBLE
			size = 8
		default:
			continue
		}
		if n > maxEntryValues {
			return nil, fmt.Errorf("tiff tag %d holds %d values", tag, n)
		}
		raw := entries[e+8 : e+12]
		if int(n)*size > 4 {
			raw = make([]byte, int(n)*size)
			if _, err := r.ReadAt(raw, int64(d.order.Uint32(entries[e+8:]))); err != nil {
				return nil, fmt.Errorf("read tiff tag %d: %w", tag, err)
			}
		}

		if typ == 12 {
			vals := make([]float64, n)
			for i := range vals {
				vals[i] = math.Float64frombits(d.order.Uint64(raw[i*8:]))
			}
			d.doubles[tag] = vals
			continue
		}
		vals := make([]uint64, n)
		for i := range vals {
			vals[i] = readUint(raw[i*size:], size, d.order)
		}
		d.ints[tag] = vals
	}

	if d.first(tagImageWidth, 0) == 0 || d.first(tagImageLength, 0) == 0 {
		return nil, fmt.Errorf("tiff directory has no image size")
	}
	return d, nil
}

func (d *ifd) size() (int, int) {
	return int(d.first(tagImageWidth, 0)), int(d.first(tagImageLength, 0))
}

// needsSampleDecoder reports whether x/image/tiff cannot decode the image.
func (d *ifd) needsSampleDecoder() bool {
	return d.first(tagSampleFormat, sampleFormatUnsigned) != sampleFormatUnsigned ||
		d.first(tagBitsPerSample, 1) > 16
}

// geoTransform derives the affine transform from GeoTIFF model tags.
func (d *ifd) geoTransform() (GeoTransform, bool) {
	if m := d.doubles[tagModelTransform]; len(m) >= 8 {
		return GeoTransform{m[3], m[0], m[1], m[7], m[4], m[5]}, true
	}
	scale, tie := d.doubles[tagModelPixelScale], d.doubles[tagModelTiepoint]
	if len(scale) < 2 || len(tie) < 6 {
		return GeoTransform{}, false
	}
	return GeoTransform{tie[3] - tie[0]*scale[0], scale[0], 0, tie[4] + tie[1]*scale[1], 0, -scale[1]}, true
}

func readUint(b []byte, size int, order binary.ByteOrder) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(order.Uint16(b))
	case 4:
		return uint64(order.Uint32(b))
	default:
		return order.Uint64(b)
	}
}

// decodeSamples returns the single band of the image as row-major values.
func decodeSamples(r io.ReaderAt, d *ifd) ([]float64, error) {
	width, height := d.size()
	if spp := d.first(tagSamplesPerPixel, 1); spp != 1 {
		return nil, fmt.Errorf("%d samples per pixel, only single band rasters are supported", spp)
	}
	bits := int(d.first(tagBitsPerSample, 1))
	format := d.first(tagSampleFormat, sampleFormatUnsigned)
	switch {
	case format == sampleFormatFloat && (bits == 32 || bits == 64):
	case (format == sampleFormatUnsigned || format == sampleFormatSigned) &&
		(bits == 8 || bits == 16 || bits == 32 || bits == 64):
	default:
		return nil, fmt.Errorf("unsupported sample format %d with %d bits", format, bits)
	}
	bps := bits / 8

	predictor := d.first(tagPredictor, predictorNone)
	switch {
	case predictor == predictorNone:
	case predictor == predictorHorizontal && format != sampleFormatFloat:
	case predictor == predictorFloat && format == sampleFormatFloat:
	default:
		return nil, fmt.Errorf("unsupported predictor %d for sample format %d", predictor, format)
	}

	var blockW, blockH int
	var offsets, counts []uint64
	tiled := len(d.ints[tagTileWidth]) > 0
	if tiled {
		blockW = int(d.first(tagTileWidth, 0))
		blockH = int(d.first(tagTileLength, 0))
		offsets, counts = d.ints[tagTileOffsets], d.ints[tagTileByteCounts]
	} else {
		blockW = width
		blockH = min(int(d.first(tagRowsPerStrip, uint64(height))), height)
		offsets, counts = d.ints[tagStripOffsets], d.ints[tagStripByteCounts]
	}
	if blockW <= 0 || blockH <= 0 {
		return nil, fmt.Errorf("invalid block size %dx%d", blockW, blockH)
	}
	across := (width + blockW - 1) / blockW
	down := (height + blockH - 1) / blockH
	if len(offsets) != across*down || len(counts) != across*down {
		return nil, fmt.Errorf("%d block offsets and %d byte counts for %d blocks", len(offsets), len(counts), across*down)
	}

	compression := d.first(tagCompression, compressionNone)
	out := make([]float64, width*height)
	rowBytes := blockW * bps
	scratch := make([]byte, rowBytes)
	mask := uint64(math.MaxUint64) >> (64 - bits)

	for b := range offsets {
		bx, by := b%across, b/across
		rows := blockH
		if !tiled {
			rows = min(blockH, height-by*blockH)
		}

		raw := make([]byte, counts[b])
		if _, err := r.ReadAt(raw, int64(offsets[b])); err != nil {
			return nil, fmt.Errorf("read block %d: %w", b, err)
		}
		buf, err := decompress(raw, compression)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", b, err)
		}
		if need := rows * rowBytes; len(buf) < need {
			return nil, fmt.Errorf("block %d holds %d bytes, want %d", b, len(buf), need)
		}

		for ry := 0; ry < rows; ry++ {
			y := by*blockH + ry
			if y >= height {
				break
			}
			row := buf[ry*rowBytes : (ry+1)*rowBytes]
			order := d.order
			if predictor == predictorFloat {
				unshuffleFloatRow(row, scratch, blockW, bps)
				row, order = scratch, binary.BigEndian
			}
			var prev uint64
			for c := 0; c < blockW; c++ {
				v := readUint(row[c*bps:], bps, order)
				if predictor == predictorHorizontal && c > 0 {
					v = (v + prev) & mask
				}
				prev = v
				if x := bx*blockW + c; x < width {
					out[y*width+x] = sampleValue(v, bits, format)
				}
			}
		}
	}
	return out, nil
}

func decompress(raw []byte, compression uint64) ([]byte, error) {
	var rc io.ReadCloser
	switch compression {
	case compressionNone:
		return raw, nil
	case compressionDeflate, compressionDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		rc = zr
	case compressionLZW:
		rc = lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
	default:
		return nil, fmt.Errorf("unsupported compression %d", compression)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// unshuffleFloatRow reverses the floating point predictor: bytes are
// differenced across the row, then stored most significant byte plane
// first. dst receives big-endian samples.
func unshuffleFloatRow(row, dst []byte, width, bps int) {
	for i := 1; i < len(row); i++ {
		row[i] += row[i-1]
	}
	for i := 0; i < width; i++ {
		for b := 0; b < bps; b++ {
			dst[i*bps+b] = row[b*width+i]
		}
	}
}

func sampleValue(v uint64, bits int, format uint64) float64 {
	switch format {
	case sampleFormatFloat:
		if bits == 32 {
			return float64(math.Float32frombits(uint32(v)))
		}
		return math.Float64frombits(v)
	case sampleFormatSigned:
		shift := 64 - bits
		return float64(int64(v<<shift) >> shift)
	}
	return float64(v)
}

// encodeFloat32 writes g as a little-endian single strip deflate TIFF with
// 32-bit float samples.
func encodeFloat32(w io.Writer, g *Grid) error {
	var pixels bytes.Buffer
	zw := zlib.NewWriter(&pixels)
	sample := make([]byte, 4)
	for _, v := range g.Data {
		binary.LittleEndian.PutUint32(sample, math.Float32bits(float32(v)))
		if _, err := zw.Write(sample); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}

	type entry struct {
		tag, typ uint16
		value    uint32
	}
	const short, long = 3, 4
	entries := []entry{
		{tagImageWidth, long, uint32(g.Width)},
		{tagImageLength, long, uint32(g.Height)},
		{tagBitsPerSample, short, 32},
		{tagCompression, short, compressionDeflate},
		{tagPhotometric, short, 1},
		{tagStripOffsets, long, 0},
		{tagSamplesPerPixel, short, 1},
		{tagRowsPerStrip, long, uint32(g.Height)},
		{tagStripByteCounts, long, uint32(pixels.Len())},
		{tagPlanarConfig, short, 1},
		{tagSampleFormat, short, sampleFormatFloat},
	}
	dataOffset := uint32(8 + 2 + 12*len(entries) + 4)
	entries[5].value = dataOffset

	var hdr bytes.Buffer
	le := binary.LittleEndian
	hdr.WriteString("II")
	_ = binary.Write(&hdr, le, uint16(42))
	_ = binary.Write(&hdr, le, uint32(8))
	_ = binary.Write(&hdr, le, uint16(len(entries)))
	for _, e := range entries {
		_ = binary.Write(&hdr, le, e.tag)
		_ = binary.Write(&hdr, le, e.typ)
		_ = binary.Write(&hdr, le, uint32(1))
		if e.typ == short {
			_ = binary.Write(&hdr, le, uint16(e.value))
			_ = binary.Write(&hdr, le, uint16(0))
		} else {
			_ = binary.Write(&hdr, le, e.value)
		}
	}
	_ = binary.Write(&hdr, le, uint32(0))

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(pixels.Bytes())
	return err
}
