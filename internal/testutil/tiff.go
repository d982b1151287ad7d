package testutil

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"math"
	"strconv"
	"testing"
)

// SampleKind selects the on-disk sample layout of a fixture raster.
type SampleKind int

const (
	Float32Sample SampleKind = iota
	Float64Sample
	Uint8Sample
	Uint16Sample
	Uint32Sample
	Int16Sample
	Int32Sample
)

// TIFFOptions describes the synthetic single-band GeoTIFF to build.
type TIFFOptions struct {
	Width  int
	Height int
	// Values are row-major cell values; NaN entries are written as the
	// nodata marker.
	Values []float64

	// OriginX, OriginY are the model coordinates of the top-left corner of
	// cell (0,0). Scale is the cell size in both axes.
	OriginX float64
	OriginY float64
	Scale   float64

	// NoData is the marker value recorded in the GDAL nodata tag. It also
	// pads partial edge tiles.
	NoData float64

	// Sample is the sample layout; the zero value is float32.
	Sample SampleKind
	// Deflate and PackBits select the compression scheme; at most one.
	Deflate  bool
	PackBits bool
	// Predictor applies horizontal differencing before compression.
	// Integer samples only.
	Predictor bool
	// TileWidth and TileLength switch from strip to tile organisation when
	// both are set.
	TileWidth  int
	TileLength int
}

// TIFF type and tag constants for the builder.
const (
	ttShort  = 3
	ttLong   = 4
	ttASCII  = 2
	ttDouble = 12
)

type ifdField struct {
	tag   uint16
	typ   uint16
	count uint32
	// value is the inline value for fields that fit in 4 bytes, otherwise
	// the offset of the out-of-line data.
	value uint32
}

// sampleSpec ties a SampleKind to its TIFF encoding.
type sampleSpec struct {
	bits   uint32
	format uint32 // 1 unsigned, 2 signed, 3 float
	put    func(buf *bytes.Buffer, v float64)
}

func kindSpec(t *testing.T, kind SampleKind) sampleSpec {
	t.Helper()
	le := binary.LittleEndian
	switch kind {
	case Float32Sample:
		return sampleSpec{32, 3, func(buf *bytes.Buffer, v float64) {
			binary.Write(buf, le, float32(v))
		}}
	case Float64Sample:
		return sampleSpec{64, 3, func(buf *bytes.Buffer, v float64) {
			binary.Write(buf, le, math.Float64bits(v))
		}}
	case Uint8Sample:
		return sampleSpec{8, 1, func(buf *bytes.Buffer, v float64) {
			buf.WriteByte(byte(int64(v)))
		}}
	case Uint16Sample:
		return sampleSpec{16, 1, func(buf *bytes.Buffer, v float64) {
			binary.Write(buf, le, uint16(int64(v)))
		}}
	case Uint32Sample:
		return sampleSpec{32, 1, func(buf *bytes.Buffer, v float64) {
			binary.Write(buf, le, uint32(int64(v)))
		}}
	case Int16Sample:
		return sampleSpec{16, 2, func(buf *bytes.Buffer, v float64) {
			binary.Write(buf, le, uint16(int16(v)))
		}}
	case Int32Sample:
		return sampleSpec{32, 2, func(buf *bytes.Buffer, v float64) {
			binary.Write(buf, le, uint32(int32(v)))
		}}
	}
	t.Fatalf("kindSpec: unknown sample kind %d", kind)
	return sampleSpec{}
}

// TIFFBytes builds a little-endian GeoTIFF in memory, strip-organised unless
// tile dimensions are set. It exists so raster tests do not depend on binary
// files in testdata.
func TIFFBytes(t *testing.T, opts TIFFOptions) []byte {
	t.Helper()

	if len(opts.Values) != opts.Width*opts.Height {
		t.Fatalf("TIFFBytes: %d values for a %dx%d grid", len(opts.Values), opts.Width, opts.Height)
	}
	if opts.Scale == 0 {
		opts.Scale = 1
	}
	if opts.Deflate && opts.PackBits {
		t.Fatalf("TIFFBytes: at most one compression scheme")
	}
	tiled := opts.TileWidth > 0 || opts.TileLength > 0
	if tiled && (opts.TileWidth <= 0 || opts.TileLength <= 0) {
		t.Fatalf("TIFFBytes: both tile dimensions must be set")
	}
	spec := kindSpec(t, opts.Sample)
	if opts.Predictor && spec.format == 3 {
		t.Fatalf("TIFFBytes: the horizontal predictor needs integer samples")
	}
	bytesPer := int(spec.bits / 8)

	values := make([]float64, len(opts.Values))
	copy(values, opts.Values)
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = opts.NoData
		}
	}

	// Sample payload per segment: one strip holding the whole grid, or a
	// row-major grid of tiles padded with the nodata value at the edges.
	var segs [][]byte
	segRowSamples := opts.Width
	if tiled {
		segRowSamples = opts.TileWidth
		across := (opts.Width + opts.TileWidth - 1) / opts.TileWidth
		down := (opts.Height + opts.TileLength - 1) / opts.TileLength
		for tr := 0; tr < down; tr++ {
			for tc := 0; tc < across; tc++ {
				seg := &bytes.Buffer{}
				for y := 0; y < opts.TileLength; y++ {
					for x := 0; x < opts.TileWidth; x++ {
						gx, gy := tc*opts.TileWidth+x, tr*opts.TileLength+y
						v := opts.NoData
						if gx < opts.Width && gy < opts.Height {
							v = values[gy*opts.Width+gx]
						}
						spec.put(seg, v)
					}
				}
				segs = append(segs, seg.Bytes())
			}
		}
	} else {
		seg := &bytes.Buffer{}
		for _, v := range values {
			spec.put(seg, v)
		}
		segs = [][]byte{seg.Bytes()}
	}

	compression := uint32(1)
	switch {
	case opts.Deflate:
		compression = 8
	case opts.PackBits:
		compression = 32773
	}
	for i, seg := range segs {
		if opts.Predictor {
			rowBytes := segRowSamples * bytesPer
			for off := 0; off+rowBytes <= len(seg); off += rowBytes {
				forwardPredictor(seg[off:off+rowBytes], bytesPer)
			}
		}
		switch {
		case opts.Deflate:
			segs[i] = deflate(t, seg)
		case opts.PackBits:
			segs[i] = packBits(seg)
		}
	}

	buf := &bytes.Buffer{}
	le := binary.LittleEndian

	// Header; the IFD offset is patched in at the end.
	buf.WriteString("II")
	binary.Write(buf, le, uint16(42))
	binary.Write(buf, le, uint32(0))

	segOffsets := make([]uint32, len(segs))
	segCounts := make([]uint32, len(segs))
	for i, seg := range segs {
		segOffsets[i] = uint32(buf.Len())
		segCounts[i] = uint32(len(seg))
		buf.Write(seg)
	}

	// Out-of-line tag data.
	writeLongs := func(vals []uint32) uint32 {
		off := uint32(buf.Len())
		for _, v := range vals {
			binary.Write(buf, le, v)
		}
		return off
	}
	longArray := func(tag uint16, vals []uint32) ifdField {
		if len(vals) == 1 {
			return ifdField{tag, ttLong, 1, vals[0]}
		}
		return ifdField{tag, ttLong, uint32(len(vals)), writeLongs(vals)}
	}
	offsetsField := longArray(273, segOffsets)
	countsField := longArray(279, segCounts)
	if tiled {
		offsetsField.tag = 324
		countsField.tag = 325
	}

	scaleOffset := uint32(buf.Len())
	for _, v := range []float64{opts.Scale, opts.Scale, 0} {
		binary.Write(buf, le, math.Float64bits(v))
	}
	tieOffset := uint32(buf.Len())
	for _, v := range []float64{0, 0, 0, opts.OriginX, opts.OriginY, 0} {
		binary.Write(buf, le, math.Float64bits(v))
	}
	nodata := []byte("-9999\x00")
	if opts.NoData != 0 {
		nodata = append([]byte(formatFloat(opts.NoData)), 0)
	}
	for len(nodata) <= 4 {
		nodata = append(nodata, 0) // force the value out of line; <=4 bytes would be stored inline
	}
	nodataOffset := uint32(buf.Len())
	buf.Write(nodata)
	if buf.Len()%2 == 1 {
		buf.WriteByte(0) // keep the IFD word-aligned
	}

	fields := []ifdField{
		{256, ttShort, 1, uint32(opts.Width)},
		{257, ttShort, 1, uint32(opts.Height)},
		{258, ttShort, 1, spec.bits},
		{259, ttShort, 1, compression},
		{262, ttShort, 1, 1},
	}
	if !tiled {
		fields = append(fields, offsetsField)
	}
	fields = append(fields, ifdField{277, ttShort, 1, 1})
	if !tiled {
		fields = append(fields,
			ifdField{278, ttShort, 1, uint32(opts.Height)},
			countsField,
		)
	}
	if opts.Predictor {
		fields = append(fields, ifdField{317, ttShort, 1, 2})
	}
	if tiled {
		fields = append(fields,
			ifdField{322, ttShort, 1, uint32(opts.TileWidth)},
			ifdField{323, ttShort, 1, uint32(opts.TileLength)},
			offsetsField,
			countsField,
		)
	}
	fields = append(fields,
		ifdField{339, ttShort, 1, spec.format},
		ifdField{33550, ttDouble, 3, scaleOffset},
		ifdField{33922, ttDouble, 6, tieOffset},
		ifdField{42113, ttASCII, uint32(len(nodata)), nodataOffset},
	)

	ifdOffset := uint32(buf.Len())
	binary.Write(buf, le, uint16(len(fields)))
	for _, f := range fields {
		binary.Write(buf, le, f.tag)
		binary.Write(buf, le, f.typ)
		binary.Write(buf, le, f.count)
		if f.typ == ttShort && f.count == 1 {
			// SHORT values are left-justified in the 4-byte slot.
			binary.Write(buf, le, uint16(f.value))
			binary.Write(buf, le, uint16(0))
		} else {
			binary.Write(buf, le, f.value)
		}
	}
	binary.Write(buf, le, uint32(0)) // no next IFD

	out := buf.Bytes()
	le.PutUint32(out[4:8], ifdOffset)
	return out
}

func deflate(t *testing.T, payload []byte) []byte {
	t.Helper()
	zbuf := &bytes.Buffer{}
	zw := zlib.NewWriter(zbuf)
	if _, err := zw.Write(payload); err != nil {
		t.Fatalf("TIFFBytes: compress payload: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("TIFFBytes: close compressor: %v", err)
	}
	return zbuf.Bytes()
}

// forwardPredictor applies horizontal differencing across one row of
// samples, in place. Little-endian integer samples of 1, 2 or 4 bytes.
func forwardPredictor(row []byte, bytesPer int) {
	le := binary.LittleEndian
	for i := len(row)/bytesPer - 1; i >= 1; i-- {
		switch bytesPer {
		case 1:
			row[i] -= row[i-1]
		case 2:
			le.PutUint16(row[i*2:], le.Uint16(row[i*2:])-le.Uint16(row[(i-1)*2:]))
		case 4:
			le.PutUint32(row[i*4:], le.Uint32(row[i*4:])-le.Uint32(row[(i-1)*4:]))
		}
	}
}

// packBits run-length encodes the payload: repeats of two or more bytes
// become replicate runs, everything else literal runs.
func packBits(src []byte) []byte {
	var out []byte
	i := 0
	for i < len(src) {
		j := i + 1
		for j < len(src) && src[j] == src[i] && j-i < 128 {
			j++
		}
		if run := j - i; run >= 2 {
			out = append(out, byte(int8(1-run)), src[i])
			i = j
			continue
		}
		k := i + 1
		for k < len(src) && k-i < 128 && (k+1 >= len(src) || src[k+1] != src[k]) {
			k++
		}
		out = append(out, byte(k-i-1))
		out = append(out, src[i:k]...)
		i = k
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
