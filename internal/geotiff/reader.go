package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// TIFF tag numbers used by the reader.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339

	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGDALNoData          = 42113
)

// Compression schemes.
const (
	compressionNone          = 1
	compressionLZW           = 5
	compressionDeflate       = 8
	compressionPackBits      = 32773
	compressionDeflateLegacy = 32946
)

// Sample formats.
const (
	formatUint  = 1
	formatInt   = 2
	formatFloat = 3
)

// Open reads and decodes the GeoTIFF at path.
func Open(path string) (*Raster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read raster file: %w", err)
	}
	r, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return r, nil
}

// Decode parses a single-band GeoTIFF image from memory. Supported layouts:
// strip or tile organisation, uncompressed, Deflate, or PackBits data,
// unsigned/signed integer and float samples, and the horizontal predictor
// for integer data. Georeferencing comes from the ModelPixelScale and
// ModelTiepoint tags, or from an axis-aligned ModelTransformation matrix.
func Decode(data []byte) (*Raster, error) {
	d, err := newDecoder(data)
	if err != nil {
		return nil, err
	}
	return d.decode()
}

// fieldTypeSize maps TIFF field types to their size in bytes.
var fieldTypeSize = map[uint16]uint32{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8,
}

// ifdEntry is one parsed IFD entry with its value bytes resolved.
type ifdEntry struct {
	typ   uint16
	count uint32
	raw   []byte
}

type decoder struct {
	data []byte
	bo   binary.ByteOrder
	tags map[uint16]ifdEntry
}

func newDecoder(data []byte) (*decoder, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("file too short for a TIFF header")
	}

	d := &decoder{data: data}
	switch string(data[:2]) {
	case "II":
		d.bo = binary.LittleEndian
	case "MM":
		d.bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("unrecognized TIFF byte order marker %q", data[:2])
	}

	switch magic := d.bo.Uint16(data[2:4]); magic {
	case 42:
		// classic TIFF
	case 43:
		return nil, fmt.Errorf("BigTIFF is not supported")
	default:
		return nil, fmt.Errorf("bad TIFF magic number %d", magic)
	}

	ifdOffset := d.bo.Uint32(data[4:8])
	if err := d.parseIFD(ifdOffset); err != nil {
		return nil, err
	}
	return d, nil
}

// parseIFD reads the first image file directory. Overviews in later IFDs
// are ignored; the full-resolution grid always comes first.
func (d *decoder) parseIFD(offset uint32) error {
	if int(offset)+2 > len(d.data) {
		return fmt.Errorf("IFD offset %d out of range", offset)
	}
	count := int(d.bo.Uint16(d.data[offset : offset+2]))
	entriesEnd := int(offset) + 2 + count*12
	if entriesEnd > len(d.data) {
		return fmt.Errorf("IFD with %d entries exceeds file size", count)
	}

	d.tags = make(map[uint16]ifdEntry, count)
	for i := 0; i < count; i++ {
		entry := d.data[int(offset)+2+i*12:]
		tag := d.bo.Uint16(entry[0:2])
		typ := d.bo.Uint16(entry[2:4])
		num := d.bo.Uint32(entry[4:8])

		size, ok := fieldTypeSize[typ]
		if !ok {
			continue // unknown field type, skip the tag
		}
		byteLen := size * num

		var raw []byte
		if byteLen <= 4 {
			raw = entry[8 : 8+byteLen]
		} else {
			valOffset := d.bo.Uint32(entry[8:12])
			if int(valOffset)+int(byteLen) > len(d.data) {
				return fmt.Errorf("tag %d value out of range", tag)
			}
			raw = d.data[valOffset : valOffset+byteLen]
		}
		d.tags[tag] = ifdEntry{typ: typ, count: num, raw: raw}
	}
	return nil
}

// uintVals returns the tag's values as unsigned integers (BYTE, SHORT or
// LONG typed tags).
func (d *decoder) uintVals(tag uint16) ([]uint32, bool, error) {
	e, ok := d.tags[tag]
	if !ok {
		return nil, false, nil
	}
	out := make([]uint32, e.count)
	for i := uint32(0); i < e.count; i++ {
		switch e.typ {
		case 1: // BYTE
			out[i] = uint32(e.raw[i])
		case 3: // SHORT
			out[i] = uint32(d.bo.Uint16(e.raw[i*2:]))
		case 4: // LONG
			out[i] = d.bo.Uint32(e.raw[i*4:])
		default:
			return nil, true, fmt.Errorf("tag %d has unexpected field type %d", tag, e.typ)
		}
	}
	return out, true, nil
}

// firstUint returns the tag's first value, or def when the tag is absent.
func (d *decoder) firstUint(tag uint16, def uint32) (uint32, error) {
	vals, ok, err := d.uintVals(tag)
	if err != nil {
		return 0, err
	}
	if !ok || len(vals) == 0 {
		return def, nil
	}
	return vals[0], nil
}

// doubleVals returns the tag's values as float64 (DOUBLE typed tags).
func (d *decoder) doubleVals(tag uint16) ([]float64, bool, error) {
	e, ok := d.tags[tag]
	if !ok {
		return nil, false, nil
	}
	if e.typ != 12 {
		return nil, true, fmt.Errorf("tag %d has unexpected field type %d, want DOUBLE", tag, e.typ)
	}
	out := make([]float64, e.count)
	for i := uint32(0); i < e.count; i++ {
		out[i] = math.Float64frombits(d.bo.Uint64(e.raw[i*8:]))
	}
	return out, true, nil
}

// asciiVal returns the tag's value as a trimmed string (ASCII typed tags).
func (d *decoder) asciiVal(tag uint16) (string, bool) {
	e, ok := d.tags[tag]
	if !ok || e.typ != 2 {
		return "", false
	}
	return strings.TrimRight(string(e.raw), "\x00"), true
}

func (d *decoder) decode() (*Raster, error) {
	width, err := d.firstUint(tagImageWidth, 0)
	if err != nil {
		return nil, err
	}
	height, err := d.firstUint(tagImageLength, 0)
	if err != nil {
		return nil, err
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("missing image dimensions")
	}

	samplesPerPixel, err := d.firstUint(tagSamplesPerPixel, 1)
	if err != nil {
		return nil, err
	}
	if samplesPerPixel != 1 {
		return nil, fmt.Errorf("only single-band rasters are supported, got %d samples per pixel", samplesPerPixel)
	}

	bits, err := d.firstUint(tagBitsPerSample, 0)
	if err != nil {
		return nil, err
	}
	format, err := d.firstUint(tagSampleFormat, formatUint)
	if err != nil {
		return nil, err
	}
	toFloat, err := sampleConverter(bits, format, d.bo)
	if err != nil {
		return nil, err
	}

	compression, err := d.firstUint(tagCompression, compressionNone)
	if err != nil {
		return nil, err
	}
	predictor, err := d.firstUint(tagPredictor, 1)
	if err != nil {
		return nil, err
	}
	if predictor == 2 && format == formatFloat {
		return nil, fmt.Errorf("horizontal predictor on float samples is not supported")
	}
	if predictor > 2 {
		return nil, fmt.Errorf("predictor %d is not supported", predictor)
	}

	r := &Raster{
		Width:  int(width),
		Height: int(height),
		values: make([]float64, int(width)*int(height)),
	}
	if err := d.readGeoreference(r); err != nil {
		return nil, err
	}

	seg := segmentReader{
		decoder:     d,
		compression: compression,
		predictor:   predictor,
		bytesPer:    int(bits / 8),
		toFloat:     toFloat,
	}
	if _, tiled := d.tags[tagTileOffsets]; tiled {
		err = seg.readTiles(r)
	} else {
		err = seg.readStrips(r)
	}
	if err != nil {
		return nil, err
	}

	d.applyNoData(r)
	return r, nil
}

// readGeoreference fills the raster's origin and scale from the GeoTIFF
// tags. The raster must be north-up and axis-aligned.
func (d *decoder) readGeoreference(r *Raster) error {
	scale, hasScale, err := d.doubleVals(tagModelPixelScale)
	if err != nil {
		return err
	}
	tie, hasTie, err := d.doubleVals(tagModelTiepoint)
	if err != nil {
		return err
	}

	if hasScale && hasTie {
		if len(scale) < 2 || len(tie) < 6 {
			return fmt.Errorf("malformed georeferencing tags")
		}
		r.scaleX = scale[0]
		r.scaleY = scale[1]
		// Tiepoint maps raster point (i,j) onto model point (x,y).
		i, j, x, y := tie[0], tie[1], tie[3], tie[4]
		r.originX = x - i*r.scaleX
		r.originY = y + j*r.scaleY
		return nil
	}

	m, hasMatrix, err := d.doubleVals(tagModelTransformation)
	if err != nil {
		return err
	}
	if hasMatrix {
		if len(m) < 16 {
			return fmt.Errorf("malformed ModelTransformation tag")
		}
		if m[1] != 0 || m[4] != 0 {
			return fmt.Errorf("rotated rasters are not supported")
		}
		r.scaleX = m[0]
		r.scaleY = -m[5]
		r.originX = m[3]
		r.originY = m[7]
		return nil
	}

	return fmt.Errorf("no georeferencing tags found, not a GeoTIFF")
}

// applyNoData replaces cells holding the GDAL nodata marker with NaN.
func (d *decoder) applyNoData(r *Raster) {
	s, ok := d.asciiVal(tagGDALNoData)
	if !ok {
		return
	}
	nodata, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return
	}
	if math.IsNaN(nodata) {
		return // NaN cells are already treated as nodata
	}
	for i, v := range r.values {
		if v == nodata {
			r.values[i] = math.NaN()
		}
	}
}

// sampleConverter returns a function decoding one raw sample to float64.
func sampleConverter(bits, format uint32, bo binary.ByteOrder) (func([]byte) float64, error) {
	switch {
	case format == formatUint && bits == 8:
		return func(b []byte) float64 { return float64(b[0]) }, nil
	case format == formatUint && bits == 16:
		return func(b []byte) float64 { return float64(bo.Uint16(b)) }, nil
	case format == formatUint && bits == 32:
		return func(b []byte) float64 { return float64(bo.Uint32(b)) }, nil
	case format == formatInt && bits == 16:
		return func(b []byte) float64 { return float64(int16(bo.Uint16(b))) }, nil
	case format == formatInt && bits == 32:
		return func(b []byte) float64 { return float64(int32(bo.Uint32(b))) }, nil
	case format == formatFloat && bits == 32:
		return func(b []byte) float64 { return float64(math.Float32frombits(bo.Uint32(b))) }, nil
	case format == formatFloat && bits == 64:
		return func(b []byte) float64 { return math.Float64frombits(bo.Uint64(b)) }, nil
	}
	return nil, fmt.Errorf("unsupported sample layout: %d bits, format %d", bits, format)
}

// segmentReader decodes strip or tile segments into the raster grid.
type segmentReader struct {
	decoder     *decoder
	compression uint32
	predictor   uint32
	bytesPer    int
	toFloat     func([]byte) float64
}

func (s *segmentReader) readStrips(r *Raster) error {
	offsets, ok, err := s.decoder.uintVals(tagStripOffsets)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("missing StripOffsets tag")
	}
	counts, ok, err := s.decoder.uintVals(tagStripByteCounts)
	if err != nil {
		return err
	}
	if !ok || len(counts) != len(offsets) {
		return fmt.Errorf("missing or mismatched StripByteCounts tag")
	}
	rowsPerStrip, err := s.decoder.firstUint(tagRowsPerStrip, uint32(r.Height))
	if err != nil {
		return err
	}
	if rowsPerStrip == 0 {
		return fmt.Errorf("RowsPerStrip must be positive")
	}

	for i := range offsets {
		rowStart := i * int(rowsPerStrip)
		rowEnd := min(rowStart+int(rowsPerStrip), r.Height)
		if rowStart >= r.Height {
			break
		}

		raw, err := s.segment(offsets[i], counts[i], r.Width, rowEnd-rowStart)
		if err != nil {
			return fmt.Errorf("strip %d: %w", i, err)
		}
		for row := rowStart; row < rowEnd; row++ {
			s.decodeRow(raw[(row-rowStart)*r.Width*s.bytesPer:], r.values[row*r.Width:(row+1)*r.Width])
		}
	}
	return nil
}

func (s *segmentReader) readTiles(r *Raster) error {
	offsets, ok, err := s.decoder.uintVals(tagTileOffsets)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("missing TileOffsets tag")
	}
	counts, ok, err := s.decoder.uintVals(tagTileByteCounts)
	if err != nil {
		return err
	}
	if !ok || len(counts) != len(offsets) {
		return fmt.Errorf("missing or mismatched TileByteCounts tag")
	}
	tw, err := s.decoder.firstUint(tagTileWidth, 0)
	if err != nil {
		return err
	}
	th, err := s.decoder.firstUint(tagTileLength, 0)
	if err != nil {
		return err
	}
	if tw == 0 || th == 0 {
		return fmt.Errorf("missing tile dimensions")
	}

	tilesAcross := (r.Width + int(tw) - 1) / int(tw)

	for i := range offsets {
		raw, err := s.segment(offsets[i], counts[i], int(tw), int(th))
		if err != nil {
			return fmt.Errorf("tile %d: %w", i, err)
		}

		tileCol := (i % tilesAcross) * int(tw)
		tileRow := (i / tilesAcross) * int(th)
		for ty := 0; ty < int(th); ty++ {
			row := tileRow + ty
			if row >= r.Height {
				break
			}
			cols := min(int(tw), r.Width-tileCol)
			s.decodeRow(raw[ty*int(tw)*s.bytesPer:], r.values[row*r.Width+tileCol:row*r.Width+tileCol+cols])
		}
	}
	return nil
}

// segment decompresses one strip or tile of rows x rowSamples cells and
// reverses the predictor. Edge tiles are clipped by the caller.
func (s *segmentReader) segment(offset, count uint32, rowSamples, rows int) ([]byte, error) {
	if int(offset)+int(count) > len(s.decoder.data) {
		return nil, fmt.Errorf("segment extends past end of file")
	}
	raw := s.decoder.data[offset : offset+count]

	var out []byte
	switch s.compression {
	case compressionNone:
		out = raw
	case compressionDeflate, compressionDeflateLegacy:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("bad deflate stream: %w", err)
		}
		defer zr.Close()
		out, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("failed to inflate segment: %w", err)
		}
	case compressionPackBits:
		out = unpackBits(raw)
	case compressionLZW:
		return nil, fmt.Errorf("LZW compression is not supported")
	default:
		return nil, fmt.Errorf("unsupported compression scheme %d", s.compression)
	}

	if len(out) < rowSamples*rows*s.bytesPer {
		return nil, fmt.Errorf("segment holds %d bytes, want at least %d", len(out), rowSamples*rows*s.bytesPer)
	}
	if s.predictor == 2 {
		out = bytes.Clone(out)
		for row := 0; row < rows; row++ {
			undoHorizontalPredictor(out[row*rowSamples*s.bytesPer:], s.bytesPer, rowSamples, s.decoder.bo)
		}
	}
	return out, nil
}

// decodeRow converts one row of raw samples into float64 cell values.
func (s *segmentReader) decodeRow(raw []byte, dst []float64) {
	for i := range dst {
		dst[i] = s.toFloat(raw[i*s.bytesPer:])
	}
}

// undoHorizontalPredictor reverses horizontal differencing across one row
// of samples, in place.
func undoHorizontalPredictor(data []byte, bytesPer, rowSamples int, bo binary.ByteOrder) {
	// The caller guarantees integer samples of 1, 2 or 4 bytes.
	for i := 1; i < rowSamples; i++ {
		switch bytesPer {
		case 1:
			data[i] += data[i-1]
		case 2:
			bo.PutUint16(data[i*2:], bo.Uint16(data[i*2:])+bo.Uint16(data[(i-1)*2:]))
		case 4:
			bo.PutUint32(data[i*4:], bo.Uint32(data[i*4:])+bo.Uint32(data[(i-1)*4:]))
		}
	}
}

// unpackBits decodes PackBits run-length encoded data.
func unpackBits(src []byte) []byte {
	var out []byte
	for i := 0; i < len(src); {
		n := int8(src[i])
		i++
		switch {
		case n >= 0:
			end := i + int(n) + 1
			if end > len(src) {
				end = len(src)
			}
			out = append(out, src[i:end]...)
			i = end
		case n == -128:
			// noop
		default:
			if i >= len(src) {
				return out
			}
			for j := 0; j < 1-int(n); j++ {
				out = append(out, src[i])
			}
			i++
		}
	}
	return out
}
