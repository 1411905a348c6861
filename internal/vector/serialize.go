package vector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Binary layout: magic "EIVF", version u32, type u8, metric u8, dims u32, then a type-specific body.
// All integers and floats are little-endian.
const (
	indexMagic    = "EIVF"
	formatVersion = uint32(1)
	headerSize    = 4 + 4 + 1 + 1 + 4

	// Upper bounds applied while decoding so a damaged header cannot trigger huge allocations.
	maxDims  = 1 << 16
	maxSlots = 1 << 31
)

const (
	typeCodeIVFPQ uint8 = 1
	typeCodeFlat  uint8 = 2
	typeCodeFAISS uint8 = 3
)

const (
	metricCodeL2 uint8 = 1
	metricCodeIP uint8 = 2
)

type header struct {
	typeCode uint8
	metric   Metric
	dims     int
}

func metricCode(m Metric) uint8 {
	if m == MetricIP {
		return metricCodeIP
	}
	return metricCodeL2
}

func typeName(code uint8) (IndexType, error) {
	switch code {
	case typeCodeIVFPQ:
		return IndexTypeIVFPQ, nil
	case typeCodeFlat:
		return IndexTypeFlat, nil
	case typeCodeFAISS:
		return IndexTypeFAISS, nil
	}
	return "", fmt.Errorf("%w: unknown index type code %d", ErrCorruptIndex, code)
}

func parseHeader(b []byte) (header, error) {
	if len(b) < headerSize || string(b[:4]) != indexMagic {
		return header{}, fmt.Errorf("%w: bad magic", ErrCorruptIndex)
	}
	if v := binary.LittleEndian.Uint32(b[4:8]); v != formatVersion {
		return header{}, fmt.Errorf("%w: unsupported format version %d", ErrCorruptIndex, v)
	}
	h := header{typeCode: b[8], dims: int(binary.LittleEndian.Uint32(b[10:14]))}
	switch b[9] {
	case metricCodeL2:
		h.metric = MetricL2
	case metricCodeIP:
		h.metric = MetricIP
	default:
		return header{}, fmt.Errorf("%w: unknown metric code %d", ErrCorruptIndex, b[9])
	}
	if h.dims <= 0 || h.dims > maxDims {
		return header{}, fmt.Errorf("%w: dimension %d out of range", ErrCorruptIndex, h.dims)
	}
	return h, nil
}

// readHeader reads and checks the header against what the receiving index expects.
func readHeader(r *binReader, typeCode uint8, dims int, metric Metric) error {
	buf := r.bytes(headerSize)
	if r.err != nil {
		return r.err
	}
	h, err := parseHeader(buf)
	if err != nil {
		return err
	}
	if h.typeCode != typeCode {
		return fmt.Errorf("%w: index type code %d, expected %d", ErrCorruptIndex, h.typeCode, typeCode)
	}
	if h.dims != dims {
		return fmt.Errorf("%w: file has %d dimensions, index expects %d", ErrCorruptIndex, h.dims, dims)
	}
	if h.metric != metric {
		return fmt.Errorf("%w: file metric %s, index metric %s", ErrCorruptIndex, h.metric, metric)
	}
	return nil
}

func writeHeader(w *binWriter, typeCode uint8, dims int, metric Metric) {
	w.raw([]byte(indexMagic))
	w.u32(formatVersion)
	w.u8(typeCode)
	w.u8(metricCode(metric))
	w.u32(uint32(dims))
}

// ReadIndex decodes any persisted index, choosing the implementation from the header.
func ReadIndex(r io.Reader) (VectorIndex, error) {
	br := bufio.NewReader(r)
	peek, err := br.Peek(headerSize)
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrCorruptIndex, err)
	}
	h, err := parseHeader(peek)
	if err != nil {
		return nil, err
	}
	kind, err := typeName(h.typeCode)
	if err != nil {
		return nil, err
	}
	idx, err := NewVectorIndex(string(kind), h.dims, h.metric)
	if err != nil {
		return nil, err
	}
	if err := idx.Load(br); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

// binWriter accumulates the first write error so encoders stay linear.
type binWriter struct {
	w   *bufio.Writer
	err error
	buf [8]byte
}

func newBinWriter(w io.Writer) *binWriter {
	return &binWriter{w: bufio.NewWriter(w)}
}

func (b *binWriter) raw(p []byte) {
	if b.err != nil {
		return
	}
	_, b.err = b.w.Write(p)
}

func (b *binWriter) u8(v uint8) {
	b.buf[0] = v
	b.raw(b.buf[:1])
}

func (b *binWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(b.buf[:4], v)
	b.raw(b.buf[:4])
}

func (b *binWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(b.buf[:8], v)
	b.raw(b.buf[:8])
}

func (b *binWriter) bool(v bool) {
	if v {
		b.u8(1)
		return
	}
	b.u8(0)
}

func (b *binWriter) f32s(s []float32) {
	for _, v := range s {
		b.u32(math.Float32bits(v))
	}
}

func (b *binWriter) i32s(s []int32) {
	for _, v := range s {
		b.u32(uint32(v))
	}
}

func (b *binWriter) flush() error {
	if b.err != nil {
		return b.err
	}
	return b.w.Flush()
}

// binReader mirrors binWriter; any short read surfaces as ErrCorruptIndex.
type binReader struct {
	r   io.Reader
	err error
	buf [8]byte
}

func newBinReader(r io.Reader) *binReader {
	return &binReader{r: r}
}

func (b *binReader) fill(p []byte) {
	if b.err != nil {
		return
	}
	if _, err := io.ReadFull(b.r, p); err != nil {
		b.err = fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
}

func (b *binReader) bytes(n int) []byte {
	p := make([]byte, n)
	b.fill(p)
	return p
}

func (b *binReader) u8() uint8 {
	b.fill(b.buf[:1])
	return b.buf[0]
}

func (b *binReader) u32() uint32 {
	b.fill(b.buf[:4])
	return binary.LittleEndian.Uint32(b.buf[:4])
}

func (b *binReader) u64() uint64 {
	b.fill(b.buf[:8])
	return binary.LittleEndian.Uint64(b.buf[:8])
}

func (b *binReader) bool() bool {
	return b.u8() == 1
}

func (b *binReader) f32s(n int) []float32 {
	raw := b.bytes(n * 4)
	if b.err != nil {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

func (b *binReader) i32s(n int) []int32 {
	raw := b.bytes(n * 4)
	if b.err != nil {
		return nil
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

// count reads a u64 length and rejects values above limit.
func (b *binReader) count(limit uint64, what string) int {
	n := b.u64()
	if b.err == nil && n > limit {
		b.err = fmt.Errorf("%w: %s count %d exceeds %d", ErrCorruptIndex, what, n, limit)
	}
	if b.err != nil {
		return 0
	}
	return int(n)
}
