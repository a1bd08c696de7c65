package index

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/viant/corpusdedup/vector"
)

// Container layout:
//
//	0..3   kind magic (e.g. "BRF1", "HNS1", "COV1")
//	4..11  payload length (uint64)
//	12..19 xxhash64 of payload
//	20..   payload
const containerHeader = 20

// Kind identifies an index implementation inside a container.
type Kind string

const (
	KindBruteForce Kind = "BRF1"
	KindHNSW       Kind = "HNS1"
	KindCover      Kind = "COV1"
)

// Seal wraps payload in a container tagged with kind.
func Seal(kind Kind, payload []byte) []byte {
	out := make([]byte, containerHeader, containerHeader+len(payload))
	copy(out[:4], kind)
	binary.LittleEndian.PutUint64(out[4:12], uint64(len(payload)))
	binary.LittleEndian.PutUint64(out[12:20], xxhash.Sum64(payload))
	return append(out, payload...)
}

// Open validates a container of the expected kind and returns its payload.
func Open(kind Kind, data []byte) ([]byte, error) {
	got, err := KindOf(data)
	if err != nil {
		return nil, err
	}
	if got != kind {
		return nil, fmt.Errorf("%w: kind %q, want %q", ErrCorrupt, got, kind)
	}
	n := binary.LittleEndian.Uint64(data[4:12])
	if uint64(len(data)-containerHeader) != n {
		return nil, fmt.Errorf("%w: payload length %d, header says %d", ErrCorrupt, len(data)-containerHeader, n)
	}
	payload := data[containerHeader:]
	if xxhash.Sum64(payload) != binary.LittleEndian.Uint64(data[12:20]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return payload, nil
}

// KindOf reports the kind tag of a container.
func KindOf(data []byte) (Kind, error) {
	if len(data) < containerHeader {
		return "", fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}
	switch k := Kind(data[:4]); k {
	case KindBruteForce, KindHNSW, KindCover:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrCorrupt, string(data[:4]))
	}
}

// Writer appends little-endian primitives to a payload buffer.
type Writer struct{ Buf []byte }

func (w *Writer) U32(v uint32)     { w.Buf = binary.LittleEndian.AppendUint32(w.Buf, v) }
func (w *Writer) U64(v uint64)     { w.Buf = binary.LittleEndian.AppendUint64(w.Buf, v) }
func (w *Writer) I64(v int64)      { w.U64(uint64(v)) }
func (w *Writer) F32s(v []float32) { w.Buf = vector.AppendEmbedding(w.Buf, v) }

// Reader consumes a payload written by Writer. The first out-of-bounds read
// latches Err and every later read returns zero values.
type Reader struct {
	buf []byte
	off int
	Err error
}

// NewReader returns a Reader over payload.
func NewReader(payload []byte) *Reader { return &Reader{buf: payload} }

func (r *Reader) take(n int) []byte {
	if r.Err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.Err = fmt.Errorf("%w: truncated payload at offset %d", ErrCorrupt, r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) U32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *Reader) U64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *Reader) I64() int64 { return int64(r.U64()) }

// F32s reads n float32 values.
func (r *Reader) F32s(n int) []float32 {
	b := r.take(n * 4)
	if b == nil {
		return nil
	}
	out, err := vector.DecodeEmbedding(b)
	if err != nil {
		r.Err = fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return out
}

// Done reports an error when bytes remain unread or a read failed.
func (r *Reader) Done() error {
	if r.Err != nil {
		return r.Err
	}
	if r.off != len(r.buf) {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(r.buf)-r.off)
	}
	return nil
}
