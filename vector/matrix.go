package vector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/viant/corpusdedup/internal/fsutil"
)

// ErrCorruptMatrix reports a matrix file whose header, size or checksum does
// not validate. Callers must rebuild the cache rather than read past it.
var ErrCorruptMatrix = errors.New("vector: corrupt matrix file")

const (
	// Matrix file header:
	//   0..7   magic "CDMAT002"
	//   8..15  dim (uint64)
	//   16..23 rows (uint64)
	//   24..31 xxhash64 of the payload
	//   32..39 source digest (uint64)
	matrixHeaderSize = 40
)

var matrixMagic = [8]byte{'C', 'D', 'M', 'A', 'T', '0', '0', '2'}

// Matrix is a dense row-major N x D float32 array. Row i holds the embedding
// of corpus item i in canonical corpus order.
type Matrix struct {
	Dim  int
	Data []float32
	// Source identifies the inputs the rows were computed from; zero when
	// unknown.
	Source uint64
}

// NewMatrix copies rows into a Matrix. All rows must share one dimension.
func NewMatrix(rows [][]float32) (*Matrix, error) {
	if len(rows) == 0 {
		return &Matrix{}, nil
	}
	dim := len(rows[0])
	data := make([]float32, 0, len(rows)*dim)
	for i, r := range rows {
		if len(r) != dim {
			return nil, fmt.Errorf("vector: row %d has dim %d, want %d", i, len(r), dim)
		}
		data = append(data, r...)
	}
	return &Matrix{Dim: dim, Data: data}, nil
}

// Len returns the number of rows.
func (m *Matrix) Len() int {
	if m == nil || m.Dim == 0 {
		return 0
	}
	return len(m.Data) / m.Dim
}

// Row returns a view of row i. The view aliases the matrix storage and must
// be treated as read-only.
func (m *Matrix) Row(i int) []float32 {
	return m.Data[i*m.Dim : (i+1)*m.Dim : (i+1)*m.Dim]
}

// Rows returns read-only views of every row.
func (m *Matrix) Rows() [][]float32 {
	out := make([][]float32, m.Len())
	for i := range out {
		out[i] = m.Row(i)
	}
	return out
}

// Fingerprint digests the dimension and every row, so two matrices share a
// fingerprint only when their contents are identical.
func (m *Matrix) Fingerprint() string {
	d := xxhash.New()
	var dim [8]byte
	binary.LittleEndian.PutUint64(dim[:], uint64(m.Dim))
	_, _ = d.Write(dim[:])
	buf := make([]byte, 0, m.Dim*4)
	for i := 0; i < m.Len(); i++ {
		buf = AppendEmbedding(buf[:0], m.Row(i))
		_, _ = d.Write(buf)
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// NormalizeRows L2-normalises every row in place and returns the number of
// zero rows that could not be normalised.
func (m *Matrix) NormalizeRows() int {
	zero := 0
	for i := 0; i < m.Len(); i++ {
		if !Normalize(m.Row(i)) {
			zero++
		}
	}
	return zero
}

// WriteMatrixFile persists m to path through a temporary file and an atomic
// rename.
func WriteMatrixFile(path string, m *Matrix) error {
	payload, err := EncodeEmbedding(m.Data)
	if err != nil {
		return err
	}
	return fsutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		var hdr [matrixHeaderSize]byte
		copy(hdr[:8], matrixMagic[:])
		binary.LittleEndian.PutUint64(hdr[8:16], uint64(m.Dim))
		binary.LittleEndian.PutUint64(hdr[16:24], uint64(m.Len()))
		binary.LittleEndian.PutUint64(hdr[24:32], xxhash.Sum64(payload))
		binary.LittleEndian.PutUint64(hdr[32:40], m.Source)
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		_, err := w.Write(payload)
		return err
	})
}

// ReadMatrixFile loads a matrix written by WriteMatrixFile. A missing file
// surfaces as an error satisfying errors.Is(err, os.ErrNotExist).
func ReadMatrixFile(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	r := bufio.NewReaderSize(f, 1<<20)
	var hdr [matrixHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %s: short header", ErrCorruptMatrix, path)
	}
	var mg [8]byte
	copy(mg[:], hdr[:8])
	if mg != matrixMagic {
		return nil, fmt.Errorf("%w: %s: magic mismatch", ErrCorruptMatrix, path)
	}
	dim := binary.LittleEndian.Uint64(hdr[8:16])
	rows := binary.LittleEndian.Uint64(hdr[16:24])
	sum := binary.LittleEndian.Uint64(hdr[24:32])
	source := binary.LittleEndian.Uint64(hdr[32:40])
	want := int64(matrixHeaderSize) + int64(dim*rows*4)
	if info.Size() != want {
		return nil, fmt.Errorf("%w: %s: size %d, header implies %d", ErrCorruptMatrix, path, info.Size(), want)
	}
	payload := make([]byte, dim*rows*4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptMatrix, path, err)
	}
	if xxhash.Sum64(payload) != sum {
		return nil, fmt.Errorf("%w: %s: checksum mismatch", ErrCorruptMatrix, path)
	}
	data, err := DecodeEmbedding(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptMatrix, path, err)
	}
	return &Matrix{Dim: int(dim), Data: data, Source: source}, nil
}
