package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
)

// On-disk constants shared with FAISS write_index/read_index.
const (
	fourccIDMap   = "IxMp"
	fourccFlatL2  = "IxF2"
	metricL2      = 1
	headerDummy   = int64(1) << 20
	maxDimensions = 1 << 16
)

// ErrFormat is returned by ReadFile for files that are not an IDMap over a flat L2 index.
var ErrFormat = errors.New("unsupported index file format")

// FlatIndex is a pure-Go exact L2 index. Its file is readable by
// faiss.read_index as IndexIDMap wrapping IndexFlatL2.
type FlatIndex struct {
	dimensions int
	ids        []int64
	data       []float32
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{dimensions: dimensions}, nil
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() string {
	return string(IndexTypeFlat)
}

// AddWithIDs appends vectors with the given ids. Nothing is added if any vector has the wrong dimension.
func (f *FlatIndex) AddWithIDs(ctx context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d ids, %d vectors", len(ids), len(vectors))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, vec := range vectors {
		if len(vec) != f.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), f.dimensions)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, ids...)
	for _, vec := range vectors {
		f.data = append(f.data, vec...)
	}
	return nil
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// Dimensions returns the vector dimension.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// IDs returns a copy of the stored ids in insertion order.
func (f *FlatIndex) IDs() []int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]int64(nil), f.ids...)
}

// Vector returns a copy of the i-th stored vector.
func (f *FlatIndex) Vector(i int) []float32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if i < 0 || i >= len(f.ids) {
		return nil
	}
	return append([]float32(nil), f.data[i*f.dimensions:(i+1)*f.dimensions]...)
}

// Close is a no-op for FlatIndex.
func (f *FlatIndex) Close() error {
	return nil
}

// WriteFile persists the index. Layout (little-endian):
//
//	"IxMp" header  "IxF2" header  u64 n*d  float32[n*d]  u64 n  int64[n]
//
// where header is: i32 d, i64 ntotal, i64 1<<20, i64 1<<20, u8 is_trained, i32 metric.
func (f *FlatIndex) WriteFile(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(file)
	if err := f.encode(w); err != nil {
		_ = file.Close()
		return fmt.Errorf("write index: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("write index: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	return nil
}

func (f *FlatIndex) encode(w io.Writer) error {
	ntotal := int64(len(f.ids))
	if _, err := io.WriteString(w, fourccIDMap); err != nil {
		return err
	}
	if err := writeHeader(w, f.dimensions, ntotal); err != nil {
		return err
	}
	if _, err := io.WriteString(w, fourccFlatL2); err != nil {
		return err
	}
	if err := writeHeader(w, f.dimensions, ntotal); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(f.data))); err != nil {
		return err
	}
	if _, err := w.Write(float32SliceToBytes(f.data)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(f.ids))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, f.ids)
}

type indexHeader struct {
	D         int32
	NTotal    int64
	Dummy1    int64
	Dummy2    int64
	IsTrained uint8
	Metric    int32
}

func writeHeader(w io.Writer, d int, ntotal int64) error {
	return binary.Write(w, binary.LittleEndian, indexHeader{
		D:         int32(d),
		NTotal:    ntotal,
		Dummy1:    headerDummy,
		Dummy2:    headerDummy,
		IsTrained: 1,
		Metric:    metricL2,
	})
}

// ReadFile loads an index written by WriteFile (or by FAISS for the same index type).
func ReadFile(path string) (*FlatIndex, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()
	r := bufio.NewReader(file)

	outer, err := readHeader(r, fourccIDMap)
	if err != nil {
		return nil, err
	}
	inner, err := readHeader(r, fourccFlatL2)
	if err != nil {
		return nil, err
	}
	if outer.D != inner.D || outer.NTotal != inner.NTotal {
		return nil, fmt.Errorf("%w: outer and inner headers disagree", ErrFormat)
	}
	d := int(inner.D)
	if d <= 0 || d > maxDimensions || inner.NTotal < 0 {
		return nil, fmt.Errorf("%w: bad header d=%d ntotal=%d", ErrFormat, inner.D, inner.NTotal)
	}

	var floats uint64
	if err := binary.Read(r, binary.LittleEndian, &floats); err != nil {
		return nil, fmt.Errorf("read vector count: %w", err)
	}
	if floats != uint64(inner.NTotal)*uint64(d) {
		return nil, fmt.Errorf("%w: %d floats for %d vectors of %d", ErrFormat, floats, inner.NTotal, d)
	}
	buf := make([]byte, floats*4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read vectors: %w", err)
	}

	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read id count: %w", err)
	}
	if n != uint64(inner.NTotal) {
		return nil, fmt.Errorf("%w: %d ids for %d vectors", ErrFormat, n, inner.NTotal)
	}
	ids := make([]int64, n)
	if err := binary.Read(r, binary.LittleEndian, ids); err != nil {
		return nil, fmt.Errorf("read ids: %w", err)
	}
	return &FlatIndex{dimensions: d, ids: ids, data: bytesToFloat32Slice(buf)}, nil
}

func readHeader(r io.Reader, fourcc string) (indexHeader, error) {
	var h indexHeader
	tag := make([]byte, 4)
	if _, err := io.ReadFull(r, tag); err != nil {
		return h, fmt.Errorf("read %s tag: %w", fourcc, err)
	}
	if string(tag) != fourcc {
		return h, fmt.Errorf("%w: expected %q, found %q", ErrFormat, fourcc, tag)
	}
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("read %s header: %w", fourcc, err)
	}
	if h.Metric != metricL2 {
		return h, fmt.Errorf("%w: metric %d is not L2", ErrFormat, h.Metric)
	}
	return h, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
