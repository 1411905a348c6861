//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexIVF_c.h>
#include <faiss/c_api/index_factory_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"unsafe"
)

// FAISSIndex builds IVF-PQ through the FAISS C API ("IVF{nlist},PQ{m}x{bits}").
// Slots are FAISS sequential ids, so they match insertion order.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
	metric     Metric
	cfg        TrainConfig
	trained    bool
	mu         sync.RWMutex
}

// NewFAISSIndex creates an untrained FAISS-backed index.
func NewFAISSIndex(dimensions int, metric Metric) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", ErrInvalidConfig)
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	return &FAISSIndex{dimensions: dimensions, metric: metric}, nil
}

// faissLastError returns the last FAISS error message.
func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

func faissMetric(m Metric) C.FaissMetricType {
	if m == MetricIP {
		return C.METRIC_INNER_PRODUCT
	}
	return C.METRIC_L2
}

func flatten(vectors [][]float32, dims int) []float32 {
	out := make([]float32, len(vectors)*dims)
	for i, v := range vectors {
		copy(out[i*dims:(i+1)*dims], v)
	}
	return out
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}

// Metric returns the metric the index ranks by.
func (f *FAISSIndex) Metric() Metric {
	return f.metric
}

// Dimensions returns the vector length.
func (f *FAISSIndex) Dimensions() int {
	return f.dimensions
}

// IsTrained reports whether Train completed.
func (f *FAISSIndex) IsTrained() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.trained
}

// Train creates the FAISS index from the factory string and trains it on sample.
// FAISS ranks by codes only; CodesOnly is implied.
func (f *FAISSIndex) Train(ctx context.Context, sample [][]float32, cfg TrainConfig) error {
	if err := validateTrainConfig(f.dimensions, cfg); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trained {
		return ErrAlreadyTrained
	}
	if err := checkDims(sample, f.dimensions); err != nil {
		return err
	}
	if len(sample) < cfg.Nlist {
		return fmt.Errorf("%w: %d vectors for %d cells", ErrNotEnoughData, len(sample), cfg.Nlist)
	}

	desc := C.CString(fmt.Sprintf("IVF%d,PQ%dx%d", cfg.Nlist, cfg.Segments, cfg.BitsPerSegment))
	defer C.free(unsafe.Pointer(desc))
	var index *C.FaissIndex
	if ret := C.faiss_index_factory(&index, C.int(f.dimensions), desc, faissMetric(f.metric)); ret != 0 {
		return fmt.Errorf("create FAISS index: %s", faissLastError())
	}
	data := flatten(sample, f.dimensions)
	if ret := C.faiss_Index_train(index, C.idx_t(len(sample)), (*C.float)(unsafe.Pointer(&data[0]))); ret != 0 {
		C.faiss_Index_free(index)
		return fmt.Errorf("train FAISS index: %s", faissLastError())
	}
	cfg.CodesOnly = true
	f.index = index
	f.cfg = cfg
	f.trained = true
	return nil
}

// Add appends vectors; FAISS assigns sequential ids.
func (f *FAISSIndex) Add(ctx context.Context, vectors [][]float32, batchSize int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.trained {
		return nil, ErrIndexNotTrained
	}
	if err := checkDims(vectors, f.dimensions); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = len(vectors)
	}
	slots := make([]int64, 0, len(vectors))
	for start := 0; start < len(vectors); start += batchSize {
		if err := ctx.Err(); err != nil {
			return slots, err
		}
		end := min(start+batchSize, len(vectors))
		first := int64(C.faiss_Index_ntotal(f.index))
		data := flatten(vectors[start:end], f.dimensions)
		if ret := C.faiss_Index_add(f.index, C.idx_t(end-start), (*C.float)(unsafe.Pointer(&data[0]))); ret != 0 {
			return slots, fmt.Errorf("add vectors to FAISS index: %s", faissLastError())
		}
		for i := 0; i < end-start; i++ {
			slots = append(slots, first+int64(i))
		}
	}
	return slots, nil
}

// Search runs a batched FAISS search. nprobe is applied to the IVF index first,
// so searches are serialized.
func (f *FAISSIndex) Search(ctx context.Context, queries [][]float32, k, nprobe int) ([]QueryResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidConfig, k)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.trained {
		return nil, ErrIndexNotTrained
	}
	if err := checkDims(queries, f.dimensions); err != nil {
		return nil, err
	}
	results := make([]QueryResult, len(queries))
	ntotal := int(C.faiss_Index_ntotal(f.index))
	if ntotal == 0 || len(queries) == 0 {
		for i := range results {
			results[i] = QueryResult{}
		}
		return results, nil
	}
	if ivf := C.faiss_IndexIVF_cast(f.index); ivf != nil {
		C.faiss_IndexIVF_set_nprobe(ivf, C.size_t(max(1, min(nprobe, f.cfg.Nlist))))
	}

	n := len(queries)
	data := flatten(queries, f.dimensions)
	distances := make([]float32, n*k)
	labels := make([]int64, n*k)
	ret := C.faiss_Index_search(
		f.index,
		C.idx_t(n),
		(*C.float)(unsafe.Pointer(&data[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}
	for q := 0; q < n; q++ {
		hits := make([]Hit, 0, k)
		for j := 0; j < k; j++ {
			if label := labels[q*k+j]; label >= 0 {
				hits = append(hits, Hit{Slot: label, Distance: distances[q*k+j]})
			}
		}
		results[q] = sortHits(f.metric, hits, k)
	}
	return results, nil
}

// Size returns the number of vectors in the FAISS index.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return 0
	}
	return int(C.faiss_Index_ntotal(f.index))
}

// Stats reports the quantizer parameters; FAISS does not expose list sizes here.
func (f *FAISSIndex) Stats() Stats {
	size := f.Size()
	f.mu.RLock()
	defer f.mu.RUnlock()
	s := Stats{
		Type:           f.Type(),
		Metric:         f.metric,
		Dimensions:     f.dimensions,
		Size:           size,
		Trained:        f.trained,
		Nlist:          f.cfg.Nlist,
		Segments:       f.cfg.Segments,
		BitsPerSegment: f.cfg.BitsPerSegment,
	}
	if f.trained {
		perVector := int64((f.cfg.Segments*f.cfg.BitsPerSegment+7)/8 + 8)
		s.MemoryBytes = int64(f.cfg.Nlist*f.dimensions*4) + perVector*int64(size)
		s.CompressionRatio = float64(f.dimensions*4) / float64(perVector)
	}
	return s
}

// Save writes the header and quantizer parameters, then the FAISS blob with a length prefix.
// FAISS serializes only to files, so the blob goes through a temp file.
func (f *FAISSIndex) Save(w io.Writer) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	bw := newBinWriter(w)
	writeHeader(bw, typeCodeFAISS, f.dimensions, f.metric)
	bw.bool(f.trained)
	if f.trained {
		bw.u32(uint32(f.cfg.Nlist))
		bw.u32(uint32(f.cfg.Segments))
		bw.u32(uint32(f.cfg.BitsPerSegment))
		blob, err := f.dumpIndex()
		if err != nil {
			return err
		}
		bw.u64(uint64(len(blob)))
		bw.raw(blob)
	}
	if err := bw.flush(); err != nil {
		return fmt.Errorf("write faiss index: %w", err)
	}
	return nil
}

func (f *FAISSIndex) dumpIndex() ([]byte, error) {
	tmp, err := os.CreateTemp("", "edna-faiss-*.index")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(path)

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	if ret := C.faiss_write_index_fname(f.index, cPath); ret != 0 {
		return nil, fmt.Errorf("failed to save FAISS index: %s", faissLastError())
	}
	return os.ReadFile(path)
}

// Load replaces the index with a blob written by Save.
func (f *FAISSIndex) Load(r io.Reader) error {
	br := newBinReader(r)
	if err := readHeader(br, typeCodeFAISS, f.dimensions, f.metric); err != nil {
		return err
	}
	trained := br.bool()
	var cfg TrainConfig
	var blob []byte
	if trained {
		cfg.Nlist = int(br.u32())
		cfg.Segments = int(br.u32())
		cfg.BitsPerSegment = int(br.u32())
		n := br.count(1<<40, "blob byte")
		blob = br.bytes(n)
	}
	if br.err != nil {
		return br.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	f.trained = false
	if !trained {
		return nil
	}

	tmp, err := os.CreateTemp("", "edna-faiss-*.index")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)
	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	var index *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &index); ret != 0 {
		return fmt.Errorf("%w: failed to load FAISS index: %s", ErrCorruptIndex, faissLastError())
	}
	f.index = index
	f.cfg = cfg
	f.trained = true
	return nil
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}
