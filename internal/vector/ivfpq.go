package vector

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// IVFPQIndex is an inverted-file index with product-quantized residuals.
//
// Training fixes a coarse quantizer of Nlist centroids and, for each of Segments
// sub-vectors, a codebook of 2^BitsPerSegment codewords learned on residuals
// (vector minus its coarse centroid). Each added vector is stored as its cell id and
// one byte per segment. Queries visit the nprobe best cells and score candidates with
// per-segment lookup tables (asymmetric distance computation).
type IVFPQIndex struct {
	mu sync.RWMutex

	dims   int
	metric Metric

	trained  bool
	nlist    int
	segments int
	bits     int
	ksub     int
	dsub     int
	refine   bool

	centroids [][]float32
	codebooks [][]float32 // per segment, ksub rows of dsub values
	codeNorms [][]float32 // per segment, squared norm of each codeword

	lists  [][]int64 // cell -> slots in insertion order
	assign []int32   // slot -> cell
	codes  []byte    // slot*segments
	raw    []float32 // slot*dims, only with refine
}

// NewIVFPQIndex creates an untrained IVF-PQ index.
func NewIVFPQIndex(dims int, metric Metric) (*IVFPQIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", ErrInvalidConfig)
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	return &IVFPQIndex{dims: dims, metric: metric}, nil
}

func validateTrainConfig(dims int, cfg TrainConfig) error {
	if cfg.Nlist < 1 {
		return fmt.Errorf("%w: nlist must be >= 1, got %d", ErrInvalidConfig, cfg.Nlist)
	}
	if cfg.Segments < 1 || dims%cfg.Segments != 0 {
		return fmt.Errorf("%w: %d segments do not divide %d dimensions", ErrInvalidConfig, cfg.Segments, dims)
	}
	if cfg.BitsPerSegment < 1 || cfg.BitsPerSegment > 8 {
		return fmt.Errorf("%w: bits per segment must be in [1,8], got %d", ErrInvalidConfig, cfg.BitsPerSegment)
	}
	return nil
}

// Type returns the index type identifier.
func (x *IVFPQIndex) Type() string {
	return string(IndexTypeIVFPQ)
}

// Metric returns the metric the index ranks by.
func (x *IVFPQIndex) Metric() Metric {
	return x.metric
}

// Dimensions returns the vector length.
func (x *IVFPQIndex) Dimensions() int {
	return x.dims
}

// IsTrained reports whether the quantizers are fixed.
func (x *IVFPQIndex) IsTrained() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.trained
}

// Size returns the number of slots.
func (x *IVFPQIndex) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.assign)
}

// Train learns the coarse centroids and the residual codebooks from sample.
func (x *IVFPQIndex) Train(ctx context.Context, sample [][]float32, cfg TrainConfig) error {
	if err := validateTrainConfig(x.dims, cfg); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.trained {
		return ErrAlreadyTrained
	}
	if err := checkDims(sample, x.dims); err != nil {
		return err
	}
	if len(sample) < cfg.Nlist {
		return fmt.Errorf("%w: %d vectors for %d cells", ErrNotEnoughData, len(sample), cfg.Nlist)
	}

	centroids, err := kmeans(ctx, sample, cfg.Nlist, kmeansIterations)
	if err != nil {
		return fmt.Errorf("train coarse quantizer: %w", err)
	}

	ksub := 1 << cfg.BitsPerSegment
	dsub := x.dims / cfg.Segments
	residuals := make([][]float32, len(sample))
	for i, v := range sample {
		c := centroids[nearestCentroid(x.metric, v, centroids)]
		r := make([]float32, x.dims)
		for d := range r {
			r[d] = v[d] - c[d]
		}
		residuals[i] = r
	}

	codebooks := make([][]float32, cfg.Segments)
	for m := 0; m < cfg.Segments; m++ {
		sub := make([][]float32, len(residuals))
		for i, r := range residuals {
			sub[i] = r[m*dsub : (m+1)*dsub]
		}
		words, err := kmeans(ctx, padSamples(sub, ksub), ksub, kmeansIterations)
		if err != nil {
			return fmt.Errorf("train segment %d: %w", m, err)
		}
		flat := make([]float32, ksub*dsub)
		for k, w := range words {
			copy(flat[k*dsub:(k+1)*dsub], w)
		}
		codebooks[m] = flat
	}

	x.nlist = cfg.Nlist
	x.segments = cfg.Segments
	x.bits = cfg.BitsPerSegment
	x.ksub = ksub
	x.dsub = dsub
	x.refine = !cfg.CodesOnly
	x.centroids = centroids
	x.codebooks = codebooks
	x.codeNorms = codewordNorms(codebooks, ksub, dsub)
	x.lists = make([][]int64, cfg.Nlist)
	x.trained = true
	return nil
}

func codewordNorms(codebooks [][]float32, ksub, dsub int) [][]float32 {
	norms := make([][]float32, len(codebooks))
	for m, cb := range codebooks {
		n := make([]float32, ksub)
		for k := 0; k < ksub; k++ {
			w := cb[k*dsub : (k+1)*dsub]
			n[k] = blas32.Dot(vec32(w), vec32(w))
		}
		norms[m] = n
	}
	return norms
}

// segmentDots fills dots[k] = <codeword k of segment m, sub> for all k.
func (x *IVFPQIndex) segmentDots(m int, sub, dots []float32) {
	blas32.Gemv(
		blas.NoTrans,
		1,
		blas32.General{Rows: x.ksub, Cols: x.dsub, Stride: x.dsub, Data: x.codebooks[m]},
		blas32.Vector{N: x.dsub, Inc: 1, Data: sub},
		0,
		blas32.Vector{N: x.ksub, Inc: 1, Data: dots},
	)
}

// encode returns the coarse cell of v and writes the PQ code of its residual into code.
func (x *IVFPQIndex) encode(v []float32, code []byte) int32 {
	cell := nearestCentroid(x.metric, v, x.centroids)
	c := x.centroids[cell]
	residual := make([]float32, x.dims)
	for d := range residual {
		residual[d] = v[d] - c[d]
	}
	dots := make([]float32, x.ksub)
	for m := 0; m < x.segments; m++ {
		sub := residual[m*x.dsub : (m+1)*x.dsub]
		x.segmentDots(m, sub, dots)
		norms := x.codeNorms[m]
		best, bestDist := 0, norms[0]-2*dots[0]
		for k := 1; k < x.ksub; k++ {
			// ||sub||² is common to every codeword and omitted.
			if d := norms[k] - 2*dots[k]; d < bestDist {
				best, bestDist = k, d
			}
		}
		code[m] = byte(best)
	}
	return int32(cell)
}

// Add encodes vectors in batches of batchSize and appends them. Slots are contiguous
// and returned in input order. Every vector is checked before any is encoded.
func (x *IVFPQIndex) Add(ctx context.Context, vectors [][]float32, batchSize int) ([]int64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.trained {
		return nil, ErrIndexNotTrained
	}
	if err := checkDims(vectors, x.dims); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = len(vectors)
	}

	slots := make([]int64, 0, len(vectors))
	for start := 0; start < len(vectors); start += batchSize {
		end := min(start+batchSize, len(vectors))
		batch := vectors[start:end]

		cells := make([]int32, len(batch))
		codes := make([]byte, len(batch)*x.segments)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i, v := range batch {
			i, v := i, v
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				cells[i] = x.encode(v, codes[i*x.segments:(i+1)*x.segments])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return slots, fmt.Errorf("encode batch at %d: %w", start, err)
		}

		for i, cell := range cells {
			slot := int64(len(x.assign))
			x.assign = append(x.assign, cell)
			x.lists[cell] = append(x.lists[cell], slot)
			x.codes = append(x.codes, codes[i*x.segments:(i+1)*x.segments]...)
			if x.refine {
				x.raw = append(x.raw, batch[i]...)
			}
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

// Search returns the k best hits per query from the nprobe best cells.
// An index with no vectors yields an empty result per query.
func (x *IVFPQIndex) Search(ctx context.Context, queries [][]float32, k, nprobe int) ([]QueryResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidConfig, k)
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if !x.trained {
		return nil, ErrIndexNotTrained
	}
	if err := checkDims(queries, x.dims); err != nil {
		return nil, err
	}
	results := make([]QueryResult, len(queries))
	if len(x.assign) == 0 {
		for i := range results {
			results[i] = QueryResult{}
		}
		return results, nil
	}
	nprobe = max(1, min(nprobe, x.nlist))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = x.searchOne(q, k, nprobe)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// rankCells orders coarse cells best first; equal distances keep the lower cell first.
func (x *IVFPQIndex) rankCells(q []float32) []int {
	dist := make([]float32, x.nlist)
	order := make([]int, x.nlist)
	for c, cent := range x.centroids {
		dist[c] = Distance(x.metric, q, cent)
		order[c] = c
	}
	sort.SliceStable(order, func(i, j int) bool {
		return better(x.metric, dist[order[i]], dist[order[j]])
	})
	return order
}

func (x *IVFPQIndex) searchOne(q []float32, k, nprobe int) QueryResult {
	cells := x.rankCells(q)[:nprobe]
	var candidates []Hit
	table := make([]float32, x.segments*x.ksub)
	residual := make([]float32, x.dims)

	for _, cell := range cells {
		list := x.lists[cell]
		if len(list) == 0 {
			continue
		}
		if x.refine {
			for _, slot := range list {
				v := x.raw[int(slot)*x.dims : (int(slot)+1)*x.dims]
				candidates = append(candidates, Hit{Slot: slot, Distance: Distance(x.metric, q, v)})
			}
			continue
		}
		base := x.distanceTable(q, cell, residual, table)
		for _, slot := range list {
			code := x.codes[int(slot)*x.segments : (int(slot)+1)*x.segments]
			d := base
			for m, b := range code {
				d += table[m*x.ksub+int(b)]
			}
			candidates = append(candidates, Hit{Slot: slot, Distance: d})
		}
	}
	return sortHits(x.metric, candidates, k)
}

// distanceTable fills table for one probed cell and returns the constant term.
// L2: table[m][k] = ||r_m - w_mk||² with r = q - c, constant 0.
// IP: table[m][k] = <q_m, w_mk>, constant <q, c>.
func (x *IVFPQIndex) distanceTable(q []float32, cell int, residual, table []float32) float32 {
	c := x.centroids[cell]
	if x.metric == MetricIP {
		for m := 0; m < x.segments; m++ {
			x.segmentDots(m, q[m*x.dsub:(m+1)*x.dsub], table[m*x.ksub:(m+1)*x.ksub])
		}
		return InnerProduct(q, c)
	}
	for d := range residual {
		residual[d] = q[d] - c[d]
	}
	for m := 0; m < x.segments; m++ {
		sub := residual[m*x.dsub : (m+1)*x.dsub]
		row := table[m*x.ksub : (m+1)*x.ksub]
		x.segmentDots(m, sub, row)
		subNorm := blas32.Dot(vec32(sub), vec32(sub))
		norms := x.codeNorms[m]
		for k := range row {
			d := subNorm + norms[k] - 2*row[k]
			if d < 0 {
				d = 0
			}
			row[k] = d
		}
	}
	return 0
}

// Stats reports list balance and memory use.
func (x *IVFPQIndex) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	s := Stats{
		Type:           x.Type(),
		Metric:         x.metric,
		Dimensions:     x.dims,
		Size:           len(x.assign),
		Trained:        x.trained,
		Nlist:          x.nlist,
		Segments:       x.segments,
		BitsPerSegment: x.bits,
		Refine:         x.refine,
	}
	if !x.trained {
		return s
	}
	s.MinListSize = len(x.lists[0])
	for _, l := range x.lists {
		s.MinListSize = min(s.MinListSize, len(l))
		s.MaxListSize = max(s.MaxListSize, len(l))
		if len(l) == 0 {
			s.EmptyLists++
		}
	}
	perVector := int64(x.segments + 4 + 8) // code, cell id, list entry
	if x.refine {
		perVector += int64(x.dims * 4)
	}
	quantizers := int64(x.nlist*x.dims*4 + x.segments*x.ksub*(x.dsub+1)*4)
	s.MemoryBytes = quantizers + perVector*int64(s.Size)
	s.CompressionRatio = float64(x.dims*4) / float64(perVector)
	return s
}

// Save writes the index in the versioned binary format.
func (x *IVFPQIndex) Save(w io.Writer) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	bw := newBinWriter(w)
	writeHeader(bw, typeCodeIVFPQ, x.dims, x.metric)
	bw.bool(x.trained)
	if x.trained {
		bw.u32(uint32(x.nlist))
		bw.u32(uint32(x.segments))
		bw.u32(uint32(x.bits))
		bw.bool(x.refine)
		for _, c := range x.centroids {
			bw.f32s(c)
		}
		for _, cb := range x.codebooks {
			bw.f32s(cb)
		}
		bw.u64(uint64(len(x.assign)))
		bw.i32s(x.assign)
		bw.raw(x.codes)
		if x.refine {
			bw.f32s(x.raw)
		}
	}
	if err := bw.flush(); err != nil {
		return fmt.Errorf("write ivfpq index: %w", err)
	}
	return nil
}

// Load replaces the index contents with a blob written by Save.
func (x *IVFPQIndex) Load(r io.Reader) error {
	br := newBinReader(r)
	if err := readHeader(br, typeCodeIVFPQ, x.dims, x.metric); err != nil {
		return err
	}
	fresh := &IVFPQIndex{dims: x.dims, metric: x.metric}
	fresh.trained = br.bool()
	if fresh.trained {
		cfg := TrainConfig{
			Nlist:          int(br.u32()),
			Segments:       int(br.u32()),
			BitsPerSegment: int(br.u32()),
		}
		fresh.refine = br.bool()
		if br.err != nil {
			return br.err
		}
		if err := validateTrainConfig(x.dims, cfg); err != nil || cfg.Nlist > maxSlots/x.dims {
			return fmt.Errorf("%w: bad quantizer parameters %+v", ErrCorruptIndex, cfg)
		}
		fresh.nlist = cfg.Nlist
		fresh.segments = cfg.Segments
		fresh.bits = cfg.BitsPerSegment
		fresh.ksub = 1 << cfg.BitsPerSegment
		fresh.dsub = x.dims / cfg.Segments

		fresh.centroids = make([][]float32, fresh.nlist)
		for c := range fresh.centroids {
			fresh.centroids[c] = br.f32s(x.dims)
		}
		fresh.codebooks = make([][]float32, fresh.segments)
		for m := range fresh.codebooks {
			fresh.codebooks[m] = br.f32s(fresh.ksub * fresh.dsub)
		}
		n := br.count(maxSlots/uint64(x.dims), "slot")
		fresh.assign = br.i32s(n)
		fresh.codes = br.bytes(n * fresh.segments)
		if fresh.refine {
			fresh.raw = br.f32s(n * x.dims)
		}
		if br.err != nil {
			return br.err
		}
		fresh.codeNorms = codewordNorms(fresh.codebooks, fresh.ksub, fresh.dsub)
		fresh.lists = make([][]int64, fresh.nlist)
		for slot, cell := range fresh.assign {
			if cell < 0 || int(cell) >= fresh.nlist {
				return fmt.Errorf("%w: slot %d assigned to cell %d", ErrCorruptIndex, slot, cell)
			}
			fresh.lists[cell] = append(fresh.lists[cell], int64(slot))
		}
	}
	if br.err != nil {
		return br.err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.trained = fresh.trained
	x.nlist, x.segments, x.bits = fresh.nlist, fresh.segments, fresh.bits
	x.ksub, x.dsub, x.refine = fresh.ksub, fresh.dsub, fresh.refine
	x.centroids, x.codebooks, x.codeNorms = fresh.centroids, fresh.codebooks, fresh.codeNorms
	x.lists, x.assign, x.codes, x.raw = fresh.lists, fresh.assign, fresh.codes, fresh.raw
	return nil
}

// Close releases nothing; the index is garbage collected.
func (x *IVFPQIndex) Close() error {
	return nil
}
