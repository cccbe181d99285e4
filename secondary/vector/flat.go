package vector

import (
	"errors"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// FlatIndex is a brute-force, exact-search reference Index. It exists to
// exercise every manager-level operation end to end without depending on
// the out-of-scope HNSW/IVF/faiss backends; it is not meant to
// compete with them on recall/latency at scale, only to satisfy the
// capability set.
//
// Distance computation uses gonum/floats, the vector-math library already
// present (indirectly) in the reference corpus's dreamsxin-wal module,
// rather than a hand-rolled loop — the corpus's way of doing numeric work
// on slices of floats.
type FlatIndex struct {
	mu     sync.RWMutex
	params Params

	vectors map[uint64][]float64

	applyLogIndex    uint64
	snapshotLogIndex uint64
	status           Status

	rebuildAfterDeletes int
	deletesSinceBuild   int
}

var ErrDimensionMismatch = errors.New("vector: dimension mismatch")

// NewFlatIndex constructs an empty flat index for the given parameters.
// It is the default vector.Factory backend used by tests and by
// cmd/vectorindexd.
func NewFlatIndex(params Params) *FlatIndex {
	return &FlatIndex{
		params:              params,
		vectors:             make(map[uint64][]float64),
		status:              StatusNone,
		rebuildAfterDeletes: 1000,
	}
}

// FlatFactory builds FlatIndex instances; its Kind field in Params is
// ignored, so it works as the universal fallback Factory.
type FlatFactory struct{}

func (FlatFactory) New(regionID uint64, params Params) (Index, error) {
	return NewFlatIndex(params), nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func (f *FlatIndex) Upsert(vecs []Vector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range vecs {
		if f.params.Dimension > 0 && len(v.Values) != f.params.Dimension {
			return ErrDimensionMismatch
		}
		f.vectors[v.ID] = toFloat64(v.Values)
	}
	return nil
}

func (f *FlatIndex) Delete(ids []uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if _, ok := f.vectors[id]; ok {
			delete(f.vectors, id)
			f.deletesSinceBuild++
		}
	}
	return nil
}

func (f *FlatIndex) distance(a, b []float64) float64 {
	switch f.params.Metric {
	case MetricInnerProduct:
		return -floats.Dot(a, b)
	default:
		return floats.Distance(a, b, 2)
	}
}

func (f *FlatIndex) Search(query []float32, k int) ([]SearchResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	q := toFloat64(query)
	results := make([]SearchResult, 0, len(f.vectors))
	for id, v := range f.vectors {
		if len(v) != len(q) {
			continue
		}
		results = append(results, SearchResult{ID: id, Distance: float32(f.distance(q, v))})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (f *FlatIndex) ApplyLogIndex() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.applyLogIndex
}

func (f *FlatIndex) SetApplyLogIndex(v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyLogIndex = v
}

func (f *FlatIndex) SnapshotLogIndex() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshotLogIndex
}

func (f *FlatIndex) SetSnapshotLogIndex(v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotLogIndex = v
}

func (f *FlatIndex) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

func (f *FlatIndex) SetStatus(s Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// NeedRebuild reports true once enough deletes have accumulated since the
// last build that a brute-force compaction is worthwhile — real ANN
// backends want a periodic rebuild after heavy deletes for the same
// reason. FlatIndex ignores lag here: deletesSinceBuild reaching
// rebuildAfterDeletes is the only signal it uses.
func (f *FlatIndex) NeedRebuild(lag uint64) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.deletesSinceBuild >= f.rebuildAfterDeletes
}

// NeedSave reports true once apply_log_index has drifted far enough ahead
// of the last snapshot that a fresh snapshot is worth the I/O cost.
func (f *FlatIndex) NeedSave(lag uint64) bool {
	return lag >= 1000
}
