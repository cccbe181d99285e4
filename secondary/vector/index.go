// Package vector defines the capability surface the manager needs from an
// ANN index — the concrete data structures (HNSW/IVF/flat) are an external
// collaborator, out of scope here. Index carries the capability set
// {Upsert, Delete, Search, ApplyLogIndex, SnapshotLogIndex, Status} with
// their setters, plus Len and the NeedRebuild/NeedSave policy hooks, bound
// behind a small method set the same way a Codebook interface bounds a
// concrete faiss codebook.
package vector

import "fmt"

// Metric selects the distance function a concrete Index compares vectors
// with.
type Metric int

const (
	MetricL2 Metric = iota
	MetricInnerProduct
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricInnerProduct:
		return "INNER_PRODUCT"
	default:
		return fmt.Sprintf("Metric(%d)", int(m))
	}
}

// Params describes the region's declared index parameters, used to
// instantiate an empty index. The concrete parameter set belongs to the
// out-of-scope ANN implementation; Params only carries what a factory
// needs to pick one.
type Params struct {
	Dimension int
	Metric    Metric
	// Kind selects the backend a Factory should construct. The manager
	// does not interpret this beyond passing it to the Factory.
	Kind string
}

// Vector is one (id, values) pair — the base-storage record shape.
type Vector struct {
	ID     uint64
	Values []float32
}

// SearchResult is one hit from Search, ordered nearest-first.
type SearchResult struct {
	ID       uint64
	Distance float32
}

// Status mirrors the handle-level status machine at the
// index level: concrete backends report it so the Lifecycle Controller can
// query "is this index healthy enough to serve" independent of the
// manager's own bookkeeping of the same field on the handle.
type Status int

const (
	StatusNone Status = iota
	StatusNormal
	StatusError
)

// Index is the capability set the manager needs from an ANN backend.
// Upsert/Delete/Search are expected to be safe for concurrent use among
// themselves; ApplyLogIndex/SnapshotLogIndex/SetStatus are atomic stores
// visible to all threads.
type Index interface {
	Upsert(vecs []Vector) error
	Delete(ids []uint64) error
	Search(query []float32, k int) ([]SearchResult, error)

	ApplyLogIndex() uint64
	SetApplyLogIndex(uint64)

	SnapshotLogIndex() uint64
	SetSnapshotLogIndex(uint64)

	Status() Status
	SetStatus(Status)

	// Len reports how many live vectors the index currently holds. Used by
	// tests and by the Builder's completion log line.
	Len() int

	// NeedRebuild/NeedSave let the Lifecycle Controller query
	// need_rebuild(lag)/need_save(lag) without itself knowing what "too
	// much lag" means for a given backend — that policy lives with the
	// concrete index implementation.
	NeedRebuild(lag uint64) bool
	NeedSave(lag uint64) bool
}

// Factory constructs a fresh, empty Index for a region. Concrete backends
// (HNSW, IVF, flat) are an out-of-scope external collaborator; the
// manager only calls through this factory.
type Factory interface {
	New(regionID uint64, params Params) (Index, error)
}
