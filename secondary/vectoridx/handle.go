package vectoridx

import (
	"sync/atomic"

	"github.com/nimbusdb/vectoridx/secondary/vector"
)

// Region is the opaque region description: an id, the declared ANN index
// parameters, and (implicitly, via the base engine scan bounds derived
// from the id) a range of base-data keys. Region membership, raft
// leadership and split/merge are an out-of-scope external collaborator —
// the manager only ever sees this value, provided by an external
// registry.
type Region struct {
	ID     uint64
	Params vector.Params
}

// Handle is an owning reference to one in-memory ANN index for one
// region. Status/online/apply/snapshot log index are individually atomic
// so upsert/delete/search on the wrapped vector.Index can run
// concurrently with a reader of this bookkeeping: set_status, set_online,
// set_apply_log_index and set_snapshot_log_index are all atomic stores
// visible to all threads.
type Handle struct {
	ID     uint64
	Params vector.Params

	Index vector.Index

	status atomic.Int32
	online atomic.Bool
}

// NewHandle wraps idx for region id, starting in StatusNone and online.
func NewHandle(id uint64, params vector.Params, idx vector.Index) *Handle {
	h := &Handle{ID: id, Params: params, Index: idx}
	h.status.Store(int32(StatusNone))
	h.online.Store(true)
	return h
}

func (h *Handle) Status() HandleStatus {
	return HandleStatus(h.status.Load())
}

// SetStatus stores the new status unconditionally. Callers that must
// enforce the status-machine edges use
// TransitionStatus instead.
func (h *Handle) SetStatus(s HandleStatus) {
	h.status.Store(int32(s))
	h.Index.SetStatus(toVectorStatus(s))
}

// TransitionStatus moves the handle to 'to' only if (from-on-handle, to) is
// a legal edge per CanTransition, returning false (no-op) otherwise. The
// check-then-set is not atomic against a concurrent transition from a
// third party; callers that need that guarantee use BeginRebuild instead.
func (h *Handle) TransitionStatus(to HandleStatus) bool {
	from := h.Status()
	if !CanTransition(from, to) {
		return false
	}
	h.SetStatus(to)
	return true
}

// BeginRebuild atomically moves the handle into StatusRebuilding, but only
// if it is currently in a rebuildable state ({NORMAL, ERROR, NONE}). Unlike
// TransitionStatus, this is a real compare-and-swap on the underlying
// atomic.Int32: it re-reads the status and retries the swap if it lost a
// race against a concurrent transition, but only while the freshly-read
// status is still rebuildable, so exactly one of two concurrent callers
// racing the same handle wins the transition and the other gets false.
func (h *Handle) BeginRebuild() bool {
	for {
		from := h.Status()
		if !rebuildable(from) {
			return false
		}
		if h.status.CompareAndSwap(int32(from), int32(StatusRebuilding)) {
			h.Index.SetStatus(toVectorStatus(StatusRebuilding))
			return true
		}
	}
}

func toVectorStatus(s HandleStatus) vector.Status {
	switch s {
	case StatusNormal:
		return vector.StatusNormal
	case StatusError:
		return vector.StatusError
	default:
		return vector.StatusNone
	}
}

func (h *Handle) Online() bool {
	return h.online.Load()
}

func (h *Handle) SetOnline(v bool) {
	h.online.Store(v)
}

// ApplyLogIndex/SnapshotLogIndex delegate to the wrapped vector.Index,
// which owns the atomic storage; Handle exposes them as a
// convenience so callers don't reach through .Index for every read.

func (h *Handle) ApplyLogIndex() uint64 { return h.Index.ApplyLogIndex() }
func (h *Handle) SetApplyLogIndex(v uint64) { h.Index.SetApplyLogIndex(v) }

func (h *Handle) SnapshotLogIndex() uint64 { return h.Index.SnapshotLogIndex() }
func (h *Handle) SetSnapshotLogIndex(v uint64) { h.Index.SetSnapshotLogIndex(v) }
