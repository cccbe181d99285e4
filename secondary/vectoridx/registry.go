package vectoridx

import (
	"sync"

	"sync/atomic"

	"github.com/benbjohnson/immutable"
)

// Registry is the concurrent region_id → *Handle map (C3). Reads never
// block writers and vice versa: every read takes a
// snapshot of an immutable.Map out of an atomic.Value, and every write
// builds a new immutable.Map from the old one and publishes it with a
// single atomic store — the same pattern dreamsxin-wal/wal.go uses for its
// own hot-reloadable state (`s atomic.Value // *state`, built on
// `immutable.SortedMap`). writeMu serializes writers only; it is never
// held by a reader.
type Registry struct {
	writeMu sync.Mutex
	state   atomic.Value // *immutable.Map[uint64, *Handle]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.state.Store(immutable.NewMap[uint64, *Handle](nil))
	return r
}

func (r *Registry) snapshot() *immutable.Map[uint64, *Handle] {
	return r.state.Load().(*immutable.Map[uint64, *Handle])
}

// Get returns the handle registered for id, or (nil, false).
func (r *Registry) Get(id uint64) (*Handle, bool) {
	return r.snapshot().Get(id)
}

// Put registers handle under id unconditionally, replacing any existing
// entry"). Invariant 1 (at most one handle
// per region_id, replacement atomic) follows from the single atomic store.
func (r *Registry) Put(id uint64, handle *Handle) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	next := r.snapshot().Set(id, handle)
	r.state.Store(next)
}

// PutIfExists installs handle under id only if a prior entry existed,
// returning false otherwise without modifying the registry. This is the
// guard Rebuild uses to refuse swapping a freshly
// built handle into a slot that was concurrently deleted.
func (r *Registry) PutIfExists(id uint64, handle *Handle) bool {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	cur := r.snapshot()
	if _, ok := cur.Get(id); !ok {
		return false
	}
	r.state.Store(cur.Set(id, handle))
	return true
}

// Erase removes id's entry, if any.
func (r *Registry) Erase(id uint64) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	cur := r.snapshot()
	if _, ok := cur.Get(id); !ok {
		return
	}
	r.state.Store(cur.Delete(id))
}

// GetAllValues returns every registered handle. The slice is a
// point-in-time snapshot; entries may be stale the instant this returns,
// which callers (Scrub) are expected to tolerate.
func (r *Registry) GetAllValues() []*Handle {
	snap := r.snapshot()
	out := make([]*Handle, 0, snap.Len())
	itr := snap.Iterator()
	for !itr.Done() {
		_, v, ok := itr.Next()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

// Len reports the number of registered regions.
func (r *Registry) Len() int {
	return r.snapshot().Len()
}
