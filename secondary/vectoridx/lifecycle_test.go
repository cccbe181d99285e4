package vectoridx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/vectoridx/secondary/common"
	"github.com/nimbusdb/vectoridx/secondary/vector"
)

type lifecycleFixture struct {
	ctx       common.Context
	engine    *fakeBaseEngine
	meta      *fakeMeta
	registry  *Registry
	snapshots *SnapshotEngine
	lifecycle *Lifecycle
}

func newLifecycleFixture(t *testing.T, factory vector.Factory, logSrc *fakeLogSource) *lifecycleFixture {
	t.Helper()
	engine := newFakeBaseEngine()
	meta := newFakeMeta()
	ctx := common.Context{
		IndexPath:  t.TempDir(),
		BaseEngine: engine,
		MetaReader: meta,
		MetaWriter: meta,
		LogSources: &fakeLogSourceResolver{source: logSrc},
	}

	snapshots, err := NewSnapshotEngine(ctx, factory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = snapshots.Close() })

	registry := NewRegistry()
	builder := NewBuilder(ctx, factory)
	replayer := NewReplayer(ctx)
	lc := NewLifecycle(ctx, factory, registry, builder, replayer, snapshots)

	return &lifecycleFixture{
		ctx: ctx, engine: engine, meta: meta,
		registry: registry, snapshots: snapshots, lifecycle: lc,
	}
}

func TestLifecycleLoadOrBuildColdStartFromBaseData(t *testing.T) {
	f := newLifecycleFixture(t, vector.FlatFactory{}, &fakeLogSource{})
	f.engine.put(EncodeVectorID(1, 1), EncodeVectorValues([]float32{1, 2}))

	region := Region{ID: 1, Params: vector.Params{Dimension: 2}}
	err := f.lifecycle.LoadOrBuild(region)
	require.NoError(t, err)

	h, ok := f.registry.Get(1)
	require.True(t, ok)
	require.Equal(t, StatusNormal, h.Status())
	require.Equal(t, 1, h.Index.Len())
}

func TestLifecycleLoadOrBuildFromSnapshotThenReplaysTail(t *testing.T) {
	logSrc := &fakeLogSource{entries: []common.LogEntry{
		{Index: 6, Requests: []common.LogRequest{
			{Type: common.LogRequestVectorAdd, VectorAdd: []common.VectorWithID{{ID: 9, Values: []float32{9, 9}}}},
		}},
	}}
	f := newLifecycleFixture(t, vector.FlatFactory{}, logSrc)

	region := Region{ID: 1, Params: vector.Params{Dimension: 2}}
	seed := newTestFlatHandle(1)
	require.NoError(t, seed.Index.Upsert([]vector.Vector{{ID: 1, Values: []float32{1, 1}}}))
	seed.SetApplyLogIndex(5)
	_, err := f.snapshots.Save(seed, true)
	require.NoError(t, err)

	err = f.lifecycle.LoadOrBuild(region)
	require.NoError(t, err)

	h, ok := f.registry.Get(1)
	require.True(t, ok)
	require.Equal(t, 2, h.Index.Len())
	require.Equal(t, uint64(6), h.ApplyLogIndex())
}

func TestLifecycleCreateVectorIndexRejectsExistingRegion(t *testing.T) {
	f := newLifecycleFixture(t, vector.FlatFactory{}, &fakeLogSource{})
	region := Region{ID: 1, Params: vector.Params{Dimension: 2}}

	require.NoError(t, f.lifecycle.CreateVectorIndex(region))
	err := f.lifecycle.CreateVectorIndex(region)
	require.Error(t, err)
}

func TestLifecycleRebuildSwapsInNewHandle(t *testing.T) {
	f := newLifecycleFixture(t, vector.FlatFactory{}, &fakeLogSource{})
	region := Region{ID: 1, Params: vector.Params{Dimension: 2}}

	old := newTestFlatHandle(1)
	old.SetStatus(StatusNormal)
	f.registry.Put(1, old)

	f.engine.put(EncodeVectorID(1, 1), EncodeVectorValues([]float32{1, 2}))

	err := f.lifecycle.Rebuild(region, false, false)
	require.NoError(t, err)

	got, ok := f.registry.Get(1)
	require.True(t, ok)
	require.NotSame(t, old, got)
	require.Equal(t, StatusNormal, got.Status())
	require.Equal(t, 1, got.Index.Len())
}

func TestLifecycleRebuildRefusesWhenAlreadyRebuilding(t *testing.T) {
	f := newLifecycleFixture(t, vector.FlatFactory{}, &fakeLogSource{})
	region := Region{ID: 1, Params: vector.Params{Dimension: 2}}

	old := newTestFlatHandle(1)
	old.SetStatus(StatusRebuilding)
	f.registry.Put(1, old)

	err := f.lifecycle.Rebuild(region, false, false)
	require.Error(t, err)
}

// raceFactory simulates a region being deleted by another caller while a
// Rebuild's Builder.Build call is in flight: the side effect fires from
// inside Factory.New, exactly between Rebuild reading the old handle and
// it calling Registry.PutIfExists.
type raceFactory struct {
	inner   vector.Factory
	onBuild func()
}

func (r raceFactory) New(regionID uint64, params vector.Params) (vector.Index, error) {
	if r.onBuild != nil {
		r.onBuild()
	}
	return r.inner.New(regionID, params)
}

func TestLifecycleRebuildDiscardsOnDeleteRace(t *testing.T) {
	f := newLifecycleFixture(t, vector.FlatFactory{}, &fakeLogSource{})
	region := Region{ID: 1, Params: vector.Params{Dimension: 2}}

	old := newTestFlatHandle(1)
	old.SetStatus(StatusNormal)
	f.registry.Put(1, old)

	raced := raceFactory{inner: vector.FlatFactory{}, onBuild: func() {
		f.registry.Erase(1)
	}}
	builder := NewBuilder(f.ctx, raced)
	lc := NewLifecycle(f.ctx, raced, f.registry, builder, NewReplayer(f.ctx), f.snapshots)

	err := lc.Rebuild(region, false, false)
	require.NoError(t, err)

	_, ok := f.registry.Get(1)
	require.False(t, ok)
}

func TestLifecycleRebuildSecondPassAbsorbsEntryThatLandsBetweenPasses(t *testing.T) {
	logSrc := &fakeLogSource{entries: []common.LogEntry{
		{Index: 5, Requests: []common.LogRequest{
			{Type: common.LogRequestVectorAdd, VectorAdd: []common.VectorWithID{{ID: 1, Values: []float32{1, 1}}}},
		}},
	}}
	// After the first GetEntries call (the first-pass replay) computes its
	// result, append an entry that only the second call will see, simulating
	// a write that lands on the log during the first pass/freeze window.
	logSrc.onCall = func(call int, src *fakeLogSource) {
		if call == 1 {
			src.entries = append(src.entries, common.LogEntry{
				Index: 6,
				Requests: []common.LogRequest{
					{Type: common.LogRequestVectorAdd, VectorAdd: []common.VectorWithID{{ID: 2, Values: []float32{2, 2}}}},
				},
			})
		}
	}
	f := newLifecycleFixture(t, vector.FlatFactory{}, logSrc)
	region := Region{ID: 1, Params: vector.Params{Dimension: 2}}

	err := f.lifecycle.Rebuild(region, false, true)
	require.NoError(t, err)
	require.Equal(t, 2, logSrc.calls)

	got, ok := f.registry.Get(1)
	require.True(t, ok)
	require.Equal(t, 2, got.Index.Len())
	require.Equal(t, uint64(6), got.ApplyLogIndex())
}

// failOnCallFactory wraps a factory and fails its Nth New call (1-indexed),
// simulating Builder.Build failing partway through a Rebuild.
type failOnCallFactory struct {
	inner  vector.Factory
	failAt int
	calls  int
}

var errInjectedBuildFailure = errors.New("injected build failure")

func (f *failOnCallFactory) New(regionID uint64, params vector.Params) (vector.Index, error) {
	f.calls++
	if f.calls == f.failAt {
		return nil, errInjectedBuildFailure
	}
	return f.inner.New(regionID, params)
}

func TestLifecycleRebuildAbortRestoresOldHandleOnBuildFailure(t *testing.T) {
	failing := &failOnCallFactory{inner: vector.FlatFactory{}, failAt: 2}
	f := newLifecycleFixture(t, failing, &fakeLogSource{})
	region := Region{ID: 1, Params: vector.Params{Dimension: 2}}

	// First New call: the initial build, succeeds.
	require.NoError(t, f.lifecycle.CreateVectorIndex(region))
	old, ok := f.registry.Get(1)
	require.True(t, ok)
	require.Equal(t, StatusNormal, old.Status())

	// Second New call: Builder.Build inside this Rebuild, fails.
	err := f.lifecycle.Rebuild(region, false, false)
	require.Error(t, err)

	got, ok := f.registry.Get(1)
	require.True(t, ok)
	require.Same(t, old, got)
	require.Equal(t, StatusNormal, got.Status())
	require.True(t, got.Online())
}

func TestLifecycleDeleteVectorIndexRemovesEverything(t *testing.T) {
	f := newLifecycleFixture(t, vector.FlatFactory{}, &fakeLogSource{})
	region := Region{ID: 1, Params: vector.Params{Dimension: 2}}

	require.NoError(t, f.lifecycle.CreateVectorIndex(region))
	h, ok := f.registry.Get(1)
	require.True(t, ok)
	require.NoError(t, f.lifecycle.Save(h, true))

	require.NoError(t, f.lifecycle.DeleteVectorIndex(1))

	_, ok = f.registry.Get(1)
	require.False(t, ok)
	require.Equal(t, SentinelNoSnapshot, f.snapshots.LastSnapshotLogID(1))
	v, err := f.meta.Get(GenKey(1))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestLifecycleScrubSavesWhenLagCrossesThreshold(t *testing.T) {
	f := newLifecycleFixture(t, vector.FlatFactory{}, &fakeLogSource{})
	h := newTestFlatHandle(1)
	h.SetStatus(StatusNormal)
	h.SetApplyLogIndex(1000)
	f.registry.Put(1, h)

	err := f.lifecycle.Scrub()
	require.NoError(t, err)
	require.Equal(t, uint64(1000), f.snapshots.LastSnapshotLogID(1))
	require.Equal(t, StatusNormal, h.Status())
}

func TestLifecycleScrubRebuildsWhenDeletesAccumulate(t *testing.T) {
	f := newLifecycleFixture(t, vector.FlatFactory{}, &fakeLogSource{})
	h := newTestFlatHandle(1)
	h.SetStatus(StatusNormal)

	vecs := make([]vector.Vector, 0, 1000)
	ids := make([]uint64, 0, 1000)
	for i := uint64(0); i < 1000; i++ {
		vecs = append(vecs, vector.Vector{ID: i, Values: []float32{1, 1}})
		ids = append(ids, i)
	}
	require.NoError(t, h.Index.Upsert(vecs))
	require.NoError(t, h.Index.Delete(ids))
	f.registry.Put(1, h)

	err := f.lifecycle.Scrub()
	require.NoError(t, err)

	got, ok := f.registry.Get(1)
	require.True(t, ok)
	require.NotSame(t, h, got)
	require.Equal(t, StatusNormal, got.Status())
}

func TestLifecycleScrubSkipsOfflineOrNonNormalHandles(t *testing.T) {
	f := newLifecycleFixture(t, vector.FlatFactory{}, &fakeLogSource{})
	h := newTestFlatHandle(1)
	h.SetStatus(StatusNormal)
	h.SetOnline(false)
	h.SetApplyLogIndex(10000)
	f.registry.Put(1, h)

	errored := newTestFlatHandle(2)
	errored.SetStatus(StatusError)
	errored.SetApplyLogIndex(10000)
	f.registry.Put(2, errored)

	err := f.lifecycle.Scrub()
	require.NoError(t, err)
	require.Equal(t, SentinelNoSnapshot, f.snapshots.LastSnapshotLogID(1))
	require.Equal(t, SentinelNoSnapshot, f.snapshots.LastSnapshotLogID(2))
}
