package vectoridx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/vectoridx/secondary/common"
	"github.com/nimbusdb/vectoridx/secondary/vector"
)

func newTestSnapshotEngine(t *testing.T) *SnapshotEngine {
	t.Helper()
	ctx := common.Context{IndexPath: t.TempDir()}
	e, err := NewSnapshotEngine(ctx, vector.FlatFactory{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestSnapshotSaveAndLoadRoundTrip(t *testing.T) {
	e := newTestSnapshotEngine(t)
	region := Region{ID: 1, Params: vector.Params{Dimension: 2}}

	h := newTestFlatHandle(region.ID)
	require.NoError(t, h.Index.Upsert([]vector.Vector{
		{ID: 1, Values: []float32{1, 2}},
		{ID: 2, Values: []float32{3, 4}},
	}))
	h.SetApplyLogIndex(50)

	logIndex, err := e.Save(h, false)
	require.NoError(t, err)
	require.Equal(t, uint64(50), logIndex)

	loaded, err := e.Load(region)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, 2, loaded.Index.Len())
	require.Equal(t, uint64(50), loaded.ApplyLogIndex())
	require.Equal(t, uint64(50), loaded.SnapshotLogIndex())
}

func TestSnapshotLoadWithNoSnapshotReturnsNil(t *testing.T) {
	e := newTestSnapshotEngine(t)

	loaded, err := e.Load(Region{ID: 99, Params: vector.Params{Dimension: 2}})
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestSnapshotSaveRefusesOverwriteWhenDisallowed(t *testing.T) {
	e := newTestSnapshotEngine(t)
	h := newTestFlatHandle(1)
	h.SetApplyLogIndex(1)

	_, err := e.Save(h, false)
	require.NoError(t, err)

	_, err = e.Save(h, false)
	require.Error(t, err)

	_, err = e.Save(h, true)
	require.NoError(t, err)
}

func TestLastSnapshotLogIDSentinelWhenAbsent(t *testing.T) {
	e := newTestSnapshotEngine(t)
	require.Equal(t, SentinelNoSnapshot, e.LastSnapshotLogID(123))
}

func TestLastSnapshotLogIDAfterSave(t *testing.T) {
	e := newTestSnapshotEngine(t)
	h := newTestFlatHandle(1)
	h.SetApplyLogIndex(17)

	_, err := e.Save(h, true)
	require.NoError(t, err)
	require.Equal(t, uint64(17), e.LastSnapshotLogID(1))
}

func TestSnapshotRemoveAll(t *testing.T) {
	e := newTestSnapshotEngine(t)
	h := newTestFlatHandle(1)
	h.SetApplyLogIndex(1)

	_, err := e.Save(h, true)
	require.NoError(t, err)

	require.NoError(t, e.RemoveAll(1))
	require.Equal(t, SentinelNoSnapshot, e.LastSnapshotLogID(1))
}
