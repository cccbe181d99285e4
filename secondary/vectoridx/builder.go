package vectoridx

import (
	"github.com/nimbusdb/vectoridx/secondary/common"
	"github.com/nimbusdb/vectoridx/secondary/logging"
	"github.com/nimbusdb/vectoridx/secondary/vector"
)

// Builder constructs a fresh Handle from base data (C4). Base data is the
// authoritative source for the vector *set*; WAL replay (C5) subsequently
// brings the index up to the latest *log position*.
type Builder struct {
	ctx     common.Context
	factory vector.Factory
}

// NewBuilder returns a Builder using factory to instantiate empty indexes
// and ctx for base-engine access and the metadata reader.
func NewBuilder(ctx common.Context, factory vector.Factory) *Builder {
	return &Builder{ctx: ctx, factory: factory}
}

// Build scans the region's base data, instantiates and seeds a fresh
// index, and returns the resulting Handle, or nil on a fatal error
// (scan/decode/upsert failure — not a per-record parse failure, which is
// skipped with a warning instead).
func (b *Builder) Build(region Region) *Handle {
	log := logging.With("region_id", region.ID)

	// Step 1: scan bounds via Codec.
	lower, upper := VectorScanBounds(region.ID)

	// Step 2: instantiate an empty index via the region's declared params.
	idx, err := b.factory.New(region.ID, region.Params)
	if err != nil {
		log.Errorf("Build: new index failed: %v", err)
		return nil
	}

	// Step 3: seed (snapshot_log_index, apply_log_index) from the
	// metadata store; missing record defaults both to 0, a decode failure
	// fails the build outright.
	snapshotLogIndex, applyLogIndex, err := LogIndices(b.ctx.MetaReader, region.ID)
	if err != nil {
		log.Errorf("Build: read metadata failed: %v", err)
		return nil
	}
	idx.SetSnapshotLogIndex(snapshotLogIndex)
	idx.SetApplyLogIndex(applyLogIndex)

	// Steps 4-5: scan [lower, upper) in order, skip bad records with a
	// warning, upsert in batches. Batching is a performance choice only
	//; correctness does not depend on batch size.
	batch := make([]vector.Vector, 0, b.ctx.BatchSize())
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := idx.Upsert(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	var scanErr error
	err = b.ctx.BaseEngine.Scan(lower, upper, func(key, value []byte) (bool, error) {
		vectorID, derr := DecodeVectorID(key)
		if derr != nil {
			log.Warnf("Build: skipping record with undecodable key: %v", derr)
			return true, nil
		}
		values, perr := decodeVectorValues(value)
		if perr != nil || len(values) == 0 {
			log.Warnf("Build: skipping record %d: empty or unparseable payload", vectorID)
			return true, nil
		}
		batch = append(batch, vector.Vector{ID: vectorID, Values: values})
		if len(batch) >= b.ctx.BatchSize() {
			if ferr := flush(); ferr != nil {
				scanErr = ferr
				return false, ferr
			}
		}
		return true, nil
	})
	if err != nil {
		log.Errorf("Build: base engine scan failed: %v", err)
		return nil
	}
	if scanErr != nil {
		log.Errorf("Build: upsert during scan failed: %v", scanErr)
		return nil
	}
	if err := flush(); err != nil {
		log.Errorf("Build: final upsert flush failed: %v", err)
		return nil
	}

	// Step 6: return the handle.
	h := NewHandle(region.ID, region.Params, idx)
	log.Infof("Build: built index with %d vectors, snapshot_log_index=%d apply_log_index=%d",
		idx.Len(), snapshotLogIndex, applyLogIndex)
	return h
}

// decodeVectorValues parses a base-data value payload into float32
// components. The wire layout of the scalar payload sidecar itself is an
// out-of-scope external concern; this decodes the packed little-endian
// float32 array (no length prefix; the component count is len(value)/4)
// that EncodeVectorValues produces.
func decodeVectorValues(value []byte) ([]float32, error) {
	if len(value) == 0 || len(value)%4 != 0 {
		return nil, errBadPayload
	}
	out := make([]float32, len(value)/4)
	for i := range out {
		out[i] = decodeFloat32(value[i*4 : i*4+4])
	}
	return out, nil
}
