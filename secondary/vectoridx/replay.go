package vectoridx

import (
	"math"

	"github.com/nimbusdb/vectoridx/secondary/common"
	"github.com/nimbusdb/vectoridx/secondary/logging"
	"github.com/nimbusdb/vectoridx/secondary/vector"
)

// MaxLogIndex is the "∞" upper bound used for "replay everything newer
// than X".
const MaxLogIndex = math.MaxUint64

// Replayer applies a contiguous WAL slice to a Handle (C5). The
// pending-batch buffer below is a plain slice rather than a preallocated
// ring buffer, since batch size does not affect correctness, only
// throughput.
type Replayer struct {
	ctx common.Context
}

// NewReplayer returns a Replayer using ctx's LogSources resolver and batch
// size.
func NewReplayer(ctx common.Context) *Replayer {
	return &Replayer{ctx: ctx}
}

// Replay applies log entries with index in [start, end] to handle,
// batching adds and flushing before each delete, and returns a manager
// error kind on failure.
func (rp *Replayer) Replay(handle *Handle, start, end uint64) error {
	log := logging.With("region_id", handle.ID)

	// Step 1: resolve the node/log storage responsible for this region.
	if rp.ctx.LogSources == nil {
		return internalErr("replay: no log source resolver configured", nil)
	}
	src, err := rp.ctx.LogSources.Resolve(handle.ID)
	if err != nil {
		return raftNotFoundErr("replay: resolve log source", err)
	}
	if src == nil {
		return raftNotFoundErr("replay: log source not found for region", nil)
	}

	// Step 2: fetch the ordered, committed entries.
	entries, err := src.GetEntries(start, end)
	if err != nil {
		return internalErr("replay: get_entries failed", err)
	}

	// Step 3: process in order, batching ADDs, flushing before DELETEs.
	batchSize := rp.ctx.BatchSize()
	batch := make([]vector.Vector, 0, batchSize)
	lastLogID := handle.ApplyLogIndex()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := handle.Index.Upsert(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for _, entry := range entries {
		for _, req := range entry.Requests {
			switch req.Type {
			case common.LogRequestVectorAdd:
				for _, v := range req.VectorAdd {
					batch = append(batch, vector.Vector{ID: v.ID, Values: v.Values})
				}
				if len(batch) >= batchSize {
					if err := flush(); err != nil {
						return internalErr("replay: upsert flush failed", err)
					}
				}
			case common.LogRequestVectorDelete:
				// Flush-before-delete: an ADD immediately followed by a
				// DELETE of the same id must leave the id absent.
				if err := flush(); err != nil {
					return internalErr("replay: upsert flush before delete failed", err)
				}
				if err := handle.Index.Delete(req.VectorDelete); err != nil {
					return internalErr("replay: delete failed", err)
				}
			default:
				// Other request kinds are silently ignored.
			}
		}
		// Step 4: track last_log_id as the highest entry processed.
		if entry.Index > lastLogID {
			lastLogID = entry.Index
		}
	}

	// Step 5: flush any residual batch.
	if err := flush(); err != nil {
		return internalErr("replay: final flush failed", err)
	}

	// Step 6: advance apply_log_index.
	handle.SetApplyLogIndex(lastLogID)
	log.Infof("Replay: applied [%d,%d], apply_log_index now %d (%d entries)", start, end, lastLogID, len(entries))
	return nil
}
