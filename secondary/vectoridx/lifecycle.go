package vectoridx

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nimbusdb/vectoridx/secondary/common"
	"github.com/nimbusdb/vectoridx/secondary/logging"
	"github.com/nimbusdb/vectoridx/secondary/vector"
)

// Lifecycle is the Lifecycle Controller (C7): the only component that
// mutates Registry entries, and the owner of the status-machine edges
// CanTransition defines. Builder, Replayer and SnapshotEngine are pure
// collaborators it drives; none of them touch the registry themselves.
type Lifecycle struct {
	ctx       common.Context
	factory   vector.Factory
	registry  *Registry
	builder   *Builder
	replayer  *Replayer
	snapshots *SnapshotEngine
}

// NewLifecycle wires the factory, registry, builder, replayer and
// snapshot engine together.
func NewLifecycle(ctx common.Context, factory vector.Factory, registry *Registry, builder *Builder, replayer *Replayer, snapshots *SnapshotEngine) *Lifecycle {
	return &Lifecycle{
		ctx:       ctx,
		factory:   factory,
		registry:  registry,
		builder:   builder,
		replayer:  replayer,
		snapshots: snapshots,
	}
}

// Init brings every region in regions up to date at process start: for
// each region, prefer loading the newest on-disk snapshot and replaying
// the WAL tail; fall back to a full rebuild when no usable snapshot
// exists. Regions are processed with bounded concurrency
// (ctx.Concurrency()) rather than either a single goroutine per region or
// fully serial startup.
func (l *Lifecycle) Init(regions []Region) error {
	g := new(errgroup.Group)
	g.SetLimit(l.ctx.Concurrency())
	for _, region := range regions {
		region := region
		g.Go(func() error {
			if _, ok := l.registry.Get(region.ID); ok {
				// Already registered, e.g. a racing leader start-up beat us
				// to this region. Skip rather than clobber its handle.
				return nil
			}
			return l.LoadOrBuild(region)
		})
	}
	return g.Wait()
}

// LoadOrBuild implements the cold-start decision: try the Snapshot Engine
// first, replay forward from its log index, and only fall back to
// Builder.Build (full base-data scan) when no snapshot exists or it fails
// to load.
func (l *Lifecycle) LoadOrBuild(region Region) error {
	log := logging.With("region_id", region.ID)

	handle, err := l.snapshots.Load(region)
	if err != nil {
		log.Warnf("LoadOrBuild: snapshot load failed, falling back to full build: %v", err)
		handle = nil
	}
	fromSnapshot := handle != nil
	if handle == nil {
		handle = l.builder.Build(region)
		if handle == nil {
			return internalErr(fmt.Sprintf("LoadOrBuild: build failed for region %d", region.ID), nil)
		}
	}

	handle.TransitionStatus(StatusLoading)
	if err := l.replayer.Replay(handle, handle.ApplyLogIndex()+1, MaxLogIndex); err != nil {
		// A half-filled handle from a failed catch-up replay is discarded
		// rather than registered (Open Question 1): fall through to a full
		// Builder-based rebuild instead of reusing partially replayed state.
		if fromSnapshot {
			log.Warnf("LoadOrBuild: snapshot catch-up replay failed, falling back to full build: %v", err)
			handle = l.builder.Build(region)
			if handle == nil {
				return internalErr(fmt.Sprintf("LoadOrBuild: fallback build failed for region %d", region.ID), nil)
			}
			handle.TransitionStatus(StatusLoading)
			if err := l.replayer.Replay(handle, handle.ApplyLogIndex()+1, MaxLogIndex); err != nil {
				return internalErr(fmt.Sprintf("LoadOrBuild: fallback replay failed for region %d", region.ID), err)
			}
		} else {
			return internalErr(fmt.Sprintf("LoadOrBuild: catch-up replay failed for region %d", region.ID), err)
		}
	}
	handle.TransitionStatus(StatusNormal)
	l.registry.Put(region.ID, handle)
	log.Infof("LoadOrBuild: region online at apply_log_index=%d", handle.ApplyLogIndex())
	return nil
}

// Rebuild implements the rebuild-while-serving protocol: a new handle is
// built and caught up to the log tail in two passes while the old handle
// keeps serving reads, and only the second pass's brief freeze window
// makes the old handle unavailable.
//
//  1. Refuse to start if an existing handle is mid-transition
//     (StatusRebuilding/StatusSnapshotting already).
//  2. Build a fresh handle from base data.
//  3. First-pass replay: catch the new handle up to the log tail observed
//     at build time, while the old handle is still online.
//  4. Freeze: take the old handle offline so no further writes land only
//     on it.
//  5. Second-pass replay: catch the new handle up past whatever landed
//     during the first pass and the freeze window.
//  6. Registry.PutIfExists: atomically swap the new handle in, aborting
//     if the region was deleted out from under the rebuild.
//  7. Optional Save, if needSave.
func (l *Lifecycle) Rebuild(region Region, needSave bool, isInitialBuild bool) error {
	runID := uuid.New().String()
	log := logging.With("region_id", region.ID, "rebuild_id", runID)

	old, hadOld := l.registry.Get(region.ID)
	if hadOld {
		// BeginRebuild is a compare-and-swap: refuses to start a second
		// rebuild over one already in flight, or over a handle mid
		// snapshot, even when two Rebuild calls for the same region both
		// observe a rebuildable status at the same instant.
		if !old.BeginRebuild() {
			return internalErr(fmt.Sprintf("Rebuild: region %d not in a rebuildable state (%s)", region.ID, old.Status()), nil)
		}
	} else if !isInitialBuild {
		return raftNotFoundErr(fmt.Sprintf("Rebuild: region %d has no existing handle and isInitialBuild=false", region.ID), nil)
	}

	log.Infof("Rebuild: starting (initial_build=%v)", isInitialBuild)

	// A failed rebuild attempt is transient (Open Question 2): the old
	// handle, if any, returns to NORMAL and keeps serving the stale data it
	// already had rather than being marked ERROR — it has already absorbed
	// everything up to its own apply_log_index, a guarantee a failed
	// *rebuild* attempt does not violate.
	abortRebuild := func() {
		if hadOld {
			old.SetOnline(true)
			old.TransitionStatus(StatusNormal)
		}
	}

	newHandle := l.builder.Build(region)
	if newHandle == nil {
		abortRebuild()
		return internalErr(fmt.Sprintf("Rebuild: build failed for region %d", region.ID), nil)
	}

	// First pass: catch up while the old handle (if any) keeps serving.
	if err := l.replayer.Replay(newHandle, newHandle.ApplyLogIndex()+1, MaxLogIndex); err != nil {
		abortRebuild()
		return internalErr(fmt.Sprintf("Rebuild: first-pass replay failed for region %d", region.ID), err)
	}
	log.Infof("Rebuild: first pass complete, apply_log_index=%d", newHandle.ApplyLogIndex())

	// Freeze: take the old handle offline for the brief second pass.
	if hadOld {
		old.SetOnline(false)
	}

	// Second pass: catch up whatever landed since the first pass started.
	if err := l.replayer.Replay(newHandle, newHandle.ApplyLogIndex()+1, MaxLogIndex); err != nil {
		abortRebuild()
		return internalErr(fmt.Sprintf("Rebuild: second-pass replay failed for region %d", region.ID), err)
	}
	log.Infof("Rebuild: second pass complete, apply_log_index=%d", newHandle.ApplyLogIndex())

	newHandle.SetStatus(StatusNormal)

	var swapped bool
	if hadOld {
		swapped = l.registry.PutIfExists(region.ID, newHandle)
	} else {
		l.registry.Put(region.ID, newHandle)
		swapped = true
	}
	if !swapped {
		// The region was deleted while we were building. Discard the new
		// handle; nothing else to undo since old is already gone from the
		// registry.
		log.Warnf("Rebuild: region %d deleted during rebuild, discarding new handle", region.ID)
		return nil
	}

	if needSave {
		if logIndex, err := l.snapshots.Save(newHandle, true); err != nil {
			log.Errorf("Rebuild: post-rebuild save failed: %v", err)
		} else {
			newHandle.SetSnapshotLogIndex(logIndex)
			if l.ctx.MetaWriter != nil {
				if err := PutLogIndices(l.ctx.MetaWriter, region.ID, logIndex, newHandle.ApplyLogIndex()); err != nil {
					log.Errorf("Rebuild: post-rebuild metadata write failed: %v", err)
				}
			}
			l.snapshots.InstallToFollowers(region.ID)
		}
	}

	log.Infof("Rebuild: complete")
	return nil
}

// Save snapshots handle's current contents (C6), moving its status to
// SNAPSHOTTING for the duration so a concurrent Rebuild does not overlap
// with it.
func (l *Lifecycle) Save(handle *Handle, canOverwrite bool) error {
	if !handle.TransitionStatus(StatusSnapshotting) {
		return internalErr(fmt.Sprintf("Save: region %d not in a snapshotable state (%s)", handle.ID, handle.Status()), nil)
	}
	defer handle.TransitionStatus(StatusNormal)

	logIndex, err := l.snapshots.Save(handle, canOverwrite)
	if err != nil {
		handle.SetStatus(StatusError)
		return err
	}
	handle.SetSnapshotLogIndex(logIndex)
	if l.ctx.MetaWriter != nil {
		if err := PutLogIndices(l.ctx.MetaWriter, handle.ID, logIndex, handle.ApplyLogIndex()); err != nil {
			return internalErr(fmt.Sprintf("Save: metadata write failed for region %d", handle.ID), err)
		}
	}
	l.snapshots.InstallToFollowers(handle.ID)
	return nil
}

// Scrub is the periodic maintenance sweep (C7.4.4): for every registered
// region, ask the index itself whether it needs a rebuild or a save, and
// act on it. Regions are evaluated with bounded concurrency
// (ctx.Concurrency()) rather than one goroutine per region or a fully
// serial sweep, since two regions' decisions share no state.
//
// lag is approximated as the gap between a handle's apply_log_index and
// its own snapshot_log_index: the manager has no independent source of
// "the latest committed log index" beyond what replay has already
// observed, so this is the same signal NeedRebuild/NeedSave would be
// evaluating against an external oracle, just computed locally.
func (l *Lifecycle) Scrub() error {
	runID := uuid.New().String()
	handles := l.registry.GetAllValues()
	log := logging.With("scrub_id", runID)
	log.Infof("Scrub: evaluating %d regions", len(handles))

	g := new(errgroup.Group)
	g.SetLimit(l.ctx.Concurrency())
	for _, h := range handles {
		h := h
		g.Go(func() error {
			return l.scrubOne(h)
		})
	}
	return g.Wait()
}

func (l *Lifecycle) scrubOne(h *Handle) error {
	if h.Status() != StatusNormal || !h.Online() {
		return nil
	}
	lag := h.ApplyLogIndex() - h.SnapshotLogIndex()

	if h.Index.NeedRebuild(lag) {
		region := Region{ID: h.ID, Params: h.Params}
		if err := l.Rebuild(region, false, false); err != nil {
			logging.With("region_id", h.ID).Errorf("Scrub: rebuild failed: %v", err)
			return err
		}
		return nil
	}
	if h.Index.NeedSave(lag) {
		if err := l.Save(h, true); err != nil {
			logging.With("region_id", h.ID).Errorf("Scrub: save failed: %v", err)
			return err
		}
	}
	return nil
}

// CreateVectorIndex registers and builds a brand-new region: Builder.Build
// from (empty) base data, then install.
func (l *Lifecycle) CreateVectorIndex(region Region) error {
	if _, ok := l.registry.Get(region.ID); ok {
		return internalErr(fmt.Sprintf("CreateVectorIndex: region %d already exists", region.ID), nil)
	}
	return l.Rebuild(region, true, true)
}

// AddVectorIndex is the alternate entry point for bringing a region
// online from an already-known base engine/log source, without forcing a
// fresh rebuild when a snapshot is available. It is LoadOrBuild under a
// name matching the external vocabulary.
func (l *Lifecycle) AddVectorIndex(region Region) error {
	return l.LoadOrBuild(region)
}

// GetAllVectorIndex returns every currently registered handle, e.g. for a
// status page or administrative scan.
func (l *Lifecycle) GetAllVectorIndex() []*Handle {
	return l.registry.GetAllValues()
}

// DeleteVectorIndex performs a three-step deletion: drop the registry
// entry, recursively remove the on-disk snapshot tree, then delete the
// metadata record. Order matters — the registry entry goes first so no
// concurrent caller can observe a handle whose backing snapshot/metadata
// is mid-removal.
func (l *Lifecycle) DeleteVectorIndex(regionID uint64) error {
	l.registry.Erase(regionID)

	if err := l.snapshots.RemoveAll(regionID); err != nil {
		return err
	}
	if l.ctx.MetaWriter != nil {
		if err := l.ctx.MetaWriter.Delete(GenKey(regionID)); err != nil {
			return internalErr(fmt.Sprintf("DeleteVectorIndex: metadata delete failed for region %d", regionID), err)
		}
	}
	logging.With("region_id", regionID).Infof("DeleteVectorIndex: complete")
	return nil
}
