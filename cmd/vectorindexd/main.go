// Package main wires together the per-region vector index manager and
// runs its periodic scrub loop. It is illustrative process wiring, not an
// administrative CLI surface: region membership, leadership and the base
// engine/log transport it depends on are all out of scope and are stubbed
// here with fixtures a real deployment would replace.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/go-kit/log"

	"github.com/nimbusdb/vectoridx/secondary/common"
	"github.com/nimbusdb/vectoridx/secondary/logging"
	"github.com/nimbusdb/vectoridx/secondary/vector"
	"github.com/nimbusdb/vectoridx/secondary/vectoridx"
)

func main() {
	fset := flag.NewFlagSet("vectorindexd", flag.ContinueOnError)

	indexPath := fset.String("indexPath", "./vectorindex_data", "Root directory for per-region snapshots and the snapshot catalog")
	metaPath := fset.String("metaPath", "./vectorindex_meta.db", "Path to the bbolt-backed metadata store")
	scrubInterval := fset.Duration("scrubInterval", 30*time.Second, "Interval between Scrub sweeps")
	scrubConcurrency := fset.Int("scrubConcurrency", common.DefaultScrubConcurrency, "Max regions evaluated concurrently per Scrub sweep")

	if err := fset.Parse(os.Args[1:]); err != nil {
		logging.Fatalf("vectorindexd: flag parse failed: %v", err)
	}

	logging.SetLogger(log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr)))
	logging.Infof("vectorindexd starting, indexPath=%s metaPath=%s", *indexPath, *metaPath)

	meta, err := vectoridx.OpenMetaStore(*metaPath)
	if err != nil {
		logging.Fatalf("vectorindexd: open metadata store failed: %v", err)
	}
	defer meta.Close()

	ctx := common.Context{
		IndexPath:        *indexPath,
		ScrubConcurrency: *scrubConcurrency,
		BaseEngine:       noopBaseEngine{},
		LogSources:       noopLogSourceResolver{},
		MetaReader:       meta,
		MetaWriter:       meta,
		Clock:            common.SystemClock,
	}

	factory := vector.FlatFactory{}

	snapshots, err := vectoridx.NewSnapshotEngine(ctx, factory)
	if err != nil {
		logging.Fatalf("vectorindexd: open snapshot engine failed: %v", err)
	}
	defer snapshots.Close()

	registry := vectoridx.NewRegistry()
	builder := vectoridx.NewBuilder(ctx, factory)
	replayer := vectoridx.NewReplayer(ctx)
	lifecycle := vectoridx.NewLifecycle(ctx, factory, registry, builder, replayer, snapshots)

	if err := lifecycle.Init(nil); err != nil {
		logging.Errorf("vectorindexd: Init reported errors: %v", err)
	}

	logging.Infof("vectorindexd ready, entering scrub loop at interval %s", scrubInterval.String())
	ticker := time.NewTicker(*scrubInterval)
	defer ticker.Stop()
	for range ticker.C {
		if err := lifecycle.Scrub(); err != nil {
			logging.Errorf("vectorindexd: scrub sweep reported errors: %v", err)
		}
	}
}

// noopBaseEngine and noopLogSourceResolver are placeholders for the
// primary KV store and replicated log transport, both external
// collaborators out of scope here. A real deployment wires its own
// implementations of common.BaseEngineScanner and
// common.LogSourceResolver here.

type noopBaseEngine struct{}

func (noopBaseEngine) Scan(lower, upper []byte, fn func(key, value []byte) (bool, error)) error {
	return nil
}

type noopLogSourceResolver struct{}

func (noopLogSourceResolver) Resolve(regionID uint64) (common.LogSource, error) {
	return noopLogSource{}, nil
}

type noopLogSource struct{}

func (noopLogSource) GetEntries(start, end uint64) ([]common.LogEntry, error) {
	return nil, nil
}
