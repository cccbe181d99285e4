// Package common holds the manager-wide dependency injection point.
//
// Index-path, base engine, log-storage lookup, meta-reader and meta-writer
// are all passed into the manager at construction time as fields of
// Context, rather than reached for via a process-wide singleton; the
// snapshot engine is not a Context field and is passed to the Lifecycle
// constructor directly. No method performs a global lookup.
package common

import "time"

// DefaultReplayBatchSize is the WAL replay batching knob. It is a
// throughput tuning constant, not a correctness parameter, and is
// deliberately exposed on Context rather than hardcoded.
const DefaultReplayBatchSize = 10000

// DefaultScrubConcurrency bounds how many regions Scrub (C7.4.4) evaluates
// concurrently, resolving cross-region scrub concurrency in favor of a
// bounded worker pool rather than a fully serial sweep.
const DefaultScrubConcurrency = 4

// BaseEngineScanner is the narrow range-scan capability the Builder (C4)
// needs from the primary KV store ("base engine"). The base engine itself
// is an out-of-scope external collaborator; this is the consumed interface.
type BaseEngineScanner interface {
	// Scan invokes fn for every key in [lower, upper) in ascending key
	// order, stopping early (without error) if fn returns false.
	Scan(lower, upper []byte, fn func(key, value []byte) (more bool, err error)) error
}

// LogEntry is the deserialized WAL/consensus log record: an index plus an
// ordered list of requests. Protocol buffers are explicitly out of scope;
// this is the plain-Go shape the manager consumes after deserialization
// happens elsewhere.
type LogEntry struct {
	Index    uint64
	Requests []LogRequest
}

// LogRequestType enumerates the WAL request kinds the manager understands.
// Unknown values are silently ignored.
type LogRequestType int

const (
	LogRequestUnknown LogRequestType = iota
	LogRequestVectorAdd
	LogRequestVectorDelete
)

// VectorWithID is a vector payload paired with its id, as carried by a
// VECTOR_ADD request and produced by the Builder's base-data scan.
type VectorWithID struct {
	ID     uint64
	Values []float32
	// Payload is an optional scalar sidecar value; the manager does not
	// interpret it, only threads it through to the ANN index.
	Payload []byte
}

// LogRequest is one entry in LogEntry.Requests.
type LogRequest struct {
	Type         LogRequestType
	VectorAdd    []VectorWithID
	VectorDelete []uint64
}

// LogSource is the per-region view of the replicated log the WAL Replayer
// (C5) consumes: an ordered, committed range read.
type LogSource interface {
	// GetEntries returns log entries with Index in [start, end], ascending.
	GetEntries(start, end uint64) ([]LogEntry, error)
}

// LogSourceResolver resolves the LogSource responsible for a region,
// i.e. the node currently responsible for region_id. Resolution failures
// map to the manager's EInternal/ERaftNotFound error kinds by the caller.
type LogSourceResolver interface {
	Resolve(regionID uint64) (LogSource, error)
}

// MetaReader/MetaWriter are the Metadata Store Adapter's (C2) dependency on
// a small KV engine: get/put/delete, individually atomic, no cross-key
// transaction.
type MetaReader interface {
	Get(key []byte) ([]byte, error)
}

type MetaWriter interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Clock abstracts wall-clock time so tests can control snapshot/catalog
// timestamps deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}

// Context is passed by value (it only holds interfaces/small config) to
// the Builder, Replayer, SnapshotEngine and Lifecycle constructors in
// secondary/vectoridx. It is built once at process
// start; nothing in this module consults a global afterward.
type Context struct {
	// IndexPath is the root directory under which each region's snapshot
	// directory (<IndexPath>/<region_id>/...) lives.
	IndexPath string

	// ReplayBatchSize overrides DefaultReplayBatchSize when non-zero.
	ReplayBatchSize int

	// ScrubConcurrency overrides DefaultScrubConcurrency when non-zero.
	ScrubConcurrency int

	BaseEngine  BaseEngineScanner
	LogSources  LogSourceResolver
	MetaReader  MetaReader
	MetaWriter  MetaWriter
	Clock       Clock
}

// BatchSize returns the effective WAL replay batch size.
func (c Context) BatchSize() int {
	if c.ReplayBatchSize > 0 {
		return c.ReplayBatchSize
	}
	return DefaultReplayBatchSize
}

// Concurrency returns the effective scrub fan-out width.
func (c Context) Concurrency() int {
	if c.ScrubConcurrency > 0 {
		return c.ScrubConcurrency
	}
	return DefaultScrubConcurrency
}

func (c Context) clock() Clock {
	if c.Clock != nil {
		return c.Clock
	}
	return SystemClock
}

// Now returns the current time via the configured Clock, defaulting to the
// system clock.
func (c Context) Now() time.Time {
	return c.clock().Now()
}
