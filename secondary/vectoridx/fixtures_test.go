package vectoridx

import (
	"sort"

	"github.com/nimbusdb/vectoridx/secondary/common"
)

// fakeBaseEngine is an in-memory common.BaseEngineScanner over a sorted set
// of key/value pairs, standing in for the primary KV store's range-scan
// capability.
type fakeBaseEngine struct {
	records map[string][]byte
}

func newFakeBaseEngine() *fakeBaseEngine {
	return &fakeBaseEngine{records: make(map[string][]byte)}
}

func (f *fakeBaseEngine) put(key, value []byte) {
	f.records[string(key)] = value
}

func (f *fakeBaseEngine) Scan(lower, upper []byte, fn func(key, value []byte) (bool, error)) error {
	keys := make([]string, 0, len(f.records))
	for k := range f.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k < string(lower) || k >= string(upper) {
			continue
		}
		more, err := fn([]byte(k), f.records[k])
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return nil
}

// fakeMeta is an in-memory common.MetaReader/MetaWriter.
type fakeMeta struct {
	kv map[string][]byte
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{kv: make(map[string][]byte)}
}

func (f *fakeMeta) Get(key []byte) ([]byte, error) {
	v, ok := f.kv[string(key)]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (f *fakeMeta) Put(key, value []byte) error {
	f.kv[string(key)] = value
	return nil
}

func (f *fakeMeta) Delete(key []byte) error {
	delete(f.kv, string(key))
	return nil
}

// fakeLogSource is an in-memory common.LogSource over an entry slice that
// can grow between calls. onCall, if set, runs after each GetEntries call
// computes its result (but before returning), letting a test append
// entries that only a later call will observe — used to simulate a write
// landing on the log between a Rebuild's first and second replay pass.
type fakeLogSource struct {
	entries []common.LogEntry
	err     error
	calls   int
	onCall  func(call int, src *fakeLogSource)
}

func (f *fakeLogSource) GetEntries(start, end uint64) ([]common.LogEntry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []common.LogEntry
	for _, e := range f.entries {
		if e.Index >= start && e.Index <= end {
			out = append(out, e)
		}
	}
	if f.onCall != nil {
		f.onCall(f.calls, f)
	}
	return out, nil
}

// fakeLogSourceResolver resolves every region to the same fakeLogSource,
// or returns a configured error.
type fakeLogSourceResolver struct {
	source *fakeLogSource
	err    error
}

func (f *fakeLogSourceResolver) Resolve(regionID uint64) (common.LogSource, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.source, nil
}
