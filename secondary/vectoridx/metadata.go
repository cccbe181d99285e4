package vectoridx

import (
	"go.etcd.io/bbolt"
)

// metaBucket is the single bbolt bucket the Metadata Store Adapter uses.
// No multi-key transaction is required, so one bucket of
// independently-atomic key/value pairs is sufficient.
var metaBucket = []byte("vector_index_meta")

// MetaStore is the Metadata Store Adapter (C2): a thin wrapper over a
// key/value metadata engine providing get/put/delete,
// backed here by go.etcd.io/bbolt — the same embedded-KV choice
// dreamsxin-wal makes for its own small persisted metadata (segment
// catalogs), rather than reinventing a bespoke on-disk format.
type MetaStore struct {
	db *bbolt.DB
}

// OpenMetaStore opens (creating if necessary) a bbolt-backed MetaStore at
// path.
func OpenMetaStore(path string) (*MetaStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, internalErr("open metadata store", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, internalErr("init metadata bucket", err)
	}
	return &MetaStore{db: db}, nil
}

func (m *MetaStore) Close() error {
	return m.db.Close()
}

// Get implements common.MetaReader.
func (m *MetaStore) Get(key []byte) ([]byte, error) {
	var out []byte
	err := m.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(metaBucket)
		v := b.Get(key)
		if v == nil {
			return nil
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, internalErr("read metadata key", err)
	}
	return out, nil
}

// Put implements common.MetaWriter.
func (m *MetaStore) Put(key, value []byte) error {
	err := m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(metaBucket).Put(key, value)
	})
	if err != nil {
		return internalErr("write metadata key", err)
	}
	return nil
}

// Delete implements common.MetaWriter.
func (m *MetaStore) Delete(key []byte) error {
	err := m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(metaBucket).Delete(key)
	})
	if err != nil {
		return internalErr("delete metadata key", err)
	}
	return nil
}

// LogIndices reads the (snapshot_log_index, apply_log_index) record for
// region id. When the record is missing, both values default to 0; when
// it is present but malformed, an error is returned so the caller
// (Builder) can fail rather than silently guess.
func LogIndices(r interface {
	Get(key []byte) ([]byte, error)
}, regionID uint64) (snapshotLogIndex, applyLogIndex uint64, err error) {
	value, err := r.Get(GenKey(regionID))
	if err != nil {
		return 0, 0, err
	}
	if value == nil {
		return 0, 0, nil
	}
	return DecodeLogIndex(value)
}

// PutLogIndices persists (snapshot_log_index, apply_log_index) for region
// id. Lifecycle.Save and Rebuild's post-rebuild save write this record
// after each successful snapshot; WAL replay advances apply_log_index in
// memory only and does not write it.
func PutLogIndices(w interface {
	Put(key, value []byte) error
}, regionID, snapshotLogIndex, applyLogIndex uint64) error {
	return w.Put(GenKey(regionID), EncodeLogIndex(snapshotLogIndex, applyLogIndex))
}
