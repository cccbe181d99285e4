// Package vectoridx implements the per-region ANN index lifecycle manager:
// codec, metadata adapter, registry, builder, WAL replayer, snapshot
// engine, and the lifecycle/status-machine controller that ties them
// together.
package vectoridx

import "encoding/binary"

// vectorIDKeyLen is region_id (8 bytes) ‖ vector_id (8 bytes).
const vectorIDKeyLen = 16

// logIndexValueLen is snapshot_log_index (8 bytes) ‖ apply_log_index
// (8 bytes), the metadata record wire format.
const logIndexValueLen = 16

// EncodeVectorID forms the base-data key for (region_id, vector_id). The
// big-endian concatenation of two fixed-width integers is lexicographically
// ordered by the numeric pair, so a range scan with
// lower=EncodeVectorID(r, 0) and upper=EncodeVectorID(r, math.MaxUint64)
// (or the exclusive upper bound from VectorScanBounds) returns exactly
// region r's vectors in vector_id order — the same fixed-width big-endian
// key design thistonyuncle-etcd/mvcc/kvstore.go uses for its revision keys
// to keep range scans ordered without a separate index structure.
func EncodeVectorID(regionID, vectorID uint64) []byte {
	buf := make([]byte, vectorIDKeyLen)
	binary.BigEndian.PutUint64(buf[0:8], regionID)
	binary.BigEndian.PutUint64(buf[8:16], vectorID)
	return buf
}

// DecodeVectorID recovers the trailing vector_id from a key produced by
// EncodeVectorID. It fails if the length is wrong.
func DecodeVectorID(key []byte) (uint64, error) {
	if len(key) != vectorIDKeyLen {
		return 0, internalErr("decode vector id: bad key length", nil)
	}
	return binary.BigEndian.Uint64(key[8:16]), nil
}

// DecodeRegionID recovers the leading region_id from a key produced by
// EncodeVectorID, implied by the encoding contract; used by the codec
// round-trip test.
func DecodeRegionID(key []byte) (uint64, error) {
	if len(key) != vectorIDKeyLen {
		return 0, internalErr("decode region id: bad key length", nil)
	}
	return binary.BigEndian.Uint64(key[0:8]), nil
}

// VectorScanBounds returns the [lower, upper) range that isolates region
// regionID's vectors in the base engine's keyspace. The upper bound is
// the lower bound of the next region_id, so the scan is exclusive and
// never touches another region even when this region contains
// vector_id == math.MaxUint64.
func VectorScanBounds(regionID uint64) (lower, upper []byte) {
	lower = EncodeVectorID(regionID, 0)
	upper = EncodeVectorID(regionID+1, 0)
	return lower, upper
}

// EncodeLogIndex packs (snapshot_log_index, apply_log_index) into the
// 16-byte metadata record value.
func EncodeLogIndex(snapshotLogIndex, applyLogIndex uint64) []byte {
	buf := make([]byte, logIndexValueLen)
	binary.BigEndian.PutUint64(buf[0:8], snapshotLogIndex)
	binary.BigEndian.PutUint64(buf[8:16], applyLogIndex)
	return buf
}

// DecodeLogIndex is the inverse of EncodeLogIndex. Decoding a value of any
// other length is an error.
func DecodeLogIndex(value []byte) (snapshotLogIndex, applyLogIndex uint64, err error) {
	if len(value) != logIndexValueLen {
		return 0, 0, internalErr("decode log index: bad value length", nil)
	}
	snapshotLogIndex = binary.BigEndian.Uint64(value[0:8])
	applyLogIndex = binary.BigEndian.Uint64(value[8:16])
	return snapshotLogIndex, applyLogIndex, nil
}

// metadataKeyPrefix namespaces metadata records so the same bbolt bucket
// could in principle hold other record families alongside
// (snapshot_log_index, apply_log_index) per region.
var metadataKeyPrefix = []byte("vectoridx/meta/")

// GenKey produces the metadata-store key for a region's log-index record.
func GenKey(regionID uint64) []byte {
	key := make([]byte, 0, len(metadataKeyPrefix)+8)
	key = append(key, metadataKeyPrefix...)
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], regionID)
	return append(key, idBuf[:]...)
}
