package vector

import (
	"encoding/binary"
	"errors"
	"math"
)

// Marshaler and Unmarshaler are narrow, optional capabilities a concrete
// Index backend may implement to participate in the Snapshot Engine's
// save/load cycle. They are kept separate from Index itself because not
// every ANN backend can cheaply serialize itself, and a snapshot is an
// opaque on-disk artifact owned by the Snapshot Engine, not a fixed part
// of the Index contract.
type Marshaler interface {
	MarshalIndex() ([]byte, error)
}

type Unmarshaler interface {
	UnmarshalIndex([]byte) error
}

var ErrNotSnapshotable = errors.New("vector: index backend does not support snapshotting")

// MarshalIndex encodes f's live vectors as a simple length-prefixed record
// stream: for each vector, an 8-byte id, a 4-byte dimension, then the
// dimension's worth of little-endian float64 values.
func (f *FlatIndex) MarshalIndex() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]byte, 0, 16*len(f.vectors))
	var hdr [12]byte
	for id, values := range f.vectors {
		binary.LittleEndian.PutUint64(hdr[0:8], id)
		binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(values)))
		out = append(out, hdr[:]...)
		for _, v := range values {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
			out = append(out, b[:]...)
		}
	}
	return out, nil
}

// UnmarshalIndex replaces f's contents with the record stream produced by
// MarshalIndex. Log indices are not part of the payload; the Snapshot
// Engine sets ApplyLogIndex/SnapshotLogIndex on the resulting handle
// separately, seeding apply_log_index from the snapshot's own log index.
func (f *FlatIndex) UnmarshalIndex(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	vectors := make(map[uint64][]float64)
	for len(data) > 0 {
		if len(data) < 12 {
			return errors.New("vector: truncated snapshot record header")
		}
		id := binary.LittleEndian.Uint64(data[0:8])
		dim := int(binary.LittleEndian.Uint32(data[8:12]))
		data = data[12:]
		need := dim * 8
		if len(data) < need {
			return errors.New("vector: truncated snapshot record body")
		}
		values := make([]float64, dim)
		for i := 0; i < dim; i++ {
			bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
			values[i] = math.Float64frombits(bits)
		}
		vectors[id] = values
		data = data[need:]
	}
	f.vectors = vectors
	return nil
}
