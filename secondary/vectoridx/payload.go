package vectoridx

import (
	"encoding/binary"
	"errors"
	"math"
)

// errBadPayload is returned by decodeVectorValues for a record whose value
// cannot be parsed as a packed float32 array; the Builder treats this as a
// per-record skip, not a fatal error — isolated per-record parse failures
// during Build are skipped with a warning rather than aborting the whole
// scan.
var errBadPayload = errors.New("vectoridx: unparseable vector payload")

// EncodeVectorValues packs a float32 slice into the fixed-width
// little-endian layout decodeVectorValues understands, scoped to
// base-data values rather than keys.
func EncodeVectorValues(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(v))
	}
	return out
}

func decodeFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
