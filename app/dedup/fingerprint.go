package dedup

import (
	"encoding/binary"
	"fmt"
)

// Fingerprint is the dedup identity of one extracted article body.
type Fingerprint struct {
	ID            string
	SourceID      string
	Sketch        []uint64
	Bands         []uint64
	ContentLength int
	Bucket        int64
}

// EncodeSketch serializes a sketch for storage.
func EncodeSketch(sketch []uint64) []byte {
	data := make([]byte, 8*len(sketch))
	for i, v := range sketch {
		binary.BigEndian.PutUint64(data[i*8:], v)
	}
	return data
}

// DecodeSketch parses a sketch serialized by EncodeSketch.
func DecodeSketch(data []byte) ([]uint64, error) {
	if len(data) == 0 || len(data)%8 != 0 {
		return nil, fmt.Errorf("invalid sketch length: %d bytes", len(data))
	}

	sketch := make([]uint64, len(data)/8)
	for i := range sketch {
		sketch[i] = binary.BigEndian.Uint64(data[i*8:])
	}

	return sketch, nil
}
