package dedup

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// BandSignatures splits a sketch into bands of rows consecutive positions
// and hashes each band into a single signature. Two sketches sharing any
// band signature become duplicate candidates; the band index is mixed in so
// equal row values in different bands do not collide.
func BandSignatures(sketch []uint64, bands, rows int) []uint64 {
	if bands < 1 || rows < 1 || len(sketch) != bands*rows {
		return nil
	}

	signatures := make([]uint64, bands)
	var buf [8]byte

	for b := 0; b < bands; b++ {
		digest := xxhash.New()

		binary.BigEndian.PutUint64(buf[:], uint64(b))
		digest.Write(buf[:])

		for r := 0; r < rows; r++ {
			binary.BigEndian.PutUint64(buf[:], sketch[b*rows+r])
			digest.Write(buf[:])
		}

		signatures[b] = digest.Sum64()
	}

	return signatures
}
