package dedup

import (
	"math"
)

// splitmix64 is the finalizer of the splitmix64 generator. It is used both
// to derive per-position seeds and to simulate one hash function per sketch
// position, so sketches are deterministic across processes and restarts.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Sketch computes the min-hash signature of a shingle set: position i holds
// the minimum of hash function i over all shingles.
func Sketch(shingles []uint64, size int) []uint64 {
	if size < 1 || len(shingles) == 0 {
		return nil
	}

	seeds := make([]uint64, size)
	for i := range seeds {
		seeds[i] = splitmix64(uint64(i) + 1)
	}

	sketch := make([]uint64, size)
	for i := range sketch {
		sketch[i] = math.MaxUint64
	}

	for _, shingle := range shingles {
		for i, seed := range seeds {
			if h := splitmix64(shingle ^ seed); h < sketch[i] {
				sketch[i] = h
			}
		}
	}

	return sketch
}

// EstimatedJaccard estimates the Jaccard similarity of the two shingle sets
// behind two sketches as the fraction of agreeing positions.
func EstimatedJaccard(a, b []uint64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	equal := 0
	for i := range a {
		if a[i] == b[i] {
			equal++
		}
	}

	return float64(equal) / float64(len(a))
}
