package opt

import (
	"math/rand"
	"time"
)

// newRand returns a dedicated source for one optimization run. A *rand.Rand is
// not goroutine-safe, so batch workers each get their own.
func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// deriveSeed mixes a batch seed with a stream index (SplitMix64 finalizer) so
// concurrent routes in one batch do not share a random sequence.
func deriveSeed(parent int64, stream uint64) int64 {
	x := uint64(parent) ^ (stream + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	if x == 0 {
		x = 1
	}
	return int64(x)
}
