package lotto

import (
	"crypto/sha256"
	"encoding/binary"
)

// Winner selection draws distinct list positions from the participant pool
// using a partial Fisher-Yates shuffle. The shuffle is driven by a SHA-256
// counter-mode keystream over the 32-byte oracle randomness, so the same
// seed and the same pool order always produce the same positions on every
// platform. This determinism is security-relevant and covered by tests.

// drawRNG produces uniform 64-bit words from sha256(seed || counter).
type drawRNG struct {
	seed    [RandomnessLen]byte
	counter uint64
	block   [sha256.Size]byte
	offset  int
}

func newDrawRNG(seed []byte) *drawRNG {
	r := &drawRNG{offset: sha256.Size}
	copy(r.seed[:], seed)
	return r
}

func (r *drawRNG) next64() uint64 {
	if r.offset >= sha256.Size {
		var input [RandomnessLen + 8]byte
		copy(input[:RandomnessLen], r.seed[:])
		binary.BigEndian.PutUint64(input[RandomnessLen:], r.counter)
		r.block = sha256.Sum256(input[:])
		r.counter++
		r.offset = 0
	}
	word := binary.BigEndian.Uint64(r.block[r.offset : r.offset+8])
	r.offset += 8
	return word
}

// intn returns a uniform value in [0, n) using rejection sampling so the
// distribution carries no modulo bias.
func (r *drawRNG) intn(n uint64) uint64 {
	limit := (^uint64(0)) - (^uint64(0))%n
	for {
		word := r.next64()
		if word < limit {
			return word % n
		}
	}
}

// drawPositions selects min(want, poolSize) distinct positions without
// replacement from [0, poolSize). Requesting more winners than participants
// silently saturates to the pool size.
func drawPositions(seed []byte, poolSize, want int) []int {
	if poolSize <= 0 || want <= 0 {
		return nil
	}
	k := want
	if k > poolSize {
		k = poolSize
	}

	rng := newDrawRNG(seed)
	indices := make([]int, poolSize)
	for i := range indices {
		indices[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + int(rng.intn(uint64(poolSize-i)))
		indices[i], indices[j] = indices[j], indices[i]
	}
	return indices[:k]
}

// selectWinners maps the drawn positions onto participant addresses,
// preserving draw order. Distinct positions may carry the same address; each
// selected position earns one winner share.
func selectWinners(seed []byte, participants []string, want int) []string {
	positions := drawPositions(seed, len(participants), want)
	winners := make([]string, len(positions))
	for i, pos := range positions {
		winners[i] = participants[pos]
	}
	return winners
}
