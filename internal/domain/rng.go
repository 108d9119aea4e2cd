package domain

import (
	"math/rand/v2"
	"unicode/utf16"
)

// Source yields uniform draws in [0, 1).
type Source interface {
	Float64() float64
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func() float64

func (f SourceFunc) Float64() float64 { return f() }

type freeSource struct{}

func (freeSource) Float64() float64 { return rand.Float64() }

// Free is an auto-seeded Source for ad hoc draws. It is not reproducible.
var Free Source = freeSource{}

// zeroSeedState replaces a zero hash, which is a fixed point of the mixer.
const zeroSeedState uint32 = 0x9E3779B9

// Seeded is a deterministic Source derived from a string seed. The sequence
// matches the web client's generator for every seed whose hash is non-zero.
//
// A Seeded is not safe for concurrent use; create one per session.
type Seeded struct {
	state uint32
}

// NewSeeded returns a generator positioned at the start of seed's sequence.
func NewSeeded(seed string) *Seeded {
	h := HashSeed(seed)
	if h == 0 {
		h = zeroSeedState
	}
	return &Seeded{state: h}
}

// HashSeed folds seed into 32 bits with h = h*31 + unit over its UTF-16 code units.
func HashSeed(seed string) uint32 {
	var h uint32
	for _, u := range utf16.Encode([]rune(seed)) {
		h = h*31 + uint32(u)
	}
	return h
}

// Float64 advances the state with the murmur3 finalizer and returns state/2^32.
func (s *Seeded) Float64() float64 {
	h := s.state
	h ^= h >> 16
	h *= 0x85EBCA6B
	h ^= h >> 13
	h *= 0xC2B2AE35
	h ^= h >> 16
	s.state = h
	return float64(h) / 4294967296.0
}
