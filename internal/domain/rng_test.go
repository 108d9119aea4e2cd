package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yanchun-Li/ai-divination/internal/domain"
)

func TestHashSeed(t *testing.T) {
	tests := []struct {
		seed string
		want uint32
	}{
		{"", 0},
		{"a", 97},
		{"abc", 96354},
		{"seed-42", 1971552090},
		{"你好", 652829},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, domain.HashSeed(tt.seed), "HashSeed(%q)", tt.seed)
	}
}

func TestSeeded_GoldenSequence(t *testing.T) {
	tests := []struct {
		seed string
		want []float64
	}{
		{"abc", []float64{0.47616213909350336, 0.7053550411947072, 0.44054572517052293}},
		{"", []float64{0.5733975800685585, 0.665013991529122, 0.3913450762629509}},
		{"seed-42", []float64{0.9627165358979255, 0.5468609002418816, 0.4477973284665495}},
	}
	for _, tt := range tests {
		src := domain.NewSeeded(tt.seed)
		for i, want := range tt.want {
			assert.InDelta(t, want, src.Float64(), 1e-12, "seed %q draw %d", tt.seed, i)
		}
	}
}

func TestSeeded_Deterministic(t *testing.T) {
	a := domain.NewSeeded("same seed")
	b := domain.NewSeeded("same seed")
	for i := range 1000 {
		require.Equal(t, a.Float64(), b.Float64(), "draw %d diverged", i)
	}
}

func TestSeeded_EmptySeedAdvances(t *testing.T) {
	src := domain.NewSeeded("")
	seen := make(map[float64]bool)
	for range 100 {
		seen[src.Float64()] = true
	}
	assert.GreaterOrEqual(t, len(seen), 90, "distinct values in 100 draws")
}

func TestSeeded_Range(t *testing.T) {
	src := domain.NewSeeded("range")
	for range 10000 {
		v := src.Float64()
		require.True(t, v >= 0 && v < 1, "draw out of [0,1): %v", v)
	}
}

func TestFree_Range(t *testing.T) {
	for range 1000 {
		v := domain.Free.Float64()
		require.True(t, v >= 0 && v < 1, "draw out of [0,1): %v", v)
	}
}
