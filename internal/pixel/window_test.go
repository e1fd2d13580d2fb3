package pixel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyWindowClampsToByteRange(t *testing.T) {
	data := []float64{-1e9, -500, -1, 0, 1, 127.9, 255, 1000, 1e9}
	out := applyWindow(data, 128, 256)
	for i, v := range out {
		assert.GreaterOrEqual(t, int(v), 0, "index %d", i)
		assert.LessOrEqual(t, int(v), 255, "index %d", i)
	}
	assert.Equal(t, uint8(0), out[0])
	assert.Equal(t, uint8(255), out[len(out)-1])
}

func TestApplyWindowRemapsLinearly(t *testing.T) {
	out := applyWindow([]float64{0, 50, 100, 150}, 50, 100)
	assert.Equal(t, []uint8{0, 127, 255, 255}, out)
}

func TestApplyWindowZeroWidthIsFlatMidGray(t *testing.T) {
	out := applyWindow([]float64{-40, 0, 77, 3000}, 100, 0)
	for _, v := range out {
		assert.Equal(t, uint8(128), v)
	}
}

func TestAutoWindowMatchesPercentiles(t *testing.T) {
	// 0..100 inclusive: p2 and p98 land exactly on 2 and 98.
	data := make([]float64, 101)
	for i := range data {
		data[i] = float64(i)
	}
	center, width := autoWindow(data)
	assert.InDelta(t, 50.0, center, 1e-9)
	assert.InDelta(t, 96.0, width, 1e-9)
}

func TestAutoWindowInterpolatesBetweenOrderStatistics(t *testing.T) {
	// 0..99: rank(2%) = 1.98, rank(98%) = 97.02.
	data := make([]float64, 100)
	for i := range data {
		data[i] = float64(i)
	}
	center, width := autoWindow(data)
	assert.InDelta(t, (1.98+97.02)/2, center, 1e-9)
	assert.InDelta(t, 97.02-1.98, width, 1e-9)
}

func TestAutoWindowWidthFloor(t *testing.T) {
	// Constant input: p98-p2 == 0, so the floor max(1, max-min) applies.
	data := []float64{42, 42, 42, 42}
	center, width := autoWindow(data)
	assert.InDelta(t, 42.0, center, 1e-9)
	assert.InDelta(t, 1.0, width, 1e-9)

	// Narrow but non-constant input keeps the max-min floor.
	data = []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 13}
	_, width = autoWindow(data)
	assert.GreaterOrEqual(t, width, 1.0)
}

func TestApplyRescaleIdentitySkipsArithmetic(t *testing.T) {
	data := []float64{0.1, 2.5, -7}
	want := []float64{0.1, 2.5, -7}
	applyRescale(data, 1, 0)
	assert.Equal(t, want, data)

	applyRescale(data, 2, -1)
	assert.Equal(t, []float64{-0.8, 4, -15}, data)
}

func TestPercentileSingleValue(t *testing.T) {
	assert.Equal(t, 7.0, percentile([]float64{7}, 98))
}
