package pixel

import (
	"math"
	"sort"
)

// applyRescale applies the modality rescale (value*slope + intercept) in
// place. The multiply-add is skipped entirely for the identity calibration
// to avoid needless floating-point error.
func applyRescale(data []float64, slope, intercept float64) {
	if slope == 1 && intercept == 0 {
		return
	}
	for i, v := range data {
		data[i] = v*slope + intercept
	}
}

// applyWindow clips data to [center-width/2, center+width/2] and linearly
// remaps the clipped range to [0,255]. A zero-width window produces a flat
// mid-gray 128.
func applyWindow(data []float64, center, width float64) []uint8 {
	out := make([]uint8, len(data))
	lo := center - width/2
	hi := center + width/2
	if hi == lo {
		for i := range out {
			out[i] = 128
		}
		return out
	}
	scale := 255 / (hi - lo)
	for i, v := range data {
		if v < lo {
			v = lo
		} else if v > hi {
			v = hi
		}
		out[i] = uint8((v - lo) * scale)
	}
	return out
}

// autoWindow derives window parameters from the pixel intensities:
// center=(p2+p98)/2, width=p98-p2 from the 2nd and 98th percentiles, with
// the width floored at max(1, max-min) when it falls below 1.
func autoWindow(data []float64) (center, width float64) {
	if len(data) == 0 {
		return 128, 1
	}
	p2 := percentile(data, 2)
	p98 := percentile(data, 98)

	center = (p2 + p98) / 2
	width = p98 - p2
	if width < 1 {
		min, max := minMax(data)
		width = math.Max(1, max-min)
	}
	return center, width
}

// percentile computes the q-th percentile with linear interpolation between
// order statistics.
func percentile(data []float64, q float64) float64 {
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func minMax(data []float64) (min, max float64) {
	min, max = data[0], data[0]
	for _, v := range data[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
