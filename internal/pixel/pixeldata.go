package pixel

import "fmt"

// Palette is an embedded color lookup table for PALETTE COLOR objects.
// Entries wider than 8 bits are scaled down at application time.
type Palette struct {
	Red, Green, Blue []uint16
	FirstMapped      int
	BitsPerEntry     int
}

// PixelData is the decoded pixel module of a single instance: a flat
// float64 buffer with its shape plus the attributes the transform needs.
// Shape is one of [rows cols], [frames rows cols], [rows cols 3] or
// [frames rows cols 3], row-major.
type PixelData struct {
	Shape []int
	Data  []float64

	Interpretation Interpretation

	// DeclaredFrames is NumberOfFrames, 0 when the attribute is absent.
	DeclaredFrames int

	// Declared window values; multi-valued tags keep all values and the
	// pipeline takes the first of each.
	WindowCenter []float64
	WindowWidth  []float64

	RescaleSlope     float64
	RescaleIntercept float64

	BitsAllocated int
	Palette       *Palette
}

// FrameCount reports the number of frames. A declared NumberOfFrames > 1
// wins; otherwise the count is inferred from the shape: a trailing axis of
// size 3 is a color channel (one frame), and a leading axis smaller than
// 100 and smaller than the next axis is treated as the frame axis.
func (pd *PixelData) FrameCount() int {
	if pd.DeclaredFrames > 1 {
		return pd.DeclaredFrames
	}
	if len(pd.Shape) > 2 {
		if pd.Shape[len(pd.Shape)-1] == 3 {
			return 1
		}
		if pd.Shape[0] < 100 && pd.Shape[0] < pd.Shape[1] {
			return pd.Shape[0]
		}
	}
	return 1
}

// frame selects one frame off the leading axis, returning the frame's data
// and shape. Single-frame data passes through untouched regardless of the
// requested index; for multi-frame data an index at or beyond the leading
// axis is an error.
func (pd *PixelData) frame(index int) ([]float64, []int, error) {
	if len(pd.Shape) == 0 || len(pd.Data) == 0 {
		return nil, nil, fmt.Errorf("no pixel data")
	}
	if pd.FrameCount() <= 1 {
		return pd.Data, pd.Shape, nil
	}
	if index >= pd.Shape[0] || index < 0 {
		return nil, nil, fmt.Errorf("frame index %d out of range (max: %d)", index, pd.Shape[0]-1)
	}
	frameShape := pd.Shape[1:]
	size := 1
	for _, d := range frameShape {
		size *= d
	}
	start := index * size
	if start+size > len(pd.Data) {
		return nil, nil, fmt.Errorf("pixel buffer too small for frame %d", index)
	}
	return pd.Data[start : start+size], frameShape, nil
}
