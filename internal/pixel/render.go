package pixel

import (
	"fmt"
	"image"
	"log/slog"
)

// placeholderSize is the edge length of the neutral raster returned when a
// transform cannot complete.
const placeholderSize = 512

// Meta is the provenance attached to every rendered raster.
type Meta struct {
	WindowCenter   float64
	WindowWidth    float64
	Interpretation Interpretation
	FrameIndex     int

	// Err is set when the raster is the error placeholder.
	Err string
}

// Raster is the pipeline output: an 8-bit grayscale or RGB image plus its
// provenance.
type Raster struct {
	Image image.Image
	Meta  Meta
}

// Render converts one frame of the decoded pixel data into an 8-bit raster.
// It never fails: any decode or transform problem produces a gray
// placeholder with Meta.Err describing the cause, so one bad image cannot
// abort an entire document.
func Render(pd *PixelData, frameIndex int) Raster {
	meta := Meta{FrameIndex: frameIndex}
	if pd == nil {
		return placeholder(meta, "no pixel data")
	}
	meta.Interpretation = pd.Interpretation

	frameData, shape, err := pd.frame(frameIndex)
	if err != nil {
		return placeholder(meta, err.Error())
	}
	// Work on a copy: rescale mutates, and other frames of the same
	// instance render from the same buffer.
	data := make([]float64, len(frameData))
	copy(data, frameData)

	wc, ww, hasWindow := declaredWindow(pd)

	switch pd.Interpretation {
	case Monochrome1, Monochrome2:
		invert := pd.Interpretation == Monochrome1
		return renderMonochrome(pd, data, shape, wc, ww, hasWindow, invert, meta)
	case RGB:
		return renderRGB(pd, data, shape, meta)
	case YBRFull, YBRFull422:
		return renderYBR(pd, data, shape, meta)
	case PaletteColor:
		r, lutErr := renderPalette(pd, data, shape, meta)
		if lutErr == nil {
			return r
		}
		slog.Warn("color LUT application failed, falling back to grayscale", "error", lutErr)
		copy(data, frameData)
		return renderMonochrome(pd, data, shape, wc, ww, hasWindow, false, meta)
	default:
		slog.Warn("unsupported photometric interpretation, treating as MONOCHROME2",
			"photometric", pd.Interpretation.String())
		return renderMonochrome(pd, data, shape, wc, ww, hasWindow, false, meta)
	}
}

// declaredWindow returns the image-declared window parameters, taking the
// first value of multi-valued tags.
func declaredWindow(pd *PixelData) (center, width float64, ok bool) {
	if len(pd.WindowCenter) == 0 || len(pd.WindowWidth) == 0 {
		return 0, 0, false
	}
	return pd.WindowCenter[0], pd.WindowWidth[0], true
}

func renderMonochrome(pd *PixelData, data []float64, shape []int, wc, ww float64, hasWindow, invert bool, meta Meta) Raster {
	if len(shape) != 2 {
		return placeholder(meta, fmt.Sprintf("invalid grayscale image shape: %v", shape))
	}
	rows, cols := shape[0], shape[1]

	applyRescale(data, pd.RescaleSlope, pd.RescaleIntercept)
	if !hasWindow {
		wc, ww = autoWindow(data)
	}
	pix := applyWindow(data, wc, ww)
	if invert {
		for i, v := range pix {
			pix[i] = 255 - v
		}
	}

	img := &image.Gray{Pix: pix, Stride: cols, Rect: image.Rect(0, 0, cols, rows)}
	meta.WindowCenter = wc
	meta.WindowWidth = ww
	return Raster{Image: img, Meta: meta}
}

func renderRGB(pd *PixelData, data []float64, shape []int, meta Meta) Raster {
	if len(shape) != 3 || shape[2] != 3 {
		return placeholder(meta, fmt.Sprintf("invalid RGB image shape: %v", shape))
	}
	if pd.BitsAllocated != 8 {
		normalizeToByteRange(data)
	}
	return Raster{Image: rgbImage(data, shape[0], shape[1]), Meta: meta}
}

func renderYBR(pd *PixelData, data []float64, shape []int, meta Meta) Raster {
	if len(shape) != 3 || shape[2] != 3 {
		return placeholder(meta, fmt.Sprintf("invalid %s image shape: %v", pd.Interpretation, shape))
	}
	if pd.BitsAllocated != 8 {
		normalizeToByteRange(data)
	}
	// Recenter chroma and convert to RGB in place.
	for i := 0; i < len(data); i += 3 {
		y := data[i]
		cb := data[i+1] - 128
		cr := data[i+2] - 128
		data[i] = y + 1.402*cr
		data[i+1] = y - 0.344136*cb - 0.714136*cr
		data[i+2] = y + 1.772*cb
	}
	return Raster{Image: rgbImage(data, shape[0], shape[1]), Meta: meta}
}

// renderPalette maps palette indices through the embedded color LUT. It is
// the only photometric arm that can fail back into the caller, which then
// retries through the grayscale path.
func renderPalette(pd *PixelData, data []float64, shape []int, meta Meta) (Raster, error) {
	if len(shape) != 2 {
		return Raster{}, fmt.Errorf("invalid palette image shape: %v", shape)
	}
	pal := pd.Palette
	if pal == nil || len(pal.Red) == 0 || len(pal.Green) == 0 || len(pal.Blue) == 0 {
		return Raster{}, fmt.Errorf("palette lookup table missing or empty")
	}

	rgb := make([]float64, len(data)*3)
	for i, v := range data {
		idx := int(v) - pal.FirstMapped
		rgb[i*3] = float64(lookup(pal.Red, idx))
		rgb[i*3+1] = float64(lookup(pal.Green, idx))
		rgb[i*3+2] = float64(lookup(pal.Blue, idx))
	}
	// LUT entries are commonly 16-bit; bring the result into byte range.
	if mn, mx := minMax(rgb); mn < 0 || mx > 255 {
		normalizeToByteRange(rgb)
	}
	return Raster{Image: rgbImage(rgb, shape[0], shape[1]), Meta: meta}, nil
}

func lookup(lut []uint16, idx int) uint16 {
	if idx < 0 {
		idx = 0
	}
	if idx >= len(lut) {
		idx = len(lut) - 1
	}
	return lut[idx]
}

// normalizeToByteRange min-max normalizes the whole buffer into [0,255]
// using a single global min and max, not per-channel values.
func normalizeToByteRange(data []float64) {
	mn, mx := minMax(data)
	if mx == mn {
		return
	}
	scale := 255 / (mx - mn)
	for i, v := range data {
		data[i] = (v - mn) * scale
	}
}

// rgbImage packs interleaved float RGB samples into an image.RGBA, clipping
// each channel to [0,255] at the final 8-bit cast.
func rgbImage(data []float64, rows, cols int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	for p := 0; p < rows*cols; p++ {
		img.Pix[p*4] = clampByte(data[p*3])
		img.Pix[p*4+1] = clampByte(data[p*3+1])
		img.Pix[p*4+2] = clampByte(data[p*3+2])
		img.Pix[p*4+3] = 0xff
	}
	return img
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// placeholder returns the fixed neutral raster used for every failure path.
func placeholder(meta Meta, cause string) Raster {
	img := image.NewGray(image.Rect(0, 0, placeholderSize, placeholderSize))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	meta.Err = cause
	return Raster{Image: img, Meta: meta}
}
