// Package pixel converts decoded DICOM pixel data into normalized 8-bit
// rasters for display or print. The pipeline is pure: no I/O, no
// concurrency, and it never panics or returns an error to its caller — any
// failure yields a neutral placeholder raster with an error note attached.
package pixel

import "strings"

// Interpretation enumerates the photometric interpretations the pipeline
// handles. Unknown tag values parse to Other, which renders through the
// MONOCHROME2 path.
type Interpretation int

const (
	Monochrome2 Interpretation = iota
	Monochrome1
	RGB
	YBRFull
	YBRFull422
	PaletteColor
	Other
)

var interpretationNames = map[Interpretation]string{
	Monochrome1:  "MONOCHROME1",
	Monochrome2:  "MONOCHROME2",
	RGB:          "RGB",
	YBRFull:      "YBR_FULL",
	YBRFull422:   "YBR_FULL_422",
	PaletteColor: "PALETTE COLOR",
	Other:        "OTHER",
}

func (i Interpretation) String() string {
	if s, ok := interpretationNames[i]; ok {
		return s
	}
	return "OTHER"
}

// ParseInterpretation maps the PhotometricInterpretation tag value to an
// Interpretation. An absent tag defaults to MONOCHROME2, matching how most
// grayscale objects in the wild are encoded.
func ParseInterpretation(s string) Interpretation {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "MONOCHROME2":
		return Monochrome2
	case "MONOCHROME1":
		return Monochrome1
	case "RGB":
		return RGB
	case "YBR_FULL":
		return YBRFull
	case "YBR_FULL_422":
		return YBRFull422
	case "PALETTE COLOR", "PALETTE_COLOR":
		return PaletteColor
	default:
		return Other
	}
}
