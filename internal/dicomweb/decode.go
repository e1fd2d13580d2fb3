package dicomweb

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/pixel"
	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/study"
)

// decodeInstance parses a binary DICOM payload into a study.Instance. Only
// an unparsable payload fails; missing pixel data still produces an
// instance, whose rendering later degrades to the placeholder raster.
func decodeInstance(payload []byte) (*study.Instance, error) {
	ds, err := dicom.Parse(bytes.NewReader(payload), int64(len(payload)), nil)
	if err != nil {
		return nil, fmt.Errorf("could not parse DICOM payload: %w", err)
	}

	inst := &study.Instance{
		StudyUID:          firstString(ds, tag.StudyInstanceUID),
		SeriesUID:         firstString(ds, tag.SeriesInstanceUID),
		SOPInstanceUID:    firstString(ds, tag.SOPInstanceUID),
		PatientName:       firstString(ds, tag.PatientName),
		PatientID:         firstString(ds, tag.PatientID),
		StudyDate:         firstString(ds, tag.StudyDate),
		AccessionNumber:   firstString(ds, tag.AccessionNumber),
		StudyDescription:  firstString(ds, tag.StudyDescription),
		SeriesDescription: firstString(ds, tag.SeriesDescription),
		Modality:          firstString(ds, tag.Modality),
		InstanceNumber:    firstString(ds, tag.InstanceNumber),
	}
	if pos := stringValues(ds, tag.ImagePositionPatient); len(pos) >= 3 {
		inst.ImagePositionZ = pos[2]
	}

	inst.Pixels = decodePixelData(ds)
	return inst, nil
}

// decodePixelData extracts the pixel module. It never fails: attributes it
// cannot read stay at their defaults and an unreadable pixel buffer leaves
// Shape empty.
func decodePixelData(ds dicom.Dataset) *pixel.PixelData {
	pd := &pixel.PixelData{
		Interpretation:   pixel.ParseInterpretation(firstString(ds, tag.PhotometricInterpretation)),
		DeclaredFrames:   firstInt(ds, tag.NumberOfFrames),
		WindowCenter:     floatValues(ds, tag.WindowCenter),
		WindowWidth:      floatValues(ds, tag.WindowWidth),
		RescaleSlope:     firstFloat(ds, tag.RescaleSlope, 1),
		RescaleIntercept: firstFloat(ds, tag.RescaleIntercept, 0),
		BitsAllocated:    firstInt(ds, tag.BitsAllocated),
	}
	if pd.Interpretation == pixel.PaletteColor {
		pd.Palette = decodePalette(ds)
	}

	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil || elem.Value == nil {
		return pd
	}
	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || info.IsEncapsulated || len(info.Frames) == 0 {
		return pd
	}

	var (
		data    []float64
		rows    int
		cols    int
		samples int
	)
	for _, fr := range info.Frames {
		native, err := fr.GetNativeFrame()
		if err != nil {
			return pd
		}
		rows, cols = native.Rows, native.Cols
		for _, px := range native.Data {
			if samples == 0 {
				samples = len(px)
			}
			for _, sample := range px {
				data = append(data, float64(sample))
			}
		}
	}

	switch {
	case samples == 0:
		return pd
	case len(info.Frames) > 1 && samples == 1:
		pd.Shape = []int{len(info.Frames), rows, cols}
	case len(info.Frames) > 1:
		pd.Shape = []int{len(info.Frames), rows, cols, samples}
	case samples == 1:
		pd.Shape = []int{rows, cols}
	default:
		pd.Shape = []int{rows, cols, samples}
	}
	pd.Data = data
	return pd
}

// decodePalette reads the red/green/blue lookup tables. The descriptor is
// (entries, first mapped value, bits per entry); entries==0 means 65536.
func decodePalette(ds dicom.Dataset) *pixel.Palette {
	desc := intValues(ds, tag.RedPaletteColorLookupTableDescriptor)
	if len(desc) < 3 {
		return nil
	}
	pal := &pixel.Palette{
		FirstMapped:  desc[1],
		BitsPerEntry: desc[2],
	}
	pal.Red = lutValues(ds, tag.RedPaletteColorLookupTableData, pal.BitsPerEntry)
	pal.Green = lutValues(ds, tag.GreenPaletteColorLookupTableData, pal.BitsPerEntry)
	pal.Blue = lutValues(ds, tag.BluePaletteColorLookupTableData, pal.BitsPerEntry)
	if len(pal.Red) == 0 || len(pal.Green) == 0 || len(pal.Blue) == 0 {
		return nil
	}
	return pal
}

// lutValues decodes one palette channel, handling both raw byte buffers and
// already-widened integer values.
func lutValues(ds dicom.Dataset, t tag.Tag, bitsPerEntry int) []uint16 {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return nil
	}
	switch v := elem.Value.GetValue().(type) {
	case []byte:
		if bitsPerEntry > 8 {
			out := make([]uint16, 0, len(v)/2)
			for i := 0; i+1 < len(v); i += 2 {
				out = append(out, uint16(v[i])|uint16(v[i+1])<<8)
			}
			return out
		}
		out := make([]uint16, len(v))
		for i, b := range v {
			out[i] = uint16(b)
		}
		return out
	case []int:
		out := make([]uint16, len(v))
		for i, n := range v {
			out[i] = uint16(n)
		}
		return out
	default:
		return nil
	}
}

// stringValues returns a tag's values as strings, or nil when absent.
func stringValues(ds dicom.Dataset, t tag.Tag) []string {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return nil
	}
	switch v := elem.Value.GetValue().(type) {
	case []string:
		return v
	case string:
		return []string{v}
	default:
		return nil
	}
}

func firstString(ds dicom.Dataset, t tag.Tag) string {
	if vals := stringValues(ds, t); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

// floatValues parses a tag's values as floats, tolerating the string
// encodings used by DS and IS elements.
func floatValues(ds dicom.Dataset, t tag.Tag) []float64 {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return nil
	}
	switch v := elem.Value.GetValue().(type) {
	case []float64:
		return v
	case []int:
		out := make([]float64, len(v))
		for i, n := range v {
			out[i] = float64(n)
		}
		return out
	case []string:
		out := make([]float64, 0, len(v))
		for _, s := range v {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				continue
			}
			out = append(out, f)
		}
		return out
	default:
		return nil
	}
}

func firstFloat(ds dicom.Dataset, t tag.Tag, fallback float64) float64 {
	if vals := floatValues(ds, t); len(vals) > 0 {
		return vals[0]
	}
	return fallback
}

func intValues(ds dicom.Dataset, t tag.Tag) []int {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return nil
	}
	switch v := elem.Value.GetValue().(type) {
	case []int:
		return v
	case []string:
		out := make([]int, 0, len(v))
		for _, s := range v {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				continue
			}
			out = append(out, n)
		}
		return out
	default:
		return nil
	}
}

func firstInt(ds dicom.Dataset, t tag.Tag) int {
	if vals := intValues(ds, t); len(vals) > 0 {
		return vals[0]
	}
	return 0
}
