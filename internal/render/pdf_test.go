package render

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/pixel"
	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/study"
)

func buildStudies(t *testing.T) map[string]*study.Study {
	t.Helper()
	a := study.NewAssembler()

	withPixels := &study.Instance{
		StudyUID:       "study-1",
		SeriesUID:      "ser-1",
		SOPInstanceUID: "sop-1",
		PatientName:    "DOE^JANE",
		PatientID:      "PID-1",
		StudyDate:      "20250102",
		Modality:       "CT",
		InstanceNumber: "1",
		Pixels: &pixel.PixelData{
			Shape:          []int{8, 8},
			Data:           make([]float64, 64),
			Interpretation: pixel.Monochrome2,
			RescaleSlope:   1,
		},
	}
	// No pixel data at all: rendered as the placeholder page.
	broken := &study.Instance{
		StudyUID:       "study-1",
		SeriesUID:      "ser-1",
		SOPInstanceUID: "sop-2",
		InstanceNumber: "2",
	}
	a.AddInstance(withPixels)
	a.AddInstance(broken)
	return a.Finalize()
}

func TestCreatePDFProducesDocument(t *testing.T) {
	out, err := CreatePDF(buildStudies(t), Options{CoverPage: true})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
	assert.Greater(t, len(out), 1000)
}

func TestCreatePDFPlaceholderDoesNotAbortDocument(t *testing.T) {
	a := study.NewAssembler()
	a.AddInstance(&study.Instance{
		StudyUID:       "study-1",
		SeriesUID:      "ser-1",
		SOPInstanceUID: "sop-1",
	})

	out, err := CreatePDF(a.Finalize(), Options{})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestCreatePDFMultiFrameEmitsOnePagePerFrame(t *testing.T) {
	a := study.NewAssembler()
	a.AddInstance(&study.Instance{
		StudyUID:       "study-1",
		SeriesUID:      "ser-1",
		SOPInstanceUID: "sop-1",
		Pixels: &pixel.PixelData{
			Shape:          []int{3, 8, 8},
			Data:           make([]float64, 3*64),
			Interpretation: pixel.Monochrome2,
			DeclaredFrames: 3,
			RescaleSlope:   1,
		},
	})

	multi, err := CreatePDF(a.Finalize(), Options{})
	require.NoError(t, err)

	single, err := CreatePDF(buildStudies(t), Options{})
	require.NoError(t, err)

	// Three frame pages versus two instance pages. Sizes differ because the
	// page counts differ; both are complete documents.
	assert.True(t, bytes.HasPrefix(multi, []byte("%PDF")))
	assert.True(t, bytes.HasPrefix(single, []byte("%PDF")))
	assert.NotEqual(t, len(multi), len(single))
}

func TestFormatStudyDate(t *testing.T) {
	assert.Equal(t, "2025-01-02", formatStudyDate("20250102"))
	assert.Equal(t, "Unknown", formatStudyDate(""))
	assert.Equal(t, "2025", formatStudyDate("2025"))
	assert.Equal(t, "20251302", formatStudyDate("20251302"))
}

func TestFitBox(t *testing.T) {
	w, h := fitBox(100, 50, 200, 200)
	assert.Equal(t, 200.0, w)
	assert.Equal(t, 100.0, h)

	w, h = fitBox(50, 100, 200, 100)
	assert.Equal(t, 50.0, w)
	assert.Equal(t, 100.0, h)
}
