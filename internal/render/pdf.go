// Package render lays out finalized studies into a PDF document: an
// optional cover page followed by one page per image frame, in the
// deterministic order the assembler produced.
package render

import (
	"bytes"
	"fmt"
	"image/png"
	"log/slog"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/pixel"
	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/study"
)

// Options controls document generation.
type Options struct {
	CoverPage bool
	Anonymize bool
}

// A4 page geometry in millimeters.
const (
	pageWidth    = 210.0
	pageHeight   = 297.0
	margin       = 12.0
	headerY      = 10.0
	footerY      = pageHeight - 8.0
	imageTop     = 18.0
	imageMaxW    = pageWidth - 2*margin
	imageMaxH    = footerY - imageTop - 8.0
	anonymizedAs = "[ANONYMIZED]"
)

// CreatePDF renders every study into a single PDF. Image failures never
// abort the document: the pixel pipeline substitutes its placeholder and
// the error is noted in the page footer.
func CreatePDF(studies map[string]*study.Study, opts Options) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)

	// Deterministic study order regardless of map iteration.
	uids := make([]string, 0, len(studies))
	for uid := range studies {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	imageIndex := 0
	for _, uid := range uids {
		st := studies[uid]
		if opts.CoverPage {
			writeCoverPage(pdf, st, opts.Anonymize)
		}
		for _, ser := range st.Series() {
			for i, inst := range ser.Instances {
				frames := 1
				if inst.Pixels != nil {
					frames = inst.Pixels.FrameCount()
				}
				for frame := 0; frame < frames; frame++ {
					raster := pixel.Render(inst.Pixels, frame)
					if raster.Meta.Err != "" {
						slog.Warn("Rendering image produced placeholder",
							"sopUID", inst.SOPInstanceUID, "frame", frame, "error", raster.Meta.Err)
					}
					imageIndex++
					if err := writeImagePage(pdf, ser, raster, i+1, len(ser.Instances), frame, frames, imageIndex); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return out.Bytes(), nil
}

func writeCoverPage(pdf *gofpdf.Fpdf, st *study.Study, anonymize bool) {
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 24)
	pdf.CellFormat(0, 30, "DICOM Study Report", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 12)
	patientName, patientID := st.PatientName, st.PatientID
	if anonymize {
		patientName, patientID = anonymizedAs, anonymizedAs
	}
	writeCoverLine(pdf, "Patient Name", orUnknown(patientName))
	writeCoverLine(pdf, "Patient ID", orUnknown(patientID))
	writeCoverLine(pdf, "Study Date", formatStudyDate(st.StudyDate))
	writeCoverLine(pdf, "Accession Number", orUnknown(st.AccessionNumber))
	writeCoverLine(pdf, "Study UID", st.StudyUID)
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Series Summary:", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	for _, ser := range st.Series() {
		desc := ser.Description
		if desc == "" {
			desc = ser.SeriesUID
		}
		line := fmt.Sprintf("- %s (%s): %d images", desc, orUnknown(ser.Modality), len(ser.Instances))
		pdf.CellFormat(0, 7, line, "", 1, "L", false, 0, "")
	}
}

func writeCoverLine(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(48, 7, label+":", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 7, value, "", 1, "L", false, 0, "")
}

func writeImagePage(pdf *gofpdf.Fpdf, ser *study.Series, raster pixel.Raster,
	instanceIdx, instanceTotal, frame, frames, imageIndex int) error {

	var buf bytes.Buffer
	if err := png.Encode(&buf, raster.Image); err != nil {
		return fmt.Errorf("failed to encode raster: %w", err)
	}

	pdf.AddPage()

	// Header.
	pdf.SetFont("Helvetica", "", 10)
	seriesName := ser.Description
	if seriesName == "" {
		seriesName = ser.SeriesUID
	}
	pdf.Text(margin, headerY, "Series: "+seriesName)
	pageLabel := fmt.Sprintf("Page %d", pdf.PageNo())
	pdf.Text(pageWidth-margin-pdf.GetStringWidth(pageLabel), headerY, pageLabel)

	// Image, scaled to fit and centered.
	name := fmt.Sprintf("img-%d", imageIndex)
	opt := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opt, &buf)

	b := raster.Image.Bounds()
	w, h := fitBox(float64(b.Dx()), float64(b.Dy()), imageMaxW, imageMaxH)
	x := (pageWidth - w) / 2
	y := imageTop + (imageMaxH-h)/2
	pdf.ImageOptions(name, x, y, w, h, false, opt, 0, "")

	// Footer: instance/frame provenance on the left, window or error on
	// the right.
	pdf.SetFont("Helvetica", "", 8)
	info := fmt.Sprintf("Instance %d/%d", instanceIdx, instanceTotal)
	if frames > 1 {
		info += fmt.Sprintf(" - Frame %d/%d", frame+1, frames)
	}
	pdf.Text(margin, footerY, info)

	var windowInfo string
	switch {
	case raster.Meta.Err != "":
		windowInfo = "Error: " + raster.Meta.Err
	case raster.Meta.WindowWidth != 0:
		windowInfo = fmt.Sprintf("C: %.1f W: %.1f", raster.Meta.WindowCenter, raster.Meta.WindowWidth)
	default:
		windowInfo = raster.Meta.Interpretation.String()
	}
	pdf.Text(pageWidth-margin-pdf.GetStringWidth(windowInfo), footerY, windowInfo)

	return pdf.Error()
}

// fitBox scales (w,h) to fit inside (maxW,maxH) preserving aspect ratio.
func fitBox(w, h, maxW, maxH float64) (float64, float64) {
	scale := maxW / w
	if s := maxH / h; s < scale {
		scale = s
	}
	return w * scale, h * scale
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// formatStudyDate renders the DICOM DA value YYYYMMDD as YYYY-MM-DD,
// passing anything else through untouched.
func formatStudyDate(s string) string {
	if len(s) != 8 {
		return orUnknown(s)
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02")
}
