// Package study organizes retrieved DICOM instances into the
// study -> series -> instance hierarchy with deterministic ordering.
package study

import (
	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/pixel"
)

// Instance is one decoded DICOM object. Instances are immutable once built;
// ownership moves from the fetch task into the owning Series.
type Instance struct {
	StudyUID       string
	SeriesUID      string
	SOPInstanceUID string

	// Study-level descriptive tags carried by this instance, if any.
	PatientName      string
	PatientID        string
	StudyDate        string
	AccessionNumber  string
	StudyDescription string

	// Series-level tags.
	SeriesDescription string
	Modality          string

	// Raw sort keys. Both are decimal strings in DICOM; unparsable or
	// missing values sort as 0.
	ImagePositionZ string // ImagePositionPatient[2]
	InstanceNumber string

	// Pixels holds the decoded pixel module for the pixel pipeline. May be
	// nil when the payload carried no usable pixel data; rendering then
	// degrades to the placeholder raster.
	Pixels *pixel.PixelData

	// arrival is assigned by the Assembler and breaks sort-key ties
	// deterministically regardless of fetch completion order.
	arrival int
}

// Series groups instances that share a SeriesInstanceUID. Instance order is
// undefined until the owning study is finalized.
type Series struct {
	SeriesUID   string
	Description string
	Modality    string
	Instances   []*Instance
}

func newSeries(seriesUID, description string) *Series {
	return &Series{SeriesUID: seriesUID, Description: description}
}

func (s *Series) addInstance(inst *Instance) {
	s.Instances = append(s.Instances, inst)
	if s.Modality == "" && inst.Modality != "" {
		s.Modality = inst.Modality
	}
	if s.Description == "" && inst.SeriesDescription != "" {
		s.Description = inst.SeriesDescription
	}
}

// Study is one DICOM study. Descriptive fields are populated first-write-wins
// from whichever instance first carries them.
type Study struct {
	StudyUID         string
	PatientName      string
	PatientID        string
	StudyDate        string
	AccessionNumber  string
	StudyDescription string

	series      map[string]*Series
	seriesOrder []string
}

// NewStudy creates an empty study for the given StudyInstanceUID.
func NewStudy(studyUID string) *Study {
	return &Study{
		StudyUID: studyUID,
		series:   make(map[string]*Series),
	}
}

// AddInstance routes the instance into its series bucket, creating the
// series on first sight, and fills unset study-level fields.
func (st *Study) AddInstance(inst *Instance) {
	seriesUID := inst.SeriesUID
	if seriesUID == "" {
		seriesUID = "UNKNOWN"
	}

	ser, ok := st.series[seriesUID]
	if !ok {
		ser = newSeries(seriesUID, inst.SeriesDescription)
		st.series[seriesUID] = ser
		st.seriesOrder = append(st.seriesOrder, seriesUID)
	}
	ser.addInstance(inst)

	if st.PatientName == "" {
		st.PatientName = inst.PatientName
	}
	if st.PatientID == "" {
		st.PatientID = inst.PatientID
	}
	if st.StudyDate == "" {
		st.StudyDate = inst.StudyDate
	}
	if st.AccessionNumber == "" {
		st.AccessionNumber = inst.AccessionNumber
	}
	if st.StudyDescription == "" {
		st.StudyDescription = inst.StudyDescription
	}
}

// Series returns the study's series in first-seen order.
func (st *Study) Series() []*Series {
	out := make([]*Series, 0, len(st.seriesOrder))
	for _, uid := range st.seriesOrder {
		out = append(out, st.series[uid])
	}
	return out
}

// SeriesCount reports the number of series in the study.
func (st *Study) SeriesCount() int { return len(st.series) }

// InstanceCount reports the total number of instances across all series.
func (st *Study) InstanceCount() int {
	n := 0
	for _, ser := range st.series {
		n += len(ser.Instances)
	}
	return n
}
