package study

import (
	"sort"
	"strconv"
	"strings"
)

// Assembler is the single aggregation point for fetched instances. Fetch
// workers never touch Study or Series state directly; the scheduler hands
// finished instances to AddInstance sequentially, so no locking is needed.
type Assembler struct {
	studies     map[string]*Study
	studyOrder  []string
	nextArrival int
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{studies: make(map[string]*Study)}
}

// AddInstance stamps the instance with its arrival index and routes it into
// the study declared by its StudyUID, creating the study on first sight.
func (a *Assembler) AddInstance(inst *Instance) {
	inst.arrival = a.nextArrival
	a.nextArrival++

	st, ok := a.studies[inst.StudyUID]
	if !ok {
		st = NewStudy(inst.StudyUID)
		a.studies[inst.StudyUID] = st
		a.studyOrder = append(a.studyOrder, inst.StudyUID)
	}
	st.AddInstance(inst)
}

// Finalize sorts every series of every study and returns the studies that
// hold at least one non-empty series, keyed by StudyInstanceUID. Studies
// with no instances are discarded and never exposed. Series iteration order
// is fixed and reproducible after this call.
func (a *Assembler) Finalize() map[string]*Study {
	out := make(map[string]*Study, len(a.studies))
	for _, uid := range a.studyOrder {
		st := a.studies[uid]
		if st.InstanceCount() == 0 {
			continue
		}
		for _, ser := range st.series {
			sortInstances(ser.Instances)
		}
		out[uid] = st
	}
	return out
}

// sortInstances orders a series by Z position, then instance number, then
// arrival index. The sort is stable so ties beyond the arrival index keep
// their relative order.
func sortInstances(instances []*Instance) {
	sort.SliceStable(instances, func(i, j int) bool {
		a, b := instances[i], instances[j]
		az, bz := a.positionZ(), b.positionZ()
		if az != bz {
			return az < bz
		}
		an, bn := a.instanceNumber(), b.instanceNumber()
		if an != bn {
			return an < bn
		}
		return a.arrival < b.arrival
	})
}

// positionZ parses ImagePositionPatient[2], defaulting to 0 when absent or
// unparsable.
func (inst *Instance) positionZ() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(inst.ImagePositionZ), 64)
	if err != nil {
		return 0
	}
	return v
}

// instanceNumber parses the IS-typed InstanceNumber, defaulting to 0.
func (inst *Instance) instanceNumber() int {
	v, err := strconv.Atoi(strings.TrimSpace(inst.InstanceNumber))
	if err != nil {
		return 0
	}
	return v
}
