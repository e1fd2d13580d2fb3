package dicomweb

import "encoding/json"

// Metadata is the study metadata tree returned by the WADO endpoint.
type Metadata struct {
	Studies []StudyEntry `json:"studies"`
}

// StudyEntry describes one study in the metadata tree.
type StudyEntry struct {
	StudyUID string        `json:"study_iuid"`
	Series   []SeriesEntry `json:"series"`
}

// SeriesEntry describes one series and the instances it declares.
type SeriesEntry struct {
	SeriesUID string          `json:"series_iuid"`
	Instances []InstanceEntry `json:"instances"`
}

// InstanceEntry identifies one retrievable object within a series.
type InstanceEntry struct {
	ObjectUID string `json:"sop_iuid"`
}

// InstanceCount counts all declared instances across every study and series.
func (m *Metadata) InstanceCount() int {
	n := 0
	for _, st := range m.Studies {
		for _, se := range st.Series {
			n += len(se.Instances)
		}
	}
	return n
}

// parseMetadata decodes the metadata body, failing with
// MalformedMetadataError when the top-level "studies" key is absent.
func parseMetadata(body []byte) (*Metadata, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if _, ok := raw["studies"]; !ok {
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		return nil, &MalformedMetadataError{AvailableKeys: keys}
	}

	var meta Metadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
