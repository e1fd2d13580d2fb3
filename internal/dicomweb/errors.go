package dicomweb

import (
	"fmt"
	"sort"
	"strings"
)

// NetworkError is a transport, timeout, or unexpected-status failure while
// talking to the WADO endpoint. For a metadata fetch it is fatal for the
// whole study; for an instance fetch the scheduler drops the instance and
// continues.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// MalformedMetadataError means the metadata response lacks the required
// top-level "studies" key. Always fatal for the study fetch.
type MalformedMetadataError struct {
	AvailableKeys []string
}

func (e *MalformedMetadataError) Error() string {
	keys := append([]string(nil), e.AvailableKeys...)
	sort.Strings(keys)
	return fmt.Sprintf("invalid metadata structure: missing 'studies' key (available keys: %s)",
		strings.Join(keys, ", "))
}
