package dicomweb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStudyMetadataParsesTree(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1.2.3", r.URL.Query().Get("studyUID"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`{
			"studies": [
				{"study_iuid": "1.2.3", "series": [
					{"series_iuid": "1.2.3.1", "instances": [{"sop_iuid": "1.2.3.1.1"}, {"sop_iuid": "1.2.3.1.2"}]},
					{"series_iuid": "1.2.3.2", "instances": []}
				]}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, time.Second)
	meta, err := c.GetStudyMetadata(context.Background(), "1.2.3")
	require.NoError(t, err)
	require.Len(t, meta.Studies, 1)
	assert.Equal(t, "1.2.3", meta.Studies[0].StudyUID)
	assert.Len(t, meta.Studies[0].Series, 2)
	assert.Equal(t, 2, meta.InstanceCount())
}

func TestGetStudyMetadataMissingStudiesKeyIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": [], "status": "ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, time.Second)
	_, err := c.GetStudyMetadata(context.Background(), "1.2.3")

	var malformed *MalformedMetadataError
	require.ErrorAs(t, err, &malformed)
	assert.ElementsMatch(t, []string{"result", "status"}, malformed.AvailableKeys)
}

func TestGetStudyMetadataEmptyStudiesListIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"studies": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, time.Second)
	meta, err := c.GetStudyMetadata(context.Background(), "1.2.3")
	require.NoError(t, err)
	assert.Empty(t, meta.Studies)
}

func TestGetStudyMetadataNonOKStatusIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, time.Second)
	_, err := c.GetStudyMetadata(context.Background(), "1.2.3")

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestGetStudyMetadataEmptyUIDRejected(t *testing.T) {
	c := NewClient("http://example.invalid", time.Second, time.Second)
	_, err := c.GetStudyMetadata(context.Background(), "")
	assert.Error(t, err)
}

func TestFetchInstanceNonOKStatusIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, time.Second)
	_, err := c.FetchInstance(context.Background(), "1.2.3", "1.2.3.1", "1.2.3.1.1")

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestFetchInstanceCorruptPayloadIsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/dicom", r.Header.Get("Accept"))
		assert.Equal(t, "/images", r.URL.Path)
		w.Write([]byte("definitely not a DICOM object"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, time.Second)
	_, err := c.FetchInstance(context.Background(), "1.2.3", "1.2.3.1", "1.2.3.1.1")

	require.Error(t, err)
	var netErr *NetworkError
	assert.False(t, errors.As(err, &netErr), "decode failures must not be network errors")
}

func TestFetchInstanceTimeoutIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, 20*time.Millisecond)
	_, err := c.FetchInstance(context.Background(), "1.2.3", "1.2.3.1", "1.2.3.1.1")

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestParseMetadataRejectsNonObjectBody(t *testing.T) {
	_, err := parseMetadata([]byte(`[1, 2, 3]`))
	assert.Error(t, err)
}
