// Package dicomweb retrieves DICOM studies over the WADO protocol and
// schedules bounded-parallel instance downloads.
package dicomweb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andre-mobilemed/create-pdf-from-dicom-images/internal/study"
)

const userAgent = "DICOM-PDF-Converter/1.0"

// Client talks to a DICOMweb WADO endpoint. Metadata requests and instance
// downloads use separate HTTP clients because instance fetches carry a
// materially shorter timeout: a single slow object must not stall its
// series for the full metadata budget.
type Client struct {
	BaseURL        string
	metadataClient *http.Client
	instanceClient *http.Client
}

// NewClient creates a WADO client with default HTTP clients for the given
// timeouts.
func NewClient(baseURL string, metadataTimeout, instanceTimeout time.Duration) *Client {
	return NewClientWithHTTPClients(baseURL,
		&http.Client{Timeout: metadataTimeout},
		&http.Client{Timeout: instanceTimeout})
}

// NewClientWithHTTPClients creates a WADO client with specific HTTP clients.
// This allows passing instrumented clients.
func NewClientWithHTTPClients(baseURL string, metadataClient, instanceClient *http.Client) *Client {
	if metadataClient == nil {
		metadataClient = &http.Client{Timeout: 30 * time.Second}
	}
	if instanceClient == nil {
		instanceClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		metadataClient: metadataClient,
		instanceClient: instanceClient,
	}
}

// GetStudyMetadata fetches the metadata tree for a study. A missing
// top-level "studies" key yields a MalformedMetadataError; transport and
// status failures yield a NetworkError. Both are unrecoverable for the
// whole study.
func (c *Client) GetStudyMetadata(ctx context.Context, studyUID string) (*Metadata, error) {
	if studyUID == "" {
		return nil, fmt.Errorf("studyUID cannot be empty")
	}
	targetURL := fmt.Sprintf("%s?studyUID=%s", c.BaseURL, url.QueryEscape(studyUID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	slog.InfoContext(ctx, "Fetching study metadata", "url", targetURL)

	resp, err := c.metadataClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "fetch metadata", URL: targetURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		slog.ErrorContext(ctx, "WADO endpoint returned non-OK status for metadata",
			"url", targetURL, "statusCode", resp.StatusCode, "responseBody", string(bodyBytes))
		return nil, &NetworkError{Op: "fetch metadata", URL: targetURL,
			Err: fmt.Errorf("non-OK status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "read metadata", URL: targetURL, Err: err}
	}

	meta, err := parseMetadata(body)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "Successfully fetched study metadata",
		"studyUID", studyUID, "studies", len(meta.Studies), "instances", meta.InstanceCount())
	return meta, nil
}

// FetchInstance downloads and decodes one DICOM object. Transport, status,
// and decode failures all return an error for the caller to log and drop;
// fetches are never retried.
func (c *Client) FetchInstance(ctx context.Context, studyUID, seriesUID, objectUID string) (*study.Instance, error) {
	params := url.Values{}
	params.Set("studyUID", studyUID)
	params.Set("seriesUID", seriesUID)
	params.Set("objectUID", objectUID)
	targetURL := fmt.Sprintf("%s/images?%s", c.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create instance request: %w", err)
	}
	req.Header.Set("Accept", "application/dicom")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.instanceClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "fetch instance", URL: targetURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &NetworkError{Op: "fetch instance", URL: targetURL,
			Err: fmt.Errorf("non-OK status %d: %s", resp.StatusCode, string(bodyBytes))}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: "read instance", URL: targetURL, Err: err}
	}
	if len(payload) > 1<<20 {
		slog.DebugContext(ctx, "Downloaded large instance",
			"objectUID", objectUID, "sizeMB", fmt.Sprintf("%.1f", float64(len(payload))/(1<<20)))
	}

	inst, err := decodeInstance(payload)
	if err != nil {
		return nil, err
	}
	return inst, nil
}
