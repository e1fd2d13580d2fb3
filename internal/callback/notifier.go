// Package callback delivers render results and processing logs to external
// endpoints. Deliveries are fire-and-forget: there is no retry logic.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ResultPayload is the body posted to the requester's callback URL after a
// successful render. The Cod* fields are pass-through billing codes.
type ResultPayload struct {
	PDF             string `json:"PDF"` // base64-encoded document
	CodAutorizacao  string `json:"CodAutorizacao"`
	CodFaturamento  string `json:"CodFaturamento"`
	CodProcedimento string `json:"CodProcedimento"`
}

// LogEntry is the body posted to the external log endpoint.
type LogEntry struct {
	ExamID        int64          `json:"exameID"`
	Success       bool           `json:"success"`
	Message       string         `json:"message"`
	StatusCode    int            `json:"statusCode"`
	StatusMessage string         `json:"statusMessage"`
	Extra         map[string]any `json:"-"`
}

// Notifier posts callbacks over an injected HTTP client, which allows
// passing an instrumented one.
type Notifier struct {
	httpClient *http.Client
	logURL     string
}

// NewNotifier creates a Notifier. logURL may be empty, which disables the
// external log callback.
func NewNotifier(client *http.Client, logURL string) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Notifier{httpClient: client, logURL: logURL}
}

// SendResult posts the rendered document to the callback URL.
func (n *Notifier) SendResult(ctx context.Context, callbackURL, authorization string, payload ResultPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authorization)
	req.Header.Set("User-Agent", "integracao.mobilemed")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("callback returned status %d: %s", resp.StatusCode, string(respBody))
	}
	slog.InfoContext(ctx, "Callback delivered", "url", callbackURL)
	return nil
}

// SendLog posts a processing log entry to the configured log endpoint.
// Failures are logged and reported through the return value, never fatal.
func (n *Notifier) SendLog(ctx context.Context, entry LogEntry, integrationToken string) bool {
	if n.logURL == "" {
		slog.WarnContext(ctx, "CREATE_LOG_URL not configured, skipping log callback")
		return false
	}

	payload := map[string]any{
		"exameID":       entry.ExamID,
		"success":       entry.Success,
		"message":       entry.Message,
		"statusCode":    entry.StatusCode,
		"statusMessage": entry.StatusMessage,
	}
	for k, v := range entry.Extra {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode log callback payload", "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.logURL, bytes.NewReader(body))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to create log callback request", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", integrationToken)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to send log callback", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.ErrorContext(ctx, "Log callback returned non-success status",
			"statusCode", resp.StatusCode)
		return false
	}
	slog.InfoContext(ctx, "Log callback sent", "examID", entry.ExamID, "success", entry.Success)
	return true
}
