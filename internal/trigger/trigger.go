// Package trigger fires the asynchronous statement parsing job.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kieranpgray/coinbag-sub006/internal/core"
)

// Client POSTs job requests to the parsing service. It implements
// core.Trigger.
//
// The call is fire-and-forget: the HTTP response only says whether the job
// was accepted, never whether parsing succeeded. Failures are split into
// soft (the job may still run, keep watching the status channel) and hard
// (the request was rejected, the job will not run).
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	log      *slog.Logger
}

// NewClient builds a trigger client. timeout bounds the trigger request
// itself, not the parsing job; log may be nil.
func NewClient(endpoint, apiKey string, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

type jobRequest struct {
	ImportID      string `json:"import_id"`
	CorrelationID string `json:"correlation_id"`
}

// Trigger fires the parsing job for an import.
//
// Transport errors and timeouts are soft: the request may have reached the
// service before the connection died. 404 and 429 are soft too, covering a
// not-yet-routable endpoint after a deploy and plain backpressure. 5xx is a
// service fault, also soft. Only 400, 401, 403 and 422 are hard, since they
// mean this request will never be accepted.
func (c *Client) Trigger(ctx context.Context, importID, correlationID string) core.TriggerResult {
	body, err := json.Marshal(jobRequest{ImportID: importID, CorrelationID: correlationID})
	if err != nil {
		return core.TriggerResult{Outcome: core.TriggerHardFailure, Reason: fmt.Sprintf("encode request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return core.TriggerResult{Outcome: core.TriggerHardFailure, Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return core.TriggerResult{Outcome: core.TriggerSoftFailure, Reason: err.Error()}
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return core.TriggerResult{Outcome: core.TriggerOK}
	}

	reason := fmt.Sprintf("parsing service returned %d", resp.StatusCode)
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
		return core.TriggerResult{Outcome: core.TriggerHardFailure, Reason: reason}
	}
	return core.TriggerResult{Outcome: core.TriggerSoftFailure, Reason: reason}
}
