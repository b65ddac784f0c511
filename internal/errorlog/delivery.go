package errorlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"faultline-go/internal/constants"
	"faultline-go/internal/monitoring"
)

// Deliverer sends one entry to the remote collector.
type Deliverer interface {
	Deliver(ctx context.Context, entry *LogEntry) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, entry *LogEntry) error

// Deliver calls f.
func (f DelivererFunc) Deliver(ctx context.Context, entry *LogEntry) error { return f(ctx, entry) }

// StatusError is returned for non-2xx collector responses.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("collector responded %d", e.Status)
	}
	return fmt.Sprintf("collector responded %d: %s", e.Status, e.Body)
}

// HTTPDeliverer POSTs entries as JSON.
type HTTPDeliverer struct {
	Endpoint string
	Client   *http.Client
	Headers  map[string]string
}

// NewHTTPDeliverer returns a deliverer for endpoint using a shared client.
func NewHTTPDeliverer(endpoint string, headers map[string]string) *HTTPDeliverer {
	return &HTTPDeliverer{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: constants.DeliveryTimeout},
		Headers:  headers,
	}
}

// Deliver implements Deliverer.
func (d *HTTPDeliverer) Deliver(ctx context.Context, entry *LogEntry) error {
	return PostJSON(ctx, d.Client, d.Endpoint, entry, d.Headers)
}

// PostJSON marshals payload and POSTs it. Only a 2xx status counts as success;
// the response body is otherwise ignored.
func PostJSON(ctx context.Context, client *http.Client, endpoint string, payload any, headers map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", constants.UserAgent())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	monitoring.DeliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
