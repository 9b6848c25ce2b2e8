package measure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// HTTPClient implements Client against the measurement service's /mic/test endpoint
type HTTPClient struct {
	baseURL string
	client  *http.Client
	retry   RetryConfig
}

// HTTPOption configures an HTTPClient
type HTTPOption func(*HTTPClient)

// WithHTTPClient sets the underlying http.Client
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		h.client = c
	}
}

// WithRetry sets the retry policy applied within a device budget
func WithRetry(cfg RetryConfig) HTTPOption {
	return func(h *HTTPClient) {
		h.retry = cfg
	}
}

// NewHTTPClient creates a measurement client for the service at baseURL
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		retry:   DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type testRequest struct {
	DeviceID int   `json:"device_id"`
	BudgetMs int64 `json:"budget_ms"`
}

// wireMetrics accepts both field families the service has used
type wireMetrics struct {
	SNR           *float64 `json:"SNR"`
	SNRdB         *float64 `json:"snr_db"`
	Voiced        *float64 `json:"voiced"`
	VoicedRatio   *float64 `json:"voiced_ratio"`
	StartDelay    *float64 `json:"startDelay"`
	StartDelayMs  *float64 `json:"start_delay_ms"`
	Clip          *float64 `json:"clip"`
	ClippingRatio *float64 `json:"clipping_ratio"`
	ClippingPct   *float64 `json:"clipping_pct"`
	Dropout       *float64 `json:"dropout"`
	DropoutRatio  *float64 `json:"dropout_ratio"`
	Score         *float64 `json:"score"`
	Error         string   `json:"error"`
}

func first(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// normalize converts a wire record into Metrics.
// SNR and voiced ratio are mandatory; the rest default to a perfect reading.
func (w wireMetrics) normalize(deviceID int) (Metrics, error) {
	snr := first(w.SNR, w.SNRdB)
	voiced := first(w.Voiced, w.VoicedRatio)
	if snr == nil || voiced == nil {
		return Metrics{}, fmt.Errorf("%w: response for device %d is missing snr or voiced ratio", ErrTransport, deviceID)
	}

	m := Metrics{
		DeviceID:        deviceID,
		SignalToNoiseDB: *snr,
		VoicedRatio:     *voiced,
		AdvisoryScore:   w.Score,
	}
	if d := first(w.StartDelay, w.StartDelayMs); d != nil {
		m.StartDelayMs = int(math.Round(*d))
	}
	switch {
	case w.Clip != nil:
		m.ClippingRatio = *w.Clip
	case w.ClippingRatio != nil:
		m.ClippingRatio = *w.ClippingRatio
	case w.ClippingPct != nil:
		m.ClippingRatio = *w.ClippingPct / 100
	}
	if d := first(w.Dropout, w.DropoutRatio); d != nil {
		m.DropoutRatio = *d
	}
	return m, nil
}

// Test records and measures one device within budget
func (h *HTTPClient) Test(ctx context.Context, deviceID int, budget time.Duration) (Metrics, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	m, err := retryTest(ctx, h.retry, func() (Metrics, error) {
		return h.doTest(ctx, deviceID, budget)
	})
	if err == nil {
		return m, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Metrics{}, fmt.Errorf("%w: device %d after %s", ErrTimeout, deviceID, budget)
	}
	if errors.Is(err, context.Canceled) {
		return Metrics{}, err
	}
	return Metrics{}, fmt.Errorf("failed to test device %d: %w", deviceID, err)
}

func (h *HTTPClient) doTest(ctx context.Context, deviceID int, budget time.Duration) (Metrics, error) {
	body, err := json.Marshal(testRequest{DeviceID: deviceID, BudgetMs: budget.Milliseconds()})
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/mic/test", bytes.NewReader(body))
	if err != nil {
		return Metrics{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Metrics{}, ctx.Err()
		}
		return Metrics{}, &retryableError{fmt.Errorf("%w: %v", ErrTransport, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusLocked:
		return Metrics{}, fmt.Errorf("%w: device %d", ErrDeviceBusy, deviceID)
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return Metrics{}, &retryableError{fmt.Errorf("%w: service returned status %d", ErrTransport, resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return Metrics{}, fmt.Errorf("%w: service returned status %d", ErrTransport, resp.StatusCode)
	}

	var wire wireMetrics
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		if ctx.Err() != nil {
			return Metrics{}, ctx.Err()
		}
		return Metrics{}, fmt.Errorf("%w: failed to decode response: %v", ErrTransport, err)
	}

	if wire.Error != "" {
		if strings.Contains(strings.ToLower(wire.Error), "busy") {
			return Metrics{}, fmt.Errorf("%w: %s", ErrDeviceBusy, wire.Error)
		}
		return Metrics{}, fmt.Errorf("%w: %s", ErrTransport, wire.Error)
	}

	return wire.normalize(deviceID)
}
