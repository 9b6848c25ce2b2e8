// Package measure talks to the external measurement service that records
// a short sample from one device and reports signal quality metrics.
package measure

import (
	"context"
	"time"
)

// DefaultBudget is the per-device test budget
const DefaultBudget = 5 * time.Second

// Metrics is the quality report for one device test.
// AdvisoryScore carries the service's own score when it sends one;
// callers rank by their own formula.
type Metrics struct {
	DeviceID        int      `json:"device_id"`
	SignalToNoiseDB float64  `json:"snr_db"`
	VoicedRatio     float64  `json:"voiced_ratio"`
	StartDelayMs    int      `json:"start_delay_ms"`
	ClippingRatio   float64  `json:"clipping_ratio"`
	DropoutRatio    float64  `json:"dropout_ratio"`
	AdvisoryScore   *float64 `json:"-"`
}

// Client tests a single device.
// Implementations must return within budget and are not required to be
// safe for concurrent use.
type Client interface {
	Test(ctx context.Context, deviceID int, budget time.Duration) (Metrics, error)
}
