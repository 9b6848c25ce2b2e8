package wizard

import (
	"fmt"
	"math"
	"sort"

	"github.com/yok-tottii/mic-calibrator/internal/audio"
	"github.com/yok-tottii/mic-calibrator/internal/measure"
)

// Normalization ceilings
const (
	snrCeilingDB   = 40.0
	delayCeilingMs = 1000.0
)

// scores closer than this are treated as equal
const scoreEpsilon = 1e-9

// Weights are the per-metric coefficients of the score
type Weights struct {
	SNR   float64 `json:"snr"`
	Voice float64 `json:"voice"`
	Delay float64 `json:"delay"`
	Clip  float64 `json:"clip"`
	Drop  float64 `json:"drop"`
}

// DefaultWeights returns the stock weighting
func DefaultWeights() Weights {
	return Weights{SNR: 0.4, Voice: 0.25, Delay: 0.1, Clip: 0.15, Drop: 0.1}
}

// Validate checks that weights are non-negative and sum to 1
func (w Weights) Validate() error {
	for name, v := range map[string]float64{"snr": w.SNR, "voice": w.Voice, "delay": w.Delay, "clip": w.Clip, "drop": w.Drop} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s weight is %v", ErrInvalidWeights, name, v)
		}
	}
	sum := w.SNR + w.Voice + w.Delay + w.Clip + w.Drop
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%w: weights sum to %v", ErrInvalidWeights, sum)
	}
	return nil
}

// benefit clamps a higher-is-better term. Non-finite low readings earn nothing.
func benefit(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

// penalty inverts a lower-is-better term. NaN counts as the worst reading.
func penalty(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return 1 - benefit(x)
}

// Score computes the quality score of m in [0, 1]
func Score(m measure.Metrics, w Weights) float64 {
	return w.SNR*benefit(m.SignalToNoiseDB/snrCeilingDB) +
		w.Voice*benefit(m.VoicedRatio) +
		w.Delay*penalty(float64(m.StartDelayMs)/delayCeilingMs) +
		w.Clip*penalty(m.ClippingRatio) +
		w.Drop*penalty(m.DropoutRatio)
}

// ScoredDevice is a measured device with its derived score
type ScoredDevice struct {
	Device  audio.Device    `json:"device"`
	Metrics measure.Metrics `json:"metrics"`
	Score   float64         `json:"score"`
}

// better orders by score, then default device first, then lower id
func better(a, b ScoredDevice) bool {
	if math.Abs(a.Score-b.Score) > scoreEpsilon {
		return a.Score > b.Score
	}
	if a.Device.IsDefault != b.Device.IsDefault {
		return a.Device.IsDefault
	}
	return a.Device.ID < b.Device.ID
}

// Rank scores every measured device and sorts best first.
// Failed and missing results are left out.
func Rank(devices []audio.Device, results map[int]Result, w Weights) []ScoredDevice {
	ranked := make([]ScoredDevice, 0, len(results))
	for _, d := range devices {
		res, ok := results[d.ID].(Measured)
		if !ok {
			continue
		}
		ranked = append(ranked, ScoredDevice{
			Device:  d,
			Metrics: res.Metrics,
			Score:   Score(res.Metrics, w),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return better(ranked[i], ranked[j])
	})
	return ranked
}

// Result is the outcome of one device test, either Measured or Failed
type Result interface {
	result()
}

// Measured carries the metrics of a successful test
type Measured struct {
	Metrics measure.Metrics
}

// Failed records a test that produced no metrics
type Failed struct {
	DeviceID int
	Reason   measure.Reason
	Detail   string
}

func (Measured) result() {}
func (Failed) result()   {}
