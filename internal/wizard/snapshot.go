package wizard

import (
	"time"

	"github.com/yok-tottii/mic-calibrator/internal/audio"
	"github.com/yok-tottii/mic-calibrator/internal/measure"
	"github.com/yok-tottii/mic-calibrator/internal/selection"
)

// ResultStatus tells measured and failed results apart in a snapshot
type ResultStatus string

const (
	StatusMeasured ResultStatus = "measured"
	StatusFailed   ResultStatus = "failed"
)

// ResultView is the serializable form of a Result
type ResultView struct {
	DeviceID int              `json:"device_id"`
	Status   ResultStatus     `json:"status"`
	Metrics  *measure.Metrics `json:"metrics,omitempty"`
	Score    *float64         `json:"score,omitempty"`
	Reason   measure.Reason   `json:"reason,omitempty"`
	Detail   string           `json:"detail,omitempty"`
}

// Snapshot is a point-in-time copy of a session
type Snapshot struct {
	SessionID      string            `json:"session_id"`
	State          State             `json:"state"`
	Devices        []audio.Device    `json:"devices"`
	Results        []ResultView      `json:"results"`
	Ranked         []ScoredDevice    `json:"ranked,omitempty"`
	ChosenDeviceID *int              `json:"chosen_device_id,omitempty"`
	Previous       *selection.Record `json:"previous,omitempty"`
	AbortReason    AbortReason       `json:"abort_reason,omitempty"`
	Error          string            `json:"error,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

// Settled reports whether the session is waiting on the user or finished
func (s Snapshot) Settled() bool {
	return s.State == Scored || s.State.Terminal()
}

// Err returns the sentinel for an aborted snapshot and nil otherwise
func (s Snapshot) Err() error {
	if s.State != Aborted {
		return nil
	}
	return s.AbortReason.Err()
}

// Current returns the device under test: the first one without a result
func (s Snapshot) Current() (audio.Device, bool) {
	if s.State != Testing {
		return audio.Device{}, false
	}
	done := make(map[int]bool, len(s.Results))
	for _, r := range s.Results {
		done[r.DeviceID] = true
	}
	for _, d := range s.Devices {
		if !done[d.ID] {
			return d, true
		}
	}
	return audio.Device{}, false
}

// Chosen returns the suggested or confirmed device
func (s Snapshot) Chosen() (audio.Device, bool) {
	if s.ChosenDeviceID == nil {
		return audio.Device{}, false
	}
	for _, d := range s.Devices {
		if d.ID == *s.ChosenDeviceID {
			return d, true
		}
	}
	return audio.Device{}, false
}

// snapshotLocked copies the session. s.mu must be held.
func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:   s.id,
		State:       s.state,
		Devices:     append([]audio.Device(nil), s.devices...),
		Results:     make([]ResultView, 0, len(s.results)),
		AbortReason: s.abortReason,
		Error:       s.lastErr,
		StartedAt:   s.startedAt,
	}

	scores := make(map[int]float64, len(s.ranked))
	for _, r := range s.ranked {
		scores[r.Device.ID] = r.Score
	}

	for _, d := range s.devices {
		switch res := s.results[d.ID].(type) {
		case Measured:
			m := res.Metrics
			view := ResultView{DeviceID: d.ID, Status: StatusMeasured, Metrics: &m}
			if score, ok := scores[d.ID]; ok {
				view.Score = &score
			}
			snap.Results = append(snap.Results, view)
		case Failed:
			snap.Results = append(snap.Results, ResultView{
				DeviceID: d.ID,
				Status:   StatusFailed,
				Reason:   res.Reason,
				Detail:   res.Detail,
			})
		}
	}

	if len(s.ranked) > 0 {
		snap.Ranked = append([]ScoredDevice(nil), s.ranked...)
	}
	if s.chosen != nil {
		id := *s.chosen
		snap.ChosenDeviceID = &id
	}
	if s.previous != nil {
		prev := *s.previous
		snap.Previous = &prev
	}
	if !s.completedAt.IsZero() {
		at := s.completedAt
		snap.CompletedAt = &at
	}
	return snap
}
