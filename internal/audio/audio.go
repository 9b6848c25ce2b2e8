package audio

import (
	"context"
	"encoding/json"
)

// Device represents an audio input device eligible for calibration
type Device struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	ChannelCount int    `json:"channel_count"`
	IsDefault    bool   `json:"is_default"`
}

// RawDevice is a device record as reported by a listing backend.
// Backends disagree on the channel field name, so both are kept
// and resolved by ChannelCount.
type RawDevice struct {
	ID               int
	Name             string
	MaxInputChannels *int
	Channels         *int
	IsDefault        bool
}

// ChannelCount returns the number of input channels of the record.
// max_input_channels wins over channels. A record carrying neither
// field was already listed as an input by its backend and counts as mono.
func (r RawDevice) ChannelCount() int {
	if r.MaxInputChannels != nil {
		return *r.MaxInputChannels
	}
	if r.Channels != nil {
		return *r.Channels
	}
	return 1
}

// UnmarshalJSON accepts both the max_input_channels and channels
// field families, and default or is_default.
func (r *RawDevice) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID               int    `json:"id"`
		Index            *int   `json:"index"`
		Name             string `json:"name"`
		MaxInputChannels *int   `json:"max_input_channels"`
		Channels         *int   `json:"channels"`
		Default          bool   `json:"default"`
		IsDefault        bool   `json:"is_default"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.ID = aux.ID
	if aux.Index != nil {
		r.ID = *aux.Index
	}
	r.Name = aux.Name
	r.MaxInputChannels = aux.MaxInputChannels
	r.Channels = aux.Channels
	r.IsDefault = aux.Default || aux.IsDefault
	return nil
}

// Lister is the interface to the OS audio layer.
// Implementations return records in the backend's native order.
type Lister interface {
	ListDevices(ctx context.Context) ([]RawDevice, error)
}

// intPtr returns a pointer to v
func intPtr(v int) *int {
	return &v
}
