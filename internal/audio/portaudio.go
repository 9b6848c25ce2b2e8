package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioLister implements Lister using PortAudio
type PortAudioLister struct {
	mu          sync.Mutex
	initialized bool
}

// NewPortAudioLister creates a new PortAudio lister
func NewPortAudioLister() (*PortAudioLister, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	return &PortAudioLister{initialized: true}, nil
}

// ListDevices returns every PortAudio device, outputs included.
// The catalog decides which ones qualify as inputs.
func (l *PortAudioLister) ListDevices(ctx context.Context) ([]RawDevice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return nil, fmt.Errorf("lister closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		// No default input; nothing gets marked
		defaultInput = nil
	}

	result := make([]RawDevice, 0, len(devices))
	for i, dev := range devices {
		result = append(result, RawDevice{
			ID:               i,
			Name:             dev.Name,
			MaxInputChannels: intPtr(dev.MaxInputChannels),
			IsDefault:        isDefaultInput(dev, defaultInput),
		})
	}

	return result, nil
}

// isDefaultInput compares device indexes. Names repeat across host APIs,
// so the same microphone may be listed several times under one name.
func isDefaultInput(dev, defaultInput *portaudio.DeviceInfo) bool {
	return dev != nil && defaultInput != nil && dev.Index == defaultInput.Index
}

// Close terminates PortAudio
func (l *PortAudioLister) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return nil
	}
	l.initialized = false

	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}
