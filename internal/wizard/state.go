package wizard

import "fmt"

// State is the phase of a calibration session
type State int

const (
	// Preflight acquires the mute flag and snapshots the previous selection
	Preflight State = iota
	// Enumerating lists candidate devices
	Enumerating
	// Testing measures devices one at a time
	Testing
	// Scored waits for the user to confirm or retest
	Scored
	// Confirmed is terminal: the selection was saved
	Confirmed
	// Aborted is terminal: the session ended without a selection
	Aborted
)

var stateNames = map[State]string{
	Preflight:   "preflight",
	Enumerating: "enumerating",
	Testing:     "testing",
	Scored:      "scored",
	Confirmed:   "confirmed",
	Aborted:     "aborted",
}

// String returns the string representation of the state
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == Confirmed || s == Aborted
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// AbortReason records why a session was aborted
type AbortReason string

const (
	ReasonNone             AbortReason = ""
	ReasonNoInputDevices   AbortReason = "no_input_devices"
	ReasonAllDevicesFailed AbortReason = "all_devices_failed"
	ReasonCancelled        AbortReason = "cancelled"
)

// Err maps the reason to its sentinel error
func (r AbortReason) Err() error {
	switch r {
	case ReasonNoInputDevices:
		return ErrNoInputDevices
	case ReasonAllDevicesFailed:
		return ErrAllDevicesFailed
	case ReasonCancelled:
		return ErrAborted
	default:
		return nil
	}
}
