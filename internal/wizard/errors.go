package wizard

import (
	"errors"

	"github.com/yok-tottii/mic-calibrator/internal/mute"
)

var (
	// ErrNoInputDevices indicates enumeration found no usable input device.
	ErrNoInputDevices = errors.New("no input devices")

	// ErrAllDevicesFailed indicates every device test failed.
	ErrAllDevicesFailed = errors.New("all devices failed")

	// ErrAborted indicates the session was cancelled by the user.
	ErrAborted = errors.New("calibration aborted")

	// ErrInvalidSelection indicates a confirm for a device without a successful result.
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrSessionBusy indicates another transition is in flight.
	ErrSessionBusy = errors.New("session busy")

	// ErrSessionClosed indicates the session already reached a terminal state.
	ErrSessionClosed = errors.New("session closed")

	// ErrSessionNotFound indicates an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrPersist indicates the confirmed selection could not be saved.
	ErrPersist = errors.New("failed to persist selection")

	// ErrInvalidWeights indicates scoring weights that are negative or do not sum to 1.
	ErrInvalidWeights = errors.New("invalid scoring weights")

	// ErrAlreadyHeld indicates another session holds the mute flag.
	ErrAlreadyHeld = mute.ErrAlreadyHeld
)
