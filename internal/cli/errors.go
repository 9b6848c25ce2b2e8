package cli

import "errors"

// CLI-specific sentinel errors.
// These are validation/setup errors that don't belong to domain packages.

var (
	// ErrInvalidConfig indicates the configuration could not be loaded.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidDeviceID indicates a device id argument that is not a non-negative integer.
	ErrInvalidDeviceID = errors.New("invalid device id")

	// ErrBackendUnavailable indicates the device or mute backend could not be opened.
	ErrBackendUnavailable = errors.New("backend unavailable")
)
