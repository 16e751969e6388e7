package audio

import (
	"fmt"
	"strings"
)

// Reason classifies why the input device could not be used.
type Reason int

const (
	// ReasonUnavailable covers device failures that are neither a
	// permission problem nor a missing device.
	ReasonUnavailable Reason = iota
	// ReasonPermission means the OS refused microphone access.
	ReasonPermission
	// ReasonNoDevice means no capture device is present.
	ReasonNoDevice
)

func (r Reason) String() string {
	switch r {
	case ReasonPermission:
		return "permission denied"
	case ReasonNoDevice:
		return "no input device"
	default:
		return "device unavailable"
	}
}

// DeviceAccessError reports that the microphone could not be opened.
// It is never retried automatically.
type DeviceAccessError struct {
	Reason Reason
	Err    error
}

func (e *DeviceAccessError) Error() string {
	if e.Err == nil {
		return "audio: " + e.Reason.String()
	}
	return fmt.Sprintf("audio: %s: %v", e.Reason, e.Err)
}

func (e *DeviceAccessError) Unwrap() error { return e.Err }

// UserMessage returns a short explanation suitable for end users.
func (e *DeviceAccessError) UserMessage() string {
	switch e.Reason {
	case ReasonPermission:
		return "Microphone access was denied. Allow microphone access for this app in your system privacy settings and try again."
	case ReasonNoDevice:
		return "No microphone was found. Connect a microphone and try again."
	default:
		return "The microphone could not be started. Check that no other app is using it and try again."
	}
}

// classifyDeviceError wraps a backend error in a DeviceAccessError.
// miniaudio only exposes result codes as text, so the reason is
// inferred from the message.
func classifyDeviceError(err error) *DeviceAccessError {
	msg := strings.ToLower(err.Error())
	reason := ReasonUnavailable
	switch {
	case strings.Contains(msg, "access denied"), strings.Contains(msg, "permission"), strings.Contains(msg, "not authorized"):
		reason = ReasonPermission
	case strings.Contains(msg, "no device"), strings.Contains(msg, "device not found"), strings.Contains(msg, "does not exist"):
		reason = ReasonNoDevice
	}
	return &DeviceAccessError{Reason: reason, Err: err}
}

// DecodeError reports malformed or unsupported encoded audio.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("audio: decode: %v", e.Err)
	}
	return fmt.Sprintf("audio: decode %s: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
