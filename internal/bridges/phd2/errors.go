package phd2

import "errors"

// Domain-specific errors for the PHD2 bridge.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed is returned when a connection attempt to PHD2 fails.
	ErrConnectionFailed = errors.New("phd2: connection failed")

	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("phd2: not connected")

	// ErrMalformedMessage is returned when a line cannot be decoded as a
	// protocol message. The offending line is skipped.
	ErrMalformedMessage = errors.New("phd2: malformed message")

	// ErrUnrecognizedMessage is returned when a line decodes as JSON but is
	// neither an RPC response nor a server event.
	ErrUnrecognizedMessage = errors.New("phd2: unrecognized message")

	// ErrInvalidPixelScale is returned when the get_pixel_scale response is
	// not a finite number. The scale remains unknown.
	ErrInvalidPixelScale = errors.New("phd2: invalid pixel scale")
)
