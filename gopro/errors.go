package gopro

import (
	"errors"
	"fmt"
)

var (
	// ErrCameraUnreachable means the camera never answered a status query
	// within the readiness budget.
	ErrCameraUnreachable = errors.New("camera unreachable")
	// ErrLinkNotConfirmed means the camera answered but never reported a
	// registered stream client within the readiness budget.
	ErrLinkNotConfirmed = errors.New("camera stream link not confirmed")
)

// TransportError wraps a failed camera HTTP call.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gopro %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
