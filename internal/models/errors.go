package models

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned for blank transcripts and zero-length audio.
	ErrEmptyInput = errors.New("empty input")
	// ErrMalformedModelOutput is returned when the completion output is not a
	// single JSON object of the expected event shape.
	ErrMalformedModelOutput = errors.New("malformed model output")
	// ErrAuth is returned when no usable bearer credential is available or the
	// backend rejects it.
	ErrAuth = errors.New("not authenticated")
	// ErrInvalidEvent is returned when an event fails shape validation
	// outside of extraction, e.g. after a user edit.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrItemNotFound is returned for an id that is not in the batch.
	ErrItemNotFound = errors.New("item not found")
	// ErrItemBusy is returned while a calendar call for the item is running.
	ErrItemBusy = errors.New("item has a remote call in flight")
	// ErrInvalidTransition is returned for a state change the item's
	// lifecycle does not allow, e.g. editing a scheduled item.
	ErrInvalidTransition = errors.New("invalid item state transition")
)

// RemoteServiceError reports a calendar backend rejecting an operation.
type RemoteServiceError struct {
	Op     string // insert, delete, list
	Status int    // HTTP status when known, 0 otherwise
	Err    error
}

func (e *RemoteServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("calendar %s failed with status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("calendar %s failed: %v", e.Op, e.Err)
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// IsRemote reports whether err is, or wraps, a RemoteServiceError.
func IsRemote(err error) bool {
	var re *RemoteServiceError
	return errors.As(err, &re)
}
