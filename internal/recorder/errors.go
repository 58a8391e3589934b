package recorder

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRecording is returned when a move is added outside a recording
	// session. The move is dropped.
	ErrNotRecording = errors.New("history is not recording")
	// ErrRecordingActive is returned by operations that need recording to be
	// stopped first.
	ErrRecordingActive = errors.New("recording is active")
)

// SubscriptionError reports a failure attaching to or detaching from the
// event source.
type SubscriptionError struct {
	Op  string // "subscribe" or "unsubscribe"
	Err error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("%s event source: %v", e.Op, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
