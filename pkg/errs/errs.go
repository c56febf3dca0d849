package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a dispatch failure. Every kind is non-fatal to the
// server process; the only fatal startup condition (store open failure)
// does not go through this package.
type Kind string

const (
	Validation       Kind = "validation_error"
	UnknownOperation Kind = "unknown_operation"
	ChannelState     Kind = "channel_state_error"
	Persistence      Kind = "persistence_error"
	Streaming        Kind = "streaming_error"
)

// Error carries the failure kind plus the context needed for the audit
// log and the sender-only error reply.
type Error struct {
	Kind    Kind
	Event   string
	Channel string
	User    string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a typed error. The wrapped cause may be nil.
func E(kind Kind, event, channel, user, msg string, cause error) *Error {
	return &Error{Kind: kind, Event: event, Channel: channel, User: user, Msg: msg, Err: cause}
}

// KindOf returns the Kind of err, or "" when err is not a typed Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Public returns the message safe to send back to the originating
// connection. Persistence failures are collapsed to a generic notice so
// storage internals never leak onto the wire.
func Public(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	if e.Kind == Persistence {
		return "storage operation failed"
	}
	return e.Msg
}
