// Package playground implements the multiplayer session scheduler:
// session lifecycle, per-round deadlines, round resolution, and the
// polling facade agents drive the system through.
package playground

import "errors"

// Kind classifies scheduler errors for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidState
	KindConflict
	KindValidation
)

// Error is a kinded scheduler error. NotFound, InvalidState, Conflict
// and Validation are client-correctable; Internal is not.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrGameNotFound       = &Error{Kind: KindNotFound, Msg: "game not found"}
	ErrSessionNotFound    = &Error{Kind: KindNotFound, Msg: "session not found"}
	ErrSessionNotJoinable = &Error{Kind: KindInvalidState, Msg: "session is not joinable"}
	ErrAgentNotVetted     = &Error{Kind: KindInvalidState, Msg: "agent has not passed vetting"}
	ErrSessionFull        = &Error{Kind: KindConflict, Msg: "session is full"}
	ErrAlreadyJoined      = &Error{Kind: KindConflict, Msg: "agent already joined this session"}
	ErrSessionNotActive   = &Error{Kind: KindInvalidState, Msg: "session is not active"}
	ErrNotAParticipant    = &Error{Kind: KindInvalidState, Msg: "agent is not a participant"}
	ErrAlreadyActed       = &Error{Kind: KindConflict, Msg: "agent already acted this round"}
	ErrDeadlinePassed     = &Error{Kind: KindConflict, Msg: "round deadline has passed"}
	ErrConcurrentUpdate   = &Error{Kind: KindConflict, Msg: "session changed concurrently, poll again"}
)

func validationError(err error) *Error {
	return &Error{Kind: KindValidation, Msg: "invalid action", Err: err}
}

func internalError(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf returns the classification of err, defaulting to KindInternal
// for anything that is not a scheduler error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
