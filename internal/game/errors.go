package game

import (
	"errors"
	"fmt"
)

// Kind groups rejections so transports can map them without knowing every
// code.
type Kind string

const (
	KindConfig     Kind = "config"
	KindPhase      Kind = "phase"
	KindAuth       Kind = "auth"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindResource   Kind = "resource"
	KindNotFound   Kind = "not_found"
	KindFatal      Kind = "fatal"
)

// Error is returned for every rejected coordinator call. Two errors match
// under errors.Is when their codes are equal, so the sentinels below can be
// compared against detailed instances.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrInvalidConfig = &Error{Kind: KindConfig, Code: "invalid_config"}

	ErrWrongPhase = &Error{Kind: KindPhase, Code: "wrong_phase"}

	ErrUnauthorized = &Error{Kind: KindAuth, Code: "unauthorized"}

	ErrZeroCommitment     = &Error{Kind: KindValidation, Code: "zero_commitment"}
	ErrInvalidSelection   = &Error{Kind: KindValidation, Code: "invalid_selection"}
	ErrUnsortedSelection  = &Error{Kind: KindValidation, Code: "unsorted_selection"}
	ErrCommitmentMismatch = &Error{Kind: KindValidation, Code: "commitment_mismatch"}

	ErrAlreadyJoined      = &Error{Kind: KindConflict, Code: "already_joined"}
	ErrNotJoined          = &Error{Kind: KindConflict, Code: "not_joined"}
	ErrAlreadyCommitted   = &Error{Kind: KindConflict, Code: "already_committed"}
	ErrNoCommitment       = &Error{Kind: KindConflict, Code: "no_commitment"}
	ErrAlreadyRevealed    = &Error{Kind: KindConflict, Code: "already_revealed"}
	ErrRoundMismatch      = &Error{Kind: KindConflict, Code: "round_mismatch"}
	ErrDeadlineNotReached = &Error{Kind: KindConflict, Code: "deadline_not_reached"}

	ErrStakeMismatch = &Error{Kind: KindResource, Code: "stake_mismatch"}
	ErrRosterFull    = &Error{Kind: KindResource, Code: "roster_full"}
	ErrStakeTransfer = &Error{Kind: KindResource, Code: "stake_transfer_failed"}

	ErrGameNotFound = &Error{Kind: KindNotFound, Code: "game_not_found"}

	ErrScoring = &Error{Kind: KindFatal, Code: "scoring_failed"}
)

func reject(base *Error, format string, args ...any) *Error {
	return &Error{Kind: base.Kind, Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

func wrap(base *Error, err error, format string, args ...any) *Error {
	e := reject(base, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of a coordinator error, or KindFatal for anything
// else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// CodeOf returns the code of a coordinator error, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
