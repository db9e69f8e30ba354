package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the services matches exactly one of these via errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrInvalidInput       = errors.New("invalid input")
)

// Error carries the kind of failure plus the operation that produced it.
type Error struct {
	Kind    error
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches against the kind so callers can test errors.Is(err, ErrNotFound).
func (e *Error) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

func newError(kind error, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches kind and op to an underlying error.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: kind, Op: op, Message: kindText(kind), Err: err}
}

// Unavailable wraps a storage failure.
func Unavailable(op string, err error) error {
	return Wrap(ErrStoreUnavailable, op, err)
}

var (
	ErrUserNotFound     = newError(ErrNotFound, "user.Get", "user not found")
	ErrTeamNotFound     = newError(ErrNotFound, "team.Get", "team not found")
	ErrModuleNotFound   = newError(ErrNotFound, "content.Module", "module not found")
	ErrActivityNotFound = newError(ErrNotFound, "content.Activity", "activity not found in module")
	ErrQuestionNotFound = newError(ErrNotFound, "content.Question", "question not found")

	ErrAlreadyOnTeam      = newError(ErrPreconditionFailed, "team.Join", "you are already on a team, leave it first")
	ErrNotOnTeam          = newError(ErrPreconditionFailed, "team.Leave", "you are not on a team")
	ErrTeamCodeTaken      = newError(ErrPreconditionFailed, "team.Create", "join code already in use")
	ErrNotTeamCreator     = newError(ErrPreconditionFailed, "team.Delete", "only the team creator can delete the team")
	ErrBelowPassThreshold = newError(ErrPreconditionFailed, "progress.Complete", fmt.Sprintf("you need at least %d%% to pass this quiz", PassPercent))
	ErrNoCategories       = newError(ErrPreconditionFailed, "challenge.Start", "select at least one category")
	ErrNoQuestions        = newError(ErrPreconditionFailed, "challenge.Start", "no questions available for the selected categories")
	ErrBusy               = newError(ErrPreconditionFailed, "progress.Gate", "another update is in progress")
	ErrChallengeState     = newError(ErrPreconditionFailed, "challenge.Transition", "action not allowed in the current challenge state")
	ErrAlreadyAnswered    = newError(ErrPreconditionFailed, "challenge.Answer", "question already answered")
	ErrAlreadyCompleted   = newError(ErrPreconditionFailed, "progress.Complete", "activity already completed")

	ErrInvalidAnswer   = newError(ErrInvalidInput, "scoring.Answer", "answer out of range")
	ErrEmptyTeamName   = newError(ErrInvalidInput, "team.Create", "team name is required")
	ErrUnknownActivity = newError(ErrInvalidInput, "scoring.Score", "unknown activity type")
)

func kindText(kind error) string {
	if kind == nil {
		return "internal error"
	}
	return kind.Error()
}

// Message maps an error to the short text shown to the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) && de.Kind != ErrStoreUnavailable {
		return de.Message
	}
	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return "service temporarily unavailable, please try again later"
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrPreconditionFailed):
		return "action not allowed right now"
	case errors.Is(err, ErrInvalidInput):
		return "invalid request"
	}
	return "something went wrong, please try again"
}
