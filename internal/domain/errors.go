package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for boundary layers; the HTTP transport maps
// kinds onto status codes.
type Kind string

const (
	KindConflict          Kind = "conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindNotFound          Kind = "not_found"
	KindAuthorization     Kind = "authorization"
	KindValidation        Kind = "validation"
)

// Error is a structured core error carrying a Kind.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is lets sentinel comparisons match wrapped errors.
func (e *Error) Is(target error) bool {
	var te *Error
	if !errors.As(target, &te) {
		return false
	}
	return e.Kind == te.Kind && e.Message == te.Message
}

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = &Error{KindNotFound, "quiz not found"}
	// ErrSessionNotFound is returned when no session matches the id or code.
	ErrSessionNotFound = &Error{KindNotFound, "game session not found"}
	// ErrQuestionNotFound indicates a question id is unknown to the quiz.
	ErrQuestionNotFound = &Error{KindNotFound, "question not found"}
	// ErrAnswerNotFound indicates an answer id is unknown.
	ErrAnswerNotFound = &Error{KindNotFound, "answer not found"}
	// ErrParticipantNotFound is returned when a participant record is missing.
	ErrParticipantNotFound = &Error{KindNotFound, "participant not found"}
	// ErrResponseNotFound is returned when no response exists for a
	// (participant, question) pair.
	ErrResponseNotFound = &Error{KindNotFound, "response not found"}

	// ErrActiveSessionExists enforces at most one non-finished session per quiz.
	ErrActiveSessionExists = &Error{KindConflict, "quiz already has a session in progress"}
	// ErrAlreadyJoined is returned by the store when (session, user) exists.
	ErrAlreadyJoined = &Error{KindConflict, "user already joined this session"}
	// ErrDuplicateResponse enforces at most one response per (participant, question).
	ErrDuplicateResponse = &Error{KindConflict, "participant already answered this question"}
	// ErrSessionFinished is returned when acting on a finished session.
	ErrSessionFinished = &Error{KindConflict, "session already finished"}
	// ErrCodeTaken signals a join-code collision among non-finished sessions;
	// callers draw a fresh code and retry.
	ErrCodeTaken = &Error{KindConflict, "session code already in use"}
	// ErrQuizLocked is returned when editing a quiz referenced by a live session.
	ErrQuizLocked = &Error{KindConflict, "quiz is locked by a session in progress"}

	// ErrInvalidTransition is returned for lifecycle moves the state machine forbids.
	ErrInvalidTransition = &Error{KindInvalidTransition, "invalid session state transition"}

	// ErrNotAParticipant is returned when a non-participant submits an answer.
	ErrNotAParticipant = &Error{KindAuthorization, "not a participant of this session"}
	// ErrNotSessionAdmin is returned when a non-owner drives session transitions.
	ErrNotSessionAdmin = &Error{KindAuthorization, "only the session admin may do this"}

	// ErrAnswerMismatch is returned when an answer belongs to another question.
	ErrAnswerMismatch = &Error{KindValidation, "answer does not belong to question"}
)

// Validationf builds a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{KindValidation, fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, or "" for non-domain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
