package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz does not exist or is not published.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound indicates an unknown session id.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrRetryNotAllowed is returned when a user already has a graded session
	// for a quiz whose definition forbids retries.
	ErrRetryNotAllowed = errors.New("retry not allowed for this quiz")
	// ErrInvalidTransition is returned by the guarded status update when the
	// session is no longer in the expected state. It is the concurrency
	// safeguard against double grading.
	ErrInvalidTransition = errors.New("invalid session status transition")
	// ErrSessionExpired is returned when submitting against a session that
	// was already swept to expired.
	ErrSessionExpired = errors.New("quiz session expired")
	// ErrForbidden is returned when the caller does not own the session.
	ErrForbidden = errors.New("session belongs to a different user")
	// ErrUnauthorized indicates a missing or unverifiable caller identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidAnswer flags a malformed answer payload, e.g. an option index
	// out of range or a text answer to a choice question.
	ErrInvalidAnswer = errors.New("invalid answer")
)
