package services

import "errors"

// ErrorKind classifies service errors so transports can map them to responses.
type ErrorKind string

const (
	KindNotFound      ErrorKind = "NOT_FOUND"
	KindConflict      ErrorKind = "CONFLICT"
	KindConfiguration ErrorKind = "CONFIGURATION"
	KindValidation    ErrorKind = "VALIDATION"
	KindUnauthorized  ErrorKind = "UNAUTHORIZED"
	KindInternal      ErrorKind = "INTERNAL"
)

type kindError struct {
	kind ErrorKind
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func newError(kind ErrorKind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	ErrSessionNotFound  = newError(KindNotFound, "quiz session not found")
	ErrQuestionNotFound = newError(KindNotFound, "question not found")
	ErrTrackNotFound    = newError(KindNotFound, "track not found")
	ErrBlockNotFound    = newError(KindNotFound, "quiz block not found")

	ErrDuplicateSession = newError(KindConflict, "active quiz session already exists for this track")
	ErrAlreadyAnswered  = newError(KindConflict, "question already answered in this session")
	ErrDuplicateName    = newError(KindConflict, "name already in use")
	ErrAlreadyLinked    = newError(KindConflict, "block already linked to track")

	ErrTrackNotConfigured = newError(KindConfiguration, "track has no quiz blocks configured")
	ErrNoQuestions        = newError(KindConfiguration, "track has no active questions")

	ErrInvalidOption      = newError(KindValidation, "answer must be one of A, B, C, D")
	ErrQuestionNotServed  = newError(KindValidation, "question is not the current question of this session")
	ErrInvalidCount       = newError(KindValidation, "questions_count must be at least 1")
	ErrInvalidDifficulty  = newError(KindValidation, "difficulty must be one of easy, medium, hard")
	ErrInvalidCredentials = newError(KindUnauthorized, "invalid email or password")
	ErrInvalidToken       = newError(KindUnauthorized, "invalid or expired token")
	ErrEmailTaken         = newError(KindConflict, "email already registered")
)

// KindOf returns the kind of the first classified error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) ErrorKind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindInternal
}
