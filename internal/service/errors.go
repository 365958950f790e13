package service

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"orgdirectory/internal/models"
	"orgdirectory/pkg/logger"
)

type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindNotVerified        Kind = "not_verified"
	KindExpired            Kind = "expired"
	KindInvalidCode        Kind = "invalid_code"
	KindRateLimit          Kind = "rate_limit"
	KindAlreadyVerified    Kind = "already_verified"
	KindDanglingReference  Kind = "dangling_reference"
	KindInternal           Kind = "internal"
)

// internalMessage is all a caller sees of an infrastructure failure.
const internalMessage = "internal error"

// Error is a business failure with a message safe to show to callers.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func ValidationError(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func NotFoundError(entity string, id int) *Error {
	return newError(KindNotFound, "%s with id '%d' not found", entity, id)
}

func InvalidCredentialsError() *Error {
	return newError(KindInvalidCredentials, "invalid username or password")
}

func NotVerifiedError() *Error {
	return newError(KindNotVerified, "account is not verified")
}

func ExpiredError() *Error {
	return newError(KindExpired, "otp has expired")
}

func InvalidCodeError() *Error {
	return newError(KindInvalidCode, "invalid otp")
}

func RateLimitError(max int) *Error {
	return newError(KindRateLimit, "otp resend limit of %d reached", max)
}

// TooManyAttemptsError locks the current code; a resend issues a fresh one.
func TooManyAttemptsError(max int) *Error {
	return newError(KindRateLimit, "too many failed otp attempts (%d), request a new code", max)
}

func AlreadyVerifiedError() *Error {
	return newError(KindAlreadyVerified, "account is already verified")
}

func DanglingReferenceError(entity string, id int, ref string, refID int) *Error {
	return newError(KindDanglingReference, "%s with id '%d' references missing %s '%d'", entity, id, ref, refID)
}

func internalError(cause error) *Error {
	return &Error{Kind: KindInternal, Message: internalMessage, Cause: cause}
}

// KindOf returns the kind carried by err, or KindInternal for anything that
// is not a business error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// respond folds an operation result into the envelope. Business errors keep
// their message; anything else is logged and reported generically.
func respond[T any](op string, data T, err error, message string) models.ServiceResponse[T] {
	if err == nil {
		return models.OK(data, message)
	}
	var se *Error
	if errors.As(err, &se) && se.Kind != KindInternal {
		return models.Fail[T](se, se.Message)
	}
	logger.ErrorLogger.Error("Operation failed", zap.String("op", op), zap.Error(err))
	if se == nil {
		se = internalError(err)
	}
	return models.Fail[T](se, internalMessage)
}
