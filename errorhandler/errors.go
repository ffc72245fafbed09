package errorhandler

import (
	"errors"
	"fmt"

	"CODStatusChecker/logger"
)

type ErrorCategory int

const (
	ConfigError ErrorCategory = iota
	BrokerError
	SessionError
	ParseError
	StoreError
	UnknownError
)

func (c ErrorCategory) String() string {
	switch c {
	case ConfigError:
		return "config"
	case BrokerError:
		return "broker"
	case SessionError:
		return "session"
	case ParseError:
		return "parse"
	case StoreError:
		return "store"
	default:
		return "unknown"
	}
}

// CustomError carries the failure category alongside the original error so
// callers can report per-account failures without aborting a batch.
type CustomError struct {
	Category    ErrorCategory
	OriginalErr error
	Context     string
}

func (e *CustomError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %v", e.Context, e.OriginalErr)
	}
	return e.OriginalErr.Error()
}

func (e *CustomError) Unwrap() error {
	return e.OriginalErr
}

func NewError(category ErrorCategory, err error, context string) *CustomError {
	return &CustomError{
		Category:    category,
		OriginalErr: err,
		Context:     context,
	}
}

func NewConfigError(err error, context string) *CustomError {
	return NewError(ConfigError, err, context)
}

func NewBrokerError(err error, context string) *CustomError {
	return NewError(BrokerError, err, context)
}

func NewSessionError(err error, context string) *CustomError {
	return NewError(SessionError, err, context)
}

func NewParseError(err error, context string) *CustomError {
	return NewError(ParseError, err, context)
}

func NewStoreError(err error, context string) *CustomError {
	return NewError(StoreError, err, context)
}

// HandleError logs the error with its category and returns a message suitable
// for per-account reporting.
func HandleError(err error) string {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		logger.Log.WithError(customErr.OriginalErr).
			WithField("category", customErr.Category.String()).
			Error(customErr.Error())
		return customErr.Error()
	}

	logger.Log.WithError(err).Error("Unexpected error occurred")
	return err.Error()
}

func CategoryOf(err error) ErrorCategory {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Category
	}
	return UnknownError
}

func IsBrokerError(err error) bool {
	return CategoryOf(err) == BrokerError
}

func IsStoreError(err error) bool {
	return CategoryOf(err) == StoreError
}
