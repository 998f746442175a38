package currency

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindProvider           Kind = "provider_error"
	KindAllProvidersFailed Kind = "all_providers_failed"
	KindNoProvider         Kind = "no_provider"
	KindRateUnavailable    Kind = "rate_unavailable"
	KindStaleData          Kind = "stale_data"
	KindInvalidArgument    Kind = "invalid_argument"
)

// Error carries a machine kind next to a human readable detail.
// Sentinels below compare equal to any Error of the same Kind via errors.Is.
type Error struct {
	Kind   Kind
	Source Provider
	Detail string
	Err    error
}

var (
	ErrProvider           = &Error{Kind: KindProvider}
	ErrAllProvidersFailed = &Error{Kind: KindAllProvidersFailed}
	ErrNoProvider         = &Error{Kind: KindNoProvider}
	ErrRateUnavailable    = &Error{Kind: KindRateUnavailable}
	ErrStaleData          = &Error{Kind: KindStaleData}
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
)

func (e *Error) Error() string {
	detail := e.Detail
	if detail == "" {
		detail = string(e.Kind)
	}

	if e.Source != EmptyProvider {
		return fmt.Sprintf("%s: %s", e.Source, detail)
	}

	return detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind && t.Detail == "" && (t.Source == EmptyProvider || t.Source == e.Source)
}

func NewProviderError(source Provider, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:   KindProvider,
		Source: source,
		Detail: fmt.Sprintf(format, args...),
		Err:    err,
	}
}

func NewError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
		Err:    err,
	}
}

// KindOf returns the Kind of the first Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return ""
}

// DetailOf returns the human readable part of err.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Detail != "" {
		return e.Detail
	}

	return err.Error()
}
