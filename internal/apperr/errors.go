package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfiguration   Kind = "configuration"
	KindSerialization   Kind = "serialization"
	KindTransport       Kind = "transport"
	KindDecode          Kind = "decode"
	KindNotFound        Kind = "not_found"
	KindDeserialization Kind = "deserialization"
	KindUsage           Kind = "usage"
)

// Error is the error type returned across package boundaries. Kind decides how
// callers react: configuration and serialization errors abort the attempted
// operation, transport errors fail a session, decode errors are per-fragment.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func New(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Configuration(message string, cause error) error {
	return New(KindConfiguration, message, cause)
}

func Serialization(message string, cause error) error {
	return New(KindSerialization, message, cause)
}

func Transport(message string, cause error) error {
	return New(KindTransport, message, cause)
}

func Decode(message string, cause error) error {
	return New(KindDecode, message, cause)
}

func NotFound(message string) error {
	return New(KindNotFound, message, nil)
}

func Deserialization(message string, cause error) error {
	return New(KindDeserialization, message, cause)
}

func Usage(message string) error {
	return New(KindUsage, message, nil)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsConfiguration(err error) bool   { return Is(err, KindConfiguration) }
func IsSerialization(err error) bool   { return Is(err, KindSerialization) }
func IsTransport(err error) bool       { return Is(err, KindTransport) }
func IsDecode(err error) bool          { return Is(err, KindDecode) }
func IsNotFound(err error) bool        { return Is(err, KindNotFound) }
func IsDeserialization(err error) bool { return Is(err, KindDeserialization) }
func IsUsage(err error) bool           { return Is(err, KindUsage) }
