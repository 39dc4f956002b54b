package model

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a remote call did not produce a result.
type FailureKind string

const (
	// FailureTransport means the request could not be completed.
	FailureTransport FailureKind = "transport"
	// FailureServer means the remote side rejected the request.
	FailureServer FailureKind = "server"
	// FailureMalformed means a response arrived but could not be decoded.
	FailureMalformed FailureKind = "malformed"
)

// Failure is the error type returned by remote clients.
// Message is human-readable and safe to show; callers branch on Kind only.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	switch {
	case f.Message != "" && f.Err != nil:
		return fmt.Sprintf("%s failure: %s: %v", f.Kind, f.Message, f.Err)
	case f.Message != "":
		return fmt.Sprintf("%s failure: %s", f.Kind, f.Message)
	case f.Err != nil:
		return fmt.Sprintf("%s failure: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("%s failure", f.Kind)
}

func (f *Failure) Unwrap() error { return f.Err }

// NewFailure builds a Failure wrapping err.
func NewFailure(kind FailureKind, message string, err error) *Failure {
	return &Failure{Kind: kind, Message: message, Err: err}
}

// FailureMessage returns the human-readable message carried by err, or fallback
// when err carries none.
func FailureMessage(err error, fallback string) string {
	var f *Failure
	if errors.As(err, &f) && f.Message != "" {
		return f.Message
	}
	return fallback
}

// FailureKindOf reports the kind of err, treating unclassified errors as transport failures.
func FailureKindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return FailureTransport
}
