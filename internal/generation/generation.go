// Package generation wraps text-generation providers and runs the
// draft-validate-refine loop on top of them.
package generation

import (
	"context"
	"errors"
	"fmt"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversational turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single generation call. JSON asks the provider for a JSON
// object response where supported.
type Request struct {
	System   string
	Messages []Message
	JSON     bool
	// Purpose labels the call for logs and metrics (draft, validate, synthesize, analyze).
	Purpose string
}

// Generator is the text-generation collaborator.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ErrorKind classifies generation failures.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimit   ErrorKind = "rate_limit"
	KindMalformed   ErrorKind = "malformed_response"
	KindUnavailable ErrorKind = "unavailable"
)

// Error is the failure type returned by every Generator in this package.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a generation error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// wrap maps transport errors and HTTP status codes to an *Error.
func wrap(provider string, status int, err error) *Error {
	kind := KindUnavailable
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case status == 429:
		kind = KindRateLimit
	case status == 408 || status == 504:
		kind = KindTimeout
	}
	return &Error{Kind: kind, Provider: provider, Err: err}
}
