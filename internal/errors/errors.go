// Package errors defines the error taxonomy shared by the decode and
// reconcile paths.
//
// Four families matter to callers:
//
//   - ValidationError: the desired state is malformed. Raised before any
//     remote call and never retried.
//   - DecodeError: the decrypt step failed or the payload does not parse
//     in its declared format. Aborts an upsert before any remote mutation.
//   - RemoteError: a secret store call failed. Wraps the underlying SDK
//     error unchanged so cancellation and throttling remain visible.
//   - ConfigError / UserError: CLI-surface problems with suggestions.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// DecodeCause distinguishes why a decode failed.
type DecodeCause string

const (
	// DecryptFailure means the decrypt capability reported a diagnostic
	// or failed to run. The ciphertext was never turned into plaintext.
	DecryptFailure DecodeCause = "decrypt"

	// InvalidFormat means decryption succeeded but the plaintext does not
	// parse in its declared content format.
	InvalidFormat DecodeCause = "format"
)

// ValidationError reports malformed desired state. It is always raised
// before the first remote call of an invocation.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid definition: %s: %s", e.Field, e.Message)
	}
	return "invalid definition: " + e.Message
}

// DecodeError reports a failed decode step.
type DecodeError struct {
	Cause  DecodeCause
	Source string
	Err    error
}

func (e DecodeError) Error() string {
	msg := fmt.Sprintf("decode failed (%s)", e.Cause)
	if e.Source != "" {
		msg += " for " + e.Source
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e DecodeError) Unwrap() error {
	return e.Err
}

// RemoteError wraps a secret store failure with the operation that
// produced it. The underlying error is propagated unchanged; callers
// that need SDK exception types can still errors.As through it.
type RemoteError struct {
	Operation string
	Name      string
	Err       error
}

func (e RemoteError) Error() string {
	return fmt.Sprintf("secret store %s failed for %q: %v", e.Operation, e.Name, e.Err)
}

func (e RemoteError) Unwrap() error {
	return e.Err
}

// NotFoundError reports that a referenced resource does not exist.
// The reconciler converts tolerated instances of this into defined
// behavior; everything else surfaces it as a hard failure.
type NotFoundError struct {
	Kind string
	Name string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Details    string
	Suggestion string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// StoreSuggestion returns a hint for common AWS Secrets Manager
// failures, or an empty string when none applies.
func StoreSuggestion(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()

	if strings.Contains(errStr, "credentials") || strings.Contains(errStr, "authorization") {
		return "Configure AWS credentials: 'aws configure' or set AWS_PROFILE"
	}
	if strings.Contains(errStr, "AccessDenied") {
		return "Check IAM permissions for secretsmanager on this resource"
	}
	if strings.Contains(errStr, "ThrottlingException") {
		return "AWS rate limit exceeded. Wait a moment and try again"
	}
	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and endpoint configuration"
	}
	return ""
}
