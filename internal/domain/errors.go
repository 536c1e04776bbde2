package domain

import (
	"errors"
	"strings"
)

// Kind classifies a failure so the HTTP layer can pick a status code.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuth
	KindAuthorization
	KindNotFound
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is the service-layer failure type. Msg is safe to show to clients;
// Err keeps the underlying cause for logs.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func ValidationError(msg string) error { return &Error{Kind: KindValidation, Msg: msg} }

// ValidationErrors joins several messages the way the registration form expects them.
func ValidationErrors(msgs []string) error {
	return &Error{Kind: KindValidation, Msg: strings.Join(msgs, ", ")}
}

func AuthError(msg string) error          { return &Error{Kind: KindAuth, Msg: msg} }
func AuthorizationError(msg string) error { return &Error{Kind: KindAuthorization, Msg: msg} }
func NotFoundError(msg string) error      { return &Error{Kind: KindNotFound, Msg: msg} }
func ConflictError(msg string) error      { return &Error{Kind: KindConflict, Msg: msg} }

// ErrBadCredentials is the login failure for a known user with the wrong
// password. It is reported as a bad request, not an expired session.
var ErrBadCredentials = &Error{Kind: KindAuth, Msg: "Wrong password or username!"}

func UpstreamError(msg string, cause error) error {
	return &Error{Kind: KindUpstream, Msg: msg, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}
