package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies failures coming back from the VK API and the archive.
type Kind string

const (
	// KindRateLimited is the vendor telling us to slow down. Retryable
	// with a long backoff.
	KindRateLimited Kind = "rate_limited"
	// KindUnavailable covers network failures, timeouts and 5xx
	// responses. Retryable with exponential backoff.
	KindUnavailable Kind = "unavailable"
	// KindRejected is a definitive vendor refusal for a scope: bad auth,
	// permission denied, content deleted or disabled. Never retried.
	KindRejected Kind = "rejected"
	// KindResolution means the target community could not be determined.
	// Fatal for the whole run.
	KindResolution Kind = "resolution"
	// KindTooBig is VK error 13 (response size is too big); the pager
	// handles it by shrinking the page size.
	KindTooBig Kind = "too_big"
	// KindParsing means the response body was not the JSON we expected.
	KindParsing Kind = "parsing"
	// KindIO is a local write failure, fatal for that single write only.
	KindIO Kind = "io"
)

// Error is a typed API/archive error.
type Error struct {
	Kind    Kind
	Message string
	Code    int // VK API error code, or HTTP status when no API code exists
}

func (e *Error) Error() string {
	return fmt.Sprintf("vk %s error (code %d): %s", e.Kind, e.Code, e.Message)
}

// New builds a typed error.
func New(kind Kind, code int, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// VK API error codes, per dev.vk.com/errors. Only the codes the dumper
// reacts to are listed.
const (
	CodeUnknown          = 1
	CodeAuthFailed       = 5
	CodeTooManyRequests  = 6
	CodePermissionDenied = 7
	CodeFloodControl     = 9
	CodeInternalServer   = 10
	CodeResponseTooBig   = 13
	CodeAccessDenied     = 15
	CodeParamError       = 100
	CodeNotFound         = 104
	CodeInvalidUserID    = 113
	CodeCannotResolve    = 177
	CodeWallDisabled     = 19
	CodeGroupAccess      = 203
)

// FromAPICode maps a VK error object to a typed Error.
func FromAPICode(code int, msg string) *Error {
	var kind Kind
	switch code {
	case CodeTooManyRequests, CodeFloodControl:
		kind = KindRateLimited
	case CodeUnknown, CodeInternalServer:
		kind = KindUnavailable
	case CodeResponseTooBig:
		kind = KindTooBig
	case CodeCannotResolve:
		kind = KindResolution
	default:
		// Auth, permission, missing or disabled content: permanent for
		// the scope that triggered it.
		kind = KindRejected
	}
	return &Error{Kind: kind, Code: code, Message: msg}
}

// IsRetryable reports whether an error of the given kind should go back
// through the retry loop.
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindRateLimited, KindUnavailable:
		return true
	default:
		return false
	}
}

// IsKind reports whether err is (or wraps) a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
