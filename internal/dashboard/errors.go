package dashboard

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// Sentinel errors sources wrap so failures can be classified at the refresh
// job boundary.
var (
	// ErrAuth marks a rejected credential (401/403 or equivalent).
	ErrAuth = errors.New("authentication failed")

	// ErrMalformedResponse marks a response the adapter could not decode.
	ErrMalformedResponse = errors.New("malformed provider response")
)

// FailureKind buckets a fetch error for logging and the status surface. It
// never drives retry decisions; every failure is handled the same way at the
// job boundary.
type FailureKind string

const (
	FailureTimeout   FailureKind = "timeout"
	FailureCanceled  FailureKind = "canceled"
	FailureTransport FailureKind = "transport"
	FailureAuth      FailureKind = "auth"
	FailureMalformed FailureKind = "malformed_response"
	FailureUnknown   FailureKind = "unknown"
)

// Classify maps a source error onto its failure kind.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	case errors.Is(err, ErrAuth):
		return FailureAuth
	case errors.Is(err, ErrMalformedResponse):
		return FailureMalformed
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return FailureTimeout
		}
		return FailureTransport
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return FailureTransport
	}

	return FailureUnknown
}
