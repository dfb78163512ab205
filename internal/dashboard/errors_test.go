package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, FailureTimeout},
		{"wrapped deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), FailureTimeout},
		{"canceled", context.Canceled, FailureCanceled},
		{"auth", fmt.Errorf("provider: %w", ErrAuth), FailureAuth},
		{"malformed", fmt.Errorf("%w: bad json", ErrMalformedResponse), FailureMalformed},
		{"net timeout", &fakeNetError{timeout: true}, FailureTimeout},
		{"net transport", &fakeNetError{}, FailureTransport},
		{"url error", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("dns")}, FailureTransport},
		{"unknown", errors.New("boom"), FailureUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}
