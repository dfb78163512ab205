package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MirDochEgal555/Dashboard/internal/dashboard"
	"github.com/MirDochEgal555/Dashboard/internal/store"
)

type fakeSource struct {
	name  string
	fetch func(ctx context.Context) (any, error)
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context) (any, error) { return f.fetch(ctx) }

// listMerge is a minimal envelope merge used across the tests: successful
// values plus the dropped sources' error strings.
func listMerge(now time.Time, results []dashboard.SourceResult) (any, error) {
	var values []any
	for _, r := range Successes(results) {
		values = append(values, r.Value)
	}
	return map[string]any{
		"refreshed_at_utc": now,
		"errors":           ErrorStrings(results),
		"values":           values,
	}, nil
}

func newTestJob(t *testing.T, st store.Store, sources ...dashboard.Source) *Job {
	t.Helper()
	j, err := NewJob(st, JobConfig{
		Name:     "test",
		CacheKey: "test.payload",
		Interval: time.Second,
		TTL:      5 * time.Second,
		Timeout:  5 * time.Second,
		Sources:  sources,
		Merge:    listMerge,
	})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	return j
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestNewJobValidation(t *testing.T) {
	st := store.NewMemoryStore()
	src := &fakeSource{name: "ok", fetch: func(context.Context) (any, error) { return 1, nil }}

	cases := []struct {
		name string
		cfg  JobConfig
	}{
		{"empty name", JobConfig{CacheKey: "k", Interval: time.Second, TTL: time.Minute, Sources: []dashboard.Source{src}, Merge: listMerge}},
		{"empty cache key", JobConfig{Name: "j", Interval: time.Second, TTL: time.Minute, Sources: []dashboard.Source{src}, Merge: listMerge}},
		{"ttl not above interval", JobConfig{Name: "j", CacheKey: "k", Interval: time.Minute, TTL: time.Minute, Sources: []dashboard.Source{src}, Merge: listMerge}},
		{"no sources", JobConfig{Name: "j", CacheKey: "k", Interval: time.Second, TTL: time.Minute, Merge: listMerge}},
		{"no merge", JobConfig{Name: "j", CacheKey: "k", Interval: time.Second, TTL: time.Minute, Sources: []dashboard.Source{src}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewJob(st, tc.cfg)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
		})
	}
}

func TestTriggerWhileRunningIsDropped(t *testing.T) {
	release := make(chan struct{})
	var invocations atomic.Int32

	blocking := &fakeSource{name: "blocking", fetch: func(ctx context.Context) (any, error) {
		invocations.Add(1)
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}

	j := newTestJob(t, store.NewMemoryStore(), blocking)

	go j.Run(context.Background())
	waitFor(t, time.Second, func() bool { return j.Status().State == "running" })

	// Second trigger while running must be a no-op.
	j.Run(context.Background())

	if got := invocations.Load(); got != 1 {
		t.Fatalf("expected a single source invocation, got %d", got)
	}
	if got := j.Status().Skips; got != 1 {
		t.Fatalf("expected one skipped trigger, got %d", got)
	}

	close(release)
	waitFor(t, time.Second, func() bool { return j.Status().State == "idle" })

	if s := j.Status(); s.FailedLastRun || s.Runs != 1 {
		t.Fatalf("unexpected status after release: %+v", s)
	}
}

func TestFailingSourceLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	if err := st.Put(ctx, "test.payload", json.RawMessage(`{"previous":true}`), time.Hour); err != nil {
		t.Fatalf("seed put: %v", err)
	}

	failing := &fakeSource{name: "failing", fetch: func(context.Context) (any, error) {
		return nil, &url.Error{Op: "Get", URL: "http://upstream", Err: errors.New("connection refused")}
	}}
	j := newTestJob(t, st, failing)

	for i := 0; i < 3; i++ {
		j.Run(ctx)
	}

	entry, err := st.Get(ctx, "test.payload")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(entry.Payload) != `{"previous":true}` {
		t.Fatalf("previous payload was replaced: %s", entry.Payload)
	}

	s := j.Status()
	if !s.FailedLastRun {
		t.Fatal("expected failed_last_run to be set")
	}
	if s.Failures != 3 || s.Runs != 3 {
		t.Fatalf("unexpected counters: %+v", s)
	}
	if s.State != "idle" {
		t.Fatalf("expected job back to idle, got %q", s.State)
	}
}

func TestPartialFailureKeepsSurvivor(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	good := &fakeSource{name: "good", fetch: func(context.Context) (any, error) { return "value-a", nil }}
	bad := &fakeSource{name: "bad", fetch: func(context.Context) (any, error) { return nil, errors.New("boom") }}

	j := newTestJob(t, st, good, bad)
	j.Run(ctx)

	s := j.Status()
	if s.FailedLastRun {
		t.Fatal("partial failure must not mark the job failed")
	}

	entry, err := st.Get(ctx, "test.payload")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var payload struct {
		Errors []string `json:"errors"`
		Values []any    `json:"values"`
	}
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(payload.Values) != 1 || payload.Values[0] != "value-a" {
		t.Fatalf("expected only the survivor's value, got %v", payload.Values)
	}
	if len(payload.Errors) != 1 {
		t.Fatalf("expected the dropped source to be recorded, got %v", payload.Errors)
	}
}

func TestAllSourcesFailMarksJobFailed(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	badA := &fakeSource{name: "bad-a", fetch: func(context.Context) (any, error) { return nil, errors.New("a down") }}
	badB := &fakeSource{name: "bad-b", fetch: func(context.Context) (any, error) { return nil, errors.New("b down") }}

	j := newTestJob(t, st, badA, badB)
	j.Run(ctx)

	if !j.Status().FailedLastRun {
		t.Fatal("expected failed_last_run when every source fails")
	}
	if _, err := st.Get(ctx, "test.payload"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected cache untouched (absent), got %v", err)
	}
}

func TestFirstSuccessSurvivesLaterTransportFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	var call atomic.Int32
	flaky := &fakeSource{name: "flaky", fetch: func(context.Context) (any, error) {
		if call.Add(1) == 1 {
			return map[string]int{"temp": 10}, nil
		}
		return nil, &url.Error{Op: "Get", URL: "http://upstream", Err: errors.New("no route to host")}
	}}

	j := newTestJob(t, st, flaky)

	j.Run(ctx) // tick 1: success
	first, err := st.Get(ctx, "test.payload")
	if err != nil {
		t.Fatalf("get after tick 1: %v", err)
	}
	if !first.Fresh(time.Now()) {
		t.Fatal("entry should be fresh right after a successful tick")
	}

	j.Run(ctx) // tick 2: transport failure
	second, err := st.Get(ctx, "test.payload")
	if err != nil {
		t.Fatalf("get after tick 2: %v", err)
	}
	if string(second.Payload) != string(first.Payload) {
		t.Fatalf("payload changed across a failed tick: %s vs %s", first.Payload, second.Payload)
	}
	if !second.FetchedAt.Equal(first.FetchedAt) {
		t.Fatal("fetched_at changed across a failed tick")
	}
	if !j.Status().FailedLastRun {
		t.Fatal("expected failed_last_run after the transport failure")
	}
}

func TestSourcePanicIsIsolated(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	panicking := &fakeSource{name: "panicking", fetch: func(context.Context) (any, error) { panic("kaboom") }}
	good := &fakeSource{name: "good", fetch: func(context.Context) (any, error) { return "still here", nil }}

	j := newTestJob(t, st, panicking, good)
	j.Run(ctx)

	if j.Status().FailedLastRun {
		t.Fatal("a panicking source must count as an ordinary source failure")
	}
	if _, err := st.Get(ctx, "test.payload"); err != nil {
		t.Fatalf("expected the survivor's payload to be written: %v", err)
	}
}

func TestMergePanicFailsRunOnly(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	good := &fakeSource{name: "good", fetch: func(context.Context) (any, error) { return 1, nil }}
	j, err := NewJob(st, JobConfig{
		Name:     "test",
		CacheKey: "test.payload",
		Interval: time.Second,
		TTL:      5 * time.Second,
		Sources:  []dashboard.Source{good},
		Merge: func(time.Time, []dashboard.SourceResult) (any, error) {
			panic("merge exploded")
		},
	})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	j.Run(ctx)

	if !j.Status().FailedLastRun {
		t.Fatal("expected the run to be flagged failed")
	}
	if _, err := st.Get(ctx, "test.payload"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no write after a merge panic, got %v", err)
	}
}

type failingStore struct {
	*store.MemoryStore
	puts atomic.Int32
}

func (f *failingStore) Put(ctx context.Context, key string, payload any, ttl time.Duration) error {
	f.puts.Add(1)
	return fmt.Errorf("disk full")
}

func TestCacheWriteFailureIsFlaggedNotRetriedImmediately(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{MemoryStore: store.NewMemoryStore()}

	good := &fakeSource{name: "good", fetch: func(context.Context) (any, error) { return 1, nil }}
	j, err := NewJob(fs, JobConfig{
		Name:     "test",
		CacheKey: "test.payload",
		Interval: time.Second,
		TTL:      5 * time.Second,
		Sources:  []dashboard.Source{good},
		Merge:    listMerge,
	})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}

	j.Run(ctx)

	if got := fs.puts.Load(); got != 1 {
		t.Fatalf("a failed write must wait for the next tick, got %d put attempts", got)
	}
	if !j.Status().FailedLastRun {
		t.Fatal("expected failed_last_run after a cache write failure")
	}

	// Next scheduled tick retries the write.
	j.Run(ctx)
	if got := fs.puts.Load(); got != 2 {
		t.Fatalf("expected the write to be retried on the following tick, got %d", got)
	}
}
