package refresh

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MirDochEgal555/Dashboard/internal/dashboard"
	"github.com/MirDochEgal555/Dashboard/internal/store"
)

// defaultTimeout bounds one refresh cycle when no per-job timeout is set.
const defaultTimeout = 30 * time.Second

// MergeFunc combines the per-source results of one run into the payload
// written to the cache. It receives every result, including failed ones, so
// the payload can record which sources were dropped. It is only invoked when
// at least one source succeeded.
type MergeFunc func(now time.Time, results []dashboard.SourceResult) (any, error)

// ConfigError marks a job definition that cannot run. It disables only the
// affected job; other jobs are built and scheduled normally.
type ConfigError struct {
	Job    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("job %q: %s", e.Job, e.Reason)
}

// JobConfig describes one refresh job: the binding of a cache key to one or
// more sources and a cadence.
type JobConfig struct {
	Name     string
	CacheKey string
	Interval time.Duration
	Jitter   time.Duration
	TTL      time.Duration
	Timeout  time.Duration
	Sources  []dashboard.Source
	Merge    MergeFunc
}

// Job periodically fetches from its bound sources and writes the merged
// payload to the cache. State machine: idle -> running -> idle, with a
// failed-last-run flag that does not block further runs.
type Job struct {
	name     string
	cacheKey string
	interval time.Duration
	jitter   time.Duration
	ttl      time.Duration
	timeout  time.Duration
	sources  []dashboard.Source
	merge    MergeFunc
	store    store.Store

	running atomic.Bool

	mu            sync.Mutex
	failedLastRun bool
	lastErr       error
	lastAttempt   time.Time
	lastSuccess   time.Time
	runs          uint64
	failures      uint64
	skips         uint64
}

// NewJob validates cfg and binds it to st. Validation failures come back as
// *ConfigError.
func NewJob(st store.Store, cfg JobConfig) (*Job, error) {
	if cfg.Name == "" {
		return nil, &ConfigError{Job: cfg.Name, Reason: "name must not be empty"}
	}
	if cfg.CacheKey == "" {
		return nil, &ConfigError{Job: cfg.Name, Reason: "cache key must not be empty"}
	}
	if cfg.Interval <= 0 {
		return nil, &ConfigError{Job: cfg.Name, Reason: "interval must be positive"}
	}
	if cfg.Jitter < 0 {
		return nil, &ConfigError{Job: cfg.Name, Reason: "jitter must not be negative"}
	}
	// A TTL at or below the interval would make data vanish after one missed
	// cycle.
	if cfg.TTL <= cfg.Interval {
		return nil, &ConfigError{Job: cfg.Name, Reason: "ttl must exceed interval"}
	}
	if len(cfg.Sources) == 0 {
		return nil, &ConfigError{Job: cfg.Name, Reason: "at least one source is required"}
	}
	if cfg.Merge == nil {
		return nil, &ConfigError{Job: cfg.Name, Reason: "merge function is required"}
	}
	if st == nil {
		return nil, &ConfigError{Job: cfg.Name, Reason: "store is required"}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Job{
		name:     cfg.Name,
		cacheKey: cfg.CacheKey,
		interval: cfg.Interval,
		jitter:   cfg.Jitter,
		ttl:      cfg.TTL,
		timeout:  timeout,
		sources:  cfg.Sources,
		merge:    cfg.Merge,
		store:    st,
	}, nil
}

// Name returns the job's configured name.
func (j *Job) Name() string { return j.name }

// CacheKey returns the cache key this job writes.
func (j *Job) CacheKey() string { return j.cacheKey }

// Run executes one refresh cycle. A trigger that arrives while a previous
// cycle is still in flight is dropped, never queued. Errors never escape:
// every failure ends as a logged, flagged idle state, and the previous cache
// entry stays untouched.
func (j *Job) Run(ctx context.Context) {
	if !j.running.CompareAndSwap(false, true) {
		j.mu.Lock()
		j.skips++
		j.mu.Unlock()
		log.Printf("job %s: previous run still in flight; dropping trigger", j.name)
		return
	}
	defer j.running.Store(false)

	runID := uuid.NewString()[:8]
	started := time.Now().UTC()

	j.mu.Lock()
	j.lastAttempt = started
	j.runs++
	j.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	results := j.fetchAll(fetchCtx)

	var succeeded int
	for _, r := range results {
		if r.Err != nil {
			log.Printf("job %s [%s]: source %s failed (%s): %v",
				j.name, runID, r.Source, dashboard.Classify(r.Err), r.Err)
			continue
		}
		succeeded++
	}

	if succeeded == 0 {
		j.fail(runID, fmt.Errorf("all %d sources failed", len(results)))
		return
	}

	payload, err := j.mergeResults(started, results)
	if err != nil {
		j.fail(runID, fmt.Errorf("merge: %w", err))
		return
	}

	// The write happens only after every source has fully completed, so a
	// cancelled run can never leave a partial entry behind.
	if err := j.store.Put(ctx, j.cacheKey, payload, j.ttl); err != nil {
		// Keep the previous entry; the write is retried on the next tick.
		j.fail(runID, fmt.Errorf("cache write for %q: %w", j.cacheKey, err))
		return
	}

	j.mu.Lock()
	j.failedLastRun = false
	j.lastErr = nil
	j.lastSuccess = time.Now().UTC()
	j.mu.Unlock()

	log.Printf("job %s [%s]: refreshed %q from %d/%d sources in %s",
		j.name, runID, j.cacheKey, succeeded, len(results), time.Since(started).Round(time.Millisecond))
}

// fetchAll invokes every source concurrently under the shared deadline. A
// panicking source is converted into a failed result for that source only.
func (j *Job) fetchAll(ctx context.Context) []dashboard.SourceResult {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []dashboard.SourceResult
	)

	for _, src := range j.sources {
		src := src
		wg.Add(1)
		go func() {
			defer wg.Done()

			res := dashboard.SourceResult{Source: src.Name()}
			func() {
				defer func() {
					if r := recover(); r != nil {
						res.Err = fmt.Errorf("source panicked: %v", r)
					}
				}()
				res.Value, res.Err = src.Fetch(ctx)
			}()

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}

	wg.Wait()
	return results
}

// mergeResults calls the merge function with panic containment.
func (j *Job) mergeResults(now time.Time, results []dashboard.SourceResult) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("merge panicked: %v", r)
		}
	}()
	return j.merge(now, results)
}

func (j *Job) fail(runID string, err error) {
	j.mu.Lock()
	j.failedLastRun = true
	j.lastErr = err
	j.failures++
	j.mu.Unlock()

	log.Printf("job %s [%s]: run failed: %v", j.name, runID, err)
}

// Status is a point-in-time snapshot of a job's health for the read-only
// status surface.
type Status struct {
	Name            string     `json:"name"`
	CacheKey        string     `json:"cache_key"`
	State           string     `json:"state"` // idle | running
	FailedLastRun   bool       `json:"failed_last_run"`
	LastAttempt     *time.Time `json:"last_attempt,omitempty"`
	LastSuccess     *time.Time `json:"last_success,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	LastErrorKind   string     `json:"last_error_kind,omitempty"`
	Runs            uint64     `json:"runs"`
	Failures        uint64     `json:"failures"`
	Skips           uint64     `json:"skips"`
	IntervalSeconds int        `json:"interval_seconds"`
	JitterSeconds   int        `json:"jitter_seconds"`
	TTLSeconds      int        `json:"ttl_seconds"`
}

// Status returns the job's current observable state.
func (j *Job) Status() Status {
	state := "idle"
	if j.running.Load() {
		state = "running"
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	s := Status{
		Name:            j.name,
		CacheKey:        j.cacheKey,
		State:           state,
		FailedLastRun:   j.failedLastRun,
		Runs:            j.runs,
		Failures:        j.failures,
		Skips:           j.skips,
		IntervalSeconds: int(j.interval.Seconds()),
		JitterSeconds:   int(j.jitter.Seconds()),
		TTLSeconds:      int(j.ttl.Seconds()),
	}
	if !j.lastAttempt.IsZero() {
		t := j.lastAttempt
		s.LastAttempt = &t
	}
	if !j.lastSuccess.IsZero() {
		t := j.lastSuccess
		s.LastSuccess = &t
	}
	if j.lastErr != nil {
		s.LastError = j.lastErr.Error()
		s.LastErrorKind = string(dashboard.Classify(j.lastErr))
	}
	return s
}

// Successes filters results down to the ones that carry a value.
func Successes(results []dashboard.SourceResult) []dashboard.SourceResult {
	var ok []dashboard.SourceResult
	for _, r := range results {
		if r.Err == nil {
			ok = append(ok, r)
		}
	}
	return ok
}

// ErrorStrings renders the failed results as "source: message" lines for
// payload envelopes.
func ErrorStrings(results []dashboard.SourceResult) []string {
	errs := []string{}
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", r.Source, r.Err))
		}
	}
	return errs
}

// SourceNames lists the names of every bound source, in registration order.
func (j *Job) SourceNames() []string {
	names := make([]string, 0, len(j.sources))
	for _, s := range j.sources {
		names = append(names, s.Name())
	}
	return names
}
