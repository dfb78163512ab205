package refresh

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler owns the set of refresh jobs and triggers each on its own
// interval plus jitter. Jobs never share a tick: a slow job keeps running on
// its own goroutine while every other job stays on schedule.
type Scheduler struct {
	scheduler *gocron.Scheduler
	jobs      []*Job

	wg      sync.WaitGroup
	runCtx  context.Context
	cancel  context.CancelFunc
	started bool
}

// NewScheduler creates a Scheduler ticking in the given timezone.
func NewScheduler(tz *time.Location) *Scheduler {
	if tz == nil {
		tz = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(tz),
		runCtx:    ctx,
		cancel:    cancel,
	}
}

// Add registers a job. Each tick lands uniformly inside
// [interval, interval+jitter], which keeps independently configured jobs from
// bursting against external APIs at the same instant. When runOnStart is
// false the first run waits out a full interval.
func (s *Scheduler) Add(j *Job, runOnStart bool) error {
	lower := int(j.interval.Seconds())
	if lower < 1 {
		lower = 1
	}
	upper := int((j.interval + j.jitter).Seconds())
	if upper < lower {
		upper = lower
	}

	def := s.scheduler.EveryRandom(lower, upper).Seconds()
	if runOnStart {
		def = def.StartImmediately()
	} else {
		def = def.WaitForSchedule()
	}

	_, err := def.Do(func() {
		s.wg.Add(1)
		defer s.wg.Done()

		// Last line of defense; Job.Run already contains source and merge
		// panics.
		defer func() {
			if r := recover(); r != nil {
				log.Printf("scheduler: job %s panicked: %v", j.Name(), r)
			}
		}()

		j.Run(s.runCtx)
	})
	if err != nil {
		return fmt.Errorf("scheduling job %q: %w", j.Name(), err)
	}

	s.jobs = append(s.jobs, j)
	return nil
}

// Start begins triggering jobs and returns immediately. The web layer may
// serve before any job has completed once; the store simply reports absent
// keys until then.
func (s *Scheduler) Start() {
	if len(s.jobs) == 0 {
		log.Println("scheduler: no jobs registered; nothing to schedule")
		return
	}
	s.started = true
	s.scheduler.StartAsync()
	log.Printf("scheduler: started with %d jobs", len(s.jobs))
}

// Stop halts triggering, then waits for in-flight runs to finish. When ctx
// expires first, the runs are cancelled; a cancelled run never writes to the
// store, so no partial entry can result.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.started {
		s.scheduler.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Println("scheduler: grace deadline reached; cancelling in-flight runs")
		s.cancel()
		<-done
	}
	s.cancel()
	log.Println("scheduler: stopped")
}

// Statuses reports every job's current state, in registration order.
func (s *Scheduler) Statuses() []Status {
	statuses := make([]Status, 0, len(s.jobs))
	for _, j := range s.jobs {
		statuses = append(statuses, j.Status())
	}
	return statuses
}

// Jobs returns the registered jobs, in registration order.
func (s *Scheduler) Jobs() []*Job {
	return s.jobs
}
