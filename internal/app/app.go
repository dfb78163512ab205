// Package app assembles the dashboard: store, location service, refresh jobs,
// scheduler and the HTTP read surface.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	httpapi "github.com/MirDochEgal555/Dashboard/internal/api/http"
	"github.com/MirDochEgal555/Dashboard/internal/config"
	"github.com/MirDochEgal555/Dashboard/internal/httpx"
	"github.com/MirDochEgal555/Dashboard/internal/location"
	"github.com/MirDochEgal555/Dashboard/internal/refresh"
	"github.com/MirDochEgal555/Dashboard/internal/store"
)

const shutdownGrace = 10 * time.Second

// App is the assembled dashboard process.
type App struct {
	env   config.Env
	cfg   *config.Config
	store *store.SQLiteStore
	sched *refresh.Scheduler
	api   *fiber.App
}

// New wires every component. Widget blocks that fail to build are logged and
// skipped; global problems (store, config) are returned as errors.
func New(env config.Env, cfg *config.Config) (*App, error) {
	st, err := store.OpenSQLite(env.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache store at %s: %w", env.DBPath, err)
	}

	// One outbound client; per-provider resilience lives in httpx wrappers.
	httpClient := &http.Client{Timeout: env.HTTPTimeout}

	locSvc := location.NewService(st, httpx.New("location", httpClient), location.Config{
		Mode:         cfg.Location.Mode,
		FallbackCity: cfg.Location.FallbackCity,
		GoogleAPIKey: env.GoogleAPIKey,
	})

	jobs, errs := buildJobs(cfg, env, st, httpClient, locSvc)
	for _, err := range errs {
		log.Printf("config: widget disabled: %v", err)
	}

	sched := refresh.NewScheduler(env.Timezone)
	for _, job := range jobs {
		if err := sched.Add(job, cfg.RunOnStart()); err != nil {
			st.Close()
			return nil, err
		}
	}

	api := httpapi.NewApp()
	httpapi.RegisterRoutes(api, st, sched)

	return &App{
		env:   env,
		cfg:   cfg,
		store: st,
		sched: sched,
		api:   api,
	}, nil
}

// Run starts the scheduler and the HTTP server, then blocks until SIGINT or
// SIGTERM. Shutdown order: stop accepting requests, drain in-flight refresh
// runs, close the store.
func (a *App) Run() error {
	a.sched.Start()

	go func() {
		if err := a.api.Listen(a.env.Addr); err != nil {
			log.Printf("http server stopped: %v", err)
		}
	}()
	log.Printf("dashboard listening on %s", a.env.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := a.api.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during http shutdown: %v", err)
	}
	a.sched.Stop(shutdownCtx)

	return a.store.Close()
}

// RefreshOnce runs the named jobs (all when names is empty) exactly once and
// returns. Used by the one-shot CLI path.
func (a *App) RefreshOnce(ctx context.Context, names []string) error {
	jobs := a.sched.Jobs()

	if len(names) == 0 {
		for _, job := range jobs {
			job.Run(ctx)
		}
		return nil
	}

	byName := make(map[string]*refresh.Job, len(jobs))
	for _, job := range jobs {
		byName[job.Name()] = job
	}
	for _, name := range names {
		job, ok := byName[name]
		if !ok {
			return fmt.Errorf("unknown job %q", name)
		}
		job.Run(ctx)
	}
	return nil
}

// Statuses reports every scheduled job's state.
func (a *App) Statuses() []refresh.Status {
	return a.sched.Statuses()
}

// Close releases the store without going through Run's shutdown path.
func (a *App) Close() error {
	return a.store.Close()
}
