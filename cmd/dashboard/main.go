// Command dashboard runs the information dashboard backend: a refresh
// scheduler feeding a durable cache, served read-only over HTTP.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MirDochEgal555/Dashboard/internal/app"
	"github.com/MirDochEgal555/Dashboard/internal/config"
	"github.com/MirDochEgal555/Dashboard/internal/store"
)

const oneShotTimeout = 2 * time.Minute

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	root := &cobra.Command{
		Use:           "dashboard",
		Short:         "Local information dashboard backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh [job ...]",
		Short: "Run refresh jobs once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return refreshOnce(args)
		},
	}

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the cache store",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "keys",
		Short: "List cached widget keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cacheKeys()
		},
	})
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete stale cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cachePrune()
		},
	})

	root.AddCommand(refreshCmd, cacheCmd)

	if err := root.Execute(); err != nil {
		log.Fatalf("dashboard: %v", err)
	}
}

func loadAll() (config.Env, *config.Config, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return config.Env{}, nil, err
	}
	cfg, err := config.Load(env.ConfigPath)
	if err != nil {
		return config.Env{}, nil, err
	}
	return env, cfg, nil
}

func serve() error {
	env, cfg, err := loadAll()
	if err != nil {
		return err
	}
	a, err := app.New(env, cfg)
	if err != nil {
		return err
	}
	return a.Run()
}

func refreshOnce(names []string) error {
	env, cfg, err := loadAll()
	if err != nil {
		return err
	}
	a, err := app.New(env, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), oneShotTimeout)
	defer cancel()

	if err := a.RefreshOnce(ctx, names); err != nil {
		return err
	}

	for _, s := range a.Statuses() {
		if s.Runs == 0 {
			continue
		}
		state := "ok"
		if s.FailedLastRun {
			state = "failed: " + s.LastError
		}
		fmt.Fprintf(os.Stdout, "%-12s %-24s %s\n", s.Name, s.CacheKey, state)
	}
	return nil
}

func cacheKeys() error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	st, err := store.OpenSQLite(env.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	keys, err := st.Keys(context.Background())
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Println(key)
	}
	return nil
}

func cachePrune() error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	st, err := store.OpenSQLite(env.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	pruned, err := st.Prune(context.Background(), time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("pruned %d stale entries\n", pruned)
	return nil
}
