// README: Entry point; loads config, wires the dispatch and its sinks, starts the HTTP server and the stats reporter.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nuber/internal/config"
	httptransport "nuber/internal/http"
	"nuber/internal/infra"
	"nuber/internal/logger"
	"nuber/internal/modules/dispatch"
	"nuber/internal/modules/stats"
)

const drainTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	lg, err := logger.New(cfg.AppEnv, "nuber-api")
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Fatal("nuber-api stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, lg *zap.Logger) error {
	// Bookings outlive the signal context so they can finish after SIGTERM.
	dispatchCtx, cancelDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDispatch()

	runID := uuid.New()
	sk, err := buildSinks(ctx, cfg, runID, lg)
	if err != nil {
		return err
	}
	defer sk.close()

	d, err := dispatch.New(dispatchCtx, dispatch.Options{
		Regions:               cfg.Dispatch.Regions,
		LogEvents:             cfg.Dispatch.LogEvents,
		DefaultRegionCapacity: cfg.Dispatch.DefaultRegionCapacity,
		MaxIdleDrivers:        cfg.Dispatch.MaxIdleDrivers,
		RunID:                 runID,
		Logger:                lg,
		Sinks:                 sk.sinks,
	})
	if err != nil {
		return err
	}

	var verifier infra.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return err
		}
	} else {
		lg.Warn("NUBER_FIREBASE_PROJECT_ID not set, API is unauthenticated")
	}

	reporter := stats.NewService(sk.snapshots, d, cfg.Stats, lg.Named("stats"))
	go reporter.RunReporter(ctx)

	server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.ServerDeps{
		Dispatch: d,
		Results:  sk.results,
		Verifier: verifier,
		Logger:   lg.Named("http"),
	})
	serveErr := server.Run(ctx, 10*time.Second)

	d.Shutdown()
	waitCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := d.Wait(waitCtx); err != nil {
		lg.Warn("bookings still in flight at exit, interrupting", zap.Error(err))
	}
	cancelDispatch()
	d.Close()
	return serveErr
}
