// README: Simulation runner; drives a dispatch with concurrent drivers and passengers and prints a summary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nuber/internal/config"
	"nuber/internal/logger"
	"nuber/internal/modules/dispatch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	flag.IntVar(&cfg.Simulation.Drivers, "drivers", cfg.Simulation.Drivers, "Drivers to add")
	flag.IntVar(&cfg.Simulation.Passengers, "passengers", cfg.Simulation.Passengers, "Passengers to book")
	flag.DurationVar(&cfg.Simulation.DriverMaxDelay, "driver-delay", cfg.Simulation.DriverMaxDelay, "Max driver pickup delay")
	flag.DurationVar(&cfg.Simulation.PassengerMaxDelay, "passenger-delay", cfg.Simulation.PassengerMaxDelay, "Max passenger travel time")
	flag.BoolVar(&cfg.Dispatch.LogEvents, "log-events", cfg.Dispatch.LogEvents, "Log booking events")
	timeout := flag.Duration("timeout", 5*time.Minute, "Total timeout")
	flag.Parse()

	lg, err := logger.New(cfg.AppEnv, "nuber-sim")
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	d, err := dispatch.New(ctx, dispatch.Options{
		Regions:               cfg.Dispatch.Regions,
		LogEvents:             cfg.Dispatch.LogEvents,
		DefaultRegionCapacity: cfg.Dispatch.DefaultRegionCapacity,
		MaxIdleDrivers:        cfg.Dispatch.MaxIdleDrivers,
		Logger:                lg,
	})
	if err != nil {
		lg.Fatal("create dispatch", zap.Error(err))
	}

	sim := newSimulation(d, cfg.Simulation, cfg.Dispatch.RegionNames())
	summary, err := sim.Run(ctx, os.Stdout)
	if err != nil {
		lg.Error("simulation aborted", zap.Error(err))
	}
	summary.Print(os.Stdout)

	fmt.Println("\n== Shutdown ==")
	rejected := sim.VerifyShutdown(ctx)
	fmt.Printf("post-shutdown bookings rejected: %d/%d\n", rejected, len(cfg.Dispatch.RegionNames()))
	d.Close()

	if err != nil || summary.Failed > 0 || rejected != len(cfg.Dispatch.RegionNames()) {
		if errors.Is(err, context.DeadlineExceeded) {
			fmt.Println("timed out; raise -timeout or shrink the run")
		}
		os.Exit(1)
	}
}
