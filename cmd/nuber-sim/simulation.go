package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"nuber/internal/config"
	"nuber/internal/modules/dispatch"
	"nuber/internal/modules/fleet"
)

const awaitingInterval = 250 * time.Millisecond

type simulation struct {
	dispatch *dispatch.Dispatch
	cfg      config.SimulationConfig
	regions  []string

	mu      sync.Mutex
	handles []*dispatch.Handle

	rejected atomic.Int64
}

type Summary struct {
	Drivers   int
	Booked    int
	Completed int
	Failed    int
	Rejected  int
	Elapsed   time.Duration
	ByRegion  map[string]int
}

func newSimulation(d *dispatch.Dispatch, cfg config.SimulationConfig, regions []string) *simulation {
	return &simulation{dispatch: d, cfg: cfg, regions: regions}
}

// Run adds every driver and books every passenger concurrently, then waits for all
// admitted bookings to finish.
func (s *simulation) Run(ctx context.Context, out io.Writer) (Summary, error) {
	start := time.Now()
	summary := Summary{Drivers: s.cfg.Drivers, ByRegion: make(map[string]int)}
	if len(s.regions) == 0 {
		return summary, errors.New("no regions configured")
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Drivers; i++ {
		name := fmt.Sprintf("D-%d", i+1)
		g.Go(func() error {
			return s.dispatch.AddDriver(gctx, fleet.NewDriver(name, s.cfg.DriverMaxDelay))
		})
	}
	// One producer per region; each books its share so admission blocking in one
	// region does not hold up the others.
	for r, region := range s.regions {
		g.Go(func() error {
			for i := r; i < s.cfg.Passengers; i += len(s.regions) {
				if err := s.book(gctx, region, fmt.Sprintf("P-%d", i+1)); err != nil {
					return err
				}
			}
			return nil
		})
	}

	stopWatch := s.watchAwaiting(ctx, out)
	err := g.Wait()
	stopWatch()
	if err != nil {
		return summary, err
	}

	s.mu.Lock()
	handles := s.handles
	s.mu.Unlock()
	summary.Booked = len(handles)
	summary.Rejected = int(s.rejected.Load())
	for _, h := range handles {
		result, err := h.Wait(ctx)
		switch {
		case err == nil:
			summary.Completed++
			summary.ByRegion[result.Region]++
		case errors.Is(err, ctx.Err()):
			summary.Elapsed = time.Since(start)
			return summary, err
		default:
			summary.Failed++
		}
	}
	summary.Elapsed = time.Since(start)
	return summary, nil
}

func (s *simulation) book(ctx context.Context, region, name string) error {
	h, err := s.dispatch.BookPassenger(ctx, fleet.NewPassenger(name, s.cfg.PassengerMaxDelay), region)
	if errors.Is(err, dispatch.ErrRegionShutdown) {
		s.rejected.Add(1)
		return nil
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
	return nil
}

// watchAwaiting prints the awaiting-driver count until the returned func is called.
func (s *simulation) watchAwaiting(ctx context.Context, out io.Writer) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(awaitingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Fprintf(out, "Bookings awaiting driver: %d\n", s.dispatch.BookingsAwaitingDriver())
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// VerifyShutdown shuts the dispatch down and tries one booking per region, returning
// how many were rejected.
func (s *simulation) VerifyShutdown(ctx context.Context) int {
	s.dispatch.Shutdown()
	rejected := 0
	for _, region := range s.regions {
		_, err := s.dispatch.BookPassenger(ctx, fleet.NewPassenger("late", 0), region)
		if errors.Is(err, dispatch.ErrRegionShutdown) {
			rejected++
		}
	}
	return rejected
}

func (s Summary) Print(out io.Writer) {
	fmt.Fprintln(out, "\n== Summary ==")
	fmt.Fprintf(out, "drivers=%d booked=%d completed=%d failed=%d rejected=%d elapsed=%s\n",
		s.Drivers, s.Booked, s.Completed, s.Failed, s.Rejected, s.Elapsed.Round(time.Millisecond))
	regions := make([]string, 0, len(s.ByRegion))
	for r := range s.ByRegion {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	for _, r := range regions {
		fmt.Fprintf(out, "  %-10s %d\n", r, s.ByRegion[r])
	}
}
