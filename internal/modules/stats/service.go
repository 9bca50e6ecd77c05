// README: Stats service periodically publishes dispatch snapshots.
package stats

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nuber/internal/config"
	"nuber/internal/modules/dispatch"
)

// DispatchView is the read-only part of the dispatch the reporter samples.
type DispatchView interface {
	BookingsAwaitingDriver() int
	IdleDrivers() int
	Regions() []dispatch.RegionSnapshot
}

type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snap Snapshot) error
}

type Service struct {
	store    SnapshotPublisher
	dispatch DispatchView
	cfg      config.StatsConfig
	logger   *zap.Logger
}

func NewService(store SnapshotPublisher, d DispatchView, cfg config.StatsConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, dispatch: d, cfg: cfg, logger: logger}
}

func (s *Service) Snapshot() Snapshot {
	return Snapshot{
		AwaitingDriver: s.dispatch.BookingsAwaitingDriver(),
		IdleDrivers:    s.dispatch.IdleDrivers(),
		Regions:        s.dispatch.Regions(),
		TakenAt:        time.Now().UTC(),
	}
}

func (s *Service) RunReporter(ctx context.Context) {
	tick := time.Duration(s.cfg.TickSeconds) * time.Second
	if tick <= 0 {
		tick = 5 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.report(ctx)
		}
	}
}

func (s *Service) report(ctx context.Context) {
	snap := s.Snapshot()
	if s.store != nil {
		if err := s.store.PublishSnapshot(ctx, snap); err != nil {
			s.logger.Warn("publish snapshot", zap.Error(err))
			return
		}
	}
	s.logger.Debug("dispatch snapshot",
		zap.Int("awaiting_driver", snap.AwaitingDriver),
		zap.Int("idle_drivers", snap.IdleDrivers),
		zap.Int("regions", len(snap.Regions)),
	)
}
