package main

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nuber/internal/config"
	"nuber/internal/events"
	"nuber/internal/http/handlers"
	"nuber/internal/infra"
	"nuber/internal/modules/dispatch"
	"nuber/internal/modules/ledger"
	"nuber/internal/modules/stats"
)

type sinkSet struct {
	sinks     []dispatch.ResultSink
	results   handlers.ResultReader
	snapshots stats.SnapshotPublisher
	closers   []func()
}

func (s *sinkSet) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildSinks wires each configured backend. Postgres falls back to an in-memory ledger;
// Redis and Kafka are skipped when unset.
func buildSinks(ctx context.Context, cfg config.Config, runID uuid.UUID, lg *zap.Logger) (*sinkSet, error) {
	s := &sinkSet{}

	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		store := ledger.NewStore(pool, runID)
		s.sinks = append(s.sinks, store)
		s.results = store
		lg.Info("ledger: postgres")
	} else {
		mem := ledger.NewMemory(0)
		s.sinks = append(s.sinks, mem)
		s.results = mem
		lg.Info("ledger: in-memory, NUBER_DB_DSN not set")
	}

	if cfg.Redis.Addr != "" {
		client, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		store := stats.NewStore(client, runID)
		s.sinks = append(s.sinks, store)
		s.snapshots = store
		lg.Info("stats: redis", zap.String("addr", cfg.Redis.Addr))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		if err := infra.CheckKafka(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
			s.close()
			return nil, err
		}
		pub := events.NewResultPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, runID, lg.Named("events"))
		s.closers = append(s.closers, func() {
			if err := pub.Close(); err != nil {
				lg.Warn("close kafka writer", zap.Error(err))
			}
		})
		s.sinks = append(s.sinks, pub)
		lg.Info("events: kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	return s, nil
}
