// README: Stats store backed by Redis hashes, lists and a snapshot key.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"nuber/internal/modules/dispatch"
)

type Store struct {
	redis *redis.Client
	runID uuid.UUID
}

func NewStore(redis *redis.Client, runID uuid.UUID) *Store {
	return &Store{redis: redis, runID: runID}
}

// Record counts a finished booking against its region, completed and failed
// separately, and pushes it onto the capped recent list.
func (s *Store) Record(ctx context.Context, r dispatch.BookingResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	counter := s.key(completedKeyFmt)
	if r.Status == dispatch.StatusFailed {
		counter = s.key(failedKeyFmt)
	}
	pipe := s.redis.TxPipeline()
	pipe.HIncrBy(ctx, counter, r.Region, 1)
	pipe.Expire(ctx, counter, keyTTL)
	pipe.LPush(ctx, s.key(recentKeyFmt), payload)
	pipe.LTrim(ctx, s.key(recentKeyFmt), 0, recentLimit-1)
	pipe.Expire(ctx, s.key(recentKeyFmt), keyTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Completed returns the number of completed bookings per region.
func (s *Store) Completed(ctx context.Context) (map[string]int64, error) {
	return s.counts(ctx, completedKeyFmt)
}

// Failed returns the number of failed bookings per region.
func (s *Store) Failed(ctx context.Context) (map[string]int64, error) {
	return s.counts(ctx, failedKeyFmt)
}

func (s *Store) counts(ctx context.Context, format string) (map[string]int64, error) {
	vals, err := s.redis.HGetAll(ctx, s.key(format)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(vals))
	for region, v := range vals {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("count for %s: %w", region, err)
		}
		out[region] = n
	}
	return out, nil
}

// Recent returns up to n results, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]dispatch.BookingResult, error) {
	if n <= 0 || n > recentLimit {
		n = recentLimit
	}
	vals, err := s.redis.LRange(ctx, s.key(recentKeyFmt), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]dispatch.BookingResult, 0, len(vals))
	for _, v := range vals {
		var r dispatch.BookingResult
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) PublishSnapshot(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, s.key(snapshotKeyFmt), payload, keyTTL).Err()
}

// LatestSnapshot reports false when no snapshot has been published yet.
func (s *Store) LatestSnapshot(ctx context.Context) (Snapshot, bool, error) {
	val, err := s.redis.Get(ctx, s.key(snapshotKeyFmt)).Result()
	if err == redis.Nil {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *Store) key(format string) string {
	return fmt.Sprintf(format, s.runID.String())
}
