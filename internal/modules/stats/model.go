// README: Live dispatch statistics published to Redis.
package stats

import (
	"time"

	"nuber/internal/modules/dispatch"
)

// Snapshot is a point-in-time view of the dispatch. Counts are best effort.
type Snapshot struct {
	AwaitingDriver int                       `json:"awaiting_driver"`
	IdleDrivers    int                       `json:"idle_drivers"`
	Regions        []dispatch.RegionSnapshot `json:"regions"`
	TakenAt        time.Time                 `json:"taken_at"`
}

const (
	completedKeyFmt = "nuber:%s:completed"
	failedKeyFmt    = "nuber:%s:failed"
	recentKeyFmt    = "nuber:%s:recent"
	snapshotKeyFmt  = "nuber:%s:snapshot"
	// recentLimit caps the recent-results list.
	recentLimit = 100
	// keyTTL expires the keys of runs that are gone.
	keyTTL = 24 * time.Hour
)
