// README: Dispatch owns the idle driver pool and the regions, routes bookings and fans results out to sinks.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nuber/internal/modules/fleet"
)

const defaultSinkTimeout = 5 * time.Second

type Options struct {
	// Regions maps a region name to the maximum number of simultaneous bookings.
	Regions map[string]int
	// LogEvents enables the "<bookingId>: <message>" event lines.
	LogEvents bool
	// DefaultRegionCapacity is used for regions first seen in BookPassenger.
	// Zero rejects unknown regions with ErrUnknownRegion.
	DefaultRegionCapacity int
	// MaxIdleDrivers defaults to DefaultMaxIdleDrivers.
	MaxIdleDrivers int
	// RunID defaults to a fresh uuid. Sinks that key rows by run need it up front.
	RunID       uuid.UUID
	Logger      *zap.Logger
	Sinks       []ResultSink
	SinkTimeout time.Duration
}

type Dispatch struct {
	runID  uuid.UUID
	ctx    context.Context
	logger *zap.Logger
	events *zap.Logger

	logEvents       bool
	defaultCapacity int

	mu       sync.RWMutex
	regions  map[string]*Region
	shutdown bool

	drivers  *driverPool
	bookings atomic.Int64
	running  *tracker

	sinks       []ResultSink
	sinkTimeout time.Duration
}

// New creates the dispatch and its configured regions. Cancelling ctx interrupts every
// booking still running.
func New(ctx context.Context, opts Options) (*Dispatch, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultRegionCapacity < 0 {
		return nil, fmt.Errorf("default region capacity: %w", ErrInvalidCapacity)
	}
	sinkTimeout := opts.SinkTimeout
	if sinkTimeout <= 0 {
		sinkTimeout = defaultSinkTimeout
	}

	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}

	d := &Dispatch{
		runID:           runID,
		ctx:             ctx,
		logger:          logger,
		events:          logger.Named("events"),
		logEvents:       opts.LogEvents,
		defaultCapacity: opts.DefaultRegionCapacity,
		regions:         make(map[string]*Region, len(opts.Regions)),
		drivers:         newDriverPool(opts.MaxIdleDrivers),
		running:         newTracker(),
		sinks:           opts.Sinks,
		sinkTimeout:     sinkTimeout,
	}

	names := make([]string, 0, len(opts.Regions))
	for name := range opts.Regions {
		names = append(names, name)
	}
	sort.Strings(names)

	logger.Info("Creating Nuber Dispatch", zap.String("run_id", d.runID.String()))
	logger.Info(fmt.Sprintf("Creating %d regions", len(names)))
	for _, name := range names {
		r, err := newRegion(d, name, opts.Regions[name])
		if err != nil {
			return nil, err
		}
		logger.Info("Creating Nuber region for "+name, zap.Int("capacity", r.capacity))
		d.regions[name] = r
	}
	logger.Info(fmt.Sprintf("Done creating %d regions", len(names)))
	return d, nil
}

// RunID identifies this dispatch instance; booking ids are only unique within it.
func (d *Dispatch) RunID() uuid.UUID { return d.runID }

// AddDriver puts a driver into the idle pool, blocking while the pool is full.
func (d *Dispatch) AddDriver(ctx context.Context, driver *fleet.Driver) error {
	if driver == nil {
		return fmt.Errorf("%w: nil driver", ErrBadRequest)
	}
	return d.drivers.put(ctx, driver)
}

// GetDriver removes a driver from the idle pool, blocking until one is available.
func (d *Dispatch) GetDriver(ctx context.Context) (*fleet.Driver, error) {
	return d.drivers.take(ctx)
}

func (d *Dispatch) IdleDrivers() int {
	return d.drivers.len()
}

// BookPassenger routes the passenger to the named region, creating the region with
// the default capacity when it has not been seen before.
func (d *Dispatch) BookPassenger(ctx context.Context, p *fleet.Passenger, region string) (*Handle, error) {
	r, err := d.region(region)
	if err != nil {
		return nil, err
	}
	return r.BookPassenger(ctx, p)
}

func (d *Dispatch) region(name string) (*Region, error) {
	d.mu.RLock()
	r, ok := d.regions[name]
	d.mu.RUnlock()
	if ok {
		return r, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.regions[name]; ok {
		return r, nil
	}
	if d.defaultCapacity == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegion, name)
	}
	r, err := newRegion(d, name, d.defaultCapacity)
	if err != nil {
		return nil, err
	}
	if d.shutdown {
		r.shutdown.Store(true)
	}
	d.regions[name] = r
	d.logger.Info("Creating Nuber region for "+name,
		zap.Int("capacity", r.capacity),
		zap.Bool("on_demand", true),
	)
	return r, nil
}

// Region returns the region with the given name without creating it.
func (d *Dispatch) Region(name string) (*Region, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.regions[name]
	return r, ok
}

func (d *Dispatch) snapshotRegions() []*Region {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Region, 0, len(d.regions))
	for _, r := range d.regions {
		out = append(out, r)
	}
	return out
}

// BookingsAwaitingDriver scans every region's in-flight bookings. Bookings are admitted
// and completed during the scan, so the count is best effort.
func (d *Dispatch) BookingsAwaitingDriver() int {
	n := 0
	for _, r := range d.snapshotRegions() {
		n += r.Snapshot().AwaitingDriver
	}
	return n
}

// Regions returns a snapshot of every region sorted by name.
func (d *Dispatch) Regions() []RegionSnapshot {
	regions := d.snapshotRegions()
	out := make([]RegionSnapshot, 0, len(regions))
	for _, r := range regions {
		out = append(out, r.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds an in-flight booking by id.
func (d *Dispatch) Lookup(id int64) (*Booking, bool) {
	for _, r := range d.snapshotRegions() {
		if b, ok := r.lookup(id); ok {
			return b, true
		}
	}
	return nil, false
}

// Wait blocks until every admitted booking has finished and its result has been handed
// to every sink, or ctx is done.
func (d *Dispatch) Wait(ctx context.Context) error {
	select {
	case <-d.running.idle():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogEvent writes "<bookingId>: <message>" when event logging is enabled.
func (d *Dispatch) LogEvent(b *Booking, message string) {
	if !d.logEvents || b == nil {
		return
	}
	d.events.Info(fmt.Sprintf("%d: %s", b.ID, message),
		zap.String("region", b.Region),
		zap.String("booking", b.String()),
	)
}

// Shutdown tells every region, including ones created later, to stop admitting
// bookings. In-flight bookings and idle drivers are left alone.
func (d *Dispatch) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.shutdown {
		d.logger.Info("dispatch shutting down", zap.Int("regions", len(d.regions)))
	}
	d.shutdown = true
	for _, r := range d.regions {
		r.Shutdown()
	}
}

// Close stops the idle pool from accepting drivers. Bookings waiting for a driver fail
// once the pool is empty.
func (d *Dispatch) Close() {
	d.drivers.close()
}

func (d *Dispatch) nextBookingID() int64 {
	return d.bookings.Add(1)
}

func (d *Dispatch) publish(r BookingResult) {
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(d.ctx), d.sinkTimeout)
		if err := s.Record(ctx, r); err != nil {
			d.logger.Warn("result sink failed",
				zap.Int64("booking_id", r.BookingID),
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.Error(err),
			)
		}
		cancel()
	}
}
