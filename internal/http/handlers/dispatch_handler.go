// README: Dispatch handlers for drivers, bookings, regions and shutdown.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"nuber/internal/modules/dispatch"
	"nuber/internal/modules/fleet"
	"nuber/internal/modules/ledger"
)

const defaultAddDriverTimeout = 2 * time.Second

// ResultReader finds completed bookings; ledger.Store and ledger.Memory both satisfy it.
type ResultReader interface {
	Get(ctx context.Context, bookingID int64) (*dispatch.BookingResult, error)
}

type DispatchHandler struct {
	dispatch         *dispatch.Dispatch
	results          ResultReader
	addDriverTimeout time.Duration
}

func NewDispatchHandler(d *dispatch.Dispatch, results ResultReader) *DispatchHandler {
	return &DispatchHandler{dispatch: d, results: results, addDriverTimeout: defaultAddDriverTimeout}
}

type personReq struct {
	Name       string `json:"name"`
	MaxDelayMS int64  `json:"max_delay_ms"`
}

func (r personReq) validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.MaxDelayMS < 0 {
		return errors.New("max_delay_ms must not be negative")
	}
	return nil
}

func (r personReq) maxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

func bindPerson(c *gin.Context) (personReq, bool) {
	var req personReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return req, false
	}
	if err := req.validate(); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

// AddDriver waits briefly for room in the idle pool instead of holding the request open.
func (h *DispatchHandler) AddDriver(c *gin.Context) {
	req, ok := bindPerson(c)
	if !ok {
		return
	}
	driver := fleet.NewDriver(req.Name, req.maxDelay())
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.addDriverTimeout)
	defer cancel()
	if err := h.dispatch.AddDriver(ctx, driver); err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"driver_id":    driver.ID,
		"name":         driver.Name,
		"idle_drivers": h.dispatch.IdleDrivers(),
	})
}

// BookPassenger blocks until the region admits the booking or the client goes away.
func (h *DispatchHandler) BookPassenger(c *gin.Context) {
	req, ok := bindPerson(c)
	if !ok {
		return
	}
	region := c.Param("region")
	handle, err := h.dispatch.BookPassenger(c.Request.Context(), fleet.NewPassenger(req.Name, req.maxDelay()), region)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, gin.H{
		"booking_id": handle.ID(),
		"region":     handle.Region(),
		"run_id":     h.dispatch.RunID(),
	})
}

// GetBooking answers from the dispatch while the booking runs (and until its sinks have
// it), then from the results ledger. Failed bookings are in the ledger too.
func (h *DispatchHandler) GetBooking(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid booking id")
		return
	}
	if b, ok := h.dispatch.Lookup(id); ok {
		var driver *string
		if d := b.Driver(); d != nil {
			driver = &d.Name
		}
		writeJSON(c, http.StatusOK, gin.H{
			"booking_id": b.ID,
			"region":     b.Region,
			"status":     b.Status(),
			"passenger":  b.Passenger.Name,
			"driver":     driver,
		})
		return
	}
	if h.results == nil {
		writeDispatchError(c, ledger.ErrNotFound)
		return
	}
	result, err := h.results.Get(c.Request.Context(), id)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	status := result.Status
	if status == "" {
		status = dispatch.StatusCompleted
	}
	writeJSON(c, http.StatusOK, gin.H{
		"booking_id": result.BookingID,
		"region":     result.Region,
		"status":     status,
		"result":     result,
	})
}

func (h *DispatchHandler) Awaiting(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"awaiting":     h.dispatch.BookingsAwaitingDriver(),
		"idle_drivers": h.dispatch.IdleDrivers(),
	})
}

func (h *DispatchHandler) Regions(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"regions": h.dispatch.Regions()})
}

func (h *DispatchHandler) Shutdown(c *gin.Context) {
	h.dispatch.Shutdown()
	writeJSON(c, http.StatusOK, gin.H{"status": "shutdown"})
}
