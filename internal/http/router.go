// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nuber/internal/http/handlers"
	"nuber/internal/http/middleware"
)

const roleDispatcher = "dispatcher"

func NewRouter(deps ServerDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger), middleware.Logging(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api")
	dispatcherOnly := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return []gin.HandlerFunc{h}
	}
	if deps.Verifier != nil {
		api.Use(middleware.Auth(deps.Verifier))
		dispatcherOnly = func(h gin.HandlerFunc) []gin.HandlerFunc {
			return []gin.HandlerFunc{middleware.RequireRole(roleDispatcher), h}
		}
	}

	h := handlers.NewDispatchHandler(deps.Dispatch, deps.Results)
	api.POST("/drivers", dispatcherOnly(h.AddDriver)...)
	api.POST("/regions/:region/bookings", h.BookPassenger)
	api.GET("/bookings/:id", h.GetBooking)
	api.GET("/regions", h.Regions)
	api.GET("/dispatch/awaiting", h.Awaiting)
	api.POST("/dispatch/shutdown", dispatcherOnly(h.Shutdown)...)
	return r
}
