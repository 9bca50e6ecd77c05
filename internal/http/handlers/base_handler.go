// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"nuber/internal/modules/dispatch"
	"nuber/internal/modules/ledger"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeDispatchError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, dispatch.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrUnknownRegion), errors.Is(err, ledger.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrRegionShutdown), errors.Is(err, dispatch.ErrPoolClosed):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(c, http.StatusServiceUnavailable, "timed out waiting for dispatch")
	case errors.Is(err, context.Canceled):
		writeError(c, http.StatusServiceUnavailable, "request cancelled")
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
