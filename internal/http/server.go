// README: API gateway; owns the HTTP server and delegates to the dispatch.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"nuber/internal/http/handlers"
	"nuber/internal/infra"
	"nuber/internal/modules/dispatch"
)

type ServerDeps struct {
	Dispatch *dispatch.Dispatch
	// Results is optional; without it finished bookings answer 404.
	Results handlers.ResultReader
	// Verifier is optional; without it the API is unauthenticated.
	Verifier infra.TokenVerifier
	Logger   *zap.Logger
}

type Server struct {
	http   *http.Server
	logger *zap.Logger
}

func NewServer(addr string, deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: deps.Logger,
	}
}

func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is done, then drains open requests for up to shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
