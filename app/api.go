package app

import (
	"context"
	"net/http"
	"time"

	"github.com/kilianp07/negsched/api/plan"
	"github.com/kilianp07/negsched/api/runs"
	"github.com/kilianp07/negsched/core/scenario"
)

// Handler returns the HTTP API: POST /api/plan and GET /api/runs.
func (s *Service) Handler() http.Handler {
	token := s.cfg.API.Token
	mux := http.NewServeMux()
	mux.Handle("/api/plan", plan.NewHandler(func(ctx context.Context, sc scenario.Scenario, k int, budget time.Duration) (any, error) {
		rep, err := s.Solve(ctx, sc, k, budget)
		return rep, err
	}, token))
	mux.Handle("/api/runs", runs.NewHandler(s.store, token))
	return mux
}

// serveAPI runs the HTTP API on addr until ctx is cancelled.
func (s *Service) serveAPI(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api server shutdown: %v", err)
		}
		cancel()
	}()
	s.log.Infof("serving api on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
