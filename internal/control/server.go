package control

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"screen-recorder/internal/logger"
	"screen-recorder/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// NewRouter mounts the control API. m may be nil to disable /metrics.
func NewRouter(h *Handler, m *metrics.Metrics, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	if m != nil {
		r.Use(metrics.RequestMiddleware(m))
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.State)
		r.Get("/sources", h.Sources)
		r.Post("/source", h.SelectSource)
		r.Put("/webcam", h.SetWebcam)
		r.Post("/start", h.Start)
		r.Post("/stop", h.Stop)
		r.Get("/events", h.Events)
		r.Get("/events/ws", h.EventsSocket)
		r.Get("/preview/{modality}", h.Preview)
	})
	return r
}

// Serve listens on addr until ctx is done, then drains connections.
// ready, when non-nil, receives the bound address.
func Serve(ctx context.Context, addr string, handler http.Handler, log *slog.Logger, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	// Request contexts derive from ctx so hijacked websocket streams end on
	// shutdown too.
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info("control server starting", "addr", ln.Addr().String())
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("control server stopped")
	return nil
}
