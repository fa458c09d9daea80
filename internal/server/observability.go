// Observability HTTP server for metrics, health and profiling
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeebo/errs"
	"golang.org/x/sync/errgroup"

	"github.com/nainya/assetcatalog/internal/logger"
)

// Error is the class of observability server errors.
var Error = errs.Class("observability server")

// ReadyFunc reports whether the catalog can serve requests.
type ReadyFunc func(ctx context.Context) error

// ObservabilityServer provides HTTP endpoints for metrics and profiling
type ObservabilityServer struct {
	server  *http.Server
	port    int
	backend string
	log     *logger.Logger
}

// NewObservabilityServer creates a new HTTP server for observability.
// Metrics are served from gatherer; ready backs /ready and may be nil.
func NewObservabilityServer(port int, gatherer prometheus.Gatherer, ready ReadyFunc, backend string, log *logger.Logger) *ObservabilityServer {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, fmt.Sprintf(`{"status":"healthy","service":"assetcatalog","backend":%q}`, backend))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				log.Warn("Readiness check failed").Err(err).Send()
				writeStatus(w, http.StatusServiceUnavailable, `{"status":"unavailable"}`)
				return
			}
		}
		writeStatus(w, http.StatusOK, `{"status":"ready"}`)
	})

	// pprof endpoints for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return &ObservabilityServer{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		port:    port,
		backend: backend,
		log:     log,
	}
}

func writeStatus(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// Handler returns the endpoint mux.
func (o *ObservabilityServer) Handler() http.Handler {
	return o.server.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (o *ObservabilityServer) Run(ctx context.Context) error {
	o.log.LogServerStart(o.port, o.backend)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := o.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return Error.Wrap(err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		o.log.LogServerShutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return Error.Wrap(o.server.Shutdown(shutdownCtx))
	})
	return group.Wait()
}
