package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "jsonls",
		Name:      "build_info",
		Help:      "Build information of the running server.",
	}, []string{"version"})

	watchedSchemaFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "jsonls",
		Name:      "watched_schema_files",
		Help:      "Number of local schema files watched for changes.",
	})

	schemaFileChanges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jsonls",
		Name:      "schema_file_changes_total",
		Help:      "Changes of watched schema files.",
	})
)

// metricsShutdownTimeout bounds the graceful stop of the endpoint.
const metricsShutdownTimeout = 5 * time.Second

// MetricsServer serves the Prometheus /metrics endpoint.
type MetricsServer struct {
	srv      *http.Server
	listener net.Listener
}

// NewMetricsServer listens on addr and serves metrics from gatherer, or
// the default registry when nil.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer) (*MetricsServer, error) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, NewComponentError("metrics", "listen", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &MetricsServer{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: ln,
	}, nil
}

// Addr returns the address the endpoint listens on.
func (m *MetricsServer) Addr() string {
	return m.listener.Addr().String()
}

// Serve serves until ctx is cancelled.
func (m *MetricsServer) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- m.srv.Serve(m.listener) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return NewComponentError("metrics", "serve", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := m.srv.Shutdown(shutdownCtx); err != nil {
		return NewComponentError("metrics", "shutdown", errors.Join(ErrShutdownTimeout, err))
	}
	return nil
}
