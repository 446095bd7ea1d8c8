package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"

	usecase "github.com/tigerroll/customer-batch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

const defaultShutdownTimeout = 30 * time.Second

// metricsHandler is implemented by recorders that expose a scrape endpoint.
type metricsHandler interface {
	Handler() http.Handler
}

// ServerParams are the dependencies of the HTTP trigger.
type ServerParams struct {
	fx.In
	Lifecycle      fx.Lifecycle
	Cfg            *config.Config
	Operator       usecase.JobOperator
	MetricRecorder metrics.MetricRecorder
}

// NewServer builds the HTTP trigger server and ties it to the application lifecycle.
// It returns nil when the trigger is disabled.
func NewServer(p ServerParams) *http.Server {
	hc := p.Cfg.Surfin.Trigger.HTTP
	if !hc.Enabled {
		logger.Infof("HTTP trigger: Disabled.")
		return nil
	}

	var scrape http.Handler
	if mh, ok := p.MetricRecorder.(metricsHandler); ok {
		scrape = mh.Handler()
	}
	router := NewRouter(NewHandler(p.Operator, hc), p.Cfg.Surfin.Metrics.Path, scrape)
	srv := &http.Server{
		Addr:              hc.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownTimeout := time.Duration(hc.ShutdownTimeoutSeconds) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Infof("HTTP trigger: Listening on %s.", ln.Addr())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Errorf("HTTP trigger: server stopped: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			logger.Infof("HTTP trigger: Shutting down.")
			return srv.Shutdown(ctx)
		},
	})
	return srv
}

// Module starts the HTTP trigger when surfin.trigger.http.enabled is set.
var Module = fx.Options(
	fx.Provide(NewServer),
	fx.Invoke(func(*http.Server) {}),
)
