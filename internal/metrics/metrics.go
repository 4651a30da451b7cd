// Package metrics exposes engine counters and gauges over a Prometheus
// scrape endpoint.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds the engine's instrumentation.
type Metrics struct {
	Ticks          *prometheus.CounterVec
	TickErrors     *prometheus.CounterVec
	Signals        *prometheus.CounterVec
	RiskRejections *prometheus.CounterVec
	TradesClosed   *prometheus.CounterVec
	Equity         prometheus.Gauge
	Drawdown       prometheus.Gauge
	OpenPositions  prometheus.Gauge

	registry *prometheus.Registry
	server   *http.Server
	log      zerolog.Logger
}

// New registers all collectors on a fresh registry.
func New(log zerolog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_ticks_total",
			Help: "Completed engine ticks per symbol.",
		}, []string{"symbol"}),
		TickErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_tick_errors_total",
			Help: "Ticks skipped due to data or gateway errors.",
		}, []string{"symbol", "kind"}),
		Signals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Signals emitted by direction.",
		}, []string{"symbol", "direction"}),
		RiskRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_risk_rejections_total",
			Help: "Risk sizer rejections by reason.",
		}, []string{"symbol", "reason"}),
		TradesClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_trades_closed_total",
			Help: "Closed round-trips by exit reason.",
		}, []string{"symbol", "reason"}),
		Equity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trader_equity_dollars",
			Help: "Current account equity.",
		}),
		Drawdown: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trader_drawdown_ratio",
			Help: "Fractional decline from peak equity.",
		}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trader_open_positions",
			Help: "Number of live positions.",
		}),
		registry: reg,
		log:      log,
	}
}

// Serve starts the scrape endpoint on addr and blocks until ctx is
// cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.server = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		m.log.Info().Str("addr", addr).Msg("metrics listener started")
		errCh <- m.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return m.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
