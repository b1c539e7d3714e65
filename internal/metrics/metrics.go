package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading pipeline. Each binary
// registers the full set and drives the subset it owns; untouched series stay
// at zero.
type Metrics struct {
	// Data engine
	TicksIngested    prometheus.Counter
	TicksPublished   prometheus.Counter
	TicksDropped     prometheus.Counter
	CandlesPublished prometheus.Counter
	CandlesDropped   prometheus.Counter
	WSReconnects     prometheus.Counter
	RedisWriteDur    prometheus.Histogram
	MarketState      prometheus.Gauge // 0=closed, 1=open

	// Stream consumption (algo worker)
	StreamMessages    *prometheus.CounterVec // labels: stream
	MalformedMessages prometheus.Counter
	HandlerErrors     prometheus.Counter
	PELReclaimed      prometheus.Counter

	// Strategy / execution
	TradesCreated   prometheus.Counter
	OrdersPlaced    *prometheus.CounterVec // labels: side
	OrderFailures   prometheus.Counter
	CapRejections   *prometheus.CounterVec // labels: scope=global|symbol
	CounterRollback prometheus.Counter
	BreakevenMoves  prometheus.Counter

	// Reconciler
	OrderUpdates prometheus.Counter
	TradesOpened prometheus.Counter
	TradesClosed prometheus.Counter
	TradesFailed prometheus.Counter
	ExitReverts  prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics on the default
// registry (what /metrics serves).
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers on the given registry. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction cannot collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_ticks_ingested_total",
			Help: "Ticks received from the broker data socket",
		}),
		TicksPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_ticks_published_total",
			Help: "Ticks published to the tick stream",
		}),
		TicksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_ticks_dropped_total",
			Help: "Ticks dropped inside the pipeline (channel full)",
		}),
		CandlesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_candles_published_total",
			Help: "Closed one-minute candles published to the candle stream",
		}),
		CandlesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_candles_dropped_total",
			Help: "Closed candles dropped inside the pipeline (channel full)",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_ws_reconnects_total",
			Help: "Broker websocket reconnection attempts",
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "algo_redis_write_duration_seconds",
			Help:    "Redis stream write latency",
			Buckets: prometheus.DefBuckets,
		}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "algo_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),

		StreamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "algo_stream_messages_total",
			Help: "Stream messages consumed and acknowledged (by stream)",
		}, []string{"stream"}),
		MalformedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_malformed_messages_total",
			Help: "Stream messages acked as poison pills (parse failures)",
		}),
		HandlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_handler_errors_total",
			Help: "Handler failures that left a message unacked for retry",
		}),
		PELReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_pel_messages_reclaimed_total",
			Help: "Messages reclaimed from dead consumers via XCLAIM",
		}),

		TradesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_trades_created_total",
			Help: "PENDING trades created from breakdown candles",
		}),
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "algo_orders_placed_total",
			Help: "Market orders placed with the broker (by side)",
		}, []string{"side"}),
		OrderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_order_failures_total",
			Help: "Order placements that failed or were rejected by the API",
		}),
		CapRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "algo_cap_rejections_total",
			Help: "Entries refused by the daily cap gate (by scope)",
		}, []string{"scope"}),
		CounterRollback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_counter_rollbacks_total",
			Help: "Cap counter rollbacks after failed placements",
		}),
		BreakevenMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_breakeven_moves_total",
			Help: "Stops relocated to entry by the break-even rule",
		}),

		OrderUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_order_updates_total",
			Help: "Order updates received on the order socket",
		}),
		TradesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_trades_opened_total",
			Help: "Trades moved to OPEN on entry fills",
		}),
		TradesClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_trades_closed_total",
			Help: "Trades moved to CLOSED on exit fills",
		}),
		TradesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_trades_failed_total",
			Help: "Trades moved to FAILED on entry rejection/cancellation",
		}),
		ExitReverts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "algo_exit_reverts_total",
			Help: "PENDING_EXIT trades reverted to OPEN on exit rejection",
		}),
	}

	reg.MustRegister(
		m.TicksIngested,
		m.TicksPublished,
		m.TicksDropped,
		m.CandlesPublished,
		m.CandlesDropped,
		m.WSReconnects,
		m.RedisWriteDur,
		m.MarketState,
		m.StreamMessages,
		m.MalformedMessages,
		m.HandlerErrors,
		m.PELReclaimed,
		m.TradesCreated,
		m.OrdersPlaced,
		m.OrderFailures,
		m.CapRejections,
		m.CounterRollback,
		m.BreakevenMoves,
		m.OrderUpdates,
		m.TradesOpened,
		m.TradesClosed,
		m.TradesFailed,
		m.ExitReverts,
	)

	return m
}

// HealthStatus represents process health for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	WSExpected       bool      `json:"ws_expected"`
	WSConnected      bool      `json:"ws_connected"`
	LastTickTime     time.Time `json:"last_tick_time"`
	RedisConnected   bool      `json:"redis_connected"`
	PostgresExpected bool      `json:"postgres_expected"`
	PostgresOK       bool      `json:"postgres_ok"`

	RedisLatencyMs    float64   `json:"redis_latency_ms"`
	PostgresLatencyMs float64   `json:"postgres_latency_ms"`
	LastCheckAt       time.Time `json:"last_check_at"`
	StartedAt         time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

// SetWSExpected marks this process as owning a broker socket; /healthz then
// degrades when the socket is down.
func (h *HealthStatus) SetWSExpected(v bool) {
	h.mu.Lock()
	h.WSExpected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckPostgres pings the pool and records latency + health.
func (h *HealthStatus) CheckPostgres(ctx context.Context, pool *pgxpool.Pool) {
	start := time.Now()
	err := pool.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.PostgresOK = err == nil
	h.PostgresLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either handle may be
// nil when the process does not use that dependency; a nil handle is excluded
// from the /healthz verdict.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, pool *pgxpool.Pool, interval time.Duration) {
	h.mu.Lock()
	h.PostgresExpected = pool != nil
	h.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if pool != nil {
					h.CheckPostgres(probeCtx, pool)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if (h.WSExpected && !h.WSConnected) || !h.RedisConnected || (h.PostgresExpected && !h.PostgresOK) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && h.PostgresExpected && !h.PostgresOK {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status            string  `json:"status"`
		Uptime            string  `json:"uptime"`
		WSExpected        bool    `json:"ws_expected"`
		WSConnected       bool    `json:"ws_connected"`
		LastTickTime      string  `json:"last_tick_time"`
		TickAge           string  `json:"tick_age"`
		RedisConnected    bool    `json:"redis_connected"`
		RedisLatencyMs    float64 `json:"redis_latency_ms"`
		PostgresExpected  bool    `json:"postgres_expected"`
		PostgresOK        bool    `json:"postgres_ok"`
		PostgresLatencyMs float64 `json:"postgres_latency_ms"`
		LastCheckAt       string  `json:"last_check_at"`
	}{
		Status:            overallStatus,
		Uptime:            time.Since(h.StartedAt).Round(time.Second).String(),
		WSExpected:        h.WSExpected,
		WSConnected:       h.WSConnected,
		LastTickTime:      h.LastTickTime.Format(time.RFC3339),
		TickAge:           tickAge,
		RedisConnected:    h.RedisConnected,
		RedisLatencyMs:    h.RedisLatencyMs,
		PostgresExpected:  h.PostgresExpected,
		PostgresOK:        h.PostgresOK,
		PostgresLatencyMs: h.PostgresLatencyMs,
		LastCheckAt:       h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
