package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"breakdown-systemv1/config"
	"breakdown-systemv1/internal/dataengine"
	"breakdown-systemv1/internal/marketdata/agg"
	"breakdown-systemv1/internal/markethours"
	"breakdown-systemv1/internal/metrics"
	"breakdown-systemv1/internal/store/postgres"
	redisstore "breakdown-systemv1/internal/store/redis"
	"breakdown-systemv1/pkg/fyers"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[dataengine] starting...")

	_ = godotenv.Load()
	cfg := config.Load()
	symbols := cfg.Symbols()
	if len(symbols) == 0 {
		log.Fatal("[dataengine] SYMBOLS is empty, nothing to subscribe")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[dataengine] shutdown signal received")
		cancel()
	}()

	// Postgres is needed only long enough to read the active credentials.
	pool, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[dataengine] postgres: %v", err)
	}
	creds, err := postgres.NewStore(pool).ActiveCredentials(ctx)
	pool.Close()
	if err != nil {
		log.Fatalf("[dataengine] credentials: %v", err)
	}

	writer, err := redisstore.New(redisstore.WriterConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		TickMaxLen: cfg.StreamMaxLen,
	})
	if err != nil {
		log.Fatalf("[dataengine] redis: %v", err)
	}
	defer writer.Close()

	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	buffered := redisstore.NewBufferedWriter(ctx, writer, cb, 10000)

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetWSExpected(true)
	health.StartLivenessChecker(ctx, writer.Client(), nil, 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	socket, err := fyers.NewDataSocket(fyers.SocketConfig{
		URL:   cfg.FyersDataWSURL,
		Token: creds.SocketToken(),
	})
	if err != nil {
		log.Fatalf("[dataengine] socket: %v", err)
	}

	svc := dataengine.New(dataengine.Config{
		Symbols:      symbols,
		BatchSize:    cfg.SubscribeBatchSize,
		BatchGap:     cfg.SubscribeBatchGap,
		EnforceHours: cfg.MarketHoursEnforced,
	}, dataengine.Deps{
		Socket:  socket,
		Bars:    agg.New(),
		Writer:  buffered,
		Redis:   writer.Client(),
		Metrics: prom,
		Health:  health,
	})

	log.Println("[dataengine] ╔══════════════════════════════════════════════════════════╗")
	log.Println("[dataengine] ║  Breakdown Data Engine                                   ║")
	log.Println("[dataengine] ║                                                          ║")
	log.Println("[dataengine] ║  [Fyers WS] → [1m Agg] → [market_ticks/candle_stream_1m] ║")
	log.Printf("[dataengine] ║  Symbols: %-46d ║", len(symbols))
	log.Println("[dataengine] ╚══════════════════════════════════════════════════════════╝")
	log.Printf("[dataengine] %s", markethours.StatusString(time.Now()))

	runErr := svc.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	metricsSrv.Stop(shutdownCtx)
	shutdownCancel()

	switch {
	case errors.Is(runErr, dataengine.ErrTokenUpdate), errors.Is(runErr, fyers.ErrForbidden):
		// Exit 0 so the process manager restarts us onto the fresh token.
		log.Printf("[dataengine] %v", runErr)
		log.Println("[dataengine] exiting for credential reload")
	case runErr != nil:
		log.Fatalf("[dataengine] fatal: %v", runErr)
	default:
		log.Println("[dataengine] shutdown complete.")
	}
}
