package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"breakdown-systemv1/config"
	"breakdown-systemv1/internal/logger"
	"breakdown-systemv1/internal/metrics"
	"breakdown-systemv1/internal/store/postgres"
	redisstore "breakdown-systemv1/internal/store/redis"
	"breakdown-systemv1/internal/worker"
	"breakdown-systemv1/pkg/fyers"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[algoworker] starting...")

	_ = godotenv.Load()
	cfg := config.Load()
	trades := logger.Init("algoworker", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[algoworker] shutdown signal received")
		cancel()
	}()

	pool, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[algoworker] postgres: %v", err)
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	settings, err := store.LoadSettings(ctx)
	if err != nil {
		log.Fatalf("[algoworker] settings: %v", err)
	}

	creds, err := store.ActiveCredentials(ctx)
	if err != nil {
		log.Fatalf("[algoworker] credentials: %v", err)
	}

	consumerName := cfg.ConsumerName
	if consumerName == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "worker"
		}
		consumerName = fmt.Sprintf("WORKER_%s_%s", host, uuid.New().String()[:8])
	}

	reader, err := redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  consumerName,
	})
	if err != nil {
		log.Fatalf("[algoworker] redis: %v", err)
	}
	defer reader.Close()

	prevDay, err := reader.PrevDayOHLC(ctx)
	if err != nil {
		log.Fatalf("[algoworker] previous-day reference: %v", err)
	}
	if len(prevDay) == 0 {
		log.Println("[algoworker] WARNING: prev_day_ohlc is empty, no setups can arm until the loader runs")
	}

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.StartLivenessChecker(ctx, reader.Client(), pool, 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	broker := fyers.NewClient(fyers.Config{
		AppID:       creds.AppID,
		AccessToken: creds.AccessToken,
		APIBase:     cfg.FyersAPIBase,
	})

	svc := worker.New(settings, prevDay, worker.Deps{
		Reader:  reader,
		Store:   store,
		Gate:    redisstore.NewTradeCounters(reader.Client()),
		Broker:  broker,
		Metrics: prom,
		Trades:  trades,
	})

	runErr := svc.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	metricsSrv.Stop(shutdownCtx)
	shutdownCancel()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Fatalf("[algoworker] fatal: %v", runErr)
	}
	log.Println("[algoworker] shutdown complete.")
}
