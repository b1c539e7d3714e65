package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"breakdown-systemv1/config"
	"breakdown-systemv1/internal/refloader"
	"breakdown-systemv1/internal/store/postgres"
	redisstore "breakdown-systemv1/internal/store/redis"
	"breakdown-systemv1/pkg/fyers"
)

// One-shot job, scheduled before market open: pull daily history for the
// symbol universe and cache the last completed session in prev_day_ohlc.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[ohlcloader] starting...")

	_ = godotenv.Load()
	cfg := config.Load()
	symbols := cfg.Symbols()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	pool, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[ohlcloader] postgres: %v", err)
	}
	creds, err := postgres.NewStore(pool).ActiveCredentials(ctx)
	pool.Close()
	if err != nil {
		log.Fatalf("[ohlcloader] credentials: %v", err)
	}

	writer, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("[ohlcloader] redis: %v", err)
	}
	defer writer.Close()

	api := fyers.NewClient(fyers.Config{
		AppID:       creds.AppID,
		AccessToken: creds.AccessToken,
		APIBase:     cfg.FyersAPIBase,
	})

	loader := refloader.New(api, writer, symbols, cfg.HistoryLookbackDays, cfg.HistoryCallGap)
	if err := loader.Run(ctx); err != nil {
		log.Fatalf("[ohlcloader] %v", err)
	}
	log.Println("[ohlcloader] done.")
}
