package reconciler

import (
	"context"
	"errors"
	"log"
	"time"

	"breakdown-systemv1/config"
	"breakdown-systemv1/internal/logger"
	"breakdown-systemv1/internal/metrics"
	"breakdown-systemv1/internal/model"
	"breakdown-systemv1/internal/notification"
	"breakdown-systemv1/internal/store/postgres"
	redisstore "breakdown-systemv1/internal/store/redis"
	"breakdown-systemv1/pkg/fyers"
)

// RunChild executes one supervised reconciler session: load the active
// credentials, hold the order socket open, and apply every update. The
// return value is the process exit code: 0 asks the supervisor for an
// immediate restart (token reload or auth expiry), 1 for a restart after
// backoff.
func RunChild(ctx context.Context, cfg *config.Config) int {
	trades := logger.Init("ordersocket", cfg.LogLevel)

	pool, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Printf("[ordersocket] postgres: %v", err)
		return 1
	}
	defer pool.Close()
	store := postgres.NewStore(pool)

	creds, err := store.ActiveCredentials(ctx)
	if err != nil {
		log.Printf("[ordersocket] credentials: %v", err)
		return 1
	}

	rdb, err := redisstore.Connect(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Printf("[ordersocket] redis: %v", err)
		return 1
	}
	defer rdb.Close()

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetWSExpected(true)
	health.StartLivenessChecker(ctx, rdb, pool, 15*time.Second)
	msrv := metrics.NewServer(cfg.MetricsAddr, health)
	msrv.Start()
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		msrv.Stop(stopCtx)
		stop()
	}()

	svc := New(Deps{
		Store:   store,
		Metrics: prom,
		Trades:  trades,
		Notify:  notification.FromConfig(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.AlertWebhookURL),
	})

	socket, err := fyers.NewOrderSocket(fyers.SocketConfig{
		URL:   cfg.FyersOrderWSURL,
		Token: creds.SocketToken(),
	})
	if err != nil {
		log.Printf("[ordersocket] socket: %v", err)
		return 1
	}
	socket.OnConnect = func() { health.SetWSConnected(true) }
	socket.OnReconnect = func() {
		health.SetWSConnected(false)
		prom.WSReconnects.Inc()
	}
	socket.OnUpdate = func(ev fyers.OrderEvent) {
		u := model.OrderUpdate{
			ID:          ev.ID,
			Status:      ev.Status,
			TradedPrice: ev.TradedPrice,
			Qty:         ev.Qty,
			Symbol:      ev.Symbol,
		}
		if err := svc.Apply(ctx, u); err != nil {
			// The broker does not redeliver order updates; surface loudly
			// so the row can be reconciled by hand.
			log.Printf("[ordersocket] CRITICAL: update %s (status %d) not applied: %v", ev.ID, ev.Status, err)
		}
	}

	pubsub, err := redisstore.SubscribeTokenUpdates(ctx, rdb)
	if err != nil {
		log.Printf("[ordersocket] token subscription: %v", err)
		return 1
	}
	defer pubsub.Close()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	socketDone := make(chan error, 1)
	go func() { socketDone <- socket.Run(sessionCtx) }()

	log.Printf("[ordersocket] reconciling order updates (app %s)", creds.AppID)

	select {
	case <-ctx.Done():
		return 0
	case <-pubsub.Channel():
		log.Printf("[ordersocket] token updated, restarting for fresh credentials")
		cancel()
		<-socketDone
		return 0
	case err := <-socketDone:
		if errors.Is(err, fyers.ErrForbidden) {
			log.Printf("[ordersocket] session expired, restarting for fresh credentials")
			return 0
		}
		if err != nil {
			log.Printf("[ordersocket] socket failed: %v", err)
			return 1
		}
		return 0
	}
}
