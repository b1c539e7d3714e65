package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"breakdown-systemv1/config"
	"breakdown-systemv1/internal/reconciler"
)

// The binary runs in two roles. The parent supervises; the child (marked by
// ORDERSOCKET_CHILD=1) holds the order socket and reconciles trades. A child
// exiting 0 signals a deliberate restart (token reload, session expiry) and
// comes back immediately; any other exit backs off first.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[ordersocket] shutdown signal received")
		cancel()
	}()

	if reconciler.IsChild() {
		os.Exit(reconciler.RunChild(ctx, cfg))
	}

	log.Println("[ordersocket] supervisor starting...")
	if err := reconciler.Supervise(ctx, 5*time.Second); err != nil {
		log.Fatalf("[ordersocket] supervisor: %v", err)
	}
	log.Println("[ordersocket] shutdown complete.")
}
