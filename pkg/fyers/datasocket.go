package fyers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SocketConfig holds connection settings shared by both websockets.
type SocketConfig struct {
	// URL of the socket endpoint, e.g. "wss://api-t1.fyers.in/socket/v2/dataSock".
	URL string

	// Token in "app_id:access_token" form.
	Token string

	// LiteMode requests LTP-only frames. The data engine needs full mode for
	// cumulative day volume. Ignored by the order socket.
	LiteMode bool

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *SocketConfig) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// subscription frame for the data socket.
type subRequest struct {
	T      string   `json:"T"`
	L2List []string `json:"L2LIST"`
	SubT   int      `json:"SUB_T"`
}

// DataSocket maintains the market data websocket. Transient failures
// reconnect with doubling backoff; an authentication failure stops Run with
// ErrForbidden so the process can exit 0 and restart on fresh credentials.
type DataSocket struct {
	cfg SocketConfig

	// OnTick receives every symbol frame, invoked serially from the read loop.
	OnTick func(TickMessage)
	// OnConnect fires after each successful (re)connect; subscribe here.
	OnConnect func()
	// OnReconnect fires before each reconnection attempt.
	OnReconnect func()

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewDataSocket creates a data socket client. URL and Token are required.
func NewDataSocket(cfg SocketConfig) (*DataSocket, error) {
	cfg.defaults()
	if cfg.URL == "" || cfg.Token == "" {
		return nil, errors.New("fyers: data socket needs URL and token")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("fyers: data socket URL: %w", err)
	}
	return &DataSocket{cfg: cfg}, nil
}

// Run connects and reads until ctx is cancelled or auth fails.
func (s *DataSocket) Run(ctx context.Context) error {
	delay := s.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := s.runOnce(ctx)
		switch {
		case err == nil:
			return nil // ctx cancelled cleanly
		case errors.Is(err, ErrForbidden):
			return err
		}

		log.Printf("[fyers-data] disconnected (%v), reconnecting in %s...", err, delay)
		if s.OnReconnect != nil {
			s.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.cfg.MaxReconnectDelay {
			delay = s.cfg.MaxReconnectDelay
		}
	}
}

func (s *DataSocket) runOnce(ctx context.Context) error {
	u := fmt.Sprintf("%s?access_token=%s&litemode=%v",
		s.cfg.URL, url.QueryEscape(s.cfg.Token), s.cfg.LiteMode)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusForbidden {
			return ErrForbidden
		}
		return err
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	log.Printf("[fyers-data] connected to %s", s.cfg.URL)
	if s.OnConnect != nil {
		s.OnConnect()
	}

	// Context watcher: closes the connection when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	// Keepalive pings; the server answers with "pong" text frames.
	go pingLoop(ctx, conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if isForbiddenErr(err) {
				return ErrForbidden
			}
			return err
		}
		s.handleMessage(raw)
	}
}

func (s *DataSocket) handleMessage(raw []byte) {
	if len(raw) == 0 || string(raw) == "pong" {
		return
	}
	var msg TickMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("[fyers-data] parse error: %v (raw: %s)", err, truncate(raw, 120))
		return
	}
	if msg.Symbol == "" {
		return // connection ack or heartbeat frame
	}
	if s.OnTick != nil {
		s.OnTick(msg)
	}
}

// Subscribe sends subscription frames for the symbols, chunked to batchSize
// with gap between frames to respect broker rate limits. Call it from
// OnConnect so reconnects resubscribe the full universe.
func (s *DataSocket) Subscribe(symbols []string, batchSize int, gap time.Duration) error {
	if batchSize <= 0 {
		batchSize = 50
	}
	for start := 0; start < len(symbols); start += batchSize {
		end := start + batchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		frame := subRequest{T: "SUB_L2", L2List: symbols[start:end], SubT: 1}
		if err := s.writeJSON(frame); err != nil {
			return fmt.Errorf("fyers: subscribe batch %d: %w", start/batchSize, err)
		}
		if end < len(symbols) && gap > 0 {
			time.Sleep(gap)
		}
	}
	log.Printf("[fyers-data] subscribed %d symbols in batches of %d", len(symbols), batchSize)
	return nil
}

func (s *DataSocket) writeJSON(v any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("fyers: socket not connected")
	}
	return conn.WriteJSON(v)
}

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

// isForbiddenErr matches auth-loss teardowns surfaced through the read loop:
// policy-violation closes and errors mentioning 403/Forbidden.
func isForbiddenErr(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "403") || strings.Contains(msg, "Forbidden")
}
