package fyers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// order-feed subscription frame.
type orderSubRequest struct {
	T     string   `json:"T"`
	SList []string `json:"SLIST"`
	SubT  int      `json:"SUB_T"`
}

// OrderSocket maintains the order-update websocket. Unlike DataSocket it
// subscribes itself on connect (the order feed has a single topic).
type OrderSocket struct {
	cfg SocketConfig

	// OnUpdate receives every order event, invoked serially from the read loop.
	OnUpdate func(OrderEvent)
	// OnConnect fires after each successful (re)connect.
	OnConnect func()
	// OnReconnect fires before each reconnection attempt.
	OnReconnect func()
}

// NewOrderSocket creates an order socket client. URL and Token are required.
func NewOrderSocket(cfg SocketConfig) (*OrderSocket, error) {
	cfg.defaults()
	if cfg.URL == "" || cfg.Token == "" {
		return nil, errors.New("fyers: order socket needs URL and token")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("fyers: order socket URL: %w", err)
	}
	return &OrderSocket{cfg: cfg}, nil
}

// Run connects and reads until ctx is cancelled or auth fails. Transient
// failures reconnect with doubling backoff; ErrForbidden is returned so the
// supervised child can exit 0 and reload credentials.
func (s *OrderSocket) Run(ctx context.Context) error {
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
			return nil
		case errors.Is(err, ErrForbidden):
			return err
		}

		log.Printf("[fyers-order] disconnected (%v), reconnecting in %s...", err, delay)
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

func (s *OrderSocket) runOnce(ctx context.Context) error {
	u := fmt.Sprintf("%s?access_token=%s", s.cfg.URL, url.QueryEscape(s.cfg.Token))

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusForbidden {
			return ErrForbidden
		}
		return err
	}
	defer conn.Close()

	log.Printf("[fyers-order] connected to %s", s.cfg.URL)

	sub := orderSubRequest{T: "SUB_ORD", SList: []string{"orderUpdate"}, SubT: 1}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("fyers: order subscribe: %w", err)
	}

	if s.OnConnect != nil {
		s.OnConnect()
	}

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

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

func (s *OrderSocket) handleMessage(raw []byte) {
	if len(raw) == 0 || string(raw) == "pong" {
		return
	}
	var env OrderEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("[fyers-order] parse error: %v (raw: %s)", err, truncate(raw, 120))
		return
	}
	if env.Orders == nil || env.Orders.ID == "" {
		return // subscription ack or heartbeat
	}
	if s.OnUpdate != nil {
		s.OnUpdate(*env.Orders)
	}
}
