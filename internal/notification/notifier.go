// Package notification delivers trade-lifecycle alerts to external channels
// (Telegram, generic webhooks). Delivery is best effort: a failed send is
// logged and never fails the trading path that raised the alert.
package notification

import (
	"context"
	"log"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// Multi fans one alert out to every backend. A failing backend is logged and
// skipped so the others still deliver; the first error is returned.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var first error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			log.Printf("[notify] %T: %v", n, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// FromConfig assembles the configured backends: Telegram when both the bot
// token and chat id are set, a webhook when its URL is set. Returns nil when
// nothing is configured; callers treat a nil Notifier as disabled.
func FromConfig(botToken, chatID, webhookURL string) Notifier {
	var m Multi
	if botToken != "" && chatID != "" {
		m = append(m, NewTelegramNotifier(botToken, chatID))
	}
	if webhookURL != "" {
		m = append(m, NewWebhookNotifier(webhookURL))
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// LogNotifier logs alerts instead of delivering them (development use).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}
