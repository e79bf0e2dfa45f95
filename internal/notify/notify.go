// Package notify announces newly detected flags to the terminal and webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"flag-scanner/internal/analysis/flags"
	"flag-scanner/internal/config"
	"flag-scanner/internal/models"
	"flag-scanner/internal/resilience"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendFlag(ctx context.Context, f Flag) error
	SendError(ctx context.Context, err error, context string) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationFlag     NotificationType = "flag"
	NotificationBreakout NotificationType = "breakout"
	NotificationError    NotificationType = "error"
	NotificationSummary  NotificationType = "summary"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll           NotificationLevel = "all"
	LevelBreakoutsOnly NotificationLevel = "breakouts_only"
	LevelErrorsOnly    NotificationLevel = "errors_only"
)

// Flag is a detected match together with where it was found.
type Flag struct {
	ID        string
	Symbol    string
	Timeframe string
	Match     flags.PatternMatch
}

// MultiNotifier sends notifications to multiple channels.
type MultiNotifier struct {
	channels []NotificationChannel
	level    NotificationLevel
	mu       sync.RWMutex
}

// New creates a MultiNotifier from configuration. When out is non-nil a
// terminal channel writing to it is added.
func New(cfg config.NotificationConfig, out io.Writer) *MultiNotifier {
	mn := &MultiNotifier{
		channels: make([]NotificationChannel, 0, 2),
		level:    NotificationLevel(cfg.Level),
	}
	if mn.level == "" {
		mn.level = LevelAll
	}
	if !cfg.Enabled {
		return mn
	}

	if out != nil {
		tn := NewTerminalNotifier(out)
		tn.SetBellEnabled(cfg.Bell)
		mn.AddChannel(tn)
	}
	if cfg.Webhook.Enabled {
		mn.AddChannel(NewWebhookNotifier(cfg.Webhook))
	}
	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// SetColorEnabled turns color on or off for terminal channels.
func (mn *MultiNotifier) SetColorEnabled(enabled bool) {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	for _, ch := range mn.channels {
		if tn, ok := ch.(*TerminalNotifier); ok {
			tn.SetColorEnabled(enabled)
		}
	}
}

// Channels returns the names of the configured channels.
func (mn *MultiNotifier) Channels() []string {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	names := make([]string, 0, len(mn.channels))
	for _, ch := range mn.channels {
		names = append(names, ch.Name())
	}
	return names
}

func (mn *MultiNotifier) shouldSend(notifType NotificationType) bool {
	switch mn.level {
	case LevelBreakoutsOnly:
		return notifType == NotificationBreakout
	case LevelErrorsOnly:
		return notifType == NotificationError
	default:
		return true
	}
}

// Send sends a notification to all enabled channels. A failing channel does
// not stop the others; their errors are reported together.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.shouldSend(n.Type) {
		return nil
	}

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var errs []string
	for _, ch := range channels {
		if ch.IsEnabled() {
			if err := ch.Send(ctx, n); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SendFlag announces a detected flag. Flags with a confirmed breakout are
// sent as breakout notifications.
func (mn *MultiNotifier) SendFlag(ctx context.Context, f Flag) error {
	return mn.Send(ctx, FlagNotification(f))
}

// FlagNotification builds the notification for a detected flag.
func FlagNotification(f Flag) Notification {
	m := f.Match
	kind := NotificationFlag
	title := fmt.Sprintf("%s %s flag on %s", directionArrow(m.Orientation), strings.ToLower(string(m.Orientation)), f.Symbol)
	if m.BreakoutConfirmed {
		kind = NotificationBreakout
		title = fmt.Sprintf("%s %s breakout on %s", directionArrow(m.Orientation), strings.ToLower(string(m.Orientation)), f.Symbol)
	}

	start, end := m.Start(), m.End()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Timeframe: %s\n", f.Timeframe)
	fmt.Fprintf(&sb, "Pole: %.2f -> %.2f (height %.2f)\n", start.Price, m.Skeleton[flags.T1].Price, m.PoleHeight)
	fmt.Fprintf(&sb, "T4: %.2f at %s\n", end.Price, end.Time.Format("02-Jan-2006 15:04"))
	if m.BreakoutConfirmed {
		fmt.Fprintf(&sb, "Breakout: %.2f (%+.2f%%)\n", m.BreakoutPrice, m.BreakoutStrength)
	}
	fmt.Fprintf(&sb, "Quality: %.2f", m.QualityScore)

	data := map[string]interface{}{
		"symbol":             f.Symbol,
		"timeframe":          f.Timeframe,
		"orientation":        m.Orientation,
		"t0_time":            start.Time,
		"t4_time":            end.Time,
		"quality_score":      m.QualityScore,
		"breakout_confirmed": m.BreakoutConfirmed,
	}
	if f.ID != "" {
		data["id"] = f.ID
	}
	if m.BreakoutConfirmed {
		data["breakout_index"] = m.BreakoutIndex
		data["breakout_price"] = m.BreakoutPrice
		data["breakout_strength_pct"] = m.BreakoutStrength
	}

	return Notification{
		Type:    kind,
		Title:   title,
		Message: sb.String(),
		Data:    data,
	}
}

// SendError sends an error notification.
func (mn *MultiNotifier) SendError(ctx context.Context, err error, errContext string) error {
	return mn.Send(ctx, Notification{
		Type:    NotificationError,
		Title:   "Scan failed",
		Message: fmt.Sprintf("Context: %s\nError: %v", errContext, err),
		Data: map[string]interface{}{
			"context": errContext,
			"error":   err.Error(),
		},
	})
}

func directionArrow(o models.Orientation) string {
	if o == models.Bearish {
		return "▼"
	}
	return "▲"
}

// WebhookNotifier sends notifications via HTTP webhook. Failed posts are
// retried with backoff; after repeated failures the webhook is skipped until
// its circuit breaker cools down.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
	backoff resilience.Backoff
	breaker *resilience.CircuitBreaker
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	backoff := resilience.DefaultBackoff()
	if cfg.MaxAttempts > 0 {
		backoff.MaxAttempts = cfg.MaxAttempts
	}
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		backoff: backoff,
		breaker: resilience.NewCircuitBreaker("webhook", resilience.DefaultCircuitBreakerConfig()),
	}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled returns whether the notifier is enabled.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send posts the notification as JSON.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	return w.backoff.ExecuteWithCircuitBreaker(ctx, w.breaker, func(ctx context.Context) error {
		return w.post(ctx, body)
	})
}

func (w *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return resilience.Permanent(fmt.Errorf("creating webhook request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "flagscan/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("webhook returned status %d", resp.StatusCode)
		// Client errors will not fix themselves; rate limits might.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resilience.Permanent(err)
		}
		return err
	}

	return nil
}
