// Package notification pushes learning loop alerts (new filters, cleared
// filters, ledger resets) to chat channels so operators see the bot change
// its own behavior.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"dex-perp-bot/internal/events"
	"dex-perp-bot/internal/logging"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifyFiltersApplied NotificationType = "filters_applied"
	NotifyFiltersCleared NotificationType = "filters_cleared"
	NotifyReview         NotificationType = "review"
	NotifyError          NotificationType = "error"
)

// Notification represents a notification message
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Timestamp time.Time
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager manages multiple notification providers
type Manager struct {
	notifiers []Notifier
	logger    zerolog.Logger
	now       func() time.Time
}

// NewManager creates a new notification manager
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		logger: logging.WithComponent(logger, "Notifications"),
		now:    time.Now,
	}
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Enabled reports whether any provider will deliver
func (m *Manager) Enabled() bool {
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			return true
		}
	}
	return false
}

// Send sends a notification to all enabled providers
func (m *Manager) Send(notification *Notification) error {
	var lastErr error
	for _, n := range m.notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(notification); err != nil {
			m.logger.Warn().Err(err).Str("provider", n.Name()).Msg("Notification delivery failed")
			lastErr = err
		}
	}
	return lastErr
}

// Subscribe forwards the learning events worth a human's attention.
// Routine events (trade opened/closed, skipped reviews) are not forwarded.
func (m *Manager) Subscribe(bus *events.EventBus) {
	for _, t := range []events.EventType{
		events.EventReviewCompleted,
		events.EventFiltersCleared,
		events.EventLedgerReset,
	} {
		bus.Subscribe(t, func(e events.Event) {
			if n := m.FromEvent(e); n != nil {
				m.Send(n)
			}
		})
	}
}

// FromEvent converts a bus event into a notification, or nil when the event
// is not worth sending
func (m *Manager) FromEvent(e events.Event) *Notification {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = m.now()
	}

	switch e.Type {
	case events.EventReviewCompleted:
		applied, _ := e.Data["filters_applied"].(int)
		if applied == 0 {
			return nil
		}
		summary, _ := e.Data["summary"].(string)
		return &Notification{
			Type:      NotifyFiltersApplied,
			Title:     fmt.Sprintf("Learned %d new trading restriction(s)", applied),
			Message:   summary,
			Timestamp: ts,
		}

	case events.EventFiltersCleared:
		count, _ := e.Data["count"].(int)
		return &Notification{
			Type:      NotifyFiltersCleared,
			Title:     "Learned filters cleared",
			Message:   fmt.Sprintf("%d active filter(s) were deactivated by an operator", count),
			Timestamp: ts,
		}

	case events.EventLedgerReset:
		ledger, _ := e.Data["ledger"].(string)
		quarantine, _ := e.Data["quarantine_path"].(string)
		cause, _ := e.Data["error"].(string)
		return &Notification{
			Type:      NotifyError,
			Title:     fmt.Sprintf("%s ledger reset", ledger),
			Message:   fmt.Sprintf("The ledger was unreadable and started empty.\nCause: %s\nCorrupt copy: %s", cause, quarantine),
			Timestamp: ts,
		}
	}
	return nil
}

// =============================================================================
// TELEGRAM NOTIFIER
// =============================================================================

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier sends notifications via Telegram
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	enabled  bool
	client   *http.Client
}

// TelegramConfig holds Telegram configuration
type TelegramConfig struct {
	BotToken string
	ChatID   string
	Enabled  bool
	// APIBase overrides the Telegram endpoint (tests, proxies)
	APIBase string
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	base := config.APIBase
	if base == "" {
		base = telegramAPIBase
	}
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		apiBase:  base,
		enabled:  config.Enabled && config.BotToken != "" && config.ChatID != "",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

func (t *TelegramNotifier) Send(notification *Notification) error {
	if !t.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n\n%s", notification.Title, notification.Message),
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// =============================================================================
// DISCORD NOTIFIER
// =============================================================================

// DiscordNotifier sends notifications via Discord webhook
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordConfig holds Discord configuration
type DiscordConfig struct {
	WebhookURL string
	Enabled    bool
}

// NewDiscordNotifier creates a new Discord notifier
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: config.WebhookURL,
		enabled:    config.Enabled && config.WebhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.enabled
}

func (d *DiscordNotifier) Send(notification *Notification) error {
	if !d.enabled {
		return nil
	}

	color := 0x3498DB // blue
	switch notification.Type {
	case NotifyError:
		color = 0xFF0000
	case NotifyFiltersApplied:
		color = 0xFFA500
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{{
			"title":       notification.Title,
			"description": notification.Message,
			"color":       color,
			"timestamp":   notification.Timestamp.Format(time.RFC3339),
		}},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}
	return nil
}
