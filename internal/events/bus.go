package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the learning loop's event kinds
type EventType string

const (
	EventTradeOpened       EventType = "TRADE_OPENED"
	EventTradeClosed       EventType = "TRADE_CLOSED"
	EventExitRejected      EventType = "EXIT_REJECTED"
	EventReviewCompleted   EventType = "REVIEW_COMPLETED"
	EventReviewSkipped     EventType = "REVIEW_SKIPPED"
	EventFiltersApplied    EventType = "FILTERS_APPLIED"
	EventFiltersCleared    EventType = "FILTERS_CLEARED"
	EventFilterDeactivated EventType = "FILTER_DEACTIVATED"
	EventDecisionRejected  EventType = "DECISION_REJECTED"
	EventLedgerReset       EventType = "LEDGER_RESET"
)

// Event represents a learning loop event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Each subscriber runs in its own
// goroutine so a slow consumer never blocks the decision loop.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened publishes a trade opened event
func (eb *EventBus) PublishTradeOpened(tradeID int64, symbol, direction string, confidence, entryPrice float64) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"trade_id":    tradeID,
			"symbol":      symbol,
			"direction":   direction,
			"confidence":  confidence,
			"entry_price": entryPrice,
		},
	})
}

// PublishTradeClosed publishes a trade closed event. pnlUSD may be nil.
func (eb *EventBus) PublishTradeClosed(tradeID int64, symbol, direction string, exitPrice, pnlPercent float64, pnlUSD *float64, isWin bool) {
	data := map[string]interface{}{
		"trade_id":    tradeID,
		"symbol":      symbol,
		"direction":   direction,
		"exit_price":  exitPrice,
		"pnl_percent": pnlPercent,
		"is_win":      isWin,
	}
	if pnlUSD != nil {
		data["pnl_usd"] = *pnlUSD
	}
	eb.Publish(Event{Type: EventTradeClosed, Data: data})
}

// PublishExitRejected publishes an exit for an unknown or closed trade
func (eb *EventBus) PublishExitRejected(tradeID int64, exitPrice float64) {
	eb.Publish(Event{
		Type: EventExitRejected,
		Data: map[string]interface{}{
			"trade_id":   tradeID,
			"exit_price": exitPrice,
		},
	})
}

// PublishReviewCompleted publishes the outcome of a review cycle
func (eb *EventBus) PublishReviewCompleted(closedTrades, issues, applied int, summary string) {
	eb.Publish(Event{
		Type: EventReviewCompleted,
		Data: map[string]interface{}{
			"closed_trades":   closedTrades,
			"issues":          issues,
			"filters_applied": applied,
			"summary":         summary,
		},
	})
}

// PublishReviewSkipped publishes a review that did not run
func (eb *EventBus) PublishReviewSkipped(closedTrades int, reason string) {
	eb.Publish(Event{
		Type: EventReviewSkipped,
		Data: map[string]interface{}{
			"closed_trades": closedTrades,
			"reason":        reason,
		},
	})
}

// PublishFiltersApplied publishes newly created or upgraded filters
func (eb *EventBus) PublishFiltersApplied(count, active int) {
	eb.Publish(Event{
		Type: EventFiltersApplied,
		Data: map[string]interface{}{
			"applied": count,
			"active":  active,
		},
	})
}

// PublishFiltersCleared publishes an administrative clear
func (eb *EventBus) PublishFiltersCleared(count int) {
	eb.Publish(Event{
		Type: EventFiltersCleared,
		Data: map[string]interface{}{
			"count": count,
		},
	})
}

// PublishFilterDeactivated publishes a manual deactivation
func (eb *EventBus) PublishFilterDeactivated(filterID string) {
	eb.Publish(Event{
		Type: EventFilterDeactivated,
		Data: map[string]interface{}{
			"filter_id": filterID,
		},
	})
}

// PublishDecisionRejected publishes a decision stopped by a learned filter
func (eb *EventBus) PublishDecisionRejected(symbol, action string, confidence float64, reason string) {
	eb.Publish(Event{
		Type: EventDecisionRejected,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"action":     action,
			"confidence": confidence,
			"reason":     reason,
		},
	})
}

// PublishLedgerReset publishes that a corrupt ledger was replaced by an empty one
func (eb *EventBus) PublishLedgerReset(ledger, path, quarantinePath string, cause error) {
	data := map[string]interface{}{
		"ledger":          ledger,
		"path":            path,
		"quarantine_path": quarantinePath,
	}
	if cause != nil {
		data["error"] = cause.Error()
	}
	eb.Publish(Event{Type: EventLedgerReset, Data: data})
}
