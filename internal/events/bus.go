// Package events carries risk alert events from the analytics components
// to subscribers such as the websocket stream.
package events

import (
	"sync"
	"time"

	"github.com/aristath/vigil/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType represents different alert event types
type EventType string

const (
	LimitBreach      EventType = "LIMIT_BREACH"
	RiskLevelChanged EventType = "RISK_LEVEL_CHANGED"
	BacktestFailed   EventType = "BACKTEST_FAILED"
	ErrorOccurred    EventType = "ERROR_OCCURRED"
)

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// LimitBreachData contains data for LimitBreach events
type LimitBreachData struct {
	PortfolioID string               `json:"portfolio_id"`
	Breaches    []domain.LimitBreach `json:"breaches"`
}

// EventType returns the event type for LimitBreachData
func (d *LimitBreachData) EventType() EventType {
	return LimitBreach
}

// RiskLevelChangedData contains data for RiskLevelChanged events
type RiskLevelChangedData struct {
	PortfolioID string           `json:"portfolio_id"`
	From        domain.RiskLevel `json:"from"`
	To          domain.RiskLevel `json:"to"`
}

// EventType returns the event type for RiskLevelChangedData
func (d *RiskLevelChangedData) EventType() EventType {
	return RiskLevelChanged
}

// BacktestFailedData contains data for BacktestFailed events
type BacktestFailedData struct {
	PortfolioID  string  `json:"portfolio_id"`
	Violations   int     `json:"violations"`
	Observations int     `json:"observations"`
	PValue       float64 `json:"p_value"`
}

// EventType returns the event type for BacktestFailedData
func (d *BacktestFailedData) EventType() EventType {
	return BacktestFailed
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// Event represents one emitted alert
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// Bus fans events out to subscribers. Slow subscribers drop events rather
// than block publishers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	log    zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
		log:  log.With().Str("service", "events").Logger(),
	}
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called to release the subscription.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish emits an event to all subscribers.
func (b *Bus) Publish(module string, data EventData) Event {
	event := Event{
		ID:        uuid.New().String(),
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.log.Warn().Str("event_type", string(event.Type)).
				Msg("Dropping event for slow subscriber")
		}
	}

	b.log.Info().
		Str("event_type", string(event.Type)).
		Str("module", module).
		Msg("Event emitted")
	return event
}

// PublishError emits an ErrorOccurred event.
func (b *Bus) PublishError(module string, err error, context map[string]interface{}) Event {
	return b.Publish(module, &ErrorEventData{Error: err.Error(), Context: context})
}
