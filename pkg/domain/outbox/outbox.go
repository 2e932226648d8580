// Package outbox holds events written in the same unit of work as the state
// change they announce. A message stays pending until the bus accepted it.
package outbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/google/uuid"
)

// ErrInvalidMessage marks a stored message whose payload cannot be decoded.
var ErrInvalidMessage = errors.New("invalid outbox message")

// Status is the delivery state of a message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	// StatusInvalid is terminal: the payload no longer decodes.
	StatusInvalid Status = "invalid"
)

// Message is one staged event.
type Message struct {
	ID          uuid.UUID
	EventType   string
	AggregateID uuid.UUID
	Payload     []byte
	Status      Status
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PublishedAt *time.Time
}

// New encodes evt as a pending message.
func New(evt events.Event, at time.Time) (*Message, error) {
	payload, err := events.Encode(evt)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:          uuid.New(),
		EventType:   evt.Type(),
		AggregateID: aggregateOf(evt),
		Payload:     payload,
		Status:      StatusPending,
		CreatedAt:   at,
		UpdatedAt:   at,
	}, nil
}

// Event decodes the payload back into its concrete event.
func (m *Message) Event() (events.Event, error) {
	evt, err := events.Decode(m.EventType, m.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return evt, nil
}

// aggregateOf is the entity the event is about: the account for ledger
// entries, the rule for ticks.
func aggregateOf(evt events.Event) uuid.UUID {
	switch e := evt.(type) {
	case *events.TransactionCompleted:
		return e.AccountID
	case *events.ScheduleTick:
		return e.RuleID
	}
	return uuid.Nil
}
