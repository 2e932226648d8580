package events

// EventType represents the type of an event in the system.
type EventType string

const (
	// EventTypeTransactionCompleted is published whenever a ledger entry reaches completed.
	EventTypeTransactionCompleted EventType = "Transaction.Completed"
	// EventTypeScheduleTick is a synthetic trigger for one due period of a scheduled rule.
	EventTypeScheduleTick EventType = "Schedule.Tick"
)

// String returns the string representation of the event type.
func (et EventType) String() string {
	return string(et)
}

// Event is anything the bus can carry.
type Event interface {
	Type() string
}

// EventTypes maps a wire type name to a constructor, used by transports to
// decode envelopes.
var EventTypes = map[string]func() Event{
	EventTypeTransactionCompleted.String(): func() Event { return &TransactionCompleted{} },
	EventTypeScheduleTick.String():         func() Event { return &ScheduleTick{} },
}
