package events

import (
	"encoding/json"
	"fmt"
)

// Encode marshals the payload of e.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", e.Type(), err)
	}
	return data, nil
}

// Decode rebuilds the concrete event registered for eventType.
func Decode(eventType string, payload []byte) (Event, error) {
	constructor, ok := EventTypes[eventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	evt := constructor()
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", eventType, err)
	}
	return evt, nil
}
