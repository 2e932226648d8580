package eventbus

import (
	"encoding/json"
	"fmt"

	"github.com/amirasaad/autotransfer/pkg/domain/events"
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// encodeEnvelope wraps event in a typed envelope for durable transports.
func encodeEnvelope(event events.Event) ([]byte, error) {
	data, err := events.Encode(event)
	if err != nil {
		return nil, err
	}
	envBytes, err := json.Marshal(envelope{Type: event.Type(), Payload: data})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope %s: %w", event.Type(), err)
	}
	return envBytes, nil
}

// decodeEnvelope rebuilds the concrete event using the events.EventTypes registry.
func decodeEnvelope(raw []byte) (events.Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("envelope without event type")
	}
	return events.Decode(env.Type, env.Payload)
}
