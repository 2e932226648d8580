package eventbus

import (
	"fmt"
	"strings"

	"github.com/amirasaad/autotransfer/pkg/domain/events"
)

const defaultPrefix = "autotransfer"

func streamNameFor(prefix string, eventType events.EventType) string {
	return nameFor(prefix, "events", eventType)
}

// dlqStreamName returns the DLQ stream name for the given event type.
func dlqStreamName(prefix string, eventType events.EventType) string {
	return nameFor(prefix, "dlq", eventType)
}

// groupNameFor returns the Redis consumer group name for the event type.
func groupNameFor(prefix string, eventType events.EventType) string {
	return nameFor(prefix, "group", eventType)
}

// nameFor builds "<prefix>:<kind>:<aggregate>:<action>" from "Aggregate.Action".
func nameFor(prefix, kind string, eventType events.EventType) string {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultPrefix
	}
	parts := strings.Split(eventType.String(), ".")
	if len(parts) == 2 {
		return fmt.Sprintf(
			"%s:%s:%s:%s",
			prefix,
			kind,
			strings.ToLower(parts[0]),
			strings.ToLower(parts[1]))
	}
	return fmt.Sprintf("%s:%s:%s", prefix, kind, strings.ToLower(eventType.String()))
}

func topicNameFor(prefix string, eventType events.EventType) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return fmt.Sprintf("%s.%s", prefix, strings.ToLower(eventType.String()))
}

func dlqTopicNameFor(prefix string, eventType events.EventType) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return fmt.Sprintf("%s.dlq.%s", prefix, strings.ToLower(eventType.String()))
}

func parseBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
