package event

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_publisher.go -package=mocks . Publisher

import (
	"context"
	"encoding/json"
	"strings"
)

// Headers carried with every envelope.
type Headers struct {
	RequestID string `json:"requestId"`
}

// Envelope is the broker message shape: the key selects the partition
// and must be a stable business identifier.
type Envelope struct {
	Key     string          `json:"key"`
	Headers Headers         `json:"headers"`
	Value   json.RawMessage `json:"value"`
}

// Publisher emits an envelope to a topic. Implementations must be safe
// for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
}

// Topic builds a public topic name: <domain>.<entity>.<event>.
func Topic(domain, entity, name string) string {
	return strings.Join([]string{domain, entity, name}, ".")
}

// HubTopic builds an internal sub-step topic: <domain>.<entity>.hub.<step>.
// Hub topics are never consumed by external services.
func HubTopic(domain, entity, step string) string {
	return strings.Join([]string{domain, entity, "hub", step}, ".")
}
