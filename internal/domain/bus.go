package domain

import (
	"context"
)

// EventBus defines the interface for workspace event fan-out.
// Supports Go channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `env:"KESTREL_BUS_TYPE"`

	// Channel settings (Community tier)
	ChannelBufferSize int `env:"KESTREL_BUS_BUFFER"`

	// NATS settings (Pro tier)
	NATSUrl           string `env:"KESTREL_NATS_URL"`
	NATSToken         string `env:"KESTREL_NATS_TOKEN"`
	NATSMaxReconnects int    `env:"KESTREL_NATS_MAX_RECONNECTS"`
	NATSReconnectWait int    `env:"KESTREL_NATS_RECONNECT_WAIT"` // seconds
}

// Workspace event topics.
const (
	TopicAnalysisLoaded      = "kestrel.analysis.loaded"
	TopicSimulationCompleted = "kestrel.simulation.completed"
	TopicSimulationCleared   = "kestrel.simulation.cleared"
	TopicWorkspaceReset      = "kestrel.workspace.reset"
)
