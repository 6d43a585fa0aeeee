package eventbus

import (
	"context"
	"encoding/json"
	"time"
)

type Bus interface {
	Publish(topic string, msg any) error
	Subscribe(topic string, handler MessageReceiver)
}

type MessageReceiver interface {
	Receive(ctx context.Context, msg any)
}

// ReceiverFunc adapts a function to MessageReceiver
type ReceiverFunc func(ctx context.Context, msg any)

func (f ReceiverFunc) Receive(ctx context.Context, msg any) { f(ctx, msg) }

// Message is a payload that knows its wire form
type Message interface {
	Serialize() []byte
}

// Event kinds
const (
	KindDeleted  = "deleted"
	KindRestored = "restored"
)

// Event announces that a cascade changed the deletion state of records.
type Event struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Count      int       `json:"count"`
	DryRun     bool      `json:"dry_run,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e Event) Serialize() []byte {
	data, _ := json.Marshal(e)
	return data
}

// Topic returns the subject an event of kind is published on
func Topic(prefix, kind string) string {
	if prefix == "" {
		return kind
	}
	return prefix + "." + kind
}
