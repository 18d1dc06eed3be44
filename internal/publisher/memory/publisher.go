// Package memory keeps refresh events in process, encoded the same way the
// broker-backed publishers send them.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/refresh"
)

// Message is one published event as it would appear on the wire.
type Message struct {
	ID         string
	Topic      string
	Data       []byte
	Attributes map[string]string
}

// Publisher records published events for inspection.
type Publisher struct {
	source string

	mu       sync.RWMutex
	messages []Message
}

// New returns a Publisher that stamps source on every message.
func New(source string) *Publisher {
	return &Publisher{source: source}
}

// Publish JSON-encodes payload and records it under topic.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish canceled: %w", err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	attrs := map[string]string{"event_type": topic}
	if p.source != "" {
		attrs["source"] = p.source
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Data: data, Attributes: attrs})
	return id, nil
}

// Messages returns a copy of the recorded messages.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Events decodes the refresh events published to topic, oldest first.
func (p *Publisher) Events(topic string) ([]refresh.Event, error) {
	var events []refresh.Event
	for _, msg := range p.Messages() {
		if msg.Topic != topic {
			continue
		}
		var ev refresh.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.ID, err)
		}
		events = append(events, ev)
	}
	return events, nil
}
