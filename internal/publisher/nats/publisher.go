// Package nats publishes refresh events to NATS JetStream.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
)

// jetStreamPublisher is the subset of nats.JetStreamContext used here.
type jetStreamPublisher interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Config controls the NATS connection.
type Config struct {
	URL           string
	SubjectPrefix string
	Service       string
}

// Publisher sends JSON payloads to JetStream subjects.
type Publisher struct {
	nc      *nats.Conn
	js      jetStreamPublisher
	prefix  string
	service string
}

// New connects to NATS and opens a JetStream context.
func New(cfg Config) (*Publisher, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name(cfg.Service), nats.MaxReconnects(-1), nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open jetstream: %w", err)
	}
	return &Publisher{nc: nc, js: js, prefix: cfg.SubjectPrefix, service: cfg.Service}, nil
}

// Subject returns the full subject for topic.
func (p *Publisher) Subject(topic string) string {
	if p.prefix == "" {
		return topic
	}
	return p.prefix + "." + topic
}

// Publish marshals payload and publishes it with event headers. The returned
// id is the JetStream sequence number.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.js == nil {
		return "", fmt.Errorf("nats publisher is not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish canceled: %w", err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := nats.NewMsg(p.Subject(topic))
	msg.Data = data
	msg.Header.Set("event_type", topic)
	msg.Header.Set("content_type", "application/json")
	if p.service != "" {
		msg.Header.Set("source", p.service)
	}
	ack, err := p.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", msg.Subject, err)
	}
	return ack.Stream + "-" + strconv.FormatUint(ack.Sequence, 10), nil
}

// Close drains the connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
