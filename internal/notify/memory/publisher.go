// Package memory collects notifications in process memory for tests.
package memory

import (
	"context"
	"sync"

	"github.com/skyhookqa/skyhook/internal/notify"
)

// Publisher records every published message.
type Publisher struct {
	mu       sync.Mutex
	messages []notify.Message
	closed   bool
}

// New returns an empty publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the message.
func (p *Publisher) Publish(_ context.Context, msg notify.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []notify.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notify.Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Close marks the publisher closed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
