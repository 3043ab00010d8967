// Package notify publishes job lifecycle notifications for downstream
// consumers (dashboards, webhooks). Publishing is fire-and-forget; a failed
// notification never fails the pipeline that produced it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Message is one job lifecycle notification.
type Message struct {
	JobID     string    `json:"job_id"`
	OrgID     string    `json:"org_id"`
	ProjectID string    `json:"project_id"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Encode renders the message as its wire JSON.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return data, nil
}

// Publisher delivers notifications.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Noop discards all notifications.
type Noop struct{}

// Publish discards the message.
func (Noop) Publish(context.Context, Message) error { return nil }

// Close is a no-op.
func (Noop) Close() error { return nil }
