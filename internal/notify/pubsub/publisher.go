// Package pubsub publishes notifications to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/skyhookqa/skyhook/internal/notify"
)

// Publisher sends notifications to one Pub/Sub topic. It authenticates with
// Application Default Credentials.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// New connects a client and verifies the topic exists.
func New(ctx context.Context, projectID, topicID string) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// Publish sends the message asynchronously. The client batches and retries
// in the background; Publish does not wait for the server ack.
func (p *Publisher) Publish(ctx context.Context, msg notify.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"org_id": msg.OrgID,
			"status": msg.Status,
		},
	})
	return nil
}

// Close flushes pending messages and releases the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
