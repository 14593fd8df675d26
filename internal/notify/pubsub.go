package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubNotifier publishes run notifications to a Google Pub/Sub topic.
type PubSubNotifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSub connects to the project and binds the topic.
func NewPubSub(ctx context.Context, projectID, topicName string) (*PubSubNotifier, error) {
	if projectID == "" || topicName == "" {
		return nil, fmt.Errorf("project id and topic name are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSubNotifier{
		client: client,
		topic:  client.Topic(topicName),
	}, nil
}

// Publish marshals the payload to JSON and publishes it to the topic,
// blocking until the server acknowledges.
func (n *PubSubNotifier) Publish(ctx context.Context, evt RunCompleted) (string, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("marshal notification: %w", err)
	}
	result := n.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id": evt.RunID,
			"status": evt.Status,
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish notification: %w", err)
	}
	return id, nil
}

// Close stops the topic publisher and releases the client.
func (n *PubSubNotifier) Close() error {
	n.topic.Stop()
	if err := n.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
