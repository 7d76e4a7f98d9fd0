// Package pubsub forwards broadcast events to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// Forwarder is a notify.Subscriber that republishes every event to a topic.
type Forwarder struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *zap.Logger
	owned  bool
}

// New connects to Pub/Sub and verifies that the topic exists. It
// authenticates using Google Cloud's Application Default Credentials.
func New(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*Forwarder, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	f, err := NewWithClient(ctx, client, topicID, logger)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil && logger != nil {
			logger.Warn("failed to close pubsub client after topic lookup failure", zap.Error(closeErr))
		}
		return nil, err
	}
	f.owned = true
	return f, nil
}

// NewWithClient builds a Forwarder on an existing client. The caller keeps
// ownership of the client.
func NewWithClient(ctx context.Context, client *pubsub.Client, topicID string, logger *zap.Logger) (*Forwarder, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %q does not exist", topicID)
	}
	return &Forwarder{
		client: client,
		topic:  topic,
		logger: logger.Named("pubsub"),
	}, nil
}

// Send publishes text and waits for the server acknowledgement. Publish
// failures are logged and swallowed so a transient outage does not remove
// the forwarder from the hub.
func (f *Forwarder) Send(ctx context.Context, text string) error {
	result := f.topic.Publish(ctx, &pubsub.Message{
		Data:       []byte(text),
		Attributes: map[string]string{"content_type": "application/json"},
	})
	id, err := result.Get(ctx)
	if err != nil {
		f.logger.Warn("failed to forward event", zap.Error(err))
		return nil
	}
	f.logger.Debug("forwarded event", zap.String("message_id", id))
	return nil
}

// Close flushes pending publishes and closes the client if the forwarder
// created it.
func (f *Forwarder) Close() error {
	f.topic.Stop()
	if !f.owned {
		return nil
	}
	if err := f.client.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}
