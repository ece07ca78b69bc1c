package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/basilakis/kai-delivery/internal/domain"
)

// Publisher publishes delivery messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DeliveryMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg DeliveryMessage) error

// Consumer consumes delivery messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var supportedChannels = []domain.Channel{
	domain.ChannelWebhook,
	domain.ChannelEmail,
	domain.ChannelSMS,
}

// QueueName returns the channel work queue name, e.g. webhook.
func QueueName(channel domain.Channel) string {
	return strings.ToLower(channel.String())
}

// DLQName returns the dead-letter queue name for a channel, e.g. dlq.webhook.
func DLQName(channel domain.Channel) string {
	return fmt.Sprintf("dlq.%s", QueueName(channel))
}

// WorkQueueNames returns all channel work queues (3 total).
func WorkQueueNames() []string {
	queues := make([]string, 0, len(supportedChannels))
	for _, channel := range supportedChannels {
		queues = append(queues, QueueName(channel))
	}
	return queues
}

// DLQNames returns all dead-letter queues (3 total).
func DLQNames() []string {
	queues := make([]string, 0, len(supportedChannels))
	for _, channel := range supportedChannels {
		queues = append(queues, DLQName(channel))
	}
	return queues
}
