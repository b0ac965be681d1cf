package service

import (
	"context"
	"errors"

	"fetchflow/internal/model"
	"fetchflow/internal/webhook"
)

// Enqueuer is the queue-side dependency of task creation and dispatch.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskID int64, payload []byte) error
}

// QueuePublisher delivers queue-outbox records to the task queue.
// Enqueue deduplicates by task id, so redelivering an already queued
// record is harmless.
type QueuePublisher struct {
	queue Enqueuer
}

func NewQueuePublisher(queue Enqueuer) *QueuePublisher {
	return &QueuePublisher{queue: queue}
}

func (p *QueuePublisher) Publish(ctx context.Context, rec model.OutboxRecord) error {
	return p.queue.Enqueue(ctx, rec.TaskID, []byte(rec.Payload))
}

// WebhookPublisher delivers webhook-outbox records to the tenant
// callback URL stored on the record.
type WebhookPublisher struct {
	sender webhook.Sender
}

func NewWebhookPublisher(sender webhook.Sender) *WebhookPublisher {
	return &WebhookPublisher{sender: sender}
}

func (p *WebhookPublisher) Publish(ctx context.Context, rec model.OutboxRecord) error {
	if rec.Target == "" {
		return errors.New("webhook record has no callback url")
	}
	return p.sender.Post(ctx, rec.Target, []byte(rec.Payload))
}
