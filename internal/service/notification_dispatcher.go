package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/skillswap-api/internal/models"
	"github.com/noah-isme/skillswap-api/pkg/jobs"
)

const notificationJobType = "notification.direct"

type directMessenger interface {
	SendDirect(ctx context.Context, senderID, recipientID, content string) (*models.Message, error)
}

// NotificationDispatcher delivers counterparty notifications off the request path. Callers
// notify after their transaction commits, so a failed delivery never rolls back state.
type NotificationDispatcher struct {
	queue     *jobs.Queue
	messenger directMessenger
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewNotificationDispatcher builds a dispatcher backed by an in-process job queue.
func NewNotificationDispatcher(messenger directMessenger, cfg jobs.QueueConfig, metrics *MetricsService, logger *zap.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Logger = logger
	d := &NotificationDispatcher{messenger: messenger, metrics: metrics, logger: logger}
	d.queue = jobs.NewQueue("notifications", d.deliver, cfg)
	return d
}

// Start launches the delivery workers.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop flushes queued notifications and stops the workers.
func (d *NotificationDispatcher) Stop() {
	d.queue.Stop()
}

// Notify queues a notification. Failures are logged, never returned.
func (d *NotificationDispatcher) Notify(_ context.Context, n models.Notification) {
	if d == nil {
		return
	}
	if err := d.queue.Enqueue(jobs.Job{Type: notificationJobType, Payload: n}); err != nil {
		d.metrics.Notification("dropped")
		d.logger.Warn("notification dropped",
			zap.String("kind", n.Kind),
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err))
	}
}

func (d *NotificationDispatcher) deliver(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		d.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	if _, err := d.messenger.SendDirect(ctx, n.SenderID, n.RecipientID, n.Content); err != nil {
		d.metrics.Notification("failed")
		return fmt.Errorf("deliver %s notification: %w", n.Kind, err)
	}
	d.metrics.Notification("delivered")
	return nil
}
