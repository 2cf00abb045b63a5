package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	notificationQueueSize      = 256
	notificationPublishTimeout = 10 * time.Second
)

var ErrNotificationDropped = errors.New("notification queue full")

type notification struct {
	eventType string
	payload   []byte
	key       string
}

// notifier hands notifications to the publisher from one background goroutine, so
// publishing never runs under a user's append lock. A full queue drops the notification.
type notifier struct {
	publisher Publisher
	queue     chan notification
	stop      chan struct{}
	stopOnce  sync.Once
	worker    sync.WaitGroup
	pending   sync.WaitGroup
	logger    *slog.Logger
}

func newNotifier(publisher Publisher, capacity int, logger *slog.Logger) *notifier {
	if capacity <= 0 {
		capacity = notificationQueueSize
	}
	n := &notifier{
		publisher: publisher,
		queue:     make(chan notification, capacity),
		stop:      make(chan struct{}),
		logger:    logger.With("component", "notifier"),
	}
	n.worker.Add(1)
	go n.run()
	return n
}

// Publish enqueues without blocking.
func (n *notifier) Publish(_ context.Context, eventType string, payload []byte, partitionKey string) error {
	select {
	case <-n.stop:
		return ErrNotificationDropped
	default:
	}

	n.pending.Add(1)
	select {
	case n.queue <- notification{eventType: eventType, payload: payload, key: partitionKey}:
		return nil
	default:
		n.pending.Done()
		return ErrNotificationDropped
	}
}

func (n *notifier) run() {
	defer n.worker.Done()
	for {
		select {
		case item := <-n.queue:
			n.deliver(item)
		case <-n.stop:
			for {
				select {
				case item := <-n.queue:
					n.deliver(item)
				default:
					return
				}
			}
		}
	}
}

func (n *notifier) deliver(item notification) {
	defer n.pending.Done()

	ctx, cancel := context.WithTimeout(context.Background(), notificationPublishTimeout)
	defer cancel()
	if err := n.publisher.Publish(ctx, item.eventType, item.payload, item.key); err != nil {
		n.logger.Warn("publish notification failed", "event_type", item.eventType, "user", item.key, "error", err)
	}
}

// flush waits until every accepted notification has been handed to the publisher.
func (n *notifier) flush() {
	n.pending.Wait()
}

// Close delivers what is queued and stops the worker.
func (n *notifier) Close() {
	n.stopOnce.Do(func() {
		close(n.stop)
		n.worker.Wait()
	})
}
