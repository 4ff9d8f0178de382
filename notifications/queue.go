package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/enriquebris/goconcurrentqueue"
	"go.vocdoni.io/dvote/log"
)

const (
	// DefaultQueueThrottle is the pause between two delivery attempts of the
	// same notification.
	DefaultQueueThrottle = time.Second
	// DefaultQueueMaxRetries is how many times a notification is retried when
	// the upstream sink returns an error.
	DefaultQueueMaxRetries = 5
	// DefaultQueueTTL bounds how long a notification may wait for delivery.
	DefaultQueueTTL = 5 * time.Minute
)

type queuedNotification struct {
	notification *Notification
	createdAt    time.Time
	retries      int
	// pending are the services that have not accepted the notification yet.
	pending []NotificationService
}

// Queue is a FIFO delivery queue in front of a NotificationService. Callers
// enqueue and return immediately; a single worker delivers in order and
// retries the head of the queue before moving on, so a payment notice is
// never overtaken by the notice that follows it. When the service is a
// Fanout, each wrapped service is retried on its own and a service that
// accepted the notification does not receive it again.
type Queue struct {
	ctx        context.Context
	items      *goconcurrentqueue.FIFO
	services   []NotificationService
	throttle   time.Duration
	maxRetries int
	ttl        time.Duration
	done       chan struct{}
}

// NewQueue creates a queue that delivers to service. Zero values select the
// defaults. The queue stops when ctx is canceled.
func NewQueue(ctx context.Context, service NotificationService, throttle time.Duration, maxRetries int) *Queue {
	if throttle == 0 {
		throttle = DefaultQueueThrottle
	}
	if maxRetries == 0 {
		maxRetries = DefaultQueueMaxRetries
	}
	services := []NotificationService{service}
	if fanout, ok := service.(Fanout); ok {
		services = fanout
	}
	return &Queue{
		ctx:        ctx,
		items:      goconcurrentqueue.NewFIFO(),
		services:   services,
		throttle:   throttle,
		maxRetries: maxRetries,
		ttl:        DefaultQueueTTL,
		done:       make(chan struct{}),
	}
}

// SendNotification enqueues the notification. It only fails when the queue
// refuses the element.
func (q *Queue) SendNotification(_ context.Context, n *Notification) error {
	if n == nil {
		return fmt.Errorf("nil notification")
	}
	queued := &queuedNotification{
		notification: n,
		createdAt:    time.Now(),
		pending:      append([]NotificationService(nil), q.services...),
	}
	if err := q.items.Enqueue(queued); err != nil {
		return fmt.Errorf("cannot enqueue notification: %w", err)
	}
	log.Debugw("notification enqueued", "subject", n.Subject, "pending", q.items.GetLen())
	return nil
}

// Start runs the delivery loop until the queue context is canceled. It is
// blocking; run it in its own goroutine.
func (q *Queue) Start() {
	defer close(q.done)
	for {
		item, err := q.items.DequeueOrWaitForNextElementContext(q.ctx)
		if err != nil {
			return
		}
		queued, ok := item.(*queuedNotification)
		if !ok {
			log.Warnw("invalid element in notification queue")
			continue
		}
		q.deliver(queued)
	}
}

// Done is closed when the delivery loop has returned.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of notifications waiting for delivery.
func (q *Queue) Len() int {
	return q.items.GetLen()
}

func (q *Queue) deliver(queued *queuedNotification) {
	for {
		var (
			failed []NotificationService
			errs   []error
		)
		for _, s := range queued.pending {
			if err := s.SendNotification(q.ctx, queued.notification); err != nil {
				failed = append(failed, s)
				errs = append(errs, err)
			}
		}
		queued.pending = failed
		err := errors.Join(errs...)
		if err == nil {
			log.Debugw("notification delivered",
				"subject", queued.notification.Subject,
				"retries", queued.retries)
			return
		}
		if queued.retries >= q.maxRetries || time.Since(queued.createdAt) > q.ttl {
			log.Warnw("notification dropped",
				"subject", queued.notification.Subject,
				"retries", queued.retries,
				"undelivered", len(queued.pending),
				"error", err)
			return
		}
		queued.retries++
		log.Debugw("notification delivery failed, retrying",
			"subject", queued.notification.Subject,
			"retry", queued.retries,
			"error", err)
		select {
		case <-q.ctx.Done():
			return
		case <-time.After(q.throttle):
		}
	}
}
