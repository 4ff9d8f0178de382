package notifications

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

// recordingService stores every notification it accepts and fails the first
// failFirst calls.
type recordingService struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	sent      []string
	delivered chan string
}

func (r *recordingService) SendNotification(_ context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failFirst {
		return fmt.Errorf("upstream unavailable")
	}
	r.sent = append(r.sent, n.Subject)
	if r.delivered != nil {
		r.delivered <- n.Subject
	}
	return nil
}

func TestEscapeMarkdown(t *testing.T) {
	c := qt.New(t)
	c.Assert(EscapeMarkdown("john_doe*[vip]`x`"), qt.Equals, "john\\_doe\\*\\[vip]\\`x\\`")
	c.Assert(EscapeMarkdown("plain text"), qt.Equals, "plain text")
}

func TestStripMarkdown(t *testing.T) {
	c := qt.New(t)
	text := "*PAID*\n*Email:* " + EscapeMarkdown("john_doe@example.com")
	c.Assert(StripMarkdown(text), qt.Equals, "PAID\nEmail: john_doe@example.com")
}

func TestNotificationText(t *testing.T) {
	c := qt.New(t)
	c.Assert((&Notification{Body: "*a*"}).Text(), qt.Equals, "*a*")
	c.Assert((&Notification{Body: "*a*", PlainBody: "a"}).Text(), qt.Equals, "a")
}

func TestFanout(t *testing.T) {
	c := qt.New(t)
	ok := &recordingService{}
	failing := &recordingService{failFirst: 1}
	err := Fanout{failing, ok}.SendNotification(context.Background(), &Notification{Subject: "paid"})
	c.Assert(err, qt.ErrorMatches, "upstream unavailable")
	c.Assert(ok.sent, qt.DeepEquals, []string{"paid"})
}

func TestQueuePreservesOrderAcrossRetries(t *testing.T) {
	c := qt.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service := &recordingService{failFirst: 2, delivered: make(chan string, 2)}
	q := NewQueue(ctx, service, time.Millisecond, 3)
	go q.Start()

	c.Assert(q.SendNotification(ctx, &Notification{Subject: "payment"}), qt.IsNil)
	c.Assert(q.SendNotification(ctx, &Notification{Subject: "subscription"}), qt.IsNil)

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case s := <-service.delivered:
			got = append(got, s)
		case <-time.After(5 * time.Second):
			c.Fatal("timeout waiting for delivery")
		}
	}
	c.Assert(got, qt.DeepEquals, []string{"payment", "subscription"})

	cancel()
	select {
	case <-q.Done():
	case <-time.After(5 * time.Second):
		c.Fatal("queue did not stop")
	}
}

func TestQueueDropsAfterMaxRetries(t *testing.T) {
	c := qt.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service := &recordingService{failFirst: 100, delivered: make(chan string, 1)}
	q := NewQueue(ctx, service, time.Millisecond, 2)
	go q.Start()

	c.Assert(q.SendNotification(ctx, &Notification{Subject: "lost"}), qt.IsNil)
	c.Assert(q.SendNotification(ctx, nil), qt.IsNotNil)

	deadline := time.Now().Add(5 * time.Second)
	for {
		service.mu.Lock()
		calls := service.calls
		service.mu.Unlock()
		if calls == 3 && q.Len() == 0 {
			break
		}
		if time.Now().After(deadline) {
			c.Fatalf("expected 3 attempts, got %d", calls)
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.Assert(service.sent, qt.HasLen, 0)
}

func TestQueueRetriesOnlyFailedSinks(t *testing.T) {
	c := qt.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chat := &recordingService{}
	sms := &recordingService{failFirst: 100}
	q := NewQueue(ctx, Fanout{chat, sms}, time.Millisecond, 5)
	go q.Start()

	c.Assert(q.SendNotification(ctx, &Notification{Subject: "paid"}), qt.IsNil)

	deadline := time.Now().Add(5 * time.Second)
	for {
		sms.mu.Lock()
		calls := sms.calls
		sms.mu.Unlock()
		if calls == 6 && q.Len() == 0 {
			break
		}
		if time.Now().After(deadline) {
			c.Fatalf("expected 6 sms attempts, got %d", calls)
		}
		time.Sleep(5 * time.Millisecond)
	}
	chat.mu.Lock()
	defer chat.mu.Unlock()
	c.Assert(chat.calls, qt.Equals, 1)
	c.Assert(chat.sent, qt.DeepEquals, []string{"paid"})
}

func TestQueueFanoutRecoversFailedSink(t *testing.T) {
	c := qt.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chat := &recordingService{delivered: make(chan string, 1)}
	sms := &recordingService{failFirst: 2, delivered: make(chan string, 1)}
	q := NewQueue(ctx, Fanout{chat, sms}, time.Millisecond, 5)
	go q.Start()

	c.Assert(q.SendNotification(ctx, &Notification{Subject: "paid"}), qt.IsNil)
	for _, s := range []*recordingService{chat, sms} {
		select {
		case got := <-s.delivered:
			c.Assert(got, qt.Equals, "paid")
		case <-time.After(5 * time.Second):
			c.Fatal("timeout waiting for delivery")
		}
	}
	chat.mu.Lock()
	defer chat.mu.Unlock()
	c.Assert(chat.calls, qt.Equals, 1)
}
