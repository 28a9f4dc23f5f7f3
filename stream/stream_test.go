package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/discoverlab/enginekit/engine"
	"github.com/discoverlab/enginekit/errors"
	"github.com/google/uuid"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	first := b.Subscribe()
	second := b.Subscribe()

	resp := &engine.Response{RequestID: uuid.New(), Kind: engine.KindPing}
	if !b.Publish(Event{Response: resp}) {
		t.Fatal("Publish returned false on open stream")
	}

	for _, sub := range []*Subscription{first, second} {
		select {
		case ev := <-sub.Events():
			if ev.Response == nil || ev.Response.RequestID != resp.RequestID {
				t.Errorf("event = %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber never received event")
		}
	}
}

func TestPublishOrderPreserved(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe()

	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
		b.Publish(Event{Response: &engine.Response{RequestID: ids[i]}})
	}

	for i, want := range ids {
		select {
		case ev := <-sub.Events():
			if ev.Response.RequestID != want {
				t.Fatalf("event %d = %v, want %v", i, ev.Response.RequestID, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %d", i)
		}
	}
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe()

	// Never drained; overflow past the buffer must not block Publish.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < DefaultSubscriberBuffer+10; i++ {
			b.Publish(Event{Response: &engine.Response{}})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if got := b.Dropped(); got != 10 {
		t.Errorf("Dropped = %d, want 10", got)
	}
	_ = sub
}

func TestSubscribeAfterClose(t *testing.T) {
	b := New()
	b.Close()

	if sub := b.Subscribe(); sub != nil {
		t.Error("Subscribe after Close returned a subscription")
	}
	if b.Publish(Event{}) {
		t.Error("Publish after Close returned true")
	}
}

func TestCloseClosesSubscriberChannels(t *testing.T) {
	b := New()
	sub := b.Subscribe()

	b.Close()
	b.Close() // idempotent

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("received event instead of close")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel never closed")
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := New()
	defer b.Close()

	kept := b.Subscribe()
	canceled := b.Subscribe()
	canceled.Cancel()
	canceled.Cancel() // idempotent

	b.Publish(Event{Err: errors.New(errors.ErrCodeTransportClosed, "boundary torn down")})

	select {
	case ev := <-kept.Events():
		if ev.Err == nil {
			t.Errorf("event = %+v, want error event", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("remaining subscriber never received event")
	}

	if _, ok := <-canceled.Events(); ok {
		t.Error("canceled subscription still delivering")
	}
}

func TestConcurrentPublishAndCancel(t *testing.T) {
	b := New()
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		sub := b.Subscribe()
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range sub.Events() {
			}
		}()
		go func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			sub.Cancel()
		}()
	}

	for i := 0; i < 200; i++ {
		b.Publish(Event{Response: &engine.Response{}})
	}
	wg.Wait()
}
