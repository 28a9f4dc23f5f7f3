package channel

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/discoverlab/enginekit/errors"
)

// spawnPair returns connected manager/worker handles without a worker loop.
func spawnPair(t *testing.T) (Handle, Handle) {
	t.Helper()

	ready := make(chan Handle, 1)
	mgr, err := SpawnGoroutine(func(h Handle) { ready <- h }, 0)
	if err != nil {
		t.Fatalf("SpawnGoroutine: %v", err)
	}
	wrk := <-ready
	t.Cleanup(func() {
		_ = mgr.Dispose()
		_ = wrk.Dispose()
	})
	return mgr, wrk
}

func TestSpawnGoroutine_NilEntry(t *testing.T) {
	_, err := SpawnGoroutine(nil, 0)
	if !errors.Is(err, errors.ErrCodeSpawnFailed) {
		t.Fatalf("expected spawn failure, got %v", err)
	}
}

func TestOneshot_ExactlyOnce(t *testing.T) {
	mgr, _ := spawnPair(t)

	sender, receiver, err := mgr.Oneshot()
	if err != nil {
		t.Fatalf("Oneshot: %v", err)
	}

	if err := sender.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := receiver.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Receive = %q, want %q", got, "hello")
	}

	// Second use of either half violates the invariant.
	if err := sender.Send([]byte("again")); !errors.Is(err, errors.ErrCodeChannelUsed) {
		t.Errorf("second Send = %v, want CHANNEL_USED", err)
	}
	if _, err := receiver.Receive(ctx); !errors.Is(err, errors.ErrCodeChannelUsed) {
		t.Errorf("second Receive = %v, want CHANNEL_USED", err)
	}
}

func TestOneshot_TransferConsumesSender(t *testing.T) {
	mgr, _ := spawnPair(t)

	sender, receiver, err := mgr.Oneshot()
	if err != nil {
		t.Fatalf("Oneshot: %v", err)
	}
	defer receiver.Dispose()

	ref, err := sender.Transfer()
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if ref == nil || ref.ID == "" {
		t.Fatal("Transfer returned empty ref")
	}

	if _, err := sender.Transfer(); !errors.Is(err, errors.ErrCodeChannelUsed) {
		t.Errorf("second Transfer = %v, want CHANNEL_USED", err)
	}
	if err := sender.Send([]byte("x")); !errors.Is(err, errors.ErrCodeChannelUsed) {
		t.Errorf("Send after Transfer = %v, want CHANNEL_USED", err)
	}
}

func TestOneshot_CrossBoundaryDelivery(t *testing.T) {
	mgr, wrk := spawnPair(t)

	sender, receiver, err := mgr.Oneshot()
	if err != nil {
		t.Fatalf("Oneshot: %v", err)
	}
	ref, err := sender.Transfer()
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	// The worker reconstructs a working Sender purely from the ref.
	if err := wrk.NewSender(ref).Send([]byte("pong")); err != nil {
		t.Fatalf("worker Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := receiver.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(got) != "pong" {
		t.Errorf("Receive = %q, want %q", got, "pong")
	}
}

func TestOneshot_NoCrossTalk(t *testing.T) {
	mgr, wrk := spawnPair(t)

	const n = 20
	type pair struct {
		receiver *Receiver
		want     string
	}
	pairs := make([]pair, n)
	for i := 0; i < n; i++ {
		sender, receiver, err := mgr.Oneshot()
		if err != nil {
			t.Fatalf("Oneshot %d: %v", i, err)
		}
		ref, err := sender.Transfer()
		if err != nil {
			t.Fatalf("Transfer %d: %v", i, err)
		}
		pairs[i] = pair{receiver: receiver, want: fmt.Sprintf("value-%d", i)}

		// Reply out of order from a shared peer.
		go func(ref *PortRef, value string) {
			_ = wrk.NewSender(ref).Send([]byte(value))
		}(ref, pairs[i].want)
	}

	var wg sync.WaitGroup
	for i := range pairs {
		wg.Add(1)
		go func(p pair) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			got, err := p.receiver.Receive(ctx)
			if err != nil {
				t.Errorf("Receive: %v", err)
				return
			}
			if string(got) != p.want {
				t.Errorf("Receive = %q, want %q", got, p.want)
			}
		}(pairs[i])
	}
	wg.Wait()
}

func TestReceiver_Timeout(t *testing.T) {
	mgr, _ := spawnPair(t)

	_, receiver, err := mgr.Oneshot()
	if err != nil {
		t.Fatalf("Oneshot: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = receiver.Receive(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, errors.ErrCodeTimeout) {
		t.Fatalf("Receive = %v, want REQUEST_TIMEOUT", err)
	}
	if elapsed < 40*time.Millisecond || elapsed > 200*time.Millisecond {
		t.Errorf("timed out after %v, want ~50ms", elapsed)
	}
}

func TestLateResponse_DroppedAndCounted(t *testing.T) {
	mgr, wrk := spawnPair(t)

	sender, receiver, err := mgr.Oneshot()
	if err != nil {
		t.Fatalf("Oneshot: %v", err)
	}
	ref, err := sender.Transfer()
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	// Timeout path: the receiver is disposed before the reply arrives.
	if err := receiver.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if err := receiver.Dispose(); err != nil {
		t.Fatalf("second Dispose: %v", err)
	}

	if err := wrk.NewSender(ref).Send([]byte("late")); err != nil {
		t.Fatalf("late Send: %v", err)
	}

	deadline := time.After(time.Second)
	for mgr.DroppedResponses() == 0 {
		select {
		case <-deadline:
			t.Fatal("late response never counted as dropped")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHandle_MainChannel(t *testing.T) {
	mgr, wrk := spawnPair(t)

	if err := wrk.Send([]byte("notify"), nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case p := <-mgr.Messages():
		if string(p.Payload) != "notify" {
			t.Errorf("Payload = %q", p.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("main-channel message never arrived")
	}
}

func TestHandle_TransferSideItem(t *testing.T) {
	mgr, wrk := spawnPair(t)

	sender, receiver, err := mgr.Oneshot()
	if err != nil {
		t.Fatalf("Oneshot: %v", err)
	}
	defer receiver.Dispose()
	ref, err := sender.Transfer()
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	if err := mgr.Send([]byte("payload"), ref); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case p := <-wrk.Messages():
		if p.Transfer != ref.ID {
			t.Errorf("Transfer = %q, want %q", p.Transfer, ref.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("packet never arrived")
	}
}

func TestHandle_DisposeIdempotent(t *testing.T) {
	mgr, _ := spawnPair(t)

	if err := mgr.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if err := mgr.Dispose(); err != nil {
		t.Fatalf("second Dispose: %v", err)
	}

	if err := mgr.Send([]byte("x"), nil); !errors.Is(err, errors.ErrCodeDisposed) {
		t.Errorf("Send after Dispose = %v, want DISPOSED", err)
	}
	if _, _, err := mgr.Oneshot(); !errors.Is(err, errors.ErrCodeDisposed) {
		t.Errorf("Oneshot after Dispose = %v, want DISPOSED", err)
	}
}
