package channel

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// natsPair connects a manager/worker handle pair over a live NATS server,
// or skips the test when none is available.
func natsPair(t *testing.T) (Handle, Handle) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping NATS test in short mode")
	}

	cfg := DefaultNATSConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.URL = url
	}
	cfg.ConnectTimeout = 2 * time.Second
	cfg.MaxReconnects = 0
	cfg.Subject = "enginekit.test." + uuid.NewString()

	wrk, err := ServeNATS(cfg, 0)
	if err != nil {
		t.Skipf("skipping: NATS not available at %s: %v", cfg.URL, err)
	}
	mgr, err := DialNATS(cfg, 0)
	if err != nil {
		_ = wrk.Dispose()
		t.Fatalf("DialNATS: %v", err)
	}
	t.Cleanup(func() {
		_ = mgr.Dispose()
		_ = wrk.Dispose()
	})
	return mgr, wrk
}

func TestNATS_RoundTrip(t *testing.T) {
	mgr, wrk := natsPair(t)

	go func() {
		for p := range wrk.Messages() {
			if p.Transfer != "" {
				_ = wrk.NewSender(&PortRef{ID: p.Transfer}).Send(p.Payload)
			}
		}
	}()

	sender, receiver, err := mgr.Oneshot()
	if err != nil {
		t.Fatalf("Oneshot: %v", err)
	}
	ref, err := sender.Transfer()
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if err := mgr.Send([]byte("over-nats"), ref); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := receiver.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(got) != "over-nats" {
		t.Errorf("Receive = %q, want %q", got, "over-nats")
	}
}

func TestNATS_EmptySubject(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.Subject = ""
	if _, err := DialNATS(cfg, 0); err == nil {
		t.Fatal("expected spawn failure for empty subject")
	}
}
