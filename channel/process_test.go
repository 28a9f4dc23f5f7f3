package channel

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/discoverlab/enginekit/errors"
)

// TestMain doubles as the subprocess entrypoint: when re-executed with the
// echo flag set, this test binary becomes the worker on the far side of the
// stdio wire.
func TestMain(m *testing.M) {
	if os.Getenv("ENGINEKIT_TEST_ECHO_WORKER") == "1" {
		runEchoWorker()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// runEchoWorker replies to every inbound packet through its transferred
// port ref, echoing the payload.
func runEchoWorker() {
	h := InheritedHandle(os.Stdin, os.Stdout, 0)
	for p := range h.Messages() {
		if p.Transfer == "" {
			continue
		}
		_ = h.NewSender(&PortRef{ID: p.Transfer}).Send(p.Payload)
	}
}

func spawnEchoProcess(t *testing.T) Handle {
	t.Helper()

	cmd := exec.Command(os.Args[0])
	cmd.Env = append(os.Environ(), "ENGINEKIT_TEST_ECHO_WORKER=1")
	h, err := SpawnProcess(cmd, 0)
	if err != nil {
		t.Fatalf("SpawnProcess: %v", err)
	}
	t.Cleanup(func() { _ = h.Dispose() })
	return h
}

func TestSpawnProcess_StartFailure(t *testing.T) {
	cmd := exec.Command("/nonexistent/enginekit-worker")
	_, err := SpawnProcess(cmd, 0)
	if !errors.Is(err, errors.ErrCodeSpawnFailed) {
		t.Fatalf("expected spawn failure, got %v", err)
	}
}

func TestSpawnProcess_NilCommand(t *testing.T) {
	_, err := SpawnProcess(nil, 0)
	if !errors.Is(err, errors.ErrCodeSpawnFailed) {
		t.Fatalf("expected spawn failure, got %v", err)
	}
}

func TestProcess_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping subprocess test in short mode")
	}

	h := spawnEchoProcess(t)

	sender, receiver, err := h.Oneshot()
	if err != nil {
		t.Fatalf("Oneshot: %v", err)
	}
	ref, err := sender.Transfer()
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if err := h.Send([]byte("across"), ref); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := receiver.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(got) != "across" {
		t.Errorf("Receive = %q, want %q", got, "across")
	}
}

func TestProcess_ConcurrentRoundTrips(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping subprocess test in short mode")
	}

	h := spawnEchoProcess(t)

	const n = 8
	receivers := make([]*Receiver, n)
	for i := 0; i < n; i++ {
		sender, receiver, err := h.Oneshot()
		if err != nil {
			t.Fatalf("Oneshot %d: %v", i, err)
		}
		ref, err := sender.Transfer()
		if err != nil {
			t.Fatalf("Transfer %d: %v", i, err)
		}
		if err := h.Send([]byte{byte('a' + i)}, ref); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
		receivers[i] = receiver
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i, receiver := range receivers {
		got, err := receiver.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		if want := string([]byte{byte('a' + i)}); string(got) != want {
			t.Errorf("Receive %d = %q, want %q", i, got, want)
		}
	}
}
