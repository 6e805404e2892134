package ipc

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mtga-tools/historian/internal/match"
)

type fakeDaemon struct {
	stopped atomic.Bool
}

func (d *fakeDaemon) Uptime() time.Duration { return 90 * time.Second }
func (d *fakeDaemon) Stop()                 { d.stopped.Store(true) }

type fakeStore struct{}

func (fakeStore) PlayEventsCount() (int64, error) { return 42, nil }
func (fakeStore) MatchesCount() (int64, error)    { return 7, nil }
func (fakeStore) DBSizeBytes() (int64, error)     { return 4096, nil }

type fakeSession struct{}

func (fakeSession) Snapshot() match.Snapshot {
	return match.Snapshot{MatchID: "M1", Opponent: "rival#54321", Plays: 3}
}

type fakeCache struct{}

func (fakeCache) Count() int { return 1500 }

// startTestServer runs a server on a temp socket and returns a client
// pointed at it.
func startTestServer(t *testing.T) (*Client, *fakeDaemon) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "test.sock")
	srv := NewServer(fakeStore{}, fakeSession{}, fakeCache{}, "/tmp/Player.log")
	d := &fakeDaemon{}
	srv.SetDaemon(d)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(socketPath, ctx) }()
	t.Cleanup(func() {
		_ = srv.Stop()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Error("server did not exit")
		}
	})

	client := NewClient(socketPath)

	// Wait for the listener to come up.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := client.Ping(); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server never became reachable")
		}
		time.Sleep(10 * time.Millisecond)
	}

	return client, d
}

func TestStatusRoundTrip(t *testing.T) {
	client, _ := startTestServer(t)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	if status.Uptime != "1m30s" {
		t.Errorf("Uptime = %q, want 1m30s", status.Uptime)
	}
	if status.LogPath != "/tmp/Player.log" {
		t.Errorf("LogPath = %q", status.LogPath)
	}
	if status.PlayEventsCount != 42 || status.MatchesCount != 7 {
		t.Errorf("counts = %d/%d, want 42/7", status.PlayEventsCount, status.MatchesCount)
	}
	if status.CardsCached != 1500 || status.DBSizeBytes != 4096 {
		t.Errorf("cache/db = %d/%d", status.CardsCached, status.DBSizeBytes)
	}
	if status.Live.MatchID != "M1" || status.Live.Opponent != "rival#54321" || status.Live.Plays != 3 {
		t.Errorf("live = %+v", status.Live)
	}
}

func TestStopCommand(t *testing.T) {
	client, d := startTestServer(t)

	if err := client.RequestStop(); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}

	// The server invokes Stop after sending the response.
	deadline := time.Now().Add(2 * time.Second)
	for !d.stopped.Load() {
		if time.Now().After(deadline) {
			t.Fatal("daemon Stop was not invoked")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUnknownCommandRejected(t *testing.T) {
	client, _ := startTestServer(t)

	if _, err := client.send(Request{Command: "bogus"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
}
