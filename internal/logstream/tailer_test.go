package logstream

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func collectLine(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line := <-lines:
		return line
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for line")
		return ""
	}
}

func appendTo(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(data); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestFollowStartsAtEnd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Player.log")
	appendTo(t, path, "old line\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tailer := NewTailer(path, 10*time.Millisecond, nil)
	lines := make(chan string, 16)
	go func() { _ = tailer.Follow(ctx, lines) }()

	// Give the tailer a moment to open and seek to the end.
	time.Sleep(100 * time.Millisecond)
	appendTo(t, path, "new line\n")

	if got := collectLine(t, lines); got != "new line" {
		t.Errorf("got %q, want %q (pre-existing content must be skipped)", got, "new line")
	}
}

func TestFollowWaitsForFileToAppear(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Player.log")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tailer := NewTailer(path, 10*time.Millisecond, nil)
	lines := make(chan string, 16)
	go func() { _ = tailer.Follow(ctx, lines) }()

	time.Sleep(50 * time.Millisecond)
	appendTo(t, path, "first\n")

	if got := collectLine(t, lines); got != "first" {
		t.Errorf("got %q, want %q", got, "first")
	}
}

func TestFollowJoinsPartialLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Player.log")
	appendTo(t, path, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tailer := NewTailer(path, 10*time.Millisecond, nil)
	lines := make(chan string, 16)
	go func() { _ = tailer.Follow(ctx, lines) }()

	time.Sleep(100 * time.Millisecond)
	appendTo(t, path, "half")
	time.Sleep(100 * time.Millisecond)
	appendTo(t, path, " and whole\r\n")

	if got := collectLine(t, lines); got != "half and whole" {
		t.Errorf("got %q, want joined line", got)
	}
}

func TestFollowSurvivesTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Player.log")
	appendTo(t, path, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tailer := NewTailer(path, 10*time.Millisecond, nil)
	lines := make(chan string, 16)
	go func() { _ = tailer.Follow(ctx, lines) }()

	time.Sleep(100 * time.Millisecond)
	appendTo(t, path, "before rotation\n")
	if got := collectLine(t, lines); got != "before rotation" {
		t.Fatalf("got %q before rotation", got)
	}

	// Simulate rotation: the game replaces the log with a shorter file.
	if err := os.Truncate(path, 0); err != nil {
		t.Fatal(err)
	}
	// Wait for the tailer to notice and reopen.
	time.Sleep(200 * time.Millisecond)

	appendTo(t, path, "after rotation\n")
	if got := collectLine(t, lines); got != "after rotation" {
		t.Errorf("got %q after rotation", got)
	}
}

func TestFollowStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Player.log")
	appendTo(t, path, "")

	ctx, cancel := context.WithCancel(context.Background())
	tailer := NewTailer(path, 10*time.Millisecond, nil)
	lines := make(chan string)

	done := make(chan error, 1)
	go func() { done <- tailer.Follow(ctx, lines) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Follow returned %v on cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}
