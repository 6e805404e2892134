package logstream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// Tailer follows a single file that another process appends to. It uses
// polling (check file size periodically) rather than relying on fsnotify
// alone, which is more reliable for files written by other processes;
// an optional nudge channel (see WatchFile) shortens the wait when the
// file appears or is written.
type Tailer struct {
	path     string
	interval time.Duration
	nudge    <-chan struct{}

	offset  int64
	pending []byte // partial line carried across reads
}

// NewTailer creates a tailer for path. interval controls poll frequency
// (default: 100ms). nudge may be nil.
func NewTailer(path string, interval time.Duration, nudge <-chan struct{}) *Tailer {
	if interval == 0 {
		interval = 100 * time.Millisecond
	}
	return &Tailer{
		path:     path,
		interval: interval,
		nudge:    nudge,
	}
}

// Follow opens the file, seeks to its current end, and sends each newly
// appended line on lines until ctx is cancelled. A file that does not
// exist yet is waited for and then read from the beginning, since
// nothing in it predates the watcher. Truncation and rotation are
// survived: when the stored offset exceeds the file size, the file is
// reopened and reading resumes from its new end.
func (t *Tailer) Follow(ctx context.Context, lines chan<- string) error {
	f, reader, err := t.open(ctx)
	if err != nil || f == nil {
		return err
	}
	defer func() { _ = f.Close() }()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		// Drain all complete lines currently available.
		for {
			chunk, err := reader.ReadBytes('\n')
			t.offset += int64(len(chunk))

			if err != nil {
				if err == io.EOF {
					// Partial line: keep it for the next read.
					t.pending = append(t.pending, chunk...)
					break
				}
				return fmt.Errorf("read %s: %w", t.path, err)
			}

			line := chunk
			if len(t.pending) > 0 {
				line = append(t.pending, chunk...)
				t.pending = nil
			}
			line = trimEOL(line)
			if len(line) == 0 {
				continue
			}

			select {
			case lines <- string(line):
			case <-ctx.Done():
				return nil
			}
		}

		// Wait for more data.
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-t.nudge:
		}

		// Re-stat to detect truncation or replacement.
		info, err := os.Stat(t.path)
		if err != nil {
			// File briefly absent during rotation; keep waiting.
			continue
		}
		if info.Size() < t.offset {
			_ = f.Close()
			t.pending = nil
			f, reader, err = t.open(ctx)
			if err != nil || f == nil {
				return err
			}
		}
	}
}

// open waits for the file to exist, opens it, and seeks to its end. A
// file that was absent on entry is read from offset 0 instead: it was
// created after the watcher started, so its first lines must not be
// skipped. Returns (nil, nil, nil) if ctx is cancelled while waiting.
func (t *Tailer) open(ctx context.Context) (*os.File, *bufio.Reader, error) {
	appeared := false
	for {
		if _, err := os.Stat(t.path); err == nil {
			break
		}
		appeared = true
		select {
		case <-ctx.Done():
			return nil, nil, nil
		case <-time.After(t.interval):
		case <-t.nudge:
		}
	}

	f, err := os.Open(t.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", t.path, err)
	}

	if appeared {
		t.offset = 0
		return f, bufio.NewReader(f), nil
	}

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("seek %s: %w", t.path, err)
	}
	t.offset = end

	return f, bufio.NewReader(f), nil
}

// Offset returns the current read offset (bytes consumed from the file).
func (t *Tailer) Offset() int64 {
	return t.offset
}

func trimEOL(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
