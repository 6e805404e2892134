package logstream

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchFile watches the directory containing path and sends a nudge
// whenever that file is created, written, or replaced. The tailer polls
// regardless; the nudge only shortens the wait after the game recreates
// Player.log on startup or rotation.
//
// The returned channel is closed when ctx is cancelled or the watcher
// fails. Callers must tolerate the channel never firing (the directory
// may not be watchable), so this is strictly best-effort.
func WatchFile(ctx context.Context, path string) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	nudge := make(chan struct{}, 1)
	target := filepath.Clean(path)

	go func() {
		defer close(nudge)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
					select {
					case nudge <- struct{}{}:
					default:
						// A nudge is already pending.
					}
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return nudge, nil
}
