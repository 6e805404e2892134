// Package daemon wires the watcher pipeline together and manages its
// lifecycle: tail Player.log, extract frames, feed the match state
// machine, and serve status queries over the IPC socket.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mtga-tools/historian/internal/cards"
	"github.com/mtga-tools/historian/internal/config"
	"github.com/mtga-tools/historian/internal/history"
	"github.com/mtga-tools/historian/internal/logstream"
	"github.com/mtga-tools/historian/internal/match"
	"github.com/mtga-tools/historian/internal/notify"
	"github.com/mtga-tools/historian/internal/store"
)

// IPCServer is the interface the daemon uses to start/stop the IPC listener.
// This avoids a circular dependency with the ipc package.
type IPCServer interface {
	Listen(socketPath string, ctx context.Context) error
	Stop() error
}

// CollaboratorAware can receive the daemon's collaborators once they
// exist. Accepts interface{} to keep the ipc package out of this one;
// the concrete values must implement the ipc-side querier interfaces.
type CollaboratorAware interface {
	SetCollaborators(store, session, cache interface{})
}

// Daemon manages the lifecycle of the historian background process.
type Daemon struct {
	cfg       *config.Config
	store     *store.Store
	ipc       IPCServer
	resolver  *cards.Resolver
	machine   *match.Machine
	startTime time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

// New creates a new Daemon with the given config.
// The IPC server is injected to avoid circular imports.
func New(cfg *config.Config, ipcServer IPCServer) *Daemon {
	return &Daemon{
		cfg: cfg,
		ipc: ipcServer,
	}
}

// Start initialises the store and pipeline, starts the IPC server, and
// blocks until the context is cancelled (via signal or Stop).
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.mu.Unlock()

	// Ensure data directory exists.
	if err := d.cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Open store (runs migrations).
	s, err := store.New(d.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	d.store = s

	// Build the pipeline collaborators.
	d.resolver = cards.Load(d.cfg.CardMapPath)
	webhook := notify.New(d.cfg.WebhookURL)
	summaries := history.NewStore(d.cfg.HistoryPath)
	d.machine = match.New(match.Config{
		InvertSeat:    d.cfg.InvertSeat,
		AnnouncePlays: d.cfg.AnnouncePlays,
	}, d.resolver, webhook, summaries, s)

	// Give the IPC server what it needs for status queries.
	if ca, ok := d.ipc.(CollaboratorAware); ok {
		ca.SetCollaborators(s, d.machine, d.resolver)
	}

	// Create a signal-aware context.
	ctx, cancel := signalContext()
	d.ctx = ctx
	d.cancel = cancel
	d.startTime = time.Now()

	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	// Start IPC server in a goroutine.
	ipcErrCh := make(chan error, 1)
	go func() {
		ipcErrCh <- d.ipc.Listen(d.cfg.SocketPath, d.ctx)
	}()

	// Watch the log's directory so rotation is picked up quickly.
	// The tailer polls regardless, so a failure here only costs latency.
	nudge, err := logstream.WatchFile(d.ctx, d.cfg.LogPath)
	if err != nil {
		log.Printf("fsnotify unavailable for %s: %v", d.cfg.LogPath, err)
		nudge = nil
	}

	tailer := logstream.NewTailer(d.cfg.LogPath, d.cfg.PollInterval(), nudge)
	lines := make(chan string, 100)

	tailErrCh := make(chan error, 1)
	go func() {
		tailErrCh <- tailer.Follow(d.ctx, lines)
	}()

	go d.processLines(d.ctx, lines)

	if err := s.SetState("last_start", time.Now().UTC().Format(time.RFC3339)); err != nil {
		log.Printf("record start time: %v", err)
	}

	log.Printf("daemon started (pid %d, log %s, socket %s)", os.Getpid(), d.cfg.LogPath, d.cfg.SocketPath)

	// Block until context is cancelled or a component fails.
	select {
	case <-d.ctx.Done():
		log.Println("shutdown signal received")
	case err := <-ipcErrCh:
		if err != nil {
			log.Printf("IPC server error: %v", err)
		}
	case err := <-tailErrCh:
		if err != nil {
			log.Printf("tailer error: %v", err)
		}
	}

	// Clean shutdown.
	return d.shutdown()
}

// processLines feeds tailed lines through extraction and dispatch. A
// single bad line must never take the daemon down, so each line runs
// under a recover guard.
func (d *Daemon) processLines(ctx context.Context, lines <-chan string) {
	extractor := logstream.NewExtractor()
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-lines:
			d.processLine(extractor, line)
		}
	}
}

func (d *Daemon) processLine(extractor *logstream.Extractor, line string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("processing error: %v", r)
		}
	}()
	for _, frame := range extractor.Feed(line) {
		d.machine.HandleFrame(frame)
	}
}

// Stop triggers a graceful shutdown from outside (e.g. via IPC stop command).
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

// shutdown performs ordered teardown: IPC server, then caches and
// store, then socket cleanup.
func (d *Daemon) shutdown() error {
	log.Println("shutting down...")

	// Stop the tailer and processing goroutines (no-op if a signal
	// already cancelled the context).
	if d.cancel != nil {
		d.cancel()
	}

	// Stop IPC server (stops accepting, drains connections).
	if d.ipc != nil {
		if err := d.ipc.Stop(); err != nil {
			log.Printf("ipc stop: %v", err)
		}
	}

	// Flush the card-name cache.
	if d.resolver != nil {
		if err := d.resolver.Save(); err != nil {
			log.Printf("save card cache: %v", err)
		}
	}

	// Close the store.
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			log.Printf("store close: %v", err)
		}
	}

	// Remove socket file.
	_ = os.Remove(d.cfg.SocketPath)

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	log.Println("daemon stopped")
	return nil
}

// Running returns true if the daemon is currently running.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Uptime returns how long the daemon has been running.
func (d *Daemon) Uptime() time.Duration {
	if d.startTime.IsZero() {
		return 0
	}
	return time.Since(d.startTime)
}

// Config returns the daemon's configuration.
func (d *Daemon) Config() *config.Config {
	return d.cfg
}
