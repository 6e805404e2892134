package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/mtga-tools/historian/internal/match"
)

// DaemonQuerier is the interface the IPC server uses to query daemon state.
// This avoids importing the daemon package (which would be circular).
type DaemonQuerier interface {
	Uptime() time.Duration
	Stop()
}

// StoreQuerier provides data access methods needed by the IPC server.
type StoreQuerier interface {
	PlayEventsCount() (int64, error)
	MatchesCount() (int64, error)
	DBSizeBytes() (int64, error)
}

// SessionQuerier exposes the live match view.
type SessionQuerier interface {
	Snapshot() match.Snapshot
}

// CacheQuerier reports the size of the card-name cache.
type CacheQuerier interface {
	Count() int
}

// Server is a Unix domain socket server for CLI-to-daemon communication.
type Server struct {
	daemon  DaemonQuerier
	store   StoreQuerier
	session SessionQuerier
	cache   CacheQuerier
	logPath string

	listener net.Listener
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopped  bool
}

// NewServer creates a new IPC server.
func NewServer(store StoreQuerier, session SessionQuerier, cache CacheQuerier, logPath string) *Server {
	return &Server{
		store:   store,
		session: session,
		cache:   cache,
		logPath: logPath,
	}
}

// SetDaemon sets the daemon reference. This is called after daemon creation
// to break the circular construction dependency (daemon needs server, server needs daemon).
func (s *Server) SetDaemon(d DaemonQuerier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daemon = d
}

// SetCollaborators updates the query references after daemon startup.
// Accepts interface{} to satisfy daemon.CollaboratorAware without
// circular imports; values that do not implement the querier
// interfaces are ignored.
func (s *Server) SetCollaborators(store, session, cache interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sq, ok := store.(StoreQuerier); ok {
		s.store = sq
	}
	if mq, ok := session.(SessionQuerier); ok {
		s.session = mq
	}
	if cq, ok := cache.(CacheQuerier); ok {
		s.cache = cq
	}
}

// Listen starts accepting connections on the given Unix socket path.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Listen(socketPath string, ctx context.Context) error {
	// Remove stale socket file if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", socketPath, err)
	}

	// Set socket permissions to owner-only.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.stopped = false
	s.mu.Unlock()

	log.Printf("IPC server listening on %s", socketPath)

	// Close the listener when context is cancelled.
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return nil
			}
			// Context cancelled causes listener to close.
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Stop stops accepting connections and waits for in-flight connections to drain.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.stopped = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	// Wait for in-flight connections with a timeout.
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("drain timeout: connections still open after 5s")
	}
}

// handleConn reads a single JSON request, dispatches it, and writes the response.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	// Set a read/write deadline.
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		writeError(conn, "empty request")
		return
	}

	var req Request
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		writeError(conn, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	switch req.Command {
	case "ping":
		writeResponse(conn, Response{OK: true, Data: "pong"})

	case "status":
		s.handleStatus(conn)

	case "stop":
		writeResponse(conn, Response{OK: true, Data: "shutting down"})
		// Trigger daemon shutdown after sending response.
		if s.daemon != nil {
			s.daemon.Stop()
		}

	default:
		writeError(conn, fmt.Sprintf("unknown command: %q", req.Command))
	}
}

func (s *Server) handleStatus(conn net.Conn) {
	data := StatusData{
		LogPath: s.logPath,
	}

	if s.daemon != nil {
		data.Uptime = s.daemon.Uptime().Truncate(time.Second).String()
	}
	if s.session != nil {
		data.Live = s.session.Snapshot()
	}
	if s.cache != nil {
		data.CardsCached = s.cache.Count()
	}

	if s.store != nil {
		if v, err := s.store.DBSizeBytes(); err == nil {
			data.DBSizeBytes = v
		}
		if v, err := s.store.PlayEventsCount(); err == nil {
			data.PlayEventsCount = v
		}
		if v, err := s.store.MatchesCount(); err == nil {
			data.MatchesCount = v
		}
	}

	writeResponse(conn, Response{OK: true, Data: data})
}

func writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}

func writeError(conn net.Conn, msg string) {
	writeResponse(conn, Response{OK: false, Error: msg})
}
