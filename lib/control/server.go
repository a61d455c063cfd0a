// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/xzl01/switcheroo-control/lib/codec"
)

// readTimeout is how long the server waits for a client to send its
// request. A well-behaved client sends the request immediately after
// connecting.
const readTimeout = 30 * time.Second

// writeTimeout is how long the server waits for a response (or a
// single watch update) to be written.
const writeTimeout = 10 * time.Second

// maxRequestSize is the maximum size of a single CBOR request. A
// control request is a single action field; 64 KiB is generous.
const maxRequestSize = 64 * 1024

// socketMode makes the control socket world-readable and writable.
// The protocol has no mutating actions: every local user may query
// GPU state and subscribe to changes.
const socketMode = 0o666

// Server serves the control protocol on a Unix socket and owns the
// current encoded state. It is the daemon's publish boundary: the
// coordinator pushes snapshots in through Update, clients read them
// out through the socket.
type Server struct {
	socketPath string
	logger     *slog.Logger

	mu          sync.Mutex
	stateBytes  []byte
	stateDigest [32]byte
	watchers    map[uint64]chan []byte
	nextWatcher uint64

	// activeConnections tracks in-flight handlers for graceful
	// shutdown. Serve waits for all of them before returning.
	activeConnections sync.WaitGroup
}

// NewServer creates a server that will listen on socketPath. The
// state starts empty ({has_dual_gpu: false, num_gpus: 0, gpus: []});
// the daemon installs the first real state with Update before calling
// Serve.
func NewServer(socketPath string, logger *slog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		logger:     logger,
		watchers:   make(map[uint64]chan []byte),
	}
}

// Update installs a new state. The state is encoded once,
// deterministically; if the encoding is byte-identical to the state
// already installed, the update is dropped and no subscriber sees it.
// Returns whether the state actually changed.
func (s *Server) Update(state State) (bool, error) {
	encoded, err := codec.Marshal(state)
	if err != nil {
		return false, fmt.Errorf("encoding state: %w", err)
	}
	digest := blake3.Sum256(encoded)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stateBytes != nil && digest == s.stateDigest {
		return false, nil
	}
	s.stateBytes = encoded
	s.stateDigest = digest

	for _, updates := range s.watchers {
		// Each watcher holds a one-slot buffer carrying the newest
		// state. A subscriber that stalls between reads sees the
		// latest state on its next read rather than a backlog of
		// stale intermediates.
		select {
		case updates <- encoded:
		default:
			select {
			case <-updates:
			default:
			}
			updates <- encoded
		}
	}
	return true, nil
}

// Digest returns the content digest of the currently installed state.
// All zeros until the first Update.
func (s *Server) Digest() [32]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateDigest
}

// Watchers returns the number of active watch subscriptions.
func (s *Server) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// Serve starts accepting connections on the Unix socket. Blocks until
// ctx is cancelled, then stops accepting, waits for active handlers
// to finish, and removes the socket file.
//
// Any stale socket file at the configured path is removed before
// listening, and the fresh socket is opened up to all local users.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	if err := os.Chmod(s.socketPath, socketMode); err != nil {
		return fmt.Errorf("setting socket permissions: %w", err)
	}

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("control socket listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// handleConnection processes one request. Unary actions complete in a
// single response; the watch action streams until the client or the
// daemon goes away.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// Decode one CBOR value from the connection. CBOR is self-
	// delimiting so no framing protocol is needed. LimitReader
	// prevents a misbehaving client from exhausting memory.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var request Request
	if err := codec.Unmarshal(raw, &request); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if request.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	switch request.Action {
	case ActionPing:
		s.writeSuccess(conn, nil)
	case ActionState:
		encoded, err := s.currentState()
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: encoding state: %v", err))
			return
		}
		s.writeSuccess(conn, codec.RawMessage(encoded))
	case ActionWatch:
		// The stream outlives the request read deadline.
		conn.SetReadDeadline(time.Time{})
		s.handleWatch(ctx, conn)
	default:
		s.writeError(conn, fmt.Sprintf("unknown action %q", request.Action))
	}
}

// handleWatch registers the connection as a subscriber, sends the
// current state immediately, then forwards every subsequent distinct
// state until the client disconnects or the server shuts down.
func (s *Server) handleWatch(ctx context.Context, conn net.Conn) {
	id, updates, current := s.addWatcher()
	defer s.removeWatcher(id)

	if current == nil {
		encoded, err := codec.Marshal(State{GPUs: []GPURecord{}})
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: encoding state: %v", err))
			return
		}
		current = encoded
	}
	if !s.writeState(conn, current) {
		return
	}

	// The client sends nothing after the watch request; it signals
	// the end of the subscription by closing (or half-closing) the
	// connection. Reading until EOF detects that without waiting for
	// the next state change.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		io.Copy(io.Discard, conn)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-clientGone:
			return
		case encoded := <-updates:
			if !s.writeState(conn, encoded) {
				return
			}
		}
	}
}

// addWatcher registers a new subscription and returns its id, its
// update channel, and the state bytes current at registration time
// (nil before the first Update). Registration and the state read
// happen under one lock acquisition so the caller cannot miss an
// update that lands in between.
func (s *Server) addWatcher() (uint64, chan []byte, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextWatcher
	s.nextWatcher++
	updates := make(chan []byte, 1)
	s.watchers[id] = updates
	return id, updates, s.stateBytes
}

func (s *Server) removeWatcher(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers, id)
}

// currentState returns the installed state bytes, or a freshly
// encoded empty state if nothing has been published yet.
func (s *Server) currentState() ([]byte, error) {
	s.mu.Lock()
	encoded := s.stateBytes
	s.mu.Unlock()
	if encoded != nil {
		return encoded, nil
	}
	return codec.Marshal(State{GPUs: []GPURecord{}})
}

// writeState sends one watch update: {ok: true, data: <state>}.
// Reports whether the write succeeded; a failure means the client is
// gone and the stream should stop.
func (s *Server) writeState(conn net.Conn, encoded []byte) bool {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{
		OK:   true,
		Data: codec.RawMessage(encoded),
	}); err != nil {
		s.logger.Debug("watch update write failed", "error", err)
		return false
	}
	return true
}

// writeError sends a failure response: {ok: false, error: "..."}.
// Write failures are logged at debug level; the connection is closing
// regardless.
func (s *Server) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{
		OK:    false,
		Error: message,
	}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

// writeSuccess sends a success response. If result is nil, the
// response is {ok: true}. If non-nil, the value is marshaled as CBOR
// and placed in the "data" field: {ok: true, data: <cbor>}.
func (s *Server) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}

	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
