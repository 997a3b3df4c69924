/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package hmr

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrHubClosed is returned by Register after Close.
var ErrHubClosed = errors.New("hmr: hub closed")

// Conn is the subset of *websocket.Conn the hub needs.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// State tracks one session's lifecycle.
type State int

const (
	// StateConnected is the window between the socket opening and the
	// greeting being delivered.
	StateConnected State = iota
	// StateSynced sessions have applied every batch sent so far.
	StateSynced
	// StatePropagating sessions are mid-delivery of a batch.
	StatePropagating
	// StateDisconnected sessions receive nothing further.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSynced:
		return "synced"
	case StatePropagating:
		return "propagating"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is one live browser connection.
type Session struct {
	conn Conn

	mu      sync.Mutex
	state   State
	lastSeq uint64
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastSeq returns the sequence of the last batch delivered to the session.
func (s *Session) LastSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeq
}

// deliver writes one batch to the session. Batches at or below the last
// delivered sequence are dropped, so duplicate delivery after a hiccup is
// harmless. It reports whether the connection is still usable.
func (s *Session) deliver(seq uint64, frames [][]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return false
	}
	if seq <= s.lastSeq {
		return true
	}

	s.state = StatePropagating
	for _, frame := range frames {
		if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			s.state = StateDisconnected
			return false
		}
	}
	s.lastSeq = seq
	s.state = StateSynced
	return true
}

// Hub fans batches out to every live session.
type Hub struct {
	mu       sync.Mutex
	sessions map[*Session]bool
	logger   Logger
	closed   bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[*Session]bool), logger: noopLogger{}}
}

// WithLogger returns the hub using the given logger.
func (h *Hub) WithLogger(logger Logger) *Hub {
	h.logger = logger
	return h
}

// Register greets a new connection and starts tracking it. seq is the
// engine's current batch sequence; a client that was connected before can
// compare it against the last batch it applied and reload on a gap.
func (h *Hub) Register(conn Conn, seq uint64) (*Session, error) {
	greeting, err := Message{Type: TypeConnected, Seq: seq}.Encode()
	if err != nil {
		return nil, err
	}
	s := &Session{conn: conn, state: StateConnected, lastSeq: seq}
	if err := conn.WriteMessage(websocket.TextMessage, greeting); err != nil {
		conn.Close()
		return nil, err
	}
	s.mu.Lock()
	s.state = StateSynced
	s.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		conn.Close()
		return nil, ErrHubClosed
	}
	h.sessions[s] = true
	h.logger.Debug("session registered (%d live)", len(h.sessions))
	return s, nil
}

// ReadLoop consumes inbound frames until the peer goes away, then removes
// the session. Inbound content is ignored; reading is how the hub learns
// about closure. Callers run this on its own goroutine.
func (h *Hub) ReadLoop(s *Session) {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			h.Disconnect(s)
			return
		}
	}
}

// Broadcast delivers one batch to every live session. Sessions whose
// socket fails are disconnected.
func (h *Hub) Broadcast(msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	frames := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		data, err := m.Encode()
		if err != nil {
			h.logger.Warning("dropping unencodable message: %v", err)
			continue
		}
		frames = append(frames, data)
	}
	if len(frames) == 0 {
		return
	}
	seq := msgs[0].Seq

	h.mu.Lock()
	live := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		live = append(live, s)
	}
	h.mu.Unlock()

	for _, s := range live {
		if !s.deliver(seq, frames) {
			h.Disconnect(s)
		}
	}
}

// Disconnect removes a session and closes its socket.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()

	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
	s.conn.Close()
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close disconnects every session. Further registrations fail.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	live := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		live = append(live, s)
	}
	h.sessions = make(map[*Session]bool)
	h.mu.Unlock()

	for _, s := range live {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		s.conn.Close()
	}
}
