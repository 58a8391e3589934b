package recorder

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the recording state of a History.
type State int

const (
	Idle State = iota
	Recording
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Recording:
		return "RECORDING"
	case Stopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "IDLE":
		*s = Idle
	case "RECORDING":
		*s = Recording
	case "STOPPED":
		*s = Stopped
	default:
		return fmt.Errorf("unknown state %q", string(b))
	}
	return nil
}

// History is an ordered log of moves plus its recording state. It is safe for
// concurrent use.
type History struct {
	logger *slog.Logger
	clock  func() time.Time

	mu        sync.RWMutex
	id        string
	state     State
	moves     []Move
	startedAt time.Time
	stoppedAt time.Time
}

// Info is a point-in-time summary of a History.
type Info struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	Moves     int       `json:"moves"`
	StartedAt time.Time `json:"started_at,omitzero"`
	StoppedAt time.Time `json:"stopped_at,omitzero"`
}

// NewHistory creates an empty IDLE history with a fresh ID.
func NewHistory(logger *slog.Logger) *History {
	return newHistory(logger, time.Now)
}

func newHistory(logger *slog.Logger, clock func() time.Time) *History {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if clock == nil {
		clock = time.Now
	}
	return &History{
		logger: logger,
		clock:  clock,
		id:     uuid.NewString(),
		state:  Idle,
	}
}

// ID returns the session identifier.
func (h *History) ID() string {
	return h.id
}

func (h *History) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Start moves an IDLE or STOPPED history to RECORDING and reports whether a
// transition happened. Moves recorded before a stop are kept.
func (h *History) Start() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == Recording {
		return false
	}
	if h.startedAt.IsZero() {
		h.startedAt = h.clock().UTC()
	}
	h.stoppedAt = time.Time{}
	h.state = Recording
	h.logger.Info("history recording", "id", h.id)
	return true
}

// Stop moves a RECORDING history to STOPPED and reports whether a transition
// happened.
func (h *History) Stop() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Recording {
		return false
	}
	h.state = Stopped
	h.stoppedAt = h.clock().UTC()
	h.logger.Info("history stopped", "id", h.id, "moves", len(h.moves))
	return true
}

// Add appends m. Outside RECORDING the move is dropped and ErrNotRecording is
// returned.
func (h *History) Add(m Move) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Recording {
		return ErrNotRecording
	}
	h.moves = append(h.moves, m)
	return nil
}

// Moves returns a copy of the recorded moves in order.
func (h *History) Moves() []Move {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Move, len(h.moves))
	copy(out, h.moves)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.moves)
}

// Count returns the number of moves of type t.
func (h *History) Count(t MoveType) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, m := range h.moves {
		if m.Type() == t {
			n++
		}
	}
	return n
}

// FilterOut removes every move of type t, keeping the order of the rest, and
// returns how many were removed. It works in any state.
func (h *History) FilterOut(t MoveType) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.moves[:0]
	for _, m := range h.moves {
		if m.Type() != t {
			kept = append(kept, m)
		}
	}
	removed := len(h.moves) - len(kept)
	clear(h.moves[len(kept):])
	h.moves = kept
	h.logger.Info("moves filtered out", "type", t.String(), "removed", removed)
	return removed
}

// Info returns a summary of the history.
func (h *History) Info() Info {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Info{
		ID:        h.id,
		State:     h.state,
		Moves:     len(h.moves),
		StartedAt: h.startedAt,
		StoppedAt: h.stoppedAt,
	}
}

type stateMark struct {
	state     State
	startedAt time.Time
	stoppedAt time.Time
}

func (h *History) mark() stateMark {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return stateMark{state: h.state, startedAt: h.startedAt, stoppedAt: h.stoppedAt}
}

// restore rolls the state back after a failed start.
func (h *History) restore(m stateMark) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = m.state
	h.startedAt = m.startedAt
	h.stoppedAt = m.stoppedAt
}
