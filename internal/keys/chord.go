package keys

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Matcher tracks which keys are held down and fires callbacks when every key
// of a registered chord is down at once.
type Matcher struct {
	mu      sync.RWMutex
	chords  []*registeredChord
	pressed map[string]bool
	logger  *slog.Logger
}

type registeredChord struct {
	parts    []string // e.g. ["ctrl", "shift", "f12"]
	original string
	callback func()
}

// NewMatcher creates an empty chord matcher.
func NewMatcher(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Matcher{
		pressed: make(map[string]bool),
		logger:  logger,
	}
}

// ParseChord splits a chord such as "Ctrl+Shift+F12" into key identifiers.
func ParseChord(spec string) ([]string, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, fmt.Errorf("empty chord")
	}
	raw := strings.Split(spec, "+")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		k, err := Parse(p)
		if err != nil {
			return nil, fmt.Errorf("chord %q: %w", spec, err)
		}
		parts = append(parts, k.ID())
	}
	return parts, nil
}

// Register adds a chord. An empty spec is ignored. callback runs on the
// goroutine that calls Update.
func (m *Matcher) Register(spec string, callback func()) (int, error) {
	if spec == "" {
		return 0, nil
	}
	parts, err := ParseChord(spec)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.chords = append(m.chords, &registeredChord{
		parts:    parts,
		original: spec,
		callback: callback,
	})
	return len(m.chords) - 1, nil
}

// Clear removes all registered chords and forgets held keys.
func (m *Matcher) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chords = nil
	m.pressed = make(map[string]bool)
}

// Reset forgets held keys but keeps registered chords.
func (m *Matcher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pressed = make(map[string]bool)
}

// Update records a key transition. Auto-repeated presses of a key that is
// already down do not fire chords again.
func (m *Matcher) Update(k Key, down bool) {
	id := k.ID()
	if id == "" {
		return
	}

	m.mu.Lock()
	wasDown := m.pressed[id]
	if down {
		m.pressed[id] = true
	} else {
		delete(m.pressed, id)
	}
	m.mu.Unlock()

	if down && !wasDown {
		m.checkMatches(id)
	}
}

// checkMatches runs the callbacks of completed chords on the calling
// goroutine, after the lock is released. Callbacks must not block.
func (m *Matcher) checkMatches(trigger string) {
	var fire []func()
	m.mu.RLock()
	for _, c := range m.chords {
		involved := false
		match := true
		for _, part := range c.parts {
			if part == trigger {
				involved = true
			}
			if !m.pressed[part] {
				match = false
				break
			}
		}
		if match && involved {
			m.logger.Info("chord triggered", "chord", c.original)
			fire = append(fire, c.callback)
		}
	}
	m.mu.RUnlock()

	for _, fn := range fire {
		fn()
	}
}
