package recorder

import (
	"log/slog"
	"sync"
	"time"

	"keytrail/internal/input"
	"keytrail/internal/keys"
)

const (
	// DefaultPoolingInterval is the minimum spacing between recorded pointer
	// motions.
	DefaultPoolingInterval = 30 * time.Millisecond
)

// DefaultExitKey is filtered out of recordings.
var DefaultExitKey = keys.Esc

// Translator converts raw events into moves for one recording session. It
// decimates pointer motion and drops the exit key.
type Translator struct {
	interval time.Duration
	exitKey  keys.Key
	logger   *slog.Logger

	mu         sync.Mutex
	lastMotion time.Time
}

// NewTranslator creates a translator with no motion emitted yet. A zero exit
// key disables exit key filtering.
func NewTranslator(interval time.Duration, exitKey keys.Key, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Translator{interval: interval, exitKey: exitKey, logger: logger}
}

// Translate returns the move for ev, or false if ev produces none.
func (t *Translator) Translate(ev input.Event) (Move, bool) {
	at := ev.At.UTC()
	switch ev.Kind {
	case input.KindClick:
		return Click{At: at, X: ev.X, Y: ev.Y, Button: ev.Button, Pressed: ev.Pressed}, true
	case input.KindScroll:
		return Scroll{At: at, X: ev.X, Y: ev.Y, DX: ev.DX, DY: ev.DY}, true
	case input.KindMove:
		if !t.admitMotion(ev.At) {
			return nil, false
		}
		return Motion{At: at, X: ev.X, Y: ev.Y}, true
	case input.KindKeyPress, input.KindKeyRelease:
		if t.exitKey.Matches(ev.Key) {
			t.logger.Debug("ignoring exit key", "kind", ev.Kind.String())
			return nil, false
		}
		code, name := keys.Decode(ev.Key)
		if ev.Kind == input.KindKeyPress {
			return KeyDown{At: at, Code: code, Name: name}, true
		}
		return KeyUp{At: at, Code: code, Name: name}, true
	default:
		t.logger.Debug("ignoring unknown event", "kind", int(ev.Kind))
		return nil, false
	}
}

func (t *Translator) admitMotion(at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.lastMotion.IsZero() && at.Sub(t.lastMotion) <= t.interval {
		return false
	}
	t.lastMotion = at
	return true
}
