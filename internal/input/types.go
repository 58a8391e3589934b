// Package input provides cross-platform input capture behind a callback-based
// event source.
package input

import (
	"errors"
	"time"

	"keytrail/internal/keys"
)

// ErrUnsupported is returned by Subscribe on platforms without a hook.
var ErrUnsupported = errors.New("input hooks not supported on this platform")

// Button names a mouse button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
	ButtonX1     Button = "x1"
	ButtonX2     Button = "x2"
)

// Handlers are the callbacks an EventSource invokes. Sources may call them from
// any goroutine, including several at once. Nil handlers are skipped.
type Handlers struct {
	OnClick      func(x, y int, button Button, pressed bool)
	OnScroll     func(x, y, dx, dy int)
	OnMove       func(x, y int)
	OnKeyPress   func(k keys.Key)
	OnKeyRelease func(k keys.Key)
}

// EventSource delivers raw input through Handlers. Subscribe on an active
// source and Unsubscribe on an inactive one are no-ops.
type EventSource interface {
	Subscribe(h Handlers) error
	Unsubscribe() error
}

// Kind is the kind of a raw input event.
type Kind int

const (
	KindClick Kind = iota + 1
	KindScroll
	KindMove
	KindKeyPress
	KindKeyRelease
)

func (k Kind) String() string {
	switch k {
	case KindClick:
		return "click"
	case KindScroll:
		return "scroll"
	case KindMove:
		return "move"
	case KindKeyPress:
		return "key_press"
	case KindKeyRelease:
		return "key_release"
	default:
		return "unknown"
	}
}

// Event is one raw callback captured as a value. Only the fields relevant to
// Kind are set. At is the capture time, stamped by whoever receives the
// callback.
type Event struct {
	Kind    Kind      `json:"kind"`
	X       int       `json:"x,omitempty"`
	Y       int       `json:"y,omitempty"`
	DX      int       `json:"dx,omitempty"`
	DY      int       `json:"dy,omitempty"`
	Button  Button    `json:"button,omitempty"`
	Pressed bool      `json:"pressed,omitempty"`
	Key     keys.Key  `json:"key,omitempty"`
	At      time.Time `json:"at"`
}

// Click builds a click event.
func Click(x, y int, button Button, pressed bool) Event {
	return Event{Kind: KindClick, X: x, Y: y, Button: button, Pressed: pressed}
}

// Scroll builds a scroll event.
func Scroll(x, y, dx, dy int) Event {
	return Event{Kind: KindScroll, X: x, Y: y, DX: dx, DY: dy}
}

// Move builds a pointer motion event.
func Move(x, y int) Event {
	return Event{Kind: KindMove, X: x, Y: y}
}

// KeyPress builds a key press event.
func KeyPress(k keys.Key) Event {
	return Event{Kind: KindKeyPress, Key: k}
}

// KeyRelease builds a key release event.
func KeyRelease(k keys.Key) Event {
	return Event{Kind: KindKeyRelease, Key: k}
}

// Dispatch invokes the handler matching ev.Kind.
func (h Handlers) Dispatch(ev Event) {
	switch ev.Kind {
	case KindClick:
		if h.OnClick != nil {
			h.OnClick(ev.X, ev.Y, ev.Button, ev.Pressed)
		}
	case KindScroll:
		if h.OnScroll != nil {
			h.OnScroll(ev.X, ev.Y, ev.DX, ev.DY)
		}
	case KindMove:
		if h.OnMove != nil {
			h.OnMove(ev.X, ev.Y)
		}
	case KindKeyPress:
		if h.OnKeyPress != nil {
			h.OnKeyPress(ev.Key)
		}
	case KindKeyRelease:
		if h.OnKeyRelease != nil {
			h.OnKeyRelease(ev.Key)
		}
	}
}
