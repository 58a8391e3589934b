// Package recorder turns raw input callbacks into an ordered, timestamped
// history of moves and coordinates recording sessions.
package recorder

import (
	"fmt"
	"strings"
	"time"

	"keytrail/internal/input"
)

// MoveType classifies a recorded move.
type MoveType int

const (
	MouseClick MoveType = iota + 1
	MouseScroll
	MouseMove
	KeyPress
	KeyReleased
)

var moveTypeNames = map[MoveType]string{
	MouseClick:  "MOUSE_CLICK",
	MouseScroll: "MOUSE_SCROLL",
	MouseMove:   "MOUSE_MOVE",
	KeyPress:    "KEY_PRESS",
	KeyReleased: "KEY_RELEASED",
}

// MoveTypes lists every move type in declaration order.
var MoveTypes = []MoveType{MouseClick, MouseScroll, MouseMove, KeyPress, KeyReleased}

func (t MoveType) String() string {
	if name, ok := moveTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MoveType(%d)", int(t))
}

// Valid reports whether t is one of the declared move types.
func (t MoveType) Valid() bool {
	_, ok := moveTypeNames[t]
	return ok
}

// ParseMoveType parses the textual form, case-insensitively.
func ParseMoveType(s string) (MoveType, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for t, name := range moveTypeNames {
		if name == want {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown move type %q", s)
}

func (t MoveType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid move type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *MoveType) UnmarshalText(b []byte) error {
	v, err := ParseMoveType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Move is one recorded user action. The concrete types are Click, Scroll,
// Motion, KeyDown and KeyUp.
type Move interface {
	Type() MoveType
	Time() time.Time
	isMove()
}

// Click is a mouse button press or release.
type Click struct {
	At      time.Time
	X, Y    int
	Button  input.Button
	Pressed bool
}

// Scroll is a wheel step at a pointer position.
type Scroll struct {
	At     time.Time
	X, Y   int
	DX, DY int
}

// Motion is a sampled pointer position.
type Motion struct {
	At   time.Time
	X, Y int
}

// KeyDown is a key press. Exactly one of Code and Name is set, or neither if
// the key could not be classified.
type KeyDown struct {
	At   time.Time
	Code string
	Name string
}

// KeyUp is a key release, with the same Code/Name rules as KeyDown.
type KeyUp struct {
	At   time.Time
	Code string
	Name string
}

func (Click) Type() MoveType { return MouseClick }
func (Scroll) Type() MoveType { return MouseScroll }
func (Motion) Type() MoveType { return MouseMove }
func (KeyDown) Type() MoveType { return KeyPress }
func (KeyUp) Type() MoveType { return KeyReleased }

func (m Click) Time() time.Time { return m.At }
func (m Scroll) Time() time.Time { return m.At }
func (m Motion) Time() time.Time { return m.At }
func (m KeyDown) Time() time.Time { return m.At }
func (m KeyUp) Time() time.Time { return m.At }

func (Click) isMove() {}
func (Scroll) isMove() {}
func (Motion) isMove() {}
func (KeyDown) isMove() {}
func (KeyUp) isMove() {}
