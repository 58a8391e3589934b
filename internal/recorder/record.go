package recorder

import (
	"errors"
	"fmt"
	"time"

	"keytrail/internal/input"
)

// Record is the flat form of a Move used by exports, the archive and the API.
// Fields that do not apply to the move type are nil and serialize as null.
type Record struct {
	MoveType   MoveType  `json:"move_type"`
	Timestamp  time.Time `json:"timestamp"`
	X          *int      `json:"x"`
	Y          *int      `json:"y"`
	ButtonName *string   `json:"button_name"`
	Pressed    *bool     `json:"pressed"`
	DX         *int      `json:"dx"`
	DY         *int      `json:"dy"`
	KeyCode    *string   `json:"key_code"`
	KeyName    *string   `json:"key_name"`
}

func ptr[T any](v T) *T { return &v }

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ToRecord flattens m.
func ToRecord(m Move) Record {
	r := Record{MoveType: m.Type(), Timestamp: m.Time().UTC()}
	switch v := m.(type) {
	case Click:
		r.X, r.Y = ptr(v.X), ptr(v.Y)
		r.ButtonName = ptr(string(v.Button))
		r.Pressed = ptr(v.Pressed)
	case Scroll:
		r.X, r.Y = ptr(v.X), ptr(v.Y)
		r.DX, r.DY = ptr(v.DX), ptr(v.DY)
	case Motion:
		r.X, r.Y = ptr(v.X), ptr(v.Y)
	case KeyDown:
		r.KeyCode, r.KeyName = optString(v.Code), optString(v.Name)
	case KeyUp:
		r.KeyCode, r.KeyName = optString(v.Code), optString(v.Name)
	}
	return r
}

// ToRecords flattens moves in order.
func ToRecords(moves []Move) []Record {
	out := make([]Record, 0, len(moves))
	for _, m := range moves {
		out = append(out, ToRecord(m))
	}
	return out
}

// Move rebuilds the typed move, checking that the fields its type needs are
// present.
func (r Record) Move() (Move, error) {
	at := r.Timestamp.UTC()
	switch r.MoveType {
	case MouseClick:
		if r.X == nil || r.Y == nil || r.ButtonName == nil || r.Pressed == nil {
			return nil, fmt.Errorf("%s: x, y, button_name and pressed are required", r.MoveType)
		}
		return Click{At: at, X: *r.X, Y: *r.Y, Button: input.Button(*r.ButtonName), Pressed: *r.Pressed}, nil
	case MouseScroll:
		if r.X == nil || r.Y == nil || r.DX == nil || r.DY == nil {
			return nil, fmt.Errorf("%s: x, y, dx and dy are required", r.MoveType)
		}
		return Scroll{At: at, X: *r.X, Y: *r.Y, DX: *r.DX, DY: *r.DY}, nil
	case MouseMove:
		if r.X == nil || r.Y == nil {
			return nil, fmt.Errorf("%s: x and y are required", r.MoveType)
		}
		return Motion{At: at, X: *r.X, Y: *r.Y}, nil
	case KeyPress, KeyReleased:
		code, name, err := r.key()
		if err != nil {
			return nil, err
		}
		if r.MoveType == KeyPress {
			return KeyDown{At: at, Code: code, Name: name}, nil
		}
		return KeyUp{At: at, Code: code, Name: name}, nil
	default:
		return nil, fmt.Errorf("invalid move type %d", int(r.MoveType))
	}
}

func (r Record) key() (code, name string, err error) {
	if r.KeyCode != nil && r.KeyName != nil {
		return "", "", errors.New("key_code and key_name are mutually exclusive")
	}
	if r.KeyCode != nil {
		code = *r.KeyCode
	}
	if r.KeyName != nil {
		name = *r.KeyName
	}
	return code, name, nil
}

// FromRecords rebuilds moves in order, failing on the first invalid record.
func FromRecords(records []Record) ([]Move, error) {
	out := make([]Move, 0, len(records))
	for i, r := range records {
		m, err := r.Move()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}
