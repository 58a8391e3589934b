package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"keytrail/internal/recorder"
)

// Session describes an archived recording.
type Session struct {
	ID        string    `json:"id"`
	Label     string    `json:"label,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	StoppedAt time.Time `json:"stopped_at,omitzero"`
	SavedAt   time.Time `json:"saved_at"`
	MoveCount int       `json:"move_count"`
}

// SaveSession stores a snapshot of h under its ID, replacing any earlier save
// of the same session. A history that is still recording is rejected.
func (s *Store) SaveSession(ctx context.Context, h *recorder.History, label string) (*Session, error) {
	info := h.Info()
	if info.State == recorder.Recording {
		return nil, recorder.ErrRecordingActive
	}
	moves := h.Moves()

	sess := &Session{
		ID:        info.ID,
		Label:     label,
		StartedAt: info.StartedAt,
		StoppedAt: info.StoppedAt,
		SavedAt:   nowUTC(),
		MoveCount: len(moves),
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start save transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO sessions (id, label, started_at, stopped_at, saved_at, move_count)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	label = excluded.label,
	started_at = excluded.started_at,
	stopped_at = excluded.stopped_at,
	saved_at = excluded.saved_at,
	move_count = excluded.move_count
`, sess.ID, sess.Label, formatTimestampOrEmpty(sess.StartedAt), formatTimestampOrEmpty(sess.StoppedAt), formatTimestamp(sess.SavedAt), sess.MoveCount); err != nil {
		return nil, fmt.Errorf("failed to save session %q: %w", sess.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM moves WHERE session_id = ?`, sess.ID); err != nil {
		return nil, fmt.Errorf("failed to clear moves of %q: %w", sess.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO moves (session_id, seq, move_type, at, x, y, button_name, pressed, dx, dy, key_code, key_name)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare move insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range moves {
		r := recorder.ToRecord(m)
		if _, err := stmt.ExecContext(ctx,
			sess.ID, i, r.MoveType.String(), formatTimestamp(r.Timestamp),
			nullInt(r.X), nullInt(r.Y), nullString(r.ButtonName), nullBool(r.Pressed),
			nullInt(r.DX), nullInt(r.DY), nullString(r.KeyCode), nullString(r.KeyName),
		); err != nil {
			return nil, fmt.Errorf("failed to insert move %d of %q: %w", i, sess.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit session %q: %w", sess.ID, err)
	}

	s.logger.Info("session archived", "id", sess.ID, "moves", sess.MoveCount)
	return sess, nil
}

// ListSessions returns archived sessions, most recently saved first.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.conn.QueryContext(ctx, `
SELECT id, label, started_at, stopped_at, saved_at, move_count
FROM sessions
ORDER BY saved_at DESC, id
`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// GetSession returns one archived session or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.conn.QueryRowContext(ctx, `
SELECT id, label, started_at, stopped_at, saved_at, move_count
FROM sessions
WHERE id = ?
`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

// LoadMoves returns the moves of an archived session in recorded order.
func (s *Store) LoadMoves(ctx context.Context, id string) ([]recorder.Move, error) {
	if _, err := s.GetSession(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx, `
SELECT move_type, at, x, y, button_name, pressed, dx, dy, key_code, key_name
FROM moves
WHERE session_id = ?
ORDER BY seq
`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load moves of %q: %w", id, err)
	}
	defer rows.Close()

	moves := []recorder.Move{}
	for rows.Next() {
		var (
			typeRaw, atRaw    string
			x, y, dx, dy      sql.NullInt64
			button, code, key sql.NullString
			pressed           sql.NullBool
		)
		if err := rows.Scan(&typeRaw, &atRaw, &x, &y, &button, &pressed, &dx, &dy, &code, &key); err != nil {
			return nil, fmt.Errorf("failed to scan move: %w", err)
		}
		mt, err := recorder.ParseMoveType(typeRaw)
		if err != nil {
			return nil, err
		}
		at, err := parseTimestamp(atRaw)
		if err != nil {
			return nil, err
		}
		m, err := recorder.Record{
			MoveType:   mt,
			Timestamp:  at,
			X:          intPtr(x),
			Y:          intPtr(y),
			ButtonName: stringPtr(button),
			Pressed:    boolPtr(pressed),
			DX:         intPtr(dx),
			DY:         intPtr(dy),
			KeyCode:    stringPtr(code),
			KeyName:    stringPtr(key),
		}.Move()
		if err != nil {
			return nil, fmt.Errorf("invalid move in %q: %w", id, err)
		}
		moves = append(moves, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate moves: %w", err)
	}
	return moves, nil
}

// DeleteSession removes a session and its moves.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete session %q: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.logger.Info("session deleted", "id", id)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var sess Session
	var startedRaw, stoppedRaw, savedRaw string
	if err := row.Scan(&sess.ID, &sess.Label, &startedRaw, &stoppedRaw, &savedRaw, &sess.MoveCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	var err error
	if sess.StartedAt, err = parseOptionalTimestamp(startedRaw); err != nil {
		return nil, err
	}
	if sess.StoppedAt, err = parseOptionalTimestamp(stoppedRaw); err != nil {
		return nil, err
	}
	if sess.SavedAt, err = parseTimestamp(savedRaw); err != nil {
		return nil, err
	}
	return &sess, nil
}
