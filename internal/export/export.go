// Package export writes recorded histories as JSON or CSV.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"keytrail/internal/recorder"
)

// ErrUnsupportedFormat is returned for any format other than json or csv.
var ErrUnsupportedFormat = errors.New("unsupported format, use 'json' or 'csv'")

// Format is an export file format.
type Format string

const (
	JSON Format = "json"
	CSV  Format = "csv"
)

// CSVHeader is the first row of every CSV export.
var CSVHeader = []string{"Type", "X", "Y", "Button", "Pressed", "Key Code", "Key Name", "DX", "DY"}

// ParseFormat accepts json or csv in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case JSON, CSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	if f == CSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Ext is the file extension for f, including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// MoveSource is anything holding an ordered list of moves. *recorder.History
// implements it.
type MoveSource interface {
	Moves() []recorder.Move
}

// Moves adapts a plain slice to MoveSource.
type Moves []recorder.Move

func (m Moves) Moves() []recorder.Move { return m }

// Export writes a snapshot of src to w. The format is checked before anything
// is written.
func Export(w io.Writer, src MoveSource, format string) error {
	f, err := ParseFormat(format)
	if err != nil {
		return err
	}
	moves := src.Moves()
	switch f {
	case CSV:
		return writeCSV(w, moves)
	default:
		return writeJSON(w, moves)
	}
}

// ExportFile writes src to path through a temporary file in the same
// directory, so a failed export never leaves a partial file behind.
func ExportFile(path string, src MoveSource, format string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if _, err := ParseFormat(format); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Export(&buf, src, format); err != nil {
		return err
	}
	if err := writeFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	logger.Info("history exported", "path", path, "format", strings.ToLower(format), "bytes", buf.Len())
	return nil
}

// ReadJSON parses a JSON export back into moves.
func ReadJSON(r io.Reader) ([]recorder.Move, error) {
	var records []recorder.Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	return recorder.FromRecords(records)
}

// ReadJSONFile reads a JSON export from disk.
func ReadJSONFile(path string) ([]recorder.Move, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadJSON(f)
}

func writeJSON(w io.Writer, moves []recorder.Move) error {
	data, err := json.MarshalIndent(recorder.ToRecords(moves), "", "    ")
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func writeCSV(w io.Writer, moves []recorder.Move) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, m := range moves {
		if err := cw.Write(csvRow(recorder.ToRecord(m))); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(r recorder.Record) []string {
	return []string{
		r.MoveType.String(),
		optInt(r.X),
		optInt(r.Y),
		optString(r.ButtonName),
		optBool(r.Pressed),
		optString(r.KeyCode),
		optString(r.KeyName),
		optInt(r.DX),
		optInt(r.DY),
	}
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optBool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

func optString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-export-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	done := false
	defer func() {
		if !done {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename export: %w", err)
	}
	done = true
	return nil
}
