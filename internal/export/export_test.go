package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keytrail/internal/input"
	"keytrail/internal/recorder"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sample() Moves {
	return Moves{
		recorder.Click{At: t0, X: 10, Y: 20, Button: input.ButtonLeft, Pressed: true},
		recorder.Scroll{At: t0.Add(time.Millisecond), X: 10, Y: 20, DX: 0, DY: -1},
		recorder.Motion{At: t0.Add(2 * time.Millisecond), X: 11, Y: 21},
		recorder.KeyDown{At: t0.Add(3 * time.Millisecond), Code: "a"},
		recorder.KeyUp{At: t0.Add(4 * time.Millisecond), Name: "shift_l"},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, JSON, f)

	f, err = ParseFormat(" csv ")
	require.NoError(t, err)
	assert.Equal(t, CSV, f)

	_, err = ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.ErrorContains(t, err, "xml")
}

func TestExportEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, Moves{}, "json"))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, Export(&buf, recorder.NewHistory(nil), "csv"))
	assert.Equal(t, "Type,X,Y,Button,Pressed,Key Code,Key Name,DX,DY\n", buf.String())
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sample(), "CSV"))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		CSVHeader,
		{"MOUSE_CLICK", "10", "20", "left", "true", "", "", "", ""},
		{"MOUSE_SCROLL", "10", "20", "", "", "", "", "0", "-1"},
		{"MOUSE_MOVE", "11", "21", "", "", "", "", "", ""},
		{"KEY_PRESS", "", "", "", "", "a", "", "", ""},
		{"KEY_RELEASED", "", "", "", "", "", "shift_l", "", ""},
	}, rows)
}

func TestExportJSONRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, sample(), "json"))
	assert.Contains(t, buf.String(), `"key_name": null`)

	back, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, []recorder.Move(sample()), back)
}

func TestExportUnsupportedWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	err := Export(&buf, sample(), "xml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Zero(t, buf.Len())

	dir := t.TempDir()
	path := filepath.Join(dir, "out.xml")
	err = ExportFile(path, sample(), "xml", nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestExportFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "session.json")

	require.NoError(t, ExportFile(path, sample(), "json", nil))
	back, err := ReadJSONFile(path)
	require.NoError(t, err)
	assert.Len(t, back, 5)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-export-"), "temp file left behind: %s", e.Name())
	}

	csvPath := filepath.Join(dir, "session.csv")
	require.NoError(t, ExportFile(csvPath, sample(), "csv", nil))
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Type,X,Y"))
}

func TestExportHistorySnapshot(t *testing.T) {
	h := recorder.NewHistory(nil)
	h.Start()
	require.NoError(t, h.Add(recorder.Motion{At: t0, X: 1, Y: 1}))
	h.Stop()

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, h, "json"))
	back, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, h.Moves(), back)
}

func TestReadJSONRejectsInvalid(t *testing.T) {
	_, err := ReadJSON(strings.NewReader(`[{"move_type":"MOUSE_MOVE","timestamp":"2024-05-01T12:00:00Z","x":1}]`))
	assert.Error(t, err)

	_, err = ReadJSON(strings.NewReader(`{"not":"an array"}`))
	assert.Error(t, err)
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, ".csv", CSV.Ext())
	assert.Equal(t, "application/json", JSON.ContentType())
	assert.Contains(t, CSV.ContentType(), "text/csv")
}
