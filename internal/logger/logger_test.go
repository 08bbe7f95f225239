package logger

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, dir string) [][][]string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "commands_*.csv"))
	require.NoError(t, err)

	var out [][][]string
	for _, f := range files {
		fh, err := os.Open(f)
		require.NoError(t, err)
		rows, err := csv.NewReader(fh).ReadAll()
		fh.Close()
		require.NoError(t, err)
		out = append(out, rows)
	}
	return out
}

func TestRecord_Disabled(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Enabled: false, Path: dir})
	l.Record(Entry{Payload: "up"})
	l.Close()

	assert.Empty(t, readCSV(t, dir))
	assert.False(t, l.IsEnabled())
}

func TestRecord_WritesRows(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Enabled: true, Path: dir})
	require.True(t, l.IsEnabled())
	l.now = func() time.Time { return time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC) }

	l.Record(Entry{Transport: "rfcomm-socket", Peer: "00:1A:7D:DA:71:13", Payload: "UP", Action: "up"})
	l.Record(Entry{Transport: "rfcomm-socket", Peer: "00:1A:7D:DA:71:13", Payload: "a,b", Action: "unknown"})
	l.Close()

	files := readCSV(t, dir)
	require.Len(t, files, 1)
	rows := files[0]
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"2026-10-17T12:00:00Z", "rfcomm-socket", "00:1A:7D:DA:71:13", "UP", "up"}, rows[1])
	assert.Equal(t, "a,b", rows[2][3])
}

func TestRecord_RotatesAfterMaxRows(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Enabled: true, Path: dir})
	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	l.Record(Entry{Payload: "up"})
	l.rows = maxRowsPerFile
	base = base.Add(time.Second)
	l.Record(Entry{Payload: "down"})
	l.Close()

	assert.Len(t, readCSV(t, dir), 2)
}
