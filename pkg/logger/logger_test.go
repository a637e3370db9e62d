package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestNewWritesJSONAtLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	child := l.With(Pair("0xABCD"))
	child.Debug("hidden")
	child.Warn("price source slow", Duration("took", 1500*time.Millisecond), Error(errors.New("timeout")))

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	got := lines[0]
	assert.Equal(t, "warn", got["level"])
	assert.Equal(t, "0xabcd", got["pair"])
	assert.EqualValues(t, 1500, got["took"])
	assert.Equal(t, "timeout", got["error"])
	assert.Contains(t, got["caller"], "logger/logger_test.go")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	require.Error(t, err)
}

func TestCollectorReachesChildren(t *testing.T) {
	l := NewNop()
	child := l.With(String("component", "monitor"))

	pub := &capturePublisher{}
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs", Publisher: pub, Levels: []string{"warn"}})
	child.Warn("target expired", Pair("0xAA"))
	child.Error("not collected")
	l.RemoveCollector()

	batches := pub.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	e := batches[0][0]
	assert.Equal(t, "target expired", e.Message)
	assert.Equal(t, "0xaa", e.Fields["pair"])
	assert.Contains(t, e.Caller, "logger/logger_test.go")

	child.Warn("after removal")
	assert.Len(t, pub.all(), 1)
}
