package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
	err     error
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return p.err
}

func (p *capturePublisher) all() [][]AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]AggregatedLogEntry(nil), p.batches...)
}

func TestCollectorFoldsIdenticalEntries(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval: time.Hour,
		Topic:        "logs",
		Publisher:    pub,
		Levels:       []string{"warn", "error"},
	})

	fields := map[string]interface{}{"pair": "0xabc", "error": errors.New("timeout").Error()}
	for i := 0; i < 3; i++ {
		c.AddLog("warn", "fetch failed", fields, "marketdata/base.go:42")
	}
	c.AddLog("warn", "fetch failed", map[string]interface{}{"pair": "0xdef"}, "marketdata/base.go:42")
	c.AddLog("info", "ignored", nil, "x.go:1")
	c.Close()

	batches := pub.all()
	require.Len(t, batches, 1)
	assert.Equal(t, "logs", pub.topic)
	require.Len(t, batches[0], 2)
	counts := map[string]int{}
	for _, e := range batches[0] {
		counts[e.Fields["pair"].(string)] = e.Count
	}
	assert.Equal(t, map[string]int{"0xabc": 3, "0xdef": 1}, counts)
}

func TestCollectorFlushesOnThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	defer c.Close()

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")
	assert.Eventually(t, func() bool { return len(pub.all()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestCollectorSurvivesPublishErrors(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, Publisher: pub})
	c.AddLog("error", "boom", nil, "x.go:1")
	c.Flush()
	c.Close()
	c.Close()
	assert.Len(t, pub.all(), 1)
}

func TestEntryKeyIgnoresFieldOrder(t *testing.T) {
	a := entryKey("warn", "m", map[string]interface{}{"a": 1, "b": "x"}, "c")
	b := entryKey("warn", "m", map[string]interface{}{"b": "x", "a": 1}, "c")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, entryKey("warn", "m", map[string]interface{}{"a": 2, "b": "x"}, "c"))
}
