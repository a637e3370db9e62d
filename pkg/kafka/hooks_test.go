package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DexSignal/pkg/logger"
)

type recordingHook struct {
	name  string
	calls *[]string
	fail  bool
	panic bool
}

func (h recordingHook) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	*h.calls = append(*h.calls, "before:"+h.name)
	if h.panic {
		panic("boom")
	}
	if h.fail {
		return ctx, km, data, errors.New("rejected")
	}
	return ctx, km, append(data, h.name...), nil
}

func (h recordingHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {
	*h.calls = append(*h.calls, "after:"+h.name)
	if h.panic {
		panic("boom")
	}
}

func (h recordingHook) OnError(context.Context, string, kafka.Message, []byte, error) {
	*h.calls = append(*h.calls, "error:"+h.name)
}

func TestHookChainOrder(t *testing.T) {
	var calls []string
	chain := NewHookChain(recordingHook{name: "a", calls: &calls}, nil, recordingHook{name: "b", calls: &calls})

	_, _, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte(">"))
	require.NoError(t, err)
	assert.Equal(t, ">ab", string(data))

	chain.AfterHandle(context.Background(), "t", kafka.Message{}, nil, nil)
	chain.OnError(context.Background(), "t", kafka.Message{}, nil, errors.New("x"))
	assert.Equal(t, []string{"before:a", "before:b", "after:b", "after:a", "error:b", "error:a"}, calls)
}

func TestHookChainStopsOnErrorAndRecoversPanics(t *testing.T) {
	var calls []string
	chain := NewHookChain(recordingHook{name: "a", calls: &calls, fail: true}, recordingHook{name: "b", calls: &calls})
	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"before:a"}, calls)

	calls = nil
	chain = NewHookChain(recordingHook{name: "p", calls: &calls, panic: true})
	_, _, _, err = chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "before", he.Stage)

	assert.NotPanics(t, func() {
		chain.AfterHandle(context.Background(), "t", kafka.Message{}, nil, nil)
	})
}

func TestLoggingHookCarriesTraceID(t *testing.T) {
	h := NewLoggingHook(logger.NewNop(), 0)
	km := kafka.Message{Headers: []kafka.Header{{Key: TraceIDHeader, Value: []byte("abc")}}}

	ctx, _, _, err := h.BeforeHandle(context.Background(), "trades", km, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceIDFrom(ctx))
	assert.NotPanics(t, func() {
		h.AfterHandle(ctx, "trades", km, nil, nil)
		h.OnError(ctx, "trades", km, nil, errors.New("bad payload"))
	})

	ctx, _, _, _ = h.BeforeHandle(context.Background(), "trades", kafka.Message{}, nil)
	assert.Empty(t, TraceIDFrom(ctx))
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(10, 1000, attempt)
		assert.GreaterOrEqual(t, int64(d), int64(1))
		assert.LessOrEqual(t, int64(d), int64(1500))
	}
}
