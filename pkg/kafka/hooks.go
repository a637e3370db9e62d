package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"DexSignal/pkg/logger"
)

// ConsumerHook observes each message around its handler. BeforeHandle may
// rewrite the context, message or payload; a non-nil error skips the handler.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error)
}

type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, km, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

// HookError wraps a panic or error raised inside a hook.
type HookError struct {
	Stage string
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("kafka hook %s: %v", e.Stage, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// HookChain runs hooks in order. AfterHandle and OnError run in reverse.
type HookChain struct {
	hooks []ConsumerHook
}

func NewHookChain(hooks ...ConsumerHook) *HookChain {
	out := make([]ConsumerHook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			out = append(out, h)
		}
	}
	return &HookChain{hooks: out}
}

func (c *HookChain) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (rctx context.Context, rkm kafka.Message, rdata []byte, err error) {
	rctx, rkm, rdata = ctx, km, data
	for _, h := range c.hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = &HookError{Stage: "before", Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			rctx, rkm, rdata, err = h.BeforeHandle(rctx, topic, rkm, rdata)
		}()
		if err != nil {
			return rctx, rkm, rdata, err
		}
	}
	return rctx, rkm, rdata, nil
}

func (c *HookChain) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		h := c.hooks[i]
		guard(func() { h.AfterHandle(ctx, topic, km, data, err) })
	}
}

func (c *HookChain) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		h := c.hooks[i]
		guard(func() { h.OnError(ctx, topic, km, data, err) })
	}
}

// hooks never take the consumer down
func guard(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

type ctxKey string

const (
	CtxStartTime ctxKey = "kafka_hook_start_time"
	CtxTraceID   ctxKey = "kafka_hook_trace_id"
)

// TraceIDHeader is the message header carrying a correlation id.
const TraceIDHeader = "trace_id"

func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, CtxTraceID, traceID)
}

// TraceIDFrom returns the trace id stored by WithTraceID.
func TraceIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(CtxTraceID).(string)
	return id
}

// ExtractTraceID returns the trace_id header, or "".
func ExtractTraceID(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == TraceIDHeader && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return ""
}

// LoggingHook stamps the trace id and start time on the handler context
// and logs the outcome of every handled message.
type LoggingHook struct {
	log  *logger.Logger
	slow time.Duration
	now  func() time.Time
}

// NewLoggingHook logs failures at warn and successes slower than slow at
// info. A zero slow disables the latency log.
func NewLoggingHook(l *logger.Logger, slow time.Duration) *LoggingHook {
	if l == nil {
		l = logger.NewNop()
	}
	return &LoggingHook{log: l.With(logger.String("component", "kafka_hook")), slow: slow, now: time.Now}
}

func (h *LoggingHook) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	ctx = context.WithValue(ctx, CtxStartTime, h.now())
	ctx = WithTraceID(ctx, ExtractTraceID(km))
	return ctx, km, data, nil
}

func (h *LoggingHook) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if err != nil || h.slow <= 0 {
		return
	}
	start, ok := ctx.Value(CtxStartTime).(time.Time)
	if !ok {
		return
	}
	if d := h.now().Sub(start); d >= h.slow {
		h.log.Info("slow message",
			logger.String("topic", topic),
			logger.Int("partition", km.Partition),
			logger.Int64("offset", km.Offset),
			logger.String("trace_id", TraceIDFrom(ctx)),
			logger.Duration("took", d),
		)
	}
}

func (h *LoggingHook) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	h.log.Warn("handler error",
		logger.String("topic", topic),
		logger.Int("partition", km.Partition),
		logger.Int64("offset", km.Offset),
		logger.String("key", string(km.Key)),
		logger.String("trace_id", TraceIDFrom(ctx)),
		logger.Error(err),
	)
}
