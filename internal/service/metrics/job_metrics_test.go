package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"DexSignal/pkg/queue"
)

func TestInstrumentCountsFailures(t *testing.T) {
	ok := Instrument(queue.Func("ok-job", func(context.Context) error { return nil }))
	bad := Instrument(queue.Func("bad-job", func(context.Context) error { return errors.New("boom") }))

	assert.Equal(t, "ok-job", ok.Name())
	assert.NoError(t, ok.Handle(context.Background()))
	assert.Error(t, bad.Handle(context.Background()))
	assert.Error(t, bad.Handle(context.Background()))

	assert.Equal(t, 0.0, testutil.ToFloat64(JobFailures.WithLabelValues("ok-job")))
	assert.Equal(t, 2.0, testutil.ToFloat64(JobFailures.WithLabelValues("bad-job")))
	assert.Equal(t, 2, testutil.CollectAndCount(JobDuration))
}
