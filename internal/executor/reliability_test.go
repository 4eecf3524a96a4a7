package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/uav-memtrust/internal/infra"
)

type flakyExecutor struct {
	calls    atomic.Int32
	failures int32
}

func (f *flakyExecutor) Call(ctx context.Context, action string, payload []byte) ([]byte, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, &ThrottleError{RetryAfter: time.Millisecond, Cause: errors.New("link busy")}
	}
	return []byte(`{"status":"ok"}`), nil
}

func testExecutorConfig() infra.ExecutorConfig {
	return infra.ExecutorConfig{
		RateLimit:     1000,
		RateBurst:     10,
		CallTimeout:   time.Second,
		RetryAttempts: 3,
	}
}

func TestReliabilityRetriesThroughThrottle(t *testing.T) {
	flaky := &flakyExecutor{failures: 2}
	w := NewReliabilityWrapper(flaky, testExecutorConfig())

	res, err := w.Call(context.Background(), ActionScanSector, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"status":"ok"}`, string(res))
	assert.Equal(t, int32(3), flaky.calls.Load(), "два ретрая после двух throttle-ответов")
}

func TestReliabilityGivesUpAfterAttempts(t *testing.T) {
	flaky := &flakyExecutor{failures: 100}
	w := NewReliabilityWrapper(flaky, testExecutorConfig())

	_, err := w.Call(context.Background(), ActionScanSector, nil)
	require.Error(t, err)
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestThrottleErrorUnwrap(t *testing.T) {
	cause := errors.New("link busy")
	err := error(&ThrottleError{RetryAfter: time.Second, Cause: cause})

	var tErr *ThrottleError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, time.Second, tErr.RetryAfter)
	assert.ErrorIs(t, err, cause)
}
