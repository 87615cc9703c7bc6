package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCronExpr(t *testing.T) {
	assert.NoError(t, ValidateCronExpr("0 0 2 * * *"))
	assert.NoError(t, ValidateCronExpr("@every 1h"))
	assert.Error(t, ValidateCronExpr(""))
	assert.Error(t, ValidateCronExpr("0 2 * * *"), "缺少秒字段")
	assert.Error(t, ValidateCronExpr("not a cron"))
}

func TestCronScheduler_RegisterAndUnregister(t *testing.T) {
	cs := NewCronScheduler()
	noop := func(context.Context) error { return nil }

	require.NoError(t, cs.Register("nightly", "0 0 2 * * *", noop))
	assert.Error(t, cs.Register("nightly", "0 0 3 * * *", noop), "重复注册")
	assert.Error(t, cs.Register("bad", "bad expr", noop))
	assert.Error(t, cs.Register("", "@every 1s", noop))
	assert.Error(t, cs.Register("nil", "@every 1s", nil))
	assert.Equal(t, []string{"nightly"}, cs.GetRegisteredJobs())

	require.NoError(t, cs.Unregister("nightly"))
	assert.Error(t, cs.Unregister("nightly"))
	assert.Empty(t, cs.GetRegisteredJobs())
}

func TestCronScheduler_TriggersJob(t *testing.T) {
	cs := NewCronScheduler()
	var calls int32
	require.NoError(t, cs.Register("every-second", "@every 1s", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	cs.Start()
	next, ok := cs.Next("every-second")
	assert.True(t, ok)
	assert.False(t, next.IsZero())

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 1
	}, 3*time.Second, 50*time.Millisecond)
	cs.Stop()
}

func TestCronScheduler_SkipsOverlappingTrigger(t *testing.T) {
	cs := NewCronScheduler()
	var calls int32
	release := make(chan struct{})
	job := &cronJob{name: "slow"}
	fn := func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil
	}

	go cs.trigger(job, fn)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)

	cs.trigger(job, fn)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	close(release)
	require.Eventually(t, func() bool { return !job.running.Load() }, time.Second, 5*time.Millisecond)
}
