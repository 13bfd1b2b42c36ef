package vacuum

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerTriggerNowReentrancyGuard(t *testing.T) {
	_, deps := openTestDeps(t)
	sched := NewScheduler(deps, Config{Enabled: true}, nil)

	sched.running.Store(true)
	_, err := sched.TriggerNow()
	require.ErrorIs(t, err, errAlreadyRunning)
	sched.running.Store(false)

	stats, err := sched.TriggerNow()
	require.NoError(t, err)
	require.Equal(t, 0, stats.LogEntriesPruned)
}

func TestSchedulerTriggerNowConcurrent(t *testing.T) {
	_, deps := openTestDeps(t)
	sched := NewScheduler(deps, Config{Enabled: true}, nil)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = sched.TriggerNow()
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, errAlreadyRunning)
		}
	}
	require.GreaterOrEqual(t, successes, 1)
}

func TestSchedulerNextIntervalAdaptsToBacklog(t *testing.T) {
	_, deps := openTestDeps(t)
	backlog := 0
	sched := NewScheduler(deps, Config{Enabled: true, Interval: time.Minute, MaxEntriesPerPass: 100}, func() int { return backlog })

	backlog = 0
	require.Equal(t, time.Minute*4, sched.nextInterval())
	require.Equal(t, CadenceSlow, sched.CurrentCadence())

	backlog = 50
	require.Equal(t, time.Minute, sched.nextInterval())
	require.Equal(t, CadenceNormal, sched.CurrentCadence())

	backlog = 500
	require.Equal(t, time.Minute/4, sched.nextInterval())
	require.Equal(t, CadenceFast, sched.CurrentCadence())
}

func TestSchedulerNextIntervalWithoutBacklogFn(t *testing.T) {
	_, deps := openTestDeps(t)
	sched := NewScheduler(deps, Config{Enabled: true, Interval: time.Minute}, nil)
	require.Equal(t, time.Minute, sched.nextInterval())
	require.Equal(t, CadenceNormal, sched.CurrentCadence())
}

func TestSchedulerStartStopDisabled(t *testing.T) {
	_, deps := openTestDeps(t)
	sched := NewScheduler(deps, Config{Enabled: false}, nil)
	sched.Start()
	sched.Stop()
}

func TestSchedulerStartStopEnabled(t *testing.T) {
	_, deps := openTestDeps(t)
	sched := NewScheduler(deps, Config{Enabled: true, Interval: time.Hour}, nil)
	sched.Start()
	sched.Stop()
}
