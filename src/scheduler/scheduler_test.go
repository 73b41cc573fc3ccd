package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convictionexecutor/src/model"
)

type fakeExecutor struct {
	mu     sync.Mutex
	calls  []uint
	err    error
	panics bool
	block  chan struct{}
}

func (f *fakeExecutor) Execute(_ context.Context, id uint) (*model.StrategyExecution, error) {
	if f.panics {
		panic("cycle blew up")
	}
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &model.StrategyExecution{ID: "x", PortfolioID: id, Status: model.ExecutionStatusCompleted}, nil
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeLister struct {
	active []model.Portfolio
	err    error
}

func (f *fakeLister) ListActive(context.Context) ([]model.Portfolio, error) {
	return f.active, f.err
}

type fakeCleaner struct {
	timeout time.Duration
	now     time.Time
	n       int
	err     error
}

func (f *fakeCleaner) CleanupStuck(_ context.Context, timeout time.Duration, now time.Time) (int, error) {
	f.timeout = timeout
	f.now = now
	return f.n, f.err
}

func newTestScheduler(cfg Config) (*Scheduler, *fakeExecutor, *fakeLister, *fakeCleaner, *logrustest.Hook) {
	logger, hook := logrustest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	exec := &fakeExecutor{}
	lister := &fakeLister{}
	cleaner := &fakeCleaner{}
	return New(logrus.NewEntry(logger), cfg, exec, lister, cleaner), exec, lister, cleaner, hook
}

func TestOnActivateIsIdempotent(t *testing.T) {
	s, _, _, _, _ := newTestScheduler(Config{})

	require.NoError(t, s.OnActivate(1, 30))
	require.NoError(t, s.OnActivate(1, 30))

	assert.Equal(t, 1, s.JobCount())
	assert.Len(t, s.cron.Entries(), 1)
	assert.True(t, s.HasJob(1))
}

func TestOnActivateReschedulesChangedPeriod(t *testing.T) {
	s, _, _, _, _ := newTestScheduler(Config{})

	require.NoError(t, s.OnActivate(1, 30))
	require.NoError(t, s.OnActivate(1, 15))

	period, ok := s.Period(1)
	require.True(t, ok)
	assert.Equal(t, 15, period)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestOnActivateDefaultsPeriod(t *testing.T) {
	s, _, _, _, _ := newTestScheduler(Config{DefaultPeriodMinutes: 240})

	require.NoError(t, s.OnActivate(3, 0))
	period, _ := s.Period(3)
	assert.Equal(t, 240, period)
}

func TestOnDeactivate(t *testing.T) {
	s, _, _, _, _ := newTestScheduler(Config{})

	require.NoError(t, s.OnActivate(1, 60))
	s.OnDeactivate(1)
	s.OnDeactivate(1)
	s.OnDeactivate(42)

	assert.Zero(t, s.JobCount())
	assert.Empty(t, s.cron.Entries())
}

func TestSyncReconcilesJobs(t *testing.T) {
	s, _, lister, _, _ := newTestScheduler(Config{})
	require.NoError(t, s.OnActivate(9, 60))

	lister.active = []model.Portfolio{
		{ID: 1, PeriodMinutes: 60},
		{ID: 2, PeriodMinutes: 5},
	}
	require.NoError(t, s.Sync(context.Background()))

	assert.True(t, s.HasJob(1))
	assert.True(t, s.HasJob(2))
	assert.False(t, s.HasJob(9))
	assert.Equal(t, 2, s.JobCount())

	lister.err = errors.New("db down")
	assert.ErrorContains(t, s.Sync(context.Background()), "db down")
	assert.Equal(t, 2, s.JobCount(), "jobs untouched when listing fails")
}

func TestJobRunsOnlyItsPortfolio(t *testing.T) {
	s, exec, _, _, _ := newTestScheduler(Config{})
	require.NoError(t, s.OnActivate(1, 60))
	require.NoError(t, s.OnActivate(2, 60))

	s.mu.Lock()
	entry := s.cron.Entry(s.jobs[2].entryID)
	s.mu.Unlock()
	entry.WrappedJob.Run()

	assert.Equal(t, []uint{2}, exec.calls)
}

func TestPanickingCycleIsRecovered(t *testing.T) {
	s, exec, _, _, hook := newTestScheduler(Config{})
	exec.panics = true
	require.NoError(t, s.OnActivate(1, 60))

	s.mu.Lock()
	entry := s.cron.Entry(s.jobs[1].entryID)
	s.mu.Unlock()

	assert.NotPanics(t, func() { entry.WrappedJob.Run() })

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "panic" {
			found = true
		}
	}
	assert.True(t, found, "cron recover logs through logrus")
}

func TestCycleErrorIsLogged(t *testing.T) {
	s, exec, _, _, hook := newTestScheduler(Config{})
	exec.err = errors.New("portfolio not found")

	s.runCycle(5)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, uint(5), hook.LastEntry().Data["portfolio_id"])
}

func TestCycleSkippedAfterContextDone(t *testing.T) {
	s, exec, _, _, _ := newTestScheduler(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.ctx = ctx

	s.runCycle(1)
	assert.Zero(t, exec.count())
}

func TestCleanupStuck(t *testing.T) {
	s, _, _, cleaner, _ := newTestScheduler(Config{StuckTimeout: 2 * time.Hour})
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	cleaner.n = 3

	n, err := s.CleanupStuck(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2*time.Hour, cleaner.timeout)
	assert.Equal(t, fixed, cleaner.now)

	_, err = s.CleanupStuck(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cleaner.timeout)

	cleaner.err = errors.New("locked")
	_, err = s.CleanupStuck(context.Background(), 0)
	assert.ErrorContains(t, err, "locked")
}

func TestStartRegistersSweepAndRunsOnStart(t *testing.T) {
	s, exec, lister, _, _ := newTestScheduler(Config{SweepSchedule: "@every 1h", RunOnStart: true})
	lister.active = []model.Portfolio{{ID: 1, PeriodMinutes: 60}, {ID: 2, PeriodMinutes: 60}}

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, 2, s.JobCount())
	assert.Len(t, s.cron.Entries(), 3, "two portfolios plus the sweep")
	assert.Eventually(t, func() bool { return exec.count() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Start(context.Background()), "second start is a no-op")
	assert.Len(t, s.cron.Entries(), 3)
}

func TestRunOnStartRecoversPanics(t *testing.T) {
	s, exec, lister, _, hook := newTestScheduler(Config{RunOnStart: true})
	exec.panics = true
	lister.active = []model.Portfolio{{ID: 1, PeriodMinutes: 60}}

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.ErrorLevel && e.Message == "panic" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestRunOnStartDoesNotOverlapTick(t *testing.T) {
	s, exec, lister, _, _ := newTestScheduler(Config{RunOnStart: true})
	exec.block = make(chan struct{})
	lister.active = []model.Portfolio{{ID: 1, PeriodMinutes: 60}}

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return exec.count() == 1 }, time.Second, 10*time.Millisecond)

	s.mu.Lock()
	entry := s.cron.Entry(s.jobs[1].entryID)
	s.mu.Unlock()
	entry.WrappedJob.Run()

	assert.Equal(t, 1, exec.count(), "tick is skipped while the start-up cycle runs")
	close(exec.block)
}

func TestStartRejectsBadSweepSchedule(t *testing.T) {
	s, _, _, _, _ := newTestScheduler(Config{SweepSchedule: "every now and then"})
	assert.Error(t, s.Start(context.Background()))
}
