package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"convictionexecutor/src/model"
)

// Executor runs one strategy cycle.
type Executor interface {
	Execute(ctx context.Context, portfolioID uint) (*model.StrategyExecution, error)
}

type PortfolioLister interface {
	ListActive(ctx context.Context) ([]model.Portfolio, error)
}

// StuckCleaner fails running executions older than timeout.
type StuckCleaner interface {
	CleanupStuck(ctx context.Context, timeout time.Duration, now time.Time) (int, error)
}

type job struct {
	entryID       cron.EntryID
	periodMinutes int
}

// Scheduler keeps one cron entry per active portfolio plus the stuck-execution sweep.
type Scheduler struct {
	cron       *cron.Cron
	logger     *logrus.Entry
	config     Config
	executor   Executor
	portfolios PortfolioLister
	cleaner    StuckCleaner
	now        func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	jobs    map[uint]job
	sweepID cron.EntryID
	started bool
}

func New(
	logger *logrus.Entry,
	config Config,
	executor Executor,
	portfolios PortfolioLister,
	cleaner StuckCleaner,
) *Scheduler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if config.DefaultPeriodMinutes <= 0 {
		config.DefaultPeriodMinutes = 60
	}
	if config.StuckTimeout <= 0 {
		config.StuckTimeout = time.Hour
	}

	logger = logger.WithField("component", "scheduler")
	cl := cronLogger{log: logger}

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:     logger,
		config:     config,
		executor:   executor,
		portfolios: portfolios,
		cleaner:    cleaner,
		now:        time.Now,
		ctx:        context.Background(),
		jobs:       map[uint]job{},
	}
}

func spec(periodMinutes int) string {
	return fmt.Sprintf("@every %dm", periodMinutes)
}

// OnActivate schedules the portfolio. Calling it again with the same period is a no-op,
// a different period replaces the entry.
func (s *Scheduler) OnActivate(portfolioID uint, periodMinutes int) error {
	if periodMinutes <= 0 {
		periodMinutes = s.config.DefaultPeriodMinutes
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logger.WithFields(logrus.Fields{
		"portfolio_id":   portfolioID,
		"period_minutes": periodMinutes,
	})

	if existing, ok := s.jobs[portfolioID]; ok {
		if existing.periodMinutes == periodMinutes {
			log.Debug("portfolio already scheduled")
			return nil
		}
		s.cron.Remove(existing.entryID)
		delete(s.jobs, portfolioID)
		log.WithField("previous_period_minutes", existing.periodMinutes).Info("rescheduling portfolio")
	}

	id, err := s.cron.AddFunc(spec(periodMinutes), func() { s.runCycle(portfolioID) })
	if err != nil {
		return fmt.Errorf("schedule portfolio %d: %w", portfolioID, err)
	}
	s.jobs[portfolioID] = job{entryID: id, periodMinutes: periodMinutes}

	log.Info("portfolio scheduled")
	return nil
}

// OnDeactivate removes the portfolio's entry. A cycle already running finishes normally.
func (s *Scheduler) OnDeactivate(portfolioID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[portfolioID]
	if !ok {
		return
	}
	s.cron.Remove(existing.entryID)
	delete(s.jobs, portfolioID)

	s.logger.WithField("portfolio_id", portfolioID).Info("portfolio unscheduled")
}

// Sync reconciles the job map with the active portfolios in the store.
func (s *Scheduler) Sync(ctx context.Context) error {
	active, err := s.portfolios.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active portfolios: %w", err)
	}

	keep := make(map[uint]struct{}, len(active))
	for _, p := range active {
		keep[p.ID] = struct{}{}
		if err := s.OnActivate(p.ID, p.PeriodMinutes); err != nil {
			s.logger.WithError(err).WithField("portfolio_id", p.ID).Error("failed to schedule portfolio")
		}
	}

	for _, id := range s.scheduledIDs() {
		if _, ok := keep[id]; !ok {
			s.OnDeactivate(id)
		}
	}

	s.logger.WithField("jobs", s.JobCount()).Info("scheduler synced")
	return nil
}

// CleanupStuck fails running executions older than timeout. A non-positive timeout uses the configured one.
func (s *Scheduler) CleanupStuck(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = s.config.StuckTimeout
	}

	n, err := s.cleaner.CleanupStuck(ctx, timeout, s.now())
	if err != nil {
		return n, fmt.Errorf("cleanup stuck executions: %w", err)
	}
	if n > 0 {
		s.logger.WithFields(logrus.Fields{
			"cleaned":       n,
			"timeout_hours": timeout.Hours(),
		}).Warn("stuck executions marked failed")
	}
	return n, nil
}

// Start syncs jobs, registers the sweep and starts cron. ctx is handed to every cycle;
// cancelling it lets in-flight cycles wind down before Stop returns.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.ctx = ctx
	s.mu.Unlock()

	if err := s.Sync(ctx); err != nil {
		return err
	}

	if s.config.SweepSchedule != "" {
		id, err := s.cron.AddFunc(s.config.SweepSchedule, s.sweep)
		if err != nil {
			return fmt.Errorf("schedule stuck sweep: %w", err)
		}
		s.mu.Lock()
		s.sweepID = id
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler started")

	if s.config.RunOnStart {
		s.runAllNow()
	}
	return nil
}

// runAllNow fires every portfolio entry once through the cron chain, so start-up cycles
// get the same panic recovery and overlap protection as scheduled ticks.
func (s *Scheduler) runAllNow() {
	s.mu.Lock()
	entryIDs := make([]cron.EntryID, 0, len(s.jobs))
	for _, j := range s.jobs {
		entryIDs = append(entryIDs, j.entryID)
	}
	s.mu.Unlock()

	for _, id := range entryIDs {
		entry := s.cron.Entry(id)
		if entry.WrappedJob == nil {
			continue
		}
		go entry.WrappedJob.Run()
	}
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()

	s.mu.Lock()
	s.started = false
	if s.sweepID != 0 {
		s.cron.Remove(s.sweepID)
		s.sweepID = 0
	}
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) HasJob(portfolioID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[portfolioID]
	return ok
}

func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Period returns the scheduled period of the portfolio.
func (s *Scheduler) Period(portfolioID uint) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[portfolioID]
	return j.periodMinutes, ok
}

func (s *Scheduler) scheduledIDs() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	return ids
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) runCycle(portfolioID uint) {
	ctx := s.runContext()
	log := s.logger.WithField("portfolio_id", portfolioID)
	if ctx.Err() != nil {
		log.Debug("scheduler context done, skipping cycle")
		return
	}

	exec, err := s.executor.Execute(ctx, portfolioID)
	if err != nil {
		log.WithError(err).Error("strategy cycle could not start")
		return
	}

	log.WithFields(logrus.Fields{
		"execution_id": exec.ID,
		"status":       exec.Status,
	}).Debug("scheduled cycle finished")
}

func (s *Scheduler) sweep() {
	ctx := s.runContext()
	if _, err := s.CleanupStuck(ctx, s.config.StuckTimeout); err != nil {
		s.logger.WithError(err).Error("stuck execution sweep failed")
	}
}
