package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/dipper/internal/core"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job evaluates one calendar date.
type Job func(ctx context.Context, date time.Time) error

// Scheduler runs a Job on a six-field cron schedule. Overlapping runs are
// skipped and panics are recovered.
type Scheduler struct {
	cron    *cron.Cron
	entry   cron.EntryID
	job     Job
	loc     *time.Location
	logger  *zap.Logger
	ctx     context.Context
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimeout bounds each run. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// New registers job on schedule. Dates passed to job are taken in loc.
func New(ctx context.Context, schedule string, loc *time.Location, job Job, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}

	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		job:     job,
		loc:     loc,
		logger:  logger,
		ctx:     ctx,
		timeout: 5 * time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	id, err := s.cron.AddFunc(schedule, s.run)
	if err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("register schedule %q: %w", schedule, err))
	}
	s.entry = id
	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Time("next_run", s.Next()))
}

// Stop stops the scheduler and returns a context done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	s.logger.Info("scheduler stopped")
	return ctx
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// RunNow executes the job immediately for today's date in the scheduler's
// location.
func (s *Scheduler) RunNow() error {
	return s.execute()
}

func (s *Scheduler) run() {
	// Errors are logged in execute
	_ = s.execute()
}

func (s *Scheduler) execute() error {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	date := core.Day(s.now().In(s.loc))
	log := s.logger.With(zap.String("date", date.Format(core.DateLayout)))
	log.Info("running scheduled evaluation")

	start := time.Now()
	if err := s.job(ctx, date); err != nil {
		log.Error("scheduled evaluation failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return err
	}
	log.Info("scheduled evaluation finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
