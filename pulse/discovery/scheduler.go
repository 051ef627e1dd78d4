package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/kwpulse/errors"
	"github.com/teranos/kwpulse/internal/pace"
	"github.com/teranos/kwpulse/keyword/score"
	"github.com/teranos/kwpulse/keyword/strategy"
	"github.com/teranos/kwpulse/logger"
)

// KeywordGenerator sources candidate keywords for a cycle.
type KeywordGenerator interface {
	Generate(ctx context.Context, req strategy.Request) []string
}

// Scorer scores one keyword in one storefront.
type Scorer interface {
	Analyze(ctx context.Context, keyword, country string) (*score.Analysis, error)
}

// SchedulerConfig tunes timing. Zero values take production defaults.
type SchedulerConfig struct {
	// IntervalUnit multiplies a job's IntervalMinutes. Defaults to time.Minute.
	IntervalUnit time.Duration
	// KeywordDelay spaces scoring calls across all jobs.
	KeywordDelay time.Duration
	Metrics      *Metrics
}

// Scheduler runs discovery jobs, one timer loop per running job.
type Scheduler struct {
	store     *Store
	generator KeywordGenerator
	scorer    Scorer
	tokens    *TokenTable
	unit      time.Duration
	pacer     *pace.Pacer
	metrics   *Metrics
	logger    *zap.SugaredLogger
	now       func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler wires a scheduler. A nil tokens table or logger is replaced
// with a fresh one.
func NewScheduler(store *Store, generator KeywordGenerator, scorer Scorer, tokens *TokenTable, cfg SchedulerConfig, log *zap.SugaredLogger) *Scheduler {
	if tokens == nil {
		tokens = NewTokenTable()
	}
	if cfg.IntervalUnit <= 0 {
		cfg.IntervalUnit = time.Minute
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Scheduler{
		store:     store,
		generator: generator,
		scorer:    scorer,
		tokens:    tokens,
		unit:      cfg.IntervalUnit,
		pacer:     pace.New(cfg.KeywordDelay),
		metrics:   cfg.Metrics,
		logger:    logger.AddPulseSymbol(log),
		now:       time.Now,
	}
}

// SetKeywordDelay changes the spacing between scored keywords.
func (s *Scheduler) SetKeywordDelay(d time.Duration) {
	s.pacer.SetDelay(d)
}

// Create validates cfg and stores a pending job.
func (s *Scheduler) Create(ctx context.Context, cfg JobConfig) (*Job, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	job := &Job{
		ID:           uuid.NewString(),
		JobConfig:    cfg,
		Status:       StatusPending,
		UsedKeywords: []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	logger.FromContext(logger.WithJobID(ctx, job.ID), s.logger).Infow("Discovery job created",
		logger.FieldStrategy, string(job.Strategy),
		logger.FieldCountry, job.Country,
		logger.FieldTotalCycles, job.TotalCycles,
	)
	return job, nil
}

// Start runs the job's next cycle now and then every interval.
func (s *Scheduler) Start(ctx context.Context, id string) (*Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case StatusRunning:
		return nil, errors.Wrapf(errors.ErrAlreadyRunning, "discovery job %s", id)
	case StatusCompleted:
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("discovery job %s is completed", id),
			"create a new job to keep discovering",
		)
	}

	loopCtx, gen, err := s.arm(id)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkStarted(ctx, id, s.now()); err != nil {
		s.disarm(id, gen)
		return nil, err
	}

	log := logger.FromContext(loopCtx, s.logger)
	log.Infow("Discovery job started",
		logger.FieldCycle, job.CurrentCycle+1,
		logger.FieldInterval, job.Interval(s.unit).String(),
	)

	if !s.tick(loopCtx, id) || !s.launch(loopCtx, id, gen, job.Interval(s.unit), false) {
		s.disarm(id, gen)
	}
	return s.store.GetJob(ctx, id)
}

// Stop cancels the job's loop and pauses it. A cycle in flight commits the
// keywords it already scored before the loop exits.
func (s *Scheduler) Stop(ctx context.Context, id string) (*Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusRunning {
		return nil, errors.Wrapf(errors.ErrNotRunning, "discovery job %s is %s", id, job.Status)
	}

	log := logger.FromContext(logger.WithJobID(ctx, id), s.logger)
	if done, ok := s.tokens.Cancel(id); ok {
		select {
		case <-done:
		case <-ctx.Done():
			log.Warnw("Stop returned before the job loop exited", logger.FieldError, ctx.Err())
		}
	}

	err = s.store.SetStatus(context.WithoutCancel(ctx), id, StatusPaused, StatusRunning)
	if errors.IsNotRunning(err) {
		// The loop completed the job while stopping.
		return s.store.GetJob(context.WithoutCancel(ctx), id)
	}
	if err != nil {
		return nil, err
	}

	log.Infow("Discovery job stopped")
	return s.store.GetJob(context.WithoutCancel(ctx), id)
}

// Delete stops a running job and removes it with its results.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == StatusRunning {
		if _, err := s.Stop(ctx, id); err != nil && !errors.IsNotRunning(err) {
			return errors.Wrapf(err, "failed to stop discovery job %s before delete", id)
		}
	}
	if err := s.store.DeleteJob(ctx, id); err != nil {
		return err
	}

	logger.FromContext(logger.WithJobID(ctx, id), s.logger).Infow("Discovery job deleted")
	return nil
}

// Reconcile re-arms running jobs left by a previous process. Jobs already
// armed here are skipped, so calling it again is harmless.
func (s *Scheduler) Reconcile(ctx context.Context) (ReconcileSummary, error) {
	summary := ReconcileSummary{Resumed: []string{}, Completed: []string{}, Skipped: []string{}}

	jobs, err := s.store.ListJobsByStatus(ctx, StatusRunning)
	if err != nil {
		return summary, err
	}

	for _, job := range jobs {
		if s.tokens.Has(job.ID) {
			summary.Skipped = append(summary.Skipped, job.ID)
			continue
		}

		if job.CurrentCycle >= job.TotalCycles {
			done, err := s.store.MarkCompleted(ctx, job.ID, s.now())
			if err != nil {
				return summary, err
			}
			if done {
				s.metrics.JobsCompleted.Inc()
				summary.Completed = append(summary.Completed, job.ID)
			}
			continue
		}

		loopCtx, gen, err := s.arm(job.ID)
		if errors.IsAlreadyRunning(err) {
			summary.Skipped = append(summary.Skipped, job.ID)
			continue
		}
		if err != nil {
			return summary, err
		}
		if !s.launch(loopCtx, job.ID, gen, job.Interval(s.unit), true) {
			s.disarm(job.ID, gen)
			continue
		}
		summary.Resumed = append(summary.Resumed, job.ID)
	}

	logger.PulseOpenInfow("Discovery jobs reconciled",
		"resumed", len(summary.Resumed),
		"completed", len(summary.Completed),
		"skipped", len(summary.Skipped),
	)
	return summary, nil
}

// Shutdown cancels every loop and waits for them to exit. Job statuses are
// left as they are, so a later Reconcile resumes running jobs.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	armed := s.tokens.Len()
	for _, done := range s.tokens.CancelAll() {
		<-done
	}
	s.wg.Wait()

	logger.PulseCloseInfow("Discovery scheduler stopped", logger.FieldCount, armed)
}

// List returns jobs newest first, optionally filtered by session tag.
func (s *Scheduler) List(ctx context.Context, sessionTag string) ([]*Job, error) {
	return s.store.ListJobs(ctx, sessionTag)
}

// Get returns a job with its results, best opportunity first.
func (s *Scheduler) Get(ctx context.Context, id string) (*JobDetail, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	results, err := s.store.ListResults(ctx, id)
	if err != nil {
		return nil, err
	}
	return &JobDetail{Job: job, Results: results}, nil
}

// Promote copies results into the tracked keyword list.
func (s *Scheduler) Promote(ctx context.Context, resultIDs []string) (PromoteSummary, error) {
	if len(resultIDs) == 0 {
		return PromoteSummary{}, errors.NewInvalidRequestError("no result ids to promote")
	}
	summary, err := s.store.PromoteResults(ctx, resultIDs)
	if err != nil {
		return summary, err
	}

	s.logger.Infow("Results promoted",
		"promoted", summary.Promoted,
		"already_tracked", summary.AlreadyTracked,
		"skipped", summary.Skipped,
		"missing", summary.Missing,
	)
	return summary, nil
}

// Tracked lists promoted keywords, optionally for one country.
func (s *Scheduler) Tracked(ctx context.Context, country string) ([]*TrackedKeyword, error) {
	return s.store.ListTracked(ctx, country)
}

// ArmedJobs returns the IDs of jobs with a loop in this process.
func (s *Scheduler) ArmedJobs() []string {
	return s.tokens.IDs()
}

func (s *Scheduler) arm(id string) (context.Context, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, 0, errors.Wrap(errors.ErrServiceUnavailable, "scheduler is shut down")
	}
	ctx, gen, ok := s.tokens.Arm(logger.WithJobID(context.Background(), id), id)
	if !ok {
		return nil, 0, errors.Wrapf(errors.ErrAlreadyRunning, "discovery job %s is armed", id)
	}
	s.metrics.ArmedJobs.Set(float64(s.tokens.Len()))
	return ctx, gen, nil
}

func (s *Scheduler) disarm(id string, gen uint64) {
	s.tokens.Release(id, gen)
	s.metrics.ArmedJobs.Set(float64(s.tokens.Len()))
}

// launch starts the loop goroutine unless the scheduler is closing or ctx is
// already cancelled.
func (s *Scheduler) launch(ctx context.Context, id string, gen uint64, interval time.Duration, immediate bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || ctx.Err() != nil {
		return false
	}
	s.wg.Add(1)
	go s.drive(ctx, id, gen, interval, immediate)
	return true
}

func (s *Scheduler) drive(ctx context.Context, id string, gen uint64, interval time.Duration, immediate bool) {
	defer s.wg.Done()
	defer s.disarm(id, gen)

	if immediate && !s.tick(ctx, id) {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.tick(ctx, id) {
				return
			}
		}
	}
}
