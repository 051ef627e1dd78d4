package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/teranos/kwpulse/errors"
	"github.com/teranos/kwpulse/keyword/score"
	"github.com/teranos/kwpulse/keyword/strategy"
	"github.com/teranos/kwpulse/logger"
)

// tick re-reads the job and runs its next cycle. It reports whether the loop
// should keep ticking.
func (s *Scheduler) tick(ctx context.Context, id string) bool {
	log := logger.FromContext(ctx, s.logger)

	job, err := s.store.GetJob(ctx, id)
	switch {
	case ctx.Err() != nil:
		return false
	case errors.IsNotFoundError(err):
		log.Debugw("Job gone, loop exiting")
		return false
	case err != nil:
		log.Errorw("Failed to load job, retrying next tick", logger.FieldError, err)
		return true
	}

	if job.Status != StatusRunning {
		log.Debugw("Job no longer running, loop exiting", logger.FieldStatus, string(job.Status))
		return false
	}
	if err := s.catchUp(ctx, job); err != nil {
		log.Errorw("Failed to reconcile progress with stored results, retrying next tick", logger.FieldError, err)
		return ctx.Err() == nil
	}
	if job.CurrentCycle+1 > job.TotalCycles {
		s.complete(context.WithoutCancel(ctx), job.ID)
		return false
	}
	return s.runCycle(ctx, job)
}

// runCycle scores one batch of keywords and commits the job snapshot.
// Cancellation is checked between keywords; scoring and writes use a context
// that outlives it so a stopped cycle still commits what it scored.
func (s *Scheduler) runCycle(ctx context.Context, job *Job) bool {
	cycle := job.CurrentCycle + 1
	ctx = logger.WithCycle(ctx, cycle)
	commitCtx := context.WithoutCancel(ctx)
	log := logger.FromContext(ctx, s.logger)
	started := time.Now()

	keywords := s.generator.Generate(ctx, strategy.Request{
		Strategy:     job.Strategy,
		SeedCategory: job.SeedCategory,
		Audience:     strings.ToUpper(job.Country),
		Count:        job.SearchesPerCycle,
		Used:         job.UsedKeywords,
	})

	used := make([]string, 0, len(job.UsedKeywords)+len(keywords))
	used = append(used, job.UsedKeywords...)
	seen := make(map[string]struct{}, cap(used))
	for _, kw := range used {
		seen[kw] = struct{}{}
	}

	var (
		scored   int
		storeErr error
	)
	for _, kw := range keywords {
		if ctx.Err() != nil {
			break
		}
		if err := s.pacer.Wait(ctx); err != nil {
			break
		}
		if _, dup := seen[kw]; dup {
			continue
		}

		result := s.score(commitCtx, job, cycle, kw)
		if err := s.store.InsertResult(commitCtx, result); err != nil {
			log.Errorw("Failed to store result", logger.FieldKeyword, kw, logger.FieldError, err)
			storeErr = err
			break
		}
		seen[kw] = struct{}{}
		used = append(used, kw)
		scored++
		s.metrics.Keywords.WithLabelValues(string(result.Status)).Inc()
	}

	if scored == 0 && ctx.Err() != nil {
		log.Debugw("Cycle cancelled before any keyword was scored")
		return false
	}

	err := s.store.UpdateProgress(commitCtx, Progress{
		JobID:         job.ID,
		CurrentCycle:  cycle,
		TotalKeywords: job.TotalKeywords + scored,
		UsedKeywords:  used,
		LastRunAt:     s.now(),
	})
	s.metrics.CycleDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		s.metrics.Cycles.WithLabelValues("store_error").Inc()
		log.Errorw("Failed to commit cycle, job stays running", logger.FieldError, err)
		return ctx.Err() == nil
	}
	if storeErr != nil {
		s.metrics.Cycles.WithLabelValues("store_error").Inc()
	} else {
		s.metrics.Cycles.WithLabelValues("committed").Inc()
	}

	log.Infow("Cycle committed",
		logger.FieldTotalCycles, job.TotalCycles,
		logger.FieldCount, scored,
		logger.FieldRequested, job.SearchesPerCycle,
		logger.FieldDurationMS, time.Since(started).Milliseconds(),
	)

	if cycle >= job.TotalCycles {
		s.complete(commitCtx, job.ID)
		return false
	}
	return ctx.Err() == nil
}

// catchUp folds results whose snapshot never committed back into the job, so
// their cycle is not run again and their keywords stay used.
func (s *Scheduler) catchUp(ctx context.Context, job *Job) error {
	last, keywords, err := s.store.ResultLedger(ctx, job.ID)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(job.UsedKeywords))
	for _, kw := range job.UsedKeywords {
		seen[kw] = struct{}{}
	}
	var missing []string
	for _, kw := range keywords {
		if _, ok := seen[kw]; !ok {
			seen[kw] = struct{}{}
			missing = append(missing, kw)
		}
	}
	if last <= job.CurrentCycle && len(missing) == 0 {
		return nil
	}

	p := Progress{
		JobID:         job.ID,
		CurrentCycle:  max(job.CurrentCycle, last),
		TotalKeywords: max(job.TotalKeywords, len(keywords)),
		UsedKeywords:  append(append([]string(nil), job.UsedKeywords...), missing...),
		LastRunAt:     s.now(),
	}
	if err := s.store.UpdateProgress(context.WithoutCancel(ctx), p); err != nil {
		return err
	}
	logger.FromContext(ctx, s.logger).Warnw("Recovered uncommitted cycle from stored results",
		logger.FieldCycle, p.CurrentCycle,
		logger.FieldCount, len(missing),
	)

	job.CurrentCycle = p.CurrentCycle
	job.TotalKeywords = p.TotalKeywords
	job.UsedKeywords = p.UsedKeywords
	job.LastRunAt = &p.LastRunAt
	return nil
}

func (s *Scheduler) score(ctx context.Context, job *Job, cycle int, keyword string) *Result {
	r := &Result{
		JobID:     job.ID,
		Keyword:   keyword,
		Cycle:     cycle,
		CreatedAt: s.now(),
	}

	a, err := s.scorer.Analyze(ctx, keyword, job.Country)
	if err != nil {
		logger.FromContext(ctx, s.logger).Warnw("Keyword scoring failed",
			logger.FieldKeyword, keyword,
			logger.FieldError, err,
		)
		r.Status = ResultError
		r.ErrorMessage = err.Error()
		return r
	}

	r.Status = ResultSuccess
	r.Popularity = a.Popularity
	r.Difficulty = a.Difficulty
	r.CompetitorCount = a.CompetitorCount
	r.Opportunity = score.RatioOpportunity(a.Popularity, a.Difficulty)
	r.TopApps = a.TopApps
	r.RelatedTerms = a.RelatedTerms
	return r
}

func (s *Scheduler) complete(ctx context.Context, id string) {
	log := logger.FromContext(ctx, s.logger)
	done, err := s.store.MarkCompleted(ctx, id, s.now())
	if err != nil {
		log.Errorw("Failed to mark job completed", logger.FieldError, err)
		return
	}
	if done {
		s.metrics.JobsCompleted.Inc()
		logger.PulseCloseInfow("Discovery job completed", logger.FieldJobID, id)
	}
}
