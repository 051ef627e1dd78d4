package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/kwpulse/errors"
	qtest "github.com/teranos/kwpulse/internal/testing"
	"github.com/teranos/kwpulse/keyword/strategy"
)

func newTestJob(id string, created time.Time) *Job {
	return &Job{
		ID: id,
		JobConfig: JobConfig{
			Name:             "job " + id,
			Strategy:         strategy.Category,
			SeedCategory:     "Health & Fitness",
			Country:          "us",
			SearchesPerCycle: 2,
			IntervalMinutes:  5,
			TotalCycles:      3,
		},
		Status:       StatusPending,
		UsedKeywords: []string{},
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestStore_CreateAndGetJob(t *testing.T) {
	store := NewStore(qtest.CreateTestDB(t))
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	job := newTestJob("j-1", created)
	job.Notes = "spring sweep"
	job.SessionTag = "s1"
	require.NoError(t, store.CreateJob(ctx, job))

	got, err := store.GetJob(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, job.JobConfig, got.JobConfig)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, []string{}, got.UsedKeywords)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
}

func TestStore_GetJobNotFound(t *testing.T) {
	store := NewStore(qtest.CreateTestDB(t))

	_, err := store.GetJob(context.Background(), "missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStore_ListJobs(t *testing.T) {
	store := NewStore(qtest.CreateTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, tag := range []string{"a", "b", "a"} {
		job := newTestJob([]string{"j-1", "j-2", "j-3"}[i], base.Add(time.Duration(i)*time.Second))
		job.SessionTag = tag
		require.NoError(t, store.CreateJob(ctx, job))
	}

	all, err := store.ListJobs(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "j-3", all[0].ID, "newest first")
	assert.Equal(t, "j-1", all[2].ID)

	tagged, err := store.ListJobs(ctx, "a")
	require.NoError(t, err)
	require.Len(t, tagged, 2)
	assert.Equal(t, "j-3", tagged[0].ID)
	assert.Equal(t, "j-1", tagged[1].ID)
}

func TestStore_StatusTransitions(t *testing.T) {
	store := NewStore(qtest.CreateTestDB(t))
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.CreateJob(ctx, newTestJob("j-1", now)))

	require.NoError(t, store.MarkStarted(ctx, "j-1", now))
	err := store.MarkStarted(ctx, "j-1", now)
	assert.True(t, errors.IsAlreadyRunning(err))

	running, err := store.ListJobsByStatus(ctx, StatusRunning)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.NotNil(t, running[0].StartedAt)
	assert.NotNil(t, running[0].LastRunAt)

	require.NoError(t, store.SetStatus(ctx, "j-1", StatusPaused, StatusRunning))
	err = store.SetStatus(ctx, "j-1", StatusPaused, StatusRunning)
	assert.True(t, errors.IsNotRunning(err))

	err = store.SetStatus(ctx, "missing", StatusPaused, StatusRunning)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStore_UpdateProgressKeepsStatus(t *testing.T) {
	store := NewStore(qtest.CreateTestDB(t))
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.CreateJob(ctx, newTestJob("j-1", now)))
	require.NoError(t, store.MarkStarted(ctx, "j-1", now))

	err := store.UpdateProgress(ctx, Progress{
		JobID:         "j-1",
		CurrentCycle:  1,
		TotalKeywords: 2,
		UsedKeywords:  []string{"sleep sounds", "white noise"},
		LastRunAt:     now,
	})
	require.NoError(t, err)

	got, err := store.GetJob(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, 1, got.CurrentCycle)
	assert.Equal(t, 2, got.TotalKeywords)
	assert.Equal(t, []string{"sleep sounds", "white noise"}, got.UsedKeywords)

	err = store.UpdateProgress(ctx, Progress{JobID: "missing", LastRunAt: now})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStore_MarkCompletedOnlyAtFinalCycle(t *testing.T) {
	store := NewStore(qtest.CreateTestDB(t))
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.CreateJob(ctx, newTestJob("j-1", now)))
	require.NoError(t, store.MarkStarted(ctx, "j-1", now))

	done, err := store.MarkCompleted(ctx, "j-1", now)
	require.NoError(t, err)
	assert.False(t, done, "cycle 0 of 3")

	require.NoError(t, store.UpdateProgress(ctx, Progress{JobID: "j-1", CurrentCycle: 3, LastRunAt: now}))
	done, err = store.MarkCompleted(ctx, "j-1", now)
	require.NoError(t, err)
	assert.True(t, done)

	got, err := store.GetJob(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	done, err = store.MarkCompleted(ctx, "j-1", now)
	require.NoError(t, err)
	assert.False(t, done, "already completed")
}

func TestStore_CycleCannotExceedTotal(t *testing.T) {
	store := NewStore(qtest.CreateTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, newTestJob("j-1", time.Now())))

	err := store.UpdateProgress(ctx, Progress{JobID: "j-1", CurrentCycle: 4, LastRunAt: time.Now()})
	assert.Error(t, err)
}

func TestStore_ResultsOrderedByOpportunity(t *testing.T) {
	store := NewStore(qtest.CreateTestDB(t))
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.CreateJob(ctx, newTestJob("j-1", now)))

	results := []*Result{
		{JobID: "j-1", Keyword: "habit tracker", Cycle: 1, Status: ResultSuccess, Popularity: 40, Difficulty: 40, Opportunity: 10, TopApps: []string{"Streaks"}, CreatedAt: now},
		{JobID: "j-1", Keyword: "broken", Cycle: 1, Status: ResultError, ErrorMessage: "search failed", CreatedAt: now},
		{JobID: "j-1", Keyword: "sleep sounds", Cycle: 2, Status: ResultSuccess, Popularity: 80, Difficulty: 20, Opportunity: 40, RelatedTerms: []string{"sleep sounds rain"}, CreatedAt: now},
	}
	for _, r := range results {
		require.NoError(t, store.InsertResult(ctx, r))
		assert.NotEmpty(t, r.ID)
	}

	got, err := store.ListResults(ctx, "j-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "sleep sounds", got[0].Keyword)
	assert.Equal(t, []string{"sleep sounds rain"}, got[0].RelatedTerms)
	assert.Equal(t, "habit tracker", got[1].Keyword)
	assert.Equal(t, []string{"Streaks"}, got[1].TopApps)
	assert.Equal(t, "broken", got[2].Keyword)
	assert.Equal(t, ResultError, got[2].Status)
	assert.Equal(t, "search failed", got[2].ErrorMessage)

	n, err := store.CountResults(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStore_ResultLedger(t *testing.T) {
	store := NewStore(qtest.CreateTestDB(t))
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.CreateJob(ctx, newTestJob("j-1", now)))

	last, keywords, err := store.ResultLedger(ctx, "j-1")
	require.NoError(t, err)
	assert.Zero(t, last)
	assert.Empty(t, keywords)

	for _, r := range []*Result{
		{JobID: "j-1", Keyword: "focus", Cycle: 2, Status: ResultSuccess, CreatedAt: now},
		{JobID: "j-1", Keyword: "journal", Cycle: 1, Status: ResultError, ErrorMessage: "timeout", CreatedAt: now},
		{JobID: "j-1", Keyword: "budget", Cycle: 2, Status: ResultSuccess, CreatedAt: now},
	} {
		require.NoError(t, store.InsertResult(ctx, r))
	}

	last, keywords, err = store.ResultLedger(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, 2, last)
	assert.Equal(t, []string{"journal", "focus", "budget"}, keywords)
}

func TestStore_DeleteCascadesResults(t *testing.T) {
	store := NewStore(qtest.CreateTestDB(t))
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.CreateJob(ctx, newTestJob("j-1", now)))
	require.NoError(t, store.InsertResult(ctx, &Result{JobID: "j-1", Keyword: "focus", Cycle: 1, Status: ResultSuccess, CreatedAt: now}))

	require.NoError(t, store.DeleteJob(ctx, "j-1"))

	n, err := store.CountResults(ctx, "j-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.True(t, errors.IsNotFoundError(store.DeleteJob(ctx, "j-1")))
}

func TestStore_PromoteResults(t *testing.T) {
	store := NewStore(qtest.CreateTestDB(t))
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.CreateJob(ctx, newTestJob("j-1", now)))

	good := &Result{JobID: "j-1", Keyword: "sleep sounds", Cycle: 1, Status: ResultSuccess, Popularity: 80, Difficulty: 20, Opportunity: 40, CreatedAt: now}
	dup := &Result{JobID: "j-1", Keyword: "sleep sounds", Cycle: 2, Status: ResultSuccess, Popularity: 81, Difficulty: 20, Opportunity: 41, CreatedAt: now}
	bad := &Result{JobID: "j-1", Keyword: "broken", Cycle: 1, Status: ResultError, ErrorMessage: "boom", CreatedAt: now}
	for _, r := range []*Result{good, dup, bad} {
		require.NoError(t, store.InsertResult(ctx, r))
	}

	summary, err := store.PromoteResults(ctx, []string{good.ID, dup.ID, bad.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, PromoteSummary{Promoted: 1, AlreadyTracked: 1, Skipped: 1, Missing: 1}, summary)

	tracked, err := store.ListTracked(ctx, "US")
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, "sleep sounds", tracked[0].Keyword)
	assert.Equal(t, "us", tracked[0].Country)
	assert.Equal(t, 40, tracked[0].Opportunity)
	assert.Equal(t, good.ID, tracked[0].SourceResultID)

	results, err := store.ListResults(ctx, "j-1")
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, r.Status == ResultSuccess, r.Tracked, r.Keyword)
	}

	// Tracked keywords outlive their job
	require.NoError(t, store.DeleteJob(ctx, "j-1"))
	tracked, err = store.ListTracked(ctx, "")
	require.NoError(t, err)
	assert.Len(t, tracked, 1)
}

func TestStore_GetJobQueryError(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	mock.ExpectQuery("FROM discovery_jobs WHERE id = ").
		WithArgs("j-1").
		WillReturnError(errors.New("disk I/O error"))

	_, err = NewStore(database).GetJob(context.Background(), "j-1")
	require.Error(t, err)
	assert.False(t, errors.IsNotFoundError(err))
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_MarkStartedConflict(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	mock.ExpectExec("UPDATE discovery_jobs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM discovery_jobs").
		WithArgs("j-1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	err = NewStore(database).MarkStarted(context.Background(), "j-1", time.Now())
	assert.True(t, errors.IsAlreadyRunning(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_PromoteRollsBackOnFailure(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT r.job_id").
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "keyword", "country", "status", "popularity", "difficulty", "opportunity"}).
			AddRow("j-1", "focus", "us", "success", 50, 20, 25))
	mock.ExpectExec("INSERT OR IGNORE INTO tracked_keywords").WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	_, err = NewStore(database).PromoteResults(context.Background(), []string{"r-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}
