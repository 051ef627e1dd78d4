package discovery

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/kwpulse/db"
	"github.com/teranos/kwpulse/errors"
	"github.com/teranos/kwpulse/keyword/strategy"
)

// Store persists jobs, results and tracked keywords in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over a migrated database.
func NewStore(database *sql.DB) *Store {
	return &Store{db: database}
}

const jobColumns = `
	id, name, strategy, seed_category, country, searches_per_cycle,
	interval_minutes, total_cycles, notes, session_tag, status,
	current_cycle, total_keywords, used_keywords,
	created_at, started_at, last_run_at, completed_at, updated_at`

// CreateJob inserts a new job.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	used, err := encodeList(job.UsedKeywords)
	if err != nil {
		return err
	}

	query := `INSERT INTO discovery_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.Name,
		string(job.Strategy),
		nullString(job.SeedCategory),
		job.Country,
		job.SearchesPerCycle,
		job.IntervalMinutes,
		job.TotalCycles,
		nullString(job.Notes),
		nullString(job.SessionTag),
		string(job.Status),
		job.CurrentCycle,
		job.TotalKeywords,
		used,
		db.FormatTime(job.CreatedAt),
		db.FormatNullTime(job.StartedAt),
		db.FormatNullTime(job.LastRunAt),
		db.FormatNullTime(job.CompletedAt),
		db.FormatTime(job.UpdatedAt),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create discovery job %s", job.ID)
	}
	return nil
}

// GetJob returns the job with id, or an error wrapping ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM discovery_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("discovery job %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get discovery job %s", id)
	}
	return job, nil
}

// ListJobs returns jobs newest first. A non-empty sessionTag filters by tag.
func (s *Store) ListJobs(ctx context.Context, sessionTag string) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM discovery_jobs`
	var args []any
	if sessionTag != "" {
		query += ` WHERE session_tag = ?`
		args = append(args, sessionTag)
	}
	query += ` ORDER BY created_at DESC, id ASC`
	return s.queryJobs(ctx, query, args...)
}

// ListJobsByStatus returns jobs in status, oldest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status Status) ([]*Job, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM discovery_jobs WHERE status = ? ORDER BY created_at ASC, id ASC`,
		string(status))
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query discovery jobs")
	}
	defer rows.Close()

	jobs := []*Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan discovery job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate discovery jobs")
	}
	return jobs, nil
}

// MarkStarted moves a job that is not running to running and stamps
// started_at and last_run_at.
func (s *Store) MarkStarted(ctx context.Context, id string, at time.Time) error {
	ts := db.FormatTime(at)
	res, err := s.db.ExecContext(ctx, `
		UPDATE discovery_jobs
		SET status = ?, started_at = ?, last_run_at = ?, updated_at = ?
		WHERE id = ? AND status != ?`,
		string(StatusRunning), ts, ts, ts, id, string(StatusRunning))
	if err != nil {
		return errors.Wrapf(err, "failed to start discovery job %s", id)
	}
	return s.explainNoop(ctx, res, id, errors.ErrAlreadyRunning)
}

// SetStatus sets a job's status. With from set, the update only applies when
// the current status is one of from; otherwise the error wraps ErrNotRunning
// if from is running, or ErrInvalidRequest.
func (s *Store) SetStatus(ctx context.Context, id string, to Status, from ...Status) error {
	query := `UPDATE discovery_jobs SET status = ?, updated_at = ? WHERE id = ?`
	args := []any{string(to), db.FormatTime(time.Now()), id}
	if len(from) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(from)-1) + `)`
		for _, f := range from {
			args = append(args, string(f))
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to set status of discovery job %s", id)
	}

	conflict := errors.ErrInvalidRequest
	if len(from) == 1 && from[0] == StatusRunning {
		conflict = errors.ErrNotRunning
	}
	return s.explainNoop(ctx, res, id, conflict)
}

// UpdateProgress writes a cycle snapshot. It never changes status.
func (s *Store) UpdateProgress(ctx context.Context, p Progress) error {
	used, err := encodeList(p.UsedKeywords)
	if err != nil {
		return err
	}
	ts := db.FormatTime(p.LastRunAt)

	res, err := s.db.ExecContext(ctx, `
		UPDATE discovery_jobs
		SET current_cycle = ?, total_keywords = ?, used_keywords = ?, last_run_at = ?, updated_at = ?
		WHERE id = ?`,
		p.CurrentCycle, p.TotalKeywords, used, ts, ts, p.JobID)
	if err != nil {
		return errors.Wrapf(err, "failed to update progress of discovery job %s", p.JobID)
	}
	return s.explainNoop(ctx, res, p.JobID, nil)
}

// MarkCompleted completes a running job whose current cycle equals its total.
// It reports false without error when the job is in any other state.
func (s *Store) MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error) {
	ts := db.FormatTime(at)
	res, err := s.db.ExecContext(ctx, `
		UPDATE discovery_jobs
		SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND current_cycle = total_cycles`,
		string(StatusCompleted), ts, ts, id, string(StatusRunning))
	if err != nil {
		return false, errors.Wrapf(err, "failed to complete discovery job %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read rows affected")
	}
	return n == 1, nil
}

// DeleteJob removes a job. Its results cascade.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM discovery_jobs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete discovery job %s", id)
	}
	return s.explainNoop(ctx, res, id, nil)
}

// explainNoop turns a zero-row update into ErrNotFound, or into conflict when
// the job exists. A nil conflict means an existing row always matches.
func (s *Store) explainNoop(ctx context.Context, res sql.Result, id string, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM discovery_jobs WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) || conflict == nil {
		return errors.NewNotFoundError("discovery job %s", id)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to check discovery job %s", id)
	}
	return errors.Wrapf(conflict, "discovery job %s", id)
}

const resultColumns = `
	id, job_id, keyword, cycle, status, popularity, difficulty,
	competitor_count, opportunity, top_apps, related_terms,
	error_message, tracked, created_at`

// InsertResult appends a result. An empty ID is filled with a new UUID.
func (s *Store) InsertResult(ctx context.Context, r *Result) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	var pop, diff, comp, opp sql.NullInt64
	var topApps, related sql.NullString
	if r.Status == ResultSuccess {
		pop = sql.NullInt64{Int64: int64(r.Popularity), Valid: true}
		diff = sql.NullInt64{Int64: int64(r.Difficulty), Valid: true}
		comp = sql.NullInt64{Int64: int64(r.CompetitorCount), Valid: true}
		opp = sql.NullInt64{Int64: int64(r.Opportunity), Valid: true}

		apps, err := encodeList(r.TopApps)
		if err != nil {
			return err
		}
		terms, err := encodeList(r.RelatedTerms)
		if err != nil {
			return err
		}
		topApps = sql.NullString{String: apps, Valid: true}
		related = sql.NullString{String: terms, Valid: true}
	}

	query := `INSERT INTO discovery_results (` + resultColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.JobID, r.Keyword, r.Cycle, string(r.Status),
		pop, diff, comp, opp, topApps, related,
		nullString(r.ErrorMessage), r.Tracked, db.FormatTime(r.CreatedAt),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to insert result for %q", r.Keyword)
	}
	return nil
}

// ResultLedger returns the highest cycle with a stored result and every
// result keyword in insertion order.
func (s *Store) ResultLedger(ctx context.Context, jobID string) (int, []string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle, keyword
		FROM discovery_results
		WHERE job_id = ?
		ORDER BY cycle ASC, created_at ASC, rowid ASC`, jobID)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "failed to query result ledger for job %s", jobID)
	}
	defer rows.Close()

	var (
		last     int
		keywords []string
	)
	for rows.Next() {
		var (
			cycle int
			kw    string
		)
		if err := rows.Scan(&cycle, &kw); err != nil {
			return 0, nil, errors.Wrap(err, "failed to scan result ledger")
		}
		if cycle > last {
			last = cycle
		}
		keywords = append(keywords, kw)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, errors.Wrap(err, "failed to iterate result ledger")
	}
	return last, keywords, nil
}

// ListResults returns a job's results by opportunity descending. Error
// results carry no opportunity and sort last.
func (s *Store) ListResults(ctx context.Context, jobID string) ([]*Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+resultColumns+`
		FROM discovery_results
		WHERE job_id = ?
		ORDER BY opportunity DESC, cycle ASC, created_at ASC`, jobID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query results for job %s", jobID)
	}
	defer rows.Close()

	results := []*Result{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan result")
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate results")
	}
	return results, nil
}

// CountResults returns how many results a job has.
func (s *Store) CountResults(ctx context.Context, jobID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM discovery_results WHERE job_id = ?`, jobID).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "failed to count results for job %s", jobID)
	}
	return n, nil
}

// PromoteResults copies successful results into tracked_keywords and flags
// them tracked, in one transaction. A keyword already tracked for the same
// country is left as is.
func (s *Store) PromoteResults(ctx context.Context, resultIDs []string) (PromoteSummary, error) {
	var summary PromoteSummary

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return summary, errors.Wrap(err, "failed to begin promotion")
	}
	defer tx.Rollback() //nolint:errcheck

	now := db.FormatTime(time.Now())
	for _, id := range resultIDs {
		var (
			jobID, keyword, country, status string
			pop, diff, opp                  sql.NullInt64
		)
		err := tx.QueryRowContext(ctx, `
			SELECT r.job_id, r.keyword, j.country, r.status, r.popularity, r.difficulty, r.opportunity
			FROM discovery_results r
			JOIN discovery_jobs j ON j.id = r.job_id
			WHERE r.id = ?`, id).Scan(&jobID, &keyword, &country, &status, &pop, &diff, &opp)
		if errors.Is(err, sql.ErrNoRows) {
			summary.Missing++
			continue
		}
		if err != nil {
			return PromoteSummary{}, errors.Wrapf(err, "failed to read result %s", id)
		}
		if ResultStatus(status) != ResultSuccess {
			summary.Skipped++
			continue
		}

		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO tracked_keywords (
				id, keyword, country, popularity, difficulty, opportunity,
				source_job_id, source_result_id, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), keyword, country, pop.Int64, diff.Int64, opp.Int64, jobID, id, now)
		if err != nil {
			return PromoteSummary{}, errors.Wrapf(err, "failed to track %q", keyword)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return PromoteSummary{}, errors.Wrap(err, "failed to read rows affected")
		}
		if n == 0 {
			summary.AlreadyTracked++
		} else {
			summary.Promoted++
		}

		if _, err := tx.ExecContext(ctx, `UPDATE discovery_results SET tracked = 1 WHERE id = ?`, id); err != nil {
			return PromoteSummary{}, errors.Wrapf(err, "failed to flag result %s", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return PromoteSummary{}, errors.Wrap(err, "failed to commit promotion")
	}
	return summary, nil
}

// ListTracked returns tracked keywords by opportunity descending. A non-empty
// country filters the list.
func (s *Store) ListTracked(ctx context.Context, country string) ([]*TrackedKeyword, error) {
	query := `
		SELECT id, keyword, country, popularity, difficulty, opportunity,
		       source_job_id, source_result_id, created_at
		FROM tracked_keywords`
	var args []any
	if country != "" {
		query += ` WHERE country = ?`
		args = append(args, strings.ToLower(country))
	}
	query += ` ORDER BY opportunity DESC, keyword ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query tracked keywords")
	}
	defer rows.Close()

	tracked := []*TrackedKeyword{}
	for rows.Next() {
		var tk TrackedKeyword
		var jobID, resultID sql.NullString
		var createdAt string
		if err := rows.Scan(&tk.ID, &tk.Keyword, &tk.Country, &tk.Popularity, &tk.Difficulty,
			&tk.Opportunity, &jobID, &resultID, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan tracked keyword")
		}
		tk.SourceJobID = jobID.String
		tk.SourceResultID = resultID.String
		if tk.CreatedAt, err = db.ParseTime(createdAt); err != nil {
			return nil, err
		}
		tracked = append(tracked, &tk)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate tracked keywords")
	}
	return tracked, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		job                            Job
		strategyName, status, usedJSON string
		seed, notes, tag               sql.NullString
		createdAt, updatedAt           string
		startedAt, lastRunAt, doneAt   sql.NullString
	)
	err := row.Scan(
		&job.ID, &job.Name, &strategyName, &seed, &job.Country, &job.SearchesPerCycle,
		&job.IntervalMinutes, &job.TotalCycles, &notes, &tag, &status,
		&job.CurrentCycle, &job.TotalKeywords, &usedJSON,
		&createdAt, &startedAt, &lastRunAt, &doneAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Strategy = strategy.Strategy(strategyName)
	job.SeedCategory = seed.String
	job.Notes = notes.String
	job.SessionTag = tag.String
	job.Status = Status(status)

	if job.UsedKeywords, err = decodeList(usedJSON); err != nil {
		return nil, errors.Wrapf(err, "job %s used_keywords", job.ID)
	}
	if job.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	if job.StartedAt, err = db.ParseNullTime(startedAt); err != nil {
		return nil, err
	}
	if job.LastRunAt, err = db.ParseNullTime(lastRunAt); err != nil {
		return nil, err
	}
	if job.CompletedAt, err = db.ParseNullTime(doneAt); err != nil {
		return nil, err
	}
	return &job, nil
}

func scanResult(row scanner) (*Result, error) {
	var (
		r                       Result
		status, createdAt       string
		pop, diff, comp, opp    sql.NullInt64
		topApps, related, errMs sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.JobID, &r.Keyword, &r.Cycle, &status, &pop, &diff,
		&comp, &opp, &topApps, &related, &errMs, &r.Tracked, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	r.Status = ResultStatus(status)
	r.Popularity = int(pop.Int64)
	r.Difficulty = int(diff.Int64)
	r.CompetitorCount = int(comp.Int64)
	r.Opportunity = int(opp.Int64)
	r.ErrorMessage = errMs.String

	if topApps.Valid {
		if r.TopApps, err = decodeList(topApps.String); err != nil {
			return nil, errors.Wrapf(err, "result %s top_apps", r.ID)
		}
	}
	if related.Valid {
		if r.RelatedTerms, err = decodeList(related.String); err != nil {
			return nil, errors.Wrapf(err, "result %s related_terms", r.ID)
		}
	}
	if r.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode list")
	}
	return string(b), nil
}

func decodeList(s string) ([]string, error) {
	list := []string{}
	if s == "" {
		return list, nil
	}
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, errors.Wrap(err, "failed to decode list")
	}
	return list, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
