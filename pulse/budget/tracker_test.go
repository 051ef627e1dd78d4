package budget

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/kwpulse/ai/openrouter"
	"github.com/teranos/kwpulse/db"
	"github.com/teranos/kwpulse/errors"
	qtest "github.com/teranos/kwpulse/internal/testing"
)

func insertUsage(t *testing.T, database *sql.DB, at time.Time, cost float64, success bool) {
	t.Helper()
	_, err := database.Exec(`
		INSERT INTO ai_model_usage (operation_type, entity_type, entity_id, model_name,
			model_provider, request_timestamp, cost, success)
		VALUES ('keyword-suggest', 'category', 'Games', 'test/model', 'openrouter', ?, ?, ?)`,
		db.FormatTime(at), cost, success)
	require.NoError(t, err)
}

func newTracker(t *testing.T, cfg Config, now time.Time) (*Tracker, *sql.DB) {
	t.Helper()
	database := qtest.CreateTestDB(t)
	tr := NewTracker(database, cfg)
	tr.now = func() time.Time { return now }
	return tr, database
}

func TestStatus_SlidingWindows(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tr, database := newTracker(t, Config{DailyUSD: 5}, now)

	insertUsage(t, database, now.Add(-time.Hour), 1.50, true)
	insertUsage(t, database, now.Add(-2*time.Hour), 1.00, true)
	insertUsage(t, database, now.Add(-3*time.Hour), 9.00, false) // failed calls are free
	insertUsage(t, database, now.Add(-3*Day), 2.00, true)
	insertUsage(t, database, now.Add(-20*Day), 4.00, true)
	insertUsage(t, database, now.Add(-40*Day), 100.00, true)

	st, err := tr.Status(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 2.50, st.DailySpend, 1e-9)
	assert.Equal(t, 2, st.DailyOps)
	assert.InDelta(t, 4.50, st.WeeklySpend, 1e-9)
	assert.InDelta(t, 8.50, st.MonthlySpend, 1e-9)
	assert.Equal(t, 4, st.MonthlyOps)
	assert.Equal(t, 5.0, st.Limits.DailyUSD)
}

func TestCheck_EnforcesEachWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"no limits", Config{}, ""},
		{"daily under", Config{DailyUSD: 5}, ""},
		{"daily over", Config{DailyUSD: 4.5}, "daily LLM budget"},
		{"weekly over", Config{DailyUSD: 100, WeeklyUSD: 6}, "weekly LLM budget"},
		{"monthly over", Config{MonthlyUSD: 10}, "monthly LLM budget"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, database := newTracker(t, tt.cfg, now)
			insertUsage(t, database, now.Add(-time.Hour), 4.00, true)
			insertUsage(t, database, now.Add(-5*Day), 2.00, true)
			insertUsage(t, database, now.Add(-25*Day), 3.50, true)

			err := tr.Check(ctx, 0.75)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsServiceUnavailableError(err))
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.NotEmpty(t, errors.GetAllHints(err))
		})
	}
}

func TestSetLimits(t *testing.T) {
	now := time.Now()
	tr, database := newTracker(t, Config{DailyUSD: 1}, now)
	insertUsage(t, database, now.Add(-time.Minute), 2.00, true)

	require.Error(t, tr.Check(context.Background(), 0))

	tr.SetLimits(Config{DailyUSD: 10})
	assert.NoError(t, tr.Check(context.Background(), 0))
	assert.Equal(t, 10.0, tr.Limits().DailyUSD)
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, -1.0, Remaining(0, 3))
	assert.Equal(t, 0.0, Remaining(2, 3))
	assert.InDelta(t, 1.5, Remaining(4, 2.5), 1e-9)
}

func TestStatus_QueryError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectQuery("FROM ai_model_usage").WillReturnError(sql.ErrConnDone)

	tr := NewTracker(mockDB, Config{DailyUSD: 1})
	_, err = tr.Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily window")
	assert.NoError(t, mock.ExpectationsWereMet())
}

type countingChatter struct{ calls int }

func (c *countingChatter) Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	c.calls++
	return &openrouter.ChatResponse{Content: `["sleep sounds"]`}, nil
}

func TestGuard_BlocksOverBudget(t *testing.T) {
	now := time.Now()
	tr, database := newTracker(t, Config{DailyUSD: 1, EstimatePerCallUSD: 0.10}, now)
	inner := &countingChatter{}
	guarded := Guard(inner, tr)

	resp, err := guarded.Chat(context.Background(), openrouter.ChatRequest{UserPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, `["sleep sounds"]`, resp.Content)
	assert.Equal(t, 1, inner.calls)

	insertUsage(t, database, now.Add(-time.Minute), 0.95, true)

	_, err = guarded.Chat(context.Background(), openrouter.ChatRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.IsServiceUnavailableError(err))
	assert.Equal(t, 1, inner.calls)
}
