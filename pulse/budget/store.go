// Package budget caps LLM spend for keyword generation.
//
// Spend is read from the ai_model_usage ledger over sliding windows (24h, 7d,
// 30d) so a limit cannot be dodged by waiting for midnight.
package budget

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/kwpulse/db"
	"github.com/teranos/kwpulse/errors"
)

// Store handles budget queries against the ai_model_usage table
type Store struct {
	db *sql.DB
}

// NewStore creates a new budget store
func NewStore(database *sql.DB) *Store {
	return &Store{db: database}
}

// Spend returns the cost and count of successful calls at or after since.
func (s *Store) Spend(ctx context.Context, since time.Time) (totalCost float64, opCount int, err error) {
	query := `
		SELECT
			COALESCE(SUM(COALESCE(cost, 0)), 0),
			COUNT(*)
		FROM ai_model_usage
		WHERE request_timestamp >= ? AND success = 1`

	err = s.db.QueryRowContext(ctx, query, db.FormatTime(since)).Scan(&totalCost, &opCount)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to query spend")
	}
	return totalCost, opCount, nil
}
