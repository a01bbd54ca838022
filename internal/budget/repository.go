package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles usage_records PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new usage ledger Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends a usage record to the ledger.
func (r *Repository) Insert(ctx context.Context, rec *UsageRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO usage_records (id, user_id, model_tier, model, prompt_tokens, completion_tokens, cost, feature, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.UserID, rec.ModelTier, rec.Model,
		rec.PromptTokens, rec.CompletionTokens, rec.Cost, rec.Feature, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

// SumCostBetween returns the user's total recorded cost in [from, to).
func (r *Repository) SumCostBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost), 0)
		 FROM usage_records
		 WHERE user_id = $1 AND created_at >= $2 AND created_at < $3`,
		userID, from, to,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing usage cost: %w", err)
	}
	return total, nil
}

// CountByFeatureBetween returns how many billed calls the user made for a
// feature in [from, to).
func (r *Repository) CountByFeatureBetween(ctx context.Context, userID uuid.UUID, feature string, from, to time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM usage_records
		 WHERE user_id = $1 AND feature = $2 AND created_at >= $3 AND created_at < $4`,
		userID, feature, from, to,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting feature usage: %w", err)
	}
	return count, nil
}

// ListByUser returns paginated ledger rows for a user, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]UsageRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var totalCount int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM usage_records WHERE user_id = $1`, userID,
	).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("counting usage records: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, model_tier, model, prompt_tokens, completion_tokens, cost, feature, created_at
		 FROM usage_records
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("querying usage records: %w", err)
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var rec UsageRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ModelTier, &rec.Model,
			&rec.PromptTokens, &rec.CompletionTokens, &rec.Cost, &rec.Feature, &rec.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning usage record: %w", err)
		}
		records = append(records, rec)
	}

	return records, totalCount, nil
}
