package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
)

// ThresholdRepository stores routing thresholds. A partial unique index on
// (enterprise_id) WHERE active keeps at most one active row per enterprise.
type ThresholdRepository struct {
	q querier
}

// NewThresholdRepository creates a new ThresholdRepository.
func NewThresholdRepository(q querier) *ThresholdRepository {
	return &ThresholdRepository{q: q}
}

const thresholdColumns = `id, enterprise_id, amount, active, created_by, created_at, updated_at`

// InsertThreshold inserts th and stamps its id.
func (r *ThresholdRepository) InsertThreshold(ctx context.Context, th *Threshold) error {
	query := `
		INSERT INTO thresholds (enterprise_id, amount, active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query,
		th.EnterpriseID,
		th.Amount,
		th.Active,
		th.CreatedBy,
		th.CreatedAt,
		th.UpdatedAt,
	).Scan(&th.ID)
	if err != nil {
		return mapWriteError(err, "failed to create threshold")
	}
	return nil
}

// LockThreshold reads a threshold with FOR UPDATE.
func (r *ThresholdRepository) LockThreshold(ctx context.Context, id int64) (*Threshold, error) {
	query := `SELECT ` + thresholdColumns + ` FROM thresholds WHERE id = $1 FOR UPDATE`

	th, err := scanThreshold(r.q.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("threshold", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read threshold")
	}
	return th, nil
}

// ActiveThreshold returns the enterprise's active threshold or nil.
func (r *ThresholdRepository) ActiveThreshold(ctx context.Context, enterpriseID string) (*Threshold, error) {
	query := `SELECT ` + thresholdColumns + ` FROM thresholds WHERE enterprise_id = $1 AND active`

	th, err := scanThreshold(r.q.QueryRow(ctx, query, enterpriseID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read active threshold")
	}
	return th, nil
}

// SetThresholdActive flips the active flag of one row.
func (r *ThresholdRepository) SetThresholdActive(ctx context.Context, id int64, active bool, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE thresholds SET active = $2, updated_at = $3 WHERE id = $1`, id, active, at)
	if err != nil {
		return mapWriteError(err, "failed to update threshold")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("threshold", id)
	}
	return nil
}

// DeactivateThresholds clears every active row of the enterprise but except.
func (r *ThresholdRepository) DeactivateThresholds(ctx context.Context, enterpriseID string, except int64, at time.Time) error {
	query := `
		UPDATE thresholds
		SET active = FALSE, updated_at = $3
		WHERE enterprise_id = $1 AND active AND id <> $2
	`
	if _, err := r.q.Exec(ctx, query, enterpriseID, except, at); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to deactivate thresholds")
	}
	return nil
}

func scanThreshold(sc rowScanner) (*Threshold, error) {
	th := &Threshold{}
	err := sc.Scan(
		&th.ID,
		&th.EnterpriseID,
		&th.Amount,
		&th.Active,
		&th.CreatedBy,
		&th.CreatedAt,
		&th.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return th, nil
}
