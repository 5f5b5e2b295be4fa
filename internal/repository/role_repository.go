package repository

import (
	"context"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
)

// RoleRepository is the role directory: who holds which role in an
// enterprise. Notification recipients are resolved through it.
type RoleRepository struct {
	q querier
}

// NewRoleRepository creates a new RoleRepository.
func NewRoleRepository(q querier) *RoleRepository {
	return &RoleRepository{q: q}
}

// Holders lists the users holding role in the enterprise.
func (r *RoleRepository) Holders(ctx context.Context, enterpriseID string, role Role) ([]RoleHolder, error) {
	query := `
		SELECT enterprise_id, role, user_id, email
		FROM role_assignments
		WHERE enterprise_id = $1 AND role = $2
		ORDER BY user_id
	`

	rows, err := r.q.Query(ctx, query, enterpriseID, role)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list role holders")
	}
	defer rows.Close()

	var holders []RoleHolder
	for rows.Next() {
		var h RoleHolder
		if err := rows.Scan(&h.EnterpriseID, &h.Role, &h.UserID, &h.Email); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan role holder")
		}
		holders = append(holders, h)
	}
	return holders, rows.Err()
}

// Assign grants a role, updating the contact address if already granted.
func (r *RoleRepository) Assign(ctx context.Context, h RoleHolder) error {
	query := `
		INSERT INTO role_assignments (enterprise_id, role, user_id, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (enterprise_id, role, user_id) DO UPDATE SET email = EXCLUDED.email
	`
	if _, err := r.q.Exec(ctx, query, h.EnterpriseID, h.Role, h.UserID, h.Email); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to assign role")
	}
	return nil
}
