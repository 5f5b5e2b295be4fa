package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
)

// TrailRepository appends and reads the audit log and the validation ledger.
// Both tables carry a trigger rejecting UPDATE and DELETE, so appends are the
// only mutations exposed.
type TrailRepository struct {
	q querier
}

// NewTrailRepository creates a new TrailRepository.
func NewTrailRepository(q querier) *TrailRepository {
	return &TrailRepository{q: q}
}

// AppendAudit inserts one audit entry.
func (r *TrailRepository) AppendAudit(ctx context.Context, e *AuditEntry) error {
	query := `
		INSERT INTO audit_entries
		    (document_type, document_id, enterprise_id,
		     actor_id, actor_role,
		     old_status, new_status, old_active, new_active,
		     note, created_at)
		VALUES ($1, $2, $3,
		        $4, $5,
		        $6, $7, $8, $9,
		        $10, $11)
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query,
		e.DocType,
		e.DocumentID,
		e.EnterpriseID,
		e.ActorID,
		e.ActorRole,
		e.OldStatus,
		e.NewStatus,
		e.OldActive,
		e.NewActive,
		e.Note,
		e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// AppendValidation inserts one validation-ledger entry.
func (r *TrailRepository) AppendValidation(ctx context.Context, e *ValidationEntry) error {
	query := `
		INSERT INTO validation_entries
		    (document_type, document_id, enterprise_id,
		     actor_id, actor_role, outcome, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query,
		e.DocType,
		e.DocumentID,
		e.EnterpriseID,
		e.ActorID,
		e.ActorRole,
		e.Outcome,
		e.Comment,
		e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append validation entry")
	}
	return nil
}

// AuditTrail returns matching audit entries oldest-first.
func (r *TrailRepository) AuditTrail(ctx context.Context, f TrailFilter) ([]*AuditEntry, error) {
	where, args, err := trailWhere(f)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, document_type, document_id, enterprise_id,
		       actor_id, actor_role,
		       old_status, new_status, old_active, new_active,
		       note, created_at
		FROM audit_entries
		WHERE ` + where + `
		ORDER BY created_at ASC, id ASC` + limitClause(f.Limit)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit trail")
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ValidationTrail returns matching validation entries oldest-first.
func (r *TrailRepository) ValidationTrail(ctx context.Context, f TrailFilter) ([]*ValidationEntry, error) {
	where, args, err := trailWhere(f)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, document_type, document_id, enterprise_id,
		       actor_id, actor_role, outcome, comment, created_at
		FROM validation_entries
		WHERE ` + where + `
		ORDER BY created_at ASC, id ASC` + limitClause(f.Limit)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get validation trail")
	}
	defer rows.Close()

	var entries []*ValidationEntry
	for rows.Next() {
		e, err := scanValidation(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAudit(sc rowScanner) (*AuditEntry, error) {
	e := &AuditEntry{}
	err := sc.Scan(
		&e.ID,
		&e.DocType,
		&e.DocumentID,
		&e.EnterpriseID,
		&e.ActorID,
		&e.ActorRole,
		&e.OldStatus,
		&e.NewStatus,
		&e.OldActive,
		&e.NewActive,
		&e.Note,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
	}
	return e, nil
}

func scanValidation(sc rowScanner) (*ValidationEntry, error) {
	e := &ValidationEntry{}
	err := sc.Scan(
		&e.ID,
		&e.DocType,
		&e.DocumentID,
		&e.EnterpriseID,
		&e.ActorID,
		&e.ActorRole,
		&e.Outcome,
		&e.Comment,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan validation entry")
	}
	return e, nil
}

func trailWhere(f TrailFilter) (string, []any, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.DocType != "" {
		add("document_type = $%d", f.DocType)
	}
	if f.DocumentID != 0 {
		add("document_id = $%d", f.DocumentID)
	}
	if f.ActorID != "" {
		add("actor_id = $%d", f.ActorID)
	}
	if f.EnterpriseID != "" {
		add("enterprise_id = $%d", f.EnterpriseID)
	}
	if len(conds) == 0 {
		return "", nil, errors.InvalidInput("filter", "a document, actor or enterprise is required")
	}
	return strings.Join(conds, " AND "), args, nil
}

func limitClause(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", n)
}
