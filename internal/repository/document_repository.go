package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
)

// querier is satisfied by both *database.DB and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DocumentRepository persists the eight document types. Each type lives in
// its own table with the common header columns.
type DocumentRepository struct {
	q querier
}

// NewDocumentRepository creates a repository over q.
func NewDocumentRepository(q querier) *DocumentRepository {
	return &DocumentRepository{q: q}
}

func specFor(t DocType) (tableSpec, error) {
	spec, ok := tables[t]
	if !ok {
		return tableSpec{}, errors.InvalidInput("type", fmt.Sprintf("unknown document type %q", t))
	}
	return spec, nil
}

// InsertDocument inserts rec and stamps its generated id.
func (r *DocumentRepository) InsertDocument(ctx context.Context, rec Record) error {
	h := rec.Header()
	spec, err := specFor(h.Type)
	if err != nil {
		return err
	}

	cols := append([]string{"enterprise_id", "created_by", "status", "active", "document_url", "created_at", "updated_at"}, spec.columns...)
	args := append([]any{h.EnterpriseID, h.CreatedBy, h.Status, h.Active, h.DocumentURL, h.CreatedAt, h.UpdatedAt}, spec.values(rec)...)

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (%s)
		RETURNING id
	`, spec.name, strings.Join(cols, ", "), placeholders(1, len(cols)))

	if err := r.q.QueryRow(ctx, query, args...).Scan(&h.ID); err != nil {
		return mapWriteError(err, fmt.Sprintf("failed to insert %s", spec.name))
	}
	return nil
}

// UpdateDocument writes every mutable column of rec.
func (r *DocumentRepository) UpdateDocument(ctx context.Context, rec Record) error {
	h := rec.Header()
	spec, err := specFor(h.Type)
	if err != nil {
		return err
	}

	sets := []string{"code = NULLIF($2, '')", "status = $3", "active = $4", "document_url = $5", "updated_at = $6"}
	for i, c := range spec.columns {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+7))
	}
	args := append([]any{h.ID, h.Code, h.Status, h.Active, h.DocumentURL, h.UpdatedAt}, spec.values(rec)...)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $1`, spec.name, strings.Join(sets, ", "))

	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return mapWriteError(err, fmt.Sprintf("failed to update %s", spec.name))
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound(strings.ToLower(string(h.Type)), h.ID)
	}
	return nil
}

// GetDocument reads one record without locking it.
func (r *DocumentRepository) GetDocument(ctx context.Context, t DocType, id int64) (Record, error) {
	return r.selectOne(ctx, t, "id = $1", "", id)
}

// LockDocument reads one record with SELECT ... FOR UPDATE.
func (r *DocumentRepository) LockDocument(ctx context.Context, t DocType, id int64) (Record, error) {
	return r.selectOne(ctx, t, "id = $1", "FOR UPDATE", id)
}

// FindByCode resolves a generated code.
func (r *DocumentRepository) FindByCode(ctx context.Context, t DocType, code string) (Record, error) {
	return r.selectOne(ctx, t, "code = $1", "", code)
}

// CountReferences counts rows of type from whose link column points at id.
func (r *DocumentRepository) CountReferences(ctx context.Context, from, to DocType, id int64) (int, error) {
	spec, err := specFor(from)
	if err != nil {
		return 0, err
	}
	var column string
	for _, l := range LinksFrom(from) {
		if l.To == to {
			column = l.Column
		}
	}
	if column == "" {
		return 0, nil
	}

	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`, spec.name, column)
	if err := r.q.QueryRow(ctx, query, id).Scan(&n); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count references")
	}
	return n, nil
}

func (r *DocumentRepository) selectOne(ctx context.Context, t DocType, where, suffix string, arg any) (Record, error) {
	spec, err := specFor(t)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s %s`, spec.selectList(), spec.name, where, suffix)

	rec := NewRecord(t)
	err = r.q.QueryRow(ctx, query, arg).Scan(append(headerTargets(rec.Header()), spec.targets(rec)...)...)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound(strings.ToLower(string(t)), arg)
	}
	if err != nil {
		return nil, mapWriteError(err, fmt.Sprintf("failed to read %s", spec.name))
	}
	return rec, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ps, ", ")
}

// mapWriteError turns constraint violations and lost lock races into
// caller errors.
func mapWriteError(err error, msg string) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return errors.InvalidInput(pgErr.ConstraintName, "duplicate value violates "+pgErr.ConstraintName)
		case "23503":
			return errors.New(errors.ErrCodeNotFound, "referenced document does not exist")
		case "40001", "40P01":
			return errors.Conflict("concurrent update, retry the request")
		}
	}
	return errors.Wrap(err, errors.ErrCodeInternal, msg)
}
