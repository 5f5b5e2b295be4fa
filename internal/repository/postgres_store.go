package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ap-procurement/internal/common/database"
)

// PostgresStore implements Store on a pgx pool. Every unit of work runs in
// one database transaction; documents are locked with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db *database.DB
	*TrailRepository
	*RoleRepository
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{
		db:              db,
		TrailRepository: NewTrailRepository(db),
		RoleRepository:  NewRoleRepository(db),
	}
}

type pgTx struct {
	*DocumentRepository
	*TrailRepository
	*ThresholdRepository
}

// InTx runs fn in a transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return fn(&pgTx{
			DocumentRepository:  NewDocumentRepository(tx),
			TrailRepository:     NewTrailRepository(tx),
			ThresholdRepository: NewThresholdRepository(tx),
		})
	})
}

var _ Store = (*PostgresStore)(nil)
