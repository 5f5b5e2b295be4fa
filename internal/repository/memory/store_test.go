package memory_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
	"github.com/pesio-ai/be-ap-procurement/internal/repository/memory"
)

func newBudget() *repository.Budget {
	b := repository.NewRecord(repository.TypeBudget).(*repository.Budget)
	b.EnterpriseID = "ent-1"
	b.Status = repository.StatusInProgress
	b.Active = true
	b.Title = "Operations 2026"
	b.Amount = decimal.NewFromInt(1000)
	return b
}

func TestStore_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	var id int64
	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		b := newBudget()
		if err := tx.InsertDocument(ctx, b); err != nil {
			return err
		}
		id = b.ID
		return nil
	}))

	boom := stderrors.New("boom")
	err := s.InTx(ctx, func(tx repository.Tx) error {
		rec, err := tx.LockDocument(ctx, repository.TypeBudget, id)
		if err != nil {
			return err
		}
		rec.Header().Status = repository.StatusValidated
		if err := tx.UpdateDocument(ctx, rec); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, &repository.AuditEntry{DocType: repository.TypeBudget, DocumentID: id, EnterpriseID: "ent-1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		rec, err := tx.GetDocument(ctx, repository.TypeBudget, id)
		require.NoError(t, err)
		assert.Equal(t, repository.StatusInProgress, rec.Header().Status)
		return nil
	}))
	trail, err := s.AuditTrail(ctx, repository.TrailFilter{EnterpriseID: "ent-1"})
	require.NoError(t, err)
	assert.Empty(t, trail)
}

func TestStore_RecordsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	b := newBudget()
	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error { return tx.InsertDocument(ctx, b) }))

	b.Title = "mutated outside"
	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		rec, err := tx.GetDocument(ctx, repository.TypeBudget, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "Operations 2026", rec.(*repository.Budget).Title)
		return nil
	}))
}

func TestStore_CodesAreUnique(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	err := s.InTx(ctx, func(tx repository.Tx) error {
		a, b := newBudget(), newBudget()
		require.NoError(t, tx.InsertDocument(ctx, a))
		require.NoError(t, tx.InsertDocument(ctx, b))
		a.Code, b.Code = "BGT-000001-01-2026", "BGT-000001-01-2026"
		require.NoError(t, tx.UpdateDocument(ctx, a))
		return tx.UpdateDocument(ctx, b)
	})
	assert.True(t, errors.IsInvalidInput(err))
}

func TestStore_CountReferences(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		b := newBudget()
		require.NoError(t, tx.InsertDocument(ctx, b))
		for i := 0; i < 2; i++ {
			cl := repository.NewRecord(repository.TypeCreditLine).(*repository.CreditLine)
			cl.EnterpriseID = "ent-1"
			cl.BudgetID = b.ID
			require.NoError(t, tx.InsertDocument(ctx, cl))
		}
		n, err := tx.CountReferences(ctx, repository.TypeCreditLine, repository.TypeBudget, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		return nil
	}))
}

func TestStore_OneActiveThreshold(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now()

	require.NoError(t, s.InTx(ctx, func(tx repository.Tx) error {
		first := &repository.Threshold{EnterpriseID: "ent-1", Amount: decimal.NewFromInt(10), Active: true}
		require.NoError(t, tx.InsertThreshold(ctx, first))

		second := &repository.Threshold{EnterpriseID: "ent-1", Amount: decimal.NewFromInt(20)}
		require.NoError(t, tx.InsertThreshold(ctx, second))
		assert.True(t, errors.IsInvalidInput(tx.SetThresholdActive(ctx, second.ID, true, now)))

		require.NoError(t, tx.DeactivateThresholds(ctx, "ent-1", second.ID, now))
		require.NoError(t, tx.SetThresholdActive(ctx, second.ID, true, now))

		active, err := tx.ActiveThreshold(ctx, "ent-1")
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, second.ID, active.ID)

		none, err := tx.ActiveThreshold(ctx, "ent-2")
		require.NoError(t, err)
		assert.Nil(t, none)
		return nil
	}))
}

func TestStore_RoleDirectory(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	require.NoError(t, s.Assign(ctx, repository.RoleHolder{EnterpriseID: "e", Role: repository.RoleDirector, UserID: "u2"}))
	require.NoError(t, s.Assign(ctx, repository.RoleHolder{EnterpriseID: "e", Role: repository.RoleDirector, UserID: "u1", Email: "old@x"}))
	require.NoError(t, s.Assign(ctx, repository.RoleHolder{EnterpriseID: "e", Role: repository.RoleDirector, UserID: "u1", Email: "new@x"}))
	require.NoError(t, s.Assign(ctx, repository.RoleHolder{EnterpriseID: "other", Role: repository.RoleDirector, UserID: "u3"}))

	holders, err := s.Holders(ctx, "e", repository.RoleDirector)
	require.NoError(t, err)
	require.Len(t, holders, 2)
	assert.Equal(t, "u1", holders[0].UserID)
	assert.Equal(t, "new@x", holders[0].Email)
}
