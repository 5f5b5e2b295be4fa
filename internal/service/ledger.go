package service

import (
	"fmt"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
)

// LedgerPolicy decides whether commitments may exceed a credit line's
// allocation.
type LedgerPolicy string

const (
	// LedgerUncapped lets committed exceed allocated; remaining floors at 0.
	LedgerUncapped LedgerPolicy = "uncapped"
	// LedgerCapped refuses a commitment that would exceed allocated.
	LedgerCapped LedgerPolicy = "capped"
)

// CreditLedger owns the committed and remaining balances of credit lines.
// It is only driven by withdrawal-decision and payment-order hooks, inside
// their unit of work, and locks the credit line row before touching it.
type CreditLedger struct {
	policy LedgerPolicy
}

// NewCreditLedger creates a ledger with the given policy.
func NewCreditLedger(policy LedgerPolicy) *CreditLedger {
	if policy == "" {
		policy = LedgerUncapped
	}
	return &CreditLedger{policy: policy}
}

// Policy returns the active commitment policy.
func (l *CreditLedger) Policy() LedgerPolicy { return l.policy }

// CommitDecision adds a validated withdrawal decision to its credit line.
func (l *CreditLedger) CommitDecision(u *unit, rec repository.Record) error {
	wd := rec.(*repository.WithdrawalDecision)
	if wd.CreditLineID == nil {
		return nil
	}

	cl, err := l.lock(u, *wd.CreditLineID)
	if err != nil {
		return err
	}
	if !cl.Active || cl.Status != repository.StatusValidated {
		return errors.InvalidState(fmt.Sprintf(
			"credit line %s is not an active validated line", cl.Code))
	}

	committed := cl.Committed.Add(wd.Amount)
	if l.policy == LedgerCapped && committed.GreaterThan(cl.Allocated) {
		return errors.InvalidState(fmt.Sprintf(
			"credit line %s: committing %s would exceed the allocation of %s (committed %s)",
			cl.Code, wd.Amount.StringFixed(2), cl.Allocated.StringFixed(2), cl.Committed.StringFixed(2)))
	}
	cl.Committed = committed
	cl.Recompute()

	return l.save(u, cl, fmt.Sprintf("commit %s from %s", wd.Amount.StringFixed(2), wd.Code))
}

// SettlePayment recomputes the remaining balance of the payment order's
// credit line. Committed is left unchanged.
func (l *CreditLedger) SettlePayment(u *unit, rec repository.Record) error {
	po := rec.(*repository.PaymentOrder)
	if po.CreditLineID == nil {
		return nil
	}

	cl, err := l.lock(u, *po.CreditLineID)
	if err != nil {
		return err
	}
	cl.Recompute()

	return l.save(u, cl, fmt.Sprintf("payment %s executed for %s", po.Code, po.Amount.StringFixed(2)))
}

func (l *CreditLedger) lock(u *unit, id int64) (*repository.CreditLine, error) {
	rec, err := u.tx.LockDocument(u.ctx, repository.TypeCreditLine, id)
	if err != nil {
		return nil, err
	}
	return rec.(*repository.CreditLine), nil
}

func (l *CreditLedger) save(u *unit, cl *repository.CreditLine, what string) error {
	cl.UpdatedAt = u.now
	if err := u.tx.UpdateDocument(u.ctx, cl); err != nil {
		return err
	}
	return u.tx.AppendAudit(u.ctx, &repository.AuditEntry{
		DocType:      repository.TypeCreditLine,
		DocumentID:   cl.ID,
		EnterpriseID: cl.EnterpriseID,
		ActorID:      u.actor.UserID,
		ActorRole:    u.actor.Role,
		OldStatus:    cl.Status,
		NewStatus:    cl.Status,
		OldActive:    cl.Active,
		NewActive:    cl.Active,
		Note:         fmt.Sprintf("%s: committed=%s remaining=%s", what, cl.Committed.StringFixed(2), cl.Remaining.StringFixed(2)),
		CreatedAt:    u.now,
	})
}
