package service

import (
	"fmt"
	"strings"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
	"github.com/pesio-ai/be-ap-procurement/internal/sequencer"
)

const (
	// DefaultPaymentDelayDays is set on generated purchase orders.
	DefaultPaymentDelayDays = 30
	// ExecutionLeadDays separates a generated purchase order's creation from
	// its execution date.
	ExecutionLeadDays = 7
)

type linkKey struct{ from, to repository.DocType }

// linkRule is what a predecessor must satisfy before a document links to it.
type linkRule struct {
	statuses []repository.Status // empty: any status
	active   bool                // predecessor must be active
	unique   bool                // at most one successor of this type
	// inherited links are copied from another predecessor, never supplied.
	inherited bool
}

var linkRules = map[linkKey]linkRule{
	{repository.TypeCreditLine, repository.TypeBudget}: {
		statuses: []repository.Status{repository.StatusValidated}, active: true,
	},
	{repository.TypePurchaseRequest, repository.TypeNeedSheet}: {
		statuses: []repository.Status{repository.StatusApproved}, unique: true,
	},
	{repository.TypePurchaseOrder, repository.TypePurchaseRequest}: {
		statuses: []repository.Status{repository.StatusApproved}, unique: true,
	},
	{repository.TypeProofOfService, repository.TypePurchaseOrder}: {
		statuses: []repository.Status{repository.StatusApproved}, unique: true,
	},
	{repository.TypeWithdrawalDecision, repository.TypeProofOfService}: {
		unique: true,
	},
	{repository.TypeWithdrawalDecision, repository.TypeCreditLine}: {
		statuses: []repository.Status{repository.StatusValidated}, active: true,
	},
	{repository.TypePaymentOrder, repository.TypeWithdrawalDecision}: {
		statuses: []repository.Status{repository.StatusValidated}, unique: true,
	},
	{repository.TypePaymentOrder, repository.TypeCreditLine}: {
		inherited: true,
	},
}

// ChainAssembler links documents to their predecessors and generates the
// purchase order when a purchase request is approved.
type ChainAssembler struct{}

// Resolve validates and sets every predecessor link of a new record. A link
// is given either as an id on the record or as a code in refs. Predecessors
// are locked so that two concurrent creations cannot both claim a one-to-one
// link.
func (c *ChainAssembler) Resolve(u *unit, rec repository.Record, refs map[repository.DocType]string) error {
	h := rec.Header()
	given := rec.Predecessors()
	preds := map[repository.DocType]repository.Record{}

	for _, l := range repository.LinksFrom(h.Type) {
		rule := linkRules[linkKey{l.From, l.To}]
		if rule.inherited {
			continue
		}

		id, hasID := given[l.To]
		code := strings.TrimSpace(refs[l.To])

		if code != "" {
			parsed, err := sequencer.Parse(code)
			if err != nil {
				return err
			}
			if parsed.Type != l.To {
				return errors.InvalidInput(l.Column, fmt.Sprintf("%s is not a %s code", code, humanType(l.To)))
			}
			found, err := u.tx.FindByCode(u.ctx, l.To, code)
			if err != nil {
				return err
			}
			if hasID && id != found.Header().ID {
				return errors.InvalidInput(l.Column, "id and code refer to different documents")
			}
			id, hasID = found.Header().ID, true
		}

		if !hasID {
			if l.Optional {
				continue
			}
			return errors.InvalidInput(l.Column, fmt.Sprintf("a %s reference is required", humanType(l.To)))
		}

		pred, err := c.check(u, h, l, rule, id)
		if err != nil {
			return err
		}
		rec.SetPredecessor(l.To, id)
		preds[l.To] = pred
	}

	inherit(rec, preds)
	return nil
}

func (c *ChainAssembler) check(u *unit, h *repository.Document, l repository.Link, rule linkRule, id int64) (repository.Record, error) {
	pred, err := u.tx.LockDocument(u.ctx, l.To, id)
	if err != nil {
		return nil, err
	}
	ph := pred.Header()
	if ph.EnterpriseID != h.EnterpriseID {
		return nil, errors.NotFound(humanType(l.To), id)
	}

	if len(rule.statuses) > 0 && !hasStatus(rule.statuses, ph.Status) {
		return nil, errors.InvalidState(fmt.Sprintf("%s %s is %s; linking requires %s",
			humanType(l.To), ph.Code, ph.Status, joinStatuses(rule.statuses)))
	}
	if rule.active && !ph.Active {
		return nil, errors.InvalidState(fmt.Sprintf("%s %s is inactive", humanType(l.To), ph.Code))
	}
	if rule.unique {
		n, err := u.tx.CountReferences(u.ctx, l.From, l.To, id)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, errors.InvalidState(fmt.Sprintf("%s %s already has a %s",
				humanType(l.To), ph.Code, humanType(l.From)))
		}
	}
	return pred, nil
}

// inherit copies amounts and links from predecessors.
func inherit(rec repository.Record, preds map[repository.DocType]repository.Record) {
	switch r := rec.(type) {
	case *repository.ProofOfService:
		if po, ok := preds[repository.TypePurchaseOrder].(*repository.PurchaseOrder); ok {
			r.Amount = po.Amount
		}
	case *repository.WithdrawalDecision:
		if pos, ok := preds[repository.TypeProofOfService].(*repository.ProofOfService); ok && r.Amount.IsZero() {
			r.Amount = pos.Amount
		}
	case *repository.PaymentOrder:
		if wd, ok := preds[repository.TypeWithdrawalDecision].(*repository.WithdrawalDecision); ok {
			r.CreditLineID = nil
			if wd.CreditLineID != nil {
				r.SetPredecessor(repository.TypeCreditLine, *wd.CreditLineID)
			}
			if r.Amount.IsZero() {
				r.Amount = wd.Amount
			}
			if r.Beneficiary == "" {
				r.Beneficiary = wd.Beneficiary
			}
		}
	}
}

// HasSuccessors reports whether any document links to rec.
func (c *ChainAssembler) HasSuccessors(u *unit, rec repository.Record) (bool, error) {
	h := rec.Header()
	for _, l := range repository.LinksTo(h.Type) {
		n, err := u.tx.CountReferences(u.ctx, l.From, l.To, h.ID)
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

// SpawnPurchaseOrder creates the purchase order of an approved purchase
// request in the same unit of work.
func (c *ChainAssembler) SpawnPurchaseOrder(u *unit, rec repository.Record) error {
	pr := rec.(*repository.PurchaseRequest)

	n, err := u.tx.CountReferences(u.ctx, repository.TypePurchaseOrder, repository.TypePurchaseRequest, pr.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return errors.InvalidState(fmt.Sprintf("purchase request %s already has a purchase order", pr.Code))
	}

	po := repository.NewRecord(repository.TypePurchaseOrder).(*repository.PurchaseOrder)
	po.EnterpriseID = pr.EnterpriseID
	po.CreatedBy = u.actor.UserID
	po.PurchaseRequestID = pr.ID
	po.Supplier = pr.Supplier
	po.Description = pr.Description
	po.Amount = pr.Amount
	po.BeneficiaryService = pr.BeneficiaryService
	po.PaymentDelayDays = DefaultPaymentDelayDays
	po.ExecutionDate = u.now.AddDate(0, 0, ExecutionLeadDays)

	if err := u.insert(po, "generated from "+pr.Code); err != nil {
		return err
	}

	u.emit(Event{
		Kind:           EventPurchaseOrderGenerated,
		Document:       po,
		RecipientRoles: repository.RoleSet{repository.RoleAccountant},
	})
	return nil
}

func hasStatus(list []repository.Status, s repository.Status) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func joinStatuses(list []repository.Status) string {
	parts := make([]string, len(list))
	for i, s := range list {
		parts[i] = string(s)
	}
	return strings.Join(parts, " or ")
}
