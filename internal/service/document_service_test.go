package service_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
	"github.com/pesio-ai/be-ap-procurement/internal/service"
)

func TestCreate_AssignsCodeAndWritesAudit(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)

	rec, err := f.docs.Create(f.ctx, as(repository.RoleManager),
		&repository.Budget{Title: "Operations", Amount: dec("2500000")}, nil)
	require.NoError(t, err)

	b := rec.(*repository.Budget)
	assert.Equal(t, int64(1), b.ID)
	assert.Equal(t, "BGT-000001-03-2026", b.Code)
	assert.Equal(t, repository.StatusInProgress, b.Status)
	assert.Equal(t, repository.PhaseOpen, b.Phase)
	assert.Equal(t, enterprise, b.EnterpriseID)
	assert.Equal(t, "manager-1", b.CreatedBy)
	assert.Equal(t, 2026, b.FiscalYear)
	assert.True(t, b.Active)

	audit := f.audit(repository.TypeBudget, b.ID)
	require.Len(t, audit, 1)
	assert.Equal(t, repository.Status(""), audit[0].OldStatus)
	assert.Equal(t, repository.StatusInProgress, audit[0].NewStatus)
	assert.Empty(t, f.validations(repository.TypeBudget, b.ID))

	created := f.notifier.ofKind(service.EventDocumentCreated)
	require.Len(t, created, 1)
	assert.Equal(t, repository.RoleSet{repository.RoleDirector}, created[0].RecipientRoles)
}

func TestCreate_IgnoresClientControlledHeader(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)

	in := &repository.NeedSheet{Object: "Chairs"}
	in.Status = repository.StatusApproved
	in.EnterpriseID = "ent-other"
	in.ID = 99

	ns := f.must(f.docs.Create(f.ctx, as(repository.RoleBuyer), in, nil)).Header()
	assert.Equal(t, repository.StatusInProgress, ns.Status)
	assert.Equal(t, enterprise, ns.EnterpriseID)
	assert.Equal(t, int64(1), ns.ID)
}

func TestCreate_Unauthorized(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)

	cases := []struct {
		role repository.Role
		rec  repository.Record
	}{
		{repository.RoleBuyer, &repository.Budget{Title: "x", Amount: dec("1")}},
		{repository.RoleAccountant, &repository.CreditLine{Label: "x", Allocated: dec("1")}},
		{repository.RoleDirector, &repository.NeedSheet{Object: "x"}},
		{repository.RoleManager, &repository.PurchaseRequest{Supplier: "x", Amount: dec("1")}},
		{repository.RoleAccountant, &repository.PurchaseOrder{Supplier: "x", Amount: dec("1")}},
		{repository.RoleDirector, &repository.PurchaseOrder{Supplier: "x", Amount: dec("1")}},
		{repository.RoleAccountant, &repository.ProofOfService{}},
		{repository.RoleResponsible, &repository.WithdrawalDecision{}},
		{repository.RoleDirector, &repository.PaymentOrder{}},
	}
	for _, tc := range cases {
		_, err := f.docs.Create(f.ctx, as(tc.role), tc.rec, nil)
		assert.True(t, errors.IsUnauthorized(err), "%s creating %s: %v", tc.role, repository.TypeOf(tc.rec), err)
	}
}

func TestCreate_ChecksFields(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)

	_, err := f.docs.Create(f.ctx, as(repository.RoleManager), &repository.Budget{Title: " ", Amount: dec("1")}, nil)
	assert.True(t, errors.IsInvalidInput(err))

	_, err = f.docs.Create(f.ctx, as(repository.RoleBuyer), &repository.PurchaseRequest{Supplier: "x", Amount: dec("0")}, nil)
	assert.True(t, errors.IsInvalidInput(err))

	_, err = f.docs.Create(f.ctx, as(repository.RoleBuyer), nil, nil)
	assert.True(t, errors.IsInvalidInput(err))
}

func TestTransitions_UnauthorizedRoleLeavesStatusUnchanged(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)
	docs := f.seedAll()

	for _, dt := range repository.DocTypes {
		def, err := f.docs.Definition(dt)
		require.NoError(t, err)
		id := docs[dt]

		for _, action := range []service.Action{service.ActionValidate, service.ActionApprove} {
			step := def.Validate
			call := f.docs.Validate
			if action == service.ActionApprove {
				step, call = def.Approve, f.docs.Approve
			}
			for _, role := range repository.Roles {
				if step != nil && step.Roles.Has(role) {
					continue
				}
				before := f.status(dt, id)
				_, err := call(f.ctx, as(role), dt, id, "")
				assert.True(t, errors.IsUnauthorized(err), "%s %s by %s: %v", action, dt, role, err)
				assert.Equal(t, before, f.status(dt, id))
			}
		}
	}
}

func TestReject_BlankCommentIsInvalidInput(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)
	docs := f.seedAll()

	for _, dt := range repository.DocTypes {
		for _, comment := range []string{"", "   ", "\t\n"} {
			before := f.status(dt, docs[dt])
			_, err := f.docs.Reject(f.ctx, as(repository.RoleDirector), dt, docs[dt], comment)
			assert.True(t, errors.IsInvalidInput(err), "%s: %v", dt, err)
			assert.Equal(t, before, f.status(dt, docs[dt]))
		}
	}
}

func TestNeedSheet_ValidateThenApprove(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)
	ns := f.must(f.docs.Create(f.ctx, as(repository.RoleTreasury), &repository.NeedSheet{Object: "Desks"}, nil))
	id := ns.Header().ID

	_, err := f.docs.Approve(f.ctx, as(repository.RoleAccountant), repository.TypeNeedSheet, id, "")
	assert.True(t, errors.IsInvalidState(err))

	rec := f.must(f.docs.Validate(f.ctx, as(repository.RoleBuyerSupervisor), repository.TypeNeedSheet, id, "looks fine"))
	assert.Equal(t, repository.StatusValidated, rec.Header().Status)
	assert.Equal(t, repository.PhaseOpen, rec.Header().Phase)

	validated := f.notifier.ofKind(service.EventDocumentValidated)
	require.Len(t, validated, 1)
	assert.Equal(t, repository.RoleSet{repository.RoleAccountant}, validated[0].RecipientRoles)

	_, err = f.docs.Validate(f.ctx, as(repository.RoleBuyerSupervisor), repository.TypeNeedSheet, id, "")
	assert.True(t, errors.IsInvalidState(err))

	rec = f.must(f.docs.Approve(f.ctx, as(repository.RoleAccountant), repository.TypeNeedSheet, id, ""))
	assert.Equal(t, repository.StatusApproved, rec.Header().Status)
	assert.Equal(t, repository.PhaseTerminal, rec.Header().Phase)

	approved := f.notifier.ofKind(service.EventDocumentApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, []string{"treasury-1"}, approved[0].RecipientUserIDs)

	_, err = f.docs.Reject(f.ctx, as(repository.RoleAccountant), repository.TypeNeedSheet, id, "too late")
	assert.True(t, errors.IsInvalidState(err))
}

func TestTransitions_WriteOneAuditAndOneValidationEach(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)
	pr := f.purchaseRequest("1200")

	f.must(f.docs.Validate(f.ctx, as(repository.RoleBuyerSupervisor), repository.TypePurchaseRequest, pr.ID, "ok"))
	f.must(f.docs.Approve(f.ctx, as(repository.RoleAccountant), repository.TypePurchaseRequest, pr.ID, ""))

	audit := f.audit(repository.TypePurchaseRequest, pr.ID)
	validations := f.validations(repository.TypePurchaseRequest, pr.ID)
	require.Len(t, audit, 3)
	require.Len(t, validations, 2)

	for i, v := range validations {
		a := audit[i+1]
		assert.Equal(t, a.CreatedAt, v.CreatedAt)
		assert.Equal(t, a.ActorID, v.ActorID)
	}
	assert.Equal(t, repository.OutcomeValidated, validations[0].Outcome)
	assert.Equal(t, "ok", validations[0].Comment)
	assert.Equal(t, repository.RoleBuyerSupervisor, validations[0].ActorRole)
	assert.Equal(t, repository.OutcomeApproved, validations[1].Outcome)
	assert.Equal(t, repository.StatusValidated, audit[2].OldStatus)
	assert.Equal(t, repository.StatusApproved, audit[2].NewStatus)
}

func TestReject_RecordsComment(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)
	pr := f.purchaseRequest("500")

	rec := f.must(f.docs.Reject(f.ctx, as(repository.RoleBuyerSupervisor), repository.TypePurchaseRequest, pr.ID, "  supplier not approved "))
	assert.Equal(t, repository.StatusRejected, rec.Header().Status)
	assert.Equal(t, repository.PhaseTerminal, rec.Header().Phase)

	v := f.validations(repository.TypePurchaseRequest, pr.ID)
	require.Len(t, v, 1)
	assert.Equal(t, repository.OutcomeRejected, v[0].Outcome)
	assert.Equal(t, "supplier not approved", v[0].Comment)

	rejected := f.notifier.ofKind(service.EventDocumentRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, []string{"buyer-1"}, rejected[0].RecipientUserIDs)
	assert.Equal(t, "supplier not approved", rejected[0].Comment)

	_, err := f.docs.Reject(f.ctx, as(repository.RoleAccountant), repository.TypePurchaseRequest, pr.ID, "again")
	assert.True(t, errors.IsInvalidState(err))

	_, err = f.docs.Reject(f.ctx, as(repository.RoleBuyer), repository.TypePurchaseRequest, pr.ID, "mine")
	assert.True(t, errors.IsUnauthorized(err))
}

func TestOtherEnterprise_IsNotFound(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)
	pr := f.purchaseRequest("500")

	outsider := as(repository.RoleBuyerSupervisor)
	outsider.EnterpriseID = "ent-2"

	_, err := f.docs.Validate(f.ctx, outsider, repository.TypePurchaseRequest, pr.ID, "")
	assert.True(t, errors.IsNotFound(err))

	_, err = f.docs.Get(f.ctx, outsider, repository.TypePurchaseRequest, pr.ID)
	assert.True(t, errors.IsNotFound(err))

	_, err = f.docs.GetByCode(f.ctx, outsider, pr.Code)
	assert.True(t, errors.IsNotFound(err))

	assert.Equal(t, repository.StatusInProgress, f.status(repository.TypePurchaseRequest, pr.ID))
}

func TestGetByCode(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)
	pr := f.purchaseRequest("500")

	rec, err := f.docs.GetByCode(f.ctx, as(repository.RoleAccountant), pr.Code)
	require.NoError(t, err)
	assert.Equal(t, pr.ID, rec.Header().ID)

	_, err = f.docs.GetByCode(f.ctx, as(repository.RoleAccountant), "nope")
	assert.True(t, errors.IsInvalidInput(err))
}

func TestModify(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)

	t.Run("demotes validated document", func(t *testing.T) {
		pr := f.purchaseRequest("500")
		f.must(f.docs.Validate(f.ctx, as(repository.RoleBuyerSupervisor), repository.TypePurchaseRequest, pr.ID, ""))

		rec := f.must(f.docs.Modify(f.ctx, as(repository.RoleTreasury), repository.TypePurchaseRequest, pr.ID,
			&repository.PurchaseRequest{Supplier: "Globex", Amount: dec("650")}))
		got := rec.(*repository.PurchaseRequest)
		assert.Equal(t, repository.StatusInProgress, got.Status)
		assert.Equal(t, "Globex", got.Supplier)
		assert.True(t, dec("650").Equal(got.Amount))

		audit := f.audit(repository.TypePurchaseRequest, pr.ID)
		last := audit[len(audit)-1]
		assert.Equal(t, repository.StatusValidated, last.OldStatus)
		assert.Equal(t, repository.StatusInProgress, last.NewStatus)
		assert.Len(t, f.validations(repository.TypePurchaseRequest, pr.ID), 1)
	})

	t.Run("rejected stays rejected", func(t *testing.T) {
		pr := f.purchaseRequest("500")
		f.must(f.docs.Reject(f.ctx, as(repository.RoleBuyerSupervisor), repository.TypePurchaseRequest, pr.ID, "no"))

		rec := f.must(f.docs.Modify(f.ctx, as(repository.RoleBuyer), repository.TypePurchaseRequest, pr.ID,
			&repository.PurchaseRequest{Supplier: "Globex", Amount: dec("10")}))
		assert.Equal(t, repository.StatusRejected, rec.Header().Status)
	})

	t.Run("unauthorized role", func(t *testing.T) {
		pr := f.purchaseRequest("500")
		_, err := f.docs.Modify(f.ctx, as(repository.RoleAccountant), repository.TypePurchaseRequest, pr.ID,
			&repository.PurchaseRequest{Supplier: "Globex", Amount: dec("10")})
		assert.True(t, errors.IsUnauthorized(err))
	})

	t.Run("payload of another type", func(t *testing.T) {
		pr := f.purchaseRequest("500")
		_, err := f.docs.Modify(f.ctx, as(repository.RoleBuyer), repository.TypePurchaseRequest, pr.ID,
			&repository.NeedSheet{Object: "x"})
		assert.True(t, errors.IsInvalidInput(err))
	})

	t.Run("invalid fields roll back", func(t *testing.T) {
		pr := f.purchaseRequest("500")
		_, err := f.docs.Modify(f.ctx, as(repository.RoleBuyer), repository.TypePurchaseRequest, pr.ID,
			&repository.PurchaseRequest{Supplier: "", Amount: dec("10")})
		assert.True(t, errors.IsInvalidInput(err))
		assert.Equal(t, "ACME Supplies", f.get(repository.TypePurchaseRequest, pr.ID).(*repository.PurchaseRequest).Supplier)
	})

	t.Run("sealed by successor", func(t *testing.T) {
		pr, _ := f.approvedPurchaseRequest("500")
		_, err := f.docs.Modify(f.ctx, as(repository.RoleBuyer), repository.TypePurchaseRequest, pr.ID,
			&repository.PurchaseRequest{Supplier: "Globex", Amount: dec("10")})
		assert.True(t, errors.IsInvalidState(err))
	})

	t.Run("proof of service is immutable", func(t *testing.T) {
		pos := f.proofOfService("500")
		_, err := f.docs.Modify(f.ctx, as(repository.RoleBuyer), repository.TypeProofOfService, pos.ID,
			&repository.ProofOfService{Observations: "changed"})
		assert.True(t, errors.IsInvalidState(err))
	})

	t.Run("validated decision is sealed", func(t *testing.T) {
		wd := f.validatedDecision("500", nil)
		_, err := f.docs.Modify(f.ctx, as(repository.RoleAccountant), repository.TypeWithdrawalDecision, wd.ID,
			&repository.WithdrawalDecision{Amount: dec("10")})
		assert.True(t, errors.IsInvalidState(err))
	})

	t.Run("credit line edit recomputes remaining", func(t *testing.T) {
		b := f.budget("1000000")
		cl := f.must(f.docs.Create(f.ctx, as(repository.RoleManager),
			&repository.CreditLine{BudgetID: b.ID, Label: "Travel", Allocated: dec("1000")}, nil)).(*repository.CreditLine)
		assert.True(t, dec("1000").Equal(cl.Remaining))

		rec := f.must(f.docs.Modify(f.ctx, as(repository.RoleDirector), repository.TypeCreditLine, cl.ID,
			&repository.CreditLine{Label: "Travel", Allocated: dec("1500"), Committed: dec("900")}))
		got := rec.(*repository.CreditLine)
		assert.True(t, got.Committed.IsZero())
		assert.True(t, dec("1500").Equal(got.Remaining))
	})
}

func TestSetActive(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)
	b := f.budget("1000000")

	_, err := f.docs.SetActive(f.ctx, as(repository.RoleManager), repository.TypeBudget, b.ID, false)
	assert.True(t, errors.IsUnauthorized(err))

	_, err = f.docs.SetActive(f.ctx, as(repository.RoleDirector), repository.TypePurchaseRequest, 1, false)
	assert.True(t, errors.IsUnauthorized(err))

	rec := f.must(f.docs.SetActive(f.ctx, as(repository.RoleDirector), repository.TypeBudget, b.ID, false))
	assert.False(t, rec.Header().Active)
	assert.Equal(t, repository.StatusValidated, rec.Header().Status)

	audit := f.audit(repository.TypeBudget, b.ID)
	last := audit[len(audit)-1]
	assert.True(t, last.OldActive)
	assert.False(t, last.NewActive)
	assert.Equal(t, last.OldStatus, last.NewStatus)

	f.must(f.docs.SetActive(f.ctx, as(repository.RoleDirector), repository.TypeBudget, b.ID, false))
	assert.Len(t, f.audit(repository.TypeBudget, b.ID), len(audit))

	_, err = f.docs.Create(f.ctx, as(repository.RoleManager),
		&repository.CreditLine{BudgetID: b.ID, Label: "x", Allocated: dec("1")}, nil)
	assert.True(t, errors.IsInvalidState(err))
}

func TestHistory(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)
	pr := f.purchaseRequest("500")
	f.must(f.docs.Reject(f.ctx, as(repository.RoleAccountant), repository.TypePurchaseRequest, pr.ID, "over budget"))

	h, err := f.docs.History(f.ctx, as(repository.RoleBuyer), repository.TypePurchaseRequest, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, pr.Code, h.Document.Header().Code)
	assert.Len(t, h.Audit, 2)
	require.Len(t, h.Validations, 1)
	assert.Equal(t, "over budget", h.Validations[0].Comment)
}

func TestConcurrentValidate_OnlyOneSucceeds(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)
	ns := f.must(f.docs.Create(f.ctx, as(repository.RoleBuyer), &repository.NeedSheet{Object: "Paper"}, nil))
	id := ns.Header().ID

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.docs.Validate(f.ctx, as(repository.RoleBuyerSupervisor), repository.TypeNeedSheet, id, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	for _, err := range failures {
		assert.True(t, errors.IsInvalidState(err), err)
	}
	assert.Len(t, f.validations(repository.TypeNeedSheet, id), 1)
}

func TestSideEffectFailures_DoNotUndoTransition(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)
	f.notifier.err = assert.AnError
	f.renderer.err = assert.AnError

	b := f.must(f.docs.Create(f.ctx, as(repository.RoleManager), &repository.Budget{Title: "x", Amount: dec("10")}, nil))
	rec, err := f.docs.Approve(f.ctx, as(repository.RoleDirector), repository.TypeBudget, b.Header().ID, "")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusValidated, rec.Header().Status)
	assert.Empty(t, rec.Header().DocumentURL)
	assert.Equal(t, repository.StatusValidated, f.status(repository.TypeBudget, b.Header().ID))
}

func TestRendering(t *testing.T) {
	f := newFixture(t, service.LedgerUncapped)

	po := f.approvedPurchaseOrder("900")
	assert.Equal(t, "https://docs.example.test/"+po.Code+".pdf", po.DocumentURL)
	assert.Equal(t, po.DocumentURL, f.get(repository.TypePurchaseOrder, po.ID).Header().DocumentURL)

	pos := f.must(f.docs.Create(f.ctx, as(repository.RoleBuyer), &repository.ProofOfService{PurchaseOrderID: po.ID}, nil))
	assert.NotEmpty(t, pos.Header().DocumentURL)
	assert.Equal(t, repository.PhaseTerminal, pos.Header().Phase)

	// need sheets and purchase requests are never rendered
	for _, dt := range f.renderer.calls {
		assert.NotEqual(t, repository.TypeNeedSheet, dt)
		assert.NotEqual(t, repository.TypePurchaseRequest, dt)
	}
}
