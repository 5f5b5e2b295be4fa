package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-procurement/internal/common/logger"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
	"github.com/pesio-ai/be-ap-procurement/internal/repository/memory"
	"github.com/pesio-ai/be-ap-procurement/internal/service"
)

const enterprise = "ent-1"

func as(role repository.Role) service.Actor {
	return service.Actor{
		UserID:       strings.ToLower(string(role)) + "-1",
		Role:         role,
		EnterpriseID: enterprise,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// tickingClock advances one second per reading.
type tickingClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []service.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev service.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) ofKind(kind service.EventKind) []service.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []service.Event
	for _, ev := range n.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type stubRenderer struct {
	mu    sync.Mutex
	calls []repository.DocType
	err   error
}

func (r *stubRenderer) Render(_ context.Context, rec repository.Record) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, rec.Header().Type)
	if r.err != nil {
		return "", r.err
	}
	return "https://docs.example.test/" + rec.Header().Code + ".pdf", nil
}

type fixture struct {
	t          *testing.T
	ctx        context.Context
	store      *memory.Store
	docs       *service.DocumentService
	thresholds *service.ThresholdService
	notifier   *recordingNotifier
	renderer   *stubRenderer
}

func newFixture(t *testing.T, policy service.LedgerPolicy) *fixture {
	t.Helper()
	clock := &tickingClock{cur: time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)}
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    memory.New(),
		notifier: &recordingNotifier{},
		renderer: &stubRenderer{},
	}
	f.docs = service.NewDocumentService(f.store, service.NewCreditLedger(policy), logger.Nop(),
		service.WithClock(clock.Now),
		service.WithNotifier(f.notifier),
		service.WithRenderer(f.renderer),
	)
	f.thresholds = service.NewThresholdService(f.store, logger.Nop())
	return f
}

func (f *fixture) get(t repository.DocType, id int64) repository.Record {
	f.t.Helper()
	rec, err := f.docs.Get(f.ctx, as(repository.RoleDirector), t, id)
	require.NoError(f.t, err)
	return rec
}

func (f *fixture) status(t repository.DocType, id int64) repository.Status {
	f.t.Helper()
	return f.get(t, id).Header().Status
}

func (f *fixture) audit(t repository.DocType, id int64) []*repository.AuditEntry {
	f.t.Helper()
	out, err := f.store.AuditTrail(f.ctx, repository.TrailFilter{DocType: t, DocumentID: id})
	require.NoError(f.t, err)
	return out
}

func (f *fixture) validations(t repository.DocType, id int64) []*repository.ValidationEntry {
	f.t.Helper()
	out, err := f.store.ValidationTrail(f.ctx, repository.TrailFilter{DocType: t, DocumentID: id})
	require.NoError(f.t, err)
	return out
}

func (f *fixture) must(rec repository.Record, err error) repository.Record {
	f.t.Helper()
	require.NoError(f.t, err)
	return rec
}

func (f *fixture) setThreshold(amount string) {
	f.t.Helper()
	_, err := f.thresholds.Create(f.ctx, as(repository.RoleDirector), dec(amount), true)
	require.NoError(f.t, err)
}

// ── Chain builders ───────────────────────────────────────────────────────────

func (f *fixture) budget(amount string) *repository.Budget {
	f.t.Helper()
	b := f.must(f.docs.Create(f.ctx, as(repository.RoleManager),
		&repository.Budget{Title: "Operations 2026", Amount: dec(amount)}, nil)).(*repository.Budget)
	return f.must(f.docs.Approve(f.ctx, as(repository.RoleDirector), repository.TypeBudget, b.ID, "")).(*repository.Budget)
}

func (f *fixture) creditLine(allocated string) *repository.CreditLine {
	f.t.Helper()
	b := f.budget("10000000")
	cl := f.must(f.docs.Create(f.ctx, as(repository.RoleManager),
		&repository.CreditLine{BudgetID: b.ID, Label: "IT equipment", Allocated: dec(allocated)}, nil)).(*repository.CreditLine)
	return f.must(f.docs.Approve(f.ctx, as(repository.RoleDirector), repository.TypeCreditLine, cl.ID, "")).(*repository.CreditLine)
}

func (f *fixture) purchaseRequest(amount string) *repository.PurchaseRequest {
	f.t.Helper()
	return f.must(f.docs.Create(f.ctx, as(repository.RoleBuyer), &repository.PurchaseRequest{
		Supplier:           "ACME Supplies",
		Description:        "Laptops",
		Amount:             dec(amount),
		BeneficiaryService: "IT",
	}, nil)).(*repository.PurchaseRequest)
}

// approvedPurchaseRequest returns an approved request and the order it
// spawned.
func (f *fixture) approvedPurchaseRequest(amount string) (*repository.PurchaseRequest, *repository.PurchaseOrder) {
	f.t.Helper()
	pr := f.purchaseRequest(amount)
	f.must(f.docs.Validate(f.ctx, as(repository.RoleBuyerSupervisor), repository.TypePurchaseRequest, pr.ID, ""))
	pr = f.must(f.docs.Approve(f.ctx, as(repository.RoleAccountant), repository.TypePurchaseRequest, pr.ID, "")).(*repository.PurchaseRequest)

	generated := f.notifier.ofKind(service.EventPurchaseOrderGenerated)
	require.NotEmpty(f.t, generated)
	po := generated[len(generated)-1].Document.(*repository.PurchaseOrder)
	require.Equal(f.t, pr.ID, po.PurchaseRequestID)
	return pr, f.get(repository.TypePurchaseOrder, po.ID).(*repository.PurchaseOrder)
}

func (f *fixture) approvedPurchaseOrder(amount string) *repository.PurchaseOrder {
	f.t.Helper()
	_, po := f.approvedPurchaseRequest(amount)
	f.must(f.docs.Validate(f.ctx, as(repository.RoleAccountant), repository.TypePurchaseOrder, po.ID, ""))
	return f.must(f.docs.Approve(f.ctx, as(repository.RoleResponsible), repository.TypePurchaseOrder, po.ID, "")).(*repository.PurchaseOrder)
}

func (f *fixture) proofOfService(amount string) *repository.ProofOfService {
	f.t.Helper()
	po := f.approvedPurchaseOrder(amount)
	return f.must(f.docs.Create(f.ctx, as(repository.RoleBuyer), &repository.ProofOfService{
		PurchaseOrderID: po.ID,
		Observations:    "delivered complete",
	}, nil)).(*repository.ProofOfService)
}

func (f *fixture) decision(amount string, cl *repository.CreditLine) *repository.WithdrawalDecision {
	f.t.Helper()
	pos := f.proofOfService(amount)
	wd := &repository.WithdrawalDecision{ProofOfServiceID: pos.ID, Beneficiary: "ACME Supplies", Motive: "invoice 42"}
	if cl != nil {
		id := cl.ID
		wd.CreditLineID = &id
	}
	return f.must(f.docs.Create(f.ctx, as(repository.RoleAccountant), wd, nil)).(*repository.WithdrawalDecision)
}

func (f *fixture) validatedDecision(amount string, cl *repository.CreditLine) *repository.WithdrawalDecision {
	f.t.Helper()
	wd := f.decision(amount, cl)
	wd = f.must(f.docs.Validate(f.ctx, as(repository.RoleResponsible), repository.TypeWithdrawalDecision, wd.ID, "")).(*repository.WithdrawalDecision)
	if wd.Status == repository.StatusApproved {
		wd = f.must(f.docs.Approve(f.ctx, as(repository.RoleDirector), repository.TypeWithdrawalDecision, wd.ID, "")).(*repository.WithdrawalDecision)
	}
	return wd
}

func (f *fixture) payment(amount string, cl *repository.CreditLine) *repository.PaymentOrder {
	f.t.Helper()
	wd := f.validatedDecision(amount, cl)
	return f.must(f.docs.Create(f.ctx, as(repository.RoleAccountant), &repository.PaymentOrder{
		WithdrawalDecisionID: wd.ID,
		PaymentMethod:        "transfer",
	}, nil)).(*repository.PaymentOrder)
}

// seeded holds one document of every type.
type seeded map[repository.DocType]int64

func (f *fixture) seedAll() seeded {
	f.t.Helper()
	cl := f.creditLine("5000000")
	pay := f.payment("1000", cl)
	wd := f.get(repository.TypeWithdrawalDecision, pay.WithdrawalDecisionID).(*repository.WithdrawalDecision)
	pos := f.get(repository.TypeProofOfService, wd.ProofOfServiceID).(*repository.ProofOfService)
	ns := f.must(f.docs.Create(f.ctx, as(repository.RoleTreasury),
		&repository.NeedSheet{Object: "Printer toner", EstimatedAmount: dec("300")}, nil))

	return seeded{
		repository.TypeBudget:             cl.BudgetID,
		repository.TypeCreditLine:         cl.ID,
		repository.TypeNeedSheet:          ns.Header().ID,
		repository.TypePurchaseRequest:    f.purchaseRequest("250").ID,
		repository.TypePurchaseOrder:      pos.PurchaseOrderID,
		repository.TypeProofOfService:     pos.ID,
		repository.TypeWithdrawalDecision: wd.ID,
		repository.TypePaymentOrder:       pay.ID,
	}
}
