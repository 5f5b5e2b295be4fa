package service

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
)

// Action names an operation of the transition engine.
type Action string

const (
	ActionCreate   Action = "create"
	ActionModify   Action = "modify"
	ActionValidate Action = "validate"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionActivate Action = "activate"
)

// Step is one gated transition: who may perform it, from which status, and
// where it leads.
type Step struct {
	Roles   repository.RoleSet
	From    repository.Status
	To      repository.Status
	Outcome repository.Outcome
}

// Router adjusts or refuses a planned step given the document amount and the
// enterprise's active threshold (nil when none). It runs on every call, so a
// threshold change takes effect immediately.
type Router func(action Action, amount decimal.Decimal, th *repository.Threshold, step Step) (Step, error)

// Hook runs inside the unit of work when a document enters a status.
type Hook func(u *unit, rec repository.Record) error

// Definition configures the generic engine for one document type.
type Definition struct {
	Type repository.DocType
	// States is the type's own state set; each stored status maps to a phase.
	States     map[repository.Status]repository.Phase
	Creators   repository.RoleSet
	Editors    repository.RoleSet
	Validate   *Step
	Approve    *Step
	Rejecters  repository.RoleSet
	Activators repository.RoleSet
	Route      Router
	OnEnter    map[repository.Status]Hook
	// SealedIn lists statuses in which the document can no longer be edited.
	SealedIn []repository.Status
	// Init sets create-time defaults; Check validates business fields; Edit
	// copies the editable fields of src onto dst.
	Init    func(rec repository.Record, now time.Time)
	Check   func(rec repository.Record) error
	Edit    func(dst, src repository.Record)
	Renders bool
}

// Phase returns the type-specific reading of status.
func (d *Definition) Phase(status repository.Status) repository.Phase {
	return d.States[status]
}

func (d *Definition) sealed(status repository.Status) bool {
	for _, s := range d.SealedIn {
		if s == status {
			return true
		}
	}
	return false
}

// firstGate returns the roles that act first on a freshly created document.
func (d *Definition) firstGate() repository.RoleSet {
	switch {
	case d.Validate != nil:
		return d.Validate.Roles
	case d.Approve != nil:
		return d.Approve.Roles
	}
	return nil
}

// plan resolves the step for a validate or approve call. Role is checked
// before state, and state before threshold routing.
func (d *Definition) plan(action Action, role repository.Role, rec repository.Record, th func() (*repository.Threshold, error)) (Step, error) {
	step := d.Validate
	if action == ActionApprove {
		step = d.Approve
	}
	if step == nil || !step.Roles.Has(role) {
		return Step{}, errors.Unauthorized(
			"role " + string(role) + " may not " + string(action) + " " + humanType(d.Type))
	}

	h := rec.Header()
	if h.Status != step.From {
		return Step{}, errors.InvalidState(
			humanType(d.Type) + " " + h.Code + " is " + string(h.Status) + ", " + string(action) + " requires " + string(step.From))
	}

	if d.Route == nil {
		return *step, nil
	}
	threshold, err := th()
	if err != nil {
		return Step{}, err
	}
	return d.Route(action, rec.Total(), threshold, *step)
}

// planReject checks a reject call.
func (d *Definition) planReject(role repository.Role, rec repository.Record) (Step, error) {
	if !d.Rejecters.Has(role) {
		return Step{}, errors.Unauthorized("role " + string(role) + " may not reject " + humanType(d.Type))
	}
	h := rec.Header()
	if d.Phase(h.Status) == repository.PhaseTerminal {
		return Step{}, errors.InvalidState(humanType(d.Type) + " " + h.Code + " is already final (" + string(h.Status) + ")")
	}
	return Step{Roles: d.Rejecters, From: h.Status, To: repository.StatusRejected, Outcome: repository.OutcomeRejected}, nil
}

func humanType(t repository.DocType) string {
	return strings.ReplaceAll(strings.ToLower(string(t)), "_", " ")
}

// ── State sets ───────────────────────────────────────────────────────────────

var (
	twoStates = map[repository.Status]repository.Phase{
		repository.StatusInProgress: repository.PhaseOpen,
		repository.StatusValidated:  repository.PhaseTerminal,
		repository.StatusRejected:   repository.PhaseTerminal,
	}
	threeStates = map[repository.Status]repository.Phase{
		repository.StatusInProgress: repository.PhaseOpen,
		repository.StatusValidated:  repository.PhaseOpen,
		repository.StatusApproved:   repository.PhaseTerminal,
		repository.StatusRejected:   repository.PhaseTerminal,
	}
	issuedOnly = map[repository.Status]repository.Phase{
		repository.StatusInProgress: repository.PhaseTerminal,
	}
	// APPROVED means "awaiting the Director" for withdrawal decisions.
	withdrawalStates = map[repository.Status]repository.Phase{
		repository.StatusInProgress: repository.PhaseOpen,
		repository.StatusApproved:   repository.PhaseAwaitingHigherAuthority,
		repository.StatusValidated:  repository.PhaseTerminal,
		repository.StatusRejected:   repository.PhaseTerminal,
	}
	// Both VALIDATED (Responsible path) and APPROVED (Director path) are final.
	paymentStates = map[repository.Status]repository.Phase{
		repository.StatusInProgress: repository.PhaseOpen,
		repository.StatusValidated:  repository.PhaseTerminal,
		repository.StatusApproved:   repository.PhaseTerminal,
		repository.StatusRejected:   repository.PhaseTerminal,
	}
)

func roles(rs ...repository.Role) repository.RoleSet { return repository.RoleSet(rs) }

// definitions builds the per-type configuration. Hooks close over the
// service's ledger and chain assembler.
func (s *DocumentService) definitions() map[repository.DocType]*Definition {
	const (
		manager         = repository.RoleManager
		director        = repository.RoleDirector
		treasury        = repository.RoleTreasury
		buyer           = repository.RoleBuyer
		buyerSupervisor = repository.RoleBuyerSupervisor
		accountant      = repository.RoleAccountant
		responsible     = repository.RoleResponsible
	)

	approveTo := func(rs repository.RoleSet, from, to repository.Status) *Step {
		return &Step{Roles: rs, From: from, To: to, Outcome: repository.OutcomeApproved}
	}
	validateTo := func(rs repository.RoleSet, from, to repository.Status) *Step {
		return &Step{Roles: rs, From: from, To: to, Outcome: repository.OutcomeValidated}
	}

	defs := []*Definition{
		{
			Type:       repository.TypeBudget,
			States:     twoStates,
			Creators:   roles(manager, director),
			Editors:    roles(manager, director),
			Approve:    approveTo(roles(director), repository.StatusInProgress, repository.StatusValidated),
			Rejecters:  roles(director),
			Activators: roles(director),
			Init:       initBudget,
			Check:      checkBudget,
			Edit:       editBudget,
			Renders:    true,
		},
		{
			Type:       repository.TypeCreditLine,
			States:     twoStates,
			Creators:   roles(manager, director),
			Editors:    roles(manager, director),
			Approve:    approveTo(roles(director), repository.StatusInProgress, repository.StatusValidated),
			Rejecters:  roles(director),
			Activators: roles(director),
			Init:       initCreditLine,
			Check:      checkCreditLine,
			Edit:       editCreditLine,
			Renders:    true,
		},
		{
			Type:      repository.TypeNeedSheet,
			States:    threeStates,
			Creators:  roles(treasury, buyer),
			Editors:   roles(treasury, buyer),
			Validate:  validateTo(roles(buyerSupervisor), repository.StatusInProgress, repository.StatusValidated),
			Approve:   approveTo(roles(accountant), repository.StatusValidated, repository.StatusApproved),
			Rejecters: roles(buyerSupervisor, accountant),
			Check:     checkNeedSheet,
			Edit:      editNeedSheet,
		},
		{
			Type:      repository.TypePurchaseRequest,
			States:    threeStates,
			Creators:  roles(treasury, buyer),
			Editors:   roles(treasury, buyer),
			Validate:  validateTo(roles(buyerSupervisor), repository.StatusInProgress, repository.StatusValidated),
			Approve:   approveTo(roles(accountant), repository.StatusValidated, repository.StatusApproved),
			Rejecters: roles(buyerSupervisor, accountant),
			OnEnter: map[repository.Status]Hook{
				repository.StatusApproved: s.chain.SpawnPurchaseOrder,
			},
			Check: checkPurchaseRequest,
			Edit:  editPurchaseRequest,
		},
		{
			Type:      repository.TypePurchaseOrder,
			States:    threeStates,
			Editors:   roles(treasury, buyer, accountant),
			Validate:  validateTo(roles(accountant), repository.StatusInProgress, repository.StatusValidated),
			Approve:   approveTo(roles(responsible, director), repository.StatusValidated, repository.StatusApproved),
			Rejecters: roles(accountant, responsible, director),
			Check:     checkPurchaseOrder,
			Edit:      editPurchaseOrder,
			Renders:   true,
		},
		{
			Type:     repository.TypeProofOfService,
			States:   issuedOnly,
			Creators: roles(treasury, buyer),
			Editors:  roles(treasury, buyer),
			SealedIn: []repository.Status{repository.StatusInProgress},
			Init:     initProofOfService,
			Check:    checkProofOfService,
			Renders:  true,
		},
		{
			Type:      repository.TypeWithdrawalDecision,
			States:    withdrawalStates,
			Creators:  roles(accountant),
			Editors:   roles(accountant),
			Validate:  validateTo(roles(responsible), repository.StatusInProgress, repository.StatusValidated),
			Approve:   approveTo(roles(director), repository.StatusApproved, repository.StatusValidated),
			Rejecters: roles(responsible, director),
			Route:     routeWithdrawal,
			// Escalated decisions reach VALIDATED on director approval and commit then.
			OnEnter: map[repository.Status]Hook{
				repository.StatusValidated: s.ledger.CommitDecision,
			},
			SealedIn: []repository.Status{repository.StatusValidated},
			Check:    checkWithdrawalDecision,
			Edit:     editWithdrawalDecision,
			Renders:  true,
		},
		{
			Type:      repository.TypePaymentOrder,
			States:    paymentStates,
			Creators:  roles(accountant),
			Editors:   roles(accountant),
			Validate:  validateTo(roles(responsible), repository.StatusInProgress, repository.StatusValidated),
			Approve:   approveTo(roles(director), repository.StatusInProgress, repository.StatusApproved),
			Rejecters: roles(responsible, director),
			Route:     routePayment,
			OnEnter: map[repository.Status]Hook{
				repository.StatusValidated: s.ledger.SettlePayment,
				repository.StatusApproved:  s.ledger.SettlePayment,
			},
			SealedIn: []repository.Status{repository.StatusValidated, repository.StatusApproved},
			Check:    checkPaymentOrder,
			Edit:     editPaymentOrder,
			Renders:  true,
		},
	}

	out := make(map[repository.DocType]*Definition, len(defs))
	for _, d := range defs {
		out[d.Type] = d
	}
	return out
}

// ── Per-type field rules ─────────────────────────────────────────────────────

func requireText(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return errors.InvalidInput(field, "is required")
	}
	return nil
}

func requirePositive(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return errors.InvalidInput(field, "must be greater than zero")
	}
	return nil
}

func initBudget(rec repository.Record, now time.Time) {
	b := rec.(*repository.Budget)
	if b.FiscalYear == 0 {
		b.FiscalYear = now.Year()
	}
}

func checkBudget(rec repository.Record) error {
	b := rec.(*repository.Budget)
	if err := requireText("title", b.Title); err != nil {
		return err
	}
	if b.FiscalYear < 1900 {
		return errors.InvalidInput("fiscal_year", "is invalid")
	}
	return requirePositive("amount", b.Amount)
}

func editBudget(dst, src repository.Record) {
	d, s := dst.(*repository.Budget), src.(*repository.Budget)
	d.Title, d.Amount, d.Description = s.Title, s.Amount, s.Description
	if s.FiscalYear != 0 {
		d.FiscalYear = s.FiscalYear
	}
}

func initCreditLine(rec repository.Record, _ time.Time) {
	c := rec.(*repository.CreditLine)
	c.Committed = decimal.Zero
	c.Recompute()
}

func checkCreditLine(rec repository.Record) error {
	c := rec.(*repository.CreditLine)
	if err := requireText("label", c.Label); err != nil {
		return err
	}
	return requirePositive("allocated", c.Allocated)
}

func editCreditLine(dst, src repository.Record) {
	d, s := dst.(*repository.CreditLine), src.(*repository.CreditLine)
	d.Label, d.Allocated = s.Label, s.Allocated
	d.Recompute()
}

func checkNeedSheet(rec repository.Record) error {
	n := rec.(*repository.NeedSheet)
	if err := requireText("object", n.Object); err != nil {
		return err
	}
	if n.EstimatedAmount.IsNegative() {
		return errors.InvalidInput("estimated_amount", "must not be negative")
	}
	return nil
}

func editNeedSheet(dst, src repository.Record) {
	d, s := dst.(*repository.NeedSheet), src.(*repository.NeedSheet)
	d.Object, d.Description, d.BeneficiaryService, d.EstimatedAmount =
		s.Object, s.Description, s.BeneficiaryService, s.EstimatedAmount
}

func checkPurchaseRequest(rec repository.Record) error {
	p := rec.(*repository.PurchaseRequest)
	if err := requireText("supplier", p.Supplier); err != nil {
		return err
	}
	return requirePositive("amount", p.Amount)
}

func editPurchaseRequest(dst, src repository.Record) {
	d, s := dst.(*repository.PurchaseRequest), src.(*repository.PurchaseRequest)
	d.Supplier, d.Description, d.Amount, d.BeneficiaryService =
		s.Supplier, s.Description, s.Amount, s.BeneficiaryService
}

func checkPurchaseOrder(rec repository.Record) error {
	p := rec.(*repository.PurchaseOrder)
	if err := requireText("supplier", p.Supplier); err != nil {
		return err
	}
	if p.PaymentDelayDays < 0 {
		return errors.InvalidInput("payment_delay_days", "must not be negative")
	}
	return requirePositive("amount", p.Amount)
}

func editPurchaseOrder(dst, src repository.Record) {
	d, s := dst.(*repository.PurchaseOrder), src.(*repository.PurchaseOrder)
	d.Supplier, d.Description, d.Amount, d.BeneficiaryService =
		s.Supplier, s.Description, s.Amount, s.BeneficiaryService
	d.PaymentDelayDays = s.PaymentDelayDays
	if !s.ExecutionDate.IsZero() {
		d.ExecutionDate = s.ExecutionDate
	}
}

func initProofOfService(rec repository.Record, now time.Time) {
	p := rec.(*repository.ProofOfService)
	if p.ServiceDate.IsZero() {
		p.ServiceDate = now.Truncate(24 * time.Hour)
	}
}

func checkProofOfService(rec repository.Record) error {
	return requirePositive("amount", rec.(*repository.ProofOfService).Amount)
}

func checkWithdrawalDecision(rec repository.Record) error {
	return requirePositive("amount", rec.(*repository.WithdrawalDecision).Amount)
}

func editWithdrawalDecision(dst, src repository.Record) {
	d, s := dst.(*repository.WithdrawalDecision), src.(*repository.WithdrawalDecision)
	d.Amount, d.Beneficiary, d.Motive = s.Amount, s.Beneficiary, s.Motive
}

func checkPaymentOrder(rec repository.Record) error {
	return requirePositive("amount", rec.(*repository.PaymentOrder).Amount)
}

func editPaymentOrder(dst, src repository.Record) {
	d, s := dst.(*repository.PaymentOrder), src.(*repository.PaymentOrder)
	d.Amount, d.Beneficiary, d.PaymentMethod = s.Amount, s.Beneficiary, s.PaymentMethod
}
