package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// Document is the header shared by every document type.
type Document struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	Type         DocType   `json:"type"`
	EnterpriseID string    `json:"enterprise_id"`
	CreatedBy    string    `json:"created_by"`
	Status       Status    `json:"status"`
	Phase        Phase     `json:"phase,omitempty"` // derived, not stored
	Active       bool      `json:"active"`
	DocumentURL  string    `json:"document_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Header gives access to the shared fields of any record embedding Document.
func (d *Document) Header() *Document { return d }

// Record is implemented by the eight concrete document types.
type Record interface {
	Header() *Document
	// Total is the amount used for threshold routing and ledger effects.
	Total() decimal.Decimal
	// Predecessors returns the ids of the upstream documents this record
	// links to, keyed by their type. Unset optional links are omitted.
	Predecessors() map[DocType]int64
	SetPredecessor(t DocType, id int64)
}

// Link is a reference column from one document type to an upstream one.
type Link struct {
	From     DocType
	Column   string
	To       DocType
	Optional bool
}

// Links enumerates every chain link.
var Links = []Link{
	{From: TypeCreditLine, Column: "budget_id", To: TypeBudget},
	{From: TypePurchaseRequest, Column: "need_sheet_id", To: TypeNeedSheet, Optional: true},
	{From: TypePurchaseOrder, Column: "purchase_request_id", To: TypePurchaseRequest},
	{From: TypeProofOfService, Column: "purchase_order_id", To: TypePurchaseOrder},
	{From: TypeWithdrawalDecision, Column: "proof_of_service_id", To: TypeProofOfService},
	{From: TypeWithdrawalDecision, Column: "credit_line_id", To: TypeCreditLine, Optional: true},
	{From: TypePaymentOrder, Column: "withdrawal_decision_id", To: TypeWithdrawalDecision},
	{From: TypePaymentOrder, Column: "credit_line_id", To: TypeCreditLine, Optional: true},
}

// LinksFrom returns the links declared by records of type t.
func LinksFrom(t DocType) []Link {
	var out []Link
	for _, l := range Links {
		if l.From == t {
			out = append(out, l)
		}
	}
	return out
}

// LinksTo returns the links pointing at records of type t.
func LinksTo(t DocType) []Link {
	var out []Link
	for _, l := range Links {
		if l.To == t {
			out = append(out, l)
		}
	}
	return out
}

// ── Concrete types ───────────────────────────────────────────────────────────

type Budget struct {
	Document
	Title       string          `json:"title"`
	FiscalYear  int             `json:"fiscal_year"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func (b *Budget) Total() decimal.Decimal          { return b.Amount }
func (b *Budget) Predecessors() map[DocType]int64 { return map[DocType]int64{} }
func (b *Budget) SetPredecessor(DocType, int64)   {}

// CreditLine is a sub-allocation of a Budget. Remaining is always derived
// from Allocated and Committed.
type CreditLine struct {
	Document
	BudgetID  int64           `json:"budget_id"`
	Label     string          `json:"label"`
	Allocated decimal.Decimal `json:"allocated"`
	Committed decimal.Decimal `json:"committed"`
	Remaining decimal.Decimal `json:"remaining"`
}

func (c *CreditLine) Total() decimal.Decimal { return c.Allocated }

func (c *CreditLine) Predecessors() map[DocType]int64 {
	return refs(TypeBudget, &c.BudgetID)
}

func (c *CreditLine) SetPredecessor(t DocType, id int64) {
	if t == TypeBudget {
		c.BudgetID = id
	}
}

// Recompute sets Remaining to max(0, Allocated - Committed).
func (c *CreditLine) Recompute() {
	c.Remaining = decimal.Max(decimal.Zero, c.Allocated.Sub(c.Committed))
}

type NeedSheet struct {
	Document
	Object             string          `json:"object"`
	Description        string          `json:"description"`
	BeneficiaryService string          `json:"beneficiary_service"`
	EstimatedAmount    decimal.Decimal `json:"estimated_amount"`
}

func (n *NeedSheet) Total() decimal.Decimal          { return n.EstimatedAmount }
func (n *NeedSheet) Predecessors() map[DocType]int64 { return map[DocType]int64{} }
func (n *NeedSheet) SetPredecessor(DocType, int64)   {}

type PurchaseRequest struct {
	Document
	NeedSheetID        *int64          `json:"need_sheet_id,omitempty"`
	Supplier           string          `json:"supplier"`
	Description        string          `json:"description"`
	Amount             decimal.Decimal `json:"amount"`
	BeneficiaryService string          `json:"beneficiary_service"`
}

func (p *PurchaseRequest) Total() decimal.Decimal { return p.Amount }

func (p *PurchaseRequest) Predecessors() map[DocType]int64 {
	return optRefs(TypeNeedSheet, p.NeedSheetID)
}

func (p *PurchaseRequest) SetPredecessor(t DocType, id int64) {
	if t == TypeNeedSheet {
		p.NeedSheetID = &id
	}
}

type PurchaseOrder struct {
	Document
	PurchaseRequestID  int64           `json:"purchase_request_id"`
	Supplier           string          `json:"supplier"`
	Description        string          `json:"description"`
	Amount             decimal.Decimal `json:"amount"`
	BeneficiaryService string          `json:"beneficiary_service"`
	PaymentDelayDays   int             `json:"payment_delay_days"`
	ExecutionDate      time.Time       `json:"execution_date"`
}

func (p *PurchaseOrder) Total() decimal.Decimal { return p.Amount }

func (p *PurchaseOrder) Predecessors() map[DocType]int64 {
	return refs(TypePurchaseRequest, &p.PurchaseRequestID)
}

func (p *PurchaseOrder) SetPredecessor(t DocType, id int64) {
	if t == TypePurchaseRequest {
		p.PurchaseRequestID = id
	}
}

// ProofOfService is issued once and never transitions.
type ProofOfService struct {
	Document
	PurchaseOrderID int64           `json:"purchase_order_id"`
	ServiceDate     time.Time       `json:"service_date"`
	Observations    string          `json:"observations"`
	Amount          decimal.Decimal `json:"amount"`
}

func (p *ProofOfService) Total() decimal.Decimal { return p.Amount }

func (p *ProofOfService) Predecessors() map[DocType]int64 {
	return refs(TypePurchaseOrder, &p.PurchaseOrderID)
}

func (p *ProofOfService) SetPredecessor(t DocType, id int64) {
	if t == TypePurchaseOrder {
		p.PurchaseOrderID = id
	}
}

type WithdrawalDecision struct {
	Document
	ProofOfServiceID int64           `json:"proof_of_service_id"`
	CreditLineID     *int64          `json:"credit_line_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Beneficiary      string          `json:"beneficiary"`
	Motive           string          `json:"motive"`
}

func (w *WithdrawalDecision) Total() decimal.Decimal { return w.Amount }

func (w *WithdrawalDecision) Predecessors() map[DocType]int64 {
	out := refs(TypeProofOfService, &w.ProofOfServiceID)
	if w.CreditLineID != nil {
		out[TypeCreditLine] = *w.CreditLineID
	}
	return out
}

func (w *WithdrawalDecision) SetPredecessor(t DocType, id int64) {
	switch t {
	case TypeProofOfService:
		w.ProofOfServiceID = id
	case TypeCreditLine:
		w.CreditLineID = &id
	}
}

type PaymentOrder struct {
	Document
	WithdrawalDecisionID int64           `json:"withdrawal_decision_id"`
	CreditLineID         *int64          `json:"credit_line_id,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	Beneficiary          string          `json:"beneficiary"`
	PaymentMethod        string          `json:"payment_method"`
}

func (p *PaymentOrder) Total() decimal.Decimal { return p.Amount }

func (p *PaymentOrder) Predecessors() map[DocType]int64 {
	out := refs(TypeWithdrawalDecision, &p.WithdrawalDecisionID)
	if p.CreditLineID != nil {
		out[TypeCreditLine] = *p.CreditLineID
	}
	return out
}

func (p *PaymentOrder) SetPredecessor(t DocType, id int64) {
	switch t {
	case TypeWithdrawalDecision:
		p.WithdrawalDecisionID = id
	case TypeCreditLine:
		p.CreditLineID = &id
	}
}

func refs(t DocType, id *int64) map[DocType]int64 {
	out := map[DocType]int64{}
	if *id != 0 {
		out[t] = *id
	}
	return out
}

func optRefs(t DocType, id *int64) map[DocType]int64 {
	if id == nil {
		return map[DocType]int64{}
	}
	return refs(t, id)
}

// NewRecord returns an empty record of type t with its header type set.
func NewRecord(t DocType) Record {
	var r Record
	switch t {
	case TypeBudget:
		r = &Budget{}
	case TypeCreditLine:
		r = &CreditLine{}
	case TypeNeedSheet:
		r = &NeedSheet{}
	case TypePurchaseRequest:
		r = &PurchaseRequest{}
	case TypePurchaseOrder:
		r = &PurchaseOrder{}
	case TypeProofOfService:
		r = &ProofOfService{}
	case TypeWithdrawalDecision:
		r = &WithdrawalDecision{}
	case TypePaymentOrder:
		r = &PaymentOrder{}
	default:
		return nil
	}
	r.Header().Type = t
	return r
}

// TypeOf returns the document type of r from its concrete Go type, ignoring
// the header.
func TypeOf(r Record) DocType {
	switch r.(type) {
	case *Budget:
		return TypeBudget
	case *CreditLine:
		return TypeCreditLine
	case *NeedSheet:
		return TypeNeedSheet
	case *PurchaseRequest:
		return TypePurchaseRequest
	case *PurchaseOrder:
		return TypePurchaseOrder
	case *ProofOfService:
		return TypeProofOfService
	case *WithdrawalDecision:
		return TypeWithdrawalDecision
	case *PaymentOrder:
		return TypePaymentOrder
	}
	return ""
}

// CloneRecord returns a copy of r that shares no mutable state with it.
func CloneRecord(r Record) Record {
	switch v := r.(type) {
	case *Budget:
		c := *v
		return &c
	case *CreditLine:
		c := *v
		return &c
	case *NeedSheet:
		c := *v
		return &c
	case *PurchaseRequest:
		c := *v
		c.NeedSheetID = cloneID(v.NeedSheetID)
		return &c
	case *PurchaseOrder:
		c := *v
		return &c
	case *ProofOfService:
		c := *v
		return &c
	case *WithdrawalDecision:
		c := *v
		c.CreditLineID = cloneID(v.CreditLineID)
		return &c
	case *PaymentOrder:
		c := *v
		c.CreditLineID = cloneID(v.CreditLineID)
		return &c
	default:
		return nil
	}
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
