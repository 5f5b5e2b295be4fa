package repository

import "strings"

// tableSpec maps a document type onto its table. columns lists the
// type-specific columns; values and targets return arguments and scan
// destinations in the same order.
type tableSpec struct {
	name    string
	columns []string
	values  func(r Record) []any
	targets func(r Record) []any
}

const headerColumns = `id, COALESCE(code, ''), enterprise_id, created_by, status, active,
	document_url, created_at, updated_at`

func headerTargets(d *Document) []any {
	return []any{
		&d.ID,
		&d.Code,
		&d.EnterpriseID,
		&d.CreatedBy,
		&d.Status,
		&d.Active,
		&d.DocumentURL,
		&d.CreatedAt,
		&d.UpdatedAt,
	}
}

var tables = map[DocType]tableSpec{
	TypeBudget: {
		name:    "budgets",
		columns: []string{"title", "fiscal_year", "amount", "description"},
		values: func(r Record) []any {
			b := r.(*Budget)
			return []any{b.Title, b.FiscalYear, b.Amount, b.Description}
		},
		targets: func(r Record) []any {
			b := r.(*Budget)
			return []any{&b.Title, &b.FiscalYear, &b.Amount, &b.Description}
		},
	},
	TypeCreditLine: {
		name:    "credit_lines",
		columns: []string{"budget_id", "label", "allocated", "committed", "remaining"},
		values: func(r Record) []any {
			c := r.(*CreditLine)
			return []any{c.BudgetID, c.Label, c.Allocated, c.Committed, c.Remaining}
		},
		targets: func(r Record) []any {
			c := r.(*CreditLine)
			return []any{&c.BudgetID, &c.Label, &c.Allocated, &c.Committed, &c.Remaining}
		},
	},
	TypeNeedSheet: {
		name:    "need_sheets",
		columns: []string{"object", "description", "beneficiary_service", "estimated_amount"},
		values: func(r Record) []any {
			n := r.(*NeedSheet)
			return []any{n.Object, n.Description, n.BeneficiaryService, n.EstimatedAmount}
		},
		targets: func(r Record) []any {
			n := r.(*NeedSheet)
			return []any{&n.Object, &n.Description, &n.BeneficiaryService, &n.EstimatedAmount}
		},
	},
	TypePurchaseRequest: {
		name:    "purchase_requests",
		columns: []string{"need_sheet_id", "supplier", "description", "amount", "beneficiary_service"},
		values: func(r Record) []any {
			p := r.(*PurchaseRequest)
			return []any{p.NeedSheetID, p.Supplier, p.Description, p.Amount, p.BeneficiaryService}
		},
		targets: func(r Record) []any {
			p := r.(*PurchaseRequest)
			return []any{&p.NeedSheetID, &p.Supplier, &p.Description, &p.Amount, &p.BeneficiaryService}
		},
	},
	TypePurchaseOrder: {
		name: "purchase_orders",
		columns: []string{"purchase_request_id", "supplier", "description", "amount",
			"beneficiary_service", "payment_delay_days", "execution_date"},
		values: func(r Record) []any {
			p := r.(*PurchaseOrder)
			return []any{p.PurchaseRequestID, p.Supplier, p.Description, p.Amount,
				p.BeneficiaryService, p.PaymentDelayDays, p.ExecutionDate}
		},
		targets: func(r Record) []any {
			p := r.(*PurchaseOrder)
			return []any{&p.PurchaseRequestID, &p.Supplier, &p.Description, &p.Amount,
				&p.BeneficiaryService, &p.PaymentDelayDays, &p.ExecutionDate}
		},
	},
	TypeProofOfService: {
		name:    "proofs_of_service",
		columns: []string{"purchase_order_id", "service_date", "observations", "amount"},
		values: func(r Record) []any {
			p := r.(*ProofOfService)
			return []any{p.PurchaseOrderID, p.ServiceDate, p.Observations, p.Amount}
		},
		targets: func(r Record) []any {
			p := r.(*ProofOfService)
			return []any{&p.PurchaseOrderID, &p.ServiceDate, &p.Observations, &p.Amount}
		},
	},
	TypeWithdrawalDecision: {
		name:    "withdrawal_decisions",
		columns: []string{"proof_of_service_id", "credit_line_id", "amount", "beneficiary", "motive"},
		values: func(r Record) []any {
			w := r.(*WithdrawalDecision)
			return []any{w.ProofOfServiceID, w.CreditLineID, w.Amount, w.Beneficiary, w.Motive}
		},
		targets: func(r Record) []any {
			w := r.(*WithdrawalDecision)
			return []any{&w.ProofOfServiceID, &w.CreditLineID, &w.Amount, &w.Beneficiary, &w.Motive}
		},
	},
	TypePaymentOrder: {
		name:    "payment_orders",
		columns: []string{"withdrawal_decision_id", "credit_line_id", "amount", "beneficiary", "payment_method"},
		values: func(r Record) []any {
			p := r.(*PaymentOrder)
			return []any{p.WithdrawalDecisionID, p.CreditLineID, p.Amount, p.Beneficiary, p.PaymentMethod}
		},
		targets: func(r Record) []any {
			p := r.(*PaymentOrder)
			return []any{&p.WithdrawalDecisionID, &p.CreditLineID, &p.Amount, &p.Beneficiary, &p.PaymentMethod}
		},
	},
}

func (t tableSpec) selectList() string {
	return headerColumns + ", " + strings.Join(t.columns, ", ")
}
