package repository

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
)

// ── Enumerations ─────────────────────────────────────────────────────────────

// DocType names one of the eight document kinds in the procurement chain.
type DocType string

const (
	TypeBudget             DocType = "BUDGET"
	TypeCreditLine         DocType = "CREDIT_LINE"
	TypeNeedSheet          DocType = "NEED_SHEET"
	TypePurchaseRequest    DocType = "PURCHASE_REQUEST"
	TypePurchaseOrder      DocType = "PURCHASE_ORDER"
	TypeProofOfService     DocType = "PROOF_OF_SERVICE"
	TypeWithdrawalDecision DocType = "WITHDRAWAL_DECISION"
	TypePaymentOrder       DocType = "PAYMENT_ORDER"
)

// DocTypes lists every type in chain order.
var DocTypes = []DocType{
	TypeBudget,
	TypeCreditLine,
	TypeNeedSheet,
	TypePurchaseRequest,
	TypePurchaseOrder,
	TypeProofOfService,
	TypeWithdrawalDecision,
	TypePaymentOrder,
}

// ParseDocType accepts the canonical name in any case, with '-' or '_'.
func ParseDocType(s string) (DocType, error) {
	t := DocType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	for _, known := range DocTypes {
		if t == known {
			return t, nil
		}
	}
	return "", errors.InvalidInput("type", "unknown document type "+s)
}

// Status is the stored lifecycle value. Its meaning depends on the document
// type; see the state sets in the service package.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusValidated  Status = "VALIDATED"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
)

// Phase is the type-specific reading of a Status.
type Phase string

const (
	PhaseOpen                    Phase = "open"
	PhaseAwaitingHigherAuthority Phase = "awaiting_higher_authority"
	PhaseTerminal                Phase = "terminal"
)

// Role is an actor's business role inside an enterprise.
type Role string

const (
	RoleManager         Role = "MANAGER"
	RoleDirector        Role = "DIRECTOR"
	RoleTreasury        Role = "TREASURY"
	RoleBuyer           Role = "BUYER"
	RoleBuyerSupervisor Role = "BUYER_SUPERVISOR"
	RoleAccountant      Role = "ACCOUNTANT"
	RoleResponsible     Role = "RESPONSIBLE"
)

// RoleSet is an unordered set of roles.
type RoleSet []Role

// Roles lists every known role.
var Roles = RoleSet{
	RoleManager, RoleDirector, RoleTreasury, RoleBuyer,
	RoleBuyerSupervisor, RoleAccountant, RoleResponsible,
}

// Has reports whether r is in the set.
func (s RoleSet) Has(r Role) bool {
	for _, x := range s {
		if x == r {
			return true
		}
	}
	return false
}

// Outcome labels a validation-ledger entry.
type Outcome string

const (
	OutcomeValidated Outcome = "VALIDATED"
	OutcomeApproved  Outcome = "APPROVED"
	OutcomeRejected  Outcome = "REJECTED"
	OutcomeEscalated Outcome = "ESCALATED"
)

// ── Trails ───────────────────────────────────────────────────────────────────

// AuditEntry is one immutable record of a state or active-flag change.
type AuditEntry struct {
	ID           int64     `json:"id"`
	DocType      DocType   `json:"document_type"`
	DocumentID   int64     `json:"document_id"`
	EnterpriseID string    `json:"enterprise_id"`
	ActorID      string    `json:"actor_id"`
	ActorRole    Role      `json:"actor_role"`
	OldStatus    Status    `json:"old_status"`
	NewStatus    Status    `json:"new_status"`
	OldActive    bool      `json:"old_active"`
	NewActive    bool      `json:"new_active"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ValidationEntry is one immutable validate/approve/reject decision.
type ValidationEntry struct {
	ID           int64     `json:"id"`
	DocType      DocType   `json:"document_type"`
	DocumentID   int64     `json:"document_id"`
	EnterpriseID string    `json:"enterprise_id"`
	ActorID      string    `json:"actor_id"`
	ActorRole    Role      `json:"actor_role"`
	Outcome      Outcome   `json:"outcome"`
	Comment      string    `json:"comment,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TrailFilter selects trail entries. Zero fields are ignored; at least one of
// document, actor or enterprise must be set.
type TrailFilter struct {
	DocType      DocType
	DocumentID   int64
	ActorID      string
	EnterpriseID string
	Limit        int
}

// ── Thresholds and roles ─────────────────────────────────────────────────────

// Threshold is a per-enterprise routing amount. At most one row per
// enterprise is active.
type Threshold struct {
	ID           int64           `json:"id"`
	EnterpriseID string          `json:"enterprise_id"`
	Amount       decimal.Decimal `json:"amount"`
	Active       bool            `json:"active"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// RoleHolder is a user holding a role inside an enterprise.
type RoleHolder struct {
	EnterpriseID string `json:"enterprise_id"`
	Role         Role   `json:"role"`
	UserID       string `json:"user_id"`
	Email        string `json:"email,omitempty"`
}
