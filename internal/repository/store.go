package repository

import (
	"context"
	"time"
)

// DocumentTx reads and writes document rows inside a unit of work.
type DocumentTx interface {
	// InsertDocument assigns the record's ID. The code is written later
	// through UpdateDocument once the id is known.
	InsertDocument(ctx context.Context, rec Record) error
	UpdateDocument(ctx context.Context, rec Record) error
	GetDocument(ctx context.Context, t DocType, id int64) (Record, error)
	// LockDocument reads a record and holds it exclusively until the unit of
	// work ends.
	LockDocument(ctx context.Context, t DocType, id int64) (Record, error)
	FindByCode(ctx context.Context, t DocType, code string) (Record, error)
	// CountReferences counts records of type from that link to record (to, id).
	CountReferences(ctx context.Context, from, to DocType, id int64) (int, error)
}

// TrailTx appends to the audit log and the validation ledger.
type TrailTx interface {
	AppendAudit(ctx context.Context, e *AuditEntry) error
	AppendValidation(ctx context.Context, e *ValidationEntry) error
}

// ThresholdTx manages per-enterprise routing thresholds.
type ThresholdTx interface {
	InsertThreshold(ctx context.Context, th *Threshold) error
	LockThreshold(ctx context.Context, id int64) (*Threshold, error)
	// ActiveThreshold returns nil when the enterprise has no active threshold.
	ActiveThreshold(ctx context.Context, enterpriseID string) (*Threshold, error)
	SetThresholdActive(ctx context.Context, id int64, active bool, at time.Time) error
	// DeactivateThresholds clears the active flag on every row of the
	// enterprise except the one with id except.
	DeactivateThresholds(ctx context.Context, enterpriseID string, except int64, at time.Time) error
}

// Tx is one atomic unit of work. Every write made through it commits or
// rolls back together.
type Tx interface {
	DocumentTx
	TrailTx
	ThresholdTx
}

// TrailReader queries both trails.
type TrailReader interface {
	AuditTrail(ctx context.Context, f TrailFilter) ([]*AuditEntry, error)
	ValidationTrail(ctx context.Context, f TrailFilter) ([]*ValidationEntry, error)
}

// RoleDirectory maps (enterprise, role) to the users holding it.
type RoleDirectory interface {
	Holders(ctx context.Context, enterpriseID string, role Role) ([]RoleHolder, error)
	Assign(ctx context.Context, h RoleHolder) error
}

// Store is the persistence boundary of the engine.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	TrailReader
	RoleDirectory
}
