package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-ap-procurement/internal/repository"
)

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	UserID       string
	Role         repository.Role
	EnterpriseID string
}

// EventKind names a notification-worthy change.
type EventKind string

const (
	EventDocumentCreated        EventKind = "document_created"
	EventDocumentValidated      EventKind = "document_validated"
	EventDocumentEscalated      EventKind = "document_escalated"
	EventDocumentApproved       EventKind = "document_approved"
	EventDocumentRejected       EventKind = "document_rejected"
	EventPurchaseOrderGenerated EventKind = "purchase_order_generated"
)

// Event is queued during a unit of work and delivered only after it commits.
type Event struct {
	Kind     EventKind
	Document repository.Record
	ActorID  string
	// RecipientRoles are resolved to users by the notifier;
	// RecipientUserIDs are addressed directly.
	RecipientRoles   repository.RoleSet
	RecipientUserIDs []string
	Comment          string
	OccurredAt       time.Time
}

// Notifier delivers events. Delivery is best-effort; failures never undo a
// committed transition.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Renderer turns a final document into a printable artifact and returns its
// location.
type Renderer interface {
	Render(ctx context.Context, rec repository.Record) (string, error)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }

// NopRenderer never produces an artifact.
type NopRenderer struct{}

func (NopRenderer) Render(context.Context, repository.Record) (string, error) { return "", nil }
