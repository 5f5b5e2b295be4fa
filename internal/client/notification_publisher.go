package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-procurement/internal/repository"
	"github.com/pesio-ai/be-ap-procurement/internal/service"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "notifications.procurement"

// Publisher is the subset of *nats.Conn the publisher needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NotificationPublisher publishes procurement events to NATS for consumption
// by the notifications service.
//
// Subject convention: <prefix>.<event_kind>, e.g.
// notifications.procurement.document_escalated
//
// Role recipients are resolved to users through the role directory. An event
// with no recipient is dropped.
type NotificationPublisher struct {
	conn      Publisher
	directory repository.RoleDirectory
	prefix    string
	log       zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventID      string                 `json:"event_id"`
	EventType    string                 `json:"event_type"`
	EnterpriseID string                 `json:"enterprise_id"`
	ActorID      string                 `json:"actor_id"`
	Recipients   []string               `json:"recipients"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	IsActionable bool                   `json:"is_actionable,omitempty"`
	Severity     string                 `json:"severity"`
	Category     string                 `json:"category"`
	OccurredAt   time.Time              `json:"occurred_at"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection disables publishing.
func NewNotificationPublisher(conn Publisher, directory repository.RoleDirectory, prefix string, log zerolog.Logger) *NotificationPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NotificationPublisher{
		conn:      conn,
		directory: directory,
		prefix:    strings.TrimSuffix(prefix, "."),
		log:       log,
	}
}

// Notify implements service.Notifier.
func (p *NotificationPublisher) Notify(ctx context.Context, ev service.Event) error {
	if p.conn == nil || ev.Document == nil {
		return nil
	}
	h := ev.Document.Header()

	recipients, err := p.recipients(ctx, h.EnterpriseID, ev)
	if err != nil {
		return fmt.Errorf("resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		p.log.Debug().
			Str("event_type", string(ev.Kind)).
			Str("code", h.Code).
			Msg("notification: no recipient, event dropped")
		return nil
	}

	event := &NotificationEvent{
		EventID:      uuid.NewString(),
		EventType:    string(ev.Kind),
		EnterpriseID: h.EnterpriseID,
		ActorID:      ev.ActorID,
		Recipients:   recipients,
		ResourceType: strings.ToLower(string(h.Type)),
		ResourceID:   h.Code,
		IsActionable: len(ev.RecipientRoles) > 0,
		Severity:     severity(ev.Kind),
		Category:     "procurement",
		OccurredAt:   ev.OccurredAt,
		Payload: map[string]interface{}{
			"document_id": h.ID,
			"status":      h.Status,
			"amount":      ev.Document.Total().StringFixed(2),
		},
	}
	if ev.Comment != "" {
		event.Payload["comment"] = ev.Comment
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := p.prefix + "." + string(ev.Kind)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.log.Debug().
		Str("subject", subject).
		Str("code", h.Code).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
	return nil
}

func (p *NotificationPublisher) recipients(ctx context.Context, enterpriseID string, ev service.Event) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, id := range ev.RecipientUserIDs {
		add(id)
	}
	if p.directory == nil {
		return out, nil
	}
	for _, role := range ev.RecipientRoles {
		holders, err := p.directory.Holders(ctx, enterpriseID, role)
		if err != nil {
			return nil, err
		}
		for _, h := range holders {
			add(h.UserID)
		}
	}
	return out, nil
}

func severity(kind service.EventKind) string {
	switch kind {
	case service.EventDocumentRejected:
		return "warning"
	case service.EventDocumentEscalated:
		return "high"
	}
	return "info"
}
