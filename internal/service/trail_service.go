package service

import (
	"context"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
)

// DefaultTrailLimit caps trail queries without an explicit limit.
const DefaultTrailLimit = 200

// TrailService queries the audit log and the validation ledger. Every query
// is scoped to the actor's enterprise.
type TrailService struct {
	trails repository.TrailReader
}

// NewTrailService creates a new trail service
func NewTrailService(trails repository.TrailReader) *TrailService {
	return &TrailService{trails: trails}
}

// TrailQuery narrows a trail query to a document or an acting user. An empty
// query returns the whole enterprise trail.
type TrailQuery struct {
	DocType    repository.DocType
	DocumentID int64
	ActorID    string
	Limit      int
}

func (q TrailQuery) filter(actor Actor) (repository.TrailFilter, error) {
	if q.DocumentID != 0 && q.DocType == "" {
		return repository.TrailFilter{}, errors.InvalidInput("type", "a document id needs its type")
	}
	if q.Limit < 0 {
		return repository.TrailFilter{}, errors.InvalidInput("limit", "must not be negative")
	}
	limit := q.Limit
	if limit == 0 {
		limit = DefaultTrailLimit
	}
	return repository.TrailFilter{
		DocType:      q.DocType,
		DocumentID:   q.DocumentID,
		ActorID:      q.ActorID,
		EnterpriseID: actor.EnterpriseID,
		Limit:        limit,
	}, nil
}

// Audit returns audit entries, oldest first.
func (s *TrailService) Audit(ctx context.Context, actor Actor, q TrailQuery) ([]*repository.AuditEntry, error) {
	f, err := q.filter(actor)
	if err != nil {
		return nil, err
	}
	return s.trails.AuditTrail(ctx, f)
}

// Validations returns validation entries, oldest first.
func (s *TrailService) Validations(ctx context.Context, actor Actor, q TrailQuery) ([]*repository.ValidationEntry, error) {
	f, err := q.filter(actor)
	if err != nil {
		return nil, err
	}
	return s.trails.ValidationTrail(ctx, f)
}
