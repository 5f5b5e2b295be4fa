package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
	"github.com/pesio-ai/be-ap-procurement/internal/common/logger"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
	"github.com/pesio-ai/be-ap-procurement/internal/sequencer"
)

// DocumentService is the transition engine. One generic implementation of
// create, modify, validate, approve, reject and activate serves all eight
// document types through their Definition.
type DocumentService struct {
	store    repository.Store
	notifier Notifier
	renderer Renderer
	ledger   *CreditLedger
	chain    *ChainAssembler
	defs     map[repository.DocType]*Definition
	tel      *telemetry
	clock    func() time.Time
	log      *logger.Logger
}

// Option configures a DocumentService.
type Option func(*DocumentService)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *DocumentService) { s.clock = clock }
}

// WithNotifier sets the notification collaborator.
func WithNotifier(n Notifier) Option {
	return func(s *DocumentService) { s.notifier = n }
}

// WithRenderer sets the rendering collaborator.
func WithRenderer(r Renderer) Option {
	return func(s *DocumentService) { s.renderer = r }
}

// NewDocumentService creates a new document service
func NewDocumentService(
	store repository.Store,
	ledger *CreditLedger,
	log *logger.Logger,
	opts ...Option,
) *DocumentService {
	if ledger == nil {
		ledger = NewCreditLedger(LedgerUncapped)
	}
	s := &DocumentService{
		store:    store,
		notifier: NopNotifier{},
		renderer: NopRenderer{},
		ledger:   ledger,
		chain:    &ChainAssembler{},
		tel:      newTelemetry(),
		clock:    time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.defs = s.definitions()
	return s
}

// Definition returns the configuration of document type t.
func (s *DocumentService) Definition(t repository.DocType) (*Definition, error) {
	def, ok := s.defs[t]
	if !ok {
		return nil, errors.InvalidInput("type", fmt.Sprintf("unknown document type %q", t))
	}
	return def, nil
}

func (s *DocumentService) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

// ── Unit of work ─────────────────────────────────────────────────────────────

// unit carries one transaction and what must happen once it commits.
type unit struct {
	ctx     context.Context
	tx      repository.Tx
	actor   Actor
	now     time.Time
	events  []Event
	renders []repository.Record
}

// insert persists a new IN_PROGRESS record, then assigns its code.
func (u *unit) insert(rec repository.Record, note string) error {
	h := rec.Header()
	h.Code = ""
	h.Status = repository.StatusInProgress
	h.Active = true
	h.CreatedAt = u.now
	h.UpdatedAt = u.now

	if err := u.tx.InsertDocument(u.ctx, rec); err != nil {
		return err
	}
	code, err := sequencer.Generate(h.Type, h.ID, h.CreatedAt)
	if err != nil {
		return err
	}
	h.Code = code
	if err := u.tx.UpdateDocument(u.ctx, rec); err != nil {
		return err
	}
	return u.audit(rec, "", false, note)
}

func (u *unit) audit(rec repository.Record, oldStatus repository.Status, oldActive bool, note string) error {
	h := rec.Header()
	return u.tx.AppendAudit(u.ctx, &repository.AuditEntry{
		DocType:      h.Type,
		DocumentID:   h.ID,
		EnterpriseID: h.EnterpriseID,
		ActorID:      u.actor.UserID,
		ActorRole:    u.actor.Role,
		OldStatus:    oldStatus,
		NewStatus:    h.Status,
		OldActive:    oldActive,
		NewActive:    h.Active,
		Note:         note,
		CreatedAt:    u.now,
	})
}

func (u *unit) validation(rec repository.Record, outcome repository.Outcome, comment string) error {
	h := rec.Header()
	return u.tx.AppendValidation(u.ctx, &repository.ValidationEntry{
		DocType:      h.Type,
		DocumentID:   h.ID,
		EnterpriseID: h.EnterpriseID,
		ActorID:      u.actor.UserID,
		ActorRole:    u.actor.Role,
		Outcome:      outcome,
		Comment:      comment,
		CreatedAt:    u.now,
	})
}

// emit queues an event with a snapshot of the document.
func (u *unit) emit(ev Event) {
	ev.Document = repository.CloneRecord(ev.Document)
	ev.ActorID = u.actor.UserID
	ev.OccurredAt = u.now
	u.events = append(u.events, ev)
}

// load locks a document of the actor's enterprise. Documents of other
// enterprises are reported as not found.
func (u *unit) load(t repository.DocType, id int64) (repository.Record, error) {
	rec, err := u.tx.LockDocument(u.ctx, t, id)
	if err != nil {
		return nil, err
	}
	if rec.Header().EnterpriseID != u.actor.EnterpriseID {
		return nil, errors.NotFound(humanType(t), id)
	}
	return rec, nil
}

// run executes fn as one unit of work and, once committed, delivers its
// queued side effects.
func (s *DocumentService) run(ctx context.Context, actor Actor, fn func(u *unit) error) error {
	u := &unit{actor: actor, now: s.now()}
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		u.ctx, u.tx = ctx, tx
		u.events, u.renders = nil, nil
		return fn(u)
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, u)
	return nil
}

// ── Create / modify ──────────────────────────────────────────────────────────

// Create persists a new document of rec's type. refs may name predecessors by
// code instead of id.
func (s *DocumentService) Create(ctx context.Context, actor Actor, rec repository.Record, refs map[repository.DocType]string) (out repository.Record, err error) {
	t := repository.TypeOf(rec)
	def, err := s.Definition(t)
	if err != nil {
		return nil, err
	}
	ctx, done := s.tel.start(ctx, ActionCreate, t)
	defer func() { done(err) }()

	if !def.Creators.Has(actor.Role) {
		return nil, errors.Unauthorized(fmt.Sprintf("role %s may not create %s", actor.Role, humanType(t)))
	}

	err = s.run(ctx, actor, func(u *unit) error {
		*rec.Header() = repository.Document{
			Type:         t,
			EnterpriseID: actor.EnterpriseID,
			CreatedBy:    actor.UserID,
		}
		if def.Init != nil {
			def.Init(rec, u.now)
		}
		if err := s.chain.Resolve(u, rec, refs); err != nil {
			return err
		}
		if err := def.Check(rec); err != nil {
			return err
		}
		if err := u.insert(rec, "created"); err != nil {
			return err
		}

		if gate := def.firstGate(); len(gate) > 0 {
			u.emit(Event{Kind: EventDocumentCreated, Document: rec, RecipientRoles: gate})
		}
		if def.Renders && def.Phase(repository.StatusInProgress) == repository.PhaseTerminal {
			u.renders = append(u.renders, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_type", string(t)).
		Int64("document_id", rec.Header().ID).
		Str("code", rec.Header().Code).
		Str("actor_id", actor.UserID).
		Msg("Document created")

	return s.present(def, rec), nil
}

// Modify applies the editable fields of changes to a document. A VALIDATED or
// APPROVED document is demoted to IN_PROGRESS; a REJECTED one stays REJECTED.
func (s *DocumentService) Modify(ctx context.Context, actor Actor, t repository.DocType, id int64, changes repository.Record) (out repository.Record, err error) {
	def, err := s.Definition(t)
	if err != nil {
		return nil, err
	}
	ctx, done := s.tel.start(ctx, ActionModify, t)
	defer func() { done(err) }()

	if !def.Editors.Has(actor.Role) {
		return nil, errors.Unauthorized(fmt.Sprintf("role %s may not modify %s", actor.Role, humanType(t)))
	}
	if repository.TypeOf(changes) != t {
		return nil, errors.InvalidInput("payload", "payload does not match document type "+string(t))
	}

	var rec repository.Record
	err = s.run(ctx, actor, func(u *unit) error {
		var err error
		if rec, err = u.load(t, id); err != nil {
			return err
		}
		h := rec.Header()
		if def.Edit == nil || def.sealed(h.Status) {
			return errors.InvalidState(fmt.Sprintf("%s %s can no longer be modified", humanType(t), h.Code))
		}
		linked, err := s.chain.HasSuccessors(u, rec)
		if err != nil {
			return err
		}
		if linked {
			return errors.InvalidState(fmt.Sprintf("%s %s is referenced by a later document", humanType(t), h.Code))
		}

		def.Edit(rec, changes)
		if err := def.Check(rec); err != nil {
			return err
		}

		old := h.Status
		if old == repository.StatusValidated || old == repository.StatusApproved {
			h.Status = repository.StatusInProgress
		}
		h.UpdatedAt = u.now
		if err := u.tx.UpdateDocument(u.ctx, rec); err != nil {
			return err
		}
		note := "modified"
		if old != h.Status {
			note = "modified; reset to " + string(h.Status)
		}
		return u.audit(rec, old, h.Active, note)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_type", string(t)).
		Int64("document_id", id).
		Str("status", string(rec.Header().Status)).
		Str("actor_id", actor.UserID).
		Msg("Document modified")

	return s.present(def, rec), nil
}

// ── Transitions ──────────────────────────────────────────────────────────────

// Validate performs the type's validate step.
func (s *DocumentService) Validate(ctx context.Context, actor Actor, t repository.DocType, id int64, comment string) (repository.Record, error) {
	return s.transition(ctx, actor, ActionValidate, t, id, comment)
}

// Approve performs the type's approve step.
func (s *DocumentService) Approve(ctx context.Context, actor Actor, t repository.DocType, id int64, comment string) (repository.Record, error) {
	return s.transition(ctx, actor, ActionApprove, t, id, comment)
}

// Reject moves a non-final document to REJECTED. The comment is mandatory.
func (s *DocumentService) Reject(ctx context.Context, actor Actor, t repository.DocType, id int64, comment string) (repository.Record, error) {
	return s.transition(ctx, actor, ActionReject, t, id, comment)
}

func (s *DocumentService) transition(ctx context.Context, actor Actor, action Action, t repository.DocType, id int64, comment string) (out repository.Record, err error) {
	def, err := s.Definition(t)
	if err != nil {
		return nil, err
	}
	ctx, done := s.tel.start(ctx, action, t)
	defer func() { done(err) }()

	comment = strings.TrimSpace(comment)
	if action == ActionReject && comment == "" {
		return nil, errors.InvalidInput("comment", "a comment is required to reject")
	}

	var (
		rec  repository.Record
		from repository.Status
		step Step
	)
	err = s.run(ctx, actor, func(u *unit) error {
		var err error
		if rec, err = u.load(t, id); err != nil {
			return err
		}
		h := rec.Header()

		if action == ActionReject {
			step, err = def.planReject(actor.Role, rec)
		} else {
			step, err = def.plan(action, actor.Role, rec, func() (*repository.Threshold, error) {
				return u.tx.ActiveThreshold(u.ctx, h.EnterpriseID)
			})
		}
		if err != nil {
			return err
		}

		from = h.Status
		h.Status = step.To
		h.UpdatedAt = u.now
		if err := u.tx.UpdateDocument(u.ctx, rec); err != nil {
			return err
		}
		if err := u.audit(rec, from, h.Active, string(step.Outcome)); err != nil {
			return err
		}
		if err := u.validation(rec, step.Outcome, comment); err != nil {
			return err
		}
		if hook := def.OnEnter[step.To]; hook != nil {
			if err := hook(u, rec); err != nil {
				return err
			}
		}

		s.queue(u, def, rec, step, comment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_type", string(t)).
		Int64("document_id", id).
		Str("code", rec.Header().Code).
		Str("action", string(action)).
		Str("from", string(from)).
		Str("to", string(step.To)).
		Str("outcome", string(step.Outcome)).
		Str("actor_id", actor.UserID).
		Str("actor_role", string(actor.Role)).
		Msg("Document transitioned")

	return s.present(def, rec), nil
}

// queue schedules the notifications and rendering that follow a transition.
func (s *DocumentService) queue(u *unit, def *Definition, rec repository.Record, step Step, comment string) {
	creator := []string{rec.Header().CreatedBy}

	switch {
	case step.To == repository.StatusRejected:
		u.emit(Event{Kind: EventDocumentRejected, Document: rec, RecipientUserIDs: creator, Comment: comment})
	case step.Outcome == repository.OutcomeEscalated:
		u.emit(Event{Kind: EventDocumentEscalated, Document: rec,
			RecipientRoles: repository.RoleSet{repository.RoleDirector}, Comment: comment})
	case def.Phase(step.To) == repository.PhaseTerminal:
		kind := EventDocumentApproved
		if step.Outcome == repository.OutcomeValidated {
			kind = EventDocumentValidated
		}
		u.emit(Event{Kind: kind, Document: rec, RecipientUserIDs: creator, Comment: comment})
		if def.Renders {
			u.renders = append(u.renders, rec)
		}
	default:
		var next repository.RoleSet
		if def.Approve != nil && def.Approve.From == step.To {
			next = def.Approve.Roles
		}
		u.emit(Event{Kind: EventDocumentValidated, Document: rec, RecipientRoles: next, Comment: comment})
	}
}

// SetActive sets a document's active flag. Setting the current value is a
// no-op and writes nothing.
func (s *DocumentService) SetActive(ctx context.Context, actor Actor, t repository.DocType, id int64, active bool) (out repository.Record, err error) {
	def, err := s.Definition(t)
	if err != nil {
		return nil, err
	}
	ctx, done := s.tel.start(ctx, ActionActivate, t)
	defer func() { done(err) }()

	if !def.Activators.Has(actor.Role) {
		return nil, errors.Unauthorized(fmt.Sprintf("role %s may not change the active flag of %s", actor.Role, humanType(t)))
	}

	var rec repository.Record
	err = s.run(ctx, actor, func(u *unit) error {
		var err error
		if rec, err = u.load(t, id); err != nil {
			return err
		}
		h := rec.Header()
		if h.Active == active {
			return nil
		}
		old := h.Active
		h.Active = active
		h.UpdatedAt = u.now
		if err := u.tx.UpdateDocument(u.ctx, rec); err != nil {
			return err
		}
		note := "deactivated"
		if active {
			note = "activated"
		}
		return u.audit(rec, h.Status, old, note)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_type", string(t)).
		Int64("document_id", id).
		Bool("active", active).
		Str("actor_id", actor.UserID).
		Msg("Document active flag set")

	return s.present(def, rec), nil
}

// ── Reads ────────────────────────────────────────────────────────────────────

// Get returns a document of the actor's enterprise.
func (s *DocumentService) Get(ctx context.Context, actor Actor, t repository.DocType, id int64) (repository.Record, error) {
	def, err := s.Definition(t)
	if err != nil {
		return nil, err
	}
	var rec repository.Record
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		rec, err = tx.GetDocument(ctx, t, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rec.Header().EnterpriseID != actor.EnterpriseID {
		return nil, errors.NotFound(humanType(t), id)
	}
	return s.present(def, rec), nil
}

// GetByCode resolves a document from its code.
func (s *DocumentService) GetByCode(ctx context.Context, actor Actor, code string) (repository.Record, error) {
	parsed, err := sequencer.Parse(strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	def, err := s.Definition(parsed.Type)
	if err != nil {
		return nil, err
	}
	var rec repository.Record
	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		rec, err = tx.FindByCode(ctx, parsed.Type, strings.TrimSpace(code))
		return err
	})
	if err != nil {
		return nil, err
	}
	if rec.Header().EnterpriseID != actor.EnterpriseID {
		return nil, errors.NotFound(humanType(parsed.Type), code)
	}
	return s.present(def, rec), nil
}

// History is a document with both of its trails.
type History struct {
	Document    repository.Record             `json:"document"`
	Audit       []*repository.AuditEntry      `json:"audit"`
	Validations []*repository.ValidationEntry `json:"validations"`
}

// History returns a document and every trail entry written for it.
func (s *DocumentService) History(ctx context.Context, actor Actor, t repository.DocType, id int64) (*History, error) {
	rec, err := s.Get(ctx, actor, t, id)
	if err != nil {
		return nil, err
	}
	f := repository.TrailFilter{DocType: t, DocumentID: id, EnterpriseID: actor.EnterpriseID}
	audit, err := s.store.AuditTrail(ctx, f)
	if err != nil {
		return nil, err
	}
	validations, err := s.store.ValidationTrail(ctx, f)
	if err != nil {
		return nil, err
	}
	return &History{Document: rec, Audit: audit, Validations: validations}, nil
}

func (s *DocumentService) present(def *Definition, rec repository.Record) repository.Record {
	h := rec.Header()
	h.Phase = def.Phase(h.Status)
	return rec
}

// ── After commit ─────────────────────────────────────────────────────────────

// afterCommit delivers notifications and renders documents. Failures are
// logged and never undo the committed unit of work.
func (s *DocumentService) afterCommit(ctx context.Context, u *unit) {
	for _, ev := range u.events {
		if err := s.notifier.Notify(ctx, ev); err != nil {
			h := ev.Document.Header()
			s.log.Warn().Err(err).
				Str("event", string(ev.Kind)).
				Str("document_type", string(h.Type)).
				Int64("document_id", h.ID).
				Msg("Failed to deliver notification")
		}
	}
	for _, rec := range u.renders {
		s.render(ctx, rec)
	}
}

func (s *DocumentService) render(ctx context.Context, rec repository.Record) {
	h := rec.Header()
	url, err := s.renderer.Render(ctx, repository.CloneRecord(rec))
	if err != nil {
		s.log.Warn().Err(err).
			Str("document_type", string(h.Type)).
			Int64("document_id", h.ID).
			Msg("Failed to render document")
		return
	}
	if url == "" {
		return
	}

	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		cur, err := tx.LockDocument(ctx, h.Type, h.ID)
		if err != nil {
			return err
		}
		cur.Header().DocumentURL = url
		return tx.UpdateDocument(ctx, cur)
	})
	if err != nil {
		s.log.Warn().Err(err).
			Str("document_type", string(h.Type)).
			Int64("document_id", h.ID).
			Msg("Failed to store rendered document url")
		return
	}
	h.DocumentURL = url
}
