// Package memory is an in-process implementation of repository.Store. Units
// of work are serialized by a single mutex and rolled back by restoring a
// snapshot, which gives the same atomicity the PostgreSQL store provides.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
)

type state struct {
	docs        map[repository.DocType]map[int64]repository.Record
	nextID      map[repository.DocType]int64
	audits      []*repository.AuditEntry
	validations []*repository.ValidationEntry
	thresholds  map[int64]repository.Threshold
	nextThID    int64
	roles       []repository.RoleHolder
}

// Store keeps everything in memory.
type Store struct {
	mu sync.Mutex
	st state
}

// New creates an empty store.
func New() *Store {
	s := &Store{st: state{
		docs:       map[repository.DocType]map[int64]repository.Record{},
		nextID:     map[repository.DocType]int64{},
		thresholds: map[int64]repository.Threshold{},
	}}
	for _, t := range repository.DocTypes {
		s.st.docs[t] = map[int64]repository.Record{}
	}
	return s
}

func (st *state) snapshot() state {
	cp := state{
		docs:        make(map[repository.DocType]map[int64]repository.Record, len(st.docs)),
		nextID:      make(map[repository.DocType]int64, len(st.nextID)),
		audits:      append([]*repository.AuditEntry(nil), st.audits...),
		validations: append([]*repository.ValidationEntry(nil), st.validations...),
		thresholds:  make(map[int64]repository.Threshold, len(st.thresholds)),
		nextThID:    st.nextThID,
		roles:       append([]repository.RoleHolder(nil), st.roles...),
	}
	for t, m := range st.docs {
		inner := make(map[int64]repository.Record, len(m))
		for id, r := range m {
			inner[id] = repository.CloneRecord(r)
		}
		cp.docs[t] = inner
	}
	for t, n := range st.nextID {
		cp.nextID[t] = n
	}
	for id, th := range st.thresholds {
		cp.thresholds[id] = th
	}
	return cp
}

// InTx runs fn while holding the store lock. The state is restored when fn
// fails.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.st.snapshot()
	if err := fn(&tx{st: &s.st}); err != nil {
		s.st = saved
		return err
	}
	return nil
}

// AuditTrail implements repository.TrailReader.
func (s *Store) AuditTrail(_ context.Context, f repository.TrailFilter) ([]*repository.AuditEntry, error) {
	if err := checkFilter(f); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*repository.AuditEntry
	for _, e := range s.st.audits {
		if match(f, e.DocType, e.DocumentID, e.ActorID, e.EnterpriseID) {
			c := *e
			out = append(out, &c)
		}
	}
	return limit(out, f.Limit), nil
}

// ValidationTrail implements repository.TrailReader.
func (s *Store) ValidationTrail(_ context.Context, f repository.TrailFilter) ([]*repository.ValidationEntry, error) {
	if err := checkFilter(f); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*repository.ValidationEntry
	for _, e := range s.st.validations {
		if match(f, e.DocType, e.DocumentID, e.ActorID, e.EnterpriseID) {
			c := *e
			out = append(out, &c)
		}
	}
	return limit(out, f.Limit), nil
}

// Holders implements repository.RoleDirectory.
func (s *Store) Holders(_ context.Context, enterpriseID string, role repository.Role) ([]repository.RoleHolder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []repository.RoleHolder
	for _, h := range s.st.roles {
		if h.EnterpriseID == enterpriseID && h.Role == role {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Assign implements repository.RoleDirectory.
func (s *Store) Assign(_ context.Context, h repository.RoleHolder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.st.roles {
		if existing.EnterpriseID == h.EnterpriseID && existing.Role == h.Role && existing.UserID == h.UserID {
			s.st.roles[i] = h
			return nil
		}
	}
	s.st.roles = append(s.st.roles, h)
	return nil
}

func checkFilter(f repository.TrailFilter) error {
	if f.DocType == "" && f.DocumentID == 0 && f.ActorID == "" && f.EnterpriseID == "" {
		return errors.InvalidInput("filter", "a document, actor or enterprise is required")
	}
	return nil
}

func match(f repository.TrailFilter, t repository.DocType, id int64, actor, enterprise string) bool {
	return (f.DocType == "" || f.DocType == t) &&
		(f.DocumentID == 0 || f.DocumentID == id) &&
		(f.ActorID == "" || f.ActorID == actor) &&
		(f.EnterpriseID == "" || f.EnterpriseID == enterprise)
}

func limit[T any](in []T, n int) []T {
	if n > 0 && len(in) > n {
		return in[:n]
	}
	return in
}

// ── unit of work ─────────────────────────────────────────────────────────────

type tx struct {
	st *state
}

func (t *tx) InsertDocument(_ context.Context, rec repository.Record) error {
	h := rec.Header()
	m, ok := t.st.docs[h.Type]
	if !ok {
		return errors.InvalidInput("type", "unknown document type "+string(h.Type))
	}
	t.st.nextID[h.Type]++
	h.ID = t.st.nextID[h.Type]
	m[h.ID] = repository.CloneRecord(rec)
	return nil
}

func (t *tx) UpdateDocument(_ context.Context, rec repository.Record) error {
	h := rec.Header()
	m, ok := t.st.docs[h.Type]
	if !ok {
		return errors.InvalidInput("type", "unknown document type "+string(h.Type))
	}
	if _, ok := m[h.ID]; !ok {
		return errors.NotFound(strings.ToLower(string(h.Type)), h.ID)
	}
	if h.Code != "" {
		for id, other := range m {
			if id != h.ID && other.Header().Code == h.Code {
				return errors.InvalidInput("code", "duplicate code "+h.Code)
			}
		}
	}
	m[h.ID] = repository.CloneRecord(rec)
	return nil
}

func (t *tx) GetDocument(_ context.Context, dt repository.DocType, id int64) (repository.Record, error) {
	rec, ok := t.st.docs[dt][id]
	if !ok {
		return nil, errors.NotFound(strings.ToLower(string(dt)), id)
	}
	return repository.CloneRecord(rec), nil
}

// LockDocument is a plain read: the store lock already serializes units of
// work.
func (t *tx) LockDocument(ctx context.Context, dt repository.DocType, id int64) (repository.Record, error) {
	return t.GetDocument(ctx, dt, id)
}

func (t *tx) FindByCode(_ context.Context, dt repository.DocType, code string) (repository.Record, error) {
	for _, rec := range t.st.docs[dt] {
		if rec.Header().Code == code {
			return repository.CloneRecord(rec), nil
		}
	}
	return nil, errors.NotFound(strings.ToLower(string(dt)), code)
}

func (t *tx) CountReferences(_ context.Context, from, to repository.DocType, id int64) (int, error) {
	n := 0
	for _, rec := range t.st.docs[from] {
		if ref, ok := rec.Predecessors()[to]; ok && ref == id {
			n++
		}
	}
	return n, nil
}

func (t *tx) AppendAudit(_ context.Context, e *repository.AuditEntry) error {
	e.ID = int64(len(t.st.audits) + 1)
	c := *e
	t.st.audits = append(t.st.audits, &c)
	return nil
}

func (t *tx) AppendValidation(_ context.Context, e *repository.ValidationEntry) error {
	e.ID = int64(len(t.st.validations) + 1)
	c := *e
	t.st.validations = append(t.st.validations, &c)
	return nil
}

func (t *tx) InsertThreshold(_ context.Context, th *repository.Threshold) error {
	if th.Active {
		for _, other := range t.st.thresholds {
			if other.EnterpriseID == th.EnterpriseID && other.Active {
				return errors.InvalidInput("active", "enterprise already has an active threshold")
			}
		}
	}
	t.st.nextThID++
	th.ID = t.st.nextThID
	t.st.thresholds[th.ID] = *th
	return nil
}

func (t *tx) LockThreshold(_ context.Context, id int64) (*repository.Threshold, error) {
	th, ok := t.st.thresholds[id]
	if !ok {
		return nil, errors.NotFound("threshold", id)
	}
	return &th, nil
}

func (t *tx) ActiveThreshold(_ context.Context, enterpriseID string) (*repository.Threshold, error) {
	for _, th := range t.st.thresholds {
		if th.EnterpriseID == enterpriseID && th.Active {
			c := th
			return &c, nil
		}
	}
	return nil, nil
}

func (t *tx) SetThresholdActive(_ context.Context, id int64, active bool, at time.Time) error {
	th, ok := t.st.thresholds[id]
	if !ok {
		return errors.NotFound("threshold", id)
	}
	if active {
		for otherID, other := range t.st.thresholds {
			if otherID != id && other.EnterpriseID == th.EnterpriseID && other.Active {
				return errors.InvalidInput("active", "enterprise already has an active threshold")
			}
		}
	}
	th.Active = active
	th.UpdatedAt = at
	t.st.thresholds[id] = th
	return nil
}

func (t *tx) DeactivateThresholds(_ context.Context, enterpriseID string, except int64, at time.Time) error {
	for id, th := range t.st.thresholds {
		if id != except && th.EnterpriseID == enterpriseID && th.Active {
			th.Active = false
			th.UpdatedAt = at
			t.st.thresholds[id] = th
		}
	}
	return nil
}

var _ repository.Store = (*Store)(nil)
