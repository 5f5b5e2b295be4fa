package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-procurement/internal/common/auth"
	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
	"github.com/pesio-ai/be-ap-procurement/internal/common/logger"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
	"github.com/pesio-ai/be-ap-procurement/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	documents  *service.DocumentService
	thresholds *service.ThresholdService
	trails     *service.TrailService
	directory  *service.DirectoryService
	log        *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	documents *service.DocumentService,
	thresholds *service.ThresholdService,
	trails *service.TrailService,
	directory *service.DirectoryService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		documents:  documents,
		thresholds: thresholds,
		trails:     trails,
		directory:  directory,
		log:        log.Component("http"),
	}
}

// Register mounts every route on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)

	mux.HandleFunc("/api/v1/documents/create", h.CreateDocument)
	mux.HandleFunc("/api/v1/documents/modify", h.ModifyDocument)
	mux.HandleFunc("/api/v1/documents/validate", h.ValidateDocument)
	mux.HandleFunc("/api/v1/documents/approve", h.ApproveDocument)
	mux.HandleFunc("/api/v1/documents/reject", h.RejectDocument)
	mux.HandleFunc("/api/v1/documents/activate", h.SetDocumentActive)
	mux.HandleFunc("/api/v1/documents/get", h.GetDocument)
	mux.HandleFunc("/api/v1/documents/history", h.DocumentHistory)

	mux.HandleFunc("/api/v1/thresholds", h.CreateThreshold)
	mux.HandleFunc("/api/v1/thresholds/active", h.ActiveThreshold)
	mux.HandleFunc("/api/v1/thresholds/activate", h.ActivateThreshold)
	mux.HandleFunc("/api/v1/thresholds/deactivate", h.DeactivateThreshold)

	mux.HandleFunc("/api/v1/trail/audit", h.AuditTrail)
	mux.HandleFunc("/api/v1/trail/validations", h.ValidationTrail)

	mux.HandleFunc("/api/v1/roles", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListRoleHolders(w, r)
		case http.MethodPost:
			h.AssignRole(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ── Documents ───────────────────────────────────────────────────────────────

type createDocumentRequest struct {
	Type    string            `json:"type"`
	Payload json.RawMessage   `json:"payload"`
	Refs    map[string]string `json:"refs"`
}

type modifyDocumentRequest struct {
	Type    string          `json:"type"`
	ID      int64           `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

type transitionRequest struct {
	Type    string     `json:"type"`
	ID      documentID `json:"id"`
	Comment string     `json:"comment"`
}

type activeRequest struct {
	Type   string `json:"type"`
	ID     int64  `json:"id"`
	Active bool   `json:"active"`
}

// CreateDocument handles create document HTTP requests
func (h *HTTPHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createDocumentRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := payloadRecord(req.Type, req.Payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	refs := make(map[repository.DocType]string, len(req.Refs))
	for k, v := range req.Refs {
		t, err := repository.ParseDocType(k)
		if err != nil {
			h.writeError(w, err)
			return
		}
		refs[t] = v
	}

	out, err := h.documents.Create(r.Context(), actor, rec, refs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// ModifyDocument handles modify document HTTP requests
func (h *HTTPHandler) ModifyDocument(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req modifyDocumentRequest
	if !decode(w, r, &req) {
		return
	}
	changes, err := payloadRecord(req.Type, req.Payload)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out, err := h.documents.Modify(r.Context(), actor, repository.TypeOf(changes), req.ID, changes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ValidateDocument handles validate HTTP requests
func (h *HTTPHandler) ValidateDocument(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.documents.Validate)
}

// ApproveDocument handles approve HTTP requests
func (h *HTTPHandler) ApproveDocument(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.documents.Approve)
}

// RejectDocument handles reject HTTP requests
func (h *HTTPHandler) RejectDocument(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.documents.Reject)
}

type transitionFunc func(ctx context.Context, actor service.Actor, t repository.DocType, id int64, comment string) (repository.Record, error)

func (h *HTTPHandler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := repository.ParseDocType(req.Type)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out, err := fn(r.Context(), actor, t, int64(req.ID), req.Comment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// SetDocumentActive handles activate/deactivate HTTP requests
func (h *HTTPHandler) SetDocumentActive(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req activeRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := repository.ParseDocType(req.Type)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out, err := h.documents.SetActive(r.Context(), actor, t, req.ID, req.Active)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetDocument handles get document HTTP requests. Either code or type and id
// must be given.
func (h *HTTPHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var (
		out repository.Record
		err error
	)
	if code := r.URL.Query().Get("code"); code != "" {
		out, err = h.documents.GetByCode(r.Context(), actor, code)
	} else {
		var t repository.DocType
		var id int64
		t, id, err = documentRef(r)
		if err == nil {
			out, err = h.documents.Get(r.Context(), actor, t, id)
		}
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DocumentHistory handles document history HTTP requests
func (h *HTTPHandler) DocumentHistory(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	t, id, err := documentRef(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out, err := h.documents.History(r.Context(), actor, t, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ── Thresholds ──────────────────────────────────────────────────────────────

type createThresholdRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Activate bool            `json:"activate"`
}

type thresholdRequest struct {
	ID int64 `json:"id"`
}

// CreateThreshold handles create threshold HTTP requests
func (h *HTTPHandler) CreateThreshold(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createThresholdRequest
	if !decode(w, r, &req) {
		return
	}
	th, err := h.thresholds.Create(r.Context(), actor, req.Amount, req.Activate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, th)
}

// ActiveThreshold handles active threshold HTTP requests
func (h *HTTPHandler) ActiveThreshold(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	th, err := h.thresholds.Active(r.Context(), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, th)
}

// ActivateThreshold handles activate threshold HTTP requests
func (h *HTTPHandler) ActivateThreshold(w http.ResponseWriter, r *http.Request) {
	h.setThreshold(w, r, h.thresholds.Activate)
}

// DeactivateThreshold handles deactivate threshold HTTP requests
func (h *HTTPHandler) DeactivateThreshold(w http.ResponseWriter, r *http.Request) {
	h.setThreshold(w, r, h.thresholds.Deactivate)
}

func (h *HTTPHandler) setThreshold(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor service.Actor, id int64) (*repository.Threshold, error)) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req thresholdRequest
	if !decode(w, r, &req) {
		return
	}
	th, err := fn(r.Context(), actor, req.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, th)
}

// ── Trails ──────────────────────────────────────────────────────────────────

// AuditTrail handles audit trail HTTP requests
func (h *HTTPHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	q, err := trailQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	entries, err := h.trails.Audit(r.Context(), actor, q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}

// ValidationTrail handles validation trail HTTP requests
func (h *HTTPHandler) ValidationTrail(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	q, err := trailQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	entries, err := h.trails.Validations(r.Context(), actor, q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}

// ── Roles ───────────────────────────────────────────────────────────────────

type assignRoleRequest struct {
	Role   string `json:"role"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// AssignRole handles role assignment HTTP requests
func (h *HTTPHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req assignRoleRequest
	if !decode(w, r, &req) {
		return
	}
	holder, err := h.directory.Assign(r.Context(), actor, repository.Role(req.Role), req.UserID, req.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, holder)
}

// ListRoleHolders handles role holder listing HTTP requests
func (h *HTTPHandler) ListRoleHolders(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	role := repository.Role(strings.ToUpper(r.URL.Query().Get("role")))
	if role == "" {
		h.writeError(w, errors.InvalidInput("role", "is required"))
		return
	}
	holders, err := h.directory.Holders(r.Context(), actor, role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"holders": holders,
		"total":   len(holders),
	})
}

// ── Helpers ─────────────────────────────────────────────────────────────────

func (h *HTTPHandler) actor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	uc, err := auth.GetUserContext(r.Context())
	if err != nil {
		h.writeError(w, err)
		return service.Actor{}, false
	}
	return actorFrom(uc), true
}

func actorFrom(uc *auth.UserContext) service.Actor {
	return service.Actor{
		UserID:       uc.UserID,
		Role:         repository.Role(uc.Role),
		EnterpriseID: uc.EnterpriseID,
	}
}

func payloadRecord(typ string, payload json.RawMessage) (repository.Record, error) {
	t, err := repository.ParseDocType(typ)
	if err != nil {
		return nil, err
	}
	rec := repository.NewRecord(t)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, rec); err != nil {
			return nil, errors.InvalidInput("payload", err.Error())
		}
	}
	return rec, nil
}

func documentRef(r *http.Request) (repository.DocType, int64, error) {
	t, err := repository.ParseDocType(r.URL.Query().Get("type"))
	if err != nil {
		return "", 0, err
	}
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		return "", 0, errors.InvalidInput("id", "must be a positive integer")
	}
	return t, id, nil
}

func trailQuery(r *http.Request) (service.TrailQuery, error) {
	var q service.TrailQuery
	query := r.URL.Query()

	if v := query.Get("type"); v != "" {
		t, err := repository.ParseDocType(v)
		if err != nil {
			return q, err
		}
		q.DocType = t
	}
	if v := query.Get("document_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return q, errors.InvalidInput("document_id", "must be an integer")
		}
		q.DocumentID = id
	}
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, errors.InvalidInput("limit", "must be an integer")
		}
		q.Limit = n
	}
	q.ActorID = query.Get("actor_id")
	return q, nil
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Code:  string(errors.ErrCodeInvalidInput),
			Error: "Invalid request body",
		})
		return false
	}
	return true
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	body := errorBody{Code: string(code), Error: err.Error()}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		body.Field = appErr.Field
	}
	if code == errors.ErrCodeInternal {
		h.log.Error().Err(err).Msg("request failed")
		body.Error = "internal error"
	}
	writeJSON(w, errors.HTTPStatus(code), body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
