package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/srscore/internal/domain"
	"github.com/avolkov/srscore/internal/service/study/session"
)

// assemblerService is the minimal interface StudyHandler needs from the
// session assembler.
type assemblerService interface {
	StartSession(ctx context.Context, req domain.SessionRequest, now time.Time) (*session.Context, domain.AssembleResult, error)
	Submit(ctx context.Context, sc *session.Context, item domain.SessionItem, grade domain.Grade, now time.Time, latencyMs *int) error
	EndSession(ctx context.Context, sc *session.Context) error
	AbandonSession(ctx context.Context, sc *session.Context)
}

// StudyHandler serves the study-session REST endpoints: start_session,
// submit, end_session. Sessions are caller-held values (§9) that this
// handler keeps alive in memory between requests, keyed by session id.
type StudyHandler struct {
	svc assemblerService
	log *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*liveSession
}

type liveSession struct {
	ctx   *session.Context
	items map[itemKey]domain.SessionItem
}

type itemKey struct {
	wordID       uuid.UUID
	exerciseType domain.ExerciseType
}

// NewStudyHandler creates a StudyHandler.
func NewStudyHandler(svc assemblerService, logger *slog.Logger) *StudyHandler {
	return &StudyHandler{
		svc:      svc,
		log:      logger.With("handler", "study"),
		sessions: make(map[uuid.UUID]*liveSession),
	}
}

type startSessionRequest struct {
	UserID       uuid.UUID           `json:"userId"`
	ExerciseType domain.ExerciseType `json:"exerciseType"`
	Size         int                 `json:"size"`
	LTMFraction  float64             `json:"ltmFraction"`
	Seed         int64               `json:"seed"`
	FilterKnown  bool                `json:"filterKnown"`
}

type sessionItemResponse struct {
	WordID       uuid.UUID           `json:"wordId"`
	ExerciseType domain.ExerciseType `json:"exerciseType"`
	TenseStep    string              `json:"tenseStep,omitempty"`
	Source       domain.PoolKind     `json:"source"`
	Lemma        string              `json:"lemma"`
	Translation  string              `json:"translation,omitempty"`
}

type startSessionResponse struct {
	SessionID uuid.UUID             `json:"sessionId"`
	Items     []sessionItemResponse `json:"items"`
	Reason    string                `json:"reason,omitempty"`
}

// StartSession handles POST /study/sessions.
func (h *StudyHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	now := time.Now().UTC()
	sc, result, err := h.svc.StartSession(r.Context(), domain.SessionRequest{
		UserID:       req.UserID,
		ExerciseType: req.ExerciseType,
		Size:         req.Size,
		LTMFraction:  req.LTMFraction,
		Seed:         req.Seed,
		FilterKnown:  req.FilterKnown,
	}, now)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	live := &liveSession{ctx: sc, items: make(map[itemKey]domain.SessionItem, len(result.Items))}
	for _, item := range result.Items {
		live.items[itemKey{item.WordID, item.ExerciseType}] = item
	}

	h.mu.Lock()
	h.sessions[sc.ID] = live
	h.mu.Unlock()

	resp := startSessionResponse{SessionID: sc.ID, Reason: result.Reason}
	for _, item := range result.Items {
		resp.Items = append(resp.Items, sessionItemResponse{
			WordID:       item.WordID,
			ExerciseType: item.ExerciseType,
			TenseStep:    item.TenseStep,
			Source:       item.Source,
			Lemma:        item.Word.Lemma,
			Translation:  item.Word.Translation,
		})
	}
	writeJSON(w, http.StatusCreated, resp)
}

type submitRequest struct {
	WordID       uuid.UUID           `json:"wordId"`
	ExerciseType domain.ExerciseType `json:"exerciseType"`
	Grade        domain.Grade        `json:"grade"`
	LatencyMs    *int                `json:"latencyMs,omitempty"`
}

// Submit handles POST /study/sessions/{id}/submit.
func (h *StudyHandler) Submit(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.mu.Lock()
	live, ok := h.sessions[sessionID]
	h.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	item, ok := live.items[itemKey{req.WordID, req.ExerciseType}]
	if !ok {
		writeError(w, http.StatusBadRequest, "word was not offered in this session")
		return
	}

	if err := h.svc.Submit(r.Context(), live.ctx, item, req.Grade, time.Now().UTC(), req.LatencyMs); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type endSessionResponse struct {
	SessionID uuid.UUID            `json:"sessionId"`
	Status    domain.SessionStatus `json:"status"`
}

// EndSession handles POST /study/sessions/{id}/end.
func (h *StudyHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	h.mu.Lock()
	live, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	if err := h.svc.EndSession(r.Context(), live.ctx); err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, endSessionResponse{SessionID: live.ctx.ID, Status: live.ctx.Status})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func (h *StudyHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.log.Error("study handler error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
