package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/paulexconde/followup/internal/services"
)

// SessionHandler exposes the questionnaire engine's session operations.
type SessionHandler struct {
	engine services.EngineService
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(engine services.EngineService) *SessionHandler {
	return &SessionHandler{engine: engine}
}

// CreateSessionRequest is the request body for opening a session.
type CreateSessionRequest struct {
	QuestionnaireID string     `json:"questionnaire_id"`
	CaseID          *string    `json:"case_id,omitempty"`
	DurationSecs    int64      `json:"duration_secs,omitempty"`
	SubmitBefore    *time.Time `json:"submit_before,omitempty"`
}

// SubmitAnswerRequest is the request body for answering a question.
type SubmitAnswerRequest struct {
	QuestionID string          `json:"question_id"`
	Payload    json.RawMessage `json:"payload"`
}

// Create handles POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QuestionnaireID == "" {
		writeError(w, http.StatusBadRequest, "questionnaire_id is required")
		return
	}

	session, err := h.engine.CreateSession(r.Context(), services.CreateSessionInput{
		QuestionnaireID: req.QuestionnaireID,
		CaseID:          req.CaseID,
		Duration:        time.Duration(req.DurationSecs) * time.Second,
		SubmitBefore:    req.SubmitBefore,
	})
	if err != nil {
		writeFault(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// Get handles GET /v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	session, err := h.engine.GetSession(r.Context(), id, time.Now())
	if err != nil {
		writeFault(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// SubmitAnswer handles POST /v1/sessions/{id}/answers
func (h *SessionHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QuestionID == "" {
		writeError(w, http.StatusBadRequest, "question_id is required")
		return
	}

	answer, next, err := h.engine.SubmitAnswer(r.Context(), id, req.QuestionID, req.Payload, time.Now())
	if err != nil {
		writeFault(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"answer":        answer,
		"next_question": next,
	})
}

// GetPath handles GET /v1/sessions/{id}/path
func (h *SessionHandler) GetPath(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	result, err := h.engine.GetPath(r.Context(), id)
	if err != nil {
		writeFault(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Freeze handles POST /v1/sessions/{id}/freeze
func (h *SessionHandler) Freeze(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	session, err := h.engine.Freeze(r.Context(), id, time.Now())
	if err != nil {
		writeFault(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// ListByCase handles GET /v1/cases/{id}/sessions
func (h *SessionHandler) ListByCase(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sessions, err := h.engine.ListSessionsByCase(r.Context(), caseID, page, limit)
	if err != nil {
		writeFault(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}
