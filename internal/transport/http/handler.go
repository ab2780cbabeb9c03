package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"cybersafe-assessment-service/internal/app"
	"cybersafe-assessment-service/internal/auth"
	"cybersafe-assessment-service/internal/domain"
)

// Handler exposes the assessment REST surface. Routing of the rest of the
// portal (pages, CMS, auth issuance) lives elsewhere; this mux only carries
// the session lifecycle.
type Handler struct {
	service  *app.AssessmentService
	verifier *auth.Verifier
}

func NewHandler(service *app.AssessmentService, verifier *auth.Verifier) *Handler {
	return &Handler{service: service, verifier: verifier}
}

// Routes mounts the assessment endpoints on a fresh mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /quiz/{quizId}/start", h.handleStart)
	mux.HandleFunc("POST /quiz-session/{sessionId}/submit", h.handleSubmit)
	mux.HandleFunc("GET /quiz-session/{sessionId}/watch", h.handleWatch)
	return mux
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	userID, err := h.verifier.FromRequest(r)
	if err != nil {
		writeError(w, domain.ErrUnauthorized)
		return
	}
	view, err := h.service.Start(r.Context(), userID, r.PathValue("quizId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type submitRequest struct {
	Answers map[string]domain.Answer `json:"answers"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	userID, err := h.verifier.FromRequest(r)
	if err != nil {
		writeError(w, domain.ErrUnauthorized)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid submit payload"})
		return
	}
	result, err := h.service.Submit(r.Context(), userID, r.PathValue("sessionId"), req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrRetryNotAllowed),
		errors.Is(err, domain.ErrSessionExpired),
		errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAnswer):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Printf("assessment handler error: %v", err)
		writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
