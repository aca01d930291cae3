package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"studyquiz/internal/app"
	"studyquiz/internal/domain"
)

// DefaultHistoryLimit caps GET /api/results without ?limit.
const DefaultHistoryLimit = 20

// APIHandler serves the JSON endpoints next to the session socket.
type APIHandler struct {
	service *app.QuizService
	log     *zap.Logger
}

func NewAPIHandler(service *app.QuizService, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{service: service, log: logger}
}

// Register mounts the endpoints on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/quizzes", h.generate)
	mux.HandleFunc("GET /api/results", h.results)
	mux.HandleFunc("GET /api/stats", h.stats)
}

type generateResponse struct {
	Quiz   domain.Quiz `json:"quiz"`
	Stored bool        `json:"stored"`
}

func (h *APIHandler) generate(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	var req domain.GenerationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	quiz, err := h.service.Generate(r.Context(), userID, req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, generateResponse{Quiz: quiz, Stored: userID != ""})
	case errors.Is(err, domain.ErrPersistenceFailed) && quiz.ID != "":
		h.log.Warn("generated quiz not stored", zap.String("quiz", quiz.ID), zap.Error(err))
		writeJSON(w, http.StatusCreated, generateResponse{Quiz: quiz})
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrGenerationFailed):
		writeError(w, http.StatusBadGateway, err)
	default:
		h.log.Error("generate quiz", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (h *APIHandler) results(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}
	limit := DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	results, err := h.service.History(r.Context(), userID, limit)
	if err != nil {
		h.log.Error("list results", zap.String("user", userID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if results == nil {
		results = []domain.QuizResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *APIHandler) stats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}
	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		h.log.Error("compute stats", zap.String("user", userID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorPayload{Code: errorCode(err), Message: err.Error()})
}
