package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/database"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

type RunService struct {
	Runs   database.RunStore
	Logger *slog.Logger
}

func NewRunService(runs database.RunStore, logger *slog.Logger) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunService{Runs: runs, Logger: logger}
}

// GetRuns lists the latest runs of one client, newest first.
func (h *RunService) GetRuns(w http.ResponseWriter, r *http.Request) {
	client := chi.URLParam(r, "client")

	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "Invalid 'limit', use a positive integer.", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := h.Runs.ListRunRecords(r.Context(), client, limit)
	if err != nil {
		h.Logger.Error("failed to list runs", "client", client, "error", err)
		http.Error(w, "Failed to retrieve runs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

func (h *RunService) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
