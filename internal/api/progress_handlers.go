package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/deck-harvester/internal/id/uuid"
	"github.com/JakeFAU/deck-harvester/internal/progress/sinks"
)

const (
	defaultBatchLimit = 20
	maxBatchLimit     = 100
)

// StatusReader exposes the batch status snapshot.
type StatusReader interface {
	Batches() []sinks.BatchStatus
	Batch(id string) (sinks.BatchStatus, bool)
}

// ProgressHandler exposes read-only batch progress endpoints.
type ProgressHandler struct {
	status StatusReader
	logger *zap.Logger
}

// NewProgressHandler wires the status reader and logger.
func NewProgressHandler(status StatusReader, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{status: status, logger: logger}
}

// ListBatches handles GET /v1/progress, newest batch first.
func (h *ProgressHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		writeJSON(w, http.StatusOK, map[string]any{"batches": []sinks.BatchStatus{}, "total": 0})
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultBatchLimit, maxBatchLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	all := h.status.Batches()
	page := []sinks.BatchStatus{}
	if offset < len(all) {
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		page = all[offset:end]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batches": page,
		"total":   len(all),
		"limit":   limit,
		"offset":  offset,
	})
}

// GetBatch handles GET /v1/progress/{batch_id}.
func (h *ProgressHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	if !uuid.Valid(batchID) {
		writeError(w, http.StatusBadRequest, "invalid batch id")
		return
	}
	if h.status == nil {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	status, ok := h.status.Batch(batchID)
	if !ok {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
