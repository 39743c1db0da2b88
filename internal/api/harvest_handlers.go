package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/deck-harvester/internal/deck"
	"github.com/JakeFAU/deck-harvester/internal/harvest"
	"github.com/JakeFAU/deck-harvester/internal/router"
)

const maxHarvestBody = 1 << 20

// Harvester processes a single input.
type Harvester interface {
	Process(ctx context.Context, input string) (harvest.Outcome, error)
}

// Classifier routes an input without fetching it.
type Classifier interface {
	Classify(ctx context.Context, input string) (router.Route, error)
}

// HarvestHandler serves on-demand harvesting and route inspection.
type HarvestHandler struct {
	harvester  Harvester
	classifier Classifier
	logger     *zap.Logger
}

// NewHarvestHandler wires the handler. Either collaborator may be nil.
func NewHarvestHandler(harvester Harvester, classifier Classifier, logger *zap.Logger) *HarvestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HarvestHandler{harvester: harvester, classifier: classifier, logger: logger}
}

type harvestRequest struct {
	Input string `json:"input"`
}

type outcomeResponse struct {
	Input         string      `json:"input"`
	Route         string      `json:"route"`
	URL           string      `json:"url,omitempty"`
	Adapter       string      `json:"adapter,omitempty"`
	Status        string      `json:"status"`
	Error         string      `json:"error,omitempty"`
	Decks         []deck.Deck `json:"decks"`
	Duplicates    int         `json:"duplicates"`
	Known         int         `json:"known"`
	Children      int         `json:"children"`
	ChildFailures int         `json:"child_failures"`
	Archived      []string    `json:"archived,omitempty"`
	Seconds       float64     `json:"seconds"`
}

// Harvest handles POST /v1/harvest.
func (h *HarvestHandler) Harvest(w http.ResponseWriter, r *http.Request) {
	if h.harvester == nil {
		writeError(w, http.StatusNotImplemented, "harvesting is not enabled on this server")
		return
	}
	var req harvestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxHarvestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}
	out, err := h.harvester.Process(r.Context(), req.Input)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		h.logger.Warn("harvest request failed", zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(out))
}

// Classify handles GET /v1/routes?input=.
func (h *HarvestHandler) Classify(w http.ResponseWriter, r *http.Request) {
	if h.classifier == nil {
		writeError(w, http.StatusNotImplemented, "routing is not enabled on this server")
		return
	}
	input := r.URL.Query().Get("input")
	if strings.TrimSpace(input) == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}
	route, err := h.classifier.Classify(r.Context(), input)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	resp := map[string]any{"kind": route.Kind}
	if route.URL != nil {
		resp["url"] = route.URL.String()
		resp["key"] = route.Key
	}
	if reg := route.Registration; reg != nil {
		resp["adapter"] = reg.Adapter.Name()
		resp["pattern"] = reg.Pattern.String()
		resp["protected"] = reg.Protected
	}
	writeJSON(w, http.StatusOK, resp)
}

func toOutcomeResponse(out harvest.Outcome) outcomeResponse {
	resp := outcomeResponse{
		Input:         out.Input,
		Route:         string(out.Route),
		URL:           out.URL,
		Adapter:       out.Adapter,
		Status:        string(out.Status),
		Decks:         out.Decks,
		Duplicates:    out.Duplicates,
		Known:         out.Known,
		Children:      out.Children,
		ChildFailures: out.ChildFailures,
		Archived:      out.Archived,
		Seconds:       out.Duration.Seconds(),
	}
	if resp.Decks == nil {
		resp.Decks = []deck.Deck{}
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	return resp
}
