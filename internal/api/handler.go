package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/filter"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/selection"
	"github.com/opensource-finance/kestrel/internal/workspace"
)

const (
	defaultMaxUpload = 64 << 20
	maxJSONBody      = 1 << 20
	exportFilename   = "kestrel-analysis.json"
)

// EnginePinger reports whether the detection engine is reachable.
type EnginePinger interface {
	Health(ctx context.Context) error
}

// Dependencies wires the handler to the workspace and its infrastructure.
// Everything except Workspace may be nil.
type Dependencies struct {
	Workspace  *workspace.Workspace
	Filters    *filter.Engine
	Engine     EnginePinger
	Repository domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
}

// Handler holds dependencies for API handlers.
type Handler struct {
	ws        *workspace.Workspace
	filters   *filter.Engine
	engine    EnginePinger
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	version   string
	maxUpload int64
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies, version string, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Handler{
		ws:        deps.Workspace,
		filters:   deps.Filters,
		engine:    deps.Engine,
		repo:      deps.Repository,
		cache:     deps.Cache,
		bus:       deps.Bus,
		version:   version,
		maxUpload: maxUpload,
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}

// Health returns process liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
	})
}

// Ready pings every backing component and reports each one.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true
	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			return
		}
		checks[name] = "ok"
	}

	if h.engine != nil {
		check("engine", h.engine.Health)
	}
	if h.cache != nil {
		check("cache", h.cache.Ping)
	}
	if h.bus != nil {
		check("bus", h.bus.Ping)
	}
	if h.repo != nil {
		check("repository", h.repo.Ping)
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ready":  ready,
		"checks": checks,
	})
}

// Analyze forwards an uploaded transaction file to the engine and loads the result.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Detail: "upload exceeds size limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "multipart field \"file\" is required"})
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "Only CSV files are accepted."})
		return
	}

	result, err := h.ws.Analyze(r.Context(), header.Filename, file)
	if err != nil {
		KestrelAnalysesTotal.WithLabelValues(analysisOutcome(err)).Inc()
		h.writeError(w, "analyze", err)
		return
	}

	KestrelAnalysesTotal.WithLabelValues("loaded").Inc()
	KestrelProjectionSeconds.Observe(result.ProjectionDuration.Seconds())
	writeJSON(w, http.StatusOK, result)
}

func analysisOutcome(err error) string {
	var engineErr *domain.EngineError
	switch {
	case errors.Is(err, domain.ErrSuperseded):
		return "superseded"
	case errors.Is(err, domain.ErrMalformedResponse):
		return "malformed"
	case errors.As(err, &engineErr):
		return "engine_error"
	}
	return "error"
}

// Reset clears the analysis, simulations and selection.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.ws.Reset(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Status reports loading state.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.Status())
}

// Export streams the engine's analysis bytes as a download.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.ws.Export(&buf); err != nil {
		h.writeError(w, "export", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Graph returns render elements, optionally restricted to ring members
// and to accounts matching a filter expression.
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	var f graph.Filter

	if v := r.URL.Query().Get("ringsOnly"); v != "" {
		ringsOnly, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Detail: "ringsOnly must be a boolean"})
			return
		}
		f.RingsOnly = ringsOnly
	}

	if expr := strings.TrimSpace(r.URL.Query().Get("where")); expr != "" {
		if h.filters == nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Detail: "filter expressions are not enabled"})
			return
		}
		compiled, err := h.filters.Compile(expr)
		if err != nil {
			h.writeError(w, "graph", err)
			return
		}
		f.Where = compiled.Predicate()
	}

	elements, err := h.ws.Graph(f)
	if err != nil {
		h.writeError(w, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, elements)
}

// ListAccounts returns every projected account.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	proj, err := h.ws.Projection()
	if err != nil {
		h.writeError(w, "accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, proj.Accounts)
}

// GetAccount returns one account's detail.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.ws.Account(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "account", err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// ListRings returns the projected fraud rings.
func (h *Handler) ListRings(w http.ResponseWriter, r *http.Request) {
	proj, err := h.ws.Projection()
	if err != nil {
		h.writeError(w, "rings", err)
		return
	}
	writeJSON(w, http.StatusOK, proj.Rings)
}

// ListTransactions returns the projected transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	proj, err := h.ws.Projection()
	if err != nil {
		h.writeError(w, "transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, proj.Transactions)
}

// Summary returns the analysis summary and derived counts.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	proj, err := h.ws.Projection()
	if err != nil {
		h.writeError(w, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary": proj.Summary,
		"stats":   proj.Stats(),
	})
}

// Suggestions returns account ids for autocomplete. Always 200.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ids := h.ws.Suggestions(r.Context(), r.URL.Query().Get("q"), limit)
	writeJSON(w, http.StatusOK, ids)
}

// Simulate submits a what-if transaction.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req domain.SimulationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.ws.Sessions().Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, "simulate", err)
		return
	}

	KestrelSimulationsTotal.WithLabelValues(string(res.Verdict)).Inc()
	writeJSON(w, http.StatusOK, res)
}

// ListSimulations returns the recent simulation history, newest first.
func (h *Handler) ListSimulations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.Sessions().History())
}

// ActiveSimulation returns the overlaid simulation, or null.
func (h *Handler) ActiveSimulation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.Sessions().Active())
}

// ClearSimulation removes the overlay.
func (h *Handler) ClearSimulation(w http.ResponseWriter, r *http.Request) {
	h.ws.Sessions().Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// RestoreSimulation re-activates a history entry.
func (h *Handler) RestoreSimulation(w http.ResponseWriter, r *http.Request) {
	res, err := h.ws.Sessions().Restore(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "restore", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type clickRequest struct {
	ID string `json:"id"`
}

// Click selects a node.
func (h *Handler) Click(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "id is required"})
		return
	}

	h.ws.Selection().Select(req.ID)
	writeJSON(w, http.StatusOK, h.ws.Selection().Snapshot())
}

// Hover records the hovered node and pointer position.
func (h *Handler) Hover(w http.ResponseWriter, r *http.Request) {
	var req selection.Hover
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "id is required"})
		return
	}

	h.ws.Selection().Hover(req)
	writeJSON(w, http.StatusOK, h.ws.Selection().Snapshot())
}

// ClearHover ends the hover.
func (h *Handler) ClearHover(w http.ResponseWriter, r *http.Request) {
	h.ws.Selection().ClearHover()
	w.WriteHeader(http.StatusNoContent)
}

// Selection returns both selection axes.
func (h *Handler) Selection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.Selection().Snapshot())
}

// ClearSelection deselects the selected node.
func (h *Handler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	h.ws.Selection().ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}

// ListAudit returns recorded simulations, newest first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "audit store not available"})
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Detail: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	recs, err := h.repo.ListSimulations(r.Context(), limit)
	if err != nil {
		h.writeError(w, "audit", err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// GetAudit returns one audit record.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Detail: "audit store not available"})
		return
	}

	rec, err := h.repo.GetSimulation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "audit", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// writeError maps domain errors onto the {"detail": ...} contract.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var engineErr *domain.EngineError

	switch {
	case errors.As(err, &engineErr):
		status := "unreachable"
		if engineErr.Status != 0 {
			status = strconv.Itoa(engineErr.Status)
		}
		KestrelEngineErrorsTotal.WithLabelValues(op, status).Inc()
		writeJSON(w, http.StatusBadGateway, errorBody{Detail: engineErr.Message})

	case errors.Is(err, domain.ErrMalformedResponse):
		KestrelEngineErrorsTotal.WithLabelValues(op, "malformed").Inc()
		writeJSON(w, http.StatusBadGateway, errorBody{Detail: err.Error()})

	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: err.Error()})

	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Detail: err.Error()})

	case errors.Is(err, domain.ErrNoAnalysis), errors.Is(err, domain.ErrSuperseded):
		writeJSON(w, http.StatusConflict, errorBody{Detail: err.Error()})

	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Detail: "engine request timed out"})

	default:
		slog.Error("request failed", "op", op, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: "internal server error"})
	}
}

// decodeJSON reads a capped JSON body into v. On failure it writes the error
// response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Detail: "request body exceeds size limit"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: "invalid JSON request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
