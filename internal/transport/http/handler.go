package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ndaflow/internal/ledger"
	"ndaflow/internal/policy"
)

// Handler is the thin read-only HTTP layer over the intake ledger and the
// active policy. It delegates to the stores without embedding workflow
// logic; writes happen only through the mail path.
type Handler struct {
	store  ledger.Store
	policy *policy.Policy
	logger *slog.Logger
}

// NewHandler wires the HTTP layer to its dependencies.
func NewHandler(store ledger.Store, pol *policy.Policy, logger *slog.Logger) *Handler {
	return &Handler{store: store, policy: pol, logger: logger}
}

// NewRouter mounts all endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.handleHealth)
	r.Get("/api/v1/ledger", h.handleLedger)
	r.Get("/api/v1/policy", h.handlePolicy)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	// A ledger round trip is the meaningful liveness signal: without it the
	// workflow cannot finish a single message.
	if _, err := h.store.Recent(r.Context(), 1); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	entries, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list ledger failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ledger unavailable"})
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handlePolicy summarizes the active policy without echoing template bodies,
// which can be long and are not useful for dashboards.
func (h *Handler) handlePolicy(w http.ResponseWriter, r *http.Request) {
	clauses := make([]map[string]string, 0, len(h.policy.Review.ClauseChecks))
	for _, check := range h.policy.Review.ClauseChecks {
		clauses = append(clauses, map[string]string{
			"id":          check.ID,
			"severity":    check.Severity,
			"matcher":     string(check.Matcher.Kind),
			"description": check.Description,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"min_keyword_matches": h.policy.Detection.MinKeywordMatches,
		"detection_keywords":  len(h.policy.Detection.Keywords),
		"clause_checks":       clauses,
		"critical_flags":      h.policy.Review.CriticalFlags,
		"risk_thresholds":     h.policy.Thresholds,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("encode response failed", "error", err)
	}
}
