package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/fortuna/propline/internal/coverage"
	"github.com/fortuna/propline/internal/normalize"
	"github.com/fortuna/propline/internal/store"
)

const (
	defaultCoverageDays = 7
	maxCoverageDays     = 365
)

// CoverageStore counts stored rows per prop type.
type CoverageStore interface {
	PropTypeCounts(ctx context.Context, league string, since time.Time) ([]store.PropTypeCount, error)
}

// HealthChecker is a dependency the health endpoint pings.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	coverage CoverageStore
	checks   map[string]HealthChecker
	now      func() time.Time
}

// NewHandler creates a new handler
func NewHandler(coverage CoverageStore, checks map[string]HealthChecker) *Handler {
	return &Handler{
		coverage: coverage,
		checks:   checks,
		now:      time.Now,
	}
}

// HealthCheck handles health check requests. Any failing dependency turns the response into a 503.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name].HealthCheck(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}

	respondJSON(w, status, map[string]interface{}{
		"status":       state,
		"service":      "propline",
		"dependencies": deps,
	})
}

// GetCoverage compares stored prop types for a league against the expected set for its sport.
// Query: days (default 7).
func (h *Handler) GetCoverage(w http.ResponseWriter, r *http.Request) {
	if h.coverage == nil {
		respondError(w, http.StatusServiceUnavailable, "Coverage store not configured", nil)
		return
	}

	league := strings.ToUpper(mux.Vars(r)["league"])
	if coverage.ExpectedPropTypes(league) == nil {
		respondError(w, http.StatusNotFound, "Unknown league "+league, nil)
		return
	}

	days := defaultCoverageDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxCoverageDays {
			respondError(w, http.StatusBadRequest, "days must be between 1 and 365", err)
			return
		}
		days = n
	}

	now := h.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(days - 1))

	counts, err := h.coverage.PropTypeCounts(r.Context(), league, since)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to query coverage", err)
		return
	}

	observed := make([]string, 0, len(counts))
	total := 0
	for _, c := range counts {
		observed = append(observed, c.PropType)
		total += c.Rows
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"league": league,
		"since":  since.Format("2006-01-02"),
		"rows":   total,
		"counts": counts,
		"gaps":   coverage.AnalyzeGaps(league, observed),
	})
}

// Normalize exposes the normalization rules for debugging mappings.
// Query: stat, name, team (with league), player_id. At least one is required.
func (h *Handler) Normalize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out := make(map[string]interface{})

	if stat := q.Get("stat"); stat != "" {
		key, matched := normalize.LookupPropType(stat)
		out["stat"] = map[string]interface{}{
			"input":     stat,
			"prop_type": key,
			"matched":   matched,
		}
	}
	if name := q.Get("name"); name != "" {
		out["name"] = map[string]interface{}{
			"input":      name,
			"normalized": normalize.NormalizeHumanName(name, normalize.NameOptions{StripSuffixes: q.Get("strip_suffixes") == "true"}),
		}
	}
	if playerID := q.Get("player_id"); playerID != "" {
		out["player_id"] = map[string]interface{}{
			"input": playerID,
			"name":  normalize.ExtractPlayerName(playerID),
		}
	}
	if team := q.Get("team"); team != "" {
		league := q.Get("league")
		if league == "" {
			respondError(w, http.StatusBadRequest, "team lookup requires league", nil)
			return
		}
		out["team"] = map[string]interface{}{
			"input":        team,
			"league":       strings.ToUpper(league),
			"abbreviation": normalize.TeamAbbreviation(league, team),
		}
	}

	if len(out) == 0 {
		respondError(w, http.StatusBadRequest, "Provide at least one of stat, name, player_id, team", nil)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}

	if err != nil {
		response["details"] = err.Error()
	}

	json.NewEncoder(w).Encode(response)
}
