package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/alem-hub/challenges-leaderboard/internal/application/query"
	"github.com/alem-hub/challenges-leaderboard/internal/domain/leaderboard"
	"github.com/alem-hub/challenges-leaderboard/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports every check, including optional ones.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"}, &ResponseMeta{Version: s.config.Version})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status, &ResponseMeta{Version: s.config.Version})
}

// handleReady is the readiness probe: Postgres and the cache store must answer.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Healthy {
			writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready", status.Message)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"}, nil)
}

// handleLive is the liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"}, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// scopeFromRequest extracts the scope reference from the route.
type scopeFromRequest func(r *http.Request) (leaderboard.ScopeRef, error)

func globalScope(*http.Request) (leaderboard.ScopeRef, error) {
	return leaderboard.GlobalScope(), nil
}

func taskScope(r *http.Request) (leaderboard.ScopeRef, error) {
	taskID, err := uuidParam(r, "task_id")
	if err != nil {
		return leaderboard.ScopeRef{}, err
	}
	return leaderboard.TaskScope(taskID), nil
}

func languageScope(r *http.Request) (leaderboard.ScopeRef, error) {
	return leaderboard.LanguageScope(chi.URLParam(r, "language")), nil
}

// handleTop serves one page of a scope's leaderboard.
func (s *Server) handleTop(scopeOf scopeFromRequest) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := scopeOf(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		q := query.GetLeaderboardQuery{Scope: ref}
		if q.Limit, err = uintQuery(r, "limit", s.config.DefaultLimit); err != nil {
			writeError(w, r, err)
			return
		}
		if q.Offset, err = uintQuery(r, "offset", 0); err != nil {
			writeError(w, r, err)
			return
		}
		if q.CurrentQuarter, err = boolQuery(r, "current_quarter"); err != nil {
			writeError(w, r, err)
			return
		}

		lb, err := s.deps.GetLeaderboardHandler.Handle(r.Context(), q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if lb.Entries == nil {
			lb = leaderboard.Empty(lb.Total)
		}

		writeJSON(w, r, http.StatusOK, lb, &ResponseMeta{
			Version: s.config.Version,
			Scope:   ref.String(),
			Window:  windowMeta(q.CurrentQuarter),
			Limit:   q.Limit,
			Offset:  q.Offset,
			HasMore: q.Offset+uint64(len(lb.Entries)) < lb.Total,
		})
	}
}

// handleRank serves one user's position in a scope.
func (s *Server) handleRank(scopeOf scopeFromRequest) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := scopeOf(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		q := query.GetUserRankQuery{Scope: ref}
		if q.UserID, err = uuidParam(r, "user_id"); err != nil {
			writeError(w, r, err)
			return
		}
		if q.CurrentQuarter, err = boolQuery(r, "current_quarter"); err != nil {
			writeError(w, r, err)
			return
		}

		rank, err := s.deps.GetUserRankHandler.Handle(r.Context(), q)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, rank, &ResponseMeta{
			Version: s.config.Version,
			Scope:   ref.String(),
			Window:  windowMeta(q.CurrentQuarter),
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PARAMETER PARSING
// ══════════════════════════════════════════════════════════════════════════════

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, shared.WrapError("http", "ParsePath", shared.ErrInvalidID, name+" must be a UUID", err)
	}
	return id, nil
}

// uintQuery parses a non-negative integer query parameter. Negative and
// non-numeric values are rejected rather than replaced with the default.
func uintQuery(r *http.Request, name string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, shared.WrapError("http", "ParseQuery", shared.ErrInvalidInput, name+" must be a non-negative integer", err)
	}
	return v, nil
}

func boolQuery(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, shared.WrapError("http", "ParseQuery", shared.ErrInvalidInput, name+" must be a boolean", err)
	}
	return v, nil
}

func windowMeta(currentQuarter bool) string {
	if currentQuarter {
		return "current_quarter"
	}
	return "all"
}
