package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Admin.ListAllUsers(r.Context())
	if err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentAdmin).
			ErrorContext(r.Context(), "Failed to fetch users", log.FieldError, err)
		ErrorResponse(http.StatusInternalServerError, "Failed to fetch users").Write(w)
		return
	}
	NewJSONResponse().Body(map[string]any{"users": users}).Write(w)
}

func (s *Server) handleSetUserRole(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var body struct {
		Role core.Role `json:"role"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, r, ErrBadBody)
		return
	}

	view, err := s.deps.Admin.SetUserRole(r.Context(), p.UserID, r.PathValue("id"), body.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(view).Write(w)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"requests":  s.tracer.GetMetrics(),
		"rateLimit": s.rateLimiter.GetMetrics(),
		"security":  s.detector.GetMetrics(),
	}
	if s.deps.CacheStats != nil {
		body["cache"] = s.deps.CacheStats()
	}
	NewJSONResponse().Body(body).Write(w)
}

func (s *Server) handleSecurityEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, &core.ValidationError{Problems: map[string]string{"limit": "must be a positive number"}})
			return
		}
		limit = n
	}
	NewJSONResponse().Body(map[string]any{"events": s.detector.Events(limit)}).Write(w)
}
