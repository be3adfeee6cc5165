package http

import (
	"net/http"

	"fintrack/internal/auth"
	"fintrack/internal/core"
)

// recordRequest extracts the caller and the target collection. It writes the
// error response itself and reports false when the request cannot proceed.
func recordRequest(w http.ResponseWriter, r *http.Request) (auth.Principal, core.Kind, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, r, auth.ErrUnauthenticated)
		return auth.Principal{}, "", false
	}
	kind, err := core.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, r, err)
		return auth.Principal{}, "", false
	}
	return p, kind, true
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	p, kind, ok := recordRequest(w, r)
	if !ok {
		return
	}
	fields, err := DecodeFields(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := s.deps.Records.CreateRecord(r.Context(), p.UserID, kind, fields)
	if err != nil {
		writeError(w, r, err)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/"+string(kind)+"/"+rec.Header().ID).
		Body(rec).
		Write(w)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	p, kind, ok := recordRequest(w, r)
	if !ok {
		return
	}
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	recs, err := s.deps.Records.ListRecords(r.Context(), p.UserID, kind, f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	NewJSONResponse().Body(map[string]any{"records": recs}).Write(w)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	p, kind, ok := recordRequest(w, r)
	if !ok {
		return
	}

	rec, err := s.deps.Records.GetRecord(r.Context(), p.UserID, kind, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	NewJSONResponse().Body(rec).Write(w)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	p, kind, ok := recordRequest(w, r)
	if !ok {
		return
	}
	patch, err := DecodeFields(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := s.deps.Records.UpdateRecord(r.Context(), p.UserID, kind, r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}

	NewJSONResponse().Body(rec).Write(w)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	p, kind, ok := recordRequest(w, r)
	if !ok {
		return
	}

	if err := s.deps.Records.DeleteRecord(r.Context(), p.UserID, kind, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}

	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, r, auth.ErrUnauthenticated)
		return
	}
	params, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	ov, err := s.deps.Records.MonthOverview(r.Context(), p.UserID, params.Year, params.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	NewJSONResponse().Body(ov).Write(w)
}
