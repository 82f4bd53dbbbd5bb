package daemon

import (
	"net/http"
	"strconv"
	"strings"

	"leadswiper/internal/api"
	"leadswiper/internal/queue"
)

func (s *apiServer) handleEligible(w http.ResponseWriter, r *http.Request) {
	var req api.EligibleRequest
	if !s.decode(w, r, &req) {
		return
	}
	_, cutoff, err := s.window(req.Now, req.Cutoff)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, api.CodeBadRequest, err.Error())
		return
	}
	leads, err := s.store.Eligible(r.Context(), queue.EligibleQuery{
		Worker:         req.Worker,
		Status:         queue.Status(req.Status),
		ExcludedGroups: req.ExcludedGroups,
		Cutoff:         cutoff,
		Limit:          req.Limit,
	})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.LeadListResponse{Leads: api.FromLeads(leads)})
}

func (s *apiServer) handleLeads(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	status := queue.StatusPending
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		parsed, ok := queue.ParseStatus(raw)
		if !ok {
			s.writeError(w, r, http.StatusBadRequest, api.CodeInvalidStatus, "unknown status "+strconv.Quote(raw))
			return
		}
		status = parsed
	}
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, http.StatusBadRequest, api.CodeBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	leads, err := s.store.List(r.Context(), status, limit)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.LeadListResponse{Leads: api.FromLeads(leads)})
}

func (s *apiServer) handleLead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	lead, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if lead == nil {
		s.writeError(w, r, http.StatusNotFound, api.CodeNotFound, "lead not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.LeadResponse{Lead: api.FromLead(lead)})
}

func (s *apiServer) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var req api.Lead
	if !s.decode(w, r, &req) {
		return
	}
	lead, err := api.ToLead(req)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, api.CodeBadRequest, err.Error())
		return
	}
	if err := s.store.Upsert(r.Context(), lead, s.now()); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.LeadResponse{Lead: api.FromLead(lead)})
}

func (s *apiServer) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req api.StatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.store.SetStatus(r.Context(), r.PathValue("id"), queue.Status(req.Status), s.now().UTC()); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleContact(w http.ResponseWriter, r *http.Request) {
	var req api.NotesRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.store.MarkContacted(r.Context(), r.PathValue("id"), req.Notes, s.now().UTC()); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleNotes(w http.ResponseWriter, r *http.Request) {
	var req api.NotesRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.store.UpdateNotes(r.Context(), r.PathValue("id"), req.Notes, s.now().UTC()); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.StatsFromCounts(stats))
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "degraded", Store: "unreachable", Detail: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Store: "ok"})
}
