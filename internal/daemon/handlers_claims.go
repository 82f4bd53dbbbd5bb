package daemon

import (
	"context"
	"net/http"
	"strings"

	"leadswiper/internal/api"
	"leadswiper/internal/logging"
)

func (s *apiServer) handleTryClaim(w http.ResponseWriter, r *http.Request) {
	var req api.TryClaimRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Worker) == "" {
		s.writeError(w, r, http.StatusBadRequest, api.CodeBadRequest, "id and worker are required")
		return
	}
	now, cutoff, err := s.window(req.Now, req.Cutoff)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, api.CodeBadRequest, err.Error())
		return
	}
	claimed, err := s.store.TryClaim(r.Context(), req.ID, req.Worker, now, cutoff)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TryClaimResponse{Claimed: claimed})
}

func (s *apiServer) handleRenew(w http.ResponseWriter, r *http.Request) {
	var req api.RenewRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Worker) == "" {
		s.writeError(w, r, http.StatusBadRequest, api.CodeBadRequest, "worker is required")
		return
	}
	renewed, err := s.store.RenewClaims(r.Context(), req.IDs, req.Worker, s.now().UTC())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: renewed})
}

func (s *apiServer) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req api.ReleaseRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Worker) == "" {
		s.writeError(w, r, http.StatusBadRequest, api.CodeBadRequest, "worker is required")
		return
	}
	released, err := s.store.ReleaseClaims(r.Context(), req.Worker, req.IDs)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: released})
}

// handleReleaseAll acknowledges before releasing; the caller is tearing down
// and will not wait for the outcome.
func (s *apiServer) handleReleaseAll(w http.ResponseWriter, r *http.Request) {
	var req api.ReleaseRequest
	if !s.decode(w, r, &req) {
		return
	}
	worker := strings.TrimSpace(req.Worker)
	if worker == "" {
		s.writeError(w, r, http.StatusBadRequest, api.CodeBadRequest, "worker is required")
		return
	}
	logger := logging.WithContext(r.Context(), s.log())
	base := context.WithoutCancel(r.Context())

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(base, s.teardownTimeout)
		defer cancel()
		released, err := s.store.ReleaseClaims(ctx, worker, nil)
		if err != nil {
			logger.Warn("release-all failed", logging.String(logging.FieldWorkerID, worker), logging.Error(err))
			return
		}
		logger.Debug("released worker claims", logging.String(logging.FieldWorkerID, worker), logging.Int64(logging.FieldCount, released))
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (s *apiServer) handleClaims(w http.ResponseWriter, r *http.Request) {
	cutoff := s.now().UTC().Add(-s.lease)
	claims, err := s.store.ActiveClaims(r.Context(), cutoff)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ClaimListResponse{Claims: api.FromClaims(claims)})
}
