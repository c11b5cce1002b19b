package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sujalmh/vector-loader-automation/internal/core/domain"
	"github.com/sujalmh/vector-loader-automation/internal/journal"
	"github.com/sujalmh/vector-loader-automation/internal/progress"
	"github.com/sujalmh/vector-loader-automation/internal/session"
	"github.com/sujalmh/vector-loader-automation/internal/stream"
	"github.com/sujalmh/vector-loader-automation/internal/upstream"
)

const maxBodyBytes = 1 << 20

type startRequest struct {
	Kind  upstream.Kind  `json:"kind"`
	Items []session.Item `json:"items"`
}

type retryRequest struct {
	Kind upstream.Kind     `json:"kind,omitempty"`
	IDs  []domain.EntityID `json:"ids"`
}

type passResponse struct {
	PassID  string            `json:"pass_id"`
	State   stream.State      `json:"state"`
	Kind    upstream.Kind     `json:"kind,omitempty"`
	Tracked []domain.EntityID `json:"tracked,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type entitiesResponse struct {
	Entities []domain.Entity  `json:"entities"`
	Summary  progress.Summary `json:"summary"`
	Seq      uint64           `json:"seq"`
}

type journalResponse struct {
	PassID  string           `json:"pass_id"`
	Entries []*journal.Entry `json:"entries"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !s.decode(w, r, &req) {
		return
	}

	passID, err := s.session.Start(r.Context(), req.Kind, req.Items)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	AddLogField(r.Context(), "pass_id", passID)
	writeJSON(w, http.StatusAccepted, s.current(passID))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if !s.decode(w, r, &req) {
		return
	}

	passID, err := s.session.Retry(r.Context(), req.Kind, req.IDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	AddLogField(r.Context(), "pass_id", passID)
	writeJSON(w, http.StatusAccepted, s.current(passID))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Cancel(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.current(""))
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.current(""))
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	passID := chi.URLParam(r, "passID")
	entries, err := s.session.Journal(r.Context(), passID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*journal.Entry{}
	}
	writeJSON(w, http.StatusOK, journalResponse{PassID: passID, Entries: entries})
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.entities())
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	e, err := s.session.Entity(domain.EntityID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) current(passID string) passResponse {
	st := s.session.Current()
	if passID == "" {
		passID = st.PassID
	}
	resp := passResponse{
		PassID:  passID,
		State:   st.State,
		Kind:    s.session.Kind(),
		Tracked: st.Tracked,
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	return resp
}

func (s *Server) entities() entitiesResponse {
	snap := s.session.Snapshot()
	return entitiesResponse{
		Entities: snap.Entities,
		Summary:  progress.Summarize(snap),
		Seq:      snap.Seq,
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		AddError(r.Context(), err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{
			Message: "invalid request body: " + err.Error(),
			Type:    "invalid_request",
		}})
		return false
	}
	return true
}

// writeError maps session and stream errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	AddError(r.Context(), err)

	status, typ := http.StatusInternalServerError, "internal"
	var se *domain.StreamError
	switch {
	case errors.Is(err, session.ErrInvalid):
		status, typ = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrAlreadyStreaming), errors.Is(err, domain.ErrNotStreaming):
		status, typ = http.StatusConflict, "conflict"
	case errors.As(err, &se):
		status, typ = se.HTTPStatusCode(), string(se.Kind)
	}

	writeJSON(w, status, errorResponse{Error: errorBody{Message: err.Error(), Type: typ}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
