package web

import (
	"net/http"

	"github.com/JonMunkholm/worksplit/internal/registration"
)

// POST /api/registrations/events
//
// Body: {"sheet": "...", "row": 5, "num_rows": 1}. An edit spanning more
// than one row is rejected; num_rows defaults to 1.
func (s *Server) handleRegistrationEvent(w http.ResponseWriter, r *http.Request) {
	ev := registration.Event{NumRows: 1}
	if err := decodeJSON(w, r, &ev); err != nil {
		respondError(w, r, err, 0)
		return
	}

	res, err := s.service.HandleRegistrationEvent(r.Context(), ev)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type pendingRequest struct {
	Sheet string `json:"sheet,omitempty"`
}

// POST /api/registrations/pending
func (s *Server) handleProcessPending(w http.ResponseWriter, r *http.Request) {
	var req pendingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err, 0)
		return
	}

	batch, err := s.service.ProcessPending(r.Context(), req.Sheet)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}
