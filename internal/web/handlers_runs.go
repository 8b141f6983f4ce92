package web

import (
	"bytes"
	"net/http"

	"github.com/JonMunkholm/worksplit/internal/core"
)

// POST /api/split
func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	var req core.SplitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err, 0)
		return
	}

	res, err := s.service.Split(r.Context(), req)
	if err != nil {
		if res != nil && len(res.Sheets) > 0 {
			respondRunError(w, r, err, res)
			return
		}
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// POST /api/merge
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req core.MergeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err, 0)
		return
	}

	res, err := s.service.Merge(r.Context(), req)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type cleanupRequest struct {
	Prefix string `json:"prefix,omitempty"`
}

// POST /api/cleanup
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err, 0)
		return
	}

	res, err := s.service.Cleanup(r.Context(), req.Prefix)
	if err != nil {
		if res != nil && len(res.Deleted) > 0 {
			respondRunError(w, r, err, res)
			return
		}
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Dashboard(r.Context())
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GET /api/dashboard/export?formulas=
func (s *Server) handleDashboardExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.service.DashboardExport(r.Context(), &buf, boolParam(r, "formulas")); err != nil {
		respondError(w, r, err, 0)
		return
	}

	attachment(w, s.service.Options().DashboardSheet)
	if _, err := buf.WriteTo(w); err != nil {
		logRequestError(r, "dashboard export write failed", err)
	}
}

// runErrorResponse carries the partial result of a run that stopped early.
type runErrorResponse struct {
	ErrorResponse
	Partial any `json:"partial,omitempty"`
}

// respondRunError reports a failed run together with what it already
// wrote, since those sheets are not rolled back.
func respondRunError(w http.ResponseWriter, r *http.Request, err error, partial any) {
	msg := core.MapError(err)
	status := core.HTTPStatus(err)
	logRequestError(r, "run stopped early", err)
	writeJSON(w, status, runErrorResponse{
		ErrorResponse: ErrorResponse{
			Error:   msg.Message,
			Message: msg.Message,
			Action:  msg.Action,
			Code:    msg.Code,
		},
		Partial: partial,
	})
}
