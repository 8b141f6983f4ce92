package web

import (
	"net/http"

	"github.com/JonMunkholm/worksplit/internal/core"
)

// maxAuditLimit caps ?limit= on the audit log.
const maxAuditLimit = 1000

// GET /api/audit-log?limit=
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := min(parseIntParam(r, "limit", core.DefaultAuditLimit), maxAuditLimit)

	entries, err := s.service.AuditLog(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
