package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/JonMunkholm/worksplit/internal/core"
)

var errNoFile = errors.New("no file provided")

// GET /api/sheets?prefix=
func (s *Server) handleListSheets(w http.ResponseWriter, r *http.Request) {
	sheets, err := s.service.ListSheets(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, sheets)
}

// GET /api/sheets/{name}
func (s *Server) handleGetSheet(w http.ResponseWriter, r *http.Request) {
	name, err := sheetParam(r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	sheet, err := s.service.GetSheet(r.Context(), name)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

// GET /api/sheets/{name}/export
func (s *Server) handleExportSheet(w http.ResponseWriter, r *http.Request) {
	name, err := sheetParam(r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	// Read first so a missing sheet still gets a JSON error.
	if _, err := s.service.GetSheet(r.Context(), name); err != nil {
		respondError(w, r, err, 0)
		return
	}

	attachment(w, name)
	if err := s.service.ExportCSV(r.Context(), name, w); err != nil {
		logRequestError(r, "export failed after headers were sent", err)
	}
}

// POST /api/sheets/{name}/import?replace=&first=
//
// The CSV is either the "file" part of a multipart form or the raw body.
func (s *Server) handleImportSheet(w http.ResponseWriter, r *http.Request) {
	name, err := sheetParam(r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	maxSize := s.cfg.Server.MaxUploadSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	body, closeBody, err := csvBody(r, maxSize)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	defer closeBody()

	res, err := s.service.ImportCSV(r.Context(), name, body, core.ImportOptions{
		Replace: boolParam(r, "replace"),
		First:   boolParam(r, "first"),
	})
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// csvBody returns the uploaded CSV stream.
func csvBody(r *http.Request, maxSize int64) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, func() {}, nil
	}

	if err := r.ParseMultipartForm(min(maxSize, 32<<20)); err != nil {
		return nil, nil, fmt.Errorf("parse upload: %w", err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errNoFile
	}
	return file, func() { file.Close() }, nil
}

// DELETE /api/sheets/{name}
func (s *Server) handleDeleteSheet(w http.ResponseWriter, r *http.Request) {
	name, err := sheetParam(r)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	if err := s.service.DeleteSheet(r.Context(), name); err != nil {
		respondError(w, r, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
