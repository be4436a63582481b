package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/htmlmailer/internal/template"
)

// multipart overhead allowed on top of the file payloads
const uploadOverhead = 1 << 20

// previewCSP keeps raw previews inert even if a construct slips through
const previewCSP = "default-src 'none'; style-src 'unsafe-inline'; img-src * data:; font-src *; sandbox"

// TemplateListResponse is the response for listing templates
type TemplateListResponse struct {
	Templates []template.Summary `json:"templates"`
	Total     int                `json:"total"`
}

// UploadResponse is the response for POST /api/templates
type UploadResponse struct {
	Imported []template.Summary `json:"imported"`
	Errors   []UploadError      `json:"errors"`
}

// UploadError reports one rejected file
type UploadError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// handleListTemplates handles GET /api/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	filter := template.ListFilter{
		Search: r.URL.Query().Get("search"),
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset > 0 {
			filter.Offset = offset
		}
	}

	templates, err := s.library.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list templates", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}

	response := TemplateListResponse{
		Templates: make([]template.Summary, len(templates)),
		Total:     len(templates),
	}
	for i, tmpl := range templates {
		response.Templates[i] = tmpl.Summary()
	}

	s.sendJSON(w, http.StatusOK, response)
}

// handleUploadTemplates handles POST /api/templates
func (s *Server) handleUploadTemplates(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, template.MaxBatchFiles*template.MaxTemplateSize+uploadOverhead)

	if err := r.ParseMultipartForm(template.MaxTemplateSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.sendError(w, http.StatusRequestEntityTooLarge, errBodyTooLarge)
			return
		}
		s.sendError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		s.sendError(w, http.StatusBadRequest, "No files uploaded")
		return
	}
	if len(files) > template.MaxBatchFiles {
		s.sendError(w, http.StatusBadRequest, template.ReasonTooManyFiles)
		return
	}

	opts := template.ImportOptions{}
	if replace, err := strconv.ParseBool(r.URL.Query().Get("replace")); err == nil {
		opts.Replace = replace
	}

	resp := UploadResponse{
		Imported: []template.Summary{},
		Errors:   []UploadError{},
	}

	for _, fh := range files {
		if err := template.ValidateMIME(fh.Header.Get("Content-Type")); err != nil {
			resp.Errors = append(resp.Errors, UploadError{File: fh.Filename, Error: err.Error()})
			continue
		}

		f, err := fh.Open()
		if err != nil {
			resp.Errors = append(resp.Errors, UploadError{File: fh.Filename, Error: "Failed to read file"})
			continue
		}
		tmpl, err := s.library.Import(r.Context(), fh.Filename, fh.Size, f, opts)
		f.Close()

		if err != nil {
			msg := err.Error()
			if !template.IsRejected(err) {
				s.logger.Error("failed to import template", "name", fh.Filename, "error", err)
				msg = "Failed to save template"
			}
			resp.Errors = append(resp.Errors, UploadError{File: fh.Filename, Error: msg})
			continue
		}
		resp.Imported = append(resp.Imported, tmpl.Summary())
	}

	status := http.StatusOK
	if len(resp.Imported) == 0 {
		status = http.StatusBadRequest
	}
	s.sendJSON(w, status, resp)
}

// handleGetTemplate handles GET /api/templates/{id}. The name is accepted
// in place of the ID.
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := s.lookupTemplate(w, r)
	if !ok {
		return
	}
	s.sendJSON(w, http.StatusOK, tmpl)
}

// handlePreviewTemplate handles GET /api/templates/{id}/preview. The preview
// is recomputed with the current rules on every request.
func (s *Server) handlePreviewTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	preview, err := s.library.Preview(r.Context(), id)
	if err != nil {
		s.sendTemplateError(w, id, err)
		return
	}

	if raw, _ := strconv.ParseBool(r.URL.Query().Get("raw")); raw {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Security-Policy", previewCSP)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(preview.Content))
		return
	}

	s.sendJSON(w, http.StatusOK, preview)
}

// handleDeleteTemplate handles DELETE /api/templates/{id}
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.library.Delete(r.Context(), id); err != nil {
		s.sendTemplateError(w, id, err)
		return
	}

	s.logger.Info("template deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleClearTemplates handles DELETE /api/templates
func (s *Server) handleClearTemplates(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.library.Clear(r.Context())
	if err != nil {
		s.logger.Error("failed to clear templates", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to clear templates")
		return
	}

	s.logger.Info("templates cleared", "deleted", deleted)
	s.sendJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) lookupTemplate(w http.ResponseWriter, r *http.Request) (*template.Template, bool) {
	id := chi.URLParam(r, "id")

	tmpl, err := s.library.Find(r.Context(), id)
	if err != nil {
		s.sendTemplateError(w, id, err)
		return nil, false
	}
	return tmpl, true
}

func (s *Server) sendTemplateError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, template.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}
	s.logger.Error("template operation failed", "id", id, "error", err)
	s.sendError(w, http.StatusInternalServerError, errInternal)
}
