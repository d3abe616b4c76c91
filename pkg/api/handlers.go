package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pdfme/pdf-pipeline/pkg/apperr"
	"github.com/pdfme/pdf-pipeline/pkg/query"
	"github.com/pdfme/pdf-pipeline/pkg/types"
)

// multipart framing on top of the file itself
const formOverhead = 1 << 20

type Handler struct {
	ingester  Ingester
	reader    Reader
	maxUpload int64
	log       zerolog.Logger
}

// UploadResponse is returned by POST /api/pdfs/upload.
type UploadResponse struct {
	DocumentKey  string `json:"documentKey"`
	OriginalName string `json:"originalName"`
	Status       string `json:"status"`
	Message      string `json:"message"`
}

// Upload handles POST /api/pdfs/upload with a multipart "file" field.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "file too large", "")
			return
		}
		h.writeError(w, http.StatusBadRequest, "Please select a file to upload.", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read upload", err.Error())
		return
	}

	key, err := h.ingester.Ingest(r.Context(), data, header.Header.Get("Content-Type"), header.Filename)
	if err != nil {
		h.writeClassified(w, "Failed to upload PDF or queue for processing", err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, UploadResponse{
		DocumentKey:  key,
		OriginalName: header.Filename,
		Status:       types.StatusQueued,
		Message:      "PDF uploaded and queued for processing",
	})
}

// Download handles GET /api/pdfs/download/{documentKey}.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "documentKey")

	rc, name, err := h.reader.Download(r.Context(), key)
	if errors.Is(err, query.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "document not found", key)
		return
	}
	if err != nil {
		h.writeClassified(w, "failed to download document", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn().Err(err).Str("document_key", key).Msg("Download interrupted")
	}
}

// List handles GET /api/pdfs/data.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.reader.List(r.Context())
	if err != nil {
		h.writeClassified(w, "failed to list extracted data", err)
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

// Get handles GET /api/pdfs/data/{documentKey}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "documentKey")

	rec, err := h.reader.Get(r.Context(), key)
	if errors.Is(err, query.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "no extracted data", key)
		return
	}
	if err != nil {
		h.writeClassified(w, "failed to get extracted data", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// Status handles GET /api/pdfs/status/{documentKey}.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "documentKey")

	view, err := h.reader.Status(r.Context(), key)
	if errors.Is(err, query.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "unknown document", key)
		return
	}
	if err != nil {
		h.writeClassified(w, "failed to get status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) writeClassified(w http.ResponseWriter, message string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Int("status", status).Msg(message)
	}
	h.writeError(w, status, message, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	h.writeJSON(w, status, resp)
}
