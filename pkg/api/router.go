// Package api exposes upload, download and query endpoints over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/pdfme/pdf-pipeline/pkg/query"
	"github.com/pdfme/pdf-pipeline/pkg/types"
)

// Ingester accepts uploads.
type Ingester interface {
	Ingest(ctx context.Context, data []byte, contentType, originalName string) (string, error)
}

// Reader serves stored results and originals.
type Reader interface {
	List(ctx context.Context) ([]types.ExtractionRecord, error)
	Get(ctx context.Context, documentKey string) (*types.ExtractionRecord, error)
	Status(ctx context.Context, documentKey string) (query.StatusView, error)
	Download(ctx context.Context, documentKey string) (io.ReadCloser, string, error)
}

// NewRouter wires all routes. maxUpload bounds the multipart body.
func NewRouter(ingester Ingester, reader Reader, maxUpload int64, requestTimeout time.Duration, log zerolog.Logger) http.Handler {
	h := &Handler{ingester: ingester, reader: reader, maxUpload: maxUpload, log: log}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(hlog.NewHandler(log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chimiddleware.Recoverer)
	if requestTimeout > 0 {
		r.Use(chimiddleware.Timeout(requestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"pdf-service"}`))
	})

	r.Route("/api/pdfs", func(r chi.Router) {
		r.Post("/upload", h.Upload)
		r.Get("/download/{documentKey}", h.Download)
		r.Get("/data", h.List)
		r.Get("/data/{documentKey}", h.Get)
		r.Get("/status/{documentKey}", h.Status)
	})

	return r
}
