// Package api exposes the read-only HTTP interface over the archive.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/comic-archiver/internal/comics"
	"github.com/JakeFAU/comic-archiver/internal/metrics"
	"github.com/JakeFAU/comic-archiver/internal/middleware"
)

// ImageSource streams stored strip images. Both asset backends satisfy it.
type ImageSource interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Server wires HTTP handlers to the catalog and the image store.
type Server struct {
	router  chi.Router
	catalog comics.Catalog
	images  ImageSource
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(catalog comics.Catalog, images ImageSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		catalog: catalog,
		images:  images,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", s.stats)
		r.Get("/search", s.search)
		r.Route("/tags", func(r chi.Router) {
			r.Get("/", s.listTags)
			r.Get("/{name}/comics", s.comicsForTag)
		})
		r.Route("/comics/{date}", func(r chi.Router) {
			r.Get("/", s.getComic)
			r.Get("/image", s.getImage)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type comicResponse struct {
	comics.Record
	Tags []string `json:"tags"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.catalog.Stats(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.catalog.Stats(r.Context())
	if err != nil {
		s.internalError(w, "stats", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.catalog.AllTags(r.Context())
	if err != nil {
		s.internalError(w, "list tags", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tags": nonNil(tags)})
}

func (s *Server) comicsForTag(w http.ResponseWriter, r *http.Request) {
	name := comics.NormalizeTag(chi.URLParam(r, "name"))
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "tag name required")
		return
	}
	records, err := s.catalog.ComicsForTag(r.Context(), name)
	if err != nil {
		s.internalError(w, "comics for tag", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tag": name, "comics": nonNil(records)})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter q required")
		return
	}
	records, err := s.catalog.SearchTranscript(r.Context(), q)
	if err != nil {
		s.internalError(w, "search", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"query": q, "comics": nonNil(records)})
}

func (s *Server) getComic(w http.ResponseWriter, r *http.Request) {
	record, ok := s.lookup(w, r)
	if !ok {
		return
	}
	tags, err := s.catalog.TagsForComic(r.Context(), record.Date)
	if err != nil {
		s.internalError(w, "tags for comic", err)
		return
	}
	s.writeJSON(w, http.StatusOK, comicResponse{Record: record, Tags: nonNil(tags)})
}

func (s *Server) getImage(w http.ResponseWriter, r *http.Request) {
	record, ok := s.lookup(w, r)
	if !ok {
		return
	}
	rc, err := s.images.Open(r.Context(), record.ImagePath)
	if errors.Is(err, fs.ErrNotExist) {
		s.writeError(w, http.StatusNotFound, "image not archived")
		return
	}
	if err != nil {
		s.internalError(w, "open image", err)
		return
	}
	defer func() { _ = rc.Close() }()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("stream image failed", zap.String("date", record.Date), zap.Error(err))
	}
}

// lookup resolves the {date} parameter, writing the error response itself
// when it returns false.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (comics.Record, bool) {
	raw := chi.URLParam(r, "date")
	date, err := comics.ParseDate(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return comics.Record{}, false
	}
	record, err := s.catalog.ComicForDate(r.Context(), comics.FormatDate(date))
	if errors.Is(err, comics.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "comic not found")
		return comics.Record{}, false
	}
	if err != nil {
		s.internalError(w, "comic for date", err)
		return comics.Record{}, false
	}
	return record, true
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("catalog query failed", zap.String("op", op), zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
