// Package server exposes review sessions over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/review"
	"github.com/sells-group/outreach-cli/internal/tabular"
)

// Runner generates a batch. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, orgs []model.OrganizationRecord, template string) *model.Batch
}

// Options configure the API.
type Options struct {
	MaxUploadBytes   int64
	MaxOrganizations int
	AllowedOrigins   []string
	Read             tabular.ReadOptions
}

// Server serves the review API.
type Server struct {
	store  *review.Store
	runner Runner
	opts   Options
}

// New creates a Server.
func New(store *review.Store, runner Runner, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{store: store, runner: runner, opts: opts}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", s.deleteSession)
			r.Post("/generate", s.generate)
			r.Get("/emails", s.listEmails)
			r.Patch("/emails/{index}", s.editEmail)
			r.Get("/export.csv", s.exportCSV)
			r.Get("/export.xlsx", s.exportXLSX)
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server: listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.store.Len()})
}

type createResponse struct {
	SessionID     string            `json:"session_id"`
	Organizations int               `json:"organizations"`
	Rejected      []model.Rejection `json:"rejected"`
	Columns       []string          `json:"columns"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	template := strings.TrimSpace(r.FormValue("template"))
	if template == "" {
		writeError(w, http.StatusBadRequest, "template is required")
		return
	}

	in, err := tabular.Parse(header.Filename, data, s.opts.Read)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.opts.MaxOrganizations > 0 && len(in.Records) > s.opts.MaxOrganizations {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("too many organizations: %d (max %d)", len(in.Records), s.opts.MaxOrganizations))
		return
	}

	sess := s.store.Create(header.Filename, template, in)
	zap.L().Info("server: session created",
		zap.String("session_id", sess.ID),
		zap.String("file", header.Filename),
		zap.Int("organizations", len(in.Records)),
		zap.Int("rejected", len(in.Rejections)),
	)
	rejected := in.Rejections
	if rejected == nil {
		rejected = []model.Rejection{}
	}
	writeJSON(w, http.StatusCreated, createResponse{
		SessionID:     sess.ID,
		Organizations: len(in.Records),
		Rejected:      rejected,
		Columns:       in.Columns,
	})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.store.Delete(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

type generateResponse struct {
	BatchID  string           `json:"batch_id"`
	Complete bool             `json:"complete"`
	Stats    model.BatchStats `json:"stats"`
	Usage    model.TokenUsage `json:"usage"`
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	done, err := sess.Begin()
	if err != nil {
		writeErr(w, err)
		return
	}

	var batch *model.Batch
	defer func() { done(batch) }()
	batch = s.runner.Run(r.Context(), sess.Input().Records, sess.Template)

	writeJSON(w, http.StatusOK, generateResponse{
		BatchID:  batch.ID,
		Complete: batch.Complete,
		Stats:    batch.Stats(),
		Usage:    batch.Usage,
	})
}

type emailsResponse struct {
	SessionID string              `json:"session_id"`
	Stats     model.BatchStats    `json:"stats"`
	Emails    []tabular.ExportRow `json:"emails"`
}

func (s *Server) listEmails(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	batch, err := sess.Batch()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, emailsResponse{
		SessionID: sess.ID,
		Stats:     batch.Stats(),
		Emails:    tabular.Rows(batch.Records),
	})
}

func (s *Server) editEmail(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	var edit review.Edit
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&edit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := sess.Apply(index, edit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tabular.Row(rec))
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, "text/csv", "outreach_emails.csv", tabular.WriteCSV)
}

func (s *Server) exportXLSX(w http.ResponseWriter, r *http.Request) {
	s.export(w, r, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "outreach_emails.xlsx", tabular.WriteXLSX)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request, contentType, filename string, write func(io.Writer, []tabular.ExportRow) error) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	batch, err := sess.Batch()
	if err != nil {
		writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := write(w, tabular.Rows(batch.Records)); err != nil {
		zap.L().Error("server: export failed", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*review.Session, bool) {
	sess, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return sess, true
}

// writeErr maps review errors to HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, review.ErrNotFound), errors.Is(err, review.ErrBadIndex):
		status = http.StatusNotFound
	case errors.Is(err, review.ErrRunning):
		status = http.StatusConflict
	case errors.Is(err, review.ErrNoBatch), errors.Is(err, review.ErrNoRecords), errors.Is(err, review.ErrBadEdit):
		status = http.StatusBadRequest
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("server: request failed", zap.Error(err))
		msg = "internal error"
	}
	writeError(w, status, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
