// Package server provides the HTTP API for edna.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/edna/internal/config"
	"github.com/hyperjump/edna/internal/labelindex"
	"github.com/hyperjump/edna/internal/pipeline"
	"github.com/hyperjump/edna/internal/storage"
	"github.com/hyperjump/edna/pkg/utils"
	"go.uber.org/zap"
)

// InboxService reports the directories watched for FASTA uploads.
type InboxService interface {
	Directories() []string
}

// Server is the HTTP server for the edna API.
type Server struct {
	analyzer *pipeline.Analyzer
	labels   labelindex.LabelIndex
	storage  storage.Storage
	config   *config.Config
	inbox    InboxService
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
// labels and inbox may be nil; the matching endpoints then report 501.
func NewServer(
	analyzer *pipeline.Analyzer,
	labels labelindex.LabelIndex,
	store storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
	inbox InboxService,
) *Server {
	return &Server{
		analyzer: analyzer,
		labels:   labels,
		storage:  store,
		config:   cfg,
		inbox:    inbox,
		logger:   utils.OrNop(logger),
	}
}

// Router returns the API routes with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/classify", s.handleClassify)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/classify", s.handleClassify)
		r.Post("/classify/batch", s.handleClassifyBatch)
		r.Post("/cluster", s.handleCluster)
		r.Get("/references", s.handleSearchReferences)
		r.Get("/references/{id}", s.handleGetReference)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
