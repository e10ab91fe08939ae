// Package server provides the HTTP API for the invoice audit node.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/openclerk/invoiceaudit/internal/config"
	"github.com/openclerk/invoiceaudit/internal/crosscheck"
	"github.com/openclerk/invoiceaudit/internal/rag"
	"github.com/openclerk/invoiceaudit/internal/refdata"
	"github.com/openclerk/invoiceaudit/internal/storage"
	"github.com/openclerk/invoiceaudit/internal/vector"
)

// Server is the HTTP server for the audit API.
type Server struct {
	knowledge *rag.Engine
	checker   *crosscheck.Engine
	refdata   refdata.Store
	storage   storage.Storage
	index     vector.Index
	cfg       *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	knowledge *rag.Engine,
	checker *crosscheck.Engine,
	refStore refdata.Store,
	store storage.Storage,
	index vector.Index,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		knowledge: knowledge,
		checker:   checker,
		refdata:   refStore,
		storage:   store,
		index:     index,
		cfg:       cfg,
		logger:    logger,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(90 * time.Second))

	r.Post("/api/v1/ask", s.handleAsk)
	r.Post("/api/v1/check", s.handleCheck)
	r.Get("/api/v1/records", s.handleListRecords)
	r.Get("/api/v1/records/{id}", s.handleGetRecord)
	r.Get("/api/v1/refdata/vendors/{id}", s.handleGetVendor)
	r.Get("/api/v1/refdata/po/{number}", s.handleGetPO)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
