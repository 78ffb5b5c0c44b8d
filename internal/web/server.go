// Package web exposes risk reports and the approval queue over HTTP.
package web

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/riskdesk/internal/domain"
	"github.com/vadiminshakov/riskdesk/internal/services/approval"
)

const reportPollInterval = 2 * time.Second

type reportReader interface {
	ReportsAfter(index uint64) ([]domain.ReportRecord, error)
	Latest() (domain.ReportRecord, bool)
}

// Approvals is the subset of the approval manager served by the API.
type Approvals interface {
	Submit(ctx context.Context, trade domain.PendingTrade) (domain.PendingTrade, error)
	ListPending(ctx context.Context, filter domain.Filter) ([]domain.PendingTrade, error)
	Get(ctx context.Context, id string) (domain.PendingTrade, error)
	Approve(ctx context.Context, id string) error
	Reject(ctx context.Context, id, reason string) error
	ApproveAll(ctx context.Context, filter domain.Filter) ([]approval.Outcome, error)
	RejectAll(ctx context.Context, filter domain.Filter, reason string) ([]approval.Outcome, error)
}

type eventSource interface {
	Subscribe() chan domain.ApprovalEvent
	Unsubscribe(ch chan domain.ApprovalEvent)
}

// Server exposes HTTP endpoints serving the status page, the JSON API and SSE streams.
type Server struct {
	Addr      string
	Reports   reportReader
	Approvals Approvals
	Events    eventSource
	Metrics   http.Handler

	logger *zap.Logger
}

// NewServer creates a new web server instance. Any collaborator may be nil; its routes answer 503.
func NewServer(l *zap.Logger, addr string, reports reportReader, approvals Approvals, events eventSource, metrics http.Handler) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{
		Addr:      addr,
		Reports:   reports,
		Approvals: approvals,
		Events:    events,
		Metrics:   metrics,
		logger:    l,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.Handle("/", gzipHandler(http.HandlerFunc(s.handleIndex))).Methods(http.MethodGet)
	if s.Metrics != nil {
		router.Handle("/metrics", s.Metrics).Methods(http.MethodGet)
	}

	router.HandleFunc("/api/risk", s.handleLatestReport).Methods(http.MethodGet)
	router.HandleFunc("/risk/stream", s.handleReportStream).Methods(http.MethodGet)

	api := router.PathPrefix("/api/trades").Subrouter()
	api.HandleFunc("", s.handleListTrades).Methods(http.MethodGet)
	api.HandleFunc("", s.handleSubmitTrade).Methods(http.MethodPost)
	api.HandleFunc("/approve-all", s.handleApproveAll).Methods(http.MethodPost)
	api.HandleFunc("/reject-all", s.handleRejectAll).Methods(http.MethodPost)
	api.HandleFunc("/{id}", s.handleGetTrade).Methods(http.MethodGet)
	api.HandleFunc("/{id}/approve", s.handleApprove).Methods(http.MethodPost)
	api.HandleFunc("/{id}/reject", s.handleReject).Methods(http.MethodPost)

	router.HandleFunc("/trades/stream", s.handleTradeStream).Methods(http.MethodGet)

	return router
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates via ACME.
// It also starts an HTTP server on port 80 to handle ACME HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(domains) == 0 {
		return errors.New("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http (acme) server shutdown error", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("https server shutdown error", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http (acme) server error", zap.Error(err))
		}
	}()

	s.logger.Info("https server listening", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
