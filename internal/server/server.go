// Package server exposes the analysis engine over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/logstory/logstory-go/internal/config"
	"github.com/logstory/logstory-go/internal/source"
	"github.com/logstory/logstory-go/internal/storage"
	"github.com/logstory/logstory-go/pkg/logstory"
)

const (
	// maxRequestBody bounds JSON request bodies.
	maxRequestBody = 1 << 20

	// multipartOverhead is allowed on top of the upload limit for form framing.
	multipartOverhead = 1 << 20

	// signedURLTTL is the lifetime of presigned upload URLs.
	signedURLTTL = 15 * time.Minute

	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// RuleCatalog resolves rules by log type and lists the known types.
type RuleCatalog interface {
	logstory.RuleSource
	LogTypes() []string
}

// Server serves the HTTP API.
type Server struct {
	cfg      *config.Config
	rules    RuleCatalog
	lines    logstory.LineSource
	store    storage.Store
	decoder  source.Decoder
	engine   *logstory.Engine
	auth     *Authenticator
	log      *slog.Logger
	upgrader websocket.Upgrader
	opts     []logstory.Option
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithEngineOptions passes extra options to the analysis engine.
func WithEngineOptions(opts ...logstory.Option) Option {
	return func(s *Server) {
		s.opts = append(s.opts, opts...)
	}
}

// New creates a Server. lines is consulted for analysis and previews and
// should already include the upload store; store is used for upload
// management.
func New(cfg *config.Config, rc RuleCatalog, lines logstory.LineSource, store storage.Store, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if rc == nil || lines == nil || store == nil {
		return nil, errors.New("rules, lines and store are required")
	}
	policy, err := source.ParsePolicy(cfg.InvalidEncoding)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		rules:   rc,
		lines:   lines,
		store:   store,
		decoder: source.Decoder{Policy: policy, MaxSize: cfg.MaxUploadBytes() * 8},
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if cfg.AuthEnabled() {
		s.auth, err = NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
		if err != nil {
			return nil, err
		}
	}

	engineOpts := append([]logstory.Option{
		logstory.WithLogger(s.log),
		logstory.WithTimestamps(true),
		logstory.WithMaxLineLimit(cfg.MaxLineLimit),
		logstory.WithCompiler(logstory.NewCachedCompiler(cfg.RegexCacheSize)),
	}, s.opts...)
	s.engine, err = logstory.NewEngine(rc, lines, engineOpts...)
	if err != nil {
		return nil, err
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  wsBufferSize,
		WriteBufferSize: wsBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return checkOrigin(r, cfg.AllowedOrigin)
		},
	}
	return s, nil
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/log-types", s.handleLogTypes)
	mux.HandleFunc("GET /api/log-content/{logType}", s.handleLogContent)
	mux.HandleFunc("GET /api/patterns/{logType}", s.handlePatterns)
	mux.HandleFunc("POST /api/upload-log", s.handleUpload)
	mux.HandleFunc("GET /api/uploads", s.handleListUploads)
	mux.HandleFunc("DELETE /api/uploads/{logType}", s.handleDeleteUpload)
	mux.HandleFunc("GET /api/uploads/{logType}/url", s.handleUploadURL)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/validate/{logType}", s.handleValidate)
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	return s.withRequestID(s.withOwner(mux))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", s.cfg.Listen), slog.Bool("auth", s.auth != nil))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// withOwner authenticates the caller and stores the owner in the request
// context. Without an authenticator every caller is storage.Anonymous.
func (s *Server) withOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := storage.Anonymous
		if s.auth != nil {
			tok, err := requestToken(r)
			if err == nil {
				owner, err = s.auth.Verify(tok)
			}
			if err != nil {
				s.log.Info("access denied",
					slog.String("path", r.URL.Path),
					slog.String("remote", r.RemoteAddr),
					slog.String("error", err.Error()))
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(storage.WithOwner(r.Context(), owner)))
	})
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			slog.String("id", id),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("elapsed", time.Since(start)))
	})
}
