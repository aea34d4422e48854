// Package server exposes the storage engine over HTTP.
package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stormrose-io/filegate/internal/logger"
	"github.com/stormrose-io/filegate/pkg/config"
	"github.com/stormrose-io/filegate/pkg/engine"
	"github.com/stormrose-io/filegate/pkg/metrics"
)

// Server is the gateway's HTTP front end.
type Server struct {
	httpServer *http.Server
	engine     *engine.Engine
	tokens     *TokenManager
	cfg        config.ServerConfig
}

// New builds the router and the configured http.Server.
func New(cfg config.ServerConfig, eng *engine.Engine) *Server {
	s := &Server{
		engine: eng,
		tokens: NewTokenManager(cfg.TokenPurgeTimeout, cfg.TokenIPCheck),
		cfg:    cfg,
	}

	r := chi.NewRouter()
	r.Use(s.logRequests)
	r.Use(s.secureHeaders)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/token", s.handleToken)
		r.Get("/client-ip", s.handleClientIP)

		r.Get("/item", s.handleGetItem)
		r.Get("/items", s.handleGetItems)

		r.Post("/upload", s.handleUpload)
		r.Post("/upload-raw", s.handleUploadRaw)
		r.Post("/upload-files", s.handleUploadFiles)

		r.Get("/download", s.handleDownload)
		r.Post("/download", s.handleDownload)
		r.Get("/vdownload", s.handleVirtualDownload)

		r.Get("/remove-item", s.handleRemoveItem)
		r.Get("/remove-items", s.handleRemoveItems)

		r.Get("/update-filename", s.handleRename)
		r.Get("/update-dependency", s.handleReparent)

		r.Get("/repository", s.handleRepository)
		r.Get("/repositories", s.handleRepositories)
		r.Get("/refresh", s.handleRefresh)

		r.Get("/mime-type", s.handleMimeType)
		r.Post("/md5", s.handleMD5)
	})

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully within
// the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening on %s", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

// logRequests logs every request at debug with method, path, and
// duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("%s %s from %s (%v)", r.Method, r.URL.Path, clientIP(r), time.Since(started))
	})
}

// secureHeaders applies the frame policy and the CORS allow-list.
func (s *Server) secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.XFrameOptions != "" {
			w.Header().Set("X-Frame-Options", s.cfg.XFrameOptions)
		}

		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-File-Name, X-File-Size")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.Origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// clientIP extracts the caller address, honoring X-Forwarded-For when
// present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
