// Package http exposes the ledger as a JSON API. The caller's owner
// identity arrives in the X-Owner-ID header; there is no further auth.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"carteira/internal/cards"
	"carteira/internal/categories"
	"carteira/internal/core"
	"carteira/internal/ledger"
	"carteira/internal/series"
)

const ownerHeader = "X-Owner-ID"

type Server struct {
	http.Server

	store      ledger.Store
	series     *series.Engine
	cards      *cards.Engine
	categories *categories.Registry

	rateLimiter   *rateLimiter
	overviewCache *ttlCache[core.MonthOverview]
	categoryCache *ttlCache[core.CategorySet]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

func NewServer(addr string, store ledger.Store, se *series.Engine, ce *cards.Engine, reg *categories.Registry) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:            store,
		series:           se,
		cards:            ce,
		categories:       reg,
		rateLimiter:      newRateLimiter(),
		overviewCache:    newTTLCache[core.MonthOverview](100, 5*time.Minute),
		categoryCache:    newTTLCache[core.CategorySet](100, 5*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /transactions", s.wrap(s.handleCreateTransactions))
	mux.HandleFunc("GET /transactions", s.wrap(s.handleListTransactions))
	mux.HandleFunc("PATCH /transactions/{id}", s.wrap(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /transactions/{id}", s.wrap(s.handleDeleteTransaction))
	mux.HandleFunc("PATCH /series/{id}", s.wrap(s.handleUpdateSeries))
	mux.HandleFunc("DELETE /series/{id}", s.wrap(s.handleDeleteSeries))

	mux.HandleFunc("POST /cards", s.wrap(s.handleCreateCard))
	mux.HandleFunc("GET /cards", s.wrap(s.handleListCards))
	mux.HandleFunc("GET /cards/{id}", s.wrap(s.handleGetCard))
	mux.HandleFunc("PUT /cards/{id}", s.wrap(s.handleUpdateCard))
	mux.HandleFunc("POST /cards/{id}/expenses", s.wrap(s.handleAddCardExpense))
	mux.HandleFunc("GET /cards/{id}/expenses", s.wrap(s.handleListCardExpenses))
	mux.HandleFunc("GET /cards/{id}/open-balance", s.wrap(s.handleOpenBalance))
	mux.HandleFunc("POST /cards/{id}/close-bill", s.wrap(s.handleCloseBill))
	mux.HandleFunc("PATCH /card-expenses/{id}", s.wrap(s.handleUpdateCardExpense))
	mux.HandleFunc("DELETE /card-expenses/{id}", s.wrap(s.handleDeleteCardExpense))
	mux.HandleFunc("PATCH /card-series/{id}", s.wrap(s.handleUpdateCardSeries))
	mux.HandleFunc("DELETE /card-series/{id}", s.wrap(s.handleDeleteCardSeries))

	mux.HandleFunc("GET /categories", s.wrap(s.handleListCategories))
	mux.HandleFunc("POST /categories", s.wrap(s.handleAddCategory))
	mux.HandleFunc("POST /categories/rename", s.wrap(s.handleRenameCategory))
	mux.HandleFunc("POST /categories/remove", s.wrap(s.handleRemoveCategory))

	mux.HandleFunc("GET /overview", s.wrap(s.handleMonthOverview))

	return s
}

// wrap adds security headers, rate limiting on writes, and request
// logging around a handler.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := r.Context()
		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"client_ip", clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := s.overviewCache.CleanExpired() + s.categoryCache.CleanExpired()
			if removed > 0 {
				slog.Debug("Cache cleanup completed", "entries_removed", removed)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown stops the HTTP server and the cleanup goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		close(s.stopCacheCleanup)
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func ownerID(r *http.Request) string {
	return r.Header.Get(ownerHeader)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps engine error kinds onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, core.ErrNoOwner):
		status = http.StatusUnauthorized
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrNoOpenBalance),
		errors.Is(err, core.ErrExpenseBilled),
		errors.Is(err, core.ErrCategoryExists),
		errors.Is(err, core.ErrDefaultCategory):
		status = http.StatusConflict
	case errors.Is(err, core.ErrAtomicity):
		status = http.StatusInternalServerError
	}
	if status >= 500 {
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}
