package app

import (
	"bytes"
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
	"go.uber.org/zap"

	"policyforge/api/internal/block"
	"policyforge/api/internal/util"
	"policyforge/api/internal/validate"
)

const maxBodyBytes = 2 << 20

type httpObserver interface {
	ObserveHTTP(route, method string, status int, d time.Duration)
	Handler() http.Handler
}

type HTTPServer struct {
	service    *Service
	validator  *validate.Validator
	corsOrigin string
	logger     *zap.Logger
	metrics    httpObserver
}

func NewHTTPServer(service *Service, validator *validate.Validator, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, validator: validator, corsOrigin: corsOrigin, logger: logger}
}

// WithMetrics records request metrics and serves them on /metrics.
func (s *HTTPServer) WithMetrics(m httpObserver) *HTTPServer {
	s.metrics = m
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/policies", func(r chi.Router) {
		r.Get("/", s.handleSearch)
		r.Post("/generate", s.handleGenerate)
		r.Get("/{id}", s.handleGetPolicy)
		r.Put("/{id}/blocks", s.handleUpdateBlocks)
		r.Get("/{id}/export", s.handleExport)
		r.Post("/{id}/export", s.handleExport)
		r.Get("/{id}/clipboard", s.handleClipboard)
		r.Get("/{id}/history", s.handleHistory)
		r.Get("/{id}/history/{rev}", s.handleRevision)
	})
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeBody(r)
	if err != nil {
		s.fail(w, r, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil))
		return
	}
	if obj, ok := raw.(map[string]any); ok {
		if topic, ok := obj["topic"].(string); ok {
			obj["topic"] = strings.TrimSpace(topic)
		}
	}
	if err := s.validator.GenerateRequest(raw); err != nil {
		s.fail(w, r, err)
		return
	}
	topic := raw.(map[string]any)["topic"].(string)

	policy, err := s.service.GeneratePolicy(r.Context(), topic)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, policy)
}

func (s *HTTPServer) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := s.service.GetPolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (s *HTTPServer) handleUpdateBlocks(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		s.fail(w, r, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil))
		return
	}
	raw, err := parseJSON(data)
	if err != nil {
		s.fail(w, r, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil))
		return
	}
	if err := s.validator.UpdateRequest(raw); err != nil {
		s.fail(w, r, err)
		return
	}

	var body struct {
		Blocks json.RawMessage `json:"blocks"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		s.fail(w, r, domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil))
		return
	}
	blocks, err := block.Decode(body.Blocks)
	if err != nil {
		s.fail(w, r, domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil))
		return
	}

	policy, err := s.service.UpdateBlocks(r.Context(), chi.URLParam(r, "id"), blocks)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" && r.Method == http.MethodPost {
		raw, err := decodeBody(r)
		if err != nil {
			s.fail(w, r, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil))
			return
		}
		if raw != nil {
			if err := s.validator.ExportRequest(raw); err != nil {
				s.fail(w, r, err)
				return
			}
			format, _ = raw.(map[string]any)["format"].(string)
		}
	}

	result, err := s.service.Export(r.Context(), chi.URLParam(r, "id"), format)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleClipboard(w http.ResponseWriter, r *http.Request) {
	payload, err := s.service.Clipboard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	commits, err := s.service.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
}

func (s *HTTPServer) handleRevision(w http.ResponseWriter, r *http.Request) {
	revision, err := s.service.Revision(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "rev"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revision)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), q, queryInt(r, "limit", 20), queryInt(r, "offset", 0)))
}

// fail logs err with its full detail and writes the mapped response.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	fields := []zap.Field{
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.String("code", code),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Info("request rejected", fields...)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		elapsed := time.Since(started)
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, writer.status, elapsed)
		}
		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("route", route),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, errors.New("unreadable body")
	}
	if len(data) > maxBodyBytes {
		return nil, errors.New("body too large")
	}
	return data, nil
}

// parseJSON decodes data into generic JSON values for schema validation.
// Empty input yields nil.
func parseJSON(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var v any
	if err := decoder.Decode(&v); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if decoder.More() {
		return nil, errors.New("invalid JSON body")
	}
	return v, nil
}

func decodeBody(r *http.Request) (any, error) {
	data, err := readBody(r)
	if err != nil {
		return nil, err
	}
	return parseJSON(data)
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
