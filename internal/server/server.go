package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"deliverycost/internal/destination"
	"deliverycost/internal/engine"
	"deliverycost/internal/metrics"
	"deliverycost/internal/rate"
	"deliverycost/internal/tariff"
)

const maxBodyBytes = 1 << 20

type Server struct {
	eng    *engine.Engine
	logger *zap.Logger
}

// Options carries the optional collaborators of the HTTP layer.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func New(eng *engine.Engine) http.Handler {
	return NewWithOptions(eng, Options{})
}

// NewWithOptions builds the router with a logger and, when set, the
// Prometheus middleware and /metrics endpoint.
func NewWithOptions(eng *engine.Engine, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{eng: eng, logger: opts.Logger}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(opts.Logger))
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(metricsMiddleware(opts.Metrics))
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	r.Get("/healthz", s.handleHealth)
	r.Get("/quote", s.handleGetQuote)
	r.Post("/quote", s.handlePostQuote)
	r.Get("/destinations/resolve", s.handleResolve)
	r.Get("/tariffs/{service}/{wilaya}", s.handleListTariffs)
	r.Get("/tariffs/{service}/{wilaya}/{commune}", s.handleGetTariff)
	r.Post("/cache/clear", s.handleClearCache)
	r.Post("/cache/refresh", s.handleRefreshCache)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Quotes
type QuoteResponse struct {
	Service     string                 `json:"service"`
	Currency    string                 `json:"currency"`
	Destination destination.Resolution `json:"destination"`
	Tariff      tariff.Record          `json:"tariff"`
	rate.Result
}

func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	quote := engine.Quote{
		Service:       strings.TrimSpace(q.Get("service")),
		Destination:   q.Get("destination"),
		Weight:        toFloat(q.Get("weight")),
		DeclaredValue: toFloat(q.Get("declared_value")),
		DeliveryType:  q.Get("delivery_type"),
		Dimensions: rate.Dimensions{
			Length: toFloat(q.Get("length")),
			Width:  toFloat(q.Get("width")),
			Height: toFloat(q.Get("height")),
		},
	}
	s.writeQuote(w, r, quote)
}

func (s *Server) handlePostQuote(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "read_error", "read error")
		return
	}
	quote, err := NewNormalizer().Normalize(body)
	if err != nil {
		if errors.Is(err, ErrMissingDestination) {
			writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "destination required")
		} else {
			writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid json")
		}
		return
	}
	s.writeQuote(w, r, quote)
}

func (s *Server) writeQuote(w http.ResponseWriter, r *http.Request, quote engine.Quote) {
	if quote.Service == "" {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "service required")
		return
	}
	priced, err := s.eng.Price(r.Context(), quote)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, QuoteResponse{
		Service:     strings.ToLower(quote.Service),
		Currency:    "DZD",
		Destination: priced.Destination,
		Tariff:      priced.Tariff,
		Result:      priced.Result,
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("q")
	if strings.TrimSpace(raw) == "" {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "q required")
		return
	}
	res, err := s.eng.ResolveDestination(raw)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Tariffs
type TariffListResponse struct {
	Service    string          `json:"service"`
	WilayaCode int             `json:"wilaya_code"`
	Tariffs    []tariff.Record `json:"tariffs"`
}

func (s *Server) handleListTariffs(w http.ResponseWriter, r *http.Request) {
	service, code, ok := tariffParams(w, r)
	if !ok {
		return
	}
	recs, err := s.eng.ListTariffs(r.Context(), service, code)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TariffListResponse{Service: service, WilayaCode: code, Tariffs: recs})
}

func (s *Server) handleGetTariff(w http.ResponseWriter, r *http.Request) {
	service, code, ok := tariffParams(w, r)
	if !ok {
		return
	}
	commune := strings.TrimSpace(chi.URLParam(r, "commune"))
	if commune == "" {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "commune required")
		return
	}
	rec, err := s.eng.GetTariff(r.Context(), service, code, commune)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func tariffParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	service := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "service")))
	if service == "" {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "service required")
		return "", 0, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, "wilaya")))
	if err != nil || code < 1 {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "wilaya must be a positive number")
		return "", 0, false
	}
	return service, code, true
}

// Cache administration
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.eng.ClearCache()
	s.logger.Info("caches cleared", zap.String("request_id", w.Header().Get("X-Request-ID")))
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleRefreshCache(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.ForceRefresh(r.Context()); err != nil {
		writeErrorJSON(w, http.StatusBadGateway, "refresh_incomplete", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "refreshed", "sources": s.eng.Sources()})
}

// writeEngineError maps the terminal engine outcomes onto the HTTP error
// codes.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, destination.ErrNotFound):
		writeErrorJSON(w, http.StatusNotFound, "unresolved_destination", err.Error())
	case errors.Is(err, tariff.ErrTariffUnavailable):
		writeErrorJSON(w, http.StatusNotFound, "tariff_unavailable", err.Error())
	case errors.Is(err, rate.ErrDeliveryTypeUnavailable):
		writeErrorJSON(w, http.StatusUnprocessableEntity, "delivery_type_unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeErrorJSON(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", w.Header().Get("X-Request-ID")),
			zap.Error(err),
		)
		writeErrorJSON(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErrorJSON writes a standardized JSON error response:
// {"error": {"code": string, "message": string}}
func writeErrorJSON(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// requestIDMiddleware ensures X-Request-ID is set on the response.
// If provided in the request header, it is propagated; otherwise a UUID is generated.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" {
			rid = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

func accessLogMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", w.Header().Get("X-Request-ID")),
			)
		})
	}
}

// metricsMiddleware labels requests by route pattern so path parameters do
// not explode the label space.
func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			m.RecordHTTPRequest(r.Method, route, ww.Status(), time.Since(start))
		})
	}
}
