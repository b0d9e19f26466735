// Package server exposes the facilitator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitwit/x402gov"
	"github.com/vitwit/x402gov/logger"
	"github.com/vitwit/x402gov/types"
	"github.com/vitwit/x402gov/utils"
)

// MaxBodyBytes bounds /verify and /settle request bodies.
const MaxBodyBytes = 1 << 20

type Server struct {
	router *chi.Mux
	x      *x402gov.X402
	log    logger.Logger

	requestTimeout time.Duration
	gatherer       prometheus.Gatherer
	metricsPath    string
}

type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = logger.OrNoop(l) }
}

// WithRequestTimeout bounds each request, ledger calls included.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// WithMetricsHandler serves g at path.
func WithMetricsHandler(path string, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.gatherer = g
	}
}

func New(x *x402gov.X402, opts ...Option) *Server {
	s := &Server{
		router: chi.NewRouter(),
		x:      x,
		log:    logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.requestTimeout > 0 {
		r.Use(middleware.Timeout(s.requestTimeout))
	}

	r.Post("/verify", s.handleVerify)
	r.Post("/settle", s.handleSettle)
	r.Get("/supported", s.handleSupported)
	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle(s.metricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// POST /verify
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	res, err := s.x.Verify(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.VerifyResponse{
		IsValid:       res.IsValid,
		InvalidReason: res.InvalidReason,
		Payer:         res.Payer,
	})
}

// POST /settle
func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	res, err := s.x.Settle(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := utils.SerializeSettlementResult(res)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// GET /supported
func (s *Server) handleSupported(w http.ResponseWriter, r *http.Request) {
	sup, err := s.x.Supported()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sup)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (*types.VerifyRequest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, types.X402Error{
			Code:    types.ErrInvalidPayload,
			Message: "request body too large",
		})
		return nil, false
	}
	req, err := utils.ParseVerifyRequest(body)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return req, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var xerr *types.X402Error
	if !errors.As(err, &xerr) {
		if errors.Is(err, context.DeadlineExceeded) {
			writeJSON(w, http.StatusGatewayTimeout, types.X402Error{Code: types.ErrNetworkError, Message: err.Error()})
			return
		}
		s.log.Error("request failed", map[string]any{
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
			"error":      err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, types.X402Error{Code: types.ErrNetworkError, Message: "internal error"})
		return
	}
	writeJSON(w, statusFor(xerr.Code), xerr)
}

func statusFor(code string) int {
	switch code {
	case types.ErrInvalidPayload, types.ErrInvalidRequirements:
		return http.StatusBadRequest
	case types.ErrUnsupportedNetwork:
		return http.StatusUnprocessableEntity
	case types.ErrConfigError:
		return http.StatusServiceUnavailable
	case types.ErrNetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
	})
}
