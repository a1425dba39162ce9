package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Cypherspark/devops-app/internal/core"
	"github.com/Cypherspark/devops-app/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultMaxBodyBytes bounds POST /process bodies.
const DefaultMaxBodyBytes = 100 << 10

// Service is what the handlers need from the core.
type Service interface {
	Probe(ctx context.Context) core.StatusReport
	Process(ctx context.Context, payload json.RawMessage) (core.ProcessOutcome, error)
}

type Options struct {
	Logger *log.Logger
	// Metrics and Gatherer are optional; /metrics is mounted only with a Gatherer.
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// ProcessRateLimit (req/s) guards POST /process. Zero disables it.
	ProcessRateLimit float64
	ProcessRateBurst int
	MaxBodyBytes     int64

	StartedAt time.Time
	Clock     func() time.Time
}

type Server struct {
	svc      Service
	log      *log.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	limiter  *rate.Limiter
	maxBody  int64
	started  time.Time
	now      func() time.Time
}

func NewServer(svc Service, opt Options) *Server {
	s := &Server{
		svc:      svc,
		log:      opt.Logger,
		metrics:  opt.Metrics,
		gatherer: opt.Gatherer,
		maxBody:  opt.MaxBodyBytes,
		started:  opt.StartedAt,
		now:      opt.Clock,
	}
	if s.log == nil {
		s.log = log.StandardLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.started.IsZero() {
		s.started = s.now()
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBodyBytes
	}
	if opt.ProcessRateLimit > 0 {
		burst := opt.ProcessRateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opt.ProcessRateLimit), burst)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.accessLog)
	if s.metrics != nil {
		r.Use(s.instrument)
	}
	r.Use(s.recoverer)

	s.mountHealth(r)
	r.With(s.rateLimit).Post("/process", s.process)
	if s.gatherer != nil {
		s.mountMetrics(r)
	}
	s.mountDocs(r)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	var in processRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err := dec.Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "Payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		return
	}

	out, err := s.svc.Process(r.Context(), in.Data)
	if err != nil {
		var vErr *core.ValidationError
		if errors.As(err, &vErr) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing required field: " + vErr.Field})
			return
		}
		s.log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Error("Processing error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error", Message: err.Error()})
		return
	}

	// out.Persist never changes the response.
	writeJSON(w, http.StatusOK, processResponse{
		Success: true,
		Result: processResult{
			Original:    out.Result.Original,
			Processed:   out.Result.Processed,
			Timestamp:   isoTime(out.Result.Timestamp),
			ProcessedBy: out.Result.ProcessedBy,
		},
	})
}
