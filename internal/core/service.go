package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Store is the slice of the datastore client the service needs.
type Store interface {
	Now(ctx context.Context) (time.Time, error)
	InsertProcessLog(ctx context.Context, data string) error
	EnsureSchema(ctx context.Context) error
}

// Observer receives the outcome of each datastore interaction. Optional.
type Observer interface {
	Probed(state DatabaseState)
	Persisted(se SideEffect)
	Bootstrapped(se SideEffect)
}

// Options configure a Service.
type Options struct {
	Environment string
	Hostname    string
	Logger      *log.Logger
	Observer    Observer
	// Classify maps a datastore error to a fault kind. Defaults to "error".
	Classify func(error) string
	Clock    func() time.Time
}

// Service implements the availability probe, best-effort intake and schema
// bootstrap. It holds no mutable state beyond its injected store.
type Service struct {
	store    Store
	env      string
	host     string
	log      *log.Logger
	obs      Observer
	classify func(error) string
	now      func() time.Time
}

func NewService(store Store, opt Options) *Service {
	s := &Service{
		store:    store,
		env:      opt.Environment,
		host:     opt.Hostname,
		log:      opt.Logger,
		obs:      opt.Observer,
		classify: opt.Classify,
		now:      opt.Clock,
	}
	if s.log == nil {
		s.log = log.StandardLogger()
	}
	if s.obs == nil {
		s.obs = nopObserver{}
	}
	if s.classify == nil {
		s.classify = func(error) string { return "error" }
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.host == "" {
		s.host = "unknown"
	}
	return s
}

// Probe issues one round-trip query and classifies the datastore as
// connected or disconnected. Faults are returned as data. Every call probes
// again; nothing is cached.
func (s *Service) Probe(ctx context.Context) StatusReport {
	_, err := s.store.Now(ctx)
	report := StatusReport{
		Timestamp:   s.now(),
		Environment: s.env,
	}
	if err != nil {
		report.Status = StatusDegraded
		report.Database = DatabaseDisconnected
		report.Error = err.Error()
		report.Fault = s.classify(err)
		s.log.WithError(err).WithField("fault", report.Fault).Error("Database connection error")
	} else {
		report.Status = StatusOperational
		report.Database = DatabaseConnected
	}
	s.obs.Probed(report.Database)
	return report
}

// Process validates payload, attempts to persist it and returns the
// synthesized result. A nil or JSON null payload is a *ValidationError; any
// persistence fault is recorded in the outcome and otherwise ignored.
func (s *Service) Process(ctx context.Context, payload json.RawMessage) (ProcessOutcome, error) {
	if isAbsent(payload) {
		return ProcessOutcome{}, &ValidationError{Field: "data"}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return ProcessOutcome{}, fmt.Errorf("serialize payload: %w", err)
	}
	serialized := buf.String()

	s.log.WithField("data", serialized).Info("Processing request")

	persist := SideEffect{Op: "persist"}
	if err := s.store.InsertProcessLog(ctx, serialized); err != nil {
		persist.Err = err
		persist.Fault = s.classify(err)
	}
	if persist.Failed() {
		s.log.WithError(persist.Err).WithField("fault", persist.Fault).
			Warn("Database write failed, continuing without persistence")
	}
	s.obs.Persisted(persist)

	return ProcessOutcome{
		Result: ProcessResult{
			Original:    payload,
			Processed:   true,
			Timestamp:   s.now(),
			ProcessedBy: s.host,
		},
		Persist: persist,
	}, nil
}

// Bootstrap makes sure the schema exists. It never fails the caller: the
// returned SideEffect carries any fault so startup can continue without a
// reachable datastore.
func (s *Service) Bootstrap(ctx context.Context) SideEffect {
	se := SideEffect{Op: "ensure_schema"}
	if err := s.store.EnsureSchema(ctx); err != nil {
		se.Err = err
		se.Fault = s.classify(err)
		s.log.WithError(err).WithField("fault", se.Fault).
			Warn("Database initialization failed (this is OK if DB is not available)")
	} else {
		s.log.Info("Database table initialized successfully")
	}
	s.obs.Bootstrapped(se)
	return se
}

func isAbsent(payload json.RawMessage) bool {
	p := bytes.TrimSpace(payload)
	return len(p) == 0 || bytes.Equal(p, []byte("null"))
}

type nopObserver struct{}

func (nopObserver) Probed(DatabaseState)    {}
func (nopObserver) Persisted(SideEffect)    {}
func (nopObserver) Bootstrapped(SideEffect) {}
