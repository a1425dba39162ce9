package core

import (
	"encoding/json"
	"time"
)

// Database reachability as observed by a single probe.
type DatabaseState string

const (
	DatabaseConnected    DatabaseState = "connected"
	DatabaseDisconnected DatabaseState = "disconnected"
)

// ServiceState is the overall status reported by GET /status.
type ServiceState string

const (
	StatusOperational ServiceState = "operational"
	StatusDegraded    ServiceState = "degraded"
)

// ProcessRecord is one appended row of process_logs. Written best-effort,
// never read back by the service.
type ProcessRecord struct {
	ID        int64
	Data      string
	CreatedAt time.Time
}

// StatusReport is built fresh for every probe.
type StatusReport struct {
	Status      ServiceState
	Timestamp   time.Time
	Database    DatabaseState
	Environment string
	Error       string
	Fault       string // fault kind, empty when connected
}

// Operational reports whether the datastore answered the probe.
func (r StatusReport) Operational() bool { return r.Status == StatusOperational }

// ProcessResult is returned for every accepted intake payload.
type ProcessResult struct {
	Original    json.RawMessage
	Processed   bool
	Timestamp   time.Time
	ProcessedBy string
}

// SideEffect records the outcome of a best-effort operation whose failure
// must not change the caller's result.
type SideEffect struct {
	Op    string
	Err   error
	Fault string
}

// Failed reports whether the side effect did not complete.
func (s SideEffect) Failed() bool { return s.Err != nil }

// ProcessOutcome pairs the caller-visible result with the persistence attempt.
type ProcessOutcome struct {
	Result  ProcessResult
	Persist SideEffect
}
