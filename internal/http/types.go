package httpapi

import (
	"encoding/json"
	"time"
)

// Public JSON envelopes. Field names are part of the wire contract.

type healthResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
}

type statusResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Database    string `json:"database"`
	Environment string `json:"environment,omitempty"`
	Error       string `json:"error,omitempty"`
}

type processRequest struct {
	Data json.RawMessage `json:"data"`
}

type processResult struct {
	Original    json.RawMessage `json:"original"`
	Processed   bool            `json:"processed"`
	Timestamp   string          `json:"timestamp"`
	ProcessedBy string          `json:"processedBy"`
}

type processResponse struct {
	Success bool          `json:"success"`
	Result  processResult `json:"result"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// isoTime renders UTC with millisecond precision, e.g. 2024-05-01T12:00:00.000Z.
func isoTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}
