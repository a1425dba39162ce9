package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Cypherspark/devops-app/internal/core"
	"github.com/Cypherspark/devops-app/internal/db"
	httpapi "github.com/Cypherspark/devops-app/internal/http"
	"github.com/Cypherspark/devops-app/internal/logging"
	"github.com/Cypherspark/devops-app/internal/metrics"
	"github.com/Cypherspark/devops-app/internal/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	started = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now     = started.Add(90 * time.Second)
)

type apiEnv struct {
	h       http.Handler
	store   *mocks.MockStore
	metrics *metrics.Metrics
}

func startAPI(t *testing.T, opt httpapi.Options) *apiEnv {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	logger := logging.Discard()
	clock := func() time.Time { return now }

	svc := core.NewService(store, core.Options{
		Environment: "test",
		Hostname:    "node-a",
		Logger:      logger,
		Observer:    m,
		Classify:    db.Classify,
		Clock:       clock,
	})

	opt.Logger = logger
	opt.Metrics = m
	opt.Gatherer = reg
	opt.StartedAt = started
	opt.Clock = clock
	srv := httpapi.NewServer(svc, opt)
	return &apiEnv{h: srv.Router(), store: store, metrics: m}
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var rd *bytes.Buffer
	if body != "" {
		rd = bytes.NewBufferString(body)
	} else {
		rd = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth_IgnoresDatastore(t *testing.T) {
	env := startAPI(t, httpapi.Options{})
	// no store expectations: any datastore call fails the test

	w := do(env.h, "GET", "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	body := decode(t, w)
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, "2024-05-01T12:01:30.000Z", body["timestamp"])
	require.Equal(t, 90.0, body["uptime"])
}

func TestStatus_Connected(t *testing.T) {
	env := startAPI(t, httpapi.Options{})
	env.store.EXPECT().Now(gomock.Any()).Return(now, nil)

	w := do(env.h, "GET", "/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	require.Equal(t, "operational", body["status"])
	require.Equal(t, "connected", body["database"])
	require.Equal(t, "test", body["environment"])
	require.NotContains(t, body, "error")
	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.StatusProbe.WithLabelValues("connected")))
}

// Scenario C.
func TestStatus_DatastoreTimeout(t *testing.T) {
	env := startAPI(t, httpapi.Options{})
	env.store.EXPECT().Now(gomock.Any()).Return(time.Time{}, fmt.Errorf("probe: %w", context.DeadlineExceeded))

	w := do(env.h, "GET", "/status", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	body := decode(t, w)
	require.Equal(t, "degraded", body["status"])
	require.Equal(t, "disconnected", body["database"])
	require.Equal(t, "probe: context deadline exceeded", body["error"])
	require.NotEmpty(t, body["timestamp"])
	require.NotContains(t, body, "environment")
}

func TestStatus_ReprobesEveryCall(t *testing.T) {
	env := startAPI(t, httpapi.Options{})
	gomock.InOrder(
		env.store.EXPECT().Now(gomock.Any()).Return(time.Time{}, errors.New("Connection failed")),
		env.store.EXPECT().Now(gomock.Any()).Return(now, nil),
		env.store.EXPECT().Now(gomock.Any()).Return(time.Time{}, errors.New("Connection failed")),
	)

	require.Equal(t, http.StatusServiceUnavailable, do(env.h, "GET", "/status", "").Code)
	require.Equal(t, http.StatusOK, do(env.h, "GET", "/status", "").Code)
	require.Equal(t, http.StatusServiceUnavailable, do(env.h, "GET", "/status", "").Code)
}

// Scenario A.
func TestProcess_HealthyDatastore(t *testing.T) {
	env := startAPI(t, httpapi.Options{})
	env.store.EXPECT().InsertProcessLog(gomock.Any(), `"hello"`).Return(nil)

	w := do(env.h, "POST", "/process", `{"data":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	require.Equal(t, true, body["success"])
	result := body["result"].(map[string]any)
	require.Equal(t, "hello", result["original"])
	require.Equal(t, true, result["processed"])
	require.Equal(t, "node-a", result["processedBy"])
	require.Equal(t, "2024-05-01T12:01:30.000Z", result["timestamp"])
	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.IntakePersist.WithLabelValues("ok", "")))
}

func TestProcess_EchoesStructuredPayload(t *testing.T) {
	env := startAPI(t, httpapi.Options{})
	env.store.EXPECT().InsertProcessLog(gomock.Any(), `{"id":7,"tags":["a","b"]}`).Return(nil)

	w := do(env.h, "POST", "/process", `{"data": {"id": 7, "tags": ["a", "b"]}}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Result struct {
			Original json.RawMessage `json:"original"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.JSONEq(t, `{"id":7,"tags":["a","b"]}`, string(resp.Result.Original))
}

func TestProcess_WriteFailureStillSucceeds(t *testing.T) {
	env := startAPI(t, httpapi.Options{})
	env.store.EXPECT().InsertProcessLog(gomock.Any(), gomock.Any()).Return(errors.New("DB error"))

	w := do(env.h, "POST", "/process", `{"data":"test data"}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	require.Equal(t, true, body["success"])
	require.Equal(t, "test data", body["result"].(map[string]any)["original"])
	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.IntakePersist.WithLabelValues("failed", "query")))
}

func TestProcess_FalsyButPresent(t *testing.T) {
	for _, data := range []string{`0`, `false`, `""`, `{}`} {
		t.Run(data, func(t *testing.T) {
			env := startAPI(t, httpapi.Options{})
			env.store.EXPECT().InsertProcessLog(gomock.Any(), data).Return(nil)

			w := do(env.h, "POST", "/process", `{"data":`+data+`}`)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		})
	}
}

// Scenario B.
func TestProcess_MissingData(t *testing.T) {
	for name, body := range map[string]string{
		"empty object": `{}`,
		"null":         `{"data":null}`,
		"other field":  `{"payload":1}`,
		"empty body":   ``,
	} {
		t.Run(name, func(t *testing.T) {
			env := startAPI(t, httpapi.Options{})
			// no InsertProcessLog expectation: the write must not be attempted

			w := do(env.h, "POST", "/process", body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			require.Equal(t, "Missing required field: data", decode(t, w)["error"])
		})
	}
}

func TestProcess_InvalidJSON(t *testing.T) {
	env := startAPI(t, httpapi.Options{})

	w := do(env.h, "POST", "/process", `{"data":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Invalid JSON body", decode(t, w)["error"])
}

func TestProcess_TooLarge(t *testing.T) {
	env := startAPI(t, httpapi.Options{MaxBodyBytes: 32})

	w := do(env.h, "POST", "/process", `{"data":"`+strings.Repeat("x", 64)+`"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestProcess_RateLimited(t *testing.T) {
	env := startAPI(t, httpapi.Options{ProcessRateLimit: 0.001, ProcessRateBurst: 1})
	env.store.EXPECT().InsertProcessLog(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	require.Equal(t, http.StatusOK, do(env.h, "POST", "/process", `{"data":1}`).Code)

	w := do(env.h, "POST", "/process", `{"data":2}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "Too many requests", decode(t, w)["error"])
	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.RateLimited))

	// health is not limited
	require.Equal(t, http.StatusOK, do(env.h, "GET", "/health", "").Code)
}

type faultyService struct {
	err   error
	panic any
}

func (f faultyService) Probe(context.Context) core.StatusReport { return core.StatusReport{} }

func (f faultyService) Process(context.Context, json.RawMessage) (core.ProcessOutcome, error) {
	if f.panic != nil {
		panic(f.panic)
	}
	return core.ProcessOutcome{}, f.err
}

func TestProcess_UnexpectedFault(t *testing.T) {
	srv := httpapi.NewServer(faultyService{err: errors.New("serialize payload: boom")}, httpapi.Options{Logger: logging.Discard()})

	w := do(srv.Router(), "POST", "/process", `{"data":1}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	require.Equal(t, "Internal server error", body["error"])
	require.Equal(t, "serialize payload: boom", body["message"])
}

func TestProcess_PanicRecovered(t *testing.T) {
	srv := httpapi.NewServer(faultyService{panic: errors.New("nil map")}, httpapi.Options{Logger: logging.Discard()})

	w := do(srv.Router(), "POST", "/process", `{"data":1}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	require.Equal(t, "Internal server error", body["error"])
	require.Equal(t, "nil map", body["message"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := startAPI(t, httpapi.Options{})
	require.Equal(t, http.StatusOK, do(env.h, "GET", "/health", "").Code)

	w := do(env.h, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `http_requests_total{code="200",handler="/health",method="GET"} 1`)
}

func TestMetricsEndpoint_DisabledWithoutGatherer(t *testing.T) {
	srv := httpapi.NewServer(faultyService{}, httpapi.Options{Logger: logging.Discard()})
	require.Equal(t, http.StatusNotFound, do(srv.Router(), "GET", "/metrics", "").Code)
}

func TestDocs(t *testing.T) {
	srv := httpapi.NewServer(faultyService{}, httpapi.Options{Logger: logging.Discard()})
	w := do(srv.Router(), "GET", "/openapi.yaml", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "/process:")
}
