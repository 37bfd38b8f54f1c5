package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/usage-sync/internal/domain/ingest"
	"github.com/janhq/usage-sync/internal/domain/syncstate"
)

type statusSyncer struct {
	id  string
	err error
}

func (s statusSyncer) ID() string { return s.id }
func (s statusSyncer) SyncForward(context.Context) (*ingest.Result, error) {
	return nil, errors.New("not used")
}
func (s statusSyncer) Backfill(context.Context, time.Time) (*ingest.Result, error) {
	return nil, errors.New("not used")
}
func (s statusSyncer) ResetBackfillComplete(context.Context) error { return nil }
func (s statusSyncer) Status(context.Context) (*ingest.Status, error) {
	if s.err != nil {
		return nil, s.err
	}
	oldest := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	return &ingest.Status{Provider: s.id, OldestDate: &oldest, Phase: syncstate.PhaseInProgress}, nil
}

func newTestServer(t *testing.T, ready ReadinessCheck, syncers ...ingest.Syncer) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "usage_sync_test_total", Help: "test"}))
	return New(Options{ServiceName: "usage-sync", Gatherer: reg, Ready: ready}, ingest.NewService(syncers...), zerolog.Nop()).Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, nil)

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "usage_sync_test_total")
}

func TestReadyz(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(t, newTestServer(t, nil), "/readyz").Code)

	down := newTestServer(t, func(context.Context) error { return errors.New("db down") })
	rec := get(t, down, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db down")
}

func TestSyncStatus(t *testing.T) {
	h := newTestServer(t, nil, statusSyncer{id: "cursor"}, statusSyncer{id: "anthropic"})
	rec := get(t, h, "/v1/sync/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Providers []ingest.Status `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Providers, 2)
	assert.Equal(t, "anthropic", body.Providers[0].Provider)
	assert.Equal(t, syncstate.PhaseInProgress, body.Providers[1].Phase)

	failing := newTestServer(t, nil, statusSyncer{id: "github", err: errors.New("boom")})
	assert.Equal(t, http.StatusInternalServerError, get(t, failing, "/v1/sync/status").Code)
}
