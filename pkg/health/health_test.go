package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func TestRunWorstStatus(t *testing.T) {
	ctx := context.Background()
	c := NewChecker()
	c.Register("data", Writable(t.TempDir()))
	assert.Equal(t, StatusUp, c.Run(ctx).Status)

	c.Register("redis", Optional(func(context.Context) error { return errors.New("refused") }))
	report := c.Run(ctx)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "refused", report.Components["redis"].Message)

	c.Register("data", Writable(filepath.Join(t.TempDir(), "missing")))
	c.Register("postgres", Ping(ok))
	report = c.Run(ctx)
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, StatusUp, report.Components["postgres"].Status)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("postgres", Ping(ok))
	h := c.Routes()["/health/ready"]
	require.NotNil(t, h)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusUp, report.Status)

	c.Register("kafka", Ping(func(context.Context) error { return errors.New("no brokers") }))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
