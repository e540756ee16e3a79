package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProbe struct {
	name  string
	err   error
	block bool
}

func (p *stubProbe) Name() string { return p.name }

func (p *stubProbe) Check(ctx context.Context) error {
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.err
}

func doHealth(t *testing.T, s *Server) (*httptest.ResponseRecorder, healthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestHandleHealth_NoProbes(t *testing.T) {
	s := newTestServer(t, nil)

	rec, resp := doHealth(t, s)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", resp.Status)
}

func TestHandleHealth_AllProbesHealthy(t *testing.T) {
	s := newTestServer(t, nil)
	s.HealthProbes = []HealthProbe{
		&stubProbe{name: "store"},
		&stubProbe{name: "database"},
	}

	rec, resp := doHealth(t, s)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Components["store"].Status)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
}

func TestHandleHealth_UnhealthyProbe(t *testing.T) {
	s := newTestServer(t, nil)
	s.HealthProbes = []HealthProbe{
		&stubProbe{name: "store", err: assert.AnError},
		&stubProbe{name: "database"},
	}

	rec, resp := doHealth(t, s)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "unhealthy", resp.Components["store"].Status)
	assert.Equal(t, assert.AnError.Error(), resp.Components["store"].Message)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
}

func TestHandleHealth_ProbeTimeout(t *testing.T) {
	s := newTestServer(t, nil)
	s.HealthProbes = []HealthProbe{
		&stubProbe{name: "store", block: true},
	}

	rec, resp := doHealth(t, s)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", resp.Components["store"].Status)
}

func TestHandleHealth_ProbePanicIsContained(t *testing.T) {
	s := newTestServer(t, nil)
	s.HealthProbes = []HealthProbe{&panickyProbe{}}

	rec, resp := doHealth(t, s)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, resp.Components["flaky"].Message, "panicked")
}

type panickyProbe struct{}

func (*panickyProbe) Name() string                { return "flaky" }
func (*panickyProbe) Check(context.Context) error { panic("probe exploded") }

func TestHandleHealth_IncludesPipelineDetail(t *testing.T) {
	s := newTestServer(t, nil)
	var gotCtx context.Context
	s.StatusDetail = func(ctx context.Context) map[string]any {
		gotCtx = ctx
		return map[string]any{
			"trigger_mode":         "poll",
			"halted":               false,
			"consecutive_failures": 0,
		}
	}

	rec, resp := doHealth(t, s)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "poll", resp.Pipeline["trigger_mode"])
	assert.Equal(t, false, resp.Pipeline["halted"])

	// The detail callback shares the health check's deadline so a slow
	// store lookup cannot stall the endpoint.
	require.NotNil(t, gotCtx)
	_, ok := gotCtx.Deadline()
	assert.True(t, ok)
}
