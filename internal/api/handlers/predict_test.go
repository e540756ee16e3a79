package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropwise/internal/core"
	"cropwise/internal/types"
)

// ============================================================
// Mock Implementations
// ============================================================

type mockPipeline struct {
	result  *types.PredictionResult
	err     error
	runs    []types.RawReading
	sources []types.TriggerSource
}

func (m *mockPipeline) Run(_ context.Context, reading types.RawReading, source types.TriggerSource) (*types.PredictionResult, error) {
	m.runs = append(m.runs, reading)
	m.sources = append(m.sources, source)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockSensorReader struct {
	snap *types.SensorSnapshot
	err  error
}

func (m *mockSensorReader) Fetch(context.Context) (*types.SensorSnapshot, error) {
	return m.snap, m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func fptr(v float64) *float64 { return &v }

func okResult() *types.PredictionResult {
	return &types.PredictionResult{
		IrrigationClass: 2,
		Timestamp:       "2026-06-15T13:45:00Z",
		ModelVersion:    "test-model",
	}
}

func newPredictRouter(pipeline *mockPipeline, sensors *mockSensorReader) http.Handler {
	r := chi.NewRouter()
	NewPredictHandler(pipeline, sensors, testLogger()).RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) core.ErrorDetail {
	t.Helper()
	var resp core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

// ============================================================
// Tests
// ============================================================

func TestPredict_ValidReading(t *testing.T) {
	pipeline := &mockPipeline{result: okResult()}
	h := newPredictRouter(pipeline, &mockSensorReader{})

	rec := doJSON(t, h, http.MethodPost, "/predict",
		`{"humidity": 40, "temperature": 38, "soilMoisture": 20}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var result types.PredictionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.IrrigationClass)
	assert.Equal(t, "2026-06-15T13:45:00Z", result.Timestamp)

	require.Len(t, pipeline.runs, 1)
	assert.Equal(t, types.RawReading{Humidity: 40, Temperature: 38, SoilMoisture: 20}, pipeline.runs[0])
	assert.Equal(t, types.TriggerRequest, pipeline.sources[0])
}

func TestPredict_MissingFieldReportedInBody(t *testing.T) {
	pipeline := &mockPipeline{result: okResult()}
	h := newPredictRouter(pipeline, &mockSensorReader{})

	rec := doJSON(t, h, http.MethodPost, "/predict",
		`{"humidity": 40, "temperature": 38}`)

	// Failures surface inside a success response; the status alone says
	// nothing.
	require.Equal(t, http.StatusOK, rec.Code)

	detail := decodeErrorBody(t, rec)
	assert.Equal(t, string(types.ErrCodeValidationMissingField), detail.Code)
	assert.Contains(t, detail.Details, "fields")

	assert.Empty(t, pipeline.runs, "pipeline must not run for an invalid reading")
}

func TestPredict_OutOfRangeReading(t *testing.T) {
	pipeline := &mockPipeline{result: okResult()}
	h := newPredictRouter(pipeline, &mockSensorReader{})

	rec := doJSON(t, h, http.MethodPost, "/predict",
		`{"humidity": 140, "temperature": 38, "soilMoisture": 20}`)

	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeErrorBody(t, rec)
	assert.Equal(t, string(types.ErrCodeValidationOutOfRange), detail.Code)
	assert.Empty(t, pipeline.runs)
}

func TestPredict_MalformedJSON(t *testing.T) {
	pipeline := &mockPipeline{result: okResult()}
	h := newPredictRouter(pipeline, &mockSensorReader{})

	tests := []struct {
		name string
		body string
	}{
		{name: "syntax error", body: `{"humidity": `},
		{name: "unknown field", body: `{"humidity": 40, "temperature": 38, "soilMoisture": 20, "windSpeed": 5}`},
		{name: "empty body", body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/predict", tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
			detail := decodeErrorBody(t, rec)
			assert.Equal(t, string(types.ErrCodeValidationInvalidJSON), detail.Code)
		})
	}
	assert.Empty(t, pipeline.runs)
}

func TestPredict_PipelineFailureReportedInBody(t *testing.T) {
	pipeline := &mockPipeline{err: types.NewAppError(types.ErrCodeStoreWriteFailed, "store write failed", nil)}
	h := newPredictRouter(pipeline, &mockSensorReader{})

	rec := doJSON(t, h, http.MethodPost, "/predict",
		`{"humidity": 40, "temperature": 38, "soilMoisture": 20}`)

	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeErrorBody(t, rec)
	assert.Equal(t, string(types.ErrCodeStoreWriteFailed), detail.Code)
	assert.Equal(t, "store write failed", detail.Message)
}

func TestPredict_UnexpectedErrorMasked(t *testing.T) {
	pipeline := &mockPipeline{err: assert.AnError}
	h := newPredictRouter(pipeline, &mockSensorReader{})

	rec := doJSON(t, h, http.MethodPost, "/predict",
		`{"humidity": 40, "temperature": 38, "soilMoisture": 20}`)

	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeErrorBody(t, rec)
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), detail.Code)
	assert.NotContains(t, detail.Message, assert.AnError.Error())
}

func TestTriggerPrediction_EchoesStoreReading(t *testing.T) {
	pipeline := &mockPipeline{result: okResult()}
	sensors := &mockSensorReader{snap: &types.SensorSnapshot{
		Humidity:     fptr(55),
		Temperature:  fptr(29),
		SoilMoisture: fptr(33),
	}}
	h := newPredictRouter(pipeline, sensors)

	rec := doJSON(t, h, http.MethodPost, "/trigger-prediction", ``)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp TriggerPredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.IrrigationClass)
	assert.Equal(t, types.RawReading{Humidity: 55, Temperature: 29, SoilMoisture: 33}, resp.Input)

	require.Len(t, pipeline.runs, 1)
	assert.Equal(t, types.TriggerRequest, pipeline.sources[0])
}

func TestTriggerPrediction_FetchFailureReportedInBody(t *testing.T) {
	pipeline := &mockPipeline{result: okResult()}
	sensors := &mockSensorReader{err: types.NewAppError(types.ErrCodeStoreUnavailable, "store unreachable", nil)}
	h := newPredictRouter(pipeline, sensors)

	rec := doJSON(t, h, http.MethodPost, "/trigger-prediction", ``)

	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeErrorBody(t, rec)
	assert.Equal(t, string(types.ErrCodeStoreUnavailable), detail.Code)
	assert.Empty(t, pipeline.runs)
}

func TestTriggerPrediction_IncompleteStoreReading(t *testing.T) {
	pipeline := &mockPipeline{result: okResult()}
	sensors := &mockSensorReader{snap: &types.SensorSnapshot{Humidity: fptr(55)}}
	h := newPredictRouter(pipeline, sensors)

	rec := doJSON(t, h, http.MethodPost, "/trigger-prediction", ``)

	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeErrorBody(t, rec)
	assert.Equal(t, string(types.ErrCodeValidationMissingField), detail.Code)
	assert.Empty(t, pipeline.runs)
}

func TestIndex_ListsEndpoints(t *testing.T) {
	h := newPredictRouter(&mockPipeline{result: okResult()}, &mockSensorReader{})

	rec := doJSON(t, h, http.MethodGet, "/", ``)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "cropwise", body["service"])
	assert.Contains(t, body["endpoints"], "POST /predict")
}
