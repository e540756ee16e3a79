package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropwise/internal/types"
)

type mockHistoryRepo struct {
	records []types.PredictionRecord
	err     error
	limits  []int
}

func (m *mockHistoryRepo) ListRecent(_ context.Context, limit int) ([]types.PredictionRecord, error) {
	m.limits = append(m.limits, limit)
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}

func (m *mockHistoryRepo) Latest(context.Context) (*types.PredictionRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.records) == 0 {
		return nil, types.NewAppError(types.ErrCodeNotFoundHistory, "no predictions recorded", nil)
	}
	return &m.records[0], nil
}

func newHistoryRouter(repo *mockHistoryRepo) http.Handler {
	r := chi.NewRouter()
	NewHistoryHandler(repo, testLogger()).RegisterRoutes(r)
	return r
}

func sampleRecord() types.PredictionRecord {
	return types.PredictionRecord{
		ID:              "8b6c2a1e-0000-0000-0000-000000000001",
		Source:          types.TriggerPoll,
		Reading:         types.RawReading{Humidity: 40, Temperature: 38, SoilMoisture: 20},
		IrrigationClass: 2,
		ModelVersion:    "test-model",
		CreatedAt:       time.Date(2026, 6, 15, 13, 45, 0, 0, time.UTC),
	}
}

func TestListRecent_ReturnsRecords(t *testing.T) {
	repo := &mockHistoryRepo{records: []types.PredictionRecord{sampleRecord()}}
	h := newHistoryRouter(repo)

	rec := doJSON(t, h, http.MethodGet, "/predictions/recent", ``)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Predictions []types.PredictionRecord `json:"predictions"`
		Count       int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Predictions, 1)
	assert.Equal(t, 2, body.Predictions[0].IrrigationClass)

	require.Len(t, repo.limits, 1)
	assert.Equal(t, defaultHistoryLimit, repo.limits[0])
}

func TestListRecent_EmptyHistory(t *testing.T) {
	h := newHistoryRouter(&mockHistoryRepo{})

	rec := doJSON(t, h, http.MethodGet, "/predictions/recent", ``)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["count"])
	assert.Equal(t, []any{}, body["predictions"])
}

func TestListRecent_LimitParsing(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantLimit int
		wantCode  int
	}{
		{name: "explicit", query: "?limit=5", wantLimit: 5, wantCode: http.StatusOK},
		{name: "capped", query: "?limit=500", wantLimit: maxHistoryLimit, wantCode: http.StatusOK},
		{name: "zero", query: "?limit=0", wantCode: http.StatusBadRequest},
		{name: "negative", query: "?limit=-3", wantCode: http.StatusBadRequest},
		{name: "not a number", query: "?limit=ten", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockHistoryRepo{}
			h := newHistoryRouter(repo)

			rec := doJSON(t, h, http.MethodGet, "/predictions/recent"+tt.query, ``)

			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				require.Len(t, repo.limits, 1)
				assert.Equal(t, tt.wantLimit, repo.limits[0])
			} else {
				assert.Empty(t, repo.limits)
				detail := decodeErrorBody(t, rec)
				assert.Equal(t, string(types.ErrCodeValidationOutOfRange), detail.Code)
			}
		})
	}
}

func TestLatest_ReturnsMostRecentRecord(t *testing.T) {
	repo := &mockHistoryRepo{records: []types.PredictionRecord{sampleRecord()}}
	h := newHistoryRouter(repo)

	rec := doJSON(t, h, http.MethodGet, "/predictions/latest", ``)

	require.Equal(t, http.StatusOK, rec.Code)
	var record types.PredictionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, sampleRecord().ID, record.ID)
	assert.Equal(t, types.TriggerPoll, record.Source)
}

func TestLatest_EmptyHistoryIs404(t *testing.T) {
	h := newHistoryRouter(&mockHistoryRepo{})

	rec := doJSON(t, h, http.MethodGet, "/predictions/latest", ``)

	require.Equal(t, http.StatusNotFound, rec.Code)
	detail := decodeErrorBody(t, rec)
	assert.Equal(t, string(types.ErrCodeNotFoundHistory), detail.Code)
}

func TestListRecent_RepositoryFailure(t *testing.T) {
	repo := &mockHistoryRepo{err: types.NewAppError(types.ErrCodeInternalDB, "query failed", assert.AnError)}
	h := newHistoryRouter(repo)

	rec := doJSON(t, h, http.MethodGet, "/predictions/recent", ``)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	detail := decodeErrorBody(t, rec)
	assert.Equal(t, string(types.ErrCodeInternalDB), detail.Code)
}
