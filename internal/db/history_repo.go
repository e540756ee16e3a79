package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"cropwise/internal/types"
)

// HistoryRepository provides data access for the predictions table. Each row
// is one completed pipeline run, inserted after the store write succeeded.
//
// Expected schema:
//
//	CREATE TABLE predictions (
//	    id               UUID PRIMARY KEY,
//	    source           TEXT NOT NULL,
//	    humidity         DOUBLE PRECISION NOT NULL,
//	    temperature      DOUBLE PRECISION NOT NULL,
//	    soil_moisture    DOUBLE PRECISION NOT NULL,
//	    irrigation_class INT NOT NULL,
//	    model_version    TEXT NOT NULL,
//	    created_at       TIMESTAMPTZ NOT NULL
//	);
type HistoryRepository struct {
	db DBTX
}

// NewHistoryRepository creates a new HistoryRepository backed by the given
// database connection (pool or transaction).
func NewHistoryRepository(db DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

const predictionColumns = `p.id, p.source, p.humidity, p.temperature, p.soil_moisture,
	p.irrigation_class, p.model_version, p.created_at`

func scanPrediction(row pgx.Row) (*types.PredictionRecord, error) {
	var rec types.PredictionRecord
	var createdAt time.Time
	err := row.Scan(
		&rec.ID,
		&rec.Source,
		&rec.Reading.Humidity,
		&rec.Reading.Temperature,
		&rec.Reading.SoilMoisture,
		&rec.IrrigationClass,
		&rec.ModelVersion,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = createdAt.UTC()
	return &rec, nil
}

// Record inserts a completed run.
func (r *HistoryRepository) Record(ctx context.Context, rec types.PredictionRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO predictions (id, source, humidity, temperature, soil_moisture,
		     irrigation_class, model_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID,
		string(rec.Source),
		rec.Reading.Humidity,
		rec.Reading.Temperature,
		rec.Reading.SoilMoisture,
		rec.IrrigationClass,
		rec.ModelVersion,
		rec.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert prediction", err)
	}
	return nil
}

// ListRecent returns up to limit runs ordered newest first.
func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]types.PredictionRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+predictionColumns+`
		 FROM predictions p
		 ORDER BY p.created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list predictions", err)
	}
	defer rows.Close()

	var records []types.PredictionRecord
	for rows.Next() {
		rec, err := scanPrediction(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan prediction", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read predictions", err)
	}
	return records, nil
}

// Latest returns the most recent run, or ErrCodeNotFoundHistory when the
// table is empty.
func (r *HistoryRepository) Latest(ctx context.Context) (*types.PredictionRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+predictionColumns+`
		 FROM predictions p
		 ORDER BY p.created_at DESC
		 LIMIT 1`,
	)
	rec, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundHistory, "no predictions recorded", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve prediction", err)
	}
	return rec, nil
}
