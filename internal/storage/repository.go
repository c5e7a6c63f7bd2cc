package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertObservationSQL = `INSERT INTO price_observations (
        entity_id,
        name,
        rating,
        league,
        position,
        price,
        avg_24h,
        std_24h,
        zscore,
        sample_count,
        observed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    );`

	listRecentObservationsSQL = `SELECT
        id, entity_id, name, rating, league, position,
        price, avg_24h, std_24h, zscore, sample_count,
        observed_at, created_at
    FROM price_observations
    ORDER BY observed_at DESC
    LIMIT $1;`

	listEntitySeriesSQL = `SELECT
        id, entity_id, name, rating, league, position,
        price, avg_24h, std_24h, zscore, sample_count,
        observed_at, created_at
    FROM price_observations
    WHERE entity_id = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	countObservationsSQL = `SELECT COUNT(*) FROM price_observations;`

	insertAlertSQL = `INSERT INTO alerts (
        alert_uid,
        entity_id,
        name,
        rating,
        kind,
        price,
        avg_24h,
        zscore,
        deviation_pct,
        sample_count,
        low_confidence,
        triggered_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id, alert_uid, entity_id, name, rating, kind,
        price, avg_24h, zscore, deviation_pct, sample_count,
        low_confidence, triggered_at, created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ObservationStore defines operations for observation persistence.
type ObservationStore interface {
	InsertObservation(ctx context.Context, obs ObservationRecord) error
	ListRecentObservations(ctx context.Context, limit int) ([]ObservationRecord, error)
	ListEntitySeries(ctx context.Context, entityID string, from, to time.Time) ([]ObservationRecord, error)
	CountObservations(ctx context.Context) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to observations and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns
// a release func. Used so two instances don't double-poll one marketplace.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort; the lock dies with the session anyway.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// InsertObservation persists one enriched observation.
func (s *Store) InsertObservation(ctx context.Context, obs ObservationRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var zscore interface{}
	if obs.ZScore != nil {
		zscore = *obs.ZScore
	}

	if _, execErr := pool.Exec(ctx, insertObservationSQL,
		obs.EntityID,
		obs.Name,
		obs.Rating,
		obs.League,
		obs.Position,
		obs.Price,
		obs.Avg24h,
		obs.Std24h,
		zscore,
		obs.SampleCount,
		obs.ObservedAt,
	); execErr != nil {
		return fmt.Errorf("insert observation: %w", execErr)
	}
	return nil
}

// ListRecentObservations lists the most recent observations.
func (s *Store) ListRecentObservations(ctx context.Context, limit int) ([]ObservationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentObservationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent observations: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, limit)
}

// ListEntitySeries lists one entity's observations within a time window,
// oldest first.
func (s *Store) ListEntitySeries(ctx context.Context, entityID string, from, to time.Time) ([]ObservationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listEntitySeriesSQL, entityID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list entity series: %w", queryErr)
	}
	defer rows.Close()

	return collectObservations(rows, 0)
}

// CountObservations counts stored observations.
func (s *Store) CountObservations(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countObservationsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count observations: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	var zscore interface{}
	if alert.ZScore != nil {
		zscore = *alert.ZScore
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.AlertUID,
		alert.EntityID,
		alert.Name,
		alert.Rating,
		alert.Kind,
		alert.Price,
		alert.Avg24h,
		zscore,
		alert.DeviationPct,
		alert.SampleCount,
		alert.LowConfidence,
		alert.TriggeredAt,
	)

	rec := alert
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		var zscore sql.NullFloat64
		if err := rows.Scan(
			&rec.ID,
			&rec.AlertUID,
			&rec.EntityID,
			&rec.Name,
			&rec.Rating,
			&rec.Kind,
			&rec.Price,
			&rec.Avg24h,
			&zscore,
			&rec.DeviationPct,
			&rec.SampleCount,
			&rec.LowConfidence,
			&rec.TriggeredAt,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if zscore.Valid {
			value := zscore.Float64
			rec.ZScore = &value
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func collectObservations(rows pgx.Rows, sizeHint int) ([]ObservationRecord, error) {
	records := make([]ObservationRecord, 0, sizeHint)
	for rows.Next() {
		var rec ObservationRecord
		var zscore sql.NullFloat64
		if err := rows.Scan(
			&rec.ID,
			&rec.EntityID,
			&rec.Name,
			&rec.Rating,
			&rec.League,
			&rec.Position,
			&rec.Price,
			&rec.Avg24h,
			&rec.Std24h,
			&zscore,
			&rec.SampleCount,
			&rec.ObservedAt,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if zscore.Valid {
			value := zscore.Float64
			rec.ZScore = &value
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}
