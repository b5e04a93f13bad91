package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"

	"qline/internal/models"
	"qline/internal/store"
)

const counterColumns = `counter_id, service_id, counter_number, name, status, current_serving`

func scanCounter(row ticketRow) (models.Counter, error) {
	var counter models.Counter
	var servingNull sql.NullString
	err := row.Scan(&counter.CounterID, &counter.ServiceID, &counter.CounterNumber,
		&counter.Name, &counter.Status, &servingNull)
	if err != nil {
		return models.Counter{}, err
	}
	counter.CurrentServing = nullStringPtr(servingNull)
	return counter, nil
}

func (s *Store) GetCounter(ctx context.Context, counterID string) (models.Counter, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+counterColumns+` FROM counters WHERE counter_id = $1
	`, counterID)
	counter, err := scanCounter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Counter{}, store.ErrCounterNotFound
		}
		return models.Counter{}, err
	}
	return counter, nil
}

func (s *Store) ListCounters(ctx context.Context, serviceID string) ([]models.Counter, error) {
	query := `SELECT ` + counterColumns + ` FROM counters`
	args := []any{}
	if serviceID != "" {
		query += ` WHERE service_id = $1`
		args = append(args, serviceID)
	}
	query += ` ORDER BY counter_number ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []models.Counter
	for rows.Next() {
		counter, err := scanCounter(rows)
		if err != nil {
			return nil, err
		}
		counters = append(counters, counter)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counters, nil
}

// UpdateCounterStatus sets a counter's availability. A counter holding a
// ticket keeps its slot: status changes while serving are rejected so the
// assignment can only be cleared through complete or cancel.
func (s *Store) UpdateCounterStatus(ctx context.Context, counterID, status string) (models.Counter, error) {
	if !models.ValidCounterStatus(status) {
		return models.Counter{}, store.ErrInvalidCounterStatus
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Counter{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE counters
		SET status = $1
		WHERE counter_id = $2 AND current_serving IS NULL
		RETURNING `+counterColumns,
		status, counterID)
	counter, err := scanCounter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			check := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM counters WHERE counter_id = $1)`, counterID)
			if scanErr := check.Scan(&exists); scanErr != nil {
				err = scanErr
				return models.Counter{}, err
			}
			if !exists {
				err = store.ErrCounterNotFound
				return models.Counter{}, err
			}
			err = store.ErrCounterBusy
			return models.Counter{}, err
		}
		return models.Counter{}, err
	}

	if err = insertCounterEvent(ctx, tx, counter.CounterID, counter.ServiceID, status, nil); err != nil {
		return models.Counter{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Counter{}, err
	}
	return counter, nil
}

func getCounterTx(ctx context.Context, tx pgx.Tx, counterID string, forUpdate bool) (models.Counter, error) {
	query := `SELECT ` + counterColumns + ` FROM counters WHERE counter_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	row := tx.QueryRow(ctx, query, counterID)
	counter, err := scanCounter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Counter{}, store.ErrCounterNotFound
		}
		return models.Counter{}, err
	}
	return counter, nil
}

// releaseCounter clears the serving slot only when it still holds the
// given ticket, and reopens the counter.
func releaseCounter(ctx context.Context, tx pgx.Tx, counterID, ticketID, serviceID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE counters
		SET status = 'open', current_serving = NULL
		WHERE counter_id = $1 AND current_serving = $2
	`, counterID, ticketID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	return insertCounterEvent(ctx, tx, counterID, serviceID, models.CounterOpen, nil)
}
