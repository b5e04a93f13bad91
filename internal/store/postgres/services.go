package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"qline/internal/models"
	"qline/internal/store"
)

const serviceColumns = `service_id, name, COALESCE(queue_prefix, ''), service_minutes,
	COALESCE(max_queue_size, 0), active, COALESCE(hours_json::text, '')`

func scanService(row ticketRow) (models.Service, error) {
	var service models.Service
	err := row.Scan(&service.ServiceID, &service.Name, &service.QueuePrefix,
		&service.ServiceMinutes, &service.MaxQueueSize, &service.Active, &service.HoursJSON)
	if err != nil {
		return models.Service{}, err
	}
	return service, nil
}

func (s *Store) GetService(ctx context.Context, serviceID string) (models.Service, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+serviceColumns+` FROM services WHERE service_id = $1
	`, serviceID)
	service, err := scanService(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrServiceNotFound
		}
		return models.Service{}, err
	}
	return service, nil
}

func (s *Store) ListServices(ctx context.Context) ([]models.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+serviceColumns+` FROM services WHERE active = TRUE ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		service, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, service)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func getServiceTx(ctx context.Context, tx pgx.Tx, serviceID string) (models.Service, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+serviceColumns+` FROM services WHERE service_id = $1
	`, serviceID)
	service, err := scanService(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrServiceNotFound
		}
		return models.Service{}, err
	}
	return service, nil
}
