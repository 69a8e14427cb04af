// Package repositories reconciles harvested entity graphs against the
// Postgres catalog. Every repository method runs against an explicit
// database.Querier so one harvest pass can hold a single transaction
// handle across all the rows it touches.
//
// Find-or-insert uses ON CONFLICT DO NOTHING plus a re-read of the
// winner's row rather than letting a unique violation surface: a raw
// 23505 would abort the surrounding transaction.
package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sensorbridge/sensorbridge-engine/pkg/database"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
)

// ServiceRepository reconciles remote services by their (type, url)
// natural key.
type ServiceRepository interface {
	// GetOrInsert resolves the service row for its natural key, creating
	// it if absent, and fills in the storage ID. Fields of an existing
	// row are never updated from the harvest.
	GetOrInsert(ctx context.Context, q database.Querier, service *models.Service) error
	GetAll(ctx context.Context, q database.Querier) ([]models.Service, error)
	Get(ctx context.Context, q database.Querier, id int64) (*models.Service, error)
	Delete(ctx context.Context, q database.Querier, id int64) error
}

type serviceRepository struct{}

// NewServiceRepository creates a new service repository.
func NewServiceRepository() ServiceRepository {
	return &serviceRepository{}
}

const selectService = `
	SELECT id, name, description, type, url, version, connector
	FROM services`

func (r *serviceRepository) GetOrInsert(ctx context.Context, q database.Querier, service *models.Service) error {
	query := selectService + ` WHERE type = $1 AND url = $2`

	found, err := scanService(q.QueryRow(ctx, query, service.Type, service.URL))
	if err == nil {
		*service = *found
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to get service: %w", err)
	}

	insert := `
		INSERT INTO services (name, description, type, url, version, connector)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (type, url) DO NOTHING
		RETURNING id`

	err = q.QueryRow(ctx, insert,
		service.Name, service.Description, service.Type,
		service.URL, service.Version, service.Connector,
	).Scan(&service.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to insert service: %w", err)
	}

	// lost the race; read the winner's row
	found, err = scanService(q.QueryRow(ctx, query, service.Type, service.URL))
	if err != nil {
		return fmt.Errorf("failed to re-read service after conflict: %w", err)
	}
	*service = *found
	return nil
}

func (r *serviceRepository) GetAll(ctx context.Context, q database.Querier) ([]models.Service, error) {
	rows, err := q.Query(ctx, selectService+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		service, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, *service)
	}
	return services, rows.Err()
}

func (r *serviceRepository) Get(ctx context.Context, q database.Querier, id int64) (*models.Service, error) {
	service, err := scanService(q.QueryRow(ctx, selectService+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("service")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return service, nil
}

// Delete removes a service row. Dimension entities and datasets follow
// via cascade.
func (r *serviceRepository) Delete(ctx context.Context, q database.Querier, id int64) error {
	result, err := q.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notFound("service")
	}
	return nil
}

func scanService(row pgx.Row) (*models.Service, error) {
	var service models.Service
	var description *string
	err := row.Scan(&service.ID, &service.Name, &description,
		&service.Type, &service.URL, &service.Version, &service.Connector)
	if err != nil {
		return nil, err
	}
	if description != nil {
		service.Description = *description
	}
	return &service, nil
}

var _ ServiceRepository = (*serviceRepository)(nil)
