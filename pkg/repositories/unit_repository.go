package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sensorbridge/sensorbridge-engine/pkg/database"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
)

// UnitRepository reconciles units of measure by (service, name). The
// empty name is a legal unit: quantity series start out with a
// placeholder unit until a uom harvest fills in the real one.
type UnitRepository interface {
	GetOrInsert(ctx context.Context, q database.Querier, unit *models.Unit) error
	DeleteUnreferenced(ctx context.Context, q database.Querier, serviceID int64) (int64, error)
	DeleteAllForService(ctx context.Context, q database.Querier, serviceID int64) error
}

type unitRepository struct{}

// NewUnitRepository creates a new unit repository.
func NewUnitRepository() UnitRepository {
	return &unitRepository{}
}

func (r *unitRepository) GetOrInsert(ctx context.Context, q database.Querier, unit *models.Unit) error {
	query := `SELECT id FROM units WHERE service_id = $1 AND name = $2`

	err := q.QueryRow(ctx, query, unit.ServiceID, unit.Name).Scan(&unit.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to get unit: %w", err)
	}

	insert := `
		INSERT INTO units (service_id, name, description)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (service_id, name) DO NOTHING
		RETURNING id`

	err = q.QueryRow(ctx, insert, unit.ServiceID, unit.Name, unit.Description).Scan(&unit.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to insert unit: %w", err)
	}

	if err := q.QueryRow(ctx, query, unit.ServiceID, unit.Name).Scan(&unit.ID); err != nil {
		return fmt.Errorf("failed to re-read unit after conflict: %w", err)
	}
	return nil
}

// DeleteUnreferenced removes units of a service no dataset points at
// anymore.
func (r *unitRepository) DeleteUnreferenced(ctx context.Context, q database.Querier, serviceID int64) (int64, error) {
	query := `
		DELETE FROM units
		WHERE service_id = $1
		  AND id NOT IN (SELECT unit_id FROM datasets WHERE service_id = $1 AND unit_id IS NOT NULL)`

	result, err := q.Exec(ctx, query, serviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unreferenced units: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteAllForService removes every unit of a service, used when the
// service itself is decommissioned.
func (r *unitRepository) DeleteAllForService(ctx context.Context, q database.Querier, serviceID int64) error {
	if _, err := q.Exec(ctx, `DELETE FROM units WHERE service_id = $1`, serviceID); err != nil {
		return fmt.Errorf("failed to delete units for service: %w", err)
	}
	return nil
}

var _ UnitRepository = (*unitRepository)(nil)
