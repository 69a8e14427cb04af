package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sensorbridge/sensorbridge-engine/pkg/database"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
)

// PhenomenonRepository reconciles phenomena by (service, domain id).
type PhenomenonRepository interface {
	GetOrInsert(ctx context.Context, q database.Querier, phenomenon *models.Phenomenon) error
	DeleteUnreferenced(ctx context.Context, q database.Querier, serviceID int64) (int64, error)
}

type phenomenonRepository struct{}

// NewPhenomenonRepository creates a new phenomenon repository.
func NewPhenomenonRepository() PhenomenonRepository {
	return &phenomenonRepository{}
}

func (r *phenomenonRepository) GetOrInsert(ctx context.Context, q database.Querier, phenomenon *models.Phenomenon) error {
	query := `SELECT id, name FROM phenomena WHERE service_id = $1 AND domain_id = $2`

	err := q.QueryRow(ctx, query, phenomenon.ServiceID, phenomenon.DomainID).
		Scan(&phenomenon.ID, &phenomenon.Name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to get phenomenon: %w", err)
	}

	insert := `
		INSERT INTO phenomena (service_id, domain_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (service_id, domain_id) DO NOTHING
		RETURNING id`

	err = q.QueryRow(ctx, insert, phenomenon.ServiceID, phenomenon.DomainID, phenomenon.Name).
		Scan(&phenomenon.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to insert phenomenon: %w", err)
	}

	err = q.QueryRow(ctx, query, phenomenon.ServiceID, phenomenon.DomainID).
		Scan(&phenomenon.ID, &phenomenon.Name)
	if err != nil {
		return fmt.Errorf("failed to re-read phenomenon after conflict: %w", err)
	}
	return nil
}

// DeleteUnreferenced removes phenomena of a service no dataset points
// at anymore.
func (r *phenomenonRepository) DeleteUnreferenced(ctx context.Context, q database.Querier, serviceID int64) (int64, error) {
	query := `
		DELETE FROM phenomena
		WHERE service_id = $1
		  AND id NOT IN (SELECT phenomenon_id FROM datasets WHERE service_id = $1)`

	result, err := q.Exec(ctx, query, serviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unreferenced phenomena: %w", err)
	}
	return result.RowsAffected(), nil
}

var _ PhenomenonRepository = (*phenomenonRepository)(nil)
