package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sensorbridge/sensorbridge-engine/pkg/database"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
)

// ProcedureRepository reconciles procedures by (service, domain id).
type ProcedureRepository interface {
	GetOrInsert(ctx context.Context, q database.Querier, procedure *models.Procedure) error
	DeleteUnreferenced(ctx context.Context, q database.Querier, serviceID int64) (int64, error)
}

type procedureRepository struct{}

// NewProcedureRepository creates a new procedure repository.
func NewProcedureRepository() ProcedureRepository {
	return &procedureRepository{}
}

func (r *procedureRepository) GetOrInsert(ctx context.Context, q database.Querier, procedure *models.Procedure) error {
	query := `
		SELECT id, name, insitu, mobile
		FROM procedures
		WHERE service_id = $1 AND domain_id = $2`

	scanExisting := func(row pgx.Row) error {
		return row.Scan(&procedure.ID, &procedure.Name, &procedure.InSitu, &procedure.Mobile)
	}

	err := scanExisting(q.QueryRow(ctx, query, procedure.ServiceID, procedure.DomainID))
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to get procedure: %w", err)
	}

	insert := `
		INSERT INTO procedures (service_id, domain_id, name, insitu, mobile)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (service_id, domain_id) DO NOTHING
		RETURNING id`

	err = q.QueryRow(ctx, insert,
		procedure.ServiceID, procedure.DomainID, procedure.Name,
		procedure.InSitu, procedure.Mobile,
	).Scan(&procedure.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to insert procedure: %w", err)
	}

	if err := scanExisting(q.QueryRow(ctx, query, procedure.ServiceID, procedure.DomainID)); err != nil {
		return fmt.Errorf("failed to re-read procedure after conflict: %w", err)
	}
	return nil
}

// DeleteUnreferenced removes procedures of a service no dataset points
// at anymore.
func (r *procedureRepository) DeleteUnreferenced(ctx context.Context, q database.Querier, serviceID int64) (int64, error) {
	query := `
		DELETE FROM procedures
		WHERE service_id = $1
		  AND id NOT IN (SELECT procedure_id FROM datasets WHERE service_id = $1)`

	result, err := q.Exec(ctx, query, serviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unreferenced procedures: %w", err)
	}
	return result.RowsAffected(), nil
}

var _ ProcedureRepository = (*procedureRepository)(nil)
