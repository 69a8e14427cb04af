package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sensorbridge/sensorbridge-engine/pkg/database"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
)

// OfferingRepository reconciles offerings by (service, domain id).
// Unlike the other dimensions an existing offering IS updated on
// re-harvest: its time extents widen to cover the incoming span.
type OfferingRepository interface {
	GetOrInsert(ctx context.Context, q database.Querier, offering *models.Offering) error
	DeleteUnreferenced(ctx context.Context, q database.Querier, serviceID int64) (int64, error)
}

type offeringRepository struct{}

// NewOfferingRepository creates a new offering repository.
func NewOfferingRepository() OfferingRepository {
	return &offeringRepository{}
}

func (r *offeringRepository) GetOrInsert(ctx context.Context, q database.Querier, offering *models.Offering) error {
	query := `
		SELECT id, name, phenomenon_time_start, phenomenon_time_end,
		       result_time_start, result_time_end
		FROM offerings
		WHERE service_id = $1 AND domain_id = $2`

	scanExisting := func(row pgx.Row) (*models.Offering, error) {
		var stored models.Offering
		err := row.Scan(&stored.ID, &stored.Name,
			&stored.PhenomenonTimeStart, &stored.PhenomenonTimeEnd,
			&stored.ResultTimeStart, &stored.ResultTimeEnd)
		return &stored, err
	}

	stored, err := scanExisting(q.QueryRow(ctx, query, offering.ServiceID, offering.DomainID))
	if err == nil {
		return r.widen(ctx, q, offering, stored)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to get offering: %w", err)
	}

	insert := `
		INSERT INTO offerings (service_id, domain_id, name,
			phenomenon_time_start, phenomenon_time_end,
			result_time_start, result_time_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (service_id, domain_id) DO NOTHING
		RETURNING id`

	err = q.QueryRow(ctx, insert,
		offering.ServiceID, offering.DomainID, offering.Name,
		offering.PhenomenonTimeStart, offering.PhenomenonTimeEnd,
		offering.ResultTimeStart, offering.ResultTimeEnd,
	).Scan(&offering.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to insert offering: %w", err)
	}

	stored, err = scanExisting(q.QueryRow(ctx, query, offering.ServiceID, offering.DomainID))
	if err != nil {
		return fmt.Errorf("failed to re-read offering after conflict: %w", err)
	}
	return r.widen(ctx, q, offering, stored)
}

// widen merges the incoming extents into the stored row and reflects
// the merged state back onto the harvested entity.
func (r *offeringRepository) widen(ctx context.Context, q database.Querier, offering, stored *models.Offering) error {
	changed := stored.WidenExtents(offering)

	offering.ID = stored.ID
	offering.Name = stored.Name
	offering.PhenomenonTimeStart = stored.PhenomenonTimeStart
	offering.PhenomenonTimeEnd = stored.PhenomenonTimeEnd
	offering.ResultTimeStart = stored.ResultTimeStart
	offering.ResultTimeEnd = stored.ResultTimeEnd

	if !changed {
		return nil
	}

	update := `
		UPDATE offerings
		SET phenomenon_time_start = $2, phenomenon_time_end = $3,
		    result_time_start = $4, result_time_end = $5
		WHERE id = $1`

	_, err := q.Exec(ctx, update, stored.ID,
		stored.PhenomenonTimeStart, stored.PhenomenonTimeEnd,
		stored.ResultTimeStart, stored.ResultTimeEnd)
	if err != nil {
		return fmt.Errorf("failed to widen offering extents: %w", err)
	}
	return nil
}

// DeleteUnreferenced removes offerings of a service no dataset points
// at anymore.
func (r *offeringRepository) DeleteUnreferenced(ctx context.Context, q database.Querier, serviceID int64) (int64, error) {
	query := `
		DELETE FROM offerings
		WHERE service_id = $1
		  AND id NOT IN (SELECT offering_id FROM datasets WHERE service_id = $1)
		  AND id NOT IN (SELECT offering_id FROM related_feature_offerings)`

	result, err := q.Exec(ctx, query, serviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unreferenced offerings: %w", err)
	}
	return result.RowsAffected(), nil
}

var _ OfferingRepository = (*offeringRepository)(nil)
