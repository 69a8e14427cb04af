package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sensorbridge/sensorbridge-engine/pkg/database"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
)

// FeatureRepository reconciles features of interest by (service, domain
// id) and maintains the parent/child adjacency between them.
type FeatureRepository interface {
	GetOrInsert(ctx context.Context, q database.Querier, feature *models.Feature) error
	// InsertRelation links two already-persisted features, idempotently.
	InsertRelation(ctx context.Context, q database.Querier, parentID, childID int64) error
	DeleteUnreferenced(ctx context.Context, q database.Querier, serviceID int64) (int64, error)
}

type featureRepository struct{}

// NewFeatureRepository creates a new feature repository.
func NewFeatureRepository() FeatureRepository {
	return &featureRepository{}
}

func (r *featureRepository) GetOrInsert(ctx context.Context, q database.Querier, feature *models.Feature) error {
	query := `
		SELECT id, name, description, latitude, longitude, altitude
		FROM features
		WHERE service_id = $1 AND domain_id = $2`

	scanExisting := func(row pgx.Row) error {
		var description *string
		var lat, lon, alt *float64
		if err := row.Scan(&feature.ID, &feature.Name, &description, &lat, &lon, &alt); err != nil {
			return err
		}
		if description != nil {
			feature.Description = *description
		}
		if lat != nil && lon != nil {
			feature.Geometry = &models.Geometry{Latitude: *lat, Longitude: *lon}
			if alt != nil {
				feature.Geometry.Altitude = *alt
			}
		}
		return nil
	}

	err := scanExisting(q.QueryRow(ctx, query, feature.ServiceID, feature.DomainID))
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to get feature: %w", err)
	}

	var lat, lon, alt *float64
	if geom := feature.Geometry; geom != nil {
		lat, lon, alt = &geom.Latitude, &geom.Longitude, &geom.Altitude
	}

	insert := `
		INSERT INTO features (service_id, domain_id, name, description, latitude, longitude, altitude)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		ON CONFLICT (service_id, domain_id) DO NOTHING
		RETURNING id`

	err = q.QueryRow(ctx, insert,
		feature.ServiceID, feature.DomainID, feature.Name, feature.Description,
		lat, lon, alt,
	).Scan(&feature.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to insert feature: %w", err)
	}

	if err := scanExisting(q.QueryRow(ctx, query, feature.ServiceID, feature.DomainID)); err != nil {
		return fmt.Errorf("failed to re-read feature after conflict: %w", err)
	}
	return nil
}

func (r *featureRepository) InsertRelation(ctx context.Context, q database.Querier, parentID, childID int64) error {
	query := `
		INSERT INTO feature_relations (parent_id, child_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	if _, err := q.Exec(ctx, query, parentID, childID); err != nil {
		return fmt.Errorf("failed to insert feature relation: %w", err)
	}
	return nil
}

// DeleteUnreferenced removes features of a service no dataset points at
// anymore. Adjacency rows touching them go via cascade.
func (r *featureRepository) DeleteUnreferenced(ctx context.Context, q database.Querier, serviceID int64) (int64, error) {
	query := `
		DELETE FROM features
		WHERE service_id = $1
		  AND id NOT IN (SELECT feature_id FROM datasets WHERE service_id = $1)`

	result, err := q.Exec(ctx, query, serviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unreferenced features: %w", err)
	}
	return result.RowsAffected(), nil
}

var _ FeatureRepository = (*featureRepository)(nil)
