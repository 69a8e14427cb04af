package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sensorbridge/sensorbridge-engine/pkg/database"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
)

// RelatedFeatureRepository reconciles related features by (service,
// domain id) together with their role labels and offering links. Roles
// are global: the same label is shared across services.
type RelatedFeatureRepository interface {
	// GetOrInsert persists the related feature, its roles and its
	// offering links. Offerings are resolved by domain id and must
	// already exist; unknown offerings are skipped.
	GetOrInsert(ctx context.Context, q database.Querier, rf *models.RelatedFeature) error
	DeleteAllForService(ctx context.Context, q database.Querier, serviceID int64) error
}

type relatedFeatureRepository struct{}

// NewRelatedFeatureRepository creates a new related feature repository.
func NewRelatedFeatureRepository() RelatedFeatureRepository {
	return &relatedFeatureRepository{}
}

func (r *relatedFeatureRepository) GetOrInsert(ctx context.Context, q database.Querier, rf *models.RelatedFeature) error {
	if err := r.getOrInsertFeature(ctx, q, rf); err != nil {
		return err
	}
	for _, role := range rf.Roles {
		if err := r.getOrInsertRole(ctx, q, role); err != nil {
			return err
		}
		if err := r.link(ctx, q,
			`INSERT INTO related_feature_role_links (related_feature_id, role_id)
			 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			rf.ID, role.ID); err != nil {
			return fmt.Errorf("failed to link related feature role: %w", err)
		}
	}
	for _, offering := range rf.Offerings {
		var offeringID int64
		err := q.QueryRow(ctx,
			`SELECT id FROM offerings WHERE service_id = $1 AND domain_id = $2`,
			rf.ServiceID, offering.DomainID,
		).Scan(&offeringID)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to resolve related feature offering: %w", err)
		}
		if err := r.link(ctx, q,
			`INSERT INTO related_feature_offerings (related_feature_id, offering_id)
			 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			rf.ID, offeringID); err != nil {
			return fmt.Errorf("failed to link related feature offering: %w", err)
		}
		offering.ID = offeringID
	}
	return nil
}

func (r *relatedFeatureRepository) getOrInsertFeature(ctx context.Context, q database.Querier, rf *models.RelatedFeature) error {
	query := `SELECT id, name FROM related_features WHERE service_id = $1 AND domain_id = $2`

	err := q.QueryRow(ctx, query, rf.ServiceID, rf.DomainID).Scan(&rf.ID, &rf.Name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to get related feature: %w", err)
	}

	insert := `
		INSERT INTO related_features (service_id, domain_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (service_id, domain_id) DO NOTHING
		RETURNING id`

	err = q.QueryRow(ctx, insert, rf.ServiceID, rf.DomainID, rf.Name).Scan(&rf.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to insert related feature: %w", err)
	}

	if err := q.QueryRow(ctx, query, rf.ServiceID, rf.DomainID).Scan(&rf.ID, &rf.Name); err != nil {
		return fmt.Errorf("failed to re-read related feature after conflict: %w", err)
	}
	return nil
}

func (r *relatedFeatureRepository) getOrInsertRole(ctx context.Context, q database.Querier, role *models.RelatedFeatureRole) error {
	query := `SELECT id FROM related_feature_roles WHERE role = $1`

	err := q.QueryRow(ctx, query, role.Role).Scan(&role.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to get related feature role: %w", err)
	}

	insert := `
		INSERT INTO related_feature_roles (role)
		VALUES ($1)
		ON CONFLICT (role) DO NOTHING
		RETURNING id`

	err = q.QueryRow(ctx, insert, role.Role).Scan(&role.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to insert related feature role: %w", err)
	}

	if err := q.QueryRow(ctx, query, role.Role).Scan(&role.ID); err != nil {
		return fmt.Errorf("failed to re-read related feature role after conflict: %w", err)
	}
	return nil
}

func (r *relatedFeatureRepository) link(ctx context.Context, q database.Querier, query string, a, b int64) error {
	_, err := q.Exec(ctx, query, a, b)
	return err
}

func (r *relatedFeatureRepository) DeleteAllForService(ctx context.Context, q database.Querier, serviceID int64) error {
	if _, err := q.Exec(ctx, `DELETE FROM related_features WHERE service_id = $1`, serviceID); err != nil {
		return fmt.Errorf("failed to delete related features for service: %w", err)
	}
	return nil
}

var _ RelatedFeatureRepository = (*relatedFeatureRepository)(nil)
