package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sensorbridge/sensorbridge-engine/pkg/database"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
)

// CategoryRepository reconciles categories by (service, domain id).
type CategoryRepository interface {
	GetOrInsert(ctx context.Context, q database.Querier, category *models.Category) error
	DeleteUnreferenced(ctx context.Context, q database.Querier, serviceID int64) (int64, error)
}

type categoryRepository struct{}

// NewCategoryRepository creates a new category repository.
func NewCategoryRepository() CategoryRepository {
	return &categoryRepository{}
}

func (r *categoryRepository) GetOrInsert(ctx context.Context, q database.Querier, category *models.Category) error {
	query := `SELECT id, name FROM categories WHERE service_id = $1 AND domain_id = $2`

	err := q.QueryRow(ctx, query, category.ServiceID, category.DomainID).
		Scan(&category.ID, &category.Name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to get category: %w", err)
	}

	insert := `
		INSERT INTO categories (service_id, domain_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (service_id, domain_id) DO NOTHING
		RETURNING id`

	err = q.QueryRow(ctx, insert, category.ServiceID, category.DomainID, category.Name).
		Scan(&category.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to insert category: %w", err)
	}

	err = q.QueryRow(ctx, query, category.ServiceID, category.DomainID).
		Scan(&category.ID, &category.Name)
	if err != nil {
		return fmt.Errorf("failed to re-read category after conflict: %w", err)
	}
	return nil
}

// DeleteUnreferenced removes categories of a service no dataset points
// at anymore.
func (r *categoryRepository) DeleteUnreferenced(ctx context.Context, q database.Querier, serviceID int64) (int64, error) {
	query := `
		DELETE FROM categories
		WHERE service_id = $1
		  AND id NOT IN (SELECT category_id FROM datasets WHERE service_id = $1)`

	result, err := q.Exec(ctx, query, serviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unreferenced categories: %w", err)
	}
	return result.RowsAffected(), nil
}

var _ CategoryRepository = (*categoryRepository)(nil)
