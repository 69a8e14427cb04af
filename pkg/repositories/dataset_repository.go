package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sensorbridge/sensorbridge-engine/pkg/database"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
)

// DatasetRepository reconciles datasets by their natural key: the full
// dimension tuple plus value type, scoped to a service.
type DatasetRepository interface {
	// GetOrInsert resolves the dataset row for its natural key. A fresh
	// row is inserted as-is. An existing row is merged: the stale domain
	// id is cleared, the row is re-published and un-deleted, the
	// first/last aggregates widen per MergeSeriesValues. The merged
	// state is reflected back onto the argument.
	GetOrInsert(ctx context.Context, q database.Querier, dataset *models.Dataset) error

	// Get loads one dataset with its service and dimension entities, as
	// the read path needs them to route protocol requests.
	Get(ctx context.Context, q database.Querier, id int64) (*models.Dataset, error)

	GetIDsForService(ctx context.Context, q database.Querier, serviceID int64) ([]int64, error)

	// DeleteNotIn removes every dataset of the service whose id is not
	// in keep and reports how many went.
	DeleteNotIn(ctx context.Context, q database.Querier, serviceID int64, keep []int64) (int64, error)

	DeleteAllForService(ctx context.Context, q database.Querier, serviceID int64) error
}

type datasetRepository struct{}

// NewDatasetRepository creates a new dataset repository.
func NewDatasetRepository() DatasetRepository {
	return &datasetRepository{}
}

func (r *datasetRepository) GetOrInsert(ctx context.Context, q database.Querier, dataset *models.Dataset) error {
	query := `
		SELECT id, domain_id, published, deleted,
		       first_value_at, last_value_at, first_value, last_value, unit_id
		FROM datasets
		WHERE service_id = $1 AND procedure_id = $2 AND offering_id = $3
		  AND category_id = $4 AND phenomenon_id = $5 AND feature_id = $6
		  AND value_type = $7`

	naturalKey := []any{
		dataset.ServiceID, dataset.ProcedureID, dataset.OfferingID,
		dataset.CategoryID, dataset.PhenomenonID, dataset.FeatureID,
		dataset.ValueType,
	}

	stored, err := r.scanStored(q.QueryRow(ctx, query, naturalKey...), dataset)
	if err == nil {
		return r.merge(ctx, q, dataset, stored)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to get dataset: %w", err)
	}

	var unitID *int64
	if dataset.Unit != nil {
		unitID = &dataset.Unit.ID
	}

	insert := `
		INSERT INTO datasets (service_id, procedure_id, offering_id, category_id,
			phenomenon_id, feature_id, unit_id, value_type, domain_id,
			published, deleted, first_value_at, last_value_at, first_value, last_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12, $13, $14, $15)
		ON CONFLICT (service_id, procedure_id, offering_id, category_id, phenomenon_id, feature_id, value_type) DO NOTHING
		RETURNING id`

	err = q.QueryRow(ctx, insert,
		dataset.ServiceID, dataset.ProcedureID, dataset.OfferingID,
		dataset.CategoryID, dataset.PhenomenonID, dataset.FeatureID,
		unitID, dataset.ValueType, dataset.DomainID,
		dataset.Published, dataset.Deleted,
		dataset.FirstValueAt, dataset.LastValueAt,
		dataset.FirstValue, dataset.LastValue,
	).Scan(&dataset.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to insert dataset: %w", err)
	}

	stored, err = r.scanStored(q.QueryRow(ctx, query, naturalKey...), dataset)
	if err != nil {
		return fmt.Errorf("failed to re-read dataset after conflict: %w", err)
	}
	return r.merge(ctx, q, dataset, stored)
}

// scanStored reads an existing row into a dataset sharing the natural
// key of the harvested one.
func (r *datasetRepository) scanStored(row pgx.Row, key *models.Dataset) (*models.Dataset, error) {
	stored := &models.Dataset{
		ServiceID:    key.ServiceID,
		ProcedureID:  key.ProcedureID,
		OfferingID:   key.OfferingID,
		CategoryID:   key.CategoryID,
		PhenomenonID: key.PhenomenonID,
		FeatureID:    key.FeatureID,
		ValueType:    key.ValueType,
	}
	var domainID *string
	var unitID *int64
	err := row.Scan(&stored.ID, &domainID, &stored.Published, &stored.Deleted,
		&stored.FirstValueAt, &stored.LastValueAt, &stored.FirstValue, &stored.LastValue,
		&unitID)
	if err != nil {
		return nil, err
	}
	if domainID != nil {
		stored.DomainID = *domainID
	}
	if unitID != nil {
		stored.Unit = &models.Unit{ID: *unitID, ServiceID: key.ServiceID}
	}
	return stored, nil
}

// merge folds the harvested dataset into the stored row. Touching a row
// always clears its stale domain id, re-publishes it and un-deletes it;
// the series aggregates widen per the model's merge rules.
func (r *datasetRepository) merge(ctx context.Context, q database.Querier, dataset, stored *models.Dataset) error {
	stored.DomainID = ""
	stored.Published = true
	stored.Deleted = false
	stored.MergeSeriesValues(dataset)

	var unitID *int64
	if stored.Unit != nil {
		unitID = &stored.Unit.ID
	}

	update := `
		UPDATE datasets
		SET domain_id = NULL, published = TRUE, deleted = FALSE,
		    first_value_at = $2, last_value_at = $3,
		    first_value = $4, last_value = $5, unit_id = $6
		WHERE id = $1`

	_, err := q.Exec(ctx, update, stored.ID,
		stored.FirstValueAt, stored.LastValueAt,
		stored.FirstValue, stored.LastValue, unitID)
	if err != nil {
		return fmt.Errorf("failed to merge dataset: %w", err)
	}

	*dataset = *stored
	return nil
}

func (r *datasetRepository) Get(ctx context.Context, q database.Querier, id int64) (*models.Dataset, error) {
	query := `
		SELECT d.id, d.service_id, d.value_type, COALESCE(d.domain_id, ''),
		       d.published, d.deleted,
		       d.first_value_at, d.last_value_at, d.first_value, d.last_value,
		       d.procedure_id, d.offering_id, d.category_id, d.phenomenon_id, d.feature_id,
		       s.name, COALESCE(s.description, ''), s.type, s.url, s.version, s.connector,
		       p.domain_id, p.name, p.insitu, p.mobile,
		       o.domain_id, o.name,
		       c.domain_id, c.name,
		       ph.domain_id, ph.name,
		       f.domain_id, f.name,
		       u.id, u.name
		FROM datasets d
		JOIN services s ON s.id = d.service_id
		JOIN procedures p ON p.id = d.procedure_id
		JOIN offerings o ON o.id = d.offering_id
		JOIN categories c ON c.id = d.category_id
		JOIN phenomena ph ON ph.id = d.phenomenon_id
		JOIN features f ON f.id = d.feature_id
		LEFT JOIN units u ON u.id = d.unit_id
		WHERE d.id = $1`

	dataset := &models.Dataset{
		Service:    &models.Service{},
		Procedure:  &models.Procedure{},
		Offering:   &models.Offering{},
		Category:   &models.Category{},
		Phenomenon: &models.Phenomenon{},
		Feature:    &models.Feature{},
	}
	var unitID *int64
	var unitName *string

	err := q.QueryRow(ctx, query, id).Scan(
		&dataset.ID, &dataset.ServiceID, &dataset.ValueType, &dataset.DomainID,
		&dataset.Published, &dataset.Deleted,
		&dataset.FirstValueAt, &dataset.LastValueAt, &dataset.FirstValue, &dataset.LastValue,
		&dataset.ProcedureID, &dataset.OfferingID, &dataset.CategoryID,
		&dataset.PhenomenonID, &dataset.FeatureID,
		&dataset.Service.Name, &dataset.Service.Description, &dataset.Service.Type,
		&dataset.Service.URL, &dataset.Service.Version, &dataset.Service.Connector,
		&dataset.Procedure.DomainID, &dataset.Procedure.Name,
		&dataset.Procedure.InSitu, &dataset.Procedure.Mobile,
		&dataset.Offering.DomainID, &dataset.Offering.Name,
		&dataset.Category.DomainID, &dataset.Category.Name,
		&dataset.Phenomenon.DomainID, &dataset.Phenomenon.Name,
		&dataset.Feature.DomainID, &dataset.Feature.Name,
		&unitID, &unitName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("dataset")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	dataset.Service.ID = dataset.ServiceID
	dataset.Procedure.ID = dataset.ProcedureID
	dataset.Offering.ID = dataset.OfferingID
	dataset.Category.ID = dataset.CategoryID
	dataset.Phenomenon.ID = dataset.PhenomenonID
	dataset.Feature.ID = dataset.FeatureID
	if unitID != nil {
		dataset.Unit = &models.Unit{ID: *unitID, ServiceID: dataset.ServiceID}
		if unitName != nil {
			dataset.Unit.Name = *unitName
		}
	}
	return dataset, nil
}

func (r *datasetRepository) GetIDsForService(ctx context.Context, q database.Querier, serviceID int64) ([]int64, error) {
	rows, err := q.Query(ctx, `SELECT id FROM datasets WHERE service_id = $1 ORDER BY id`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan dataset id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *datasetRepository) DeleteNotIn(ctx context.Context, q database.Querier, serviceID int64, keep []int64) (int64, error) {
	query := `
		DELETE FROM datasets
		WHERE service_id = $1
		  AND NOT (id = ANY($2))`

	// a nil slice binds as SQL NULL and ANY(NULL) matches nothing,
	// which would keep every stale row alive
	if keep == nil {
		keep = []int64{}
	}

	result, err := q.Exec(ctx, query, serviceID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale datasets: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *datasetRepository) DeleteAllForService(ctx context.Context, q database.Querier, serviceID int64) error {
	if _, err := q.Exec(ctx, `DELETE FROM datasets WHERE service_id = $1`, serviceID); err != nil {
		return fmt.Errorf("failed to delete datasets for service: %w", err)
	}
	return nil
}

var _ DatasetRepository = (*datasetRepository)(nil)
