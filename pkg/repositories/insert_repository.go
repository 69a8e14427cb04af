package repositories

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sensorbridge/sensorbridge-engine/pkg/config"
	"github.com/sensorbridge/sensorbridge-engine/pkg/connectors/constellation"
	"github.com/sensorbridge/sensorbridge-engine/pkg/database"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
)

// InsertRepository is the write surface of one harvest pass. Each
// method is one unit of work running in its own transaction: a failed
// dataset leaves the rest of the pass untouched.
type InsertRepository interface {
	// InsertService resolves the service row and fills in its ID.
	InsertService(ctx context.Context, service *models.Service) error

	// InsertDataset persists one staged dataset with all its dimension
	// entities and returns the resolved row.
	InsertDataset(ctx context.Context, staged *constellation.Dataset, cons *constellation.Constellation) (*models.Dataset, error)

	// InsertFeatureRelations persists the staged feature hierarchy.
	InsertFeatureRelations(ctx context.Context, cons *constellation.Constellation) error

	// InsertRelatedFeatures persists the staged related features in one
	// batch transaction.
	InsertRelatedFeatures(ctx context.Context, cons *constellation.Constellation) error

	// MergeDatasetAggregates folds harvested first/last observation
	// aggregates into the dataset's stored row. The natural-key ids on
	// the argument must be resolved already.
	MergeDatasetAggregates(ctx context.Context, dataset *models.Dataset) error

	// UpdateDatasetUnit replaces the dataset's unit with a freshly
	// harvested one, creating the unit row if needed.
	UpdateDatasetUnit(ctx context.Context, dataset *models.Dataset, unit *models.Unit) error

	GetIDsForService(ctx context.Context, serviceID int64) ([]int64, error)

	// CleanUp removes every dataset of the service not in keep, then
	// clears dimension entities no remaining dataset references.
	CleanUp(ctx context.Context, serviceID int64, keep []int64) error

	// RemoveNonMatchingServices decommissions services no configured
	// source claims by (url, name) and returns what was removed.
	RemoveNonMatchingServices(ctx context.Context, sources []config.Source) ([]models.Service, error)
}

type pgInsertRepository struct {
	db     *database.DB
	logger *zap.Logger

	services        ServiceRepository
	procedures      ProcedureRepository
	offerings       OfferingRepository
	categories      CategoryRepository
	phenomena       PhenomenonRepository
	features        FeatureRepository
	units           UnitRepository
	datasets        DatasetRepository
	relatedFeatures RelatedFeatureRepository
}

// NewInsertRepository creates the write surface over a connection pool.
func NewInsertRepository(db *database.DB, logger *zap.Logger) InsertRepository {
	return &pgInsertRepository{
		db:              db,
		logger:          logger,
		services:        NewServiceRepository(),
		procedures:      NewProcedureRepository(),
		offerings:       NewOfferingRepository(),
		categories:      NewCategoryRepository(),
		phenomena:       NewPhenomenonRepository(),
		features:        NewFeatureRepository(),
		units:           NewUnitRepository(),
		datasets:        NewDatasetRepository(),
		relatedFeatures: NewRelatedFeatureRepository(),
	}
}

func (r *pgInsertRepository) InsertService(ctx context.Context, service *models.Service) error {
	return r.services.GetOrInsert(ctx, r.db.Pool, service)
}

func (r *pgInsertRepository) InsertDataset(ctx context.Context, staged *constellation.Dataset, cons *constellation.Constellation) (*models.Dataset, error) {
	service := cons.Service()
	if service == nil || service.ID == 0 {
		return nil, fmt.Errorf("constellation service not persisted")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	procedure := cons.Procedure(staged.Procedure)
	offering := cons.Offering(staged.Offering)
	category := cons.Category(staged.Category)
	phenomenon := cons.Phenomenon(staged.Phenomenon)
	feature := cons.Feature(staged.Feature)

	procedure.ServiceID = service.ID
	offering.ServiceID = service.ID
	category.ServiceID = service.ID
	phenomenon.ServiceID = service.ID
	feature.ServiceID = service.ID

	if err := r.procedures.GetOrInsert(ctx, tx, procedure); err != nil {
		return nil, err
	}
	if err := r.offerings.GetOrInsert(ctx, tx, offering); err != nil {
		return nil, err
	}
	if err := r.categories.GetOrInsert(ctx, tx, category); err != nil {
		return nil, err
	}
	if err := r.phenomena.GetOrInsert(ctx, tx, phenomenon); err != nil {
		return nil, err
	}
	if err := r.features.GetOrInsert(ctx, tx, feature); err != nil {
		return nil, err
	}

	entity := staged.Entity(procedure, offering, category, phenomenon, feature, service)
	if entity.Unit != nil {
		entity.Unit.ServiceID = service.ID
		if err := r.units.GetOrInsert(ctx, tx, entity.Unit); err != nil {
			return nil, err
		}
	}
	if err := r.datasets.GetOrInsert(ctx, tx, entity); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit dataset insert: %w", err)
	}
	return entity, nil
}

func (r *pgInsertRepository) InsertFeatureRelations(ctx context.Context, cons *constellation.Constellation) error {
	relations := cons.FeatureRelations()
	if len(relations) == 0 {
		return nil
	}
	service := cons.Service()
	if service == nil || service.ID == 0 {
		return fmt.Errorf("constellation service not persisted")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, rel := range relations {
		parent := cons.Feature(rel[0])
		child := cons.Feature(rel[1])
		parent.ServiceID = service.ID
		child.ServiceID = service.ID

		if err := r.features.GetOrInsert(ctx, tx, parent); err != nil {
			return err
		}
		if err := r.features.GetOrInsert(ctx, tx, child); err != nil {
			return err
		}
		if err := r.features.InsertRelation(ctx, tx, parent.ID, child.ID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *pgInsertRepository) InsertRelatedFeatures(ctx context.Context, cons *constellation.Constellation) error {
	related := cons.RelatedFeatures()
	if len(related) == 0 {
		return nil
	}
	service := cons.Service()
	if service == nil || service.ID == 0 {
		return fmt.Errorf("constellation service not persisted")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, rf := range related {
		rf.ServiceID = service.ID
		if err := r.relatedFeatures.GetOrInsert(ctx, tx, rf); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *pgInsertRepository) MergeDatasetAggregates(ctx context.Context, dataset *models.Dataset) error {
	return r.datasets.GetOrInsert(ctx, r.db.Pool, dataset)
}

func (r *pgInsertRepository) UpdateDatasetUnit(ctx context.Context, dataset *models.Dataset, unit *models.Unit) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	unit.ServiceID = dataset.ServiceID
	if err := r.units.GetOrInsert(ctx, tx, unit); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE datasets SET unit_id = $2 WHERE id = $1`, dataset.ID, unit.ID); err != nil {
		return fmt.Errorf("failed to update dataset unit: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit unit update: %w", err)
	}

	dataset.Unit = unit
	return nil
}

func (r *pgInsertRepository) GetIDsForService(ctx context.Context, serviceID int64) ([]int64, error) {
	return r.datasets.GetIDsForService(ctx, r.db.Pool, serviceID)
}

func (r *pgInsertRepository) CleanUp(ctx context.Context, serviceID int64, keep []int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	removed, err := r.datasets.DeleteNotIn(ctx, tx, serviceID, keep)
	if err != nil {
		return err
	}

	// datasets first; only then do the dimension entities lose their
	// last reference
	dims := int64(0)
	for _, del := range []func(context.Context, database.Querier, int64) (int64, error){
		r.procedures.DeleteUnreferenced,
		r.offerings.DeleteUnreferenced,
		r.categories.DeleteUnreferenced,
		r.phenomena.DeleteUnreferenced,
		r.features.DeleteUnreferenced,
		r.units.DeleteUnreferenced,
	} {
		n, err := del(ctx, tx, serviceID)
		if err != nil {
			return err
		}
		dims += n
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cleanup: %w", err)
	}

	r.logger.Info("Cleaned up stale catalog entries",
		zap.Int64("service_id", serviceID),
		zap.Int64("datasets_removed", removed),
		zap.Int64("dimensions_removed", dims))
	return nil
}

func (r *pgInsertRepository) RemoveNonMatchingServices(ctx context.Context, sources []config.Source) ([]models.Service, error) {
	services, err := r.services.GetAll(ctx, r.db.Pool)
	if err != nil {
		return nil, err
	}

	var removed []models.Service
	for _, service := range services {
		if matchesAnySource(service, sources) {
			continue
		}
		// every dependent row cascades from the service
		if err := r.services.Delete(ctx, r.db.Pool, service.ID); err != nil {
			return removed, fmt.Errorf("failed to remove service %q: %w", service.Name, err)
		}
		r.logger.Info("Removed decommissioned service",
			zap.String("name", service.Name),
			zap.String("url", service.URL))
		removed = append(removed, service)
	}
	return removed, nil
}

func matchesAnySource(service models.Service, sources []config.Source) bool {
	for _, src := range sources {
		if src.URL == service.URL && src.Name == service.Name {
			return true
		}
	}
	return false
}

var _ InsertRepository = (*pgInsertRepository)(nil)
