package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sensorbridge/sensorbridge-engine/pkg/apperrors"
	"github.com/sensorbridge/sensorbridge-engine/pkg/config"
	"github.com/sensorbridge/sensorbridge-engine/pkg/connectors"
	"github.com/sensorbridge/sensorbridge-engine/pkg/metrics"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
	"github.com/sensorbridge/sensorbridge-engine/pkg/repositories"
	"github.com/sensorbridge/sensorbridge-engine/pkg/sos"
)

// ConnectorResolver selects connectors for configured sources and
// resolves them by persisted name. *connectors.Set satisfies it.
type ConnectorResolver interface {
	Select(src config.Source, caps *sos.Capabilities) (connectors.Connector, error)
	Resolve(name string) (connectors.Connector, error)
}

// Harvester mirrors the configured remote services into the catalog.
type Harvester interface {
	// RunOnce executes one full harvest pass over every configured
	// source. A failing source does not abort the pass; the combined
	// error reports all failures.
	RunOnce(ctx context.Context) error

	// Run starts the periodic harvest loop: one pass immediately, then
	// one per interval until the context is cancelled.
	Run(ctx context.Context, interval time.Duration)
}

type harvester struct {
	sources   []config.Source
	client    sos.Client
	resolver  ConnectorResolver
	repo      repositories.InsertRepository
	collected *metrics.HarvestMetrics
	logger    *zap.Logger
}

// NewHarvester creates the harvest service over the configured sources.
func NewHarvester(
	sources []config.Source,
	client sos.Client,
	resolver ConnectorResolver,
	repo repositories.InsertRepository,
	collected *metrics.HarvestMetrics,
	logger *zap.Logger,
) Harvester {
	return &harvester{
		sources:   sources,
		client:    client,
		resolver:  resolver,
		repo:      repo,
		collected: collected,
		logger:    logger.Named("harvester"),
	}
}

var _ Harvester = (*harvester)(nil)

func (s *harvester) Run(ctx context.Context, interval time.Duration) {
	go func() {
		s.logger.Info("Harvest loop started",
			zap.Duration("interval", interval),
			zap.Int("sources", len(s.sources)))

		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error("Harvest pass finished with errors", zap.Error(err))
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Harvest loop stopped")
				return
			case <-ticker.C:
				if err := s.RunOnce(ctx); err != nil {
					s.logger.Error("Harvest pass finished with errors", zap.Error(err))
				}
			}
		}
	}()
}

func (s *harvester) RunOnce(ctx context.Context) error {
	runID := uuid.New()
	logger := s.logger.With(zap.String("run_id", runID.String()))
	logger.Info("Starting harvest pass")

	removed, err := s.repo.RemoveNonMatchingServices(ctx, s.sources)
	if err != nil {
		logger.Error("Failed to remove decommissioned services", zap.Error(err))
		return err
	}
	s.collected.ServicesRemoved.Add(float64(len(removed)))

	var errs []error
	for _, src := range s.sources {
		start := time.Now()
		err := s.harvestSource(ctx, logger, src)
		s.collected.Duration.WithLabelValues(src.Name).Observe(time.Since(start).Seconds())

		status := "ok"
		if err != nil {
			status = "error"
			logger.Error("Source harvest failed",
				zap.String("source", src.Name),
				zap.Error(err))
			errs = append(errs, err)
		}
		s.collected.Runs.WithLabelValues(src.Name, status).Inc()
	}

	logger.Info("Harvest pass finished",
		zap.Int("sources", len(s.sources)),
		zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

func (s *harvester) harvestSource(ctx context.Context, logger *zap.Logger, src config.Source) error {
	caps, err := s.client.GetCapabilities(ctx, src.URL)
	if err != nil {
		return err
	}

	connector, err := s.resolver.Select(src, caps)
	if err != nil {
		return err
	}
	logger.Debug("Selected connector",
		zap.String("source", src.Name),
		zap.String("connector", connector.Name()))

	cons, err := connector.GetConstellation(ctx, src, caps)
	if err != nil {
		return err
	}
	if err := s.repo.InsertService(ctx, cons.Service()); err != nil {
		return err
	}

	before, err := s.repo.GetIDsForService(ctx, cons.Service().ID)
	if err != nil {
		return err
	}

	keep := make([]int64, 0, len(cons.Datasets()))
	for _, staged := range cons.Datasets() {
		dataset, err := s.repo.InsertDataset(ctx, staged, cons)
		if err != nil {
			// leave the previous row alone rather than dropping it via
			// an incomplete keep set
			return err
		}
		keep = append(keep, dataset.ID)

		s.harvestAggregates(ctx, logger, connector, dataset)
		s.harvestUnit(ctx, logger, connector, dataset)
	}

	if err := s.repo.InsertFeatureRelations(ctx, cons); err != nil {
		return err
	}
	if err := s.repo.InsertRelatedFeatures(ctx, cons); err != nil {
		return err
	}
	if err := s.repo.CleanUp(ctx, cons.Service().ID, keep); err != nil {
		return err
	}

	s.collected.Datasets.WithLabelValues(src.Name).Set(float64(len(keep)))
	logger.Info("Harvested source",
		zap.String("source", src.Name),
		zap.Int("datasets_before", len(before)),
		zap.Int("datasets_after", len(keep)))
	return nil
}

// harvestAggregates refreshes the dataset's first/last observation
// aggregates through the connector. Failures are logged and skipped:
// the series itself is already reconciled.
func (s *harvester) harvestAggregates(ctx context.Context, logger *zap.Logger, connector connectors.Connector, dataset *models.Dataset) {
	incoming := &models.Dataset{
		ServiceID:    dataset.ServiceID,
		ProcedureID:  dataset.ProcedureID,
		OfferingID:   dataset.OfferingID,
		CategoryID:   dataset.CategoryID,
		PhenomenonID: dataset.PhenomenonID,
		FeatureID:    dataset.FeatureID,
		ValueType:    dataset.ValueType,
	}

	first, err := connector.GetFirstObservation(ctx, dataset)
	if err != nil {
		if !errors.Is(err, apperrors.ErrUnsupported) {
			logger.Warn("Failed to fetch first observation", zap.Int64("dataset_id", dataset.ID), zap.Error(err))
		}
		return
	}
	last, err := connector.GetLastObservation(ctx, dataset)
	if err != nil {
		if !errors.Is(err, apperrors.ErrUnsupported) {
			logger.Warn("Failed to fetch last observation", zap.Int64("dataset_id", dataset.ID), zap.Error(err))
		}
		return
	}

	if first != nil {
		at := first.PhenomenonTimeStart
		incoming.FirstValueAt = &at
		incoming.FirstValue = numericValue(first.Value)
	}
	if last != nil {
		at := last.PhenomenonTimeStart
		incoming.LastValueAt = &at
		incoming.LastValue = numericValue(last.Value)
	}
	if incoming.FirstValueAt == nil && incoming.LastValueAt == nil {
		return
	}

	if err := s.repo.MergeDatasetAggregates(ctx, incoming); err != nil {
		logger.Warn("Failed to merge dataset aggregates", zap.Int64("dataset_id", dataset.ID), zap.Error(err))
		return
	}

	dataset.FirstValueAt = incoming.FirstValueAt
	dataset.LastValueAt = incoming.LastValueAt
	dataset.FirstValue = incoming.FirstValue
	dataset.LastValue = incoming.LastValue
}

// harvestUnit fills in the unit of measure for quantity datasets still
// carrying the empty placeholder.
func (s *harvester) harvestUnit(ctx context.Context, logger *zap.Logger, connector connectors.Connector, dataset *models.Dataset) {
	if dataset.ValueType != models.ValueTypeQuantity {
		return
	}
	if dataset.Unit != nil && dataset.Unit.Name != "" {
		return
	}

	unit, err := connector.GetUom(ctx, dataset)
	if err != nil {
		if !errors.Is(err, apperrors.ErrUnsupported) {
			logger.Warn("Failed to fetch unit of measure", zap.Int64("dataset_id", dataset.ID), zap.Error(err))
		}
		return
	}
	if unit == nil {
		return
	}

	if err := s.repo.UpdateDatasetUnit(ctx, dataset, unit); err != nil {
		logger.Warn("Failed to update dataset unit", zap.Int64("dataset_id", dataset.ID), zap.Error(err))
	}
}

// numericValue extracts the float aggregate for quantity and count
// kinds; text series carry no numeric aggregates.
func numericValue(v models.Value) *float64 {
	switch v.Kind {
	case models.ValueTypeQuantity:
		value := v.Quantity
		return &value
	case models.ValueTypeCount:
		value := float64(v.Count)
		return &value
	case models.ValueTypeText:
		return nil
	}
	return nil
}
