package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sensorbridge/sensorbridge-engine/pkg/connectors"
	"github.com/sensorbridge/sensorbridge-engine/pkg/database"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
	"github.com/sensorbridge/sensorbridge-engine/pkg/repositories"
)

// DataService is the read path: it routes observation requests for a
// persisted dataset back through the connector that harvested it.
type DataService interface {
	// GetData fetches the series bounded by the query, preserving the
	// remote service's delivery order.
	GetData(ctx context.Context, datasetID int64, query models.TimeQuery) ([]models.DataValue, error)

	// GetFirstValue returns the earliest value of the series. Stored
	// aggregates short-circuit the remote call when they can answer.
	GetFirstValue(ctx context.Context, datasetID int64) (*models.DataValue, error)

	// GetLastValue returns the latest value of the series.
	GetLastValue(ctx context.Context, datasetID int64) (*models.DataValue, error)
}

type dataService struct {
	q        database.Querier
	datasets repositories.DatasetRepository
	resolver ConnectorResolver
	logger   *zap.Logger
}

// NewDataService creates the read path over the catalog and connector
// set.
func NewDataService(q database.Querier, datasets repositories.DatasetRepository, resolver ConnectorResolver, logger *zap.Logger) DataService {
	return &dataService{
		q:        q,
		datasets: datasets,
		resolver: resolver,
		logger:   logger.Named("data-service"),
	}
}

var _ DataService = (*dataService)(nil)

func (s *dataService) GetData(ctx context.Context, datasetID int64, query models.TimeQuery) ([]models.DataValue, error) {
	dataset, connector, err := s.resolve(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	observations, err := connector.GetObservations(ctx, dataset, query)
	if err != nil {
		return nil, err
	}

	values := make([]models.DataValue, 0, len(observations))
	for _, obs := range observations {
		values = append(values, models.DataValue{
			Timestamp: obs.PhenomenonTimeStart,
			Value:     obs.Value,
			Geometry:  obs.Geometry,
		})
	}
	return values, nil
}

func (s *dataService) GetFirstValue(ctx context.Context, datasetID int64) (*models.DataValue, error) {
	dataset, connector, err := s.resolve(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	if value := storedValue(dataset, dataset.FirstValueAt, dataset.FirstValue); value != nil {
		return value, nil
	}

	obs, err := connector.GetFirstObservation(ctx, dataset)
	if err != nil || obs == nil {
		return nil, err
	}
	return observationValue(obs), nil
}

func (s *dataService) GetLastValue(ctx context.Context, datasetID int64) (*models.DataValue, error) {
	dataset, connector, err := s.resolve(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	if value := storedValue(dataset, dataset.LastValueAt, dataset.LastValue); value != nil {
		return value, nil
	}

	obs, err := connector.GetLastObservation(ctx, dataset)
	if err != nil || obs == nil {
		return nil, err
	}
	return observationValue(obs), nil
}

func (s *dataService) resolve(ctx context.Context, datasetID int64) (*models.Dataset, connectors.Connector, error) {
	dataset, err := s.datasets.Get(ctx, s.q, datasetID)
	if err != nil {
		return nil, nil, err
	}
	connector, err := s.resolver.Resolve(dataset.Service.Connector)
	if err != nil {
		return nil, nil, err
	}
	return dataset, connector, nil
}

// storedValue answers a boundary query from the dataset's persisted
// aggregates. Text series store no numeric aggregate and always go to
// the remote service.
func storedValue(dataset *models.Dataset, at *time.Time, numeric *float64) *models.DataValue {
	if at == nil || numeric == nil {
		return nil
	}
	switch dataset.ValueType {
	case models.ValueTypeQuantity:
		return &models.DataValue{Timestamp: *at, Value: models.QuantityValue(*numeric)}
	case models.ValueTypeCount:
		return &models.DataValue{Timestamp: *at, Value: models.CountValue(int64(*numeric))}
	case models.ValueTypeText:
		return nil
	}
	return nil
}

func observationValue(obs *models.Observation) *models.DataValue {
	return &models.DataValue{
		Timestamp: obs.PhenomenonTimeStart,
		Value:     obs.Value,
		Geometry:  obs.Geometry,
	}
}
