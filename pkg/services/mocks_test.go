package services

import (
	"context"
	"fmt"

	"github.com/sensorbridge/sensorbridge-engine/pkg/config"
	"github.com/sensorbridge/sensorbridge-engine/pkg/connectors"
	"github.com/sensorbridge/sensorbridge-engine/pkg/connectors/constellation"
	"github.com/sensorbridge/sensorbridge-engine/pkg/database"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
	"github.com/sensorbridge/sensorbridge-engine/pkg/repositories"
	"github.com/sensorbridge/sensorbridge-engine/pkg/sos"
)

// fakeSOSClient serves canned capabilities per endpoint URL.
type fakeSOSClient struct {
	capabilities map[string]*sos.Capabilities
	errs         map[string]error
}

func (f *fakeSOSClient) GetCapabilities(ctx context.Context, endpoint string) (*sos.Capabilities, error) {
	if err := f.errs[endpoint]; err != nil {
		return nil, err
	}
	caps, ok := f.capabilities[endpoint]
	if !ok {
		return nil, fmt.Errorf("no capabilities for %s", endpoint)
	}
	return caps, nil
}

func (f *fakeSOSClient) GetObservations(ctx context.Context, endpoint string, req sos.ObservationRequest) ([]sos.Observation, error) {
	return nil, nil
}

func (f *fakeSOSClient) GetDataAvailability(ctx context.Context, endpoint string, req sos.AvailabilityRequest) ([]sos.DataAvailability, error) {
	return nil, nil
}

func (f *fakeSOSClient) GetFeaturesOfInterest(ctx context.Context, endpoint string, req sos.FeatureRequest) ([]sos.FeatureOfInterest, error) {
	return nil, nil
}

var _ sos.Client = (*fakeSOSClient)(nil)

// fakeConnector cans every connector operation and records read-path
// calls.
type fakeConnector struct {
	name          string
	constellation func(src config.Source) *constellation.Constellation

	observations []models.Observation
	first        *models.Observation
	last         *models.Observation
	unit         *models.Unit

	firstErr error
	lastErr  error
	unitErr  error

	observationCalls int
	firstCalls       int
	lastCalls        int
	unitCalls        int
}

func (f *fakeConnector) Name() string { return f.name }

func (f *fakeConnector) CanHandle(src config.Source, caps *sos.Capabilities) bool { return true }

func (f *fakeConnector) GetConstellation(ctx context.Context, src config.Source, caps *sos.Capabilities) (*constellation.Constellation, error) {
	return f.constellation(src), nil
}

func (f *fakeConnector) GetObservations(ctx context.Context, dataset *models.Dataset, query models.TimeQuery) ([]models.Observation, error) {
	f.observationCalls++
	return f.observations, nil
}

func (f *fakeConnector) GetFirstObservation(ctx context.Context, dataset *models.Dataset) (*models.Observation, error) {
	f.firstCalls++
	return f.first, f.firstErr
}

func (f *fakeConnector) GetLastObservation(ctx context.Context, dataset *models.Dataset) (*models.Observation, error) {
	f.lastCalls++
	return f.last, f.lastErr
}

func (f *fakeConnector) GetUom(ctx context.Context, dataset *models.Dataset) (*models.Unit, error) {
	f.unitCalls++
	return f.unit, f.unitErr
}

var _ connectors.Connector = (*fakeConnector)(nil)

// fakeResolver hands out the same connector for every source.
type fakeResolver struct {
	connector connectors.Connector
}

func (f *fakeResolver) Select(src config.Source, caps *sos.Capabilities) (connectors.Connector, error) {
	return f.connector, nil
}

func (f *fakeResolver) Resolve(name string) (connectors.Connector, error) {
	return f.connector, nil
}

var _ ConnectorResolver = (*fakeResolver)(nil)

// fakeInsertRepo is an in-memory stand-in for the write surface. IDs
// are assigned sequentially; calls are recorded for assertions.
type fakeInsertRepo struct {
	nextID int64

	services         []*models.Service
	inserted         []*models.Dataset
	merged           []*models.Dataset
	unitUpdates      []*models.Unit
	cleanups         map[int64][]int64
	removedOnMatch   []models.Service
	relatedInserted  int
	relationInserted int
}

func newFakeInsertRepo() *fakeInsertRepo {
	return &fakeInsertRepo{cleanups: make(map[int64][]int64)}
}

func (f *fakeInsertRepo) nextSequence() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeInsertRepo) InsertService(ctx context.Context, service *models.Service) error {
	service.ID = f.nextSequence()
	f.services = append(f.services, service)
	return nil
}

func (f *fakeInsertRepo) InsertDataset(ctx context.Context, staged *constellation.Dataset, cons *constellation.Constellation) (*models.Dataset, error) {
	procedure := cons.Procedure(staged.Procedure)
	offering := cons.Offering(staged.Offering)
	category := cons.Category(staged.Category)
	phenomenon := cons.Phenomenon(staged.Phenomenon)
	feature := cons.Feature(staged.Feature)
	for _, entity := range []*int64{&procedure.ID, &offering.ID, &category.ID, &phenomenon.ID, &feature.ID} {
		if *entity == 0 {
			*entity = f.nextSequence()
		}
	}

	entity := staged.Entity(procedure, offering, category, phenomenon, feature, cons.Service())
	entity.ID = f.nextSequence()
	if entity.Unit != nil {
		entity.Unit.ID = f.nextSequence()
	}
	f.inserted = append(f.inserted, entity)
	return entity, nil
}

func (f *fakeInsertRepo) InsertFeatureRelations(ctx context.Context, cons *constellation.Constellation) error {
	f.relationInserted += len(cons.FeatureRelations())
	return nil
}

func (f *fakeInsertRepo) InsertRelatedFeatures(ctx context.Context, cons *constellation.Constellation) error {
	f.relatedInserted += len(cons.RelatedFeatures())
	return nil
}

func (f *fakeInsertRepo) MergeDatasetAggregates(ctx context.Context, dataset *models.Dataset) error {
	f.merged = append(f.merged, dataset)
	return nil
}

func (f *fakeInsertRepo) UpdateDatasetUnit(ctx context.Context, dataset *models.Dataset, unit *models.Unit) error {
	unit.ID = f.nextSequence()
	dataset.Unit = unit
	f.unitUpdates = append(f.unitUpdates, unit)
	return nil
}

func (f *fakeInsertRepo) GetIDsForService(ctx context.Context, serviceID int64) ([]int64, error) {
	var ids []int64
	for _, ds := range f.inserted {
		if ds.ServiceID == serviceID {
			ids = append(ids, ds.ID)
		}
	}
	return ids, nil
}

func (f *fakeInsertRepo) CleanUp(ctx context.Context, serviceID int64, keep []int64) error {
	f.cleanups[serviceID] = keep
	return nil
}

func (f *fakeInsertRepo) RemoveNonMatchingServices(ctx context.Context, sources []config.Source) ([]models.Service, error) {
	return f.removedOnMatch, nil
}

// fakeDatasetRepo serves canned datasets for the read path.
type fakeDatasetRepo struct {
	datasets map[int64]*models.Dataset
}

func (f *fakeDatasetRepo) GetOrInsert(ctx context.Context, q database.Querier, dataset *models.Dataset) error {
	return nil
}

func (f *fakeDatasetRepo) Get(ctx context.Context, q database.Querier, id int64) (*models.Dataset, error) {
	ds, ok := f.datasets[id]
	if !ok {
		return nil, fmt.Errorf("dataset %d not found", id)
	}
	return ds, nil
}

func (f *fakeDatasetRepo) GetIDsForService(ctx context.Context, q database.Querier, serviceID int64) ([]int64, error) {
	return nil, nil
}

func (f *fakeDatasetRepo) DeleteNotIn(ctx context.Context, q database.Querier, serviceID int64, keep []int64) (int64, error) {
	return 0, nil
}

func (f *fakeDatasetRepo) DeleteAllForService(ctx context.Context, q database.Querier, serviceID int64) error {
	return nil
}

var _ repositories.InsertRepository = (*fakeInsertRepo)(nil)
var _ repositories.DatasetRepository = (*fakeDatasetRepo)(nil)
