package connectors

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sensorbridge/sensorbridge-engine/pkg/config"
	"github.com/sensorbridge/sensorbridge-engine/pkg/connectors/constellation"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
	"github.com/sensorbridge/sensorbridge-engine/pkg/sos"
)

// SOS2Name is the registry name of the plain SOS 2.0 connector.
const SOS2Name = "sos2"

func init() {
	Register(Registration{
		Name:        SOS2Name,
		Description: "Plain SOS 2.0 endpoints, one series per offering/procedure/phenomenon combination",
		Factory: func(deps Deps) Connector {
			return &SOS2Connector{client: deps.Client, logger: deps.Logger.Named(SOS2Name)}
		},
	})
}

// SOS2Connector is the plain dialect: it expands every offering ×
// procedure × observable property combination the capabilities
// advertise and resolves each against a data availability request.
type SOS2Connector struct {
	client sos.Client
	logger *zap.Logger
}

func (c *SOS2Connector) Name() string { return SOS2Name }

// CanHandle claims any SOS 2.0.0 endpoint.
func (c *SOS2Connector) CanHandle(src config.Source, caps *sos.Capabilities) bool {
	return caps.Version == "2.0.0"
}

// GetConstellation builds the full graph for one endpoint.
func (c *SOS2Connector) GetConstellation(ctx context.Context, src config.Source, caps *sos.Capabilities) (*constellation.Constellation, error) {
	cons := constellation.New()
	if err := cons.SetService(serviceEntity(src, SOS2Name, caps)); err != nil {
		return nil, err
	}

	for _, offering := range caps.Contents {
		if err := c.addOfferingDatasets(ctx, cons, src.URL, offering); err != nil {
			return nil, err
		}
	}

	c.logger.Debug("Built constellation",
		zap.String("source", src.Name),
		zap.Int("datasets", len(cons.Datasets())))
	return cons, nil
}

func (c *SOS2Connector) addOfferingDatasets(ctx context.Context, cons *constellation.Constellation, endpoint string, offering sos.ObservationOffering) error {
	offeringID := addOffering(cons, offering)
	addRelatedFeatures(cons, offering)

	// one feature lookup per offering; data availability references
	// features by href only
	geometries, err := c.featureGeometries(ctx, endpoint, offering.Procedures)
	if err != nil {
		return err
	}

	for _, procedure := range offering.Procedures {
		for _, obsProp := range offering.ObservableProperties {
			availabilities, err := c.client.GetDataAvailability(ctx, endpoint, sos.AvailabilityRequest{
				Procedures:         []string{procedure},
				Offerings:          []string{offeringID},
				ObservedProperties: []string{obsProp},
			})
			if err != nil {
				return fmt.Errorf("data availability for offering %q: %w", offeringID, err)
			}

			for _, da := range availabilities {
				featureID := cons.PutFeature(da.FeatureOfInterest.Href, da.FeatureOfInterest.Title,
					geometries[da.FeatureOfInterest.Href])
				procedureID := cons.PutProcedure(procedure, da.Procedure.Title, true, false)
				phenomenonID := cons.PutPhenomenon(obsProp, da.ObservedProperty.Title)
				// the protocol has no category vocabulary; reuse the phenomenon
				categoryID := cons.PutCategory(obsProp, da.ObservedProperty.Title)

				if err := cons.Add(constellation.NewQuantityDataset(
					procedureID, offeringID, categoryID, phenomenonID, featureID)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (c *SOS2Connector) featureGeometries(ctx context.Context, endpoint string, procedures []string) (map[string]*models.Geometry, error) {
	features, err := c.client.GetFeaturesOfInterest(ctx, endpoint, sos.FeatureRequest{Procedures: procedures})
	if err != nil {
		return nil, fmt.Errorf("features of interest: %w", err)
	}
	geometries := make(map[string]*models.Geometry, len(features))
	for _, f := range features {
		geometries[f.ID] = f.Geometry
	}
	return geometries, nil
}

// GetObservations fetches the series bounded by the query.
func (c *SOS2Connector) GetObservations(ctx context.Context, dataset *models.Dataset, query models.TimeQuery) ([]models.Observation, error) {
	observations, err := c.client.GetObservations(ctx, dataset.Service.URL, observationRequest(dataset, &query))
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Fetched observations", zap.Int("count", len(observations)))
	return observationEntities(observations, dataset.ValueType), nil
}

// GetFirstObservation fetches the single earliest value by pinning the
// request to the start of the series' availability span.
func (c *SOS2Connector) GetFirstObservation(ctx context.Context, dataset *models.Dataset) (*models.Observation, error) {
	return c.boundaryObservation(ctx, dataset, false)
}

// GetLastObservation fetches the single latest value.
func (c *SOS2Connector) GetLastObservation(ctx context.Context, dataset *models.Dataset) (*models.Observation, error) {
	return c.boundaryObservation(ctx, dataset, true)
}

func (c *SOS2Connector) boundaryObservation(ctx context.Context, dataset *models.Dataset, last bool) (*models.Observation, error) {
	availabilities, err := c.client.GetDataAvailability(ctx, dataset.Service.URL, availabilityRequest(dataset))
	if err != nil {
		return nil, err
	}
	if len(availabilities) == 0 {
		return nil, nil
	}

	instant := availabilities[0].PhenomenonTimeStart
	if last {
		instant = availabilities[0].PhenomenonTimeEnd
	}
	query := models.TimeQuery{Start: instant, End: instant}

	observations, err := c.client.GetObservations(ctx, dataset.Service.URL, observationRequest(dataset, &query))
	if err != nil {
		return nil, err
	}
	if len(observations) == 0 {
		return nil, nil
	}

	entity := observationEntity(observations[0], dataset.ValueType)
	return &entity, nil
}

// GetUom derives the unit of measure with a minimal single-point
// observation request at the start of the availability span. Returns
// (nil, nil) when the series is empty or carries no unit.
func (c *SOS2Connector) GetUom(ctx context.Context, dataset *models.Dataset) (*models.Unit, error) {
	availabilities, err := c.client.GetDataAvailability(ctx, dataset.Service.URL, availabilityRequest(dataset))
	if err != nil {
		return nil, err
	}
	if len(availabilities) == 0 {
		return nil, nil
	}

	instant := availabilities[0].PhenomenonTimeStart
	query := models.TimeQuery{Start: instant, End: instant}
	observations, err := c.client.GetObservations(ctx, dataset.Service.URL, observationRequest(dataset, &query))
	if err != nil {
		return nil, err
	}
	if len(observations) == 0 || observations[0].UOM == "" {
		return nil, nil
	}

	return &models.Unit{Name: observations[0].UOM, ServiceID: dataset.ServiceID}, nil
}

var _ Connector = (*SOS2Connector)(nil)
