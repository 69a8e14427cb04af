package connectors

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sensorbridge/sensorbridge-engine/pkg/apperrors"
	"github.com/sensorbridge/sensorbridge-engine/pkg/config"
	"github.com/sensorbridge/sensorbridge-engine/pkg/connectors/constellation"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
	"github.com/sensorbridge/sensorbridge-engine/pkg/sos"
)

// HydroName is the registry name of the hydrology-profile connector.
const HydroName = "hydro"

func init() {
	Register(Registration{
		Name:        HydroName,
		Description: "Hydrology-profile endpoints; observation retrieval only, must be pinned on a source",
		Factory: func(deps Deps) Connector {
			return &HydroConnector{client: deps.Client, logger: deps.Logger.Named(HydroName)}
		},
	})
}

// HydroConnector speaks the hydrology profile. The profile exposes no
// cheap way to resolve units or boundary values, so those operations
// report unsupported and the harvester falls back to defaults. It never
// auto-selects; sources must pin it explicitly.
type HydroConnector struct {
	client sos.Client
	logger *zap.Logger
}

func (c *HydroConnector) Name() string { return HydroName }

// CanHandle always declines; hydrology endpoints are indistinguishable
// from plain ones by capabilities alone.
func (c *HydroConnector) CanHandle(src config.Source, caps *sos.Capabilities) bool {
	return false
}

// GetConstellation walks data availability per offering and stages one
// dataset per advertised series.
func (c *HydroConnector) GetConstellation(ctx context.Context, src config.Source, caps *sos.Capabilities) (*constellation.Constellation, error) {
	cons := constellation.New()
	if err := cons.SetService(serviceEntity(src, HydroName, caps)); err != nil {
		return nil, err
	}

	for _, offering := range caps.Contents {
		offeringID := addOffering(cons, offering)

		availabilities, err := c.client.GetDataAvailability(ctx, src.URL, sos.AvailabilityRequest{
			Offerings: []string{offeringID},
		})
		if err != nil {
			return nil, fmt.Errorf("data availability for offering %q: %w", offeringID, err)
		}

		for _, da := range availabilities {
			procedureID := cons.PutProcedure(da.Procedure.Href, da.Procedure.Title, true, false)
			phenomenonID := cons.PutPhenomenon(da.ObservedProperty.Href, da.ObservedProperty.Title)
			categoryID := cons.PutCategory(da.ObservedProperty.Href, da.ObservedProperty.Title)
			featureID := cons.PutFeature(da.FeatureOfInterest.Href, da.FeatureOfInterest.Title, nil)

			if err := cons.Add(constellation.NewQuantityDataset(
				procedureID, offeringID, categoryID, phenomenonID, featureID)); err != nil {
				return nil, err
			}
		}
	}

	c.logger.Debug("Built constellation",
		zap.String("source", src.Name),
		zap.Int("datasets", len(cons.Datasets())))
	return cons, nil
}

// GetObservations fetches the series bounded by the query.
func (c *HydroConnector) GetObservations(ctx context.Context, dataset *models.Dataset, query models.TimeQuery) ([]models.Observation, error) {
	observations, err := c.client.GetObservations(ctx, dataset.Service.URL, observationRequest(dataset, &query))
	if err != nil {
		return nil, err
	}
	return observationEntities(observations, dataset.ValueType), nil
}

// GetFirstObservation is not supported by the hydrology profile.
func (c *HydroConnector) GetFirstObservation(ctx context.Context, dataset *models.Dataset) (*models.Observation, error) {
	return nil, fmt.Errorf("first observation: %w", apperrors.ErrUnsupported)
}

// GetLastObservation is not supported by the hydrology profile.
func (c *HydroConnector) GetLastObservation(ctx context.Context, dataset *models.Dataset) (*models.Observation, error) {
	return nil, fmt.Errorf("last observation: %w", apperrors.ErrUnsupported)
}

// GetUom is not supported by the hydrology profile.
func (c *HydroConnector) GetUom(ctx context.Context, dataset *models.Dataset) (*models.Unit, error) {
	return nil, fmt.Errorf("unit of measure: %w", apperrors.ErrUnsupported)
}

var _ Connector = (*HydroConnector)(nil)
