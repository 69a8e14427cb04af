package connectors

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sensorbridge/sensorbridge-engine/pkg/config"
	"github.com/sensorbridge/sensorbridge-engine/pkg/connectors/constellation"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
	"github.com/sensorbridge/sensorbridge-engine/pkg/sos"
)

// TrajectoryName is the registry name of the trajectory connector.
const TrajectoryName = "trajectory"

// trajectoryProvider is the provider name trajectory-capable endpoints
// announce in their capabilities.
const trajectoryProvider = "52North"

func init() {
	Register(Registration{
		Name:        TrajectoryName,
		Description: "Mobile-platform endpoints whose observations carry per-sample sampling geometries",
		Priority:    10,
		Factory: func(deps Deps) Connector {
			return &TrajectoryConnector{client: deps.Client, logger: deps.Logger.Named(TrajectoryName)}
		},
	})
}

// TrajectoryConnector handles endpoints serving moving platforms.
// Procedures are flagged mobile, and each observation's location comes
// from its sampling geometry parameter rather than a fixed feature.
//
// Boundary values cannot be resolved cheaply against these endpoints:
// GetFirstObservation and GetLastObservation return a sentinel (the
// current time, value zero) so the series still registers, and the real
// bounds converge once observations flow. Pin sources to another
// connector if that degraded mode is unacceptable.
type TrajectoryConnector struct {
	client sos.Client
	logger *zap.Logger
}

func (c *TrajectoryConnector) Name() string { return TrajectoryName }

// CanHandle claims SOS 2.0.0 endpoints announcing a trajectory-capable
// provider.
func (c *TrajectoryConnector) CanHandle(src config.Source, caps *sos.Capabilities) bool {
	return caps.Version == "2.0.0" && caps.Provider.Name == trajectoryProvider
}

// GetConstellation stages exactly one dataset per endpoint: the first
// procedure/phenomenon combination of the first usable offering.
// Trajectory endpoints repeat the same series under every combination,
// so expanding them would stage duplicates; set
// expand_all_combinations on the source to walk every offering and
// combination anyway.
func (c *TrajectoryConnector) GetConstellation(ctx context.Context, src config.Source, caps *sos.Capabilities) (*constellation.Constellation, error) {
	cons := constellation.New()
	if err := cons.SetService(serviceEntity(src, TrajectoryName, caps)); err != nil {
		return nil, err
	}

	for _, offering := range caps.Contents {
		if len(offering.Procedures) == 0 || len(offering.ObservableProperties) == 0 {
			c.logger.Warn("Skipping offering without procedures or observable properties",
				zap.String("offering", offering.ID))
			continue
		}
		offeringID := addOffering(cons, offering)

		procedures := offering.Procedures[:1]
		obsProps := offering.ObservableProperties[:1]
		if src.ExpandAllCombinations {
			procedures = offering.Procedures
			obsProps = offering.ObservableProperties
		}

		for _, procedure := range procedures {
			for _, obsProp := range obsProps {
				procedureID := cons.PutProcedure(procedure, procedure, true, true)
				phenomenonID := cons.PutPhenomenon(obsProp, obsProp)
				categoryID := cons.PutCategory(obsProp, obsProp)
				// the feature is the platform itself; samples carry
				// their own geometry
				featureID := cons.PutFeature(procedure, procedure, nil)

				if err := cons.Add(constellation.NewQuantityDataset(
					procedureID, offeringID, categoryID, phenomenonID, featureID)); err != nil {
					return nil, err
				}
			}
		}

		if !src.ExpandAllCombinations {
			break
		}
	}

	c.logger.Debug("Built constellation",
		zap.String("source", src.Name),
		zap.Int("datasets", len(cons.Datasets())))
	return cons, nil
}

// GetObservations fetches the series bounded by the query. Sampling
// geometries arrive as observation parameters and are carried through.
func (c *TrajectoryConnector) GetObservations(ctx context.Context, dataset *models.Dataset, query models.TimeQuery) ([]models.Observation, error) {
	observations, err := c.client.GetObservations(ctx, dataset.Service.URL, observationRequest(dataset, &query))
	if err != nil {
		return nil, err
	}
	return observationEntities(observations, dataset.ValueType), nil
}

// GetFirstObservation returns the sentinel boundary value.
func (c *TrajectoryConnector) GetFirstObservation(ctx context.Context, dataset *models.Dataset) (*models.Observation, error) {
	return c.sentinelObservation(), nil
}

// GetLastObservation returns the sentinel boundary value.
func (c *TrajectoryConnector) GetLastObservation(ctx context.Context, dataset *models.Dataset) (*models.Observation, error) {
	return c.sentinelObservation(), nil
}

func (c *TrajectoryConnector) sentinelObservation() *models.Observation {
	now := time.Now().UTC()
	return &models.Observation{
		PhenomenonTimeStart: now,
		PhenomenonTimeEnd:   now,
		Value:               models.QuantityValue(0),
	}
}

// GetUom reads the unit from the series' data availability entry when
// the endpoint reports one; (nil, nil) otherwise.
func (c *TrajectoryConnector) GetUom(ctx context.Context, dataset *models.Dataset) (*models.Unit, error) {
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

var _ Connector = (*TrajectoryConnector)(nil)
