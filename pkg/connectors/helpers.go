package connectors

import (
	"github.com/sensorbridge/sensorbridge-engine/pkg/config"
	"github.com/sensorbridge/sensorbridge-engine/pkg/connectors/constellation"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
	"github.com/sensorbridge/sensorbridge-engine/pkg/sos"
)

// serviceEntity builds the service row for one harvest pass, stamped
// with the harvesting connector's name.
func serviceEntity(src config.Source, connectorName string, caps *sos.Capabilities) *models.Service {
	version := caps.Version
	if version == "" {
		version = src.Version
	}
	return &models.Service{
		Name:        src.Name,
		Description: caps.Abstract,
		Type:        src.Type,
		URL:         src.URL,
		Version:     version,
		Connector:   connectorName,
	}
}

// addOffering stages a capabilities offering with its time extents.
func addOffering(cons *constellation.Constellation, off sos.ObservationOffering) string {
	return cons.PutOffering(off.ID, off.Name,
		off.PhenomenonTimeStart, off.PhenomenonTimeEnd,
		off.ResultTimeStart, off.ResultTimeEnd)
}

// addRelatedFeatures stages the offering's feature relationships as
// related features bound to the offering. Relationships without a role
// are skipped; a role is what makes the link meaningful downstream.
func addRelatedFeatures(cons *constellation.Constellation, off sos.ObservationOffering) {
	for _, rel := range off.RelatedFeatures {
		if rel.Role == "" {
			continue
		}
		cons.AddRelatedFeature(&models.RelatedFeature{
			DomainID:  rel.Target,
			Name:      rel.Target,
			Roles:     []*models.RelatedFeatureRole{{Role: rel.Role}},
			Offerings: []*models.Offering{{DomainID: off.ID}},
		})
	}
}

// availabilityRequest filters a GetDataAvailability call by a persisted
// dataset's dimension domain ids.
func availabilityRequest(ds *models.Dataset) sos.AvailabilityRequest {
	return sos.AvailabilityRequest{
		Procedures:         []string{ds.Procedure.DomainID},
		Offerings:          []string{ds.Offering.DomainID},
		ObservedProperties: []string{ds.Phenomenon.DomainID},
		Features:           []string{ds.Feature.DomainID},
	}
}

// observationRequest filters a GetObservation call by a persisted
// dataset's dimension domain ids and an optional time span.
func observationRequest(ds *models.Dataset, query *models.TimeQuery) sos.ObservationRequest {
	req := sos.ObservationRequest{
		Procedures:         []string{ds.Procedure.DomainID},
		Offerings:          []string{ds.Offering.DomainID},
		ObservedProperties: []string{ds.Phenomenon.DomainID},
		Features:           []string{ds.Feature.DomainID},
	}
	if query != nil && !query.IsZero() {
		req.Temporal = query
	}
	return req
}

// observationEntity converts a parsed protocol observation into the
// normalized model, typed by the dataset's value kind. An observation
// carrying the sampling-geometry parameter gets the geometry attached;
// observations without it get none.
func observationEntity(obs sos.Observation, valueType models.ValueType) models.Observation {
	entity := models.Observation{
		PhenomenonTimeStart: obs.PhenomenonTime,
		PhenomenonTimeEnd:   obs.PhenomenonTime,
	}

	switch valueType {
	case models.ValueTypeQuantity:
		if obs.Numeric != nil {
			entity.Value = models.QuantityValue(*obs.Numeric)
		} else {
			entity.Value = models.QuantityValue(0)
		}
	case models.ValueTypeCount:
		if obs.Numeric != nil {
			entity.Value = models.CountValue(int64(*obs.Numeric))
		} else {
			entity.Value = models.CountValue(0)
		}
	case models.ValueTypeText:
		entity.Value = models.TextValue(obs.Text)
	}

	for _, param := range obs.Parameters {
		if param.Name == sos.SamplingGeometryParameter && param.Geometry != nil {
			entity.Geometry = param.Geometry
		}
	}

	return entity
}

// observationEntities converts a full response, preserving order.
func observationEntities(observations []sos.Observation, valueType models.ValueType) []models.Observation {
	entities := make([]models.Observation, 0, len(observations))
	for _, obs := range observations {
		entities = append(entities, observationEntity(obs, valueType))
	}
	return entities
}
