// Package sos carries parsed sensor observation protocol documents and
// the client seam connectors speak through. The engine never interprets
// raw protocol bytes outside this package.
package sos

import (
	"time"

	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
)

// Capabilities is the parsed capabilities document of a remote service.
type Capabilities struct {
	Version  string
	Title    string
	Abstract string
	Provider ServiceProvider
	Contents []ObservationOffering
}

// ServiceProvider identifies the software vendor behind an endpoint.
// Connector selection keys off it to pick a dialect.
type ServiceProvider struct {
	Name string
	Site string
}

// ObservationOffering is one offering advertised in the capabilities
// contents section.
type ObservationOffering struct {
	ID                   string
	Name                 string
	Procedures           []string
	ObservableProperties []string
	RelatedFeatures      []FeatureRelationship
	PhenomenonTimeStart  *time.Time
	PhenomenonTimeEnd    *time.Time
	ResultTimeStart      *time.Time
	ResultTimeEnd        *time.Time
}

// FeatureRelationship links an offering to a feature playing a named
// role there, e.g. a sampled river for a set of gauges.
type FeatureRelationship struct {
	Target string
	Role   string
}

// Ref is an href/title pair referencing a remote entity by domain id.
type Ref struct {
	Href  string
	Title string
}

// DataAvailability describes one series the remote service can deliver,
// returned by a GetDataAvailability request.
type DataAvailability struct {
	Procedure           Ref
	Offering            Ref
	ObservedProperty    Ref
	FeatureOfInterest   Ref
	PhenomenonTimeStart time.Time
	PhenomenonTimeEnd   time.Time
}

// Observation is one parsed observation from a GetObservation response.
type Observation struct {
	Procedure         string
	ObservedProperty  string
	FeatureOfInterest string
	PhenomenonTime    time.Time
	UOM               string
	Numeric           *float64
	Text              string
	Parameters        []NamedParameter
}

// SamplingGeometryParameter is the OM parameter name under which moving
// platforms report a per-sample location.
const SamplingGeometryParameter = "http://www.opengis.net/def/param-name/OGC-OM/2.0/samplingGeometry"

// NamedParameter is an auxiliary named value attached to an observation.
// Only geometry-valued parameters are decoded; others keep Name alone.
type NamedParameter struct {
	Name     string
	Geometry *models.Geometry
}

// FeatureOfInterest is a parsed sampling feature from a
// GetFeatureOfInterest response.
type FeatureOfInterest struct {
	ID       string
	Name     string
	Geometry *models.Geometry
}

// ObservationRequest filters a GetObservation call by domain ids and an
// optional time span.
type ObservationRequest struct {
	Procedures         []string
	Offerings          []string
	ObservedProperties []string
	Features           []string
	Temporal           *models.TimeQuery
}

// AvailabilityRequest filters a GetDataAvailability call.
type AvailabilityRequest struct {
	Procedures         []string
	Offerings          []string
	ObservedProperties []string
	Features           []string
}

// FeatureRequest filters a GetFeatureOfInterest call.
type FeatureRequest struct {
	Procedures         []string
	ObservedProperties []string
}
