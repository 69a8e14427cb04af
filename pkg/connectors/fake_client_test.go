package connectors

import (
	"context"

	"github.com/sensorbridge/sensorbridge-engine/pkg/sos"
)

// fakeClient is a canned-response sos.Client for connector tests. Each
// field is returned verbatim; request funcs, when set, record or shape
// per-request responses.
type fakeClient struct {
	capabilities   *sos.Capabilities
	observations   []sos.Observation
	availabilities []sos.DataAvailability
	features       []sos.FeatureOfInterest

	observationsFn func(req sos.ObservationRequest) ([]sos.Observation, error)

	observationRequests  []sos.ObservationRequest
	availabilityRequests []sos.AvailabilityRequest
	featureRequests      []sos.FeatureRequest
}

func (f *fakeClient) GetCapabilities(ctx context.Context, endpoint string) (*sos.Capabilities, error) {
	return f.capabilities, nil
}

func (f *fakeClient) GetObservations(ctx context.Context, endpoint string, req sos.ObservationRequest) ([]sos.Observation, error) {
	f.observationRequests = append(f.observationRequests, req)
	if f.observationsFn != nil {
		return f.observationsFn(req)
	}
	return f.observations, nil
}

func (f *fakeClient) GetDataAvailability(ctx context.Context, endpoint string, req sos.AvailabilityRequest) ([]sos.DataAvailability, error) {
	f.availabilityRequests = append(f.availabilityRequests, req)
	return f.availabilities, nil
}

func (f *fakeClient) GetFeaturesOfInterest(ctx context.Context, endpoint string, req sos.FeatureRequest) ([]sos.FeatureOfInterest, error) {
	f.featureRequests = append(f.featureRequests, req)
	return f.features, nil
}

var _ sos.Client = (*fakeClient)(nil)
