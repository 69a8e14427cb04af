package sos

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
	"github.com/sensorbridge/sensorbridge-engine/pkg/retry"
)

// Client issues sensor observation protocol requests against a remote
// endpoint and returns already-parsed documents. Implementations own
// transport and decoding; callers only see the parsed types.
type Client interface {
	GetCapabilities(ctx context.Context, endpoint string) (*Capabilities, error)
	GetObservations(ctx context.Context, endpoint string, req ObservationRequest) ([]Observation, error)
	GetDataAvailability(ctx context.Context, endpoint string, req AvailabilityRequest) ([]DataAvailability, error)
	GetFeaturesOfInterest(ctx context.Context, endpoint string, req FeatureRequest) ([]FeatureOfInterest, error)
}

// DefaultTimeout bounds every remote request when no explicit timeout
// is configured. Requests exceeding it fail outright; the harvest pass
// for that service is abandoned for the cycle.
const DefaultTimeout = 30 * time.Second

const serviceVersion = "2.0.0"

// HTTPClient implements Client over the KVP (GET) protocol binding.
// Transient transport failures and server errors are retried with
// exponential backoff; client errors fail immediately.
type HTTPClient struct {
	http  *http.Client
	retry *retry.Config
}

// NewHTTPClient creates a client with the given request timeout.
// A zero timeout falls back to DefaultTimeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		http:  &http.Client{Timeout: timeout},
		retry: retry.DefaultConfig(),
	}
}

// GetCapabilities fetches and parses the capabilities document.
func (c *HTTPClient) GetCapabilities(ctx context.Context, endpoint string) (*Capabilities, error) {
	params := url.Values{}
	params.Set("service", "SOS")
	params.Set("request", "GetCapabilities")
	params.Set("acceptVersions", serviceVersion)

	body, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	return decodeCapabilities(body)
}

// GetObservations fetches observations filtered by the request's domain
// ids and optional time span. The full response is materialized before
// return.
func (c *HTTPClient) GetObservations(ctx context.Context, endpoint string, req ObservationRequest) ([]Observation, error) {
	params := c.baseParams("GetObservation")
	setMulti(params, "procedure", req.Procedures)
	setMulti(params, "offering", req.Offerings)
	setMulti(params, "observedProperty", req.ObservedProperties)
	setMulti(params, "featureOfInterest", req.Features)
	if req.Temporal != nil && !req.Temporal.IsZero() {
		params.Set("temporalFilter", temporalFilter(*req.Temporal))
	}

	body, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	return decodeObservations(body)
}

// GetDataAvailability fetches the series the remote service can deliver
// for the requested domain ids.
func (c *HTTPClient) GetDataAvailability(ctx context.Context, endpoint string, req AvailabilityRequest) ([]DataAvailability, error) {
	params := c.baseParams("GetDataAvailability")
	setMulti(params, "procedure", req.Procedures)
	setMulti(params, "offering", req.Offerings)
	setMulti(params, "observedProperty", req.ObservedProperties)
	setMulti(params, "featureOfInterest", req.Features)

	body, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	return decodeDataAvailability(body)
}

// GetFeaturesOfInterest fetches sampling features with geometries.
func (c *HTTPClient) GetFeaturesOfInterest(ctx context.Context, endpoint string, req FeatureRequest) ([]FeatureOfInterest, error) {
	params := c.baseParams("GetFeatureOfInterest")
	setMulti(params, "procedure", req.Procedures)
	setMulti(params, "observedProperty", req.ObservedProperties)

	body, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	return decodeFeaturesOfInterest(body)
}

func (c *HTTPClient) baseParams(request string) url.Values {
	params := url.Values{}
	params.Set("service", "SOS")
	params.Set("version", serviceVersion)
	params.Set("request", request)
	return params
}

func (c *HTTPClient) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	reqURL := endpoint + sep + params.Encode()

	return retry.DoWithResult(ctx, c.retry, func() ([]byte, error) {
		return c.fetch(ctx, endpoint, reqURL)
	})
}

func (c *HTTPClient) fetch(ctx context.Context, endpoint, reqURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to build request: %w", err))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("remote service returned status %d", resp.StatusCode)
		// 5xx is worth another attempt, anything else is our fault.
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, err
		}
		return nil, retry.Permanent(err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// setMulti joins multiple domain ids into one comma-separated KVP
// parameter, the encoding the KVP binding prescribes for lists.
func setMulti(params url.Values, key string, values []string) {
	if len(values) > 0 {
		params.Set(key, strings.Join(values, ","))
	}
}

// temporalFilter renders a time query as a KVP temporalFilter value
// over the phenomenon time. An open side of the span is encoded as the
// protocol's unbounded marker.
func temporalFilter(q models.TimeQuery) string {
	start := "unknown"
	end := "unknown"
	if !q.Start.IsZero() {
		start = q.Start.UTC().Format(time.RFC3339)
	}
	if !q.End.IsZero() {
		end = q.End.UTC().Format(time.RFC3339)
	}
	if start == end {
		return "om:phenomenonTime," + start
	}
	return "om:phenomenonTime," + start + "/" + end
}
