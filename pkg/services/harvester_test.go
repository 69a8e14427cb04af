package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sensorbridge/sensorbridge-engine/pkg/apperrors"
	"github.com/sensorbridge/sensorbridge-engine/pkg/config"
	"github.com/sensorbridge/sensorbridge-engine/pkg/connectors/constellation"
	"github.com/sensorbridge/sensorbridge-engine/pkg/metrics"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
	"github.com/sensorbridge/sensorbridge-engine/pkg/sos"
)

func harvestSources() []config.Source {
	return []config.Source{{
		Name:    "coastal",
		URL:     "http://sos.example.org/coastal",
		Type:    "SOS",
		Version: "2.0.0",
	}}
}

// twoSeriesConstellation stages two quantity series for a source.
func twoSeriesConstellation(src config.Source) *constellation.Constellation {
	cons := constellation.New()
	_ = cons.SetService(&models.Service{
		Name: src.Name, Type: src.Type, URL: src.URL,
		Version: src.Version, Connector: "fake",
	})
	for _, suffix := range []string{"a", "b"} {
		staged := constellation.NewQuantityDataset(
			cons.PutProcedure("proc-"+suffix, "", true, false),
			cons.PutOffering("off-"+suffix, "", nil, nil, nil, nil),
			cons.PutCategory("cat-"+suffix, ""),
			cons.PutPhenomenon("phen-"+suffix, ""),
			cons.PutFeature("feat-"+suffix, "", nil),
		)
		_ = cons.Add(staged)
	}
	return cons
}

func newTestHarvester(t *testing.T, sources []config.Source, client *fakeSOSClient, conn *fakeConnector, repo *fakeInsertRepo) Harvester {
	t.Helper()
	return NewHarvester(sources, client, &fakeResolver{connector: conn},
		repo, metrics.NewHarvestMetrics(prometheus.NewRegistry()), zap.NewNop())
}

func TestHarvester_RunOnce(t *testing.T) {
	sources := harvestSources()
	client := &fakeSOSClient{capabilities: map[string]*sos.Capabilities{
		sources[0].URL: {Version: "2.0.0"},
	}}
	conn := &fakeConnector{name: "fake", constellation: twoSeriesConstellation}
	repo := newFakeInsertRepo()

	h := newTestHarvester(t, sources, client, conn, repo)
	require.NoError(t, h.RunOnce(context.Background()))

	require.Len(t, repo.services, 1)
	assert.Equal(t, "coastal", repo.services[0].Name)
	require.Len(t, repo.inserted, 2)

	keep := repo.cleanups[repo.services[0].ID]
	require.Len(t, keep, 2)
	assert.Equal(t, repo.inserted[0].ID, keep[0])
	assert.Equal(t, repo.inserted[1].ID, keep[1])
}

func TestHarvester_FailingSourceDoesNotAbortOthers(t *testing.T) {
	sources := append(harvestSources(), config.Source{
		Name: "inland", URL: "http://sos.example.org/inland", Type: "SOS",
	})
	client := &fakeSOSClient{
		capabilities: map[string]*sos.Capabilities{
			sources[1].URL: {Version: "2.0.0"},
		},
		errs: map[string]error{
			sources[0].URL: assert.AnError,
		},
	}
	conn := &fakeConnector{name: "fake", constellation: twoSeriesConstellation}
	repo := newFakeInsertRepo()

	h := newTestHarvester(t, sources, client, conn, repo)
	err := h.RunOnce(context.Background())
	require.Error(t, err)

	// the second source still got harvested
	require.Len(t, repo.services, 1)
	assert.Equal(t, "inland", repo.services[0].Name)
}

func TestHarvester_MergesBoundaryAggregates(t *testing.T) {
	sources := harvestSources()
	client := &fakeSOSClient{capabilities: map[string]*sos.Capabilities{
		sources[0].URL: {Version: "2.0.0"},
	}}

	firstAt := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	lastAt := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	conn := &fakeConnector{
		name:          "fake",
		constellation: twoSeriesConstellation,
		first: &models.Observation{
			PhenomenonTimeStart: firstAt, PhenomenonTimeEnd: firstAt,
			Value: models.QuantityValue(1.5),
		},
		last: &models.Observation{
			PhenomenonTimeStart: lastAt, PhenomenonTimeEnd: lastAt,
			Value: models.QuantityValue(7.5),
		},
	}
	repo := newFakeInsertRepo()

	h := newTestHarvester(t, sources, client, conn, repo)
	require.NoError(t, h.RunOnce(context.Background()))

	require.Len(t, repo.merged, 2)
	merged := repo.merged[0]
	require.NotNil(t, merged.FirstValueAt)
	assert.Equal(t, firstAt, *merged.FirstValueAt)
	require.NotNil(t, merged.FirstValue)
	assert.Equal(t, 1.5, *merged.FirstValue)
	require.NotNil(t, merged.LastValue)
	assert.Equal(t, 7.5, *merged.LastValue)
}

func TestHarvester_FillsPlaceholderUnit(t *testing.T) {
	sources := harvestSources()
	client := &fakeSOSClient{capabilities: map[string]*sos.Capabilities{
		sources[0].URL: {Version: "2.0.0"},
	}}
	conn := &fakeConnector{
		name:          "fake",
		constellation: twoSeriesConstellation,
		unit:          &models.Unit{Name: "degC"},
	}
	repo := newFakeInsertRepo()

	h := newTestHarvester(t, sources, client, conn, repo)
	require.NoError(t, h.RunOnce(context.Background()))

	require.Len(t, repo.unitUpdates, 2)
	assert.Equal(t, "degC", repo.unitUpdates[0].Name)
}

func TestHarvester_ToleratesUnsupportedOperations(t *testing.T) {
	sources := harvestSources()
	client := &fakeSOSClient{capabilities: map[string]*sos.Capabilities{
		sources[0].URL: {Version: "2.0.0"},
	}}
	conn := &fakeConnector{
		name:          "fake",
		constellation: twoSeriesConstellation,
		firstErr:      apperrors.ErrUnsupported,
		lastErr:       apperrors.ErrUnsupported,
		unitErr:       apperrors.ErrUnsupported,
	}
	repo := newFakeInsertRepo()

	h := newTestHarvester(t, sources, client, conn, repo)
	require.NoError(t, h.RunOnce(context.Background()))

	assert.Empty(t, repo.merged)
	assert.Empty(t, repo.unitUpdates)
	require.Len(t, repo.inserted, 2)
}

func TestNumericValue(t *testing.T) {
	q := numericValue(models.QuantityValue(3.25))
	require.NotNil(t, q)
	assert.Equal(t, 3.25, *q)

	c := numericValue(models.CountValue(7))
	require.NotNil(t, c)
	assert.Equal(t, 7.0, *c)

	assert.Nil(t, numericValue(models.TextValue("dry")))
}
