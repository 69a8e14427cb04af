//go:build integration

package repositories

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sensorbridge/sensorbridge-engine/pkg/config"
	"github.com/sensorbridge/sensorbridge-engine/pkg/connectors/constellation"
	"github.com/sensorbridge/sensorbridge-engine/pkg/database"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
	"github.com/sensorbridge/sensorbridge-engine/pkg/testhelpers"
)

// harvestTestContext holds test dependencies for insert repository tests.
// Each test works against its own service (keyed by the test name) so
// tests sharing the container do not interfere.
type harvestTestContext struct {
	t    *testing.T
	db   *database.DB
	repo InsertRepository
	url  string
}

func setupHarvestTest(t *testing.T) *harvestTestContext {
	testDB := testhelpers.GetTestDB(t)
	return &harvestTestContext{
		t:    t,
		db:   testDB.DB,
		repo: NewInsertRepository(testDB.DB, zap.NewNop()),
		url:  fmt.Sprintf("http://sos.test/%s", t.Name()),
	}
}

func (tc *harvestTestContext) newConstellation() *constellation.Constellation {
	tc.t.Helper()
	cons := constellation.New()
	err := cons.SetService(&models.Service{
		Name:      tc.t.Name(),
		Type:      "SOS",
		URL:       tc.url,
		Version:   "2.0.0",
		Connector: "sos2",
	})
	require.NoError(tc.t, err)
	return cons
}

// stageQuantity puts all five dimensions under the given suffix and
// stages one quantity dataset over them.
func stageQuantity(t *testing.T, cons *constellation.Constellation, suffix string) *constellation.Dataset {
	t.Helper()
	staged := constellation.NewQuantityDataset(
		cons.PutProcedure("proc-"+suffix, "Procedure "+suffix, true, false),
		cons.PutOffering("off-"+suffix, "Offering "+suffix, nil, nil, nil, nil),
		cons.PutCategory("cat-"+suffix, "Category "+suffix),
		cons.PutPhenomenon("phen-"+suffix, "Phenomenon "+suffix),
		cons.PutFeature("feat-"+suffix, "Feature "+suffix, &models.Geometry{Latitude: 52, Longitude: 7}),
	)
	require.NoError(t, cons.Add(staged))
	return staged
}

func (tc *harvestTestContext) insertAll(cons *constellation.Constellation) []*models.Dataset {
	tc.t.Helper()
	ctx := context.Background()
	require.NoError(tc.t, tc.repo.InsertService(ctx, cons.Service()))

	var inserted []*models.Dataset
	for _, staged := range cons.Datasets() {
		ds, err := tc.repo.InsertDataset(ctx, staged, cons)
		require.NoError(tc.t, err)
		inserted = append(inserted, ds)
	}
	return inserted
}

func TestInsertDataset_Idempotent(t *testing.T) {
	tc := setupHarvestTest(t)
	ctx := context.Background()

	cons := tc.newConstellation()
	stageQuantity(t, cons, "a")
	first := tc.insertAll(cons)
	require.Len(t, first, 1)
	assert.NotZero(t, first[0].ID)

	// a second pass resolves to the same rows
	cons2 := tc.newConstellation()
	stageQuantity(t, cons2, "a")
	second := tc.insertAll(cons2)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].ProcedureID, second[0].ProcedureID)
	assert.Equal(t, first[0].FeatureID, second[0].FeatureID)

	ids, err := tc.repo.GetIDsForService(ctx, cons.Service().ID)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestInsertDataset_MergeClearsDomainIDAndRevives(t *testing.T) {
	tc := setupHarvestTest(t)
	ctx := context.Background()

	cons := tc.newConstellation()
	staged := stageQuantity(t, cons, "a")
	staged.DomainID = "remote-export-42"
	first := tc.insertAll(cons)[0]
	assert.Equal(t, "remote-export-42", first.DomainID)

	// simulate an out-of-band soft delete
	_, err := tc.db.Exec(ctx,
		`UPDATE datasets SET deleted = TRUE, published = FALSE WHERE id = $1`, first.ID)
	require.NoError(t, err)

	cons2 := tc.newConstellation()
	stageQuantity(t, cons2, "a")
	second := tc.insertAll(cons2)[0]

	assert.Equal(t, first.ID, second.ID)
	assert.Empty(t, second.DomainID)
	assert.True(t, second.Published)
	assert.False(t, second.Deleted)
}

func TestDatasetGetOrInsert_WidensAggregatesOnly(t *testing.T) {
	tc := setupHarvestTest(t)
	ctx := context.Background()

	cons := tc.newConstellation()
	stageQuantity(t, cons, "a")
	stored := tc.insertAll(cons)[0]

	earlier := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2035, 1, 1, 0, 0, 0, 0, time.UTC)
	lo, hi := 1.5, 9.5

	datasets := NewDatasetRepository()

	incoming := &models.Dataset{
		ServiceID: stored.ServiceID, ProcedureID: stored.ProcedureID,
		OfferingID: stored.OfferingID, CategoryID: stored.CategoryID,
		PhenomenonID: stored.PhenomenonID, FeatureID: stored.FeatureID,
		ValueType:    models.ValueTypeQuantity,
		FirstValueAt: &earlier, FirstValue: &lo,
		LastValueAt: &later, LastValue: &hi,
	}
	require.NoError(t, datasets.GetOrInsert(ctx, tc.db.Pool, incoming))
	assert.Equal(t, stored.ID, incoming.ID)
	assert.Equal(t, earlier, incoming.FirstValueAt.UTC())
	assert.Equal(t, later, incoming.LastValueAt.UTC())
	require.NotNil(t, incoming.FirstValue)
	assert.Equal(t, 1.5, *incoming.FirstValue)

	// a narrower span must not shrink the stored one
	mid := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	midValue := 5.0
	narrower := &models.Dataset{
		ServiceID: stored.ServiceID, ProcedureID: stored.ProcedureID,
		OfferingID: stored.OfferingID, CategoryID: stored.CategoryID,
		PhenomenonID: stored.PhenomenonID, FeatureID: stored.FeatureID,
		ValueType:    models.ValueTypeQuantity,
		FirstValueAt: &mid, FirstValue: &midValue,
		LastValueAt: &mid, LastValue: &midValue,
	}
	require.NoError(t, datasets.GetOrInsert(ctx, tc.db.Pool, narrower))
	assert.Equal(t, earlier, narrower.FirstValueAt.UTC())
	assert.Equal(t, later, narrower.LastValueAt.UTC())
	assert.Equal(t, 1.5, *narrower.FirstValue)
	assert.Equal(t, 9.5, *narrower.LastValue)
}

func TestOfferingExtents_WidenAcrossPasses(t *testing.T) {
	tc := setupHarvestTest(t)
	ctx := context.Background()

	start1 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end1 := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	cons := tc.newConstellation()
	staged := constellation.NewQuantityDataset(
		cons.PutProcedure("proc-a", "Procedure", true, false),
		cons.PutOffering("off-a", "Offering", &start1, &end1, nil, nil),
		cons.PutCategory("cat-a", "Category"),
		cons.PutPhenomenon("phen-a", "Phenomenon"),
		cons.PutFeature("feat-a", "Feature", nil),
	)
	require.NoError(t, cons.Add(staged))
	tc.insertAll(cons)

	// the second harvest sees an earlier start and a later end
	start2 := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	end2 := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	cons2 := tc.newConstellation()
	staged2 := constellation.NewQuantityDataset(
		cons2.PutProcedure("proc-a", "Procedure", true, false),
		cons2.PutOffering("off-a", "Offering", &start2, &end2, nil, nil),
		cons2.PutCategory("cat-a", "Category"),
		cons2.PutPhenomenon("phen-a", "Phenomenon"),
		cons2.PutFeature("feat-a", "Feature", nil),
	)
	require.NoError(t, cons2.Add(staged2))
	merged := tc.insertAll(cons2)[0]

	require.NotNil(t, merged.Offering.PhenomenonTimeStart)
	assert.Equal(t, start2, merged.Offering.PhenomenonTimeStart.UTC())
	assert.Equal(t, end2, merged.Offering.PhenomenonTimeEnd.UTC())

	var storedStart, storedEnd time.Time
	err := tc.db.QueryRow(ctx,
		`SELECT phenomenon_time_start, phenomenon_time_end FROM offerings WHERE id = $1`,
		merged.OfferingID).Scan(&storedStart, &storedEnd)
	require.NoError(t, err)
	assert.Equal(t, start2, storedStart.UTC())
	assert.Equal(t, end2, storedEnd.UTC())
}

func TestCleanUp_RemovesStaleDatasetsAndOrphanedDimensions(t *testing.T) {
	tc := setupHarvestTest(t)
	ctx := context.Background()

	cons := tc.newConstellation()
	for _, suffix := range []string{"a", "b", "c", "d"} {
		stageQuantity(t, cons, suffix)
	}
	inserted := tc.insertAll(cons)
	require.Len(t, inserted, 4)

	serviceID := cons.Service().ID
	keep := []int64{inserted[0].ID, inserted[2].ID}
	require.NoError(t, tc.repo.CleanUp(ctx, serviceID, keep))

	ids, err := tc.repo.GetIDsForService(ctx, serviceID)
	require.NoError(t, err)
	assert.ElementsMatch(t, keep, ids)

	var procedures int
	err = tc.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM procedures WHERE service_id = $1`, serviceID).Scan(&procedures)
	require.NoError(t, err)
	assert.Equal(t, 2, procedures)

	var features int
	err = tc.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM features WHERE service_id = $1`, serviceID).Scan(&features)
	require.NoError(t, err)
	assert.Equal(t, 2, features)
}

func TestCleanUp_EmptyKeepDropsEverything(t *testing.T) {
	tc := setupHarvestTest(t)
	ctx := context.Background()

	cons := tc.newConstellation()
	stageQuantity(t, cons, "a")
	tc.insertAll(cons)
	serviceID := cons.Service().ID

	require.NoError(t, tc.repo.CleanUp(ctx, serviceID, nil))

	ids, err := tc.repo.GetIDsForService(ctx, serviceID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDatasetDeleteNotIn_NilKeep(t *testing.T) {
	tc := setupHarvestTest(t)
	ctx := context.Background()

	cons := tc.newConstellation()
	stageQuantity(t, cons, "a")
	stageQuantity(t, cons, "b")
	tc.insertAll(cons)
	serviceID := cons.Service().ID

	// a nil keep slice must behave like an empty one, not bind as SQL
	// NULL and match nothing
	datasets := NewDatasetRepository()
	deleted, err := datasets.DeleteNotIn(ctx, tc.db, serviceID, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	ids, err := datasets.GetIDsForService(ctx, tc.db, serviceID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestInsertFeatureRelations(t *testing.T) {
	tc := setupHarvestTest(t)
	ctx := context.Background()

	cons := tc.newConstellation()
	stageQuantity(t, cons, "a")
	cons.PutFeature("feat-parent", "Parent Site", nil)
	require.NoError(t, cons.AddFeatureRelation("feat-parent", "feat-a"))

	tc.insertAll(cons)
	require.NoError(t, tc.repo.InsertFeatureRelations(ctx, cons))

	var relations int
	err := tc.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM feature_relations fr
		JOIN features p ON p.id = fr.parent_id
		WHERE p.service_id = $1`, cons.Service().ID).Scan(&relations)
	require.NoError(t, err)
	assert.Equal(t, 1, relations)
}

func TestInsertRelatedFeatures(t *testing.T) {
	tc := setupHarvestTest(t)
	ctx := context.Background()

	cons := tc.newConstellation()
	stageQuantity(t, cons, "a")
	cons.AddRelatedFeature(&models.RelatedFeature{
		DomainID:  "area/basin",
		Name:      "Harbour Basin",
		Roles:     []*models.RelatedFeatureRole{{Role: "sampledArea"}},
		Offerings: []*models.Offering{{DomainID: "off-a"}},
	})

	tc.insertAll(cons)
	require.NoError(t, tc.repo.InsertRelatedFeatures(ctx, cons))
	// a second pass must not duplicate links
	require.NoError(t, tc.repo.InsertRelatedFeatures(ctx, cons))

	var links int
	err := tc.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM related_feature_offerings rfo
		JOIN related_features rf ON rf.id = rfo.related_feature_id
		WHERE rf.service_id = $1`, cons.Service().ID).Scan(&links)
	require.NoError(t, err)
	assert.Equal(t, 1, links)
}

func TestRemoveNonMatchingServices(t *testing.T) {
	tc := setupHarvestTest(t)
	ctx := context.Background()

	cons := tc.newConstellation()
	stageQuantity(t, cons, "a")
	tc.insertAll(cons)

	// still configured: nothing happens
	configured := []config.Source{{Name: t.Name(), URL: tc.url}}
	removed, err := tc.repo.RemoveNonMatchingServices(ctx, configured)
	require.NoError(t, err)
	for _, svc := range removed {
		assert.NotEqual(t, cons.Service().ID, svc.ID)
	}

	// dropped from config: the service and its catalog go
	renamed := []config.Source{{Name: "something-else", URL: tc.url}}
	removed, err = tc.repo.RemoveNonMatchingServices(ctx, renamed)
	require.NoError(t, err)

	found := false
	for _, svc := range removed {
		if svc.ID == cons.Service().ID {
			found = true
		}
	}
	assert.True(t, found, "expected service to be decommissioned")

	var datasets int
	err = tc.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM datasets WHERE service_id = $1`, cons.Service().ID).Scan(&datasets)
	require.NoError(t, err)
	assert.Zero(t, datasets)
}

func TestDatasetRepository_Get(t *testing.T) {
	tc := setupHarvestTest(t)
	ctx := context.Background()

	cons := tc.newConstellation()
	stageQuantity(t, cons, "a")
	inserted := tc.insertAll(cons)[0]

	loaded, err := NewDatasetRepository().Get(ctx, tc.db.Pool, inserted.ID)
	require.NoError(t, err)

	assert.Equal(t, inserted.ID, loaded.ID)
	assert.Equal(t, models.ValueTypeQuantity, loaded.ValueType)
	require.NotNil(t, loaded.Service)
	assert.Equal(t, tc.url, loaded.Service.URL)
	assert.Equal(t, "sos2", loaded.Service.Connector)
	require.NotNil(t, loaded.Procedure)
	assert.Equal(t, "proc-a", loaded.Procedure.DomainID)
	require.NotNil(t, loaded.Unit, "quantity datasets get a placeholder unit")
}
