// Package connectors normalizes heterogeneous sensor observation
// service dialects into one capability surface. Each dialect registers
// itself under a stable name; the name is persisted on the service row
// so the read path can route back to the connector that harvested it.
package connectors

import (
	"context"

	"github.com/sensorbridge/sensorbridge-engine/pkg/config"
	"github.com/sensorbridge/sensorbridge-engine/pkg/connectors/constellation"
	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
	"github.com/sensorbridge/sensorbridge-engine/pkg/sos"
)

// Connector is one protocol dialect.
//
// CanHandle is a pure predicate: it must not mutate shared state and is
// called for every registered connector against every configured
// endpoint during selection.
//
// GetConstellation builds the full normalized graph for one service in
// one pass and must stamp the service with the connector's own name.
// On error no partial constellation is returned.
//
// The observation operations serve the read path for an already
// persisted dataset. Variants that cannot support an operation
// economically return apperrors.ErrUnsupported rather than guessing.
type Connector interface {
	Name() string

	CanHandle(src config.Source, caps *sos.Capabilities) bool
	GetConstellation(ctx context.Context, src config.Source, caps *sos.Capabilities) (*constellation.Constellation, error)

	GetObservations(ctx context.Context, dataset *models.Dataset, query models.TimeQuery) ([]models.Observation, error)
	GetFirstObservation(ctx context.Context, dataset *models.Dataset) (*models.Observation, error)
	GetLastObservation(ctx context.Context, dataset *models.Dataset) (*models.Observation, error)

	// GetUom derives the unit of measure, typically with a minimal
	// single-point observation request when capabilities do not expose
	// units directly. Returns (nil, nil) when indeterminate.
	GetUom(ctx context.Context, dataset *models.Dataset) (*models.Unit, error)
}
