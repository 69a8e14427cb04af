package constellation

import (
	"time"

	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
)

// Dataset is the staged form of one series: a tuple of dimension domain
// ids typed by value kind. It knows how to produce a concrete dataset
// entity once the dimension rows have been resolved against the store.
type Dataset struct {
	Procedure  string
	Offering   string
	Category   string
	Phenomenon string
	Feature    string
	ValueType  models.ValueType

	// DomainID is the remote service's own identifier for this series,
	// when it exposes one.
	DomainID string

	// Unit is the declared unit of measure, if the capabilities carried
	// one. Quantity datasets without it get an empty placeholder unit
	// that a later uom harvest replaces.
	Unit *models.Unit
}

// NewQuantityDataset stages a quantity series.
func NewQuantityDataset(procedure, offering, category, phenomenon, feature string) *Dataset {
	return &Dataset{
		Procedure:  procedure,
		Offering:   offering,
		Category:   category,
		Phenomenon: phenomenon,
		Feature:    feature,
		ValueType:  models.ValueTypeQuantity,
	}
}

// NewCountDataset stages a count series.
func NewCountDataset(procedure, offering, category, phenomenon, feature string) *Dataset {
	return &Dataset{
		Procedure:  procedure,
		Offering:   offering,
		Category:   category,
		Phenomenon: phenomenon,
		Feature:    feature,
		ValueType:  models.ValueTypeCount,
	}
}

// NewTextDataset stages a text series.
func NewTextDataset(procedure, offering, category, phenomenon, feature string) *Dataset {
	return &Dataset{
		Procedure:  procedure,
		Offering:   offering,
		Category:   category,
		Phenomenon: phenomenon,
		Feature:    feature,
		ValueType:  models.ValueTypeText,
	}
}

// Entity produces the concrete dataset for the resolved dimension rows
// and the owning service. Every (re-)produced entity is published and
// not deleted: reappearing in a harvest un-deletes a series. Per-kind
// defaults follow the value type; quantity series get an empty unit and
// "now" for both value timestamps pending the actual observation
// harvest.
func (d *Dataset) Entity(
	procedure *models.Procedure,
	offering *models.Offering,
	category *models.Category,
	phenomenon *models.Phenomenon,
	feature *models.Feature,
	service *models.Service,
) *models.Dataset {
	entity := &models.Dataset{
		ValueType:    d.ValueType,
		DomainID:     d.DomainID,
		Published:    true,
		Deleted:      false,
		ServiceID:    service.ID,
		ProcedureID:  procedure.ID,
		OfferingID:   offering.ID,
		CategoryID:   category.ID,
		PhenomenonID: phenomenon.ID,
		FeatureID:    feature.ID,
		Service:      service,
		Procedure:    procedure,
		Offering:     offering,
		Category:     category,
		Phenomenon:   phenomenon,
		Feature:      feature,
		Unit:         d.Unit,
	}

	switch d.ValueType {
	case models.ValueTypeQuantity:
		if entity.Unit == nil {
			entity.Unit = &models.Unit{ServiceID: service.ID}
		}
		now := time.Now()
		entity.FirstValueAt = &now
		entity.LastValueAt = &now
	case models.ValueTypeCount, models.ValueTypeText:
		// no kind-specific defaults
	}

	return entity
}
