// Package constellation holds the in-memory staging graph one harvest
// pass builds before anything touches the store. Entities are addressed
// by domain id; storage ids do not exist at this point.
package constellation

import (
	"fmt"
	"time"

	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
)

// Constellation is the normalized topology of one remote service,
// rebuilt from scratch on every harvest pass and discarded once merged.
// It is an append-only builder: put operations are idempotent within a
// pass and return the in-pass handle (the domain id).
type Constellation struct {
	service *models.Service

	procedures map[string]*models.Procedure
	offerings  map[string]*models.Offering
	categories map[string]*models.Category
	phenomena  map[string]*models.Phenomenon
	features   map[string]*models.Feature

	// featureRelations is the parent/child adjacency of the feature
	// hierarchy, kept as domain-id pairs instead of object references.
	featureRelations [][2]string

	relatedFeatures []*models.RelatedFeature
	datasets        []*Dataset
}

// New creates an empty constellation.
func New() *Constellation {
	return &Constellation{
		procedures: make(map[string]*models.Procedure),
		offerings:  make(map[string]*models.Offering),
		categories: make(map[string]*models.Category),
		phenomena:  make(map[string]*models.Phenomenon),
		features:   make(map[string]*models.Feature),
	}
}

// SetService records the harvested service. It must be called exactly
// once per pass, before datasets are resolved against the store.
func (c *Constellation) SetService(service *models.Service) error {
	if c.service != nil {
		return fmt.Errorf("service already set for this harvest pass")
	}
	c.service = service
	return nil
}

// Service returns the harvested service, or nil before SetService.
func (c *Constellation) Service() *models.Service {
	return c.service
}

// PutProcedure registers a procedure by domain id and returns the id.
// Calling twice with the same domain id keeps the first entry.
func (c *Constellation) PutProcedure(domainID, name string, insitu, mobile bool) string {
	if _, ok := c.procedures[domainID]; !ok {
		c.procedures[domainID] = &models.Procedure{
			DomainID: domainID,
			Name:     nonEmpty(name, domainID),
			InSitu:   insitu,
			Mobile:   mobile,
		}
	}
	return domainID
}

// PutOffering registers an offering by domain id with its time extents.
func (c *Constellation) PutOffering(domainID, name string, phenomenonStart, phenomenonEnd, resultStart, resultEnd *time.Time) string {
	if _, ok := c.offerings[domainID]; !ok {
		c.offerings[domainID] = &models.Offering{
			DomainID:            domainID,
			Name:                nonEmpty(name, domainID),
			PhenomenonTimeStart: phenomenonStart,
			PhenomenonTimeEnd:   phenomenonEnd,
			ResultTimeStart:     resultStart,
			ResultTimeEnd:       resultEnd,
		}
	}
	return domainID
}

// PutCategory registers a category by domain id.
func (c *Constellation) PutCategory(domainID, name string) string {
	if _, ok := c.categories[domainID]; !ok {
		c.categories[domainID] = &models.Category{
			DomainID: domainID,
			Name:     nonEmpty(name, domainID),
		}
	}
	return domainID
}

// PutPhenomenon registers a phenomenon by domain id.
func (c *Constellation) PutPhenomenon(domainID, name string) string {
	if _, ok := c.phenomena[domainID]; !ok {
		c.phenomena[domainID] = &models.Phenomenon{
			DomainID: domainID,
			Name:     nonEmpty(name, domainID),
		}
	}
	return domainID
}

// PutFeature registers a feature of interest by domain id with an
// optional point geometry.
func (c *Constellation) PutFeature(domainID, name string, geometry *models.Geometry) string {
	if _, ok := c.features[domainID]; !ok {
		c.features[domainID] = &models.Feature{
			DomainID: domainID,
			Name:     nonEmpty(name, domainID),
			Geometry: geometry,
		}
	}
	return domainID
}

// AddFeatureRelation records a parent/child link between two features
// by domain id. Both sides must have been put already.
func (c *Constellation) AddFeatureRelation(parentDomainID, childDomainID string) error {
	if _, ok := c.features[parentDomainID]; !ok {
		return fmt.Errorf("unknown parent feature %q", parentDomainID)
	}
	if _, ok := c.features[childDomainID]; !ok {
		return fmt.Errorf("unknown child feature %q", childDomainID)
	}
	c.featureRelations = append(c.featureRelations, [2]string{parentDomainID, childDomainID})
	return nil
}

// AddRelatedFeature appends a related feature for batch insertion.
func (c *Constellation) AddRelatedFeature(rf *models.RelatedFeature) {
	c.relatedFeatures = append(c.relatedFeatures, rf)
}

// Add appends a dataset constellation. The referenced dimension domain
// ids must all have been put; Add fails loudly otherwise so a connector
// bug cannot produce a dangling dataset.
func (c *Constellation) Add(ds *Dataset) error {
	if _, ok := c.procedures[ds.Procedure]; !ok {
		return fmt.Errorf("dataset references unknown procedure %q", ds.Procedure)
	}
	if _, ok := c.offerings[ds.Offering]; !ok {
		return fmt.Errorf("dataset references unknown offering %q", ds.Offering)
	}
	if _, ok := c.categories[ds.Category]; !ok {
		return fmt.Errorf("dataset references unknown category %q", ds.Category)
	}
	if _, ok := c.phenomena[ds.Phenomenon]; !ok {
		return fmt.Errorf("dataset references unknown phenomenon %q", ds.Phenomenon)
	}
	if _, ok := c.features[ds.Feature]; !ok {
		return fmt.Errorf("dataset references unknown feature %q", ds.Feature)
	}
	c.datasets = append(c.datasets, ds)
	return nil
}

// Datasets returns the dataset constellations in insertion order.
func (c *Constellation) Datasets() []*Dataset {
	return c.datasets
}

// RelatedFeatures returns the collected related features.
func (c *Constellation) RelatedFeatures() []*models.RelatedFeature {
	return c.relatedFeatures
}

// FeatureRelations returns the feature adjacency as (parent, child)
// domain-id pairs.
func (c *Constellation) FeatureRelations() [][2]string {
	return c.featureRelations
}

// Procedure returns the staged procedure for a domain id.
func (c *Constellation) Procedure(domainID string) *models.Procedure {
	return c.procedures[domainID]
}

// Offering returns the staged offering for a domain id.
func (c *Constellation) Offering(domainID string) *models.Offering {
	return c.offerings[domainID]
}

// Category returns the staged category for a domain id.
func (c *Constellation) Category(domainID string) *models.Category {
	return c.categories[domainID]
}

// Phenomenon returns the staged phenomenon for a domain id.
func (c *Constellation) Phenomenon(domainID string) *models.Phenomenon {
	return c.phenomena[domainID]
}

// Feature returns the staged feature for a domain id.
func (c *Constellation) Feature(domainID string) *models.Feature {
	return c.features[domainID]
}

func nonEmpty(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
