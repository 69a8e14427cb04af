package models

import "time"

// Dimension entities referenced by datasets. Each is identified by a
// domain id (assigned by the remote service, stable across harvest
// passes) scoped to the owning service; the numeric ID is storage-only.

// Procedure describes the sensor process that produced a series.
type Procedure struct {
	ID        int64  `json:"id"`
	ServiceID int64  `json:"service_id"`
	DomainID  string `json:"domain_id"`
	Name      string `json:"name"`
	InSitu    bool   `json:"insitu"`
	Mobile    bool   `json:"mobile"`
}

// Offering groups observations the remote service exposes together.
// Its time extents are aggregates over the member series and only ever
// widen: a re-harvest may see a subset of history, so a narrower span
// must not shrink what is already recorded.
type Offering struct {
	ID                  int64      `json:"id"`
	ServiceID           int64      `json:"service_id"`
	DomainID            string     `json:"domain_id"`
	Name                string     `json:"name"`
	PhenomenonTimeStart *time.Time `json:"phenomenon_time_start,omitempty"`
	PhenomenonTimeEnd   *time.Time `json:"phenomenon_time_end,omitempty"`
	ResultTimeStart     *time.Time `json:"result_time_start,omitempty"`
	ResultTimeEnd       *time.Time `json:"result_time_end,omitempty"`
}

// WidenExtents merges the time extents of a freshly harvested offering
// into the stored one: min of starts, max of ends, never narrowing.
// Returns true if any field changed.
func (o *Offering) WidenExtents(in *Offering) bool {
	changed := false
	if earlier(in.PhenomenonTimeStart, o.PhenomenonTimeStart) {
		o.PhenomenonTimeStart = in.PhenomenonTimeStart
		changed = true
	}
	if later(in.PhenomenonTimeEnd, o.PhenomenonTimeEnd) {
		o.PhenomenonTimeEnd = in.PhenomenonTimeEnd
		changed = true
	}
	if earlier(in.ResultTimeStart, o.ResultTimeStart) {
		o.ResultTimeStart = in.ResultTimeStart
		changed = true
	}
	if later(in.ResultTimeEnd, o.ResultTimeEnd) {
		o.ResultTimeEnd = in.ResultTimeEnd
		changed = true
	}
	return changed
}

// earlier reports whether candidate should replace current as a range
// start: candidate is set and current is unset or after candidate.
func earlier(candidate, current *time.Time) bool {
	if candidate == nil {
		return false
	}
	return current == nil || current.After(*candidate)
}

// later reports whether candidate should replace current as a range end.
func later(candidate, current *time.Time) bool {
	if candidate == nil {
		return false
	}
	return current == nil || current.Before(*candidate)
}

// Category is the thematic classification of a series. Remote services
// that expose no category vocabulary reuse the phenomenon for it.
type Category struct {
	ID        int64  `json:"id"`
	ServiceID int64  `json:"service_id"`
	DomainID  string `json:"domain_id"`
	Name      string `json:"name"`
}

// Phenomenon is the observed property of a series.
type Phenomenon struct {
	ID        int64  `json:"id"`
	ServiceID int64  `json:"service_id"`
	DomainID  string `json:"domain_id"`
	Name      string `json:"name"`
}

// Feature is the feature of interest a series samples, usually a
// station. Features may form a hierarchy; the parent/child links are
// stored as an adjacency relation, not as object references.
type Feature struct {
	ID          int64     `json:"id"`
	ServiceID   int64     `json:"service_id"`
	DomainID    string    `json:"domain_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Geometry    *Geometry `json:"geometry,omitempty"`
}

// Geometry is a point location. Altitude is zero for 2D geometries.
type Geometry struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude,omitempty"`
}

// Unit is a unit of measure. Units belong to exactly one service and
// are created lazily when a dataset declares one.
type Unit struct {
	ID          int64  `json:"id"`
	ServiceID   int64  `json:"service_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RelatedFeature links an offering-level feature of the remote service
// to the roles it plays there.
type RelatedFeature struct {
	ID        int64                `json:"id"`
	ServiceID int64                `json:"service_id"`
	DomainID  string               `json:"domain_id"`
	Name      string               `json:"name"`
	Roles     []*RelatedFeatureRole `json:"roles,omitempty"`
	Offerings []*Offering           `json:"offerings,omitempty"`
}

// RelatedFeatureRole is a role label shared across related features.
type RelatedFeatureRole struct {
	ID   int64  `json:"id"`
	Role string `json:"role"`
}
