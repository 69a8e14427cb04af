package models

import "time"

// ValueType discriminates the kinds of series a dataset can carry.
// It is part of the dataset's natural key: the same dimension tuple may
// legitimately exist once per value kind.
type ValueType string

const (
	ValueTypeQuantity ValueType = "quantity"
	ValueTypeCount    ValueType = "count"
	ValueTypeText     ValueType = "text"
)

// Valid reports whether v is a known value type.
func (v ValueType) Valid() bool {
	switch v {
	case ValueTypeQuantity, ValueTypeCount, ValueTypeText:
		return true
	}
	return false
}

// Dataset is one harvested time series: a (procedure, offering,
// category, phenomenon, feature, service) tuple typed by value kind.
// The tuple plus ValueType is unique within a service; a re-harvest
// resolves to the same row and merges aggregates instead of
// duplicating it.
type Dataset struct {
	ID        int64     `json:"id"`
	ServiceID int64     `json:"service_id"`
	ValueType ValueType `json:"value_type"`

	// DomainID is a stale external-export identifier carried over from
	// the remote service. It is cleared whenever a re-harvest touches
	// the row.
	DomainID string `json:"domain_id,omitempty"`

	Published bool `json:"published"`
	Deleted   bool `json:"deleted"`

	// First/last observation aggregates. The timestamps only move
	// outward on merge; each companion value follows its timestamp.
	// Values are numeric and only populated for quantity and count
	// series; text series track timestamps alone.
	FirstValueAt *time.Time `json:"first_value_at,omitempty"`
	LastValueAt  *time.Time `json:"last_value_at,omitempty"`
	FirstValue   *float64   `json:"first_value,omitempty"`
	LastValue    *float64   `json:"last_value,omitempty"`

	ProcedureID  int64 `json:"procedure_id"`
	OfferingID   int64 `json:"offering_id"`
	CategoryID   int64 `json:"category_id"`
	PhenomenonID int64 `json:"phenomenon_id"`
	FeatureID    int64 `json:"feature_id"`

	Service    *Service    `json:"service,omitempty"`
	Procedure  *Procedure  `json:"procedure,omitempty"`
	Offering   *Offering   `json:"offering,omitempty"`
	Category   *Category   `json:"category,omitempty"`
	Phenomenon *Phenomenon `json:"phenomenon,omitempty"`
	Feature    *Feature    `json:"feature,omitempty"`
	Unit       *Unit       `json:"unit,omitempty"`
}

// MergeSeriesValues folds the aggregates of a freshly harvested dataset
// into the stored one. FirstValueAt keeps the earlier of the two
// timestamps, LastValueAt the later; the companion value is replaced
// only when its timestamp moved. A unit harvested for a previously
// unitless series is adopted. Returns true if anything changed.
func (d *Dataset) MergeSeriesValues(in *Dataset) bool {
	firstMoved := false
	lastMoved := false

	if in.FirstValueAt != nil && (d.FirstValueAt == nil || d.FirstValueAt.After(*in.FirstValueAt)) {
		d.FirstValueAt = in.FirstValueAt
		firstMoved = true
	}
	if in.LastValueAt != nil && (d.LastValueAt == nil || d.LastValueAt.Before(*in.LastValueAt)) {
		d.LastValueAt = in.LastValueAt
		lastMoved = true
	}

	changed := firstMoved || lastMoved

	switch d.ValueType {
	case ValueTypeQuantity, ValueTypeCount:
		if firstMoved {
			d.FirstValue = in.FirstValue
		}
		if lastMoved {
			d.LastValue = in.LastValue
		}
		if d.Unit == nil && in.Unit != nil {
			d.Unit = in.Unit
			changed = true
		}
	case ValueTypeText:
		// text series carry no numeric aggregates
	}

	return changed
}
