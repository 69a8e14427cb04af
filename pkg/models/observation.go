package models

import "time"

// Observation is one harvested sample of a series, normalized from a
// connector's protocol response. Geometry is set only for observations
// carrying a per-sample sampling-geometry parameter (moving platforms).
type Observation struct {
	PhenomenonTimeStart time.Time `json:"phenomenon_time_start"`
	PhenomenonTimeEnd   time.Time `json:"phenomenon_time_end"`
	Value               Value     `json:"value"`
	Geometry            *Geometry `json:"geometry,omitempty"`
}

// Value is a tagged union over the supported value kinds. Exactly the
// field matching Kind is meaningful.
type Value struct {
	Kind     ValueType `json:"kind"`
	Quantity float64   `json:"quantity,omitempty"`
	Count    int64     `json:"count,omitempty"`
	Text     string    `json:"text,omitempty"`
}

// QuantityValue builds a quantity-kind value.
func QuantityValue(v float64) Value {
	return Value{Kind: ValueTypeQuantity, Quantity: v}
}

// CountValue builds a count-kind value.
func CountValue(v int64) Value {
	return Value{Kind: ValueTypeCount, Count: v}
}

// TextValue builds a text-kind value.
func TextValue(v string) Value {
	return Value{Kind: ValueTypeText, Text: v}
}

// TimeQuery bounds an observation request. A zero Start or End leaves
// that side of the span open.
type TimeQuery struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether the query carries no bounds at all.
func (q TimeQuery) IsZero() bool {
	return q.Start.IsZero() && q.End.IsZero()
}

// DataValue is the externally visible representation of one observation
// produced by the read path.
type DataValue struct {
	Timestamp time.Time `json:"timestamp"`
	Value     Value     `json:"value"`
	Geometry  *Geometry `json:"geometry,omitempty"`
}
