package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// RawIncidentRow is one row of the yearly incident CSV before any cleaning.
// All fields are kept as strings; parsing and validation happen in
// ParseIncident so that a malformed coordinate degrades to "no location"
// instead of losing the row.
type RawIncidentRow struct {
	IncidentID string
	Date       string
	Category   string
	City       string
	Latitude   string
	Longitude  string
	LineNum    int // 1-based line in the source CSV, for the report
}

// Incident is the cleaned, typed representation of one crime report.
type Incident struct {
	ID          string     `json:"id"`
	RawCategory string     `json:"raw_category"`
	RawCity     string     `json:"raw_city"`
	OccurredAt  time.Time  `json:"occurred_at"`
	Location    *orb.Point `json:"location,omitempty"` // nil when the row had no usable coordinates
	SourceLine  int        `json:"source_line"`
}

// HasLocation reports whether the incident carries usable coordinates.
func (in Incident) HasLocation() bool {
	return in.Location != nil
}

// BoundaryKind distinguishes chartered cities from county-administered land.
type BoundaryKind string

const (
	KindIncorporated   BoundaryKind = "incorporated"
	KindUnincorporated BoundaryKind = "unincorporated"
)

// Boundary is one administrative polygon from the county boundary layer.
type Boundary struct {
	GeoID    string
	Name     string // canonical display name, e.g. "Los Angeles"
	Kind     BoundaryKind
	Geometry orb.MultiPolygon
}

// Sentinel geography ids. These appear in aggregation output alongside real
// boundaries so that no incident is ever dropped from the totals.
const (
	GeoUnknownCity   = "unincorporated-unknown"
	GeoOutsideCounty = "outside-county"
	GeoUnmatched     = "unmatched"
)

// SentinelGeography reports whether id is one of the reserved buckets.
func SentinelGeography(id string) bool {
	switch id {
	case GeoUnknownCity, GeoOutsideCounty, GeoUnmatched:
		return true
	}
	return false
}

// JoinMethod records how an incident was assigned to its geography.
type JoinMethod string

const (
	JoinContains JoinMethod = "contains" // point inside a polygon
	JoinNearest  JoinMethod = "nearest"  // snapped to nearest polygon within tolerance
	JoinLabel    JoinMethod = "label"    // resolved from the normalized city label
	JoinSentinel JoinMethod = "sentinel" // fell through to a sentinel bucket
)

// JoinedRecord is an incident after geography and category resolution.
// Immutable once built; the aggregation stage only reads it.
type JoinedRecord struct {
	Incident Incident   `json:"incident"`
	GeoID    string     `json:"geo_id"`
	GeoName  string     `json:"geo_name"`
	Category Category   `json:"category"`
	Method   JoinMethod `json:"join_method"`
}

// AggregationCell is one rendered unit: a count for a (geography, category,
// time bucket) triple.
type AggregationCell struct {
	GeoID    string    `json:"geo_id"`
	GeoName  string    `json:"geo_name"`
	Category Category  `json:"category"`
	Bucket   time.Time `json:"bucket"`
	Count    int       `json:"count"`
}
