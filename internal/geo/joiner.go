package geo

import (
	"github.com/openpolicy-la/crimemap/internal/domain"
)

// Assignment is the geography outcome for a single incident.
type Assignment struct {
	GeoID   string
	GeoName string
	Method  domain.JoinMethod
}

// Joiner assigns each incident to exactly one geography. Incidents with
// coordinates go through containment then nearest-within-tolerance; incidents
// with only a city label go through the normalizer's resolution. Whatever is
// left lands in a sentinel bucket; nothing is ever dropped.
type Joiner struct {
	index        *Index
	toleranceDeg float64
}

// NewJoiner creates a Joiner over the given index. toleranceMeters bounds the
// nearest-boundary fallback for points that miss every polygon; 0 disables it.
func NewJoiner(index *Index, toleranceMeters float64) *Joiner {
	return &Joiner{
		index:        index,
		toleranceDeg: MetersToDegrees(toleranceMeters),
	}
}

// Assign resolves the geography for one incident. city is the normalizer's
// resolution of the incident's raw city label.
func (j *Joiner) Assign(in domain.Incident, city domain.CityResolution) Assignment {
	if in.HasLocation() {
		return j.assignByPoint(in)
	}
	return j.assignByLabel(city)
}

func (j *Joiner) assignByPoint(in domain.Incident) Assignment {
	if b, ok := j.index.Locate(*in.Location); ok {
		return Assignment{GeoID: b.GeoID, GeoName: b.Name, Method: domain.JoinContains}
	}
	// Coordinate noise puts some points just past the shoreline or county
	// line; snap those to the nearest polygon rather than discarding them.
	if b, _, ok := j.index.Nearest(*in.Location, j.toleranceDeg); ok {
		return Assignment{GeoID: b.GeoID, GeoName: b.Name, Method: domain.JoinNearest}
	}
	return Assignment{GeoID: domain.GeoOutsideCounty, GeoName: "Outside County", Method: domain.JoinSentinel}
}

func (j *Joiner) assignByLabel(city domain.CityResolution) Assignment {
	if city.Canonical == "" {
		return Assignment{GeoID: domain.GeoUnknownCity, GeoName: "Unincorporated / Unknown", Method: domain.JoinSentinel}
	}
	if b, ok := j.index.ByName(city.Canonical); ok {
		return Assignment{GeoID: b.GeoID, GeoName: b.Name, Method: domain.JoinLabel}
	}
	// The label resolved to a name the boundary layer doesn't carry (stale
	// alias, annexed community). Reported, never dropped.
	return Assignment{GeoID: domain.GeoUnmatched, GeoName: "Unmatched", Method: domain.JoinSentinel}
}
