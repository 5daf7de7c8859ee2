// Package geo provides the boundary index used by the spatial join: bbox
// pre-filtered point-in-polygon containment, nearest-boundary lookup within
// a tolerance, and name lookup for label-resolved incidents.
package geo

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/openpolicy-la/crimemap/internal/domain"
)

// metersPerDegree approximates one degree of latitude. Longitude degrees are
// shorter at county latitude, so tolerances converted with this constant are
// slightly generous east-west; at the few-hundred-meter scale the join uses
// that error is well under the coordinate noise being tolerated.
const metersPerDegree = 111320.0

// MetersToDegrees converts a ground distance to the degree units the
// boundary coordinates are in.
func MetersToDegrees(m float64) float64 {
	return m / metersPerDegree
}

type indexed struct {
	boundary domain.Boundary
	bound    orb.Bound
}

// Index answers containment and proximity queries over the boundary layer.
// Boundaries are scanned in canonical-name order, so a point sitting exactly
// on a shared border always resolves to the alphabetically first polygon.
// That is the deterministic tie-break the aggregation depends on.
type Index struct {
	entries []indexed
	byKey   map[string]domain.Boundary // cleaned canonical name -> boundary
}

// NewIndex builds an index over the boundary set.
func NewIndex(boundaries []domain.Boundary) *Index {
	idx := &Index{
		entries: make([]indexed, 0, len(boundaries)),
		byKey:   make(map[string]domain.Boundary, len(boundaries)),
	}
	for _, b := range boundaries {
		idx.entries = append(idx.entries, indexed{boundary: b, bound: b.Geometry.Bound()})
		idx.byKey[domain.CleanLabel(b.Name)] = b
	}
	sort.Slice(idx.entries, func(i, j int) bool {
		a, b := idx.entries[i].boundary, idx.entries[j].boundary
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.GeoID < b.GeoID
	})
	return idx
}

// Len returns the number of indexed boundaries.
func (x *Index) Len() int { return len(x.entries) }

// Boundaries returns the indexed boundaries in canonical-name order.
func (x *Index) Boundaries() []domain.Boundary {
	out := make([]domain.Boundary, len(x.entries))
	for i, e := range x.entries {
		out[i] = e.boundary
	}
	return out
}

// Locate returns the first boundary (in canonical-name order) whose polygon
// contains p.
func (x *Index) Locate(p orb.Point) (domain.Boundary, bool) {
	for _, e := range x.entries {
		if !e.bound.Contains(p) {
			continue
		}
		if planar.MultiPolygonContains(e.boundary.Geometry, p) {
			return e.boundary, true
		}
	}
	return domain.Boundary{}, false
}

// Nearest returns the boundary whose edge is closest to p, provided the
// distance is within maxDegrees. Ties at identical distance resolve to the
// first boundary in canonical-name order.
func (x *Index) Nearest(p orb.Point, maxDegrees float64) (domain.Boundary, float64, bool) {
	if maxDegrees <= 0 {
		return domain.Boundary{}, 0, false
	}

	best := domain.Boundary{}
	bestDist := maxDegrees
	found := false
	for _, e := range x.entries {
		// A polygon whose padded bbox misses p cannot beat the current best.
		if !e.bound.Pad(bestDist).Contains(p) {
			continue
		}
		d := planar.DistanceFrom(e.boundary.Geometry, p)
		if d < bestDist || (!found && d <= bestDist) {
			best = e.boundary
			bestDist = d
			found = true
		}
	}
	return best, bestDist, found
}

// ByName looks up a boundary by canonical name (cleaned comparison).
func (x *Index) ByName(name string) (domain.Boundary, bool) {
	b, ok := x.byKey[domain.CleanLabel(name)]
	return b, ok
}
