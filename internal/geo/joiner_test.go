package geo

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"

	"github.com/openpolicy-la/crimemap/internal/domain"
)

func testJoiner(toleranceMeters float64) *Joiner {
	idx := NewIndex([]domain.Boundary{
		square("geo-la", "Los Angeles", -118.5, 33.9, 0.2),
		square("geo-pa", "Pasadena", -118.2, 34.12, 0.1),
	})
	return NewJoiner(idx, toleranceMeters)
}

func located(lon, lat float64) domain.Incident {
	p := orb.Point{lon, lat}
	return domain.Incident{ID: "inc-test", Location: &p}
}

func TestJoinerAssign(t *testing.T) {
	j := testJoiner(150)

	t.Run("point inside polygon joins by containment", func(t *testing.T) {
		got := j.Assign(located(-118.4, 34.0), domain.CityResolution{})
		assert.Equal(t, "geo-la", got.GeoID)
		assert.Equal(t, "Los Angeles", got.GeoName)
		assert.Equal(t, domain.JoinContains, got.Method)
	})

	t.Run("coordinates win over a conflicting city label", func(t *testing.T) {
		got := j.Assign(located(-118.4, 34.0), domain.CityResolution{Canonical: "Pasadena", Rule: "exact"})
		assert.Equal(t, "geo-la", got.GeoID)
	})

	t.Run("point just outside snaps to nearest within tolerance", func(t *testing.T) {
		// ~55m east of the Los Angeles square's edge.
		got := j.Assign(located(-118.2995, 34.0), domain.CityResolution{})
		assert.Equal(t, "geo-la", got.GeoID)
		assert.Equal(t, domain.JoinNearest, got.Method)
	})

	t.Run("point beyond tolerance is outside county", func(t *testing.T) {
		got := j.Assign(located(-100.0, 45.0), domain.CityResolution{})
		assert.Equal(t, domain.GeoOutsideCounty, got.GeoID)
		assert.Equal(t, "Outside County", got.GeoName)
		assert.Equal(t, domain.JoinSentinel, got.Method)
	})

	t.Run("zero tolerance disables snapping", func(t *testing.T) {
		strict := testJoiner(0)
		got := strict.Assign(located(-118.2995, 34.0), domain.CityResolution{})
		assert.Equal(t, domain.GeoOutsideCounty, got.GeoID)
	})

	t.Run("no location joins by resolved label", func(t *testing.T) {
		got := j.Assign(domain.Incident{ID: "inc-test"}, domain.CityResolution{Canonical: "Pasadena", Rule: "exact"})
		assert.Equal(t, "geo-pa", got.GeoID)
		assert.Equal(t, domain.JoinLabel, got.Method)
	})

	t.Run("no location and no label is unknown city", func(t *testing.T) {
		got := j.Assign(domain.Incident{ID: "inc-test"}, domain.CityResolution{Rule: "unknown"})
		assert.Equal(t, domain.GeoUnknownCity, got.GeoID)
		assert.Equal(t, "Unincorporated / Unknown", got.GeoName)
		assert.Equal(t, domain.JoinSentinel, got.Method)
	})

	t.Run("label missing from boundary layer is unmatched", func(t *testing.T) {
		got := j.Assign(domain.Incident{ID: "inc-test"}, domain.CityResolution{Canonical: "Avalon", Rule: "alias"})
		assert.Equal(t, domain.GeoUnmatched, got.GeoID)
		assert.Equal(t, domain.JoinSentinel, got.Method)
	})
}
