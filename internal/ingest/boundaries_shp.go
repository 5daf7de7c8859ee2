package ingest

import (
	"fmt"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/openpolicy-la/crimemap/internal/domain"
)

// ReadBoundariesShapefile loads the boundary layer from an Esri shapefile.
// Multi-part shapes are split into rings by part offset; ring winding decides
// outer shells vs holes (Esri convention: clockwise shells).
func ReadBoundariesShapefile(path string, fields BoundaryFields) ([]domain.Boundary, error) {
	fields = fields.withDefaults()

	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open boundaries shapefile: %w", err)
	}
	defer r.Close()

	attrIdx := map[string]int{}
	for i, f := range r.Fields() {
		attrIdx[strings.ToUpper(strings.TrimSpace(f.String()))] = i
	}
	lookup := func(idx int, field string) string {
		i, ok := attrIdx[strings.ToUpper(field)]
		if !ok {
			return ""
		}
		return strings.TrimSpace(r.ReadAttribute(idx, i))
	}
	if _, ok := attrIdx[strings.ToUpper(fields.Name)]; !ok {
		return nil, &domain.SchemaError{Source: "boundaries", Missing: []string{fields.Name}}
	}

	var boundaries []domain.Boundary
	for r.Next() {
		idx, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			// Boundary layers sometimes ship stray point annotations; skip them.
			continue
		}

		mp := multiPolygonFromParts(poly)
		if len(mp) == 0 {
			continue
		}

		name := lookup(idx, fields.Name)
		if name == "" {
			return nil, fmt.Errorf("boundaries shape %d: empty %s attribute", idx, fields.Name)
		}

		boundaries = append(boundaries, domain.Boundary{
			GeoID:    boundaryID(lookup(idx, fields.ID), name),
			Name:     name,
			Kind:     boundaryKind(lookup(idx, fields.Type)),
			Geometry: mp,
		})
	}
	if len(boundaries) == 0 {
		return nil, &domain.SchemaError{Source: "boundaries", Missing: []string{"polygon shapes"}}
	}
	return boundaries, nil
}

// multiPolygonFromParts splits a shapefile polygon's flat point slice into
// rings and groups them into shells and holes. Esri winds shells clockwise
// (negative signed area in lon/lat axes) and holes counter-clockwise; each
// hole is attached to the first shell that contains its first vertex.
func multiPolygonFromParts(poly *shp.Polygon) orb.MultiPolygon {
	numParts := len(poly.Parts)
	rings := make([]orb.Ring, 0, numParts)
	for partIdx := 0; partIdx < numParts; partIdx++ {
		start := poly.Parts[partIdx]
		end := int32(len(poly.Points))
		if partIdx+1 < numParts {
			end = poly.Parts[partIdx+1]
		}
		ring := make(orb.Ring, 0, end-start)
		for i := start; i < end; i++ {
			ring = append(ring, orb.Point{poly.Points[i].X, poly.Points[i].Y})
		}
		if len(ring) < 4 { // a closed ring needs at least a triangle
			continue
		}
		rings = append(rings, ring)
	}

	var mp orb.MultiPolygon
	var holes []orb.Ring
	for _, ring := range rings {
		if ring.Orientation() == orb.CW {
			mp = append(mp, orb.Polygon{ring})
		} else {
			holes = append(holes, ring)
		}
	}
	// A layer exported with reversed winding has no CW rings at all; treat
	// every ring as a shell rather than dropping the feature.
	if len(mp) == 0 {
		for _, ring := range rings {
			mp = append(mp, orb.Polygon{ring})
		}
		return mp
	}

	for _, hole := range holes {
		for i := range mp {
			if planar.RingContains(mp[i][0], hole[0]) {
				mp[i] = append(mp[i], hole)
				break
			}
		}
	}
	return mp
}
