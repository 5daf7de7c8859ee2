package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/openpolicy-la/crimemap/internal/domain"
)

// BoundaryFields names the attribute columns carrying each polygon's
// identity in the source layer. Zero values fall back to the LA County
// legal-boundaries layer conventions.
type BoundaryFields struct {
	ID   string // attribute with a stable id; optional, name slug when absent
	Name string // canonical city / area name
	Type string // feature type; values containing "unincorporated" mark county land
}

func (f BoundaryFields) withDefaults() BoundaryFields {
	if f.Name == "" {
		f.Name = "CITY_NAME"
	}
	if f.Type == "" {
		f.Type = "CITY_TYPE"
	}
	if f.ID == "" {
		f.ID = "OBJECTID"
	}
	return f
}

// ReadBoundariesFile loads the boundary layer at path, dispatching on the
// file extension: .shp for Esri shapefiles, anything else parsed as GeoJSON.
func ReadBoundariesFile(path string, fields BoundaryFields) ([]domain.Boundary, error) {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		return ReadBoundariesShapefile(path, fields)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boundaries: %w", err)
	}
	return ParseBoundariesGeoJSON(data, fields)
}

// ParseBoundariesGeoJSON converts a GeoJSON FeatureCollection into boundary
// records. Features without polygon geometry or a name are a schema error:
// a half-usable boundary layer would silently shrink the map.
func ParseBoundariesGeoJSON(data []byte, fields BoundaryFields) ([]domain.Boundary, error) {
	fields = fields.withDefaults()

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse boundaries geojson: %w", err)
	}
	if len(fc.Features) == 0 {
		return nil, &domain.SchemaError{Source: "boundaries", Missing: []string{"features"}}
	}

	var boundaries []domain.Boundary
	for i, feat := range fc.Features {
		var mp orb.MultiPolygon
		switch g := feat.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		default:
			return nil, fmt.Errorf("boundaries feature %d: unsupported geometry %T", i, feat.Geometry)
		}

		name := propString(feat.Properties, fields.Name)
		if name == "" {
			return nil, &domain.SchemaError{Source: "boundaries", Missing: []string{fields.Name}}
		}

		boundaries = append(boundaries, domain.Boundary{
			GeoID:    boundaryID(propString(feat.Properties, fields.ID), name),
			Name:     name,
			Kind:     boundaryKind(propString(feat.Properties, fields.Type)),
			Geometry: mp,
		})
	}
	return boundaries, nil
}

func propString(props geojson.Properties, key string) string {
	if props == nil {
		return ""
	}
	switch v := props[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%.0f", v))
	case int:
		return fmt.Sprintf("%d", v)
	}
	return ""
}

// boundaryID prefers the layer's stable id, falling back to a slug of the
// canonical name so ids stay stable across exports of the same layer.
func boundaryID(rawID, name string) string {
	if rawID != "" {
		return "geo-" + rawID
	}
	return strings.ReplaceAll(domain.CleanLabel(name), " ", "-")
}

func boundaryKind(featureType string) domain.BoundaryKind {
	if strings.Contains(strings.ToLower(featureType), "unincorporated") {
		return domain.KindUnincorporated
	}
	return domain.KindIncorporated
}
