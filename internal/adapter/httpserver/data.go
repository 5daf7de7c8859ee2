package httpserver

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb/geojson"

	"github.com/openpolicy-la/crimemap/internal/domain"
	"github.com/openpolicy-la/crimemap/internal/pipeline"
)

// Data is the immutable bundle the dashboard serves: one pipeline result,
// the boundary layer it was joined against, and the taxonomy it was
// bucketed with. Built once after the run; handlers only read it.
type Data struct {
	Result     *pipeline.Result
	Boundaries []domain.Boundary
	Mapping    *domain.CategoryMapping

	boundariesGeoJSON []byte
}

// NewData precomputes the choropleth GeoJSON so request handlers never
// touch geometry.
func NewData(result *pipeline.Result, boundaries []domain.Boundary, mapping *domain.CategoryMapping) (*Data, error) {
	d := &Data{Result: result, Boundaries: boundaries, Mapping: mapping}

	encoded, err := d.buildBoundariesGeoJSON()
	if err != nil {
		return nil, fmt.Errorf("encode boundaries geojson: %w", err)
	}
	d.boundariesGeoJSON = encoded
	return d, nil
}

// BoundariesGeoJSON returns the FeatureCollection for the choropleth, one
// feature per boundary with total and per-category counts in properties.
func (d *Data) BoundariesGeoJSON() []byte {
	return d.boundariesGeoJSON
}

func (d *Data) buildBoundariesGeoJSON() ([]byte, error) {
	totals := d.Result.Table.ByGeography()

	perCategory := make(map[string]map[string]int)
	for _, c := range d.Result.Table.Cells {
		byCat, ok := perCategory[c.GeoID]
		if !ok {
			byCat = make(map[string]int)
			perCategory[c.GeoID] = byCat
		}
		byCat[string(c.Category)] += c.Count
	}

	fc := geojson.NewFeatureCollection()
	for _, b := range d.Boundaries {
		feat := geojson.NewFeature(b.Geometry)
		feat.Properties = geojson.Properties{
			"geo_id":     b.GeoID,
			"name":       b.Name,
			"kind":       string(b.Kind),
			"total":      totals[b.GeoID],
			"categories": perCategory[b.GeoID],
		}
		fc.Append(feat)
	}
	return fc.MarshalJSON()
}

// HeatmapPoint is one located incident for the heat layer.
type HeatmapPoint struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Category    string  `json:"category"`
	RawCategory string  `json:"raw_category"`
	GeoName     string  `json:"geo_name"`
}

// HeatmapPoints returns located incidents, optionally filtered by canonical
// bucket and/or raw category label.
func (d *Data) HeatmapPoints(category, raw string) []HeatmapPoint {
	points := make([]HeatmapPoint, 0, len(d.Result.Joined))
	for _, rec := range d.Result.Joined {
		if !rec.Incident.HasLocation() {
			continue
		}
		if category != "" && string(rec.Category) != category {
			continue
		}
		if raw != "" && domain.CleanLabel(rec.Incident.RawCategory) != domain.CleanLabel(raw) {
			continue
		}
		loc := *rec.Incident.Location
		points = append(points, HeatmapPoint{
			Lat:         loc.Lat(),
			Lon:         loc.Lon(),
			Category:    string(rec.Category),
			RawCategory: rec.Incident.RawCategory,
			GeoName:     rec.GeoName,
		})
	}
	return points
}

// Summary is the top-level numbers panel.
type Summary struct {
	TotalIncidents int                     `json:"total_incidents"`
	ByCategory     map[domain.Category]int `json:"by_category"`
	ByGeography    []GeographyCount        `json:"by_geography"`
	Sentinels      map[string]int          `json:"sentinels"`
}

// GeographyCount pairs a geography with its total, sorted descending.
type GeographyCount struct {
	GeoID string `json:"geo_id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary aggregates the run into the dashboard's overview panel.
func (d *Data) Summary() Summary {
	names := make(map[string]string)
	for _, c := range d.Result.Table.Cells {
		names[c.GeoID] = c.GeoName
	}

	byGeo := d.Result.Table.ByGeography()
	geos := make([]GeographyCount, 0, len(byGeo))
	for id, count := range byGeo {
		geos = append(geos, GeographyCount{GeoID: id, Name: names[id], Count: count})
	}
	sort.Slice(geos, func(i, j int) bool {
		if geos[i].Count != geos[j].Count {
			return geos[i].Count > geos[j].Count
		}
		return geos[i].GeoID < geos[j].GeoID
	})

	return Summary{
		TotalIncidents: d.Result.Table.Total(),
		ByCategory:     d.Result.Table.ByCategory(),
		ByGeography:    geos,
		Sentinels:      d.Result.Report.SentinelCounts,
	}
}

// CategoryCatalog lists the canonical buckets with their configured raw
// labels, plus the raw labels actually observed, for the view selectors.
func (d *Data) CategoryCatalog() map[string]any {
	buckets := make(map[string][]string)
	for _, c := range domain.Categories() {
		buckets[string(c)] = d.Mapping.Labels(c)
	}

	observedSet := make(map[string]bool)
	for _, rec := range d.Result.Joined {
		if rec.Incident.RawCategory != "" {
			observedSet[rec.Incident.RawCategory] = true
		}
	}
	observed := make([]string, 0, len(observedSet))
	for label := range observedSet {
		observed = append(observed, label)
	}
	sort.Strings(observed)

	return map[string]any{
		"buckets":  buckets,
		"observed": observed,
	}
}
