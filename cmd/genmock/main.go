// Command genmock generates a synthetic incident extract and boundary layer
// for local development and the test suites. The boundary layer is a small
// grid of square cities; the extract mixes cleanly located incidents with
// the degraded shapes real county data contains (missing coordinates, city
// label typos, blank categories, points outside the county).
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -incidents 5000 -seed 1
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/openpolicy-la/crimemap/internal/domain"
)

var baseDate = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// mockCity is one square boundary in the synthetic county grid.
type mockCity struct {
	name     string
	kind     string
	minLon   float64
	minLat   float64
	sideDeg  float64
	aliases  []string // label variants the extract uses for this city
}

var cities = []mockCity{
	{name: "Los Angeles", kind: "City", minLon: -118.50, minLat: 33.90, sideDeg: 0.20,
		aliases: []string{"Los Angeles", "los angeles", "LOS ANGELES", "Los Angles"}},
	{name: "Long Beach", kind: "City", minLon: -118.25, minLat: 33.70, sideDeg: 0.12,
		aliases: []string{"Long Beach", "long  beach", "LONG BEACH"}},
	{name: "Pasadena", kind: "City", minLon: -118.20, minLat: 34.12, sideDeg: 0.10,
		aliases: []string{"Pasadena", "pasadena", "Pasadna"}},
	{name: "Unincorporated - Athens", kind: "Unincorporated", minLon: -118.32, minLat: 33.91, sideDeg: 0.05,
		aliases: []string{"Athens", "athens"}},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/mock", "output directory")
	count := flag.Int("incidents", 5000, "number of incident rows to generate")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	if err := os.MkdirAll(*out, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := writeBoundaries(filepath.Join(*out, "boundaries.geojson")); err != nil {
		return err
	}
	if err := writeIncidents(filepath.Join(*out, "incidents.csv"), *count, *seed); err != nil {
		return err
	}

	fmt.Printf("wrote %d incidents and %d boundaries to %s\n", *count, len(cities), *out)
	return nil
}

func writeBoundaries(path string) error {
	fc := geojson.NewFeatureCollection()
	for i, c := range cities {
		ring := orb.Ring{
			{c.minLon, c.minLat},
			{c.minLon + c.sideDeg, c.minLat},
			{c.minLon + c.sideDeg, c.minLat + c.sideDeg},
			{c.minLon, c.minLat + c.sideDeg},
			{c.minLon, c.minLat},
		}
		feat := geojson.NewFeature(orb.Polygon{ring})
		feat.Properties = geojson.Properties{
			"OBJECTID":  i + 1,
			"CITY_NAME": c.name,
			"CITY_TYPE": c.kind,
		}
		fc.Append(feat)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode boundaries: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func writeIncidents(path string, count int, seed int64) error {
	rng := rand.New(rand.NewSource(seed))

	labels := allCategoryLabels()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create incidents csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"incident_id", "incident_date", "category", "city", "latitude", "longitude"}); err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		row := makeRow(rng, i, labels)
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// makeRow produces one synthetic extract row. Roughly 70% are cleanly
// located, the rest exercise every degraded shape the pipeline handles.
func makeRow(rng *rand.Rand, i int, labels []string) []string {
	city := cities[rng.Intn(len(cities))]
	label := city.aliases[rng.Intn(len(city.aliases))]
	category := labels[rng.Intn(len(labels))]
	date := baseDate.AddDate(0, 0, rng.Intn(365)).Format("2006-01-02")
	id := fmt.Sprintf("MOCK-%06d", i)

	lat := city.minLat + rng.Float64()*city.sideDeg
	lon := city.minLon + rng.Float64()*city.sideDeg

	switch r := rng.Float64(); {
	case r < 0.70:
		// clean, located inside the city polygon
	case r < 0.80:
		// label-only: no coordinates, city label carries the join
		return []string{id, date, category, label, "", ""}
	case r < 0.85:
		// no coordinates and no city
		return []string{id, date, category, "", "", ""}
	case r < 0.90:
		// located but far outside the county grid
		lat = 45.0 + rng.Float64()
		lon = -100.0 + rng.Float64()
	case r < 0.95:
		// blank category cell
		category = ""
	default:
		// undated
		date = ""
	}

	return []string{
		id, date, category, label,
		strconv.FormatFloat(lat, 'f', 6, 64),
		strconv.FormatFloat(lon, 'f', 6, 64),
	}
}

// allCategoryLabels flattens the embedded taxonomy into one label pool.
func allCategoryLabels() []string {
	mapping := domain.DefaultCategoryMapping()
	var labels []string
	for _, c := range domain.Categories() {
		labels = append(labels, mapping.Labels(c)...)
	}
	return labels
}
