package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpolicy-la/crimemap/internal/domain"
	"github.com/openpolicy-la/crimemap/internal/observability"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	if opts.Mapping == nil {
		opts.Mapping = domain.DefaultCategoryMapping()
	}
	return New(opts, testLogger(), observability.NewMetricsForTesting())
}

// testBoundaries is a two-city county: Los Angeles and Pasadena squares.
func testBoundaries() []domain.Boundary {
	sq := func(id, name, kind string, minLon, minLat, side float64) domain.Boundary {
		k := domain.KindIncorporated
		if kind == "unincorporated" {
			k = domain.KindUnincorporated
		}
		return domain.Boundary{
			GeoID: id, Name: name, Kind: k,
			Geometry: orb.MultiPolygon{{{
				{minLon, minLat},
				{minLon + side, minLat},
				{minLon + side, minLat + side},
				{minLon, minLat + side},
				{minLon, minLat},
			}}},
		}
	}
	return []domain.Boundary{
		sq("geo-la", "Los Angeles", "city", -118.5, 33.9, 0.2),
		sq("geo-pa", "Pasadena", "city", -118.2, 34.12, 0.1),
	}
}

func row(id, date, category, city, lat, lon string) domain.RawIncidentRow {
	return domain.RawIncidentRow{
		IncidentID: id, Date: date, Category: category, City: city,
		Latitude: lat, Longitude: lon,
	}
}

func TestPipelineRun(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	inputs := Inputs{
		Boundaries: testBoundaries(),
		Incidents: []domain.RawIncidentRow{
			// Located inside Los Angeles; label agrees.
			row("A", "2025-03-14", "BURGLARY", "los angeles", "34.00", "-118.40"),
			// Label-only join through the normalizer.
			row("B", "2025-03-20", "ROBBERY", "Pasadena", "", ""),
			// No city, no coordinates: unknown-city sentinel.
			row("C", "2025-03-01", "NARCOTICS", "", "", ""),
			// Coordinates far outside the county.
			row("D", "2025-04-02", "VANDALISM", "", "45.0", "-100.0"),
			// Blank category cell: unclassified, still counted.
			row("E", "2025-04-10", "", "los angeles", "34.01", "-118.41"),
			// Null-island coordinates degrade to a label join.
			row("F", "2025-04-11", "WARRANTS", "LA", "0", "0"),
		},
	}

	p := testPipeline(t, Options{ToleranceMeters: 150, EditDistance: 2, Workers: 3})
	result, err := p.Run(context.Background(), inputs)
	require.NoError(t, err)

	t.Run("every record is assigned and counted", func(t *testing.T) {
		require.Len(t, result.Joined, 6)
		assert.Equal(t, 6, result.Table.Total())
		assert.Equal(t, result.Table.Total(), result.Report.CellSum)
	})

	t.Run("containment join", func(t *testing.T) {
		rec := result.Joined[0]
		assert.Equal(t, "geo-la", rec.GeoID)
		assert.Equal(t, domain.CategoryProperty, rec.Category)
		assert.Equal(t, domain.JoinContains, rec.Method)
	})

	t.Run("label join", func(t *testing.T) {
		rec := result.Joined[1]
		assert.Equal(t, "geo-pa", rec.GeoID)
		assert.Equal(t, domain.CategoryPerson, rec.Category)
		assert.Equal(t, domain.JoinLabel, rec.Method)
	})

	t.Run("unknown city sentinel", func(t *testing.T) {
		rec := result.Joined[2]
		assert.Equal(t, domain.GeoUnknownCity, rec.GeoID)
		assert.Equal(t, domain.JoinSentinel, rec.Method)
	})

	t.Run("outside county sentinel", func(t *testing.T) {
		rec := result.Joined[3]
		assert.Equal(t, domain.GeoOutsideCounty, rec.GeoID)
	})

	t.Run("blank category degrades to unclassified", func(t *testing.T) {
		rec := result.Joined[4]
		assert.Equal(t, domain.CategoryUnclassified, rec.Category)
		assert.Equal(t, "geo-la", rec.GeoID)
		assert.Equal(t, 1, result.Report.Unclassified)
	})

	t.Run("null island resolves via the alias table", func(t *testing.T) {
		rec := result.Joined[5]
		assert.Equal(t, "geo-la", rec.GeoID)
		assert.Equal(t, domain.JoinLabel, rec.Method)
	})

	t.Run("report accounting", func(t *testing.T) {
		rep := result.Report
		assert.Equal(t, 6, rep.RowsRead)
		assert.Equal(t, 6, rep.IncidentsIn)
		assert.Empty(t, rep.ParseFailures)
		assert.Equal(t, 2, rep.MissingCity)
		assert.Equal(t, 3, rep.MissingLocation)
		assert.Equal(t, 1, rep.SentinelCounts[domain.GeoUnknownCity])
		assert.Equal(t, 1, rep.SentinelCounts[domain.GeoOutsideCounty])
		assert.Equal(t, time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC), rep.GeneratedAt)
	})

	t.Run("readiness flips after the run", func(t *testing.T) {
		assert.NoError(t, p.CheckReadiness(context.Background()))
	})
}

func TestPipelineRunFailures(t *testing.T) {
	t.Run("unmapped category label is fatal before output", func(t *testing.T) {
		p := testPipeline(t, Options{})
		_, err := p.Run(context.Background(), Inputs{
			Boundaries: testBoundaries(),
			Incidents: []domain.RawIncidentRow{
				row("A", "2025-03-14", "BURGLARY", "los angeles", "", ""),
				row("B", "2025-03-14", "UNICORN RUSTLING", "los angeles", "", ""),
			},
		})
		require.Error(t, err)

		var unmapped *domain.UnmappedCategoryError
		require.ErrorAs(t, err, &unmapped)
		assert.Equal(t, []string{"UNICORN RUSTLING"}, unmapped.Labels)
	})

	t.Run("empty boundary layer is fatal", func(t *testing.T) {
		p := testPipeline(t, Options{})
		_, err := p.Run(context.Background(), Inputs{
			Incidents: []domain.RawIncidentRow{row("A", "2025-03-14", "BURGLARY", "los angeles", "", "")},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boundary layer")
	})

	t.Run("cancelled context aborts the run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := testPipeline(t, Options{Workers: 2})
		_, err := p.Run(ctx, Inputs{
			Boundaries: testBoundaries(),
			Incidents: []domain.RawIncidentRow{
				row("A", "2025-03-14", "BURGLARY", "los angeles", "", ""),
			},
		})
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("not ready before any run", func(t *testing.T) {
		p := testPipeline(t, Options{})
		assert.Error(t, p.CheckReadiness(context.Background()))
	})
}

func TestPipelineParseFailures(t *testing.T) {
	p := testPipeline(t, Options{})
	result, err := p.Run(context.Background(), Inputs{
		Boundaries: testBoundaries(),
		Incidents: []domain.RawIncidentRow{
			row("A", "2025-03-14", "BURGLARY", "los angeles", "", ""),
			{LineNum: 3}, // entirely empty row
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Report.RowsRead)
	assert.Equal(t, 1, result.Report.IncidentsIn)
	require.Len(t, result.Report.ParseFailures, 1)
	assert.Contains(t, result.Report.ParseFailures[0], "line 3")
	assert.Equal(t, 1, result.Table.Total())
}

func TestPipelineUnmappedCityAccounting(t *testing.T) {
	p := testPipeline(t, Options{EditDistance: 2})
	result, err := p.Run(context.Background(), Inputs{
		Boundaries: testBoundaries(),
		Incidents: []domain.RawIncidentRow{
			row("A", "2025-03-14", "BURGLARY", "Narnia", "", ""),
			row("B", "2025-03-15", "BURGLARY", "Narnia", "", ""),
			row("C", "2025-03-16", "BURGLARY", "los angeles", "", ""),
		},
	})
	require.NoError(t, err)

	// Memoized resolution must still count every occurrence.
	assert.Equal(t, map[string]int{"Narnia": 2}, result.Report.UnmappedCityLabels)
	assert.Equal(t, 2, result.Report.SentinelCounts[domain.GeoUnknownCity])
}

func TestPipelineDeterminism(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	inputs := Inputs{
		Boundaries: testBoundaries(),
		Incidents: []domain.RawIncidentRow{
			row("A", "2025-03-14", "BURGLARY", "los angeles", "34.00", "-118.40"),
			row("B", "2025-03-20", "ROBBERY", "Pasadena", "", ""),
			row("C", "2025-03-01", "NARCOTICS", "", "", ""),
			row("D", "2025-04-02", "VANDALISM", "", "45.0", "-100.0"),
			row("E", "2025-04-10", "ARSON", "Pasadna", "", ""),
		},
	}

	run := func(workers int) *Result {
		p := testPipeline(t, Options{ToleranceMeters: 150, EditDistance: 2, Workers: workers})
		res, err := p.Run(context.Background(), inputs)
		require.NoError(t, err)
		return res
	}

	single := run(1)
	for _, workers := range []int{2, 4, 7} {
		sharded := run(workers)
		if diff := cmp.Diff(single.Table, sharded.Table); diff != "" {
			t.Fatalf("table differs with %d workers (-single +sharded):\n%s", workers, diff)
		}
		assert.Equal(t, single.Joined, sharded.Joined, "workers=%d", workers)
	}
}
