package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpolicy-la/crimemap/internal/aggregate"
	"github.com/openpolicy-la/crimemap/internal/domain"
	"github.com/openpolicy-la/crimemap/internal/pipeline"
)

type readyStub struct{ err error }

func (r readyStub) CheckReadiness(context.Context) error { return r.err }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testData(t *testing.T) *Data {
	t.Helper()

	boundaries := []domain.Boundary{
		{
			GeoID: "geo-la", Name: "Los Angeles", Kind: domain.KindIncorporated,
			Geometry: orb.MultiPolygon{{{
				{-118.5, 33.9}, {-118.3, 33.9}, {-118.3, 34.1}, {-118.5, 34.1}, {-118.5, 33.9},
			}}},
		},
	}

	loc := orb.Point{-118.4, 34.0}
	mar := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	joined := []domain.JoinedRecord{
		{
			Incident: domain.Incident{ID: "inc-1", RawCategory: "BURGLARY", OccurredAt: mar, Location: &loc},
			GeoID:    "geo-la", GeoName: "Los Angeles",
			Category: domain.CategoryProperty, Method: domain.JoinContains,
		},
		{
			Incident: domain.Incident{ID: "inc-2", RawCategory: "ROBBERY", OccurredAt: mar},
			GeoID:    "geo-la", GeoName: "Los Angeles",
			Category: domain.CategoryPerson, Method: domain.JoinLabel,
		},
		{
			Incident: domain.Incident{ID: "inc-3", RawCategory: "NARCOTICS", OccurredAt: mar},
			GeoID:    domain.GeoUnknownCity, GeoName: "Unincorporated / Unknown",
			Category: domain.CategoryDrugAlcohol, Method: domain.JoinSentinel,
		},
	}

	table := aggregate.Build(joined, aggregate.ByMonth)
	result := &pipeline.Result{
		Joined: joined,
		Table:  table,
		Report: pipeline.Report{
			RowsRead:       3,
			IncidentsIn:    3,
			SentinelCounts: map[string]int{domain.GeoUnknownCity: 1},
			JoinMethods: map[domain.JoinMethod]int{
				domain.JoinContains: 1,
				domain.JoinLabel:    1,
				domain.JoinSentinel: 1,
			},
			TotalCells: len(table.Cells),
			CellSum:    table.Total(),
		},
	}

	data, err := NewData(result, boundaries, domain.DefaultCategoryMapping())
	require.NoError(t, err)
	return data
}

func testServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	return NewServer(":0", ready, testData(t), testLogger())
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthAndReadiness(t *testing.T) {
	t.Run("healthz always ok", func(t *testing.T) {
		rec := get(t, testServer(t, readyStub{}), "/healthz")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz ok when the pipeline has run", func(t *testing.T) {
		rec := get(t, testServer(t, readyStub{}), "/readyz")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz unavailable before a run", func(t *testing.T) {
		rec := get(t, testServer(t, readyStub{err: errors.New("no run yet")}), "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decode[map[string]string](t, rec)
		assert.Equal(t, "no run yet", body["error"])
	})
}

func TestSummaryEndpoint(t *testing.T) {
	rec := get(t, testServer(t, readyStub{}), "/api/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	s := decode[Summary](t, rec)
	assert.Equal(t, 3, s.TotalIncidents)
	assert.Equal(t, 1, s.ByCategory[domain.CategoryProperty])
	assert.Equal(t, 1, s.Sentinels[domain.GeoUnknownCity])

	require.NotEmpty(t, s.ByGeography)
	assert.Equal(t, "geo-la", s.ByGeography[0].GeoID)
	assert.Equal(t, 2, s.ByGeography[0].Count)
}

func TestCellsEndpoint(t *testing.T) {
	srv := testServer(t, readyStub{})

	t.Run("unfiltered", func(t *testing.T) {
		rec := get(t, srv, "/api/cells")
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[struct {
			Granularity string                   `json:"granularity"`
			Cells       []domain.AggregationCell `json:"cells"`
		}](t, rec)
		assert.Equal(t, "month", body.Granularity)
		assert.Len(t, body.Cells, 3)
	})

	t.Run("filtered by geography and category", func(t *testing.T) {
		rec := get(t, srv, "/api/cells?geo=geo-la&category=property-related")
		body := decode[struct {
			Cells []domain.AggregationCell `json:"cells"`
		}](t, rec)
		require.Len(t, body.Cells, 1)
		assert.Equal(t, domain.CategoryProperty, body.Cells[0].Category)
	})

	t.Run("filter matching nothing", func(t *testing.T) {
		rec := get(t, srv, "/api/cells?geo=geo-nowhere")
		body := decode[struct {
			Cells []domain.AggregationCell `json:"cells"`
		}](t, rec)
		assert.Empty(t, body.Cells)
	})
}

func TestBoundariesEndpoint(t *testing.T) {
	rec := get(t, testServer(t, readyStub{}), "/api/boundaries")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)

	props := fc.Features[0].Properties
	assert.Equal(t, "geo-la", props["geo_id"])
	assert.Equal(t, "Los Angeles", props["name"])
	assert.EqualValues(t, 2, props["total"])
}

func TestHeatmapEndpoint(t *testing.T) {
	srv := testServer(t, readyStub{})

	t.Run("only located incidents appear", func(t *testing.T) {
		rec := get(t, srv, "/api/heatmap")
		body := decode[struct {
			Points []HeatmapPoint `json:"points"`
		}](t, rec)
		require.Len(t, body.Points, 1)
		assert.Equal(t, "BURGLARY", body.Points[0].RawCategory)
		assert.InDelta(t, 34.0, body.Points[0].Lat, 1e-9)
		assert.InDelta(t, -118.4, body.Points[0].Lon, 1e-9)
	})

	t.Run("category filter", func(t *testing.T) {
		rec := get(t, srv, "/api/heatmap?category=person-related")
		body := decode[struct {
			Points []HeatmapPoint `json:"points"`
		}](t, rec)
		assert.Empty(t, body.Points)
	})

	t.Run("raw label filter is cleaned", func(t *testing.T) {
		rec := get(t, srv, "/api/heatmap?raw=burglary")
		body := decode[struct {
			Points []HeatmapPoint `json:"points"`
		}](t, rec)
		assert.Len(t, body.Points, 1)
	})
}

func TestCategoriesEndpoint(t *testing.T) {
	rec := get(t, testServer(t, readyStub{}), "/api/categories")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Buckets  map[string][]string `json:"buckets"`
		Observed []string            `json:"observed"`
	}](t, rec)
	assert.Contains(t, body.Buckets["property-related"], "BURGLARY")
	assert.Equal(t, []string{"BURGLARY", "NARCOTICS", "ROBBERY"}, body.Observed)
}

func TestReportEndpoint(t *testing.T) {
	rec := get(t, testServer(t, readyStub{}), "/api/report")
	require.Equal(t, http.StatusOK, rec.Code)

	rep := decode[pipeline.Report](t, rec)
	assert.Equal(t, 3, rep.RowsRead)
	assert.Equal(t, 1, rep.SentinelCounts[domain.GeoUnknownCity])
}

func TestIndexPage(t *testing.T) {
	rec := get(t, testServer(t, readyStub{}), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "County Crime Map")
}
