package pipeline

import (
	"time"

	"github.com/openpolicy-la/crimemap/internal/aggregate"
	"github.com/openpolicy-la/crimemap/internal/domain"
	"github.com/openpolicy-la/crimemap/internal/observability"
)

// Report is the side-channel reconciliation summary produced with every
// run. It exists for human review: every record that degraded to a sentinel
// bucket or label the normalizer gave up on is surfaced here, so the map's
// totals can always be squared with the raw extract.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`

	RowsRead      int      `json:"rows_read"`
	IncidentsIn   int      `json:"incidents_in"`
	ParseFailures []string `json:"parse_failures,omitempty"`

	MissingCity     int `json:"missing_city"`
	MissingLocation int `json:"missing_location"`
	Unclassified    int `json:"unclassified"`

	JoinMethods        map[domain.JoinMethod]int `json:"join_methods"`
	SentinelCounts     map[string]int            `json:"sentinel_counts"`
	UnmappedCityLabels map[string]int            `json:"unmapped_city_labels"`

	TotalCells int `json:"total_cells"`
	CellSum    int `json:"cell_sum"`
}

func newReport(rowsRead int) Report {
	return Report{
		RowsRead:       rowsRead,
		JoinMethods:    make(map[domain.JoinMethod]int),
		SentinelCounts: make(map[string]int),
	}
}

func (r *Report) observeJoin(rec domain.JoinedRecord, metrics *observability.Metrics) {
	r.JoinMethods[rec.Method]++
	metrics.JoinOutcomes.WithLabelValues(string(rec.Method)).Inc()

	if !rec.Incident.HasLocation() {
		r.MissingLocation++
	}
	if rec.Category == domain.CategoryUnclassified {
		r.Unclassified++
	}
	if domain.SentinelGeography(rec.GeoID) {
		r.SentinelCounts[rec.GeoID]++
		metrics.SentinelRecords.WithLabelValues(rec.GeoID).Inc()
	}
}

func (r *Report) finish(unmappedCities map[string]int, table aggregate.Table) {
	r.GeneratedAt = domain.Timestamp()
	r.UnmappedCityLabels = unmappedCities
	r.TotalCells = len(table.Cells)
	r.CellSum = table.Total()
}
