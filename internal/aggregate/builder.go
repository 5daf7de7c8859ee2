// Package aggregate builds the count table the dashboard renders: one cell
// per (geography, canonical category, time bucket), with the invariant that
// cell counts sum to the joined record count, sentinel buckets included.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/openpolicy-la/crimemap/internal/domain"
)

// Granularity selects the time-bucket width for aggregation cells.
type Granularity string

const (
	ByDay   Granularity = "day"
	ByMonth Granularity = "month"
	ByYear  Granularity = "year"
)

// ParseGranularity validates a configured granularity string.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case ByDay, ByMonth, ByYear:
		return Granularity(s), nil
	}
	return "", fmt.Errorf("invalid time bucket granularity %q (want day, month, or year)", s)
}

// Bucket truncates t to the start of its bucket in UTC. The zero time stays
// zero: incidents with unparseable dates share a single "undated" bucket
// rather than vanishing from the totals.
func Bucket(t time.Time, g Granularity) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	t = t.UTC()
	switch g {
	case ByDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case ByYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

// Table is the final aggregation artifact.
type Table struct {
	Granularity Granularity              `json:"granularity"`
	Cells       []domain.AggregationCell `json:"cells"`
}

type cellKey struct {
	geoID    string
	category domain.Category
	bucket   time.Time
}

// Build groups joined records into cells at the given granularity. Output
// order is deterministic: geography id, then category, then bucket.
func Build(records []domain.JoinedRecord, g Granularity) Table {
	counts := make(map[cellKey]int)
	names := make(map[string]string)
	for _, r := range records {
		key := cellKey{
			geoID:    r.GeoID,
			category: r.Category,
			bucket:   Bucket(r.Incident.OccurredAt, g),
		}
		counts[key]++
		names[r.GeoID] = r.GeoName
	}

	cells := make([]domain.AggregationCell, 0, len(counts))
	for key, count := range counts {
		cells = append(cells, domain.AggregationCell{
			GeoID:    key.geoID,
			GeoName:  names[key.geoID],
			Category: key.category,
			Bucket:   key.bucket,
			Count:    count,
		})
	}
	sort.Slice(cells, func(i, j int) bool {
		a, b := cells[i], cells[j]
		if a.GeoID != b.GeoID {
			return a.GeoID < b.GeoID
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.Bucket.Before(b.Bucket)
	})

	return Table{Granularity: g, Cells: cells}
}

// Total sums every cell count. By construction it equals the number of
// records passed to Build.
func (t Table) Total() int {
	total := 0
	for _, c := range t.Cells {
		total += c.Count
	}
	return total
}

// ByGeography returns total counts per geography id.
func (t Table) ByGeography() map[string]int {
	out := make(map[string]int)
	for _, c := range t.Cells {
		out[c.GeoID] += c.Count
	}
	return out
}

// ByCategory returns total counts per canonical category.
func (t Table) ByCategory() map[domain.Category]int {
	out := make(map[domain.Category]int)
	for _, c := range t.Cells {
		out[c.Category] += c.Count
	}
	return out
}
