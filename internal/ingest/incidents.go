// Package ingest loads the two raw inputs: the yearly incident CSV and the
// county boundary layer (Esri shapefile or GeoJSON). Loaders only read and
// type the data; all reconciliation happens downstream.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/openpolicy-la/crimemap/internal/domain"
)

// Column names in the incident extract, matched case-insensitively.
const (
	colIncidentID = "incident_id"
	colDate       = "incident_date"
	colCategory   = "category"
	colCity       = "city"
	colLatitude   = "latitude"
	colLongitude  = "longitude"
)

// requiredColumns must be present in the header; their absence is a schema
// error that aborts the run. The id and coordinate columns are optional;
// rows without them degrade to derived ids and label-only joins.
var requiredColumns = []string{colDate, colCategory, colCity}

// ReadIncidentsFile opens and parses the incident CSV at path.
func ReadIncidentsFile(path string) ([]domain.RawIncidentRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open incidents: %w", err)
	}
	defer f.Close()
	return ReadIncidents(f)
}

// ReadIncidents parses incident CSV data from r. The first record is the
// header; column order is free. Returns a *domain.SchemaError when a
// required column is missing.
func ReadIncidents(r io.Reader) ([]domain.RawIncidentRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // ragged rows are tolerated; missing cells read as empty

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read incidents header: %w", err)
	}

	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := colIdx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.SchemaError{Source: "incidents", Missing: missing}
	}

	get := func(row []string, col string) string {
		i, ok := colIdx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var rows []domain.RawIncidentRow
	line := 1 // header consumed
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read incidents line %d: %w", line+1, err)
		}
		line++
		rows = append(rows, domain.RawIncidentRow{
			IncidentID: get(record, colIncidentID),
			Date:       get(record, colDate),
			Category:   get(record, colCategory),
			City:       get(record, colCity),
			Latitude:   get(record, colLatitude),
			Longitude:  get(record, colLongitude),
			LineNum:    line,
		})
	}
	return rows, nil
}
