// Command validate performs end-to-end data integrity checks on a crime
// extract and boundary layer: it runs the full reconciliation pipeline and
// verifies count invariants, category mapping totality, sentinel accounting,
// and run-to-run determinism.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -incidents data/incidents.csv \
//	  -boundaries data/city_boundaries.geojson
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"github.com/openpolicy-la/crimemap/internal/domain"
	"github.com/openpolicy-la/crimemap/internal/ingest"
	"github.com/openpolicy-la/crimemap/internal/observability"
	"github.com/openpolicy-la/crimemap/internal/pipeline"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	incidents := flag.String("incidents", "", "path to incident CSV extract")
	boundaries := flag.String("boundaries", "", "path to boundary layer (GeoJSON or shapefile)")
	mapping := flag.String("mapping", "", "optional category mapping YAML (default: embedded taxonomy)")
	flag.Parse()

	if *incidents == "" || *boundaries == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*incidents, *boundaries, *mapping); code != 0 {
		os.Exit(code)
	}
}

func run(incidentsPath, boundariesPath, mappingPath string) int {
	// Fix the clock so the two runs produce byte-identical reports.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	fmt.Println("=== Crime Data Integrity Validation ===")
	fmt.Println()

	catMapping, err := domain.LoadCategoryMapping(mappingPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load category mapping: %v\n", err)
		return 1
	}

	bounds, err := ingest.ReadBoundariesFile(boundariesPath, ingest.BoundaryFields{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load boundaries: %v\n", err)
		return 1
	}

	rows, err := ingest.ReadIncidentsFile(incidentsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load incidents: %v\n", err)
		return 1
	}

	fmt.Printf("loaded %d incident rows, %d boundaries\n", len(rows), len(bounds))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := pipeline.Options{Mapping: catMapping, ToleranceMeters: 150, EditDistance: 2, Workers: 4}

	first, err := pipeline.New(opts, logger, observability.NewMetricsForTesting()).
		Run(context.Background(), pipeline.Inputs{Incidents: rows, Boundaries: bounds})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: pipeline run: %v\n", err)
		return 1
	}

	second, err := pipeline.New(opts, logger, observability.NewMetricsForTesting()).
		Run(context.Background(), pipeline.Inputs{Incidents: rows, Boundaries: bounds})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: second pipeline run: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateInputs(rows, bounds),
		validateMappingTotality(rows, catMapping),
		validateReconciliation(first),
		validateDeterminism(first, second),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = "FAIL"
			allPassed = false
		}
		fmt.Printf("[%s] %s\n", status, p.name)
		for _, e := range p.errors {
			fmt.Printf("       - %s\n", e)
		}
	}

	fmt.Println()
	if !allPassed {
		fmt.Println("validation FAILED")
		return 1
	}
	fmt.Println("validation passed")
	return 0
}

// validateInputs checks the raw inputs are usable before blaming the
// pipeline for anything downstream.
func validateInputs(rows []domain.RawIncidentRow, bounds []domain.Boundary) *phase {
	p := &phase{name: "input integrity"}

	if len(rows) == 0 {
		p.errorf("incident extract has no data rows")
	}
	if len(bounds) == 0 {
		p.errorf("boundary layer is empty")
	}

	seen := make(map[string]string)
	for _, b := range bounds {
		if b.Name == "" {
			p.errorf("boundary %s has no name", b.GeoID)
		}
		key := domain.CleanLabel(b.Name)
		if other, dup := seen[key]; dup {
			p.errorf("boundaries %s and %s share canonical name %q", other, b.GeoID, key)
		}
		seen[key] = b.GeoID
	}
	return p
}

// validateMappingTotality checks every non-empty raw category in the
// extract resolves to a canonical bucket.
func validateMappingTotality(rows []domain.RawIncidentRow, mapping *domain.CategoryMapping) *phase {
	p := &phase{name: "category mapping totality"}

	labels := make(map[string]bool)
	for _, r := range rows {
		if r.Category != "" {
			labels[r.Category] = true
		}
	}
	observed := make([]string, 0, len(labels))
	for l := range labels {
		observed = append(observed, l)
	}

	if err := mapping.Validate(observed); err != nil {
		p.errorf("%v", err)
	}
	return p
}

// validateReconciliation checks the no-record-lost invariants on one run.
func validateReconciliation(res *pipeline.Result) *phase {
	p := &phase{name: "count reconciliation"}

	rep := res.Report
	if got, want := res.Table.Total(), len(res.Joined); got != want {
		p.errorf("cell sum %d != joined records %d", got, want)
	}
	if got, want := rep.IncidentsIn+len(rep.ParseFailures), rep.RowsRead; got != want {
		p.errorf("incidents %d + parse failures %d != rows read %d", rep.IncidentsIn, len(rep.ParseFailures), want)
	}
	if got, want := rep.CellSum, res.Table.Total(); got != want {
		p.errorf("report cell sum %d != table total %d", got, want)
	}

	var methodSum int
	for _, n := range rep.JoinMethods {
		methodSum += n
	}
	if methodSum != len(res.Joined) {
		p.errorf("join method counts sum to %d, want %d", methodSum, len(res.Joined))
	}

	for _, rec := range res.Joined {
		if domain.SentinelGeography(rec.GeoID) && rec.Method != domain.JoinSentinel {
			p.errorf("record %s in sentinel %s has method %s", rec.Incident.ID, rec.GeoID, rec.Method)
		}
	}
	return p
}

// validateDeterminism compares two independent runs over the same inputs.
func validateDeterminism(first, second *pipeline.Result) *phase {
	p := &phase{name: "run-to-run determinism"}

	if diff := cmp.Diff(first.Table, second.Table); diff != "" {
		p.errorf("aggregation tables differ (-first +second):\n%s", diff)
	}
	for i := range first.Joined {
		a, b := first.Joined[i], second.Joined[i]
		if a.GeoID != b.GeoID || a.Category != b.Category || a.Method != b.Method {
			p.errorf("record %d assigned differently: %s/%s/%s vs %s/%s/%s",
				i, a.GeoID, a.Category, a.Method, b.GeoID, b.Category, b.Method)
			break
		}
	}
	return p
}
