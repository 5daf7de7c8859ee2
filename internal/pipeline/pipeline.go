// Package pipeline orchestrates the batch reconciliation run: parse the raw
// extract, validate the category taxonomy, normalize city labels, spatially
// join incidents to boundaries, and build the aggregation table. Each stage
// reads the previous stage's output; nothing is mutated in place.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openpolicy-la/crimemap/internal/aggregate"
	"github.com/openpolicy-la/crimemap/internal/domain"
	"github.com/openpolicy-la/crimemap/internal/geo"
	"github.com/openpolicy-la/crimemap/internal/observability"
)

// Options configures a pipeline run.
type Options struct {
	Mapping         *domain.CategoryMapping
	ToleranceMeters float64
	EditDistance    int
	Granularity     aggregate.Granularity
	Workers         int // parallel join shards; each worker owns a disjoint slice
}

// Inputs are the two fully materialized tables a run transforms.
type Inputs struct {
	Incidents  []domain.RawIncidentRow
	Boundaries []domain.Boundary
}

// Result is everything a run produces: the joined table, the aggregation
// cells, and the side-channel reconciliation report.
type Result struct {
	Joined []domain.JoinedRecord `json:"-"`
	Table  aggregate.Table       `json:"table"`
	Report Report                `json:"report"`
}

// Pipeline runs the batch transformation. Safe to run repeatedly; each Run
// is independent.
type Pipeline struct {
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// New creates a Pipeline with the given options and observability.
func New(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Granularity == "" {
		opts.Granularity = aggregate.ByMonth
	}
	return &Pipeline{opts: opts, logger: logger, metrics: metrics}
}

// CheckReadiness returns nil once at least one run has completed, so the
// dashboard only reports ready when it has data to serve.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no pipeline run has completed yet")
	}
	return nil
}

// Run executes one batch transformation. Configuration-level problems
// (unmapped categories, empty boundary layer) fail before any output is
// produced; per-record problems degrade to sentinel buckets and show up in
// the report.
func (p *Pipeline) Run(ctx context.Context, in Inputs) (*Result, error) {
	if len(in.Boundaries) == 0 {
		return nil, errors.New("boundary layer is empty")
	}

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	p.metrics.BoundariesLoaded.Set(float64(len(in.Boundaries)))

	report := newReport(len(in.Incidents))

	incidents, err := p.parseStage(ctx, in.Incidents, &report)
	if err != nil {
		return nil, err
	}

	if err := p.validateMapping(incidents); err != nil {
		return nil, err
	}

	normalizer := domain.NewCityNormalizer(in.Boundaries, nil, p.opts.EditDistance)
	resolutions, unmappedCities := p.normalizeStage(incidents, normalizer, &report)

	joined, err := p.joinStage(ctx, incidents, resolutions, in.Boundaries, &report)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	table := aggregate.Build(joined, p.opts.Granularity)
	p.metrics.StageDuration.WithLabelValues("aggregate").Observe(time.Since(start).Seconds())

	report.finish(unmappedCities, table)

	// The invariant everything downstream leans on: no record lost anywhere.
	if got, want := table.Total(), len(joined); got != want {
		return nil, fmt.Errorf("aggregation lost records: %d cells total vs %d joined", got, want)
	}

	p.logger.Info("pipeline run complete",
		"incidents", report.IncidentsIn,
		"joined", len(joined),
		"cells", len(table.Cells),
		"unmapped_city_labels", len(report.UnmappedCityLabels),
	)
	p.ready.Store(true)

	return &Result{Joined: joined, Table: table, Report: report}, nil
}

// parseStage types every raw row. Rows that are entirely empty are counted
// as parse failures; anything with content survives, however degraded.
func (p *Pipeline) parseStage(ctx context.Context, rows []domain.RawIncidentRow, report *Report) ([]domain.Incident, error) {
	start := time.Now()
	defer func() {
		p.metrics.StageDuration.WithLabelValues("parse").Observe(time.Since(start).Seconds())
	}()

	incidents := make([]domain.Incident, 0, len(rows))
	for i, row := range rows {
		if i%4096 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		incident, err := domain.ParseIncident(row)
		if err != nil {
			p.logger.Warn("skipping unparseable incident row", "line", row.LineNum, "error", err)
			report.ParseFailures = append(report.ParseFailures, err.Error())
			continue
		}
		incidents = append(incidents, incident)
	}
	p.metrics.IncidentsIngested.Add(float64(len(incidents)))
	report.IncidentsIn = len(incidents)
	return incidents, nil
}

// validateMapping enforces taxonomy totality over the labels actually in
// the data, before any record is bucketed.
func (p *Pipeline) validateMapping(incidents []domain.Incident) error {
	seen := make(map[string]bool)
	observed := make([]string, 0, 64)
	for _, in := range incidents {
		if in.RawCategory == "" {
			continue
		}
		if !seen[in.RawCategory] {
			seen[in.RawCategory] = true
			observed = append(observed, in.RawCategory)
		}
	}
	return p.opts.Mapping.Validate(observed)
}

// normalizeStage resolves every incident's city label, memoized per raw
// label, and tallies per-occurrence counts of labels that could not be
// mapped. Single-threaded: the join stage gets pure data to shard.
func (p *Pipeline) normalizeStage(incidents []domain.Incident, normalizer *domain.CityNormalizer, report *Report) ([]domain.CityResolution, map[string]int) {
	start := time.Now()
	defer func() {
		p.metrics.StageDuration.WithLabelValues("normalize").Observe(time.Since(start).Seconds())
	}()

	memo := make(map[string]domain.CityResolution)
	unmapped := make(map[string]int)
	resolutions := make([]domain.CityResolution, len(incidents))
	for i, in := range incidents {
		if in.RawCity == "" {
			report.MissingCity++
		}
		res, ok := memo[in.RawCity]
		if !ok {
			res = normalizer.Resolve(in.RawCity)
			memo[in.RawCity] = res
		}
		if res.Rule == "unknown" && in.RawCity != "" {
			unmapped[in.RawCity]++
			p.metrics.UnmappedCityLabel.Inc()
		}
		resolutions[i] = res
	}
	return resolutions, unmapped
}

// joinStage assigns geography and category to every incident. The spatial
// lookups are sharded across workers on disjoint contiguous partitions;
// each worker writes only its own slice of the preallocated result, so the
// merged output is identical to a single-threaded run.
func (p *Pipeline) joinStage(ctx context.Context, incidents []domain.Incident, resolutions []domain.CityResolution, boundaries []domain.Boundary, report *Report) ([]domain.JoinedRecord, error) {
	start := time.Now()
	defer func() {
		p.metrics.StageDuration.WithLabelValues("join").Observe(time.Since(start).Seconds())
	}()

	index := geo.NewIndex(boundaries)
	joiner := geo.NewJoiner(index, p.opts.ToleranceMeters)

	joined := make([]domain.JoinedRecord, len(incidents))
	joinErr := make([]error, p.opts.Workers)

	var wg sync.WaitGroup
	chunk := (len(incidents) + p.opts.Workers - 1) / p.opts.Workers
	for w := 0; w < p.opts.Workers; w++ {
		lo := w * chunk
		if lo >= len(incidents) {
			break
		}
		hi := min(lo+chunk, len(incidents))

		wg.Add(1)
		go func(worker, lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				if ctx.Err() != nil {
					joinErr[worker] = ctx.Err()
					return
				}
				rec, err := p.joinOne(joiner, incidents[i], resolutions[i])
				if err != nil {
					joinErr[worker] = err
					return
				}
				joined[i] = rec
			}
		}(w, lo, hi)
	}
	wg.Wait()

	for _, err := range joinErr {
		if err != nil {
			return nil, err
		}
	}

	for _, rec := range joined {
		report.observeJoin(rec, p.metrics)
	}
	return joined, nil
}

func (p *Pipeline) joinOne(joiner *geo.Joiner, in domain.Incident, res domain.CityResolution) (domain.JoinedRecord, error) {
	category := domain.CategoryUnclassified
	if in.RawCategory != "" {
		var ok bool
		category, ok = p.opts.Mapping.Lookup(in.RawCategory)
		if !ok {
			// Unreachable after validateMapping; kept as a hard failure so a
			// future ordering bug cannot silently mis-bucket records.
			return domain.JoinedRecord{}, fmt.Errorf("incident %s: category %q not in validated mapping", in.ID, in.RawCategory)
		}
	}

	assignment := joiner.Assign(in, res)
	return domain.JoinedRecord{
		Incident: in,
		GeoID:    assignment.GeoID,
		GeoName:  assignment.GeoName,
		Category: category,
		Method:   assignment.Method,
	}, nil
}
