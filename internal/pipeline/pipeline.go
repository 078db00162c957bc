// Package pipeline runs a single ingest of an entity: fetch the page, select
// the dispatch table, normalize it, append it to the store and emit artifacts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"loggingturtle/internal/artifact"
	"loggingturtle/internal/components/chrono"
	"loggingturtle/internal/components/telemetry"
	"loggingturtle/internal/normalize"
	"loggingturtle/internal/stage"
	"loggingturtle/internal/table"
	libtelemetry "loggingturtle/lib/telemetry"
	"loggingturtle/services/logstore"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = libtelemetry.Tracer("loggingturtle/internal/pipeline")
	meter  = libtelemetry.Meter("loggingturtle/internal/pipeline")
)

const (
	report_pipeline_run       = "pipeline.run"
	report_pipeline_fetch     = "pipeline.fetch"
	report_pipeline_signature = "pipeline.signature"
	report_pipeline_rows      = "pipeline.rows-appended"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]table.Raw, error)
}

type Normalizer interface {
	Normalize(raw table.Raw) (normalize.Table, error)
	SourceColumns() []string
}

// Store is the part of logstore.Store a run writes through.
type Store interface {
	Commit(ctx context.Context, batch logstore.Batch) (logstore.Counts, error)
	Reconcile(ctx context.Context) (logstore.Report, error)
	Close() error
}

// StoreOpener opens the store of the entity, it is only called once a run
// has a normalized table to persist.
type StoreOpener func(ctx context.Context) (Store, error)

type Emitter interface {
	Emit(t normalize.Table, entity string, day time.Time) (artifact.Paths, error)
}

// Source is the resolved entity a pipeline ingests.
type Source struct {
	Entity string
	URL    string
	// TablePosition is the index of the dispatch table among the page's tables.
	TablePosition int
}

// Retry applies to the fetch stage only.
type Retry struct {
	// Attempts is the total amount of fetches tried, values below 1 mean 1.
	Attempts int
	Delay    time.Duration
}

// Env is everything a run depends on besides its components.
type Env struct {
	Tel    telemetry.API
	Clock  chrono.TimeAPI
	Source Source
	Retry  Retry
}

type RunResult struct {
	RunID  string
	Entity string
	// RowsAppended is the amount of rows newly appended to the normalized log.
	RowsAppended    int
	RawRowsAppended int
	RunTimestamp    time.Time
	// Artifacts is empty when EmitErr is set.
	Artifacts artifact.Paths
	// EmitErr records a failure to write artifacts, it does not fail the run.
	EmitErr   error
	Reconcile logstore.Report
}

type Pipeline struct {
	env        Env
	fetcher    Fetcher
	normalizer Normalizer
	openStore  StoreOpener
	emitter    Emitter

	rowsAppended metric.Int64Counter
	failures     metric.Int64Counter
}

func New(env Env, fetcher Fetcher, normalizer Normalizer, openStore StoreOpener, emitter Emitter) Pipeline {
	env.Tel = telemetry.NewScopedAPI("pipeline", env.Tel)
	if env.Clock == nil {
		env.Clock = chrono.NewStandardTime(nil)
	}

	rowsAppended, err := meter.Int64Counter(
		"loggingturtle.rows_appended",
		metric.WithDescription("rows appended to the normalized log"),
	)
	if err != nil {
		env.Tel.ReportWarning(report_pipeline_run, fmt.Errorf("create rows counter: %w", err))
	}
	failures, err := meter.Int64Counter(
		"loggingturtle.run_failures",
		metric.WithDescription("runs that ended in a failed stage"),
	)
	if err != nil {
		env.Tel.ReportWarning(report_pipeline_run, fmt.Errorf("create failures counter: %w", err))
	}

	return Pipeline{
		env:          env,
		fetcher:      fetcher,
		normalizer:   normalizer,
		openStore:    openStore,
		emitter:      emitter,
		rowsAppended: rowsAppended,
		failures:     failures,
	}
}

type state int

const (
	stateFetch state = iota
	stateSelect
	stateNormalize
	statePersist
	stateEmit
	stateDone
	stateFailed
)

func (s state) stage() stage.Stage {
	switch s {
	case stateFetch:
		return stage.Fetch
	case stateSelect:
		return stage.Select
	case stateNormalize:
		return stage.Normalize
	case statePersist:
		return stage.Persist
	case stateEmit:
		return stage.Emit
	}
	return ""
}

// run carries what each stage hands to the next.
type run struct {
	result     RunResult
	tables     []table.Raw
	raw        table.Raw
	normalized normalize.Table
}

// Run executes the stages in order. A fatal stage failure ends the run with
// a *stage.Error and skips every remaining stage, nothing is persisted when
// the failure happens at or before normalize. An emit failure is recorded in
// RunResult.EmitErr and the run still succeeds.
func (p Pipeline) Run(ctx context.Context) (RunResult, error) {
	now := p.env.Clock.Now()
	r := &run{
		result: RunResult{
			RunID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
			Entity:       p.env.Source.Entity,
			RunTimestamp: now,
		},
	}

	ctx, span := tracer.Start(ctx, "Run", trace.WithAttributes(
		attribute.String("entity", r.result.Entity),
		attribute.String("run_id", r.result.RunID),
	))
	defer span.End()

	current := stateFetch
	var failure error
	for current != stateDone && current != stateFailed {
		next, err := p.step(ctx, r, current)
		if err != nil {
			failure = stage.Wrap(current.stage(), err)
			next = stateFailed
		}
		current = next
	}

	if current == stateFailed {
		failed, _ := stage.Of(failure)
		span.RecordError(failure)
		span.SetStatus(codes.Error, failure.Error())
		if p.failures != nil {
			p.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("entity", r.result.Entity),
				attribute.String("stage", string(failed)),
			))
		}
		p.env.Tel.ReportBroken(report_pipeline_run, failure, r.result.Entity, r.result.RunID)
		return r.result, failure
	}

	span.SetAttributes(attribute.Int("rows_appended", r.result.RowsAppended))
	return r.result, nil
}

func (p Pipeline) step(ctx context.Context, r *run, current state) (state, error) {
	ctx, span := tracer.Start(ctx, string(current.stage()))
	defer span.End()

	var next state
	var err error
	switch current {
	case stateFetch:
		r.tables, err = p.fetch(ctx)
		next = stateSelect
	case stateSelect:
		r.raw, err = table.Select(r.tables, p.env.Source.TablePosition)
		if err == nil {
			p.checkSignature(r.raw)
		}
		next = stateNormalize
	case stateNormalize:
		r.normalized, err = p.normalizer.Normalize(r.raw)
		next = statePersist
	case statePersist:
		err = p.persist(ctx, r)
		next = stateEmit
	case stateEmit:
		p.emit(r)
		if r.result.EmitErr != nil {
			span.RecordError(r.result.EmitErr)
		}
		next = stateDone
	default:
		err = fmt.Errorf("unknown state %d", current)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stateFailed, err
	}
	return next, nil
}

// fetch is the only stage that is retried, every attempt is a single request.
func (p Pipeline) fetch(ctx context.Context) ([]table.Raw, error) {
	attempts := max(p.env.Retry.Attempts, 1)

	var errlist []error
	for attempt := 1; attempt <= attempts; attempt++ {
		tables, err := p.fetcher.Fetch(ctx, p.env.Source.URL)
		if err == nil {
			return tables, nil
		}
		errlist = append(errlist, fmt.Errorf("attempt %d: %w", attempt, err))
		p.env.Tel.ReportWarning(report_pipeline_fetch, err, attempt, attempts)

		if attempt == attempts {
			break
		}
		timer := time.NewTimer(p.env.Retry.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			errlist = append(errlist, ctx.Err())
			return nil, &stage.Error{Stage: stage.Fetch, Cause: errors.Join(errlist...)}
		case <-timer.C:
		}
	}
	return nil, &stage.Error{Stage: stage.Fetch, Cause: errors.Join(errlist...)}
}

func (p Pipeline) checkSignature(raw table.Raw) {
	drift := table.CheckSignature(raw, p.normalizer.SourceColumns())
	for _, missing := range drift.Missing {
		p.env.Tel.ReportWarning(
			report_pipeline_signature,
			fmt.Sprintf(
				"expected column %q is missing, closest is %q (%.2f)",
				missing.Expected, missing.Closest, missing.Similarity,
			),
		)
	}
}

func (p Pipeline) persist(ctx context.Context, r *run) error {
	store, err := p.openStore(ctx)
	if err != nil {
		return stage.Wrap(stage.Persist, err)
	}
	defer store.Close()

	counts, err := store.Commit(ctx, logstore.Batch{
		RunID:      r.result.RunID,
		Entity:     r.result.Entity,
		StartedAt:  r.result.RunTimestamp,
		Normalized: r.normalized,
		Raw:        r.raw,
	})
	if err != nil {
		return stage.Wrap(stage.Persist, err)
	}
	r.result.RowsAppended = counts.Normalized
	r.result.RawRowsAppended = counts.Raw

	p.env.Tel.ReportCount(report_pipeline_rows, int64(counts.Normalized))
	if p.rowsAppended != nil {
		p.rowsAppended.Add(ctx, int64(counts.Normalized), metric.WithAttributes(
			attribute.String("entity", r.result.Entity),
		))
	}

	report, err := store.Reconcile(ctx)
	if err != nil {
		p.env.Tel.ReportWarning(report_pipeline_run, fmt.Errorf("reconcile: %w", err))
		return nil
	}
	r.result.Reconcile = report
	return nil
}

func (p Pipeline) emit(r *run) {
	day := chrono.Yesterday(r.result.RunTimestamp)
	paths, err := p.emitter.Emit(r.normalized, r.result.Entity, day)
	if err != nil {
		r.result.EmitErr = stage.Wrap(stage.Emit, err)
		p.env.Tel.ReportWarning(report_pipeline_run, r.result.EmitErr)
		return
	}
	r.result.Artifacts = paths
}
