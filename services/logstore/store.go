// Package logstore is the durable, append-only home of every row an entity
// has ever published: a normalized log, a raw log mirroring the source and a
// ledger of the commits that wrote them.
package logstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"loggingturtle/internal/components/telemetry"
	"loggingturtle/internal/normalize"
	"loggingturtle/internal/stage"
	"loggingturtle/internal/table"
	configlibsql "loggingturtle/lib/configutil/libsql"
	"loggingturtle/services/logstore/db"
	"time"
)

const (
	report_store_commit    = "store.commit"
	report_store_reconcile = "store.reconcile"
)

type Store struct {
	db  *sql.DB
	qry *db.Queries
	tel telemetry.API
}

// Open opens the database described by config and makes sure the schema exists.
func Open(ctx context.Context, config configlibsql.Struct, tel telemetry.API) (Store, error) {
	database, err := config.OpenDB()
	if err != nil {
		return Store{}, stage.Wrap(stage.Persist, fmt.Errorf("open store: %w", err))
	}
	store, err := New(ctx, database, tel)
	if err != nil {
		database.Close()
		return Store{}, err
	}
	return store, nil
}

// New wraps an already opened database, the store takes ownership of it.
func New(ctx context.Context, database *sql.DB, tel telemetry.API) (Store, error) {
	_, err := database.ExecContext(ctx, db.Schema)
	if err != nil {
		return Store{}, stage.Wrap(stage.Persist, fmt.Errorf("apply schema: %w", err))
	}
	return Store{
		db:  database,
		qry: db.New(database),
		tel: telemetry.NewScopedAPI("logstore", tel),
	}, nil
}

func (s Store) Close() error {
	return s.db.Close()
}

// Batch is everything a single run appends.
type Batch struct {
	RunID      string
	Entity     string
	StartedAt  time.Time
	Normalized normalize.Table
	Raw        table.Raw
}

type Counts struct {
	Normalized int
	Raw        int
}

// Commit appends the normalized rows and the raw rows of a batch and records
// the run in the ledger, all in one transaction: after a failure, including a
// crash mid-write, none of the batch is visible.
//
// Rows are never deduplicated, committing the same rows twice stores them twice.
func (s Store) Commit(ctx context.Context, batch Batch) (Counts, error) {
	counts, err := s.commit(ctx, batch)
	if err != nil {
		s.tel.ReportBroken(report_store_commit, err, batch.RunID)
		return Counts{}, stage.Wrap(stage.Persist, err)
	}
	s.tel.ReportCount(report_store_commit, int64(counts.Normalized))
	return counts, nil
}

func (s Store) commit(ctx context.Context, batch Batch) (Counts, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Counts{}, err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	var counts Counts
	counts.Normalized, err = appendNormalized(ctx, txqry, batch.RunID, batch.Normalized)
	if err != nil {
		return Counts{}, fmt.Errorf("append %s: %w", db.NormalizedLog, err)
	}
	counts.Raw, err = appendRaw(ctx, tx, txqry, batch.RunID, batch.Raw)
	if err != nil {
		return Counts{}, fmt.Errorf("append %s: %w", db.RawLog, err)
	}
	err = txqry.CreateRun(ctx, db.CreateRunParams{
		ID:             batch.RunID,
		Entity:         batch.Entity,
		StartedAt:      batch.StartedAt.Format(time.RFC3339),
		NormalizedRows: int64(counts.Normalized),
		RawRows:        int64(counts.Raw),
	})
	if err != nil {
		return Counts{}, fmt.Errorf("record run: %w", err)
	}

	return counts, tx.Commit()
}

// AppendNormalized appends rows to the normalized log only, all or nothing.
func (s Store) AppendNormalized(ctx context.Context, runID, entity string, startedAt time.Time, rows normalize.Table) (int, error) {
	n, err := s.single(ctx, func(tx *sql.Tx, txqry *db.Queries) (db.CreateRunParams, error) {
		n, err := appendNormalized(ctx, txqry, runID, rows)
		return db.CreateRunParams{NormalizedRows: int64(n)}, err
	}, runID, entity, startedAt)
	return int(n.NormalizedRows), err
}

// AppendRaw appends rows to the raw log only, all or nothing.
func (s Store) AppendRaw(ctx context.Context, runID, entity string, startedAt time.Time, raw table.Raw) (int, error) {
	n, err := s.single(ctx, func(tx *sql.Tx, txqry *db.Queries) (db.CreateRunParams, error) {
		n, err := appendRaw(ctx, tx, txqry, runID, raw)
		return db.CreateRunParams{RawRows: int64(n)}, err
	}, runID, entity, startedAt)
	return int(n.RawRows), err
}

func (s Store) single(
	ctx context.Context,
	write func(tx *sql.Tx, txqry *db.Queries) (db.CreateRunParams, error),
	runID, entity string,
	startedAt time.Time,
) (db.CreateRunParams, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return db.CreateRunParams{}, stage.Wrap(stage.Persist, err)
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	run, err := write(tx, txqry)
	if err != nil {
		s.tel.ReportBroken(report_store_commit, err, runID)
		return db.CreateRunParams{}, stage.Wrap(stage.Persist, err)
	}
	run.ID = runID
	run.Entity = entity
	run.StartedAt = startedAt.Format(time.RFC3339)
	err = txqry.CreateRun(ctx, run)
	if err != nil {
		return db.CreateRunParams{}, stage.Wrap(stage.Persist, fmt.Errorf("record run: %w", err))
	}
	err = tx.Commit()
	if err != nil {
		return db.CreateRunParams{}, stage.Wrap(stage.Persist, err)
	}
	return run, nil
}

func appendNormalized(ctx context.Context, txqry *db.Queries, runID string, rows normalize.Table) (int, error) {
	for i, r := range rows.Records {
		extra := []byte("{}")
		if len(r.Extra) > 0 {
			var err error
			extra, err = json.Marshal(r.Extra)
			if err != nil {
				return 0, err
			}
		}
		err := txqry.CreateNormalizedRow(ctx, db.CreateNormalizedRowParams{
			RunID:        runID,
			IncidentID:   r.IncidentID,
			IncidentTime: r.IncidentTime.Format(normalize.TimeFormat),
			AddressRaw:   r.AddressRaw,
			Block:        r.Block,
			Street:       r.Street,
			FullAddress:  r.FullAddress,
			Extra:        string(extra),
		})
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return len(rows.Records), nil
}

// Count returns the amount of rows in a log.
func (s Store) Count(ctx context.Context, log db.Log) (int64, error) {
	switch log {
	case db.NormalizedLog:
		return s.qry.CountNormalizedRows(ctx)
	case db.RawLog:
		return s.qry.CountRawRows(ctx)
	}
	return 0, fmt.Errorf("unknown log %q", log)
}

type Run struct {
	ID             string
	Entity         string
	StartedAt      time.Time
	NormalizedRows int64
	RawRows        int64
}

// Runs returns the most recent commits, newest first.
func (s Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.qry.GetRuns(ctx, int64(limit))
	if err != nil {
		return nil, err
	}
	out := make([]Run, len(rows))
	for i, r := range rows {
		startedAt, err := time.Parse(time.RFC3339, r.StartedAt)
		if err != nil {
			s.tel.ReportWarning("store.runs", fmt.Errorf("parse started_at of %s: %w", r.ID, err))
		}
		out[i] = Run{
			ID:             r.ID,
			Entity:         r.Entity,
			StartedAt:      startedAt,
			NormalizedRows: r.NormalizedRows,
			RawRows:        r.RawRows,
		}
	}
	return out, nil
}

// Report compares the rows actually in each log with what the ledger says
// was committed.
type Report struct {
	NormalizedRows   int64
	RawRows          int64
	LedgerNormalized int64
	LedgerRaw        int64
}

// Consistent is true when both logs hold exactly the rows the ledger recorded.
func (r Report) Consistent() bool {
	return r.NormalizedRows == r.LedgerNormalized && r.RawRows == r.LedgerRaw
}

// Diverged is true when the two logs hold a different amount of rows.
func (r Report) Diverged() bool {
	return r.NormalizedRows != r.RawRows
}

// Reconcile checks the logs against the ledger. Inconsistencies are reported
// as broken, they are never repaired automatically since the logs are append only.
func (s Store) Reconcile(ctx context.Context) (Report, error) {
	var report Report
	var err error
	report.NormalizedRows, err = s.qry.CountNormalizedRows(ctx)
	if err != nil {
		return Report{}, err
	}
	report.RawRows, err = s.qry.CountRawRows(ctx)
	if err != nil {
		return Report{}, err
	}
	totals, err := s.qry.GetRunTotals(ctx)
	if err != nil {
		return Report{}, err
	}
	report.LedgerNormalized = totals.NormalizedRows
	report.LedgerRaw = totals.RawRows

	if !report.Consistent() {
		s.tel.ReportBroken(
			report_store_reconcile,
			fmt.Errorf(
				"ledger mismatch: normalized %d/%d, raw %d/%d (actual/ledger)",
				report.NormalizedRows, report.LedgerNormalized,
				report.RawRows, report.LedgerRaw,
			),
		)
	} else if report.Diverged() {
		s.tel.ReportWarning(
			report_store_reconcile,
			fmt.Sprintf("normalized log has %d rows, raw log has %d", report.NormalizedRows, report.RawRows),
		)
	}
	return report, nil
}
