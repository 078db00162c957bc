package db

import (
	"context"
	"database/sql"
)

const createNormalizedRow = `INSERT INTO normalized_log (
    run_id, incident_id, incident_time, address_raw, block, street, full_address, extra
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

type CreateNormalizedRowParams struct {
	RunID        string
	IncidentID   string
	IncidentTime string
	AddressRaw   string
	Block        sql.NullString
	Street       sql.NullString
	FullAddress  sql.NullString
	Extra        string
}

func (q *Queries) CreateNormalizedRow(ctx context.Context, arg CreateNormalizedRowParams) error {
	_, err := q.db.ExecContext(ctx, createNormalizedRow,
		arg.RunID,
		arg.IncidentID,
		arg.IncidentTime,
		arg.AddressRaw,
		arg.Block,
		arg.Street,
		arg.FullAddress,
		arg.Extra,
	)
	return err
}

const createRun = `INSERT INTO runs (id, entity, started_at, normalized_rows, raw_rows) VALUES (?, ?, ?, ?, ?)`

type CreateRunParams struct {
	ID             string
	Entity         string
	StartedAt      string
	NormalizedRows int64
	RawRows        int64
}

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) error {
	_, err := q.db.ExecContext(ctx, createRun,
		arg.ID,
		arg.Entity,
		arg.StartedAt,
		arg.NormalizedRows,
		arg.RawRows,
	)
	return err
}

const countNormalizedRows = `SELECT count(*) FROM normalized_log`

func (q *Queries) CountNormalizedRows(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countNormalizedRows)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const countRawRows = `SELECT count(*) FROM raw_log`

func (q *Queries) CountRawRows(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countRawRows)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const getRunTotals = `SELECT
    coalesce(sum(normalized_rows), 0) AS normalized_rows,
    coalesce(sum(raw_rows), 0) AS raw_rows
FROM runs`

type GetRunTotalsRow struct {
	NormalizedRows int64
	RawRows        int64
}

func (q *Queries) GetRunTotals(ctx context.Context) (GetRunTotalsRow, error) {
	row := q.db.QueryRowContext(ctx, getRunTotals)
	var i GetRunTotalsRow
	err := row.Scan(&i.NormalizedRows, &i.RawRows)
	return i, err
}

const getRuns = `SELECT id, entity, started_at, normalized_rows, raw_rows FROM runs
ORDER BY started_at DESC, id DESC
LIMIT ?`

type Run struct {
	ID             string
	Entity         string
	StartedAt      string
	NormalizedRows int64
	RawRows        int64
}

func (q *Queries) GetRuns(ctx context.Context, limit int64) ([]Run, error) {
	rows, err := q.db.QueryContext(ctx, getRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Run
	for rows.Next() {
		var i Run
		if err := rows.Scan(
			&i.ID,
			&i.Entity,
			&i.StartedAt,
			&i.NormalizedRows,
			&i.RawRows,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getRawColumns = `SELECT name FROM pragma_table_info('raw_log')`

func (q *Queries) GetRawColumns(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, getRawColumns)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		items = append(items, name)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type RawColumn struct {
	SourceName string
	Occurrence int64
	ColumnName string
}

const getRawColumnMappings = `SELECT source_name, occurrence, column_name FROM raw_columns`

func (q *Queries) GetRawColumnMappings(ctx context.Context) ([]RawColumn, error) {
	rows, err := q.db.QueryContext(ctx, getRawColumnMappings)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RawColumn
	for rows.Next() {
		var i RawColumn
		if err := rows.Scan(&i.SourceName, &i.Occurrence, &i.ColumnName); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createRawColumnMapping = `INSERT INTO raw_columns (source_name, occurrence, column_name) VALUES (?, ?, ?)`

func (q *Queries) CreateRawColumnMapping(ctx context.Context, arg RawColumn) error {
	_, err := q.db.ExecContext(ctx, createRawColumnMapping, arg.SourceName, arg.Occurrence, arg.ColumnName)
	return err
}
