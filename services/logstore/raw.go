package logstore

import (
	"context"
	"database/sql"
	"fmt"
	"loggingturtle/internal/table"
	"loggingturtle/services/logstore/db"
	"strings"
	"unicode"
)

// columns of raw_log that do not come from the source
var reservedRawColumns = map[string]struct{}{
	"seq":    {},
	"run_id": {},
}

// RawColumnNames maps source column names to the raw_log column names a store
// that has not seen any of them would pick. Names are lowercased with
// anything other than letters, digits and underscores replaced, sqlite
// compares column names case insensitively.
func RawColumnNames(columns []string) []string {
	out := make([]string, len(columns))
	taken := map[string]struct{}{}
	for i, c := range columns {
		out[i] = uniqueRawColumn(rawColumnBase(c), taken)
		taken[out[i]] = struct{}{}
	}
	return out
}

func rawColumnBase(column string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(column)) {
		switch {
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" || unicode.IsDigit([]rune(name)[0]) {
		name = "col_" + name
	}
	if _, reserved := reservedRawColumns[name]; reserved {
		name += "_source"
	}
	return name
}

func uniqueRawColumn(name string, taken map[string]struct{}) string {
	unique := name
	for n := 2; ; n++ {
		if _, ok := taken[unique]; !ok {
			return unique
		}
		unique = fmt.Sprintf("%s_%d", name, n)
	}
}

type sourceColumn struct {
	name       string
	occurrence int64
}

// resolveRawColumns returns the raw_log column of every source column. A
// source column keeps the column it was first stored in wherever it appears
// in later headers, new source columns are recorded in raw_columns as part of
// tx.
func resolveRawColumns(ctx context.Context, txqry *db.Queries, columns []string) ([]string, error) {
	mappings, err := txqry.GetRawColumnMappings(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[sourceColumn]string, len(mappings))
	claimed := make(map[string]struct{}, len(mappings))
	for _, m := range mappings {
		known[sourceColumn{name: m.SourceName, occurrence: m.Occurrence}] = m.ColumnName
		claimed[strings.ToLower(m.ColumnName)] = struct{}{}
	}

	seen := map[string]int64{}
	out := make([]string, len(columns))
	for i, c := range columns {
		source := strings.TrimSpace(c)
		seen[source]++
		key := sourceColumn{name: source, occurrence: seen[source]}
		if name, ok := known[key]; ok {
			out[i] = name
			continue
		}

		name := uniqueRawColumn(rawColumnBase(source), claimed)
		err := txqry.CreateRawColumnMapping(ctx, db.RawColumn{
			SourceName: key.name,
			Occurrence: key.occurrence,
			ColumnName: name,
		})
		if err != nil {
			return nil, fmt.Errorf("map column %q: %w", source, err)
		}
		known[key] = name
		claimed[name] = struct{}{}
		out[i] = name
	}
	return out, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ensureRawColumns adds the columns raw_log is missing, it must run inside the
// transaction that inserts the rows so a rollback also drops the new columns.
func ensureRawColumns(ctx context.Context, tx *sql.Tx, txqry *db.Queries, names []string) error {
	existing, err := txqry.GetRawColumns(ctx)
	if err != nil {
		return err
	}
	present := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		present[strings.ToLower(e)] = struct{}{}
	}
	for _, name := range names {
		if _, ok := present[name]; ok {
			continue
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE raw_log ADD COLUMN %s TEXT", quoteIdent(name)))
		if err != nil {
			return fmt.Errorf("add column %s: %w", name, err)
		}
		present[name] = struct{}{}
	}
	return nil
}

func appendRaw(ctx context.Context, tx *sql.Tx, txqry *db.Queries, runID string, raw table.Raw) (int, error) {
	if raw.Len() == 0 {
		return 0, nil
	}

	names, err := resolveRawColumns(ctx, txqry, raw.Columns)
	if err != nil {
		return 0, err
	}
	err = ensureRawColumns(ctx, tx, txqry, names)
	if err != nil {
		return 0, err
	}

	quoted := make([]string, len(names))
	placeholders := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
		placeholders[i] = "?"
	}
	query := fmt.Sprintf(
		"INSERT INTO raw_log (run_id, %s) VALUES (?, %s)",
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	args := make([]any, len(names)+1)
	args[0] = runID
	for i, row := range raw.Rows {
		for ci, cell := range row {
			args[ci+1] = cell
		}
		_, err = stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return raw.Len(), nil
}
