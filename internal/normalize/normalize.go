package normalize

import (
	"database/sql"
	"fmt"
	"loggingturtle/internal/components/telemetry"
	"loggingturtle/internal/stage"
	"loggingturtle/internal/table"
	"loggingturtle/lib/textutil"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode"
)

var meridiem = regexp.MustCompile(`(?i)[ap]m\b`)

// ParseTime parses a cell with a Go time layout, AM/PM markers are matched
// regardless of case.
func ParseTime(layout, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	switch {
	case strings.Contains(layout, "PM"):
		value = meridiem.ReplaceAllStringFunc(value, strings.ToUpper)
	case strings.Contains(layout, "pm"):
		value = meridiem.ReplaceAllStringFunc(value, strings.ToLower)
	}
	return time.Parse(layout, value)
}

const (
	report_normalizer_undecomposed = "normalizer.undecomposed-addresses"
	report_normalizer_rows         = "normalizer.rows"
)

// Options describe the source's columns and formats.
type Options struct {
	TimeColumn    string
	IDColumn      string
	AddressColumn string
	// TimeLayout is a Go time layout.
	TimeLayout string
	// BlockDelimiter separates the block number from the street, ex. "100 Block of Main St".
	BlockDelimiter string
	// Locality is appended to the composite address.
	Locality string
}

// DefaultOptions matches the Fairfield police dispatch log.
func DefaultOptions() Options {
	return Options{
		TimeColumn:     "Date Time",
		IDColumn:       "inci #",
		AddressColumn:  "Address",
		TimeLayout:     "1/2/2006 3:04:05 PM",
		BlockDelimiter: " Block of ",
		Locality:       "Fairfield, Ca",
	}
}

// withDefaults fills every empty option with its default.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TimeColumn == "" {
		o.TimeColumn = d.TimeColumn
	}
	if o.IDColumn == "" {
		o.IDColumn = d.IDColumn
	}
	if o.AddressColumn == "" {
		o.AddressColumn = d.AddressColumn
	}
	if o.TimeLayout == "" {
		o.TimeLayout = d.TimeLayout
	}
	if o.BlockDelimiter == "" {
		o.BlockDelimiter = d.BlockDelimiter
	}
	return o
}

// SourceColumns returns the source columns the normalizer relies on.
func (o Options) SourceColumns() []string {
	o = o.withDefaults()
	return []string{o.TimeColumn, o.IDColumn, o.AddressColumn}
}

type Normalizer struct {
	opts Options
	tel  telemetry.API
}

func New(tel telemetry.API, opts Options) Normalizer {
	return Normalizer{
		opts: opts.withDefaults(),
		tel:  telemetry.NewScopedAPI("normalize", tel),
	}
}

// SourceColumns returns the source columns the normalizer relies on.
func (n Normalizer) SourceColumns() []string {
	return n.opts.SourceColumns()
}

// at most this many bad timestamps are quoted in an error
const maxQuotedTimes = 3

// Normalize renames columns, parses times, decomposes addresses and sorts
// the table by time.
//
// A missing time or address column, or any timestamp that does not parse,
// fails with a stage.Normalize error. An address that cannot be decomposed
// only leaves its derived fields null.
func (n Normalizer) Normalize(raw table.Raw) (Table, error) {
	rename := map[string]string{
		textutil.NormalizeName(n.opts.TimeColumn):    ColumnIncidentTime,
		textutil.NormalizeName(n.opts.IDColumn):      ColumnIncidentID,
		textutil.NormalizeName(n.opts.AddressColumn): ColumnAddressRaw,
	}

	columns := make([]string, len(raw.Columns))
	source := map[string]int{}
	for i, c := range raw.Columns {
		canonical, known := rename[textutil.NormalizeName(c)]
		_, taken := source[canonical]
		if !known || taken {
			canonical = c
			if IsCanonical(canonical) {
				canonical += "_source"
			}
		}
		columns[i] = canonical
		source[canonical] = i
	}

	timeIdx, ok := source[ColumnIncidentTime]
	if !ok {
		return Table{}, stage.Errorf(stage.Normalize, "missing time column %q in %v", n.opts.TimeColumn, raw.Columns)
	}
	addressIdx, ok := source[ColumnAddressRaw]
	if !ok {
		return Table{}, stage.Errorf(stage.Normalize, "missing address column %q in %v", n.opts.AddressColumn, raw.Columns)
	}
	idIdx, hasID := source[ColumnIncidentID]
	if !hasID {
		n.tel.ReportWarning("normalizer.id-column", fmt.Sprintf("missing id column %q", n.opts.IDColumn))
	}

	var badTimes []string
	badTimeCount := 0
	undecomposed := 0
	records := make([]Record, raw.Len())
	for i, row := range raw.Rows {
		when, err := ParseTime(n.opts.TimeLayout, row[timeIdx])
		if err != nil {
			badTimeCount++
			if len(badTimes) < maxQuotedTimes {
				badTimes = append(badTimes, fmt.Sprintf("row %d: %q", i, row[timeIdx]))
			}
			continue
		}

		record := Record{
			IncidentTime: when,
			AddressRaw:   row[addressIdx],
		}
		if hasID {
			record.IncidentID = row[idIdx]
		}
		record.Block, record.Street, record.FullAddress = DecomposeAddress(
			record.AddressRaw, n.opts.BlockDelimiter, n.opts.Locality,
		)
		if !record.Block.Valid {
			undecomposed++
		}

		for ci, c := range columns {
			if IsCanonical(c) {
				continue
			}
			if record.Extra == nil {
				record.Extra = map[string]string{}
			}
			record.Extra[c] = row[ci]
		}
		records[i] = record
	}

	if badTimeCount > 0 {
		return Table{}, stage.Errorf(
			stage.Normalize,
			"%d of %d timestamps do not match layout %q: %s",
			badTimeCount, raw.Len(), n.opts.TimeLayout, strings.Join(badTimes, ", "),
		)
	}

	slices.SortStableFunc(records, func(a, b Record) int {
		return a.IncidentTime.Compare(b.IncidentTime)
	})

	n.tel.ReportCount(report_normalizer_rows, int64(len(records)))
	n.tel.ReportCount(report_normalizer_undecomposed, int64(undecomposed))

	return Table{
		Columns: append(columns, ColumnBlock, ColumnStreet, ColumnFullAddress),
		Records: records,
	}, nil
}

// DecomposeAddress splits "100 Block of Main St" into its block ("100") and
// street ("Main St") and builds "100 Main St <locality>". Anything else,
// ex. an intersection, yields three nulls.
func DecomposeAddress(address, delimiter, locality string) (block, street, full sql.NullString) {
	before, after, found := strings.Cut(address, delimiter)
	if !found {
		return
	}
	b := strings.TrimSpace(before)
	s := strings.TrimSpace(after)
	if b == "" || s == "" || strings.IndexFunc(b, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
		return
	}

	full.String = b + " " + s
	if locality != "" {
		full.String += " " + locality
	}
	full.Valid = true
	return sql.NullString{String: b, Valid: true}, sql.NullString{String: s, Valid: true}, full
}
