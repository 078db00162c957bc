package normalize

import (
	"database/sql"
	"time"
)

// canonical column names
const (
	ColumnIncidentID   = "incident_id"
	ColumnIncidentTime = "incident_time"
	ColumnAddressRaw   = "address_raw"
	ColumnBlock        = "block"
	ColumnStreet       = "street"
	ColumnFullAddress  = "full_address"
)

// TimeFormat is how incident times are written to the store and to artifacts.
const TimeFormat = "2006-01-02 15:04:05"

// Record is one dispatch log entry after normalization.
type Record struct {
	// IncidentID is the source's identifier, it is not assumed to be unique.
	IncidentID string
	// IncidentTime carries the source's local wall clock in the UTC location,
	// the source publishes no offset.
	IncidentTime time.Time
	AddressRaw   string
	// Block, Street and FullAddress are all null when AddressRaw could not be decomposed.
	Block       sql.NullString
	Street      sql.NullString
	FullAddress sql.NullString
	// Extra holds the cells of source columns this package does not know about.
	Extra map[string]string
}

// Value returns the cell of a column, the boolean is false for null cells
// and for unknown columns.
func (r Record) Value(column string) (string, bool) {
	switch column {
	case ColumnIncidentID:
		return r.IncidentID, true
	case ColumnIncidentTime:
		return r.IncidentTime.Format(TimeFormat), true
	case ColumnAddressRaw:
		return r.AddressRaw, true
	case ColumnBlock:
		return r.Block.String, r.Block.Valid
	case ColumnStreet:
		return r.Street.String, r.Street.Valid
	case ColumnFullAddress:
		return r.FullAddress.String, r.FullAddress.Valid
	}
	v, ok := r.Extra[column]
	return v, ok
}

// Table is the normalized form of a raw table, records are sorted by
// IncidentTime with ties kept in source order.
type Table struct {
	// Columns is the output column order: source columns (renamed) in source
	// order followed by the derived address columns.
	Columns []string
	Records []Record
}

func (t Table) Len() int {
	return len(t.Records)
}

// ExtraColumns returns the pass-through source columns in output order.
func (t Table) ExtraColumns() []string {
	var out []string
	for _, c := range t.Columns {
		if !IsCanonical(c) {
			out = append(out, c)
		}
	}
	return out
}

// Strings renders a record as one string per column of the table, null cells are empty.
func (t Table) Strings(i int) []string {
	out := make([]string, len(t.Columns))
	for ci, c := range t.Columns {
		out[ci], _ = t.Records[i].Value(c)
	}
	return out
}

func IsCanonical(column string) bool {
	switch column {
	case ColumnIncidentID, ColumnIncidentTime, ColumnAddressRaw,
		ColumnBlock, ColumnStreet, ColumnFullAddress:
		return true
	}
	return false
}
