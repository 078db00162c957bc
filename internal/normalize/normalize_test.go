package normalize

import (
	"database/sql"
	"fmt"
	"loggingturtle/internal/components/telemetry"
	"loggingturtle/internal/stage"
	"loggingturtle/internal/table"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func null() sql.NullString {
	return sql.NullString{}
}

func valid(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func TestDecomposeAddress(t *testing.T) {
	testCases := []struct {
		address string
		block   sql.NullString
		street  sql.NullString
		full    sql.NullString
	}{
		{
			address: "100 Block of Main St",
			block:   valid("100"),
			street:  valid("Main St"),
			full:    valid("100 Main St Fairfield, Ca"),
		},
		{
			address: " 2500 Block of  Waterman Blvd ",
			block:   valid("2500"),
			street:  valid("Waterman Blvd"),
			full:    valid("2500 Waterman Blvd Fairfield, Ca"),
		},
		{address: "N Texas St / E Travis Blvd", block: null(), street: null(), full: null()},
		{address: "Oak Block of Main St", block: null(), street: null(), full: null()},
		{address: "100 Block of ", block: null(), street: null(), full: null()},
		{address: " Block of Main St", block: null(), street: null(), full: null()},
		{address: "", block: null(), street: null(), full: null()},
	}

	for _, test := range testCases {
		block, street, full := DecomposeAddress(test.address, " Block of ", "Fairfield, Ca")
		require.Equal(t, test.block, block, test.address)
		require.Equal(t, test.street, street, test.address)
		require.Equal(t, test.full, full, test.address)
	}
}

func TestDecomposeAddressWithoutLocality(t *testing.T) {
	_, _, full := DecomposeAddress("100 Block of Main St", " Block of ", "")
	require.Equal(t, valid("100 Main St"), full)
}

func dispatchTable() table.Raw {
	return table.NewRaw(
		[]string{"Date Time", "inci #", "Type", "Address"},
		[][]string{
			{"10/18/2026 11:15:02 PM", "26-10432", "DISTURBANCE", "100 Block of Main St"},
			{"10/18/2026 9:01:44 AM", "26-10401", "TRAFFIC STOP", "N Texas St / E Travis Blvd"},
			{"10/18/2026 2:30:00 PM", "26-10417", "ALARM", "2500 Block of Waterman Blvd"},
			{"10/18/2026 9:01:44 AM", "26-10402", "WELFARE CHECK", "700 Block of Texas St"},
		},
	)
}

func TestNormalize(t *testing.T) {
	tel := telemetry.NewRecorder()
	n := New(tel, DefaultOptions())

	out, err := n.Normalize(dispatchTable())
	require.NoError(t, err)

	require.Equal(t, []string{
		ColumnIncidentTime, ColumnIncidentID, "Type", ColumnAddressRaw,
		ColumnBlock, ColumnStreet, ColumnFullAddress,
	}, out.Columns)
	require.Equal(t, []string{"Type"}, out.ExtraColumns())

	at := func(hour, min, sec int) time.Time {
		return time.Date(2026, 10, 18, hour, min, sec, 0, time.UTC)
	}
	expected := []Record{
		{
			IncidentID: "26-10401", IncidentTime: at(9, 1, 44), AddressRaw: "N Texas St / E Travis Blvd",
			Extra: map[string]string{"Type": "TRAFFIC STOP"},
		},
		{
			IncidentID: "26-10402", IncidentTime: at(9, 1, 44), AddressRaw: "700 Block of Texas St",
			Block: valid("700"), Street: valid("Texas St"), FullAddress: valid("700 Texas St Fairfield, Ca"),
			Extra: map[string]string{"Type": "WELFARE CHECK"},
		},
		{
			IncidentID: "26-10417", IncidentTime: at(14, 30, 0), AddressRaw: "2500 Block of Waterman Blvd",
			Block: valid("2500"), Street: valid("Waterman Blvd"), FullAddress: valid("2500 Waterman Blvd Fairfield, Ca"),
			Extra: map[string]string{"Type": "ALARM"},
		},
		{
			IncidentID: "26-10432", IncidentTime: at(23, 15, 2), AddressRaw: "100 Block of Main St",
			Block: valid("100"), Street: valid("Main St"), FullAddress: valid("100 Main St Fairfield, Ca"),
			Extra: map[string]string{"Type": "DISTURBANCE"},
		},
	}
	if diff := cmp.Diff(expected, out.Records); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}

	undecomposed, ok := tel.LastCount(report_normalizer_undecomposed)
	require.True(t, ok)
	require.Equal(t, int64(1), undecomposed)

	require.Equal(t, []string{
		"2026-10-18 09:01:44", "26-10401", "TRAFFIC STOP", "N Texas St / E Travis Blvd", "", "", "",
	}, out.Strings(0))
}

func TestNormalizeSortedForAnyInputOrder(t *testing.T) {
	n := New(telemetry.NewRecorder(), DefaultOptions())
	base := dispatchTable()

	// every rotation of the rows produces a non-decreasing table
	for shift := 0; shift < base.Len(); shift++ {
		rows := append([][]string{}, base.Rows[shift:]...)
		rows = append(rows, base.Rows[:shift]...)

		out, err := n.Normalize(table.NewRaw(base.Columns, rows))
		require.NoError(t, err)
		for i := 1; i < out.Len(); i++ {
			require.False(t, out.Records[i].IncidentTime.Before(out.Records[i-1].IncidentTime), "shift %d", shift)
		}
	}
}

func TestNormalizeStableTies(t *testing.T) {
	n := New(telemetry.NewRecorder(), DefaultOptions())
	var rows [][]string
	for i := 0; i < 20; i++ {
		rows = append(rows, []string{"1/2/2024 3:04:05 PM", fmt.Sprint(i), "1 Block of A St"})
	}
	out, err := n.Normalize(table.NewRaw([]string{"Date Time", "inci #", "Address"}, rows))
	require.NoError(t, err)
	for i, r := range out.Records {
		require.Equal(t, fmt.Sprint(i), r.IncidentID)
	}
}

func TestNormalizeMissingColumns(t *testing.T) {
	n := New(telemetry.NewRecorder(), DefaultOptions())

	_, err := n.Normalize(table.NewRaw(
		[]string{"When", "inci #", "Address"},
		[][]string{{"1/2/2024 3:04:05 PM", "1", "100 Block of Main St"}},
	))
	require.True(t, stage.Is(err, stage.Normalize))
	require.Contains(t, err.Error(), "Date Time")

	_, err = n.Normalize(table.NewRaw(
		[]string{"Date Time", "inci #"},
		[][]string{{"1/2/2024 3:04:05 PM", "1"}},
	))
	require.True(t, stage.Is(err, stage.Normalize))
}

func TestNormalizeMissingIDColumn(t *testing.T) {
	tel := telemetry.NewRecorder()
	n := New(tel, DefaultOptions())

	out, err := n.Normalize(table.NewRaw(
		[]string{"DATE TIME", "Address"},
		[][]string{{"1/2/2024 3:04:05 PM", "100 Block of Main St"}},
	))
	require.NoError(t, err)
	require.Equal(t, "", out.Records[0].IncidentID)
	require.True(t, tel.Has("warning", "normalizer.id-column"))
}

func TestNormalizeBadTimestamp(t *testing.T) {
	n := New(telemetry.NewRecorder(), DefaultOptions())
	raw := dispatchTable()
	raw.Rows[2][0] = "yesterday-ish"

	_, err := n.Normalize(raw)
	require.Error(t, err)
	require.True(t, stage.Is(err, stage.Normalize))
	require.Contains(t, err.Error(), "yesterday-ish")
	require.Contains(t, err.Error(), "1 of 4")
}

func TestParseTimeMeridiemCase(t *testing.T) {
	layout := DefaultOptions().TimeLayout
	expected := time.Date(2026, 10, 18, 23, 15, 2, 0, time.UTC)
	for _, value := range []string{
		"10/18/2026 11:15:02 PM",
		"10/18/2026 11:15:02 pm",
		" 10/18/2026 11:15:02 Pm ",
	} {
		got, err := ParseTime(layout, value)
		require.NoError(t, err, value)
		require.Equal(t, expected, got, value)
	}

	got, err := ParseTime("Jan 2 2006 3:04pm", "Mar 1 2024 9:01AM")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 1, 9, 1, 0, 0, time.UTC), got)

	_, err = ParseTime(layout, "10/18/2026 11:15:02 xm")
	require.Error(t, err)
}

func TestNormalizeLowercaseMeridiem(t *testing.T) {
	n := New(telemetry.NewRecorder(), DefaultOptions())
	raw := dispatchTable()
	raw.Rows[0][0] = strings.ToLower(raw.Rows[0][0])

	_, err := n.Normalize(raw)
	require.NoError(t, err)
}

func TestNormalizeCanonicalNameCollision(t *testing.T) {
	n := New(telemetry.NewRecorder(), DefaultOptions())
	out, err := n.Normalize(table.NewRaw(
		[]string{"Date Time", "Address", "block"},
		[][]string{{"1/2/2024 3:04:05 PM", "100 Block of Main St", "B-7"}},
	))
	require.NoError(t, err)
	require.Equal(t, []string{"block_source"}, out.ExtraColumns())
	require.Equal(t, "B-7", out.Records[0].Extra["block_source"])
	require.Equal(t, valid("100"), out.Records[0].Block)
}

func TestNormalizeEmpty(t *testing.T) {
	n := New(telemetry.NewRecorder(), DefaultOptions())
	out, err := n.Normalize(table.NewRaw([]string{"Date Time", "inci #", "Address"}, nil))
	require.NoError(t, err)
	require.Equal(t, 0, out.Len())
}
