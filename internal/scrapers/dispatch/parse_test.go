package dispatch

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTablesFixture(t *testing.T) {
	f, err := os.Open("testdata/ffpd.html")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	tables, err := ParseTables(f)
	require.NoError(t, err)
	require.Len(t, tables, 2)

	layout := tables[0]
	require.Equal(t, []string{"0", "1", "2"}, layout.Columns)
	require.Equal(t, 1, layout.Len())

	dispatch := tables[1]
	require.Equal(t, []string{"Date Time", "inci #", "Type", "Address"}, dispatch.Columns)
	require.Equal(t, 3, dispatch.Len())

	address, ok := dispatch.Value(2, "Address")
	require.True(t, ok)
	require.Equal(t, "2500 Block of Waterman Blvd", address)

	when, _ := dispatch.Value(0, "Date Time")
	require.Equal(t, "10/18/2026 11:15:02 PM", when)
}

func TestParseTablesHeaderWithoutThead(t *testing.T) {
	tables, err := ParseTables(strings.NewReader(`<table>
		<tr><th>A</th><th>B</th></tr>
		<tr><td colspan="2">wide</td></tr>
		<tr><td>1</td><td>2</td></tr>
	</table>`))
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Equal(t, []string{"A", "B"}, tables[0].Columns)
	require.Equal(t, [][]string{{"wide", "wide"}, {"1", "2"}}, tables[0].Rows)
}

func TestParseTablesNested(t *testing.T) {
	tables, err := ParseTables(strings.NewReader(`<table>
		<tr><th>Outer</th></tr>
		<tr><td><table><tr><th>Inner</th></tr><tr><td>x</td></tr></table></td></tr>
	</table>`))
	require.NoError(t, err)
	require.Len(t, tables, 2)
	require.Equal(t, []string{"Outer"}, tables[0].Columns)
	require.Equal(t, 1, tables[0].Len())
	require.Equal(t, []string{"Inner"}, tables[1].Columns)
	require.Equal(t, [][]string{{"x"}}, tables[1].Rows)
}

func TestParseTablesNone(t *testing.T) {
	_, err := ParseTables(strings.NewReader(`<html><body><p>maintenance</p></body></html>`))
	require.True(t, errors.Is(err, ErrNoTables))
}
