package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "  100 Block of\n\tMain St ", expected: "100 Block of Main St"},
		{input: " inci # ", expected: "inci #"},
		{input: "a\x00b", expected: "ab"},
		{input: "", expected: ""},
	}

	for _, row := range table {
		require.Equal(t, row.expected, Clean(row.input))
	}
}

func TestCellText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<table><tr><td> 01/02/2024<br>3:04:05 PM <span>x</span></td></tr></table>`,
	))
	if err != nil {
		t.Fatal(err)
	}
	node := doc.Find("td").Nodes[0]
	require.Equal(t, "01/02/2024 3:04:05 PM x", CellText(node))
}
