package dispatch

import (
	"errors"
	"fmt"
	"io"
	"loggingturtle/internal/table"
	"loggingturtle/lib/htmlutil"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

var ErrNoTables = errors.New("no tables found")

// bound on colspan so a malformed attribute cannot blow up a row
const maxColspan = 64

// ParseTables reads every <table> in the document in page order.
//
// The header of a table is the first row of its <thead>, or failing that its
// first row if that row is made only of <th> cells. A table without a header
// gets positional column names. Rows of nested tables belong to the nested
// table only.
func ParseTables(r io.Reader) ([]table.Raw, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var tables []table.Raw
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		tables = append(tables, parseTable(sel))
	})
	if len(tables) == 0 {
		return nil, ErrNoTables
	}
	return tables, nil
}

func parseTable(sel *goquery.Selection) table.Raw {
	var header []string
	var rows [][]string

	sel.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if !tr.Closest("table").IsSelection(sel) {
			return
		}
		cells := tr.ChildrenFiltered("th, td")
		if cells.Length() == 0 {
			return
		}

		inHead := tr.Parent().Is("thead")
		onlyTh := cells.Length() == cells.Filter("th").Length()
		if header == nil && len(rows) == 0 && (inHead || onlyTh) {
			header = rowText(cells)
			return
		}
		if inHead {
			// extra header rows are not data
			return
		}
		rows = append(rows, rowText(cells))
	})

	if header == nil {
		width := 0
		for _, row := range rows {
			width = max(width, len(row))
		}
		header = make([]string, width)
		for i := range header {
			header[i] = strconv.Itoa(i)
		}
	}

	return table.NewRaw(header, rows)
}

func rowText(cells *goquery.Selection) []string {
	var out []string
	cells.Each(func(_ int, cell *goquery.Selection) {
		text := htmlutil.CellText(cell.Nodes[0])
		span, err := strconv.Atoi(cell.AttrOr("colspan", "1"))
		if err != nil || span < 1 {
			span = 1
		}
		span = min(span, maxColspan)
		for i := 0; i < span; i++ {
			out = append(out, text)
		}
	})
	return out
}
