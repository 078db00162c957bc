package testutil

import (
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// DispatchHeader is the header of the Fairfield police dispatch log.
var DispatchHeader = []string{"Date Time", "inci #", "Type", "Address"}

// DispatchPage renders a page laid out like a city website: a navigation
// table followed by the dispatch log table.
func DispatchPage(header []string, rows [][]string) string {
	var out strings.Builder
	out.WriteString("<!DOCTYPE html>\n<html><body>\n")
	out.WriteString("<table class=\"layout\"><tr><td>Home</td><td>Services</td></tr></table>\n")
	out.WriteString("<table class=\"dispatch\">\n<thead><tr>")
	for _, h := range header {
		out.WriteString("<th>" + html.EscapeString(h) + "</th>")
	}
	out.WriteString("</tr></thead>\n<tbody>\n")
	for _, row := range rows {
		out.WriteString("<tr>")
		for _, cell := range row {
			out.WriteString("<td>" + html.EscapeString(cell) + "</td>")
		}
		out.WriteString("</tr>\n")
	}
	out.WriteString("</tbody>\n</table>\n</body></html>\n")
	return out.String()
}

// ServePage serves page on every path until the test ends.
func ServePage(t testing.TB, page string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	}))
	t.Cleanup(server.Close)
	return server
}
