package testutil

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServeDispatchPage(t *testing.T) {
	page := DispatchPage(DispatchHeader, [][]string{
		{"3/1/2024 10:00:00 AM", "24-001", "ALARM", "Texas St & Union Ave"},
	})
	require.Equal(t, 2, strings.Count(page, "<table"))
	require.Contains(t, page, "<th>inci #</th>")
	require.Contains(t, page, "Texas St &amp; Union Ave")

	server := ServePage(t, page)
	res, err := http.Get(server.URL + "/anything")
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, page, string(body))
}
