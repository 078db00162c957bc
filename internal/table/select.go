package table

import (
	"loggingturtle/internal/stage"
	"loggingturtle/lib/textutil"

	"github.com/antzucaro/matchr"
)

// DefaultPosition is the position of the dispatch log on the pages this
// tool was written against, the first table is the page's layout table.
const DefaultPosition = 1

// Select returns the table at a fixed position of the page. The position is
// a contract with a known page layout, there is no safe fallback when the
// page has fewer tables than that.
func Select(tables []Raw, position int) (Raw, error) {
	if position < 0 {
		return Raw{}, stage.Errorf(stage.Select, "invalid table position %d", position)
	}
	if len(tables) <= position {
		return Raw{}, stage.Errorf(
			stage.Select,
			"page has %d table(s), expected one at position %d, the page layout has likely changed",
			len(tables), position,
		)
	}
	return tables[position], nil
}

type ColumnMatch struct {
	Expected string
	// Closest is the most similar column actually present, empty if the table has no columns.
	Closest    string
	Similarity float64
}

// Drift lists the expected columns that are not present in a table.
type Drift struct {
	Missing []ColumnMatch
}

func (d Drift) Empty() bool {
	return len(d.Missing) == 0
}

// CheckSignature compares the header of a table against the columns it is
// expected to have. Names are compared after textutil.NormalizeName, missing
// columns are paired with the closest present column by Jaro-Winkler similarity.
func CheckSignature(raw Raw, expected []string) Drift {
	present := make(map[string]struct{}, len(raw.Columns))
	for _, c := range raw.Columns {
		present[textutil.NormalizeName(c)] = struct{}{}
	}

	var drift Drift
	for _, e := range expected {
		normalized := textutil.NormalizeName(e)
		if _, ok := present[normalized]; ok {
			continue
		}

		match := ColumnMatch{Expected: e}
		for _, c := range raw.Columns {
			similarity := matchr.JaroWinkler(normalized, textutil.NormalizeName(c), false)
			if similarity > match.Similarity {
				match.Similarity = similarity
				match.Closest = c
			}
		}
		drift.Missing = append(drift.Missing, match)
	}
	return drift
}
