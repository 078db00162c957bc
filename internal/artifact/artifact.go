// Package artifact renders a normalized table into the files people read:
// a CSV snapshot and an HTML page.
package artifact

import (
	"encoding/csv"
	"fmt"
	"io"
	"loggingturtle/internal/components/telemetry"
	"loggingturtle/internal/normalize"
	"loggingturtle/internal/stage"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// DayLayout is the date part of artifact file names.
const DayLayout = "02-01-2006"

const report_emitter_emit = "emitter.emit"

// Paths are the files written by a single Emit.
type Paths struct {
	CSV  string
	HTML string
}

type Emitter struct {
	csvDir  string
	htmlDir string
	tel     telemetry.API
}

func New(tel telemetry.API, csvDir, htmlDir string) Emitter {
	return Emitter{
		csvDir:  csvDir,
		htmlDir: htmlDir,
		tel:     telemetry.NewScopedAPI("artifact", tel),
	}
}

// FileName returns the name of an artifact, ex. `01-03-2024_FFPD.csv`.
func FileName(day time.Time, entity, ext string) string {
	return fmt.Sprintf("%s_%s.%s", day.Format(DayLayout), entity, ext)
}

// Emit writes the CSV and the HTML rendering of t, replacing the artifacts
// of the same day. Each file is written to a temporary file first and renamed
// into place, so readers never see a partial artifact.
func (e Emitter) Emit(t normalize.Table, entity string, day time.Time) (Paths, error) {
	paths := Paths{
		CSV:  filepath.Join(e.csvDir, FileName(day, entity, "csv")),
		HTML: filepath.Join(e.htmlDir, FileName(day, entity, "html")),
	}

	err := writeAtomic(paths.CSV, func(w io.Writer) error {
		return WriteCSV(w, t)
	})
	if err != nil {
		e.tel.ReportBroken(report_emitter_emit, err, paths.CSV)
		return Paths{}, stage.Wrap(stage.Emit, fmt.Errorf("write csv: %w", err))
	}
	err = writeAtomic(paths.HTML, func(w io.Writer) error {
		_, err := io.WriteString(w, RenderHTML(t))
		return err
	})
	if err != nil {
		e.tel.ReportBroken(report_emitter_emit, err, paths.HTML)
		return Paths{CSV: paths.CSV}, stage.Wrap(stage.Emit, fmt.Errorf("write html: %w", err))
	}

	e.tel.ReportDebug("emitted artifacts", paths.CSV, paths.HTML)
	return paths, nil
}

// WriteCSV writes the header followed by every record, null cells are empty.
func WriteCSV(w io.Writer, t normalize.Table) error {
	cw := csv.NewWriter(w)
	err := cw.Write(t.Columns)
	if err != nil {
		return err
	}
	for i := range t.Records {
		err = cw.Write(t.Strings(i))
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// RenderHTML renders t as an html table, cell text is escaped.
func RenderHTML(t normalize.Table) string {
	writer := table.NewWriter()
	writer.Style().HTML = table.HTMLOptions{
		CSSClass:   "dispatch-log",
		EscapeText: true,
		Newline:    "<br/>",
	}
	writer.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	writer.AppendHeader(header)

	for i := range t.Records {
		cells := t.Strings(i)
		row := make(table.Row, len(cells))
		for ci, c := range cells {
			row[ci] = c
		}
		writer.AppendRow(row)
	}

	return writer.RenderHTML() + "\n"
}

func writeAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	err = write(tmp)
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Close()
	if err != nil {
		return err
	}
	err = os.Chmod(tmp.Name(), 0644)
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
