package report

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"strconv"

	"github.com/alvmarrod/opportunity-finder/internal/storage"
	"github.com/xuri/excelize/v2"
)

// Row background colors
const (
	ColorManager   = "#fff9cc"
	ColorOwner     = "#cce5ff"
	ColorHighlight = "#d4edda"
)

// ResultHeader is the column order shared by every result export
var ResultHeader = []string{"Domain", "Tranco Rank", "OMS Buying", "Owner/Manager", "Notes"}

// SkippedHeader is the column order of the skip log export
var SkippedHeader = []string{"Domain", "Reason"}

func resultRow(o storage.Opportunity) []string {
	return []string{o.Domain, strconv.Itoa(o.Rank), yesNo(o.OrgBuying), string(o.Role), o.Note}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// RowColor returns the background of a result row, or "" for none
func RowColor(o storage.Opportunity, highlightRank int) string {
	switch {
	case o.Role == storage.RoleManager || o.Qualifier == storage.QualifierManagerDomain:
		return ColorManager
	case o.Role == storage.RoleOwner:
		return ColorOwner
	case highlightRank > 0 && o.Rank <= highlightRank:
		return ColorHighlight
	default:
		return ""
	}
}

// WriteResultsCSV writes the result table in rank order
func WriteResultsCSV(w io.Writer, run *storage.Run) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ResultHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, o := range run.Results {
		if err := cw.Write(resultRow(o)); err != nil {
			return fmt.Errorf("failed to write CSV row %s: %w", o.Domain, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSkippedCSV writes the skip log in insertion order
func WriteSkippedCSV(w io.Writer, run *storage.Run) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SkippedHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, s := range run.Skipped {
		if err := cw.Write([]string{s.Domain, s.Message()}); err != nil {
			return fmt.Errorf("failed to write CSV row %s: %w", s.Domain, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

var emailTemplate = template.Must(template.New("email").Parse(`<html>
  <head>
    <style>
      * { font-family: Arial, sans-serif; font-size: 14px; color: #333; }
      .styled-table { border-collapse: collapse; margin: 10px 0; min-width: 400px; border: 1px solid #ddd; }
      .styled-table th, .styled-table td { border: 1px solid #ddd; padding: 8px; text-align: left; }
      .styled-table th { background-color: #f2f2f2; font-weight: bold; }
    </style>
  </head>
  <body>
    <p>Hi there!</p>
    <p>Here is the list of opportunities for <strong>{{.Name}}</strong> ({{.ID}}):</p>
    <p>{{.Summary}}</p>
    <table class="styled-table">
      <thead><tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr></thead>
      <tbody>
{{- range .Rows}}
        <tr{{if .Color}} style="{{.Style}}"{{end}}>{{range .Cells}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
      </tbody>
    </table>
    <p>Warm regards,<br/>Automation bot</p>
  </body>
</html>
`))

type htmlRow struct {
	Color string
	Cells []string
}

func (r htmlRow) Style() template.CSS {
	return template.CSS("background-color: " + r.Color)
}

// RenderHTML writes the email body: a greeting and the colored result table
func RenderHTML(w io.Writer, run *storage.Run, highlightRank int) error {
	name, id := DisplayName(run)
	data := struct {
		Name    string
		ID      string
		Summary string
		Header  []string
		Rows    []htmlRow
	}{
		Name:    name,
		ID:      id,
		Summary: Summarize(run).String(),
		Header:  ResultHeader,
	}
	for _, o := range run.Results {
		data.Rows = append(data.Rows, htmlRow{Color: RowColor(o, highlightRank), Cells: resultRow(o)})
	}

	if err := emailTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render HTML report: %w", err)
	}
	return nil
}

// WriteXLSX writes the results and the skip log as a two-sheet workbook
func WriteXLSX(w io.Writer, run *storage.Run, highlightRank int) error {
	f := excelize.NewFile()
	defer f.Close()

	const results, skipped = "Opportunities", "Skipped"
	if err := f.SetSheetName("Sheet1", results); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := f.NewSheet(skipped); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	fills := make(map[string]int)
	for _, color := range []string{ColorManager, ColorOwner, ColorHighlight} {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
		})
		if err != nil {
			return fmt.Errorf("failed to create fill %s: %w", color, err)
		}
		fills[color] = id
	}

	if err := writeSheet(f, results, ResultHeader, bold); err != nil {
		return err
	}
	for i, o := range run.Results {
		row := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(results, cell, &[]interface{}{o.Domain, o.Rank, yesNo(o.OrgBuying), string(o.Role), o.Note}); err != nil {
			return fmt.Errorf("failed to write row %s: %w", o.Domain, err)
		}
		if color := RowColor(o, highlightRank); color != "" {
			last, _ := excelize.CoordinatesToCellName(len(ResultHeader), row)
			if err := f.SetCellStyle(results, cell, last, fills[color]); err != nil {
				return fmt.Errorf("failed to style row %s: %w", o.Domain, err)
			}
		}
	}
	f.SetColWidth(results, "A", "A", 32)
	f.SetColWidth(results, "E", "E", 40)

	if err := writeSheet(f, skipped, SkippedHeader, bold); err != nil {
		return err
	}
	for i, s := range run.Skipped {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(skipped, cell, &[]interface{}{s.Domain, s.Message()}); err != nil {
			return fmt.Errorf("failed to write skip %s: %w", s.Domain, err)
		}
	}
	f.SetColWidth(skipped, "A", "B", 32)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []string, style int) error {
	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &cells); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}
	return nil
}

// DisplayName returns the publisher name and id shown in reports, with placeholders for manual runs
func DisplayName(run *storage.Run) (string, string) {
	name, id := run.PublisherName, run.PublisherID
	if name == "" {
		name = "Manual Domains"
	}
	if id == "" {
		id = "NoID"
	}
	return name, id
}
