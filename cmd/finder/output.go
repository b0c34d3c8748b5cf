package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/alvmarrod/opportunity-finder/internal/report"
	"github.com/alvmarrod/opportunity-finder/internal/storage"
	"github.com/fatih/color"
)

// Terminal counterparts of the report row backgrounds
var rowColors = map[string]*color.Color{
	report.ColorManager:   color.New(color.FgYellow),
	report.ColorOwner:     color.New(color.FgCyan),
	report.ColorHighlight: color.New(color.FgGreen),
}

func printRun(w io.Writer, run *storage.Run, highlightRank int) {
	name, id := report.DisplayName(run)
	bold := color.New(color.Bold)
	bold.Fprintf(w, "Opportunities for %s (%s)\n", name, id)
	fmt.Fprintf(w, "%s\n\n", report.Summarize(run))

	// Align first, color whole lines afterwards so escape codes don't skew columns
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(report.ResultHeader, "\t"))
	for _, o := range run.Results {
		buying := "No"
		if o.OrgBuying {
			buying = "Yes"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", o.Domain, o.Rank, buying, o.Role, o.Note)
	}
	tw.Flush()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	bold.Fprintln(w, lines[0])
	for i, line := range lines[1:] {
		if c, ok := rowColors[report.RowColor(run.Results[i], highlightRank)]; ok {
			c.Fprintln(w, line)
			continue
		}
		fmt.Fprintln(w, line)
	}

	if len(run.Skipped) > 0 {
		faint := color.New(color.Faint)
		fmt.Fprintf(w, "\nSkipped:\n")
		for _, s := range run.Skipped {
			faint.Fprintf(w, "  %s: %s\n", s.Domain, s.Message())
		}
	}
}
