package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/sawpanic/fundrank/internal/pipeline"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// resolveFormat maps "auto" to a table on a terminal and JSON otherwise
func resolveFormat(format string) (string, error) {
	switch strings.ToLower(format) {
	case "auto", "":
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return formatTable, nil
		}
		return formatJSON, nil
	case formatTable, formatJSON:
		return strings.ToLower(format), nil
	default:
		return "", fmt.Errorf("unknown output format %q", format)
	}
}

func renderJSON(w io.Writer, res *pipeline.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func renderTable(w io.Writer, res *pipeline.Result, plan pipeline.Plan) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	header := []string{"RANK", "FUND", "RISK", "SCORE"}
	for _, p := range plan.Params {
		header = append(header, fmt.Sprintf("%s (#)", p.Field))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, f := range res.Funds {
		row := []string{
			fmt.Sprintf("%d", f.Rank),
			f.Name,
			f.Risk.String(),
			fmt.Sprintf("%.2f", f.WeightedScore),
		}
		for _, p := range plan.Params {
			cell := fmt.Sprintf("%.2f (%d)", f.Value(p.Field), f.ParamRanks[p.WeightKey])
			if !f.IsAvailable(p.Field) {
				cell += "*"
			}
			row = append(row, cell)
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%s: %d funds, run %s, %v\n", res.Category, len(res.Funds), res.RunID, res.Duration.Round(time.Millisecond))
	if n := res.DegradedCount(); n > 0 {
		fmt.Fprintf(w, "⚠️  %d metrics unavailable and scored as 0 (marked *)\n", n)
	}
	if len(res.Unmatched) > 0 {
		fmt.Fprintf(w, "⚠️  unmatched and dropped: %s\n", strings.Join(res.Unmatched, ", "))
	}
	for _, rep := range res.Malformed {
		fmt.Fprintf(w, "⚠️  %s: %d malformed values in %d records\n", rep.Provider, rep.Malformed(), rep.Records)
	}
	return nil
}
