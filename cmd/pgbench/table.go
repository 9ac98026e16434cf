package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
)

// newTable returns a lipgloss table with alternating row styles. alignments are per column, and the last one
// is repeated for the remaining columns.
func newTable(alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row < 0:
				return headerRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			return s.Align(alignment)
		})
}

// resultsTable renders the benchmark results as a two-column table.
func resultsTable(r *benchResult) string {
	t := newTable(lipgloss.Left, lipgloss.Right).Headers("Benchmark", r.Op)
	t.Row("world size", humanize.Comma(int64(r.WorldSize)))
	t.Row("device", r.Device.String())
	if r.Op != "barrier" {
		t.Row("dtype", r.DType.String())
		t.Row("elements", humanize.Comma(int64(r.Elements)))
		t.Row("payload / rank", humanize.IBytes(r.Bytes()))
	}
	t.Row("iterations", humanize.Comma(int64(r.Iterations)))
	t.Row("mean latency", fmtDuration(r.Mean()))
	t.Row("p50 latency", fmtDuration(r.Percentile(0.5)))
	t.Row("p90 latency", fmtDuration(r.Percentile(0.9)))
	t.Row("max latency", fmtDuration(r.Percentile(1)))
	if r.Op != "barrier" {
		t.Row("throughput / rank", humanize.IBytes(uint64(r.Throughput()))+"/s")
	}
	t.Row("ops / s", humanize.FormatFloat("#,###.##", float64(len(r.Latencies))/max(r.Total.Seconds(), 1e-9)))
	return t.String()
}

func fmtDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.1fµs", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	default:
		return d.Round(time.Millisecond).String()
	}
}
