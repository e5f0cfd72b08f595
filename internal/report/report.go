// Package report renders human readable speed test output.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/NodePath81/cfspeed/internal/engine"
	"github.com/NodePath81/cfspeed/internal/history"
	"github.com/NodePath81/cfspeed/internal/stats"
	"github.com/NodePath81/cfspeed/internal/util"
)

const labelWidth = 32

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Timestamp formats t the way all report lines do.
func Timestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05 MST")
}

// Preamble is what is known about the link before the timed runs.
type Preamble struct {
	Start          time.Time
	ClientLocation string
	Colo           string
	ColoLocation   string
	Latency        time.Duration
}

func WritePreamble(w io.Writer, p Preamble) {
	line(w, "Start:", Timestamp(p.Start))
	line(w, "Your Location:", orUnknown(p.ClientLocation))
	line(w, "Server Location:", fmt.Sprintf("%s - %s", orUnknown(p.Colo), orUnknown(p.ColoLocation)))
	line(w, "Latency (HTTP):", fmt.Sprintf("%.2fms", float64(p.Latency.Microseconds())/1000))
	fmt.Fprintln(w)
}

// WriteResults prints the timestamped DOWN/UP table. A direction appears
// when it completed or collected at least one sample.
func WriteResults(w io.Writer, snap engine.Snapshot, now time.Time) {
	fmt.Fprintln(w, Timestamp(now))
	rows := [][]string{}
	if snap.DownloadCompleted || len(snap.Download) > 0 {
		rows = append(rows, resultRow("DOWN", stats.Compute(snap.Download)))
	}
	if snap.UploadCompleted || len(snap.Upload) > 0 {
		rows = append(rows, resultRow("UP", stats.Compute(snap.Upload)))
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "no measurements collected")
		return
	}
	fmt.Fprintln(w, render([]string{"", "Median", "Average", "90th pctile"}, rows))
}

// WriteHistory prints stored runs, newest first.
func WriteHistory(w io.Writer, records []history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "no stored runs")
		return
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			Timestamp(rec.StartedAt.Local()),
			rec.Policy,
			util.FormatMbps(rec.DownloadMbps),
			util.FormatMbps(rec.UploadMbps),
			fmt.Sprintf("%.2fms", float64(rec.Latency.Microseconds())/1000),
			orUnknown(rec.Colo),
			rec.ID,
		})
	}
	fmt.Fprintln(w, render([]string{"Start", "Policy", "Down", "Up", "Latency", "Colo", "ID"}, rows))
}

func resultRow(label string, s stats.Summary) []string {
	return []string{label, bitRate(s.Median), bitRate(s.Average), bitRate(float64(s.P90))}
}

func bitRate(bytesPerSec float64) string {
	_, bits := util.RateUnits(int64(bytesPerSec))
	return bits
}

func render(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}

func line(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%-*s %s\n", labelWidth, label, value)
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}
