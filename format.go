package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/text/width"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// formatTime shows the time of day for today, month and day within the
// year, and the full date otherwise.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	now := time.Now()

	if y, m, d := t.Date(); y == now.Year() && m == now.Month() && d == now.Day() {
		return t.Format("15:04:05")
	}

	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// fissureFlags renders the boolean markers of a fissure.
func fissureFlags(f *fissure.Fissure) string {
	var flags []string

	if f.IsHard {
		flags = append(flags, "steel-path")
	}

	if f.IsStorm {
		flags = append(flags, "storm")
	}

	if f.Expired {
		flags = append(flags, "expired")
	}

	if len(flags) == 0 {
		return "-"
	}

	return strings.Join(flags, ",")
}

// printFissures writes the snapshot as a table, in server order.
func printFissures(w io.Writer, fissures []fissure.Fissure) {
	if len(fissures) == 0 {
		fmt.Fprintln(w, "No fissures match the current filter.")

		return
	}

	headers := []string{"TIER", "MISSION", "NODE", "ENEMY", "ETA", "FLAGS"}
	rows := make([][]string, 0, len(fissures))

	for i := range fissures {
		f := &fissures[i]
		rows = append(rows, []string{f.Tier, f.MissionType, f.Node, f.Enemy, f.ETA, fissureFlags(f)})
	}

	printTable(w, headers, rows)
}

// printTable writes left-aligned columns separated by two spaces. Widths
// are measured in terminal cells, so wide runes keep the columns straight.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))

	for _, row := range append([][]string{headers}, rows...) {
		for i, cell := range row {
			widths[i] = max(widths[i], displayWidth(cell))
		}
	}

	var line strings.Builder

	for _, row := range append([][]string{headers}, rows...) {
		line.Reset()

		for i, cell := range row {
			if i > 0 {
				line.WriteString("  ")
			}

			line.WriteString(cell)

			if i < len(row)-1 {
				line.WriteString(strings.Repeat(" ", widths[i]-displayWidth(cell)))
			}
		}

		fmt.Fprintln(w, strings.TrimRight(line.String(), " "))
	}
}

// displayWidth counts terminal cells: East Asian wide and fullwidth runes
// take two.
func displayWidth(s string) int {
	n := 0

	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}

	return n
}
