package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"churncli/internal/exporter"
	"churncli/internal/operations"
)

// renderSummary prints one row per planned step and a closing status line
func renderSummary(w io.Writer, resp *operations.OperationResponse) {
	rows := make([][]string, 0, len(resp.Order))
	for _, id := range resp.Order {
		st := resp.Steps[id]
		if st == nil {
			continue
		}
		rows = append(rows, []string{
			id,
			string(st.GetStatus()),
			strconv.Itoa(st.Attempts),
			formatDuration(st.Duration()),
			st.GetMessage(),
		})
	}
	exporter.RenderTable(w, []string{"Step", "Status", "Attempts", "Duration", "Summary"}, rows)

	line := fmt.Sprintf("Run %s %s in %s", resp.ID, resp.Status, formatDuration(resp.Duration))
	if resp.Error != "" {
		line += ": " + resp.Error
	}
	fmt.Fprintln(w, line)
}

// renderSteps lists the registered steps with their dependencies
func renderSteps(w io.Writer, registry *operations.Registry) error {
	ordered, err := registry.GetDependencyOrder()
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(ordered))
	for _, s := range ordered {
		deps := strings.Join(s.GetDependencies(), ", ")
		if deps == "" {
			deps = "-"
		}
		rows = append(rows, []string{s.ID(), s.Name(), deps})
	}
	exporter.RenderTable(w, []string{"Step", "Name", "Depends on"}, rows)
	return nil
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

func renderFiles(w io.Writer, rows [][]string) {
	exporter.RenderTable(w, []string{"File"}, rows)
}
