package exporter

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// RenderTable prints header and rows as an aligned text table.
func RenderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.AppendBulk(rows)
	table.Render()
}
