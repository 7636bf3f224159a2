package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/npillmayer/ift/iftmap"
)

func printEntries(m *iftmap.Map) {
	if len(m.Entries) == 0 {
		pterm.Println("patch map has no entries, font is fully extended")
		return
	}
	data := [][]string{
		{"ID", "Format", "Adds", "Invalidates"},
	}
	for _, e := range m.Entries {
		data = append(data, []string{
			strconv.FormatUint(uint64(e.ID), 10),
			e.Format.String(),
			clip(e.Subset.String(), 48),
			formatIDList(e.Invalidates),
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func printEntry(e *iftmap.Entry, m *iftmap.Map) {
	pterm.Printf("entry %d\n", e.ID)
	pterm.Printf("  format:      %s\n", e.Format)
	pterm.Printf("  adds:        %s\n", e.Subset)
	if len(e.Invalidates) > 0 {
		pterm.Printf("  invalidates: %s\n", formatIDList(e.Invalidates))
	}
	if uri, err := iftmap.ExpandURITemplate(m.URITemplate, e.ID); err == nil {
		pterm.Printf("  patch URI:   %s\n", uri)
	}
}

func printPlan(plan iftmap.Plan, m *iftmap.Map) {
	data := [][]string{
		{"Step", "ID", "Format", "Adds", "URI"},
	}
	for i, e := range plan.Entries {
		uri, err := iftmap.ExpandURITemplate(m.URITemplate, e.ID)
		if err != nil {
			uri = "?"
		}
		data = append(data, []string{
			strconv.Itoa(i + 1),
			strconv.FormatUint(uint64(e.ID), 10),
			e.Format.String(),
			clip(e.Subset.String(), 40),
			uri,
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func formatCompat(id [4]uint32) string {
	return fmt.Sprintf("%08x:%08x:%08x:%08x", id[0], id[1], id[2], id[3])
}

func formatIDList(ids []uint32) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, " ")
}

// clip caps cell text, patch subsets can list hundreds of ranges.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
