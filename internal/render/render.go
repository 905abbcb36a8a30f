// Package render draws an ASCII report of a grouped trace: one section per
// group, each event as a labelled timing bar positioned within the group's
// time bounds. Pure formatting; it only reads the group_id stats the
// grouping pass wrote back.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tobert/trace-grouper/internal/grouper"
	"github.com/tobert/trace-grouper/internal/timeline"
)

const (
	maxEventsPerGroup = 50
	defaultBarWidth   = 20
)

// EventRow is one renderable event, flattened out of the timeline planes.
type EventRow struct {
	GroupID int64
	Plane   string
	Line    string
	Name    string
	Depth   int // nesting depth within its line, for indentation
	StartNs int64
	EndNs   int64
}

// CollectRows flattens every grouped event out of the planes. Events
// without a group_id stat are ignored; depth comes from interval
// containment within each line, mirroring how the linker nests them.
func CollectRows(planes ...*timeline.Plane) []EventRow {
	var rows []EventRow
	for _, p := range planes {
		if p == nil {
			continue
		}
		groupMeta, ok := p.LookupStatMetadataID(timeline.StatGroupID.String())
		if !ok {
			continue
		}
		for _, line := range p.Lines {
			var open []*timeline.Event
			for _, e := range line.Events {
				for len(open) > 0 && !e.Nested(open[len(open)-1]) {
					open = open[:len(open)-1]
				}
				depth := len(open)
				open = append(open, e)

				s := e.FindStat(groupMeta)
				if s == nil {
					continue
				}
				rows = append(rows, EventRow{
					GroupID: s.Value.Int64(),
					Plane:   p.Name,
					Line:    line.Name,
					Name:    p.EventMetadataName(e.MetadataID),
					Depth:   depth,
					StartNs: e.StartNs,
					EndNs:   e.EndNs(),
				})
			}
		}
	}
	return rows
}

// Report renders one section per group id, in id order. Width controls the
// total line width; 0 uses 80.
func Report(names grouper.GroupNameMap, rows []EventRow, width int) string {
	if len(rows) == 0 {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	byGroup := make(map[int64][]EventRow)
	for _, r := range rows {
		byGroup[r.GroupID] = append(byGroup[r.GroupID], r)
	}
	ids := make([]int64, 0, len(byGroup))
	for id := range byGroup {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte('\n')
		}
		renderGroup(&b, id, names[id], byGroup[id], width)
	}
	return b.String()
}

func renderGroup(b *strings.Builder, id int64, name string, rows []EventRow, width int) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].StartNs < rows[j].StartNs })

	minStart := rows[0].StartNs
	maxEnd := minStart
	for _, r := range rows {
		if end := max(r.EndNs, r.StartNs); end > maxEnd {
			maxEnd = end
		}
	}
	totalDur := maxEnd - minStart

	fmt.Fprintf(b, "Group %d %q (%d events, %s)\n", id, name, len(rows), formatDuration(totalDur))

	overflow := 0
	if len(rows) > maxEventsPerGroup {
		overflow = len(rows) - maxEventsPerGroup
		rows = rows[:maxEventsPerGroup]
	}

	maxDurLen := 0
	for _, r := range rows {
		if l := len(formatDuration(max(r.EndNs, r.StartNs) - r.StartNs)); l > maxDurLen {
			maxDurLen = l
		}
	}

	for _, r := range rows {
		renderRow(b, r, minStart, totalDur, width, maxDurLen)
	}
	if overflow > 0 {
		fmt.Fprintf(b, "  ... +%d more events\n", overflow)
	}
}

func renderRow(b *strings.Builder, r EventRow, minStart, totalDur int64, width, maxDurLen int) {
	indent := strings.Repeat("  ", r.Depth)
	label := fmt.Sprintf(" %s%s/%s %s", indent, r.Plane, r.Line, r.Name)

	start := r.StartNs
	end := max(r.EndNs, start)
	durStr := formatDuration(end - start)

	// Layout: label + " [" + bar + "] " + duration
	fixed := 2 + defaultBarWidth + 2 + maxDurLen
	labelBudget := max(width-fixed, 8)
	if len(label) > labelBudget {
		label = label[:labelBudget-1] + "…"
	}
	label += strings.Repeat(" ", max(0, labelBudget-len(label)))

	bar := buildBar(start, end, minStart, totalDur, defaultBarWidth)
	pad := strings.Repeat(" ", maxDurLen-len(durStr))
	fmt.Fprintf(b, "%s [%s] %s%s\n", label, bar, durStr, pad)
}

func buildBar(startNs, endNs, minStart, totalDur int64, barWidth int) string {
	if totalDur == 0 {
		return strings.Repeat("#", barWidth)
	}

	startPos := int((startNs - minStart) * int64(barWidth) / totalDur)
	endPos := int((endNs - minStart) * int64(barWidth) / totalDur)
	if startPos >= barWidth {
		startPos = barWidth - 1
	}
	endPos = min(max(endPos, startPos+1), barWidth)

	bar := make([]byte, barWidth)
	for i := range bar {
		if i >= startPos && i < endPos {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	return string(bar)
}

func formatDuration(nanos int64) string {
	if nanos == 0 {
		return "0ns"
	}
	us := float64(nanos) / 1000
	if us < 1000 {
		return fmt.Sprintf("%.0fµs", us)
	}
	ms := us / 1000
	if ms < 1000 {
		return fmt.Sprintf("%.0fms", ms)
	}
	return fmt.Sprintf("%.1fs", ms/1000)
}
