package iftmap

import (
	"fmt"
	"strings"
)

// Plan is an ordered list of map entries whose patches, applied in order,
// extend a font to cover a resolved target. Plans are minimal in the
// greedy sense: each position holds the entry which covered the largest
// part of what was still missing when it was chosen.
type Plan struct {
	Entries []Entry
}

// Empty is true for plans with no entries, meaning the font already
// covers the target.
func (p Plan) Empty() bool {
	return len(p.Entries) == 0
}

// IDs returns the entry ids of the plan in application order.
func (p Plan) IDs() []uint32 {
	if len(p.Entries) == 0 {
		return nil
	}
	ids := make([]uint32, len(p.Entries))
	for i := range p.Entries {
		ids[i] = p.Entries[i].ID
	}
	return ids
}

// UnsatisfiableError reports a target which no combination of map entries
// can cover. Remaining holds the part of the target no entry intersects.
type UnsatisfiableError struct {
	Remaining SubsetDefinition
}

// Error implements the error interface.
func (e *UnsatisfiableError) Error() string {
	var b strings.Builder
	b.WriteString("target not coverable by patch map")
	if !e.Remaining.Codepoints.Empty() {
		fmt.Fprintf(&b, ", missing codepoints %s", e.Remaining.Codepoints)
	}
	if !e.Remaining.Features.Empty() {
		fmt.Fprintf(&b, ", missing features %v", e.Remaining.Features)
	}
	if !e.Remaining.DesignSpace.Empty() {
		fmt.Fprintf(&b, ", missing design space %v", e.Remaining.DesignSpace)
	}
	return b.String()
}

// Resolve selects the patches needed to extend a font from its current
// support to cover target. Selection is greedy: while anything of the
// target is missing, the entry covering the largest missing part is
// appended to the plan, ties broken by the lower entry id. Entries
// invalidated by a chosen entry are discarded from the candidate set, a
// chosen entry is never revoked.
//
// Resolve is deterministic, identical inputs yield identical plans. If
// part of the target intersects no remaining entry, a zero Plan and an
// UnsatisfiableError carrying the uncoverable remainder are returned.
func Resolve(m *Map, support, target SubsetDefinition) (Plan, error) {
	needed := target.Subtract(support)
	if needed.Empty() {
		return Plan{}, nil
	}
	plan := Plan{}
	taken := make(map[uint32]bool)
	removed := make(map[uint32]bool)
	for !needed.Empty() {
		var best *Entry
		var bestCover int64
		for i := range m.Entries {
			e := &m.Entries[i]
			if taken[e.ID] || removed[e.ID] {
				continue
			}
			cover := e.Subset.Intersect(needed).Size()
			if cover == 0 {
				continue
			}
			if best == nil || cover > bestCover || (cover == bestCover && e.ID < best.ID) {
				best, bestCover = e, cover
			}
		}
		if best == nil {
			return Plan{}, &UnsatisfiableError{Remaining: needed}
		}
		tracer().Debugf("plan += entry %d (%s), covering %d of remaining target",
			best.ID, best.Format, bestCover)
		plan.Entries = append(plan.Entries, *best)
		taken[best.ID] = true
		needed = needed.Subtract(best.Subset)
		for _, id := range best.Invalidates {
			removed[id] = true
		}
	}
	return plan, nil
}
