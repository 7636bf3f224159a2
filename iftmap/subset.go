package iftmap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/npillmayer/ift/sfnt"
)

// A SubsetDefinition describes a portion of a font along three axes: the
// character codes it renders, the optional layout features it carries, and
// the region of variation design space it covers. Patch map entries
// advertise the subset a patch adds, clients request the subset they need,
// and the resolver works on differences and intersections of the two.

// span is an inclusive integer interval. Both character codes and 16.16
// design-space coordinates fit in int64 with room for open-ended
// arithmetic at the extremes.
type span struct {
	lo, hi int64
}

// normalizeSpans sorts spans and merges overlapping and adjacent ones.
// The result is the canonical form: ascending, pairwise disjoint, with no
// two spans mergeable.
func normalizeSpans(spans []span) []span {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].lo != spans[j].lo {
			return spans[i].lo < spans[j].lo
		}
		return spans[i].hi < spans[j].hi
	})
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.lo <= last.hi+1 {
			if s.hi > last.hi {
				last.hi = s.hi
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func unionSpans(a, b []span) []span {
	if len(a) == 0 {
		return append([]span(nil), b...)
	}
	if len(b) == 0 {
		return append([]span(nil), a...)
	}
	all := make([]span, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	return normalizeSpans(all)
}

func intersectSpans(a, b []span) []span {
	var out []span
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		lo := max64(a[i].lo, b[j].lo)
		hi := min64(a[i].hi, b[j].hi)
		if lo <= hi {
			out = append(out, span{lo, hi})
		}
		if a[i].hi < b[j].hi {
			i++
		} else {
			j++
		}
	}
	return out
}

func subtractSpans(a, b []span) []span {
	var out []span
	j := 0
	for _, s := range a {
		lo := s.lo
		for j < len(b) && b[j].hi < lo {
			j++
		}
		k := j
		for k < len(b) && b[k].lo <= s.hi {
			if b[k].lo > lo {
				out = append(out, span{lo, b[k].lo - 1})
			}
			if b[k].hi+1 > lo {
				lo = b[k].hi + 1
			}
			k++
		}
		if lo <= s.hi {
			out = append(out, span{lo, s.hi})
		}
	}
	return out
}

func countSpans(a []span) int64 {
	var n int64
	for _, s := range a {
		n += s.hi - s.lo + 1
	}
	return n
}

func spansContain(a []span, v int64) bool {
	i := sort.Search(len(a), func(i int) bool { return a[i].hi >= v })
	return i < len(a) && a[i].lo <= v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// --- Codepoint sets --------------------------------------------------------

// CodepointRange is an inclusive range of character codes.
type CodepointRange struct {
	Low, High rune
}

// CodepointSet is a set of character codes, held as sorted, pairwise
// disjoint, maximally merged inclusive ranges. The zero value is the empty
// set. Sets are immutable, operations return new sets.
type CodepointSet struct {
	spans []span
}

// NewCodepointSet builds a set from individual character codes.
func NewCodepointSet(runes ...rune) CodepointSet {
	spans := make([]span, 0, len(runes))
	for _, r := range runes {
		spans = append(spans, span{int64(r), int64(r)})
	}
	return CodepointSet{spans: normalizeSpans(spans)}
}

// CodepointSetOfRanges builds a set from inclusive ranges. Empty ranges
// (High < Low) are ignored.
func CodepointSetOfRanges(ranges ...CodepointRange) CodepointSet {
	spans := make([]span, 0, len(ranges))
	for _, r := range ranges {
		if r.High < r.Low {
			continue
		}
		spans = append(spans, span{int64(r.Low), int64(r.High)})
	}
	return CodepointSet{spans: normalizeSpans(spans)}
}

// Empty tells if the set contains no codepoints.
func (s CodepointSet) Empty() bool {
	return len(s.spans) == 0
}

// Count returns the number of codepoints in the set.
func (s CodepointSet) Count() int64 {
	return countSpans(s.spans)
}

// Contains tells if r is in the set.
func (s CodepointSet) Contains(r rune) bool {
	return spansContain(s.spans, int64(r))
}

// Ranges returns the canonical ranges of the set.
func (s CodepointSet) Ranges() []CodepointRange {
	if len(s.spans) == 0 {
		return nil
	}
	ranges := make([]CodepointRange, len(s.spans))
	for i, sp := range s.spans {
		ranges[i] = CodepointRange{Low: rune(sp.lo), High: rune(sp.hi)}
	}
	return ranges
}

// Union returns the set of codepoints in s or in t.
func (s CodepointSet) Union(t CodepointSet) CodepointSet {
	return CodepointSet{spans: unionSpans(s.spans, t.spans)}
}

// Intersect returns the set of codepoints in both s and t.
func (s CodepointSet) Intersect(t CodepointSet) CodepointSet {
	return CodepointSet{spans: intersectSpans(s.spans, t.spans)}
}

// Subtract returns the set of codepoints in s but not in t.
func (s CodepointSet) Subtract(t CodepointSet) CodepointSet {
	return CodepointSet{spans: subtractSpans(s.spans, t.spans)}
}

func (s CodepointSet) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, sp := range s.spans {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if sp.lo == sp.hi {
			fmt.Fprintf(&sb, "U+%04X", sp.lo)
		} else {
			fmt.Fprintf(&sb, "U+%04X-%04X", sp.lo, sp.hi)
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

// --- Feature sets ----------------------------------------------------------

// FeatureSet is a set of layout feature tags, sorted and unique.
// The zero value is the empty set.
type FeatureSet []sfnt.Tag

// NewFeatureSet builds a feature set, dropping duplicates.
func NewFeatureSet(tags ...sfnt.Tag) FeatureSet {
	if len(tags) == 0 {
		return nil
	}
	fs := append(FeatureSet(nil), tags...)
	sort.Slice(fs, func(i, j int) bool { return fs[i] < fs[j] })
	out := fs[:1]
	for _, t := range fs[1:] {
		if t != out[len(out)-1] {
			out = append(out, t)
		}
	}
	return out
}

// Empty tells if the set contains no features.
func (fs FeatureSet) Empty() bool {
	return len(fs) == 0
}

// Contains tells if tag is in the set.
func (fs FeatureSet) Contains(tag sfnt.Tag) bool {
	i := sort.Search(len(fs), func(i int) bool { return fs[i] >= tag })
	return i < len(fs) && fs[i] == tag
}

// Union returns the features in fs or in other.
func (fs FeatureSet) Union(other FeatureSet) FeatureSet {
	return NewFeatureSet(append(append([]sfnt.Tag(nil), fs...), other...)...)
}

// Intersect returns the features in both fs and other.
func (fs FeatureSet) Intersect(other FeatureSet) FeatureSet {
	var out FeatureSet
	for _, t := range fs {
		if other.Contains(t) {
			out = append(out, t)
		}
	}
	return out
}

// Subtract returns the features in fs but not in other.
func (fs FeatureSet) Subtract(other FeatureSet) FeatureSet {
	var out FeatureSet
	for _, t := range fs {
		if !other.Contains(t) {
			out = append(out, t)
		}
	}
	return out
}

// --- Design space ----------------------------------------------------------

// AxisSegment is an inclusive interval of design-space coordinates on one
// variation axis.
type AxisSegment struct {
	Axis   sfnt.Tag
	Lo, Hi sfnt.Fixed
}

// DesignSpace is a region of variation design space: per-axis segment
// sets, sorted by axis tag and within an axis by coordinate, pairwise
// disjoint and maximally merged per axis. The zero value is the empty
// region.
//
// Two regions intersect on an axis only if both constrain that axis and
// the segments overlap; an axis named by only one side contributes nothing
// to an intersection and survives subtraction unchanged.
type DesignSpace []AxisSegment

// NewDesignSpace normalizes segments into canonical form. Segments with
// Hi < Lo are ignored.
func NewDesignSpace(segments ...AxisSegment) DesignSpace {
	perAxis := make(map[sfnt.Tag][]span)
	for _, seg := range segments {
		if seg.Hi < seg.Lo {
			continue
		}
		perAxis[seg.Axis] = append(perAxis[seg.Axis], span{int64(seg.Lo), int64(seg.Hi)})
	}
	return designSpaceFromSpans(perAxis, true)
}

func designSpaceFromSpans(perAxis map[sfnt.Tag][]span, normalize bool) DesignSpace {
	axes := make([]sfnt.Tag, 0, len(perAxis))
	for axis := range perAxis {
		axes = append(axes, axis)
	}
	sort.Slice(axes, func(i, j int) bool { return axes[i] < axes[j] })
	var ds DesignSpace
	for _, axis := range axes {
		spans := perAxis[axis]
		if normalize {
			spans = normalizeSpans(spans)
		}
		for _, sp := range spans {
			ds = append(ds, AxisSegment{Axis: axis, Lo: sfnt.Fixed(sp.lo), Hi: sfnt.Fixed(sp.hi)})
		}
	}
	return ds
}

func (ds DesignSpace) perAxis() map[sfnt.Tag][]span {
	perAxis := make(map[sfnt.Tag][]span)
	for _, seg := range ds {
		perAxis[seg.Axis] = append(perAxis[seg.Axis], span{int64(seg.Lo), int64(seg.Hi)})
	}
	return perAxis
}

// Empty tells if the region covers nothing.
func (ds DesignSpace) Empty() bool {
	return len(ds) == 0
}

// SegmentCount returns the number of per-axis segments.
func (ds DesignSpace) SegmentCount() int {
	return len(ds)
}

// Union returns the region covered by ds or by other.
func (ds DesignSpace) Union(other DesignSpace) DesignSpace {
	a, b := ds.perAxis(), other.perAxis()
	for axis, spans := range b {
		a[axis] = unionSpans(a[axis], spans)
	}
	return designSpaceFromSpans(a, true)
}

// Intersect returns the region covered by both ds and other.
func (ds DesignSpace) Intersect(other DesignSpace) DesignSpace {
	a, b := ds.perAxis(), other.perAxis()
	out := make(map[sfnt.Tag][]span)
	for axis, spans := range a {
		if cut := intersectSpans(spans, b[axis]); len(cut) > 0 {
			out[axis] = cut
		}
	}
	return designSpaceFromSpans(out, false)
}

// Subtract returns the region covered by ds but not by other.
func (ds DesignSpace) Subtract(other DesignSpace) DesignSpace {
	a, b := ds.perAxis(), other.perAxis()
	out := make(map[sfnt.Tag][]span)
	for axis, spans := range a {
		if rest := subtractSpans(spans, b[axis]); len(rest) > 0 {
			out[axis] = rest
		}
	}
	return designSpaceFromSpans(out, false)
}

// --- Subset definitions ----------------------------------------------------

// SubsetDefinition is a portion of a font: character codes, layout
// features and a design-space region. The zero value is the empty subset.
type SubsetDefinition struct {
	Codepoints  CodepointSet
	Features    FeatureSet
	DesignSpace DesignSpace
}

// Empty tells if the subset describes nothing.
func (sd SubsetDefinition) Empty() bool {
	return sd.Codepoints.Empty() && sd.Features.Empty() && sd.DesignSpace.Empty()
}

// Size is the coverage measure used by the resolver: the number of
// codepoints plus the number of feature tags plus the number of
// design-space segments.
func (sd SubsetDefinition) Size() int64 {
	return sd.Codepoints.Count() + int64(len(sd.Features)) + int64(sd.DesignSpace.SegmentCount())
}

// Union returns the subset described by sd or by other.
func (sd SubsetDefinition) Union(other SubsetDefinition) SubsetDefinition {
	return SubsetDefinition{
		Codepoints:  sd.Codepoints.Union(other.Codepoints),
		Features:    sd.Features.Union(other.Features),
		DesignSpace: sd.DesignSpace.Union(other.DesignSpace),
	}
}

// Intersect returns the subset described by both sd and other.
func (sd SubsetDefinition) Intersect(other SubsetDefinition) SubsetDefinition {
	return SubsetDefinition{
		Codepoints:  sd.Codepoints.Intersect(other.Codepoints),
		Features:    sd.Features.Intersect(other.Features),
		DesignSpace: sd.DesignSpace.Intersect(other.DesignSpace),
	}
}

// Subtract returns the subset described by sd but not by other.
func (sd SubsetDefinition) Subtract(other SubsetDefinition) SubsetDefinition {
	return SubsetDefinition{
		Codepoints:  sd.Codepoints.Subtract(other.Codepoints),
		Features:    sd.Features.Subtract(other.Features),
		DesignSpace: sd.DesignSpace.Subtract(other.DesignSpace),
	}
}

func (sd SubsetDefinition) String() string {
	var parts []string
	if !sd.Codepoints.Empty() {
		parts = append(parts, sd.Codepoints.String())
	}
	if !sd.Features.Empty() {
		tags := make([]string, len(sd.Features))
		for i, t := range sd.Features {
			tags[i] = t.String()
		}
		parts = append(parts, "features["+strings.Join(tags, " ")+"]")
	}
	if !sd.DesignSpace.Empty() {
		segs := make([]string, len(sd.DesignSpace))
		for i, seg := range sd.DesignSpace {
			segs[i] = fmt.Sprintf("%s %g:%g", seg.Axis, seg.Lo.Float64(), seg.Hi.Float64())
		}
		parts = append(parts, "axes["+strings.Join(segs, " ")+"]")
	}
	if len(parts) == 0 {
		return "∅"
	}
	return strings.Join(parts, "+")
}
