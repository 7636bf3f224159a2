package iftmap

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/npillmayer/ift/sfnt"
)

// ErrNoPatchMap is returned by FromFont for fonts which do not carry a
// patch-map table. A font participating in incremental transfer always
// carries one, even if it is empty.
var ErrNoPatchMap = errors.New("font carries no patch-map table")

// ParseError describes a malformed patch-map table. Map errors are fatal
// and are detected before any patch is fetched.
type ParseError struct {
	Section string // structure within the table (e.g., "Header", "Entry 3")
	Issue   string // human-readable description of the issue
	Offset  int    // byte offset within the table (-1 if unknown)
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("patch map %s at offset %d: %s", e.Section, e.Offset, e.Issue)
	}
	return fmt.Sprintf("patch map %s: %s", e.Section, e.Issue)
}

func errMap(section, issue string, offset int) *ParseError {
	return &ParseError{Section: section, Issue: issue, Offset: offset}
}

// MaxEntryCount bounds the number of entries a map may declare, protecting
// against allocation sized by a corrupt count before any entry bytes are
// validated.
const MaxEntryCount = 0x10000

// headerLength is the fixed part of the table before the URI template.
const headerLength = 34

// majorVersion is the map format implemented here. Higher minor versions
// parse fine, unknown trailing data is ignored; a higher major version is
// rejected.
const majorVersion = 1

// reader is a bounds-checked cursor over the table bytes. The first
// out-of-bounds read poisons the reader, subsequent reads return zero
// values and the error is checked once per structure.
type reader struct {
	b   []byte
	pos int
	err error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = errMap("Table", "unexpected end of table", r.pos)
	}
}

func (r *reader) u8() uint8 {
	if r.err != nil || r.pos+1 > len(r.b) {
		r.fail()
		return 0
	}
	v := r.b[r.pos]
	r.pos++
	return v
}

func (r *reader) u16() uint16 {
	if r.err != nil || r.pos+2 > len(r.b) {
		r.fail()
		return 0
	}
	v := uint16(r.b[r.pos])<<8 | uint16(r.b[r.pos+1])
	r.pos += 2
	return v
}

func (r *reader) u32() uint32 {
	if r.err != nil || r.pos+4 > len(r.b) {
		r.fail()
		return 0
	}
	b := r.b[r.pos : r.pos+4]
	r.pos += 4
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil || n < 0 || r.pos+n > len(r.b) {
		r.fail()
		return nil
	}
	v := r.b[r.pos : r.pos+n]
	r.pos += n
	return v
}

// FromFont reads the patch map out of a font. Fonts without the table
// return ErrNoPatchMap.
func FromFont(f *sfnt.Font) (*Map, error) {
	table := f.Table(TableTag)
	if table == nil {
		return nil, ErrNoPatchMap
	}
	return Parse(table)
}

// Parse decodes a patch-map table. The input is validated completely:
// version, offsets, per-entry structure, ordering of ranges and id lists,
// uniqueness of entry ids and acyclicity of the invalidation graph. Maps
// with zero entries are valid, they mark a fully resolved font.
func Parse(table []byte) (*Map, error) {
	r := &reader{b: table}
	major := r.u16()
	minor := r.u16()
	flags := r.u32()
	var compat [4]uint32
	for i := range compat {
		compat[i] = r.u32()
	}
	entryCount := r.u32()
	entriesOffset := r.u32()
	templateLen := r.u16()
	template := r.bytes(int(templateLen))
	if r.err != nil {
		return nil, errMap("Header", "table too small", r.pos)
	}
	if major != majorVersion {
		return nil, errMap("Header", fmt.Sprintf("unsupported map version %d.%d", major, minor), 0)
	}
	if !utf8.Valid(template) {
		return nil, errMap("Header", "uri template is not valid UTF-8", headerLength)
	}
	if entryCount > MaxEntryCount {
		return nil, errMap("Header",
			fmt.Sprintf("entry count %d exceeds maximum %d", entryCount, MaxEntryCount), 24)
	}
	if int(entriesOffset) < headerLength+int(templateLen) || int(entriesOffset) > len(table) {
		return nil, errMap("Header",
			fmt.Sprintf("entries offset %d outside table of %d bytes", entriesOffset, len(table)), 28)
	}
	tracer().Debugf("patch map v%d.%d with %d entries, template %q", major, minor, entryCount, template)

	m := &Map{
		CompatibilityID: compat,
		URITemplate:     string(template),
		Flags:           flags,
	}
	r.pos = int(entriesOffset)
	seen := make(map[uint32]bool, entryCount)
	for i := 0; i < int(entryCount); i++ {
		section := fmt.Sprintf("Entry %d", i)
		start := r.pos
		e, err := parseEntry(r, section)
		if err != nil {
			return nil, err
		}
		if seen[e.ID] {
			return nil, errMap(section, fmt.Sprintf("duplicate entry id %d", e.ID), start)
		}
		seen[e.ID] = true
		m.Entries = append(m.Entries, e)
	}
	if r.pos < len(table) {
		tracer().Infof("patch map carries %d trailing bytes, ignored", len(table)-r.pos)
	}
	if err := validateAcyclic(m.Entries); err != nil {
		return nil, err
	}
	return m, nil
}

func parseEntry(r *reader, section string) (Entry, error) {
	start := r.pos
	e := Entry{}
	e.ID = r.u32()
	format := r.u8()
	reserved := r.u8()

	rangeCount := r.u16()
	ranges := make([]CodepointRange, 0, rangeCount)
	var prevLast int64 = -1
	for j := 0; j < int(rangeCount); j++ {
		first, last := r.u32(), r.u32()
		if r.err != nil {
			break
		}
		if first > last || last > 0x10ffff {
			return e, errMap(section, fmt.Sprintf("invalid codepoint range [%x,%x]", first, last), r.pos)
		}
		if int64(first) <= prevLast {
			return e, errMap(section, fmt.Sprintf("codepoint ranges out of order at [%x,%x]", first, last), r.pos)
		}
		prevLast = int64(last)
		ranges = append(ranges, CodepointRange{Low: rune(first), High: rune(last)})
	}

	featureCount := r.u16()
	features := make([]sfnt.Tag, 0, featureCount)
	var prevTag uint32
	for j := 0; j < int(featureCount); j++ {
		tag := r.u32()
		if r.err != nil {
			break
		}
		if j > 0 && tag <= prevTag {
			return e, errMap(section, fmt.Sprintf("feature tags out of order at %s", sfnt.Tag(tag)), r.pos)
		}
		prevTag = tag
		features = append(features, sfnt.Tag(tag))
	}

	segmentCount := r.u16()
	segments := make([]AxisSegment, 0, segmentCount)
	for j := 0; j < int(segmentCount); j++ {
		axis := sfnt.Tag(r.u32())
		lo := sfnt.Fixed(r.u32())
		hi := sfnt.Fixed(r.u32())
		if r.err != nil {
			break
		}
		if hi < lo {
			return e, errMap(section, fmt.Sprintf("axis %s segment empty: %g > %g", axis, lo.Float64(), hi.Float64()), r.pos)
		}
		if j > 0 {
			prev := segments[j-1]
			if axis < prev.Axis || (axis == prev.Axis && lo <= prev.Hi) {
				return e, errMap(section, fmt.Sprintf("axis segments out of order at %s", axis), r.pos)
			}
		}
		segments = append(segments, AxisSegment{Axis: axis, Lo: lo, Hi: hi})
	}

	invCount := r.u16()
	invalidates := make([]uint32, 0, invCount)
	var prevID uint32
	for j := 0; j < int(invCount); j++ {
		id := r.u32()
		if r.err != nil {
			break
		}
		if id == e.ID {
			return e, errMap(section, fmt.Sprintf("entry %d invalidates itself", e.ID), r.pos)
		}
		if j > 0 && id <= prevID {
			return e, errMap(section, fmt.Sprintf("invalidation ids out of order at %d", id), r.pos)
		}
		prevID = id
		invalidates = append(invalidates, id)
	}

	if r.err != nil {
		return e, errMap(section, "entry truncated", r.pos)
	}
	if e.ID == 0 {
		return e, errMap(section, "entry id must be non-zero", start)
	}
	if !validPatchFormat(format) {
		return e, errMap(section, fmt.Sprintf("unknown patch format %d", format), start+4)
	}
	if reserved != 0 {
		return e, errMap(section, fmt.Sprintf("reserved byte is %d, must be zero", reserved), start+5)
	}
	e.Format = PatchFormat(format)
	e.Subset = SubsetDefinition{
		Codepoints:  CodepointSetOfRanges(ranges...),
		Features:    NewFeatureSet(features...),
		DesignSpace: NewDesignSpace(segments...),
	}
	e.Invalidates = invalidates
	return e, nil
}

// validateAcyclic rejects cycles in the invalidation graph. Edges to ids
// no longer present in the map are allowed, they arise naturally when a
// map is rewritten after patches were applied.
func validateAcyclic(entries []Entry) error {
	index := make(map[uint32]int, len(entries))
	for i := range entries {
		index[entries[i].ID] = i
	}
	const (
		white = iota
		grey
		black
	)
	color := make([]uint8, len(entries))
	for root := range entries {
		if color[root] != white {
			continue
		}
		// iterative DFS, frame = (node, next edge index)
		type frame struct{ node, edge int }
		stack := []frame{{root, 0}}
		color[root] = grey
		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			if f.edge >= len(entries[f.node].Invalidates) {
				color[f.node] = black
				stack = stack[:len(stack)-1]
				continue
			}
			target := entries[f.node].Invalidates[f.edge]
			f.edge++
			next, ok := index[target]
			if !ok {
				continue // dangling edge
			}
			switch color[next] {
			case grey:
				return errMap("Invalidation",
					fmt.Sprintf("cycle through entries %d and %d", entries[f.node].ID, target), -1)
			case white:
				color[next] = grey
				stack = append(stack, frame{next, 0})
			}
		}
	}
	return nil
}
