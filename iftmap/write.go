package iftmap

import (
	"fmt"
	"sort"

	"github.com/npillmayer/ift/sfnt"
)

// writer collects big-endian table bytes. It is the inverse of reader and
// cannot fail, size limits are checked before anything is emitted.
type writer struct {
	b []byte
}

func (w *writer) u8(v uint8) { w.b = append(w.b, v) }
func (w *writer) u16(v uint16) {
	w.b = append(w.b, byte(v>>8), byte(v))
}
func (w *writer) u32(v uint32) {
	w.b = append(w.b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// Bytes serializes the map into its canonical table form: entries ordered
// by ascending id, entry data immediately following the header, all sets
// in their normalized representation. Parsing the result yields an equal
// map, and re-serializing a parsed canonical table reproduces it byte for
// byte.
func (m *Map) Bytes() ([]byte, error) {
	if len(m.URITemplate) > 0xffff {
		return nil, fmt.Errorf("uri template of %d bytes exceeds maximum", len(m.URITemplate))
	}
	if len(m.Entries) > MaxEntryCount {
		return nil, fmt.Errorf("%d entries exceed maximum %d", len(m.Entries), MaxEntryCount)
	}
	order := make([]int, len(m.Entries))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return m.Entries[order[a]].ID < m.Entries[order[b]].ID
	})
	seen := make(map[uint32]bool, len(m.Entries))
	for _, i := range order {
		e := &m.Entries[i]
		if e.ID == 0 {
			return nil, fmt.Errorf("entry id must be non-zero")
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("duplicate entry id %d", e.ID)
		}
		seen[e.ID] = true
		if !validPatchFormat(uint8(e.Format)) {
			return nil, fmt.Errorf("entry %d: unknown patch format %d", e.ID, e.Format)
		}
	}
	if err := validateAcyclic(m.Entries); err != nil {
		return nil, err
	}

	w := &writer{b: make([]byte, 0, headerLength+len(m.URITemplate)+32*len(m.Entries))}
	w.u16(majorVersion)
	w.u16(0)
	w.u32(m.Flags)
	for _, v := range m.CompatibilityID {
		w.u32(v)
	}
	w.u32(uint32(len(m.Entries)))
	w.u32(uint32(headerLength + len(m.URITemplate)))
	w.u16(uint16(len(m.URITemplate)))
	w.b = append(w.b, m.URITemplate...)

	for _, i := range order {
		if err := writeEntry(w, &m.Entries[i]); err != nil {
			return nil, err
		}
	}
	return w.b, nil
}

func writeEntry(w *writer, e *Entry) error {
	ranges := e.Subset.Codepoints.Ranges()
	features := []sfnt.Tag(e.Subset.Features)
	segments := []AxisSegment(e.Subset.DesignSpace)
	if len(ranges) > 0xffff || len(features) > 0xffff || len(segments) > 0xffff || len(e.Invalidates) > 0xffff {
		return fmt.Errorf("entry %d: list too long for table format", e.ID)
	}
	w.u32(e.ID)
	w.u8(uint8(e.Format))
	w.u8(0)
	w.u16(uint16(len(ranges)))
	for _, r := range ranges {
		if r.Low < 0 || r.High > 0x10ffff {
			return fmt.Errorf("entry %d: codepoint range [%x,%x] out of range", e.ID, r.Low, r.High)
		}
		w.u32(uint32(r.Low))
		w.u32(uint32(r.High))
	}
	w.u16(uint16(len(features)))
	for _, tag := range features {
		w.u32(uint32(tag))
	}
	w.u16(uint16(len(segments)))
	for _, s := range segments {
		w.u32(uint32(s.Axis))
		w.u32(uint32(s.Lo))
		w.u32(uint32(s.Hi))
	}
	inv := make([]uint32, len(e.Invalidates))
	copy(inv, e.Invalidates)
	sort.Slice(inv, func(a, b int) bool { return inv[a] < inv[b] })
	w.u16(uint16(len(inv)))
	for j, id := range inv {
		if id == e.ID {
			return fmt.Errorf("entry %d invalidates itself", e.ID)
		}
		if j > 0 && id == inv[j-1] {
			return fmt.Errorf("entry %d: duplicate invalidation id %d", e.ID, id)
		}
		w.u32(id)
	}
	return nil
}
