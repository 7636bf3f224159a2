package iftmap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/npillmayer/ift/sfnt"
)

// TableTag is the tag of the patch-map table inside an incremental font.
var TableTag = sfnt.T("IFT ")

// PatchFormat identifies the binary format of a patch file.
type PatchFormat uint8

const (
	// TableKeyed patches replace, update or drop whole font tables.
	// Applying one changes table contents other patches may depend on,
	// which is why table-keyed entries usually carry invalidation edges.
	TableKeyed PatchFormat = 1
	// GlyphKeyed patches fill in data for individual glyph indices inside
	// the glyph data table. They commute with each other.
	GlyphKeyed PatchFormat = 2
)

func (pf PatchFormat) String() string {
	switch pf {
	case TableKeyed:
		return "table-keyed"
	case GlyphKeyed:
		return "glyph-keyed"
	}
	return fmt.Sprintf("format(%d)", uint8(pf))
}

func validPatchFormat(f uint8) bool {
	return f == uint8(TableKeyed) || f == uint8(GlyphKeyed)
}

// Entry is one row of the patch map: a patch the font's origin offers,
// the subset it extends the font by, and the entries it invalidates.
type Entry struct {
	// ID is the non-zero identifier of the entry, unique within one map
	// snapshot. It is interpolated into the map's URI template to locate
	// the patch file.
	ID uint32
	// Format is the binary format of the patch behind this entry.
	Format PatchFormat
	// Subset is the portion of the font this patch adds.
	Subset SubsetDefinition
	// Invalidates lists entries which become stale when this patch is
	// applied, sorted ascending. Invalidation edges form a directed
	// acyclic graph over the map.
	Invalidates []uint32
}

// Map is the parsed patch-map table of one font snapshot.
type Map struct {
	// CompatibilityID ties patches to map snapshots: a patch may only be
	// applied to a font whose map carries the same id.
	CompatibilityID [4]uint32
	// URITemplate locates patch files, entry ids fill its placeholder.
	URITemplate string
	// Flags is reserved, zero in canonical maps.
	Flags uint32
	// Entries in file order. An empty list means the font is fully
	// resolved, nothing more can be fetched.
	Entries []Entry
}

// ExpandURITemplate substitutes the decimal entry id for every "{id}"
// placeholder of a map's URI template. Templates without a placeholder
// cannot address per-entry patches and are rejected.
func ExpandURITemplate(template string, id uint32) (string, error) {
	if !strings.Contains(template, "{id}") {
		return "", fmt.Errorf("URI template %q has no {id} placeholder", template)
	}
	return strings.ReplaceAll(template, "{id}", strconv.FormatUint(uint64(id), 10)), nil
}

// Entry returns the entry with the given id, or nil.
func (m *Map) Entry(id uint32) *Entry {
	for i := range m.Entries {
		if m.Entries[i].ID == id {
			return &m.Entries[i]
		}
	}
	return nil
}

// IDs returns the entry ids in file order.
func (m *Map) IDs() []uint32 {
	ids := make([]uint32, len(m.Entries))
	for i := range m.Entries {
		ids[i] = m.Entries[i].ID
	}
	return ids
}

// Remove returns a copy of the map without the entries named by ids.
// Invalidation edges pointing at removed entries are pruned, so the result
// is canonical again. Ids without a matching entry are ignored.
func (m *Map) Remove(ids ...uint32) *Map {
	drop := make(map[uint32]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := &Map{
		CompatibilityID: m.CompatibilityID,
		URITemplate:     m.URITemplate,
		Flags:           m.Flags,
	}
	for _, e := range m.Entries {
		if drop[e.ID] {
			continue
		}
		kept := e
		kept.Invalidates = nil
		for _, inv := range e.Invalidates {
			if !drop[inv] {
				kept.Invalidates = append(kept.Invalidates, inv)
			}
		}
		out.Entries = append(out.Entries, kept)
	}
	return out
}
