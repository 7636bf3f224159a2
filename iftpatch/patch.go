package iftpatch

import (
	"github.com/npillmayer/ift/sfnt"
)

// Format tags of the two patch flavours, found in the first four bytes of
// every patch file.
var (
	TableKeyedTag = sfnt.T("iftk")
	GlyphKeyedTag = sfnt.T("ifgk")
)

// OpKind is the kind of a table operation within a table-keyed patch.
type OpKind uint8

const (
	OpDelta   OpKind = iota // transform the current table bytes with a delta stream
	OpReplace               // set the table to the shipped payload
	OpDrop                  // remove the table from the font
)

func (k OpKind) String() string {
	switch k {
	case OpDelta:
		return "delta"
	case OpReplace:
		return "replace"
	case OpDrop:
		return "drop"
	}
	return "unknown"
}

// TableOp is one operation of a table-keyed patch.
//
// For OpReplace, Data holds the fully decoded replacement table; replace
// payloads are decompressed and verified during Decode. For OpDelta, Stream
// holds the still-compressed delta, which can only be expanded at apply
// time when the current table bytes are available as the compression
// dictionary; the Source fields pin down which table bytes the delta was
// computed against. OpDrop carries no payload.
type TableOp struct {
	Table                sfnt.Tag
	Kind                 OpKind
	Data                 []byte // decoded replacement (OpReplace)
	Stream               []byte // compressed delta stream (OpDelta)
	SourceLength         uint32 // required length of the current table (OpDelta)
	SourceChecksum       uint32 // required checksum of the current table (OpDelta)
	UncompressedLength   uint32
	UncompressedChecksum uint32
}

// GlyphBlob is the outline data for a single glyph id, as carried by a
// glyph-keyed patch. Empty data is legal and yields an empty glyph.
type GlyphBlob struct {
	GID  sfnt.GlyphIndex
	Data []byte
}

// Patch is a decoded incremental font patch. Format selects which of the
// remaining fields are meaningful: Ops for table-keyed patches, DataTable
// and Glyphs for glyph-keyed ones.
//
// CompatibilityID names the patch-map generation this patch belongs to.
// Callers compare it against the id of the map which advertised the patch
// and reject strays before applying anything.
type Patch struct {
	Format          sfnt.Tag
	CompatibilityID [4]uint32
	Ops             []TableOp
	DataTable       sfnt.Tag
	Glyphs          []GlyphBlob
}
