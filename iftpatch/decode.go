package iftpatch

import (
	"bytes"
	"encoding/binary"

	"github.com/npillmayer/ift/sfnt"
)

// Operation flag bits of table-keyed patches. A zero flags byte denotes a
// delta operation.
const (
	opFlagReplace = 0x01
	opFlagDrop    = 0x02
)

const (
	tableKeyedHeaderLength = 26
	tableOpHeaderLength    = 22
	glyphKeyedHeaderLength = 32
)

func u16at(b []byte, i int) uint16 {
	return uint16(b[i])<<8 | uint16(b[i+1])
}

func u32at(b []byte, i int) uint32 {
	return uint32(b[i])<<24 | uint32(b[i+1])<<16 | uint32(b[i+2])<<8 | uint32(b[i+3])
}

// Decode parses a binary patch of either format, using dec to expand
// compressed payloads. Replace payloads and glyph data are decompressed
// and verified here; delta streams stay compressed inside the returned
// patch until they meet their dictionary at apply time.
func Decode(raw []byte, dec Decoder) (*Patch, error) {
	if len(raw) < 4 {
		return nil, errDecode(0, "patch of %d bytes is too short", len(raw))
	}
	switch format := sfnt.Tag(u32at(raw, 0)); format {
	case TableKeyedTag:
		return decodeTableKeyed(raw, dec)
	case GlyphKeyedTag:
		return decodeGlyphKeyed(raw, dec)
	default:
		return nil, errDecode(0, "unknown patch format %s", format)
	}
}

type tableKeyedHeader struct {
	Format     uint32
	Reserved   uint32
	CompatID   [4]uint32
	PatchCount uint16
}

func decodeTableKeyed(raw []byte, dec Decoder) (*Patch, error) {
	h := tableKeyedHeader{}
	if err := binary.Read(bytes.NewReader(raw), binary.BigEndian, &h); err != nil {
		return nil, errDecode(TableKeyedTag, "envelope truncated at %d bytes", len(raw))
	}
	if h.Reserved != 0 {
		return nil, errDecode(TableKeyedTag, "reserved field is %#x, must be zero", h.Reserved)
	}
	n := int(h.PatchCount)
	offsetsEnd := tableKeyedHeaderLength + 4*(n+1)
	if offsetsEnd > len(raw) {
		return nil, errDecode(TableKeyedTag, "offset array for %d operations exceeds patch size", n)
	}
	offsets := make([]uint32, n+1)
	for i := range offsets {
		offsets[i] = u32at(raw, tableKeyedHeaderLength+4*i)
	}
	if int(offsets[0]) < offsetsEnd || int(offsets[n]) > len(raw) {
		return nil, errDecode(TableKeyedTag, "operation offsets [%d,%d] outside patch of %d bytes",
			offsets[0], offsets[n], len(raw))
	}
	for i := 0; i < n; i++ {
		if offsets[i+1] <= offsets[i] {
			return nil, errDecode(TableKeyedTag, "operation offsets not strictly increasing at %d", i)
		}
	}
	tracer().Debugf("table-keyed patch with %d operations", n)
	p := &Patch{Format: TableKeyedTag, CompatibilityID: h.CompatID}
	for i := 0; i < n; i++ {
		op, err := decodeTableOp(raw[offsets[i]:offsets[i+1]], i, dec)
		if err != nil {
			return nil, err
		}
		p.Ops = append(p.Ops, op)
	}
	return p, nil
}

type tableOpHeader struct {
	Table                uint32
	Flags                uint8
	Reserved             uint8
	UncompressedLength   uint32
	UncompressedChecksum uint32
	SourceLength         uint32
	SourceChecksum       uint32
}

func decodeTableOp(region []byte, idx int, dec Decoder) (TableOp, error) {
	op := TableOp{}
	h := tableOpHeader{}
	if err := binary.Read(bytes.NewReader(region), binary.BigEndian, &h); err != nil {
		return op, errDecode(TableKeyedTag, "operation %d truncated", idx)
	}
	if h.Reserved != 0 {
		return op, errDecode(TableKeyedTag, "operation %d: reserved byte is %d", idx, h.Reserved)
	}
	op.Table = sfnt.Tag(h.Table)
	op.UncompressedLength = h.UncompressedLength
	op.UncompressedChecksum = h.UncompressedChecksum
	op.SourceLength = h.SourceLength
	op.SourceChecksum = h.SourceChecksum
	stream := region[tableOpHeaderLength:]
	switch h.Flags {
	case 0:
		op.Kind = OpDelta
		if len(stream) == 0 {
			return op, errDecode(TableKeyedTag, "operation %d (%s): delta without stream", idx, op.Table)
		}
		op.Stream = stream
	case opFlagReplace:
		op.Kind = OpReplace
		if h.SourceLength != 0 || h.SourceChecksum != 0 {
			return op, errDecode(TableKeyedTag,
				"operation %d (%s): replace must not constrain a source table", idx, op.Table)
		}
		data, err := dec.Decode(stream, nil, int(h.UncompressedLength))
		if err != nil {
			return op, errDecode(TableKeyedTag, "operation %d (%s): %v", idx, op.Table, err)
		}
		if len(data) != int(h.UncompressedLength) {
			return op, errDecode(TableKeyedTag,
				"operation %d (%s): payload is %d bytes, declared %d", idx, op.Table, len(data), h.UncompressedLength)
		}
		if sfnt.Checksum(data) != h.UncompressedChecksum {
			return op, errDecode(TableKeyedTag,
				"operation %d (%s): payload checksum mismatch", idx, op.Table)
		}
		op.Data = data
	case opFlagDrop:
		op.Kind = OpDrop
		if len(stream) != 0 {
			return op, errDecode(TableKeyedTag, "operation %d (%s): drop carries a stream", idx, op.Table)
		}
		if h.UncompressedLength != 0 || h.UncompressedChecksum != 0 || h.SourceLength != 0 || h.SourceChecksum != 0 {
			return op, errDecode(TableKeyedTag, "operation %d (%s): drop carries payload fields", idx, op.Table)
		}
	default:
		return op, errDecode(TableKeyedTag, "operation %d (%s): invalid flags %#02x", idx, op.Table, h.Flags)
	}
	return op, nil
}

type glyphKeyedHeader struct {
	Format               uint32
	Reserved             uint32
	CompatID             [4]uint32
	UncompressedLength   uint32
	UncompressedChecksum uint32
}

func decodeGlyphKeyed(raw []byte, dec Decoder) (*Patch, error) {
	h := glyphKeyedHeader{}
	if err := binary.Read(bytes.NewReader(raw), binary.BigEndian, &h); err != nil {
		return nil, errDecode(GlyphKeyedTag, "envelope truncated at %d bytes", len(raw))
	}
	if h.Reserved != 0 {
		return nil, errDecode(GlyphKeyedTag, "reserved field is %#x, must be zero", h.Reserved)
	}
	payload, err := dec.Decode(raw[glyphKeyedHeaderLength:], nil, int(h.UncompressedLength))
	if err != nil {
		return nil, errDecode(GlyphKeyedTag, "glyph data: %v", err)
	}
	if len(payload) != int(h.UncompressedLength) {
		return nil, errDecode(GlyphKeyedTag,
			"glyph data is %d bytes, declared %d", len(payload), h.UncompressedLength)
	}
	if sfnt.Checksum(payload) != h.UncompressedChecksum {
		return nil, errDecode(GlyphKeyedTag, "glyph data checksum mismatch")
	}
	p := &Patch{Format: GlyphKeyedTag, CompatibilityID: h.CompatID}
	if p.DataTable, p.Glyphs, err = parseGlyphData(payload); err != nil {
		return nil, err
	}
	tracer().Debugf("glyph-keyed patch with %d glyphs for table %s", len(p.Glyphs), p.DataTable)
	return p, nil
}

// parseGlyphData splits the decompressed payload of a glyph-keyed patch
// into per-glyph byte slices. Glyph ids must be strictly ascending, data
// offsets non-decreasing; an empty slice between two equal offsets is an
// empty glyph.
func parseGlyphData(payload []byte) (sfnt.Tag, []GlyphBlob, error) {
	if len(payload) < 8 {
		return 0, nil, errDecode(GlyphKeyedTag, "glyph data of %d bytes is too short", len(payload))
	}
	dataTable := sfnt.Tag(u32at(payload, 0))
	flags := u16at(payload, 4)
	count := int(u16at(payload, 6))
	if flags != 0 {
		return 0, nil, errDecode(GlyphKeyedTag, "reserved glyph data flags %#04x", flags)
	}
	base := 8 + 2*count + 4*(count+1)
	if base > len(payload) {
		return 0, nil, errDecode(GlyphKeyedTag, "glyph data index for %d glyphs exceeds payload", count)
	}
	blobs := make([]GlyphBlob, count)
	for i := 0; i < count; i++ {
		gid := u16at(payload, 8+2*i)
		if i > 0 && gid <= uint16(blobs[i-1].GID) {
			return 0, nil, errDecode(GlyphKeyedTag, "glyph ids not ascending at %d", gid)
		}
		blobs[i].GID = sfnt.GlyphIndex(gid)
	}
	offsetBase := 8 + 2*count
	prev := uint32(base)
	offsets := make([]uint32, count+1)
	for i := range offsets {
		offsets[i] = u32at(payload, offsetBase+4*i)
		if offsets[i] < prev || int(offsets[i]) > len(payload) {
			return 0, nil, errDecode(GlyphKeyedTag, "glyph data offsets corrupt at %d", i)
		}
		prev = offsets[i]
	}
	for i := 0; i < count; i++ {
		blobs[i].Data = payload[offsets[i]:offsets[i+1]]
	}
	return dataTable, blobs, nil
}
