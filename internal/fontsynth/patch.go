package fontsynth

import (
	"bytes"
	"sort"

	"github.com/andybalholm/brotli"
	"github.com/npillmayer/ift/sfnt"
)

// Compress encodes data as a brotli stream, against dict as the custom
// dictionary if non-nil. This is the encoder counterpart of the decoding
// the patch engine performs.
func Compress(data, dict []byte) []byte {
	out := bytes.Buffer{}
	w := brotli.NewWriterOptions(&out, brotli.WriterOptions{
		Quality:    9,
		Dictionary: dict,
	})
	if _, err := w.Write(data); err != nil {
		panic("fontsynth: brotli encoding failed: " + err.Error())
	}
	if err := w.Close(); err != nil {
		panic("fontsynth: brotli encoding failed: " + err.Error())
	}
	return out.Bytes()
}

// PatchOp is one prepared operation of a table-keyed patch.
type PatchOp struct {
	table                sfnt.Tag
	flags                uint8
	uncompressedLength   uint32
	uncompressedChecksum uint32
	sourceLength         uint32
	sourceChecksum       uint32
	stream               []byte
}

// ReplaceOp prepares an operation setting table to payload.
func ReplaceOp(table sfnt.Tag, payload []byte) PatchOp {
	return PatchOp{
		table:                table,
		flags:                0x01,
		uncompressedLength:   uint32(len(payload)),
		uncompressedChecksum: sfnt.Checksum(payload),
		stream:               Compress(payload, nil),
	}
}

// DeltaOp prepares an operation transforming table from source to result,
// with the delta stream compressed against source as the dictionary.
func DeltaOp(table sfnt.Tag, source, result []byte) PatchOp {
	return PatchOp{
		table:                table,
		uncompressedLength:   uint32(len(result)),
		uncompressedChecksum: sfnt.Checksum(result),
		sourceLength:         uint32(len(source)),
		sourceChecksum:       sfnt.Checksum(source),
		stream:               Compress(result, source),
	}
}

// DropOp prepares an operation removing table from the font.
func DropOp(table sfnt.Tag) PatchOp {
	return PatchOp{table: table, flags: 0x02}
}

// TableKeyedPatch assembles a binary 'iftk' patch from prepared
// operations.
func TableKeyedPatch(compat [4]uint32, ops ...PatchOp) []byte {
	b := buf{}
	b.str("iftk")
	b.u32(0)
	for _, v := range compat {
		b.u32(v)
	}
	b.u16(uint16(len(ops)))
	pos := uint32(26 + 4*(len(ops)+1))
	b.u32(pos)
	for _, op := range ops {
		pos += uint32(22 + len(op.stream))
		b.u32(pos)
	}
	for _, op := range ops {
		b.u32(uint32(op.table))
		b.u8(op.flags)
		b.u8(0)
		b.u32(op.uncompressedLength)
		b.u32(op.uncompressedChecksum)
		b.u32(op.sourceLength)
		b.u32(op.sourceChecksum)
		b.raw(op.stream)
	}
	return b
}

// Glyph pairs a glyph id with its replacement outline for GlyphKeyedPatch.
type Glyph struct {
	GID  uint16
	Data []byte
}

// GlyphKeyedPatch assembles a binary 'ifgk' patch carrying outlines for
// the glyf table. Glyphs are sorted by id as the format requires.
func GlyphKeyedPatch(compat [4]uint32, glyphs ...Glyph) []byte {
	gs := append([]Glyph(nil), glyphs...)
	sort.Slice(gs, func(i, j int) bool { return gs[i].GID < gs[j].GID })

	payload := buf{}
	payload.str("glyf")
	payload.u16(0) // flags
	payload.u16(uint16(len(gs)))
	for _, g := range gs {
		payload.u16(g.GID)
	}
	pos := uint32(8 + 2*len(gs) + 4*(len(gs)+1))
	payload.u32(pos)
	for _, g := range gs {
		pos += uint32(len(g.Data))
		payload.u32(pos)
	}
	for _, g := range gs {
		payload.raw(g.Data)
	}

	b := buf{}
	b.str("ifgk")
	b.u32(0)
	for _, v := range compat {
		b.u32(v)
	}
	b.u32(uint32(len(payload)))
	b.u32(sfnt.Checksum(payload))
	b.raw(Compress(payload, nil))
	return b
}
