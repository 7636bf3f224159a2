package sfnt

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// The engine needs structural access to a handful of tables: 'head' for the
// loca format and the checksum adjustment, 'maxp' for the glyph count, and
// 'loca' as the offset index into the outline table. All other tables are
// opaque byte segments.

// headMagic is the fixed magicNumber field of table 'head'.
const headMagic = 0x5f0f3cf5

// Head gives global information about the font, table 'head'.
// It mirrors the 54-byte binary layout field by field.
type Head struct {
	Version            Fixed
	FontRevision       Fixed
	ChecksumAdjustment uint32
	MagicNumber        uint32
	Flags              uint16
	UnitsPerEm         uint16 // values 16 … 16384 are valid
	Created            int64
	Modified           int64
	XMin, YMin         int16
	XMax, YMax         int16
	MacStyle           uint16
	LowestRecPPEM      uint16
	FontDirectionHint  int16
	IndexToLocFormat   int16 // needed to interpret the loca table: 0 = short, 1 = long
	GlyphDataFormat    int16
}

// headLength is the byte size of table 'head'.
const headLength = 54

// ParseHead reads table 'head' from its binary representation.
func ParseHead(b []byte) (*Head, error) {
	h := &Head{}
	if err := binary.Read(bytes.NewReader(b), binary.BigEndian, h); err != nil {
		return nil, errFormat(T("head"), "Size",
			fmt.Sprintf("head table too small: %d bytes (need %d)", len(b), headLength), 0)
	}
	if h.MagicNumber != headMagic {
		return nil, errFormat(T("head"), "MagicNumber",
			fmt.Sprintf("invalid magic number %08x", h.MagicNumber), 12)
	}
	if h.IndexToLocFormat != 0 && h.IndexToLocFormat != 1 {
		return nil, errFormat(T("head"), "IndexToLocFormat",
			fmt.Sprintf("invalid loca format %d", h.IndexToLocFormat), 50)
	}
	return h, nil
}

// Encode returns the binary representation of the head table.
func (h *Head) Encode() []byte {
	buf := &bytes.Buffer{}
	buf.Grow(headLength)
	_ = binary.Write(buf, binary.BigEndian, h)
	return buf.Bytes()
}

// Head parses table 'head' of the font.
func (f *Font) Head() (*Head, error) {
	b := f.Table(T("head"))
	if b == nil {
		return nil, errFormat(T("head"), "Missing", "missing required table", 0)
	}
	return ParseHead(b)
}

// --- MaxP table ------------------------------------------------------------

// MaxP establishes the memory requirements for this font, table 'maxp'.
// The table contains a count for the number of glyphs in the font.
// Whenever this value changes, other tables which depend on it should also
// be updated; the incremental transfer formats keep it constant, glyph
// transfer fills in data for already allocated glyph indices.
type MaxP struct {
	Version   Fixed
	NumGlyphs int
}

// ParseMaxP reads table 'maxp' from its binary representation. Version 0.5
// (CFF outlines) and version 1.0 (TrueType outlines) both carry the glyph
// count in the same position.
func ParseMaxP(b []byte) (*MaxP, error) {
	seg := binarySegm(b)
	version, err := seg.u32(0)
	if err != nil {
		return nil, errFormat(T("maxp"), "Size",
			fmt.Sprintf("maxp table too small: %d bytes", len(b)), 0)
	}
	n, err := seg.u16(4)
	if err != nil {
		return nil, errFormat(T("maxp"), "Size",
			fmt.Sprintf("maxp table too small: %d bytes", len(b)), 0)
	}
	return &MaxP{Version: Fixed(version), NumGlyphs: int(n)}, nil
}

// MaxP parses table 'maxp' of the font.
func (f *Font) MaxP() (*MaxP, error) {
	b := f.Table(T("maxp"))
	if b == nil {
		return nil, errFormat(T("maxp"), "Missing", "missing required table", 0)
	}
	return ParseMaxP(b)
}

// --- Loca table ------------------------------------------------------------

// Loca is the index-to-location table: offsets into the glyph data table,
// one per glyph plus a final sentinel, so that glyph i occupies the bytes
// [Offsets[i], Offsets[i+1]) of the data table. The short version stores
// halved 16-bit offsets, the long version plain 32-bit offsets; which one a
// font uses is recorded in head.IndexToLocFormat.
type Loca struct {
	Long    bool
	Offsets []uint32
}

// ParseLoca reads a loca table with numGlyphs+1 entries. Offsets must be
// monotonically non-decreasing; the glyph splicing machinery depends on it
// and corrupt input is rejected here rather than propagated.
func ParseLoca(b []byte, numGlyphs int, long bool) (*Loca, error) {
	if numGlyphs < 0 {
		return nil, errFormat(T("loca"), "Entries", fmt.Sprintf("invalid glyph count %d", numGlyphs), 0)
	}
	entries := numGlyphs + 1
	entrySize := 2
	if long {
		entrySize = 4
	}
	required, err := checkedMulInt(entries, entrySize)
	if err != nil {
		return nil, errFormat(T("loca"), "Entries", fmt.Sprintf("entry count too large: %v", err), 0)
	}
	if required > len(b) {
		return nil, errFormat(T("loca"), "Size",
			fmt.Sprintf("loca table too small: %d entries require %d bytes, have %d", entries, required, len(b)), 0)
	}
	seg := binarySegm(b)
	l := &Loca{Long: long, Offsets: make([]uint32, entries)}
	for i := 0; i < entries; i++ {
		if long {
			l.Offsets[i], _ = seg.u32(i * 4)
		} else {
			off, _ := seg.u16(i * 2)
			l.Offsets[i] = uint32(off) * 2
		}
		if i > 0 && l.Offsets[i] < l.Offsets[i-1] {
			return nil, errFormat(T("loca"), "Offsets",
				fmt.Sprintf("offsets not monotonic: entry %d is %d after %d", i, l.Offsets[i], l.Offsets[i-1]), uint32(i*entrySize))
		}
	}
	return l, nil
}

// NeedsLong reports whether the offsets can no longer be represented in the
// short format, i.e. some offset is odd or exceeds 2·0xFFFF.
func (l *Loca) NeedsLong() bool {
	for _, off := range l.Offsets {
		if off&1 != 0 || off > 0xffff*2 {
			return true
		}
	}
	return false
}

// Encode returns the binary representation of the loca table, in the short
// or long format per l.Long. Encoding offsets in the short format which
// require the long one is an error; callers upgrade l.Long (and the loca
// format in 'head') first, see NeedsLong.
func (l *Loca) Encode() ([]byte, error) {
	if !l.Long && l.NeedsLong() {
		return nil, errFormat(T("loca"), "Offsets", "offsets exceed short format", 0)
	}
	entrySize := 2
	if l.Long {
		entrySize = 4
	}
	b := make([]byte, len(l.Offsets)*entrySize)
	for i, off := range l.Offsets {
		if l.Long {
			putU32(b[i*4:], off)
		} else {
			putU16(b[i*2:], uint16(off/2))
		}
	}
	return b, nil
}

// Loca parses the loca table of the font, taking the offset format from
// 'head' and the entry count from 'maxp'.
func (f *Font) Loca() (*Loca, error) {
	head, err := f.Head()
	if err != nil {
		return nil, err
	}
	maxp, err := f.MaxP()
	if err != nil {
		return nil, err
	}
	b := f.Table(T("loca"))
	if b == nil {
		return nil, errFormat(T("loca"), "Missing", "missing required table", 0)
	}
	return ParseLoca(b, maxp.NumGlyphs, head.IndexToLocFormat == 1)
}
