// Package fontsynth builds small synthetic TrueType fonts and binary
// patches for tests. The fonts are complete: they parse with independent
// sfnt implementations, every glyph is a valid outline, and cmap, metrics
// and naming are consistent with the glyph set.
//
// Everything here is deterministic, identical inputs yield identical
// bytes.
package fontsynth

import (
	"math/bits"
	"sort"

	"github.com/npillmayer/ift/iftmap"
	"github.com/npillmayer/ift/sfnt"
)

// UnitsPerEm of all synthetic fonts.
const UnitsPerEm = 1000

type buf []byte

func (b *buf) u8(v uint8) { *b = append(*b, v) }

func (b *buf) u16(v uint16) {
	*b = append(*b, byte(v>>8), byte(v))
}

func (b *buf) u32(v uint32) {
	*b = append(*b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (b *buf) i16(v int16)  { b.u16(uint16(v)) }
func (b *buf) raw(p []byte) { *b = append(*b, p...) }
func (b *buf) str(s string) { *b = append(*b, s...) }

// Outline returns the glyf record of a rectangle glyph spanning (50,0) to
// (50+width,700): one contour, four on-curve points, no instructions.
func Outline(width int16) []byte {
	b := buf{}
	b.i16(1) // numberOfContours
	b.i16(50)
	b.i16(0)
	b.i16(50 + width)
	b.i16(700)
	b.u16(3) // endPtsOfContours[0]
	b.u16(0) // instructionLength
	b.raw([]byte{1, 1, 1, 1})
	b.i16(50)
	b.i16(width)
	b.i16(0)
	b.i16(-width)
	b.i16(0)
	b.i16(0)
	b.i16(700)
	b.i16(0)
	return b
}

// GlyphWidth is the rectangle width used for a glyph id by New, exposed so
// tests can predict and rebuild outlines.
func GlyphWidth(gid int) int16 {
	return int16(400 + 10*gid)
}

// New builds a font covering exactly the given runes. Glyph ids are
// assigned in rune order starting at 1, id 0 is an empty .notdef. Runes
// must lie in the basic multilingual plane below U+FFFF.
func New(runes ...rune) *sfnt.Font {
	rs := normalizeRunes(runes)
	n := len(rs) + 1

	glyf := []byte{}
	offsets := make([]uint32, n+1)
	widths := make([]int16, n)
	for gid := 1; gid < n; gid++ {
		offsets[gid] = uint32(len(glyf))
		widths[gid] = GlyphWidth(gid)
		glyf = append(glyf, Outline(widths[gid])...)
	}
	offsets[n] = uint32(len(glyf))
	loca := &sfnt.Loca{Offsets: offsets}
	locaBytes, err := loca.Encode()
	if err != nil {
		panic("fontsynth: loca encoding failed: " + err.Error())
	}

	maxWidth := int16(0)
	for _, w := range widths {
		if w > maxWidth {
			maxWidth = w
		}
	}
	f := sfnt.New(sfnt.ScalerTrueType)
	f.SetTable(sfnt.T("glyf"), glyf)
	f.SetTable(sfnt.T("loca"), locaBytes)
	f.SetTable(sfnt.T("head"), buildHead(maxWidth))
	f.SetTable(sfnt.T("maxp"), buildMaxP(n))
	f.SetTable(sfnt.T("hhea"), buildHhea(n, widths, maxWidth))
	f.SetTable(sfnt.T("hmtx"), buildHmtx(widths))
	f.SetTable(sfnt.T("cmap"), buildCmap(rs))
	f.SetTable(sfnt.T("name"), buildName())
	f.SetTable(sfnt.T("post"), buildPost())
	f.SetTable(sfnt.T("OS/2"), buildOS2(rs))
	return f
}

// Bytes is New followed by serialization.
func Bytes(runes ...rune) []byte {
	raw, err := New(runes...).Bytes()
	if err != nil {
		panic("fontsynth: font serialization failed: " + err.Error())
	}
	return raw
}

// AttachMap serializes a patch map into the font's 'IFT ' table.
func AttachMap(f *sfnt.Font, m *iftmap.Map) {
	raw, err := m.Bytes()
	if err != nil {
		panic("fontsynth: map serialization failed: " + err.Error())
	}
	f.SetTable(iftmap.TableTag, raw)
}

// GID returns the glyph id New assigned to a rune.
func GID(runes []rune, r rune) uint16 {
	rs := normalizeRunes(runes)
	for i, c := range rs {
		if c == r {
			return uint16(i + 1)
		}
	}
	return 0
}

func normalizeRunes(runes []rune) []rune {
	rs := append([]rune(nil), runes...)
	sort.Slice(rs, func(i, j int) bool { return rs[i] < rs[j] })
	out := rs[:0]
	for i, r := range rs {
		if r < 0x20 || r >= 0xffff {
			panic("fontsynth: rune outside supported range")
		}
		if i > 0 && r == rs[i-1] {
			continue
		}
		out = append(out, r)
	}
	return out
}

func buildHead(maxWidth int16) []byte {
	h := sfnt.Head{
		Version:           0x00010000,
		FontRevision:      0x00010000,
		MagicNumber:       0x5f0f3cf5,
		Flags:             0x0003,
		UnitsPerEm:        UnitsPerEm,
		XMin:              50,
		YMin:              0,
		XMax:              50 + maxWidth,
		YMax:              700,
		LowestRecPPEM:     8,
		FontDirectionHint: 2,
	}
	return h.Encode()
}

func buildMaxP(numGlyphs int) []byte {
	b := buf{}
	b.u32(0x00010000)
	b.u16(uint16(numGlyphs))
	b.u16(4) // maxPoints
	b.u16(1) // maxContours
	b.u16(0) // maxCompositePoints
	b.u16(0) // maxCompositeContours
	b.u16(2) // maxZones
	for i := 0; i < 8; i++ {
		b.u16(0)
	}
	return b
}

func buildHhea(numGlyphs int, widths []int16, maxWidth int16) []byte {
	b := buf{}
	b.u32(0x00010000)
	b.i16(800)  // ascender
	b.i16(-200) // descender
	b.i16(90)   // lineGap
	advanceWidthMax := uint16(maxWidth) + 100
	b.u16(advanceWidthMax)
	b.i16(0)             // minLeftSideBearing (empty .notdef)
	b.i16(50)            // minRightSideBearing
	b.i16(50 + maxWidth) // xMaxExtent
	b.i16(1)             // caretSlopeRise
	b.i16(0)             // caretSlopeRun
	b.i16(0)             // caretOffset
	for i := 0; i < 4; i++ {
		b.i16(0)
	}
	b.i16(0)                 // metricDataFormat
	b.u16(uint16(numGlyphs)) // numberOfHMetrics
	return b
}

func buildHmtx(widths []int16) []byte {
	b := buf{}
	for gid, w := range widths {
		if gid == 0 {
			b.u16(500)
			b.i16(0)
			continue
		}
		b.u16(uint16(w) + 100)
		b.i16(50)
	}
	return b
}

func buildCmap(rs []rune) []byte {
	type segment struct {
		start, end, delta uint16
	}
	segs := []segment{}
	for i := 0; i < len(rs); {
		j := i
		for j+1 < len(rs) && rs[j+1] == rs[j]+1 {
			j++
		}
		gid := uint16(i + 1)
		segs = append(segs, segment{uint16(rs[i]), uint16(rs[j]), gid - uint16(rs[i])})
		i = j + 1
	}
	segs = append(segs, segment{0xffff, 0xffff, 1})

	segCount := len(segs)
	entrySelector := uint16(bits.Len(uint(segCount)) - 1)
	searchRange := uint16(2) << entrySelector
	rangeShift := uint16(2*segCount) - searchRange

	sub := buf{}
	sub.u16(4)
	sub.u16(uint16(16 + 8*segCount)) // subtable length
	sub.u16(0)                       // language
	sub.u16(uint16(2 * segCount))
	sub.u16(searchRange)
	sub.u16(entrySelector)
	sub.u16(rangeShift)
	for _, s := range segs {
		sub.u16(s.end)
	}
	sub.u16(0) // reservedPad
	for _, s := range segs {
		sub.u16(s.start)
	}
	for _, s := range segs {
		sub.u16(s.delta)
	}
	for range segs {
		sub.u16(0) // idRangeOffset
	}

	b := buf{}
	b.u16(0) // version
	b.u16(1) // one encoding record
	b.u16(3)
	b.u16(1)
	b.u32(12)
	b.raw(sub)
	return b
}

func buildName() []byte {
	names := []struct {
		id    uint16
		value string
	}{
		{1, "IFT Synthetic"},
		{2, "Regular"},
		{4, "IFT Synthetic"},
		{6, "IFTSynthetic"},
	}
	storage := buf{}
	records := buf{}
	for _, n := range names {
		off := uint16(len(storage))
		for _, c := range n.value { // ASCII to UTF-16BE
			storage.u16(uint16(c))
		}
		records.u16(3)      // platform
		records.u16(1)      // encoding
		records.u16(0x0409) // language
		records.u16(n.id)
		records.u16(uint16(len(storage)) - off)
		records.u16(off)
	}
	b := buf{}
	b.u16(0) // format
	b.u16(uint16(len(names)))
	b.u16(uint16(6 + len(records)))
	b.raw(records)
	b.raw(storage)
	return b
}

func buildPost() []byte {
	b := buf{}
	b.u32(0x00030000)
	b.u32(0)   // italicAngle
	b.i16(-75) // underlinePosition
	b.i16(50)  // underlineThickness
	b.u32(0)   // isFixedPitch
	for i := 0; i < 4; i++ {
		b.u32(0)
	}
	return b
}

func buildOS2(rs []rune) []byte {
	b := buf{}
	b.u16(1)   // version
	b.i16(600) // xAvgCharWidth
	b.u16(400) // usWeightClass
	b.u16(5)   // usWidthClass
	b.u16(0)   // fsType
	for i := 0; i < 11; i++ {
		b.i16(0) // subscript/superscript/strikeout boxes, sFamilyClass
	}
	b.raw(make([]byte, 10)) // panose
	for i := 0; i < 4; i++ {
		b.u32(0) // ulUnicodeRange
	}
	b.str("IFTS") // achVendID
	b.u16(0x0040) // fsSelection REGULAR
	b.u16(uint16(rs[0]))
	b.u16(uint16(rs[len(rs)-1]))
	b.i16(800)  // sTypoAscender
	b.i16(-200) // sTypoDescender
	b.i16(90)   // sTypoLineGap
	b.u16(800)  // usWinAscent
	b.u16(200)  // usWinDescent
	b.u32(0)    // ulCodePageRange1
	b.u32(0)    // ulCodePageRange2
	return b
}
