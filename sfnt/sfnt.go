package sfnt

import (
	"sort"
)

// Scaler types accepted in the first four bytes of a font file.
// OpenType fonts that contain TrueType outlines should use the value of
// 0x00010000. OpenType fonts containing CFF data (version 1 or 2) should
// use 0x4F54544F ('OTTO', when re-interpreted as a Tag). The Apple
// specification for TrueType fonts additionally allows for 'true'.
const (
	ScalerTrueType = 0x00010000
	ScalerCFF      = 0x4f54544f // 'OTTO'
	ScalerApple    = 0x74727565 // 'true'
)

// GlyphIndex is a glyph index in a font.
type GlyphIndex uint16

// Fixed is a 16.16 fixed-point number, used by sfnt tables for version
// numbers and for design-space coordinates of variable fonts.
type Fixed int32

// FixedFromFloat converts a float to the nearest 16.16 fixed-point value.
func FixedFromFloat(f float64) Fixed {
	return Fixed(f * 65536.0)
}

// Float64 returns x as a floating point value.
func (x Fixed) Float64() float64 {
	return float64(x) / 65536.0
}

// --- Tag -------------------------------------------------------------------

// Tag is defined by the sfnt format as:
// Array of four uint8s (length = 32 bits) used to identify a table,
// design-variation axis, script, language system, feature, or baseline
type Tag uint32

// MakeTag creates a Tag from 4 bytes, e.g.,
// If b is shorter or longer, it will be silently extended or cut as appropriate
//
//	MakeTag([]byte("glyf"))
func MakeTag(b []byte) Tag {
	if b == nil {
		b = []byte{0, 0, 0, 0}
	} else if len(b) > 4 {
		b = b[:4]
	} else if len(b) < 4 {
		b = append([]byte{0, 0, 0, 0}[:4-len(b)], b...)
	}
	return Tag(u32(b))
}

// T returns a Tag from a (4-letter) string.
// If t is shorter or longer, it will be silently extended or cut as appropriate
func T(t string) Tag {
	t = (t + "    ")[:4]
	return Tag(u32([]byte(t)))
}

func (t Tag) String() string {
	bytes := []byte{
		byte(t >> 24 & 0xff),
		byte(t >> 16 & 0xff),
		byte(t >> 8 & 0xff),
		byte(t & 0xff),
	}
	return string(bytes)
}

// --- Font ------------------------------------------------------------------

// Font is a mutable sfnt font: a directory of tagged tables, each one a
// segment of bytes. Tables carry no positional information; offsets,
// lengths and checksums exist only in the serialized form and are
// recomputed by Font.Bytes.
//
// A Font returned by Parse shares memory with the input slice. Mutating
// methods replace whole tables and never write into shared segments.
type Font struct {
	// ScalerType is the version field of the font header, one of
	// ScalerTrueType, ScalerCFF or ScalerApple.
	ScalerType uint32
	tables     map[Tag]binarySegm
}

// New creates an empty font with the given scaler type.
func New(scalerType uint32) *Font {
	return &Font{
		ScalerType: scalerType,
		tables:     make(map[Tag]binarySegm),
	}
}

// NumTables returns the number of tables contained in the font.
func (f *Font) NumTables() int {
	return len(f.tables)
}

// Has tells if the font contains a table for the given tag.
func (f *Font) Has(tag Tag) bool {
	_, ok := f.tables[tag]
	return ok
}

// Table returns the bytes of the font table for a given tag. If a table for
// a tag cannot be found in the font, nil is returned.
//
// The returned slice is the stored table; clients which want to modify a
// table must work on a copy and hand the result to SetTable.
func (f *Font) Table(tag Tag) []byte {
	if t, ok := f.tables[tag]; ok {
		return t
	}
	return nil
}

// SetTable stores data as the table for the given tag, replacing any
// previous content. The font keeps a reference to data, not a copy.
func (f *Font) SetTable(tag Tag, data []byte) {
	if f.tables == nil {
		f.tables = make(map[Tag]binarySegm)
	}
	f.tables[tag] = data
}

// RemoveTable deletes the table for the given tag from the font and
// reports whether it was present.
func (f *Font) RemoveTable(tag Tag) bool {
	if _, ok := f.tables[tag]; !ok {
		return false
	}
	delete(f.tables, tag)
	return true
}

// Tags returns a list of tags, one for each table contained in the font,
// in ascending tag order. This is the order of the serialized table
// directory as well.
func (f *Font) Tags() []Tag {
	var tags = make([]Tag, 0, len(f.tables))
	for tag := range f.tables {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Clone returns a deep copy of the font. Table contents are copied, so
// mutations of the clone never show through to the original.
func (f *Font) Clone() *Font {
	c := New(f.ScalerType)
	for tag, data := range f.tables {
		d := make(binarySegm, len(data))
		copy(d, data)
		c.tables[tag] = d
	}
	return c
}
