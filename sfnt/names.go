package sfnt

import (
	"fmt"
	"iter"

	"golang.org/x/text/encoding/unicode"
)

const (
	nameHeaderSize = 6
	nameRecordSize = 12
)

// NameID identifies an entry of the naming table ('name').
type NameID uint16

// Naming table IDs the tooling cares about.
const (
	NameFamily     NameID = 1
	NameSubfamily  NameID = 2
	NameUniqueID   NameID = 3
	NameFull       NameID = 4
	NameVersion    NameID = 5
	NamePostScript NameID = 6
)

// nameKey identifies a NameRecord entry in table 'name'.
// The key follows the NameRecord fields directly.
type nameKey struct {
	Platform PlatformID
	Encoding EncodingID
	Language uint16 // not supported
	Name     NameID
}

type PlatformID uint16

const (
	PlatformIDUnicode   PlatformID = 0
	PlatformIDMacintosh PlatformID = 1 // not supported
	PlatformIDWindows   PlatformID = 3
)

type EncodingID uint16

const (
	EncodingIDUnicodeBMP    EncodingID = 3
	EncodingIDWindowsSymbol EncodingID = 0 // for now we will not support symbol fonts
	EncodingIDWindowsBMP    EncodingID = 1
)

// NamesRange yields decoded `(nameID, value)` pairs from the font's 'name'
// table.
//
// Only currently supported encodings are yielded (Unicode BMP and Windows
// BMP), and malformed or out-of-bounds records are skipped.
func (f *Font) NamesRange() iter.Seq2[NameID, string] {
	names := f.checkNameTableSafe()
	return func(yield func(NameID, string) bool) {
		if names == nil {
			return
		}
		count := int(u16(names[2:4])) // number of name records
		stringStorageOffset := int(u16(names[4:6]))
		for i := range count {
			recordSlice := names[nameHeaderSize+i*nameRecordSize : nameHeaderSize+(i+1)*nameRecordSize]
			key := nameKey{
				Platform: PlatformID(u16(recordSlice[0:2])),
				Encoding: EncodingID(u16(recordSlice[2:4])),
				Language: u16(recordSlice[4:6]),
				Name:     NameID(u16(recordSlice[6:8])),
			}
			if !isSupportedNameEncoding(key) {
				continue
			}
			strLen := int(u16(recordSlice[8:10]))
			recordOffset := int(u16(recordSlice[10:12]))
			start := stringStorageOffset + recordOffset
			end := start + strLen
			if start < 0 || strLen < 0 || end > len(names) {
				continue
			}
			stringValue, err := decodeNameUTF16(names[start:end])
			if err != nil || stringValue == "" {
				continue
			}
			if !yield(key.Name, stringValue) {
				return
			}
		}
	}
}

// Name returns the first decodable naming-table entry with the given id, or
// the empty string.
func (f *Font) Name(id NameID) string {
	for nid, value := range f.NamesRange() {
		if nid == id {
			return value
		}
	}
	return ""
}

// checkNameTableSafe checks if the name table is safe to use, i.e. no
// out-of-bounds access, no empty tables, etc.
func (f *Font) checkNameTableSafe() binarySegm {
	if f == nil {
		return nil
	}
	b := binarySegm(f.Table(T("name")))
	if b == nil {
		tracer().Debugf("no name table found in font")
		return nil
	}
	if len(b) < nameHeaderSize {
		tracer().Debugf("name table too short: %d", len(b))
		return nil
	}
	count := int(u16(b[2:4]))
	strOff := int(u16(b[4:6]))
	if strOff < 0 || strOff > len(b) {
		tracer().Debugf("name table invalid string offset: %d", strOff)
		return nil
	}
	recordsEnd := nameHeaderSize + count*nameRecordSize
	if recordsEnd > len(b) {
		tracer().Debugf("name table record section out of bounds: count=%d", count)
		return nil
	}
	return b
}

func isSupportedNameEncoding(key nameKey) bool {
	// Decode Unicode BMP + Windows BMP entries only.
	return (key.Platform == PlatformIDUnicode && key.Encoding == EncodingIDUnicodeBMP) ||
		(key.Platform == PlatformIDWindows && key.Encoding == EncodingIDWindowsBMP)
}

func decodeNameUTF16(str []byte) (string, error) {
	enc := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	decoder := enc.NewDecoder()
	s, err := decoder.Bytes(str)
	if err != nil {
		return "", fmt.Errorf("decoding UTF-16 error: %v", err)
	}
	return string(s), nil
}
