package sfnt

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Code comments occasionally cite passages from the OpenType specification
// version 1.9; see https://docs.microsoft.com/en-us/typography/opentype/spec/.

// MaxTableCount bounds the number of tables a font may declare. Real fonts
// stay far below this; a larger count indicates a corrupt or malicious file
// and is rejected before any allocation is sized by it.
const MaxTableCount = 512

// fontHeader is the fixed 12-byte structure at the start of a font file,
// called the table directory header by the OpenType spec (the offset table
// in older Apple documents).
type fontHeader struct {
	ScalerType    uint32
	TableCount    uint16
	SearchRange   uint16
	EntrySelector uint16
	RangeShift    uint16
}

// Parse parses a font from a byte slice into a table directory.
// The resulting Font shares memory with the input: table segments are views
// into font, and the input is assumed immutable while the Font is in use.
//
// Parse validates the container structure only (scaler type, table count,
// record ordering, offset alignment and bounds). Table checksums recorded in
// the directory are ignored here; use ValidateChecksums to verify them.
func Parse(font []byte) (*Font, error) {
	r := bytes.NewReader(font)
	h := fontHeader{}
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return nil, errFormat(0, "Header", "font file shorter than header", 0)
	}
	tracer().Debugf("header = %v, tag = %x|%s", h, h.ScalerType, Tag(h.ScalerType).String())
	if !(h.ScalerType == ScalerCFF ||
		h.ScalerType == ScalerTrueType ||
		h.ScalerType == ScalerApple) {
		return nil, errFormat(0, "Header", fmt.Sprintf("font type not supported: %x", h.ScalerType), 0)
	}
	if h.TableCount > MaxTableCount {
		return nil, errFormat(0, "Header", fmt.Sprintf("table count %d exceeds maximum %d", h.TableCount, MaxTableCount), 0)
	}
	f := New(h.ScalerType)
	src := binarySegm(font)

	// "The table directory is followed immediately by the table records …
	// sorted in ascending order by tag", 16 bytes each.
	recordsSize, err := checkedMulInt(16, int(h.TableCount))
	if err != nil {
		return nil, errFormat(0, "TableRecords", fmt.Sprintf("table count too large: %v", err), 12)
	}
	buf, err := src.view(12, recordsSize)
	if err != nil {
		return nil, errFormat(0, "TableRecords", "table record entries", 12)
	}
	for b, prevTag := buf, Tag(0); len(b) > 0; b = b[16:] {
		tag := MakeTag(b)
		if tag < prevTag {
			return nil, errFormat(0, "TableRecords", "table order", 12)
		}
		prevTag = tag
		off, size := u32(b[8:12]), u32(b[12:16])
		if off&3 != 0 { // ignore checksums, but "all tables must begin on four byte boundaries".
			return nil, errFormat(tag, "Offset", "invalid table offset", off)
		}
		tableEnd, err := checkedAddUint32(off, size)
		if err != nil {
			return nil, errFormat(tag, "Size", fmt.Sprintf("size calculation overflow: %v", err), off)
		}
		if off > uint32(len(src)) || tableEnd > uint32(len(src)) {
			return nil, errFormat(tag, "Bounds",
				fmt.Sprintf("bounds [%d:%d] exceed font size %d", off, tableEnd, len(src)), off)
		}
		f.tables[tag] = src[off:tableEnd]
	}
	tracer().Debugf("font has %d tables", f.NumTables())
	return f, nil
}

// ValidateChecksums re-reads the table directory of a serialized font and
// verifies the recorded checksum of every table against a recomputed
// word-sum. For table 'head' the checkSumAdjustment field is treated as
// zero, as prescribed by the format. The font-wide adjustment value itself
// is verified as well.
func ValidateChecksums(font []byte) error {
	if len(font) < 12 {
		return errFormat(0, "Header", "font file shorter than header", 0)
	}
	count := int(u16(font[4:6]))
	src := binarySegm(font)
	recordsSize, err := checkedMulInt(16, count)
	if err != nil {
		return errFormat(0, "TableRecords", fmt.Sprintf("table count too large: %v", err), 12)
	}
	buf, err := src.view(12, recordsSize)
	if err != nil {
		return errFormat(0, "TableRecords", "table record entries", 12)
	}
	var headOff uint32
	var hasHead bool
	for b := buf; len(b) > 0; b = b[16:] {
		tag := MakeTag(b)
		want, off, size := u32(b[4:8]), u32(b[8:12]), u32(b[12:16])
		end, err := checkedAddUint32(off, size)
		if err != nil || end > uint32(len(src)) {
			return errFormat(tag, "Bounds", "table exceeds font size", off)
		}
		table := src[off:end]
		var sum uint32
		if tag == T("head") && size >= 12 {
			cp := make([]byte, size)
			copy(cp, table)
			putU32(cp[8:12], 0) // checkSumAdjustment reads as zero
			sum = Checksum(cp)
			headOff, hasHead = off, true
		} else {
			sum = Checksum(table)
		}
		if sum != want {
			return errFormat(tag, "Checksum",
				fmt.Sprintf("checksum mismatch: directory has %08x, table sums to %08x", want, sum), off)
		}
	}
	if hasHead {
		cp := make([]byte, len(font))
		copy(cp, font)
		putU32(cp[headOff+8:headOff+12], 0)
		if adj := checksumAdjustmentMagic - Checksum(cp); adj != u32(font[headOff+8:headOff+12]) {
			return errFormat(T("head"), "Checksum",
				fmt.Sprintf("checkSumAdjustment mismatch: head has %08x, font sums to %08x",
					u32(font[headOff+8:headOff+12]), adj), headOff+8)
		}
	}
	return nil
}
