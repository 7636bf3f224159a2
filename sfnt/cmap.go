package sfnt

import (
	"fmt"
)

// The engine does not map characters to glyphs; it needs to know which
// character ranges a font snapshot claims to cover, to seed the supported
// subset before any patch is applied. Only the range structure of the cmap
// is read here, formats 4 (BMP segments) and 12 (full-repertoire groups).

// RuneRange is an inclusive range of character codes.
type RuneRange struct {
	Low, High rune
}

// platformEncodingWidth returns the encoding width in bytes for a cmap
// encoding record, 0 for encodings we cannot use. Wider encodings are
// preferred, matching the usual subtable selection order.
func platformEncodingWidth(pid, psid uint16) int {
	switch pid {
	case 0: // Unicode
		switch psid {
		case 3: // BMP only
			return 2
		case 4: // full repertoire
			return 4
		}
	case 3: // Windows
		switch psid {
		case 1: // BMP only
			return 2
		case 10: // full repertoire
			return 4
		}
	}
	return 0
}

func supportedCmapFormat(format uint16) bool {
	return format == 4 || format == 12
}

// CodepointRanges parses a cmap table and returns the inclusive character
// ranges covered by the preferred Unicode subtable, in ascending order.
// Subtables are selected by encoding width (a format 12 full-repertoire
// subtable wins over a format 4 BMP one); fonts without a usable Unicode
// subtable are rejected.
func CodepointRanges(cmap []byte) ([]RuneRange, error) {
	b := binarySegm(cmap)
	n, err := b.u16(2) // number of encoding records
	if err != nil {
		return nil, errFormat(T("cmap"), "Header", "cmap table too small", 0)
	}
	tracer().Debugf("font cmap has %d encoding records in %d bytes", n, len(b))
	const headerSize, entrySize = 4, 8
	requiredSize, err := checkedAddInt(headerSize, entrySize*int(n))
	if err != nil || requiredSize > len(b) {
		return nil, errFormat(T("cmap"), "Header",
			fmt.Sprintf("%d encoding records exceed table size %d", n, len(b)), 0)
	}
	var bestWidth int
	var bestOffset uint32
	var bestFormat uint16
	for i := 0; i < int(n); i++ {
		rec, _ := b.view(headerSize+entrySize*i, entrySize)
		pid, psid := u16(rec), u16(rec[2:])
		width := platformEncodingWidth(pid, psid)
		if width <= bestWidth {
			continue
		}
		off := u32(rec[4:8])
		format, err := b.u16(int(off))
		if err != nil {
			tracer().Infof("cmap encoding record %d points outside the table, ignoring", i)
			continue
		}
		if supportedCmapFormat(format) {
			bestWidth = width
			bestOffset = off
			bestFormat = format
		}
	}
	if bestWidth == 0 {
		return nil, errFormat(T("cmap"), "Format", "no supported cmap format found", 0)
	}
	sub := b[bestOffset:]
	switch bestFormat {
	case 4:
		return format4Ranges(sub)
	case 12:
		return format12Ranges(sub)
	}
	return nil, errFormat(T("cmap"), "Format", "no supported cmap format found", 0)
}

// format4Ranges walks the segment arrays of a format 4 subtable. The final
// 0xFFFF/0xFFFF sentinel segment is dropped, it exists for binary search
// termination and does not claim character coverage.
func format4Ranges(sub binarySegm) ([]RuneRange, error) {
	segCountX2, err := sub.u16(6)
	if err != nil || segCountX2&1 != 0 {
		return nil, errFormat(T("cmap"), "Format4", "invalid segment count", 0)
	}
	segCount := int(segCountX2 / 2)
	// endCode[segCount], reservedPad, startCode[segCount]
	required, err := checkedAddInt(14, 2+4*segCount)
	if err != nil || required > len(sub) {
		return nil, errFormat(T("cmap"), "Format4",
			fmt.Sprintf("%d segments exceed subtable size %d", segCount, len(sub)), 0)
	}
	endBase := 14
	startBase := endBase + 2*segCount + 2
	ranges := make([]RuneRange, 0, segCount)
	var prevEnd uint16
	for i := 0; i < segCount; i++ {
		end, _ := sub.u16(endBase + 2*i)
		start, _ := sub.u16(startBase + 2*i)
		if start > end || (i > 0 && start <= prevEnd) {
			return nil, errFormat(T("cmap"), "Format4",
				fmt.Sprintf("segment %d out of order: [%x,%x] after %x", i, start, end, prevEnd), 0)
		}
		prevEnd = end
		if start == 0xffff && end == 0xffff {
			continue // sentinel
		}
		ranges = append(ranges, RuneRange{Low: rune(start), High: rune(end)})
	}
	return ranges, nil
}

// format12Ranges walks the sequential map groups of a format 12 subtable.
func format12Ranges(sub binarySegm) ([]RuneRange, error) {
	nGroups, err := sub.u32(12)
	if err != nil {
		return nil, errFormat(T("cmap"), "Format12", "subtable header too small", 0)
	}
	groupsSize, err := checkedMulInt(int(nGroups), 12)
	if err != nil {
		return nil, errFormat(T("cmap"), "Format12", fmt.Sprintf("group count too large: %v", err), 0)
	}
	required, err := checkedAddInt(16, groupsSize)
	if err != nil || required > len(sub) {
		return nil, errFormat(T("cmap"), "Format12",
			fmt.Sprintf("%d groups exceed subtable size %d", nGroups, len(sub)), 0)
	}
	ranges := make([]RuneRange, 0, nGroups)
	var prevEnd uint32
	for i := 0; i < int(nGroups); i++ {
		start, _ := sub.u32(16 + 12*i)
		end, _ := sub.u32(16 + 12*i + 4)
		if start > end || (i > 0 && start <= prevEnd) {
			return nil, errFormat(T("cmap"), "Format12",
				fmt.Sprintf("group %d out of order: [%x,%x] after %x", i, start, end, prevEnd), 0)
		}
		prevEnd = end
		if start > 0x10ffff || end > 0x10ffff {
			return nil, errFormat(T("cmap"), "Format12",
				fmt.Sprintf("group %d beyond Unicode range: [%x,%x]", i, start, end), 0)
		}
		ranges = append(ranges, RuneRange{Low: rune(start), High: rune(end)})
	}
	return ranges, nil
}
