package sfnt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"
	"sort"
)

// checksumAdjustmentMagic is the constant the sfnt format prescribes for
// the checkSumAdjustment field of table 'head': the field holds this value
// minus the word-sum of the whole font file, computed with the field itself
// read as zero.
const checksumAdjustmentMagic = 0xB1B0AFBA

// physicalOrder ranks tables for the physical layout of the font file,
// following the optimized table ordering recommended by the OpenType spec
// for TrueType outlines. Tables not listed here are placed after the ranked
// ones, in tag order. The table directory itself is always sorted by tag,
// independently of the physical layout.
// https://docs.microsoft.com/en-us/typography/opentype/spec/recom#optimized-table-ordering
var physicalOrder = map[Tag]int{
	T("head"): 95,
	T("hhea"): 90,
	T("maxp"): 85,
	T("OS/2"): 80,
	T("hmtx"): 75,
	T("LTSH"): 70,
	T("VDMX"): 65,
	T("hdmx"): 60,
	T("cmap"): 55,
	T("fpgm"): 50,
	T("prep"): 45,
	T("cvt "): 40,
	T("loca"): 35,
	T("glyf"): 30,
	T("kern"): 25,
	T("name"): 20,
	T("post"): 15,
	T("gasp"): 10,
	T("DSIG"): 5,
}

// rawRecord is one 16-byte entry of the serialized table directory.
type rawRecord struct {
	Tag      uint32
	Checksum uint32
	Offset   uint32
	Length   uint32
}

// Bytes serializes the font into a structurally valid font file.
// Table offsets, lengths, per-table checksums, the binary-search fields of
// the directory header and the checkSumAdjustment of table 'head' are all
// recomputed; whatever values a parsed input file carried are irrelevant
// here. Tables are padded to four-byte boundaries and laid out in the
// recommended physical order, while directory records are sorted by tag.
//
// Bytes does not mutate the font, the adjusted 'head' table exists only in
// the output.
func (f *Font) Bytes() ([]byte, error) {
	numTables := len(f.tables)
	if numTables == 0 {
		return nil, errFormat(0, "TableRecords", "font has no tables", 0)
	}
	if numTables > MaxTableCount {
		return nil, errFormat(0, "TableRecords",
			fmt.Sprintf("table count %d exceeds maximum %d", numTables, MaxTableCount), 0)
	}

	// physical layout: ranked tables first, rest in tag order
	physical := f.Tags()
	sort.SliceStable(physical, func(i, j int) bool {
		iPrio := physicalOrder[physical[i]]
		jPrio := physicalOrder[physical[j]]
		if iPrio != jPrio {
			return iPrio > jPrio
		}
		return physical[i] < physical[j]
	})

	entrySelector := bits.Len(uint(numTables)) - 1
	header := fontHeader{
		ScalerType:    f.ScalerType,
		TableCount:    uint16(numTables),
		SearchRange:   uint16(1 << (entrySelector + 4)),
		EntrySelector: uint16(entrySelector),
		RangeShift:    uint16(16 * (numTables - 1<<entrySelector)),
	}

	// 'head' is summed and written with checkSumAdjustment zeroed; the
	// stored table stays untouched, we patch a copy
	head := f.tables[T("head")]
	if head != nil {
		if len(head) < 12 {
			return nil, errFormat(T("head"), "Size",
				fmt.Sprintf("head table too small: %d bytes", len(head)), 0)
		}
		cp := make(binarySegm, len(head))
		copy(cp, head)
		putU32(cp[8:12], 0)
		head = cp
	}
	tableBytes := func(tag Tag) binarySegm {
		if tag == T("head") && head != nil {
			return head
		}
		return f.tables[tag]
	}

	var totalSum uint32
	offset := uint32(12 + 16*numTables)
	records := make([]rawRecord, numTables)
	for i, tag := range physical {
		body := tableBytes(tag)
		length := uint32(len(body))
		sum := Checksum(body)
		records[i] = rawRecord{
			Tag:      uint32(tag),
			Checksum: sum,
			Offset:   offset,
			Length:   length,
		}
		totalSum += sum
		next, err := checkedAddUint32(offset, 4*((length+3)/4))
		if err != nil {
			return nil, errFormat(tag, "Size", fmt.Sprintf("font size overflow: %v", err), offset)
		}
		offset = next
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Tag < records[j].Tag
	})

	out := &bytes.Buffer{}
	out.Grow(int(offset))
	_ = binary.Write(out, binary.BigEndian, header)
	_ = binary.Write(out, binary.BigEndian, records)
	totalSum += Checksum(out.Bytes())

	if head != nil {
		putU32(head[8:12], checksumAdjustmentMagic-totalSum)
	}

	var pad [3]byte
	for _, tag := range physical {
		body := tableBytes(tag)
		out.Write(body)
		if k := len(body) % 4; k != 0 {
			out.Write(pad[:4-k])
		}
	}
	tracer().Debugf("serialized font with %d tables, %d bytes", numTables, out.Len())
	return out.Bytes(), nil
}
