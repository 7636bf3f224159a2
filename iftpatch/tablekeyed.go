package iftpatch

import (
	"github.com/npillmayer/ift/sfnt"
)

// ApplyTableKeyed applies a table-keyed patch to a font. Operations run in
// patch order against the font as left by their predecessors, so a patch
// may replace a table and delta it again within the same application.
//
// Delta operations require the current table bytes to match the length and
// checksum the patch was computed against; a divergent font yields an
// ApplyError and a hint that the client's font is out of sync with the
// patch server. The font is modified only if every operation succeeds.
func ApplyTableKeyed(f *sfnt.Font, p *Patch, dec Decoder) error {
	if p.Format != TableKeyedTag {
		return errApply(p.Format, "patch", "patch is not table-keyed")
	}
	work := f.Clone()
	for _, op := range p.Ops {
		if err := applyTableOp(work, &op, dec); err != nil {
			return err
		}
	}
	*f = *work
	return nil
}

func applyTableOp(f *sfnt.Font, op *TableOp, dec Decoder) error {
	tracer().Debugf("applying %s to table %s", op.Kind, op.Table)
	switch op.Kind {
	case OpReplace:
		f.SetTable(op.Table, append([]byte(nil), op.Data...))
	case OpDrop:
		if !f.Has(op.Table) {
			return errApply(op.Table, "drop", "table not present in font")
		}
		f.RemoveTable(op.Table)
	case OpDelta:
		source := f.Table(op.Table)
		if source == nil {
			return errApply(op.Table, "delta", "table not present in font")
		}
		if uint32(len(source)) != op.SourceLength {
			return errApply(op.Table, "delta",
				"table is %d bytes, patch expects %d; font diverged from patch baseline",
				len(source), op.SourceLength)
		}
		if sum := sfnt.Checksum(source); sum != op.SourceChecksum {
			return errApply(op.Table, "delta",
				"table checksum %08x, patch expects %08x; font diverged from patch baseline",
				sum, op.SourceChecksum)
		}
		data, err := dec.Decode(op.Stream, source, int(op.UncompressedLength))
		if err != nil {
			return &ApplyError{Table: op.Table, Op: "delta", Reason: "delta stream corrupt", Err: err}
		}
		if len(data) != int(op.UncompressedLength) {
			return errApply(op.Table, "delta",
				"delta yields %d bytes, declared %d", len(data), op.UncompressedLength)
		}
		if sum := sfnt.Checksum(data); sum != op.UncompressedChecksum {
			return errApply(op.Table, "delta",
				"result checksum %08x, declared %08x", sum, op.UncompressedChecksum)
		}
		f.SetTable(op.Table, data)
	default:
		return errApply(op.Table, "patch", "unknown operation kind %d", op.Kind)
	}
	return nil
}
