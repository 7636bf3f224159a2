package iftpatch

import (
	"math"

	"github.com/npillmayer/ift/sfnt"
)

var glyfTag = sfnt.T("glyf")

// ApplyGlyphKeyed splices the glyph outlines of a glyph-keyed patch into a
// font. The glyf table is rebuilt with the patched outlines, loca is
// recomputed, and if the new offsets no longer fit the short loca format
// the font is upgraded to the long format, including the format switch in
// table 'head'. No other table changes: patched glyphs replace outlines of
// existing glyph ids, so glyph count and metrics stay as they are.
//
// The font is modified only if the whole patch applies.
func ApplyGlyphKeyed(f *sfnt.Font, p *Patch) error {
	if p.Format != GlyphKeyedTag {
		return errApply(p.Format, "patch", "patch is not glyph-keyed")
	}
	if p.DataTable != glyfTag {
		return errApply(p.DataTable, "glyphs", "unsupported glyph data table")
	}
	work := f.Clone()
	head, err := work.Head()
	if err != nil {
		return err
	}
	maxp, err := work.MaxP()
	if err != nil {
		return err
	}
	loca, err := work.Loca()
	if err != nil {
		return err
	}
	glyf := work.Table(glyfTag)
	if glyf == nil {
		return errApply(glyfTag, "glyphs", "table not present in font")
	}
	n := int(maxp.NumGlyphs)
	if int(loca.Offsets[n]) > len(glyf) {
		return errApply(glyfTag, "glyphs",
			"loca points %d bytes into a glyf table of %d", loca.Offsets[n], len(glyf))
	}

	parts := make([][]byte, n)
	for i := range parts {
		parts[i] = glyf[loca.Offsets[i]:loca.Offsets[i+1]]
	}
	for _, blob := range p.Glyphs {
		if int(blob.GID) >= n {
			return errApply(glyfTag, "glyphs",
				"glyph id %d beyond glyph count %d", blob.GID, n)
		}
		parts[blob.GID] = blob.Data
	}

	size := uint64(0)
	for _, part := range parts {
		size += uint64(len(part) + len(part)&1)
	}
	if size > math.MaxUint32 {
		return errApply(glyfTag, "glyphs", "patched glyf table of %d bytes exceeds format limit", size)
	}
	// glyph data is kept 2-byte aligned, which keeps the short loca format
	// reachable for small fonts
	buf := make([]byte, 0, int(size))
	offsets := make([]uint32, n+1)
	for i, part := range parts {
		offsets[i] = uint32(len(buf))
		buf = append(buf, part...)
		if len(buf)&1 == 1 {
			buf = append(buf, 0)
		}
	}
	offsets[n] = uint32(len(buf))

	newLoca := &sfnt.Loca{Long: loca.Long, Offsets: offsets}
	if !newLoca.Long && newLoca.NeedsLong() {
		tracer().Infof("glyf grew beyond short loca range, upgrading to long format")
		newLoca.Long = true
		head.IndexToLocFormat = 1
		work.SetTable(sfnt.T("head"), head.Encode())
	}
	locaBytes, err := newLoca.Encode()
	if err != nil {
		return &ApplyError{Table: sfnt.T("loca"), Op: "glyphs", Reason: "cannot encode offsets", Err: err}
	}
	work.SetTable(sfnt.T("loca"), locaBytes)
	work.SetTable(glyfTag, buf)
	tracer().Debugf("spliced %d glyphs, glyf now %d bytes", len(p.Glyphs), len(buf))
	*f = *work
	return nil
}
