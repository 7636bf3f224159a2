package iftpatch

import (
	"bytes"
	"errors"
	"testing"

	"github.com/npillmayer/ift/internal/fontsynth"
	"github.com/npillmayer/ift/sfnt"
	"github.com/npillmayer/schuko/tracing/gotestingadapter"
)

// fakeDecoder skips real decompression: it hands out canned bytes and
// records the dictionary it was offered.
type fakeDecoder struct {
	out  []byte
	err  error
	dict []byte
}

func (d *fakeDecoder) Decode(compressed, dict []byte, sizeHint int) ([]byte, error) {
	d.dict = append([]byte(nil), dict...)
	if d.err != nil {
		return nil, d.err
	}
	return d.out, nil
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

var testCompat = [4]uint32{0xaaaa1111, 2, 3, 4}

func TestDecodeRejectsGarbage(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift.patch")
	defer teardown()
	for _, raw := range [][]byte{nil, {0x69}, []byte("abcdefgh")} {
		_, err := Decode(raw, BrotliDecoder{})
		if err == nil {
			t.Errorf("expected decode of %q to fail", raw)
			continue
		}
		var derr *DecodeError
		if !errors.As(err, &derr) {
			t.Errorf("expected *DecodeError, got %T", err)
		}
	}
}

func TestDecodeTableKeyed(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift.patch")
	defer teardown()
	namePayload := []byte("not really a name table")
	postSource := []byte("source post table bytes.")
	postResult := []byte("patched post table bytes")
	raw := fontsynth.TableKeyedPatch(testCompat,
		fontsynth.ReplaceOp(sfnt.T("name"), namePayload),
		fontsynth.DeltaOp(sfnt.T("post"), postSource, postResult),
		fontsynth.DropOp(sfnt.T("DSIG")),
	)
	p, err := Decode(raw, BrotliDecoder{})
	if err != nil {
		t.Fatalf("decoding table-keyed patch: %v", err)
	}
	if p.Format != TableKeyedTag || p.CompatibilityID != testCompat {
		t.Fatalf("envelope fields lost: %+v", p)
	}
	if len(p.Ops) != 3 {
		t.Fatalf("expected 3 operations, got %d", len(p.Ops))
	}
	if op := p.Ops[0]; op.Kind != OpReplace || op.Table != sfnt.T("name") ||
		!bytes.Equal(op.Data, namePayload) {
		t.Errorf("replace operation broken: %+v", op)
	}
	if op := p.Ops[1]; op.Kind != OpDelta || op.Table != sfnt.T("post") ||
		len(op.Stream) == 0 ||
		op.SourceLength != uint32(len(postSource)) ||
		op.SourceChecksum != sfnt.Checksum(postSource) {
		t.Errorf("delta operation broken: %+v", op)
	}
	if op := p.Ops[2]; op.Kind != OpDrop || op.Table != sfnt.T("DSIG") ||
		op.UncompressedLength != 0 || len(op.Stream) != 0 {
		t.Errorf("drop operation broken: %+v", op)
	}
}

func TestDecodeTableKeyedRejectsCorruption(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift.patch")
	defer teardown()
	valid := fontsynth.TableKeyedPatch(testCompat,
		fontsynth.ReplaceOp(sfnt.T("name"), []byte("payload bytes")))
	mutate := func(at int, v ...byte) []byte {
		out := append([]byte(nil), valid...)
		copy(out[at:], v)
		return out
	}
	// one operation: offsets are [34, len], the op header starts at 34
	cases := []struct {
		name  string
		table []byte
	}{
		{"truncated envelope", valid[:20]},
		{"reserved field set", mutate(4, 0, 0, 0, 1)},
		{"offsets not increasing", mutate(30, 0, 0, 0, 34)},
		{"offset beyond patch", mutate(30, 0xff, 0xff, 0xff, 0xff)},
		{"op reserved byte set", mutate(34+5, 1)},
		{"invalid flag combination", mutate(34+4, 0x03)},
		{"drop with stream", mutate(34+4, 0x02)},
		{"declared length off", mutate(34+6, 0, 0, 0, 0xff)},
		{"declared checksum off", mutate(34+10, 0xde, 0xad, 0xbe, 0xef)},
		{"corrupt brotli stream", mutate(len(valid)-2, 0xff, 0xff)},
	}
	for _, c := range cases {
		_, err := Decode(c.table, BrotliDecoder{})
		if err == nil {
			t.Errorf("%s: expected a decode error", c.name)
			continue
		}
		var derr *DecodeError
		if !errors.As(err, &derr) {
			t.Errorf("%s: expected *DecodeError, got %T", c.name, err)
			continue
		}
		t.Logf("%s: %v", c.name, err)
	}
}

func TestDecodeGlyphKeyed(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift.patch")
	defer teardown()
	outline := fontsynth.Outline(640)
	raw := fontsynth.GlyphKeyedPatch(testCompat,
		fontsynth.Glyph{GID: 5, Data: outline},
		fontsynth.Glyph{GID: 2, Data: nil},
	)
	p, err := Decode(raw, BrotliDecoder{})
	if err != nil {
		t.Fatalf("decoding glyph-keyed patch: %v", err)
	}
	if p.Format != GlyphKeyedTag || p.CompatibilityID != testCompat {
		t.Fatalf("envelope fields lost: %+v", p)
	}
	if p.DataTable != sfnt.T("glyf") {
		t.Errorf("expected data table glyf, got %s", p.DataTable)
	}
	if len(p.Glyphs) != 2 {
		t.Fatalf("expected 2 glyphs, got %d", len(p.Glyphs))
	}
	if g := p.Glyphs[0]; g.GID != 2 || len(g.Data) != 0 {
		t.Errorf("empty glyph broken: gid %d, %d bytes", g.GID, len(g.Data))
	}
	if g := p.Glyphs[1]; g.GID != 5 || !bytes.Equal(g.Data, outline) {
		t.Errorf("glyph 5 data broken: gid %d, %d bytes", g.GID, len(g.Data))
	}
}

// glyphEnvelope wraps a raw glyph data payload into an 'ifgk' envelope
// declaring the payload verbatim; used with fakeDecoder to test payload
// validation without compression in the way.
func glyphEnvelope(payload []byte) []byte {
	b := []byte("ifgk")
	b = appendU32(b, 0)
	for _, v := range testCompat {
		b = appendU32(b, v)
	}
	b = appendU32(b, uint32(len(payload)))
	b = appendU32(b, sfnt.Checksum(payload))
	return append(b, payload...)
}

func glyphPayload(flags uint16, gids []uint16, offsets []uint32, blob []byte) []byte {
	b := []byte("glyf")
	b = append(b, byte(flags>>8), byte(flags))
	b = append(b, byte(len(gids)>>8), byte(len(gids)))
	for _, g := range gids {
		b = append(b, byte(g>>8), byte(g))
	}
	for _, off := range offsets {
		b = appendU32(b, off)
	}
	return append(b, blob...)
}

func TestDecodeGlyphKeyedRejectsCorruption(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift.patch")
	defer teardown()
	// base = 8 + 2*2 + 4*3 = 24, payload = 26 bytes with 2 data bytes
	good := glyphPayload(0, []uint16{1, 2}, []uint32{24, 25, 26}, []byte{0xaa, 0xbb})
	if _, err := Decode(glyphEnvelope(good), &fakeDecoder{out: good}); err != nil {
		t.Fatalf("baseline payload does not decode: %v", err)
	}
	cases := []struct {
		name    string
		payload []byte
	}{
		{"payload too short", []byte("glyf")},
		{"reserved flags set", glyphPayload(1, []uint16{1, 2}, []uint32{24, 25, 26}, []byte{0xaa, 0xbb})},
		{"glyph ids not ascending", glyphPayload(0, []uint16{2, 1}, []uint32{24, 25, 26}, []byte{0xaa, 0xbb})},
		{"duplicate glyph id", glyphPayload(0, []uint16{2, 2}, []uint32{24, 25, 26}, []byte{0xaa, 0xbb})},
		{"offsets decreasing", glyphPayload(0, []uint16{1, 2}, []uint32{25, 24, 26}, []byte{0xaa, 0xbb})},
		{"offset before index end", glyphPayload(0, []uint16{1, 2}, []uint32{20, 25, 26}, []byte{0xaa, 0xbb})},
		{"offset beyond payload", glyphPayload(0, []uint16{1, 2}, []uint32{24, 25, 99}, []byte{0xaa, 0xbb})},
	}
	for _, c := range cases {
		_, err := Decode(glyphEnvelope(c.payload), &fakeDecoder{out: c.payload})
		if err == nil {
			t.Errorf("%s: expected a decode error", c.name)
			continue
		}
		var derr *DecodeError
		if !errors.As(err, &derr) {
			t.Errorf("%s: expected *DecodeError, got %T", c.name, err)
			continue
		}
		t.Logf("%s: %v", c.name, err)
	}
	// a decoder yielding different bytes than declared must be caught
	_, err := Decode(glyphEnvelope(good), &fakeDecoder{out: good[:len(good)-1]})
	if err == nil {
		t.Error("expected length mismatch to be caught")
	}
}
