package sfnt

import (
	"strings"
	"testing"

	"github.com/npillmayer/schuko/tracing/gotestingadapter"
	"golang.org/x/image/font/gofont/goregular"
)

// Go Regular ships with the x/image module and is the closest thing to a
// stable real-world TrueType fixture.

func TestParseGoRegular(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift.sfnt")
	defer teardown()
	//
	f, err := Parse(goregular.TTF)
	if err != nil {
		t.Fatalf("cannot parse Go Regular: %v", err)
	}
	if f.ScalerType != ScalerTrueType {
		t.Errorf("expected TrueType scaler type, got %x", f.ScalerType)
	}
	for _, tag := range []string{"cmap", "head", "maxp", "glyf", "loca", "name"} {
		if !f.Has(T(tag)) {
			t.Errorf("expected Go Regular to contain table %s", tag)
		}
	}
	head, err := f.Head()
	if err != nil {
		t.Fatalf("cannot parse head table: %v", err)
	}
	if head.UnitsPerEm < 16 || head.UnitsPerEm > 16384 {
		t.Errorf("unitsPerEm %d out of valid range", head.UnitsPerEm)
	}
	maxp, err := f.MaxP()
	if err != nil {
		t.Fatalf("cannot parse maxp table: %v", err)
	}
	if maxp.NumGlyphs < 100 {
		t.Errorf("expected a few hundred glyphs, got %d", maxp.NumGlyphs)
	}
	loca, err := f.Loca()
	if err != nil {
		t.Fatalf("cannot parse loca table: %v", err)
	}
	if len(loca.Offsets) != maxp.NumGlyphs+1 {
		t.Errorf("expected %d loca entries, got %d", maxp.NumGlyphs+1, len(loca.Offsets))
	}
	if last := loca.Offsets[len(loca.Offsets)-1]; int(last) > len(f.Table(T("glyf"))) {
		t.Errorf("final loca offset %d beyond glyf size %d", last, len(f.Table(T("glyf"))))
	}
}

func TestGoRegularNames(t *testing.T) {
	f, err := Parse(goregular.TTF)
	if err != nil {
		t.Fatalf("cannot parse Go Regular: %v", err)
	}
	family := f.Name(NameFamily)
	if !strings.Contains(family, "Go") {
		t.Errorf("expected family name to contain 'Go', got %q", family)
	}
	count := 0
	for range f.NamesRange() {
		count++
	}
	if count == 0 {
		t.Errorf("expected name table to yield decodable entries")
	}
}

func TestGoRegularCodepointRanges(t *testing.T) {
	f, err := Parse(goregular.TTF)
	if err != nil {
		t.Fatalf("cannot parse Go Regular: %v", err)
	}
	ranges, err := CodepointRanges(f.Table(T("cmap")))
	if err != nil {
		t.Fatalf("cannot read cmap ranges: %v", err)
	}
	if len(ranges) == 0 {
		t.Fatalf("expected at least one covered range")
	}
	covered := func(r rune) bool {
		for _, rr := range ranges {
			if r >= rr.Low && r <= rr.High {
				return true
			}
		}
		return false
	}
	for _, r := range []rune{'A', 'z', '0', 'ä'} {
		if !covered(r) {
			t.Errorf("expected %q to be covered by Go Regular", r)
		}
	}
	for i := 1; i < len(ranges); i++ {
		if ranges[i].Low <= ranges[i-1].High {
			t.Fatalf("expected ranges in ascending order, got %v after %v", ranges[i], ranges[i-1])
		}
	}
}

func TestGoRegularReserialization(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift.sfnt")
	defer teardown()
	//
	f, err := Parse(goregular.TTF)
	if err != nil {
		t.Fatalf("cannot parse Go Regular: %v", err)
	}
	out, err := f.Bytes()
	if err != nil {
		t.Fatalf("cannot serialize Go Regular: %v", err)
	}
	if err := ValidateChecksums(out); err != nil {
		t.Fatalf("reserialized font fails checksum validation: %v", err)
	}
	g, err := Parse(out)
	if err != nil {
		t.Fatalf("cannot re-parse serialized font: %v", err)
	}
	if g.NumTables() != f.NumTables() {
		t.Errorf("expected %d tables after round trip, got %d", f.NumTables(), g.NumTables())
	}
}
