package ift

import (
	"context"

	"golang.org/x/text/unicode/norm"

	"github.com/npillmayer/ift/iftmap"
	"github.com/npillmayer/ift/sfnt"
)

// Extend grows an incremental font until it covers target, fetching
// patches through fetcher, and returns the serialized extended font. It is
// the one-shot wrapper around Session for callers who do not care about
// intermediate states.
func Extend(ctx context.Context, font []byte, target iftmap.SubsetDefinition,
	fetcher Fetcher, opts ...Option) ([]byte, error) {
	//
	s, err := NewSession(font, target, append([]Option{WithFetcher(fetcher)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx)
}

// CodepointsOfText returns the set of character codes needed to render
// text, normalized to NFC first. Fonts carry composed forms; targeting the
// decomposed runes would plan patches for codepoints the font never maps.
func CodepointsOfText(text string) iftmap.CodepointSet {
	return iftmap.NewCodepointSet([]rune(norm.NFC.String(text))...)
}

// BaselineSupport estimates the subset a font covers before any patch is
// applied: the codepoints its character map claims, minus every codepoint
// a pending map entry still advertises. An incremental font's cmap
// routinely over-claims, mapping codepoints whose outlines only arrive
// with a patch, so a claim under a pending entry is not trusted.
//
// m may be nil for a font without a patch map. Features and variation
// coverage cannot be read off the font this way and start out empty;
// callers with better knowledge pass their own baseline via WithBaseline.
func BaselineSupport(f *sfnt.Font, m *iftmap.Map) iftmap.SubsetDefinition {
	var cps iftmap.CodepointSet
	if cmap := f.Table(sfnt.T("cmap")); cmap != nil {
		ranges, err := sfnt.CodepointRanges(cmap)
		if err != nil {
			tracer().Infof("cannot read font cmap, assuming empty support: %v", err)
		}
		conv := make([]iftmap.CodepointRange, len(ranges))
		for i, r := range ranges {
			conv[i] = iftmap.CodepointRange{Low: r.Low, High: r.High}
		}
		cps = iftmap.CodepointSetOfRanges(conv...)
	}
	if m != nil {
		for i := range m.Entries {
			cps = cps.Subtract(m.Entries[i].Subset.Codepoints)
		}
	}
	return iftmap.SubsetDefinition{Codepoints: cps}
}
