package ift

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/npillmayer/schuko/tracing/gotestingadapter"

	"github.com/npillmayer/ift/iftmap"
	"github.com/npillmayer/ift/iftpatch"
	"github.com/npillmayer/ift/internal/fontsynth"
	"github.com/npillmayer/ift/sfnt"
)

// --- Fixtures --------------------------------------------------------------

// memFetcher serves patches from memory and records every URI it is asked
// for. An optional gate forces a number of fetches to overlap in time.
type memFetcher struct {
	mu      sync.Mutex
	patches map[string][]byte
	log     []string
	gate    *fetchGate
}

func (mf *memFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	mf.mu.Lock()
	mf.log = append(mf.log, uri)
	raw, ok := mf.patches[uri]
	mf.mu.Unlock()
	if mf.gate != nil {
		if err := mf.gate.wait(); err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, errors.New("unknown patch")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]byte(nil), raw...), nil
}

func (mf *memFetcher) fetched() []string {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	return append([]string(nil), mf.log...)
}

// fetchGate blocks every caller until `need` callers have arrived. Capped
// by a timeout so a sequential fetch implementation fails the test instead
// of hanging it.
type fetchGate struct {
	mu      sync.Mutex
	need    int
	arrived int
	release chan struct{}
}

func newFetchGate(need int) *fetchGate {
	return &fetchGate{need: need, release: make(chan struct{})}
}

func (g *fetchGate) wait() error {
	g.mu.Lock()
	g.arrived++
	if g.arrived == g.need {
		close(g.release)
	}
	g.mu.Unlock()
	select {
	case <-g.release:
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("fetches did not overlap")
	}
}

func compat(n uint32) [4]uint32 {
	return [4]uint32{n, n + 1, n + 2, n + 3}
}

func gkEntry(id uint32, runes ...rune) iftmap.Entry {
	return iftmap.Entry{ID: id, Format: iftmap.GlyphKeyed,
		Subset: iftmap.SubsetDefinition{Codepoints: iftmap.NewCodepointSet(runes...)}}
}

func tkEntry(id uint32, runes ...rune) iftmap.Entry {
	return iftmap.Entry{ID: id, Format: iftmap.TableKeyed,
		Subset: iftmap.SubsetDefinition{Codepoints: iftmap.NewCodepointSet(runes...)}}
}

func textTarget(text string) iftmap.SubsetDefinition {
	return iftmap.SubsetDefinition{Codepoints: CodepointsOfText(text)}
}

// emptyGlyphs blanks the outlines of the given glyphs, turning a complete
// synthetic font into the sparse starting state of an incremental font.
func emptyGlyphs(t *testing.T, f *sfnt.Font, gids ...uint16) {
	t.Helper()
	glyphs := make([]fontsynth.Glyph, len(gids))
	for i, gid := range gids {
		glyphs[i] = fontsynth.Glyph{GID: gid}
	}
	p, err := iftpatch.Decode(fontsynth.GlyphKeyedPatch([4]uint32{}, glyphs...),
		iftpatch.BrotliDecoder{})
	if err != nil {
		t.Fatalf("cannot build glyph-blanking fixture: %v", err)
	}
	if err := iftpatch.ApplyGlyphKeyed(f, p); err != nil {
		t.Fatalf("cannot blank fixture glyphs: %v", err)
	}
}

// sparseFont builds a font for runes, blanks the glyphs of the lazy runes,
// attaches m, and serializes.
func sparseFont(t *testing.T, m *iftmap.Map, runes []rune, lazy ...rune) []byte {
	t.Helper()
	f := fontsynth.New(runes...)
	if len(lazy) > 0 {
		gids := make([]uint16, len(lazy))
		for i, r := range lazy {
			gids[i] = fontsynth.GID(runes, r)
		}
		emptyGlyphs(t, f, gids...)
	}
	if m != nil {
		fontsynth.AttachMap(f, m)
	}
	raw, err := f.Bytes()
	if err != nil {
		t.Fatalf("cannot serialize fixture font: %v", err)
	}
	return raw
}

func glyphPatch(compatID [4]uint32, gid uint16) []byte {
	return fontsynth.GlyphKeyedPatch(compatID,
		fontsynth.Glyph{GID: gid, Data: fontsynth.Outline(fontsynth.GlyphWidth(int(gid)))})
}

// --- Tests -----------------------------------------------------------------

func TestSessionSingleRound(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift")
	defer teardown()
	runes := []rune{'A', 'B', 'C'}
	c1 := compat(100)
	m := &iftmap.Map{CompatibilityID: c1, URITemplate: "patches/{id}",
		Entries: []iftmap.Entry{gkEntry(10, 'B'), gkEntry(20, 'C')}}
	base := sparseFont(t, m, runes, 'B', 'C')
	fetcher := &memFetcher{patches: map[string][]byte{
		"patches/10": glyphPatch(c1, 2),
		"patches/20": glyphPatch(c1, 3),
	}}
	s, err := NewSession(base, textTarget("CAB"), WithFetcher(fetcher))
	if err != nil {
		t.Fatal(err)
	}
	out, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("extension failed: %v", err)
	}
	if s.State() != Done {
		t.Errorf("session state is %s, expected done", s.State())
	}
	if s.Rounds() != 1 {
		t.Errorf("extension took %d rounds, expected 1", s.Rounds())
	}
	if diff := cmp.Diff([]uint32{10, 20}, s.Applied()); diff != "" {
		t.Errorf("applied entries mismatch: %s", diff)
	}
	uris := fetcher.fetched()
	sort.Strings(uris)
	if diff := cmp.Diff([]string{"patches/10", "patches/20"}, uris); diff != "" {
		t.Errorf("fetched URIs mismatch: %s", diff)
	}
	if err := sfnt.ValidateChecksums(out); err != nil {
		t.Errorf("extended font fails checksum validation: %v", err)
	}
	f, err := sfnt.Parse(out)
	if err != nil {
		t.Fatalf("cannot parse extended font: %v", err)
	}
	final, err := iftmap.FromFont(f)
	if err != nil {
		t.Fatalf("extended font lost its patch map: %v", err)
	}
	if len(final.Entries) != 0 {
		t.Errorf("patch map still advertises entries %v after extension", final.IDs())
	}
	if !s.Support().Codepoints.Contains('C') {
		t.Errorf("support after extension lacks U+0043, have %s", s.Support())
	}
}

func TestSessionStagedRounds(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift")
	defer teardown()
	runes := []rune{'A', 'B', 'C'}
	c1, c2 := compat(1), compat(2)
	g2 := &iftmap.Map{CompatibilityID: c2, URITemplate: "p/{id}",
		Entries: []iftmap.Entry{gkEntry(2, 'C')}}
	g2raw, err := g2.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	g1 := &iftmap.Map{CompatibilityID: c1, URITemplate: "p/{id}",
		Entries: []iftmap.Entry{tkEntry(1, 'B', 'C')}}

	// The first patch is table-keyed: it delivers B's outline as a glyf
	// delta plus a loca replacement, and installs the successor map g2,
	// which still advertises C. Extension must take a second round.
	baseF := fontsynth.New(runes...)
	emptyGlyphs(t, baseF, 2, 3)
	midF := fontsynth.New(runes...)
	emptyGlyphs(t, midF, 3)
	p1 := fontsynth.TableKeyedPatch(c1,
		fontsynth.DeltaOp(sfnt.T("glyf"), baseF.Table(sfnt.T("glyf")), midF.Table(sfnt.T("glyf"))),
		fontsynth.ReplaceOp(sfnt.T("loca"), midF.Table(sfnt.T("loca"))),
		fontsynth.ReplaceOp(iftmap.TableTag, g2raw))
	fontsynth.AttachMap(baseF, g1)
	base, err := baseF.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	fetcher := &memFetcher{patches: map[string][]byte{
		"p/1": p1,
		"p/2": glyphPatch(c2, 3),
	}}
	s, err := NewSession(base, textTarget("BC"), WithFetcher(fetcher))
	if err != nil {
		t.Fatal(err)
	}
	out, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("staged extension failed: %v", err)
	}
	if s.Rounds() != 2 {
		t.Errorf("staged extension took %d rounds, expected 2", s.Rounds())
	}
	if diff := cmp.Diff([]uint32{1, 2}, s.Applied()); diff != "" {
		t.Errorf("applied entries mismatch: %s", diff)
	}
	if diff := cmp.Diff([]string{"p/1", "p/2"}, fetcher.fetched()); diff != "" {
		t.Errorf("fetched URIs mismatch: %s", diff)
	}
	if err := sfnt.ValidateChecksums(out); err != nil {
		t.Errorf("extended font fails checksum validation: %v", err)
	}
	fin, err := sfnt.Parse(out)
	if err != nil {
		t.Fatal(err)
	}
	// Tables no patch touched come through byte-identical.
	for _, tag := range []sfnt.Tag{sfnt.T("name"), sfnt.T("OS/2"), sfnt.T("cmap")} {
		if !bytes.Equal(baseF.Table(tag), fin.Table(tag)) {
			t.Errorf("table %s changed although no patch touched it", tag)
		}
	}
	fm, err := iftmap.FromFont(fin)
	if err != nil {
		t.Fatal(err)
	}
	if len(fm.Entries) != 0 {
		t.Errorf("final map still advertises %v", fm.IDs())
	}
}

func TestSessionRollsBackFailedRound(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift")
	defer teardown()
	runes := []rune{'A', 'B', 'C'}
	c1 := compat(7)
	m := &iftmap.Map{CompatibilityID: c1, URITemplate: "patches/{id}",
		Entries: []iftmap.Entry{gkEntry(10, 'B'), gkEntry(20, 'C')}}
	base := sparseFont(t, m, runes, 'B', 'C')
	fetcher := &memFetcher{patches: map[string][]byte{
		"patches/10": glyphPatch(c1, 2),
		"patches/20": []byte("this is not a patch"),
	}}
	s, err := NewSession(base, textTarget("BC"), WithFetcher(fetcher))
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Run(context.Background())
	var derr *iftpatch.DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("expected a decode error, got %v", err)
	}
	if s.State() != Failed {
		t.Errorf("session state is %s, expected failed", s.State())
	}
	if !bytes.Equal(s.Font(), base) {
		t.Error("failed round left a modified font behind")
	}
	if len(s.Applied()) != 0 {
		t.Errorf("failed round recorded applied entries %v", s.Applied())
	}
}

func TestSessionFetchFailure(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift")
	defer teardown()
	runes := []rune{'A', 'B'}
	c1 := compat(9)
	m := &iftmap.Map{CompatibilityID: c1, URITemplate: "patches/{id}",
		Entries: []iftmap.Entry{gkEntry(10, 'B')}}
	base := sparseFont(t, m, runes, 'B')
	fetcher := &memFetcher{patches: map[string][]byte{}}
	s, err := NewSession(base, textTarget("B"), WithFetcher(fetcher))
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Run(context.Background())
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected a fetch error, got %v", err)
	}
	if ferr.URI != "patches/10" {
		t.Errorf("fetch error names URI %q, expected patches/10", ferr.URI)
	}
	if !bytes.Equal(s.Font(), base) {
		t.Error("fetch failure left a modified font behind")
	}
}

func TestSessionRejectsForeignCompatibility(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift")
	defer teardown()
	runes := []rune{'A', 'B'}
	m := &iftmap.Map{CompatibilityID: compat(1), URITemplate: "patches/{id}",
		Entries: []iftmap.Entry{gkEntry(10, 'B')}}
	base := sparseFont(t, m, runes, 'B')
	fetcher := &memFetcher{patches: map[string][]byte{
		"patches/10": glyphPatch(compat(999), 2), // foreign generation
	}}
	s, err := NewSession(base, textTarget("B"), WithFetcher(fetcher))
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "answers to map") {
		t.Fatalf("expected a compatibility mismatch, got %v", err)
	}
	if !bytes.Equal(s.Font(), base) {
		t.Error("rejected patch left a modified font behind")
	}
}

func TestSessionNonConvergence(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift")
	defer teardown()
	runes := []rune{'A', 'B'}
	c1, c2, c3 := compat(1), compat(2), compat(3)

	// A chain of maps which keep advertising B without ever delivering
	// it. The last one re-lists the already applied entry 5, so the
	// session detects that it cannot make progress.
	g3 := &iftmap.Map{CompatibilityID: c3, URITemplate: "p/{id}",
		Entries: []iftmap.Entry{tkEntry(5, 'B')}}
	g3raw, err := g3.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	g2 := &iftmap.Map{CompatibilityID: c2, URITemplate: "p/{id}",
		Entries: []iftmap.Entry{tkEntry(6, 'B')}}
	g2raw, err := g2.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	g1 := &iftmap.Map{CompatibilityID: c1, URITemplate: "p/{id}",
		Entries: []iftmap.Entry{tkEntry(5, 'B')}}
	base := sparseFont(t, g1, runes, 'B')
	fetcher := &memFetcher{patches: map[string][]byte{
		"p/5": fontsynth.TableKeyedPatch(c1, fontsynth.ReplaceOp(iftmap.TableTag, g2raw)),
		"p/6": fontsynth.TableKeyedPatch(c2, fontsynth.ReplaceOp(iftmap.TableTag, g3raw)),
	}}
	s, err := NewSession(base, textTarget("B"), WithFetcher(fetcher))
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Run(context.Background())
	if !errors.Is(err, ErrNonConvergence) {
		t.Fatalf("expected non-convergence, got %v", err)
	}
	// Each patch was fetched exactly once.
	if diff := cmp.Diff([]string{"p/5", "p/6"}, fetcher.fetched()); diff != "" {
		t.Errorf("fetched URIs mismatch: %s", diff)
	}
	// The last committed font is still consistent.
	if err := sfnt.ValidateChecksums(s.Font()); err != nil {
		t.Errorf("last committed font fails checksum validation: %v", err)
	}
}

func TestSessionRoundLimit(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift")
	defer teardown()
	runes := []rune{'A', 'B'}
	c1, c2 := compat(1), compat(2)
	g2 := &iftmap.Map{CompatibilityID: c2, URITemplate: "p/{id}",
		Entries: []iftmap.Entry{tkEntry(6, 'B')}}
	g2raw, err := g2.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	g1 := &iftmap.Map{CompatibilityID: c1, URITemplate: "p/{id}",
		Entries: []iftmap.Entry{tkEntry(5, 'B')}}
	base := sparseFont(t, g1, runes, 'B')
	fetcher := &memFetcher{patches: map[string][]byte{
		"p/5": fontsynth.TableKeyedPatch(c1, fontsynth.ReplaceOp(iftmap.TableTag, g2raw)),
		"p/6": fontsynth.TableKeyedPatch(c2, fontsynth.ReplaceOp(iftmap.TableTag, g2raw)),
	}}
	s, err := NewSession(base, textTarget("B"), WithFetcher(fetcher), WithMaxRounds(1))
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Run(context.Background())
	if !errors.Is(err, ErrNonConvergence) {
		t.Fatalf("expected the round limit to trip, got %v", err)
	}
	if s.Rounds() != 1 {
		t.Errorf("session ran %d rounds with a limit of 1", s.Rounds())
	}
}

func TestSessionFetchesConcurrently(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift")
	defer teardown()
	runes := []rune{'A', 'D', 'E', 'F'}
	c1 := compat(4)
	m := &iftmap.Map{CompatibilityID: c1, URITemplate: "patches/{id}",
		Entries: []iftmap.Entry{gkEntry(11, 'D'), gkEntry(12, 'E'), gkEntry(13, 'F')}}
	base := sparseFont(t, m, runes, 'D', 'E', 'F')
	fetcher := &memFetcher{
		gate: newFetchGate(3),
		patches: map[string][]byte{
			"patches/11": glyphPatch(c1, 2),
			"patches/12": glyphPatch(c1, 3),
			"patches/13": glyphPatch(c1, 4),
		},
	}
	s, err := NewSession(base, textTarget("DEF"), WithFetcher(fetcher))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("concurrent extension failed: %v", err)
	}
	if s.State() != Done {
		t.Errorf("session state is %s, expected done", s.State())
	}
}

func TestSessionBaselineFloor(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift")
	defer teardown()
	runes := []rune{'A', 'B', 'C'}
	c1 := compat(6)
	m := &iftmap.Map{CompatibilityID: c1, URITemplate: "u/{id}",
		Entries: []iftmap.Entry{gkEntry(7, 'B'), gkEntry(8, 'C')}}
	base := sparseFont(t, m, runes, 'B', 'C')
	fetcher := &memFetcher{patches: map[string][]byte{
		"u/7": glyphPatch(c1, 2),
	}}
	baseline := iftmap.SubsetDefinition{Codepoints: iftmap.NewCodepointSet('C')}
	s, err := NewSession(base, textTarget("BC"),
		WithFetcher(fetcher), WithBaseline(baseline))
	if err != nil {
		t.Fatal(err)
	}
	out, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("extension failed: %v", err)
	}
	// C was vouched for by the baseline: entry 8 is neither fetched nor
	// retired from the map.
	if diff := cmp.Diff([]string{"u/7"}, fetcher.fetched()); diff != "" {
		t.Errorf("fetched URIs mismatch: %s", diff)
	}
	f, err := sfnt.Parse(out)
	if err != nil {
		t.Fatal(err)
	}
	fm, err := iftmap.FromFont(f)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint32{8}, fm.IDs()); diff != "" {
		t.Errorf("final map entries mismatch: %s", diff)
	}
}

func TestSessionWithoutFetcher(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift")
	defer teardown()
	runes := []rune{'A', 'B'}
	m := &iftmap.Map{CompatibilityID: compat(1), URITemplate: "p/{id}",
		Entries: []iftmap.Entry{gkEntry(10, 'B')}}
	base := sparseFont(t, m, runes, 'B')
	s, err := NewSession(base, textTarget("B"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(context.Background()); err == nil ||
		!strings.Contains(err.Error(), "no fetcher") {
		t.Fatalf("expected the missing fetcher to be reported, got %v", err)
	}
}

func TestSessionIsSingleShot(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift")
	defer teardown()
	base := fontsynth.Bytes('A', 'B')
	s, err := NewSession(base, textTarget("A"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("trivial extension failed: %v", err)
	}
	if _, err := s.Run(context.Background()); err == nil {
		t.Fatal("second Run on the same session should be rejected")
	}
	if s.State() != Done {
		t.Errorf("rejected rerun changed session state to %s", s.State())
	}
}

func TestSessionContextCancellation(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift")
	defer teardown()
	base := fontsynth.Bytes('A', 'B')
	s, err := NewSession(base, textTarget("A"))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if s.State() != Failed {
		t.Errorf("session state is %s, expected failed", s.State())
	}
}
