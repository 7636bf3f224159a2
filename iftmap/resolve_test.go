package iftmap

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/npillmayer/ift/sfnt"
	"github.com/npillmayer/schuko/tracing/gotestingadapter"
)

func cpEntry(id uint32, lo, hi rune, inv ...uint32) Entry {
	return Entry{
		ID:     id,
		Format: GlyphKeyed,
		Subset: SubsetDefinition{
			Codepoints: CodepointSetOfRanges(CodepointRange{Low: lo, High: hi}),
		},
		Invalidates: inv,
	}
}

func cpTarget(lo, hi rune) SubsetDefinition {
	return SubsetDefinition{
		Codepoints: CodepointSetOfRanges(CodepointRange{Low: lo, High: hi}),
	}
}

func TestResolveNothingNeeded(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift.map")
	defer teardown()
	m := &Map{Entries: []Entry{cpEntry(1, 'A', 'Z')}}
	plan, err := Resolve(m, cpTarget('A', 'Z'), cpTarget('A', 'M'))
	if err != nil {
		t.Fatalf("resolving covered target: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("expected empty plan, got %v", plan.IDs())
	}
}

func TestResolveGreedyPicksLargestCover(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift.map")
	defer teardown()
	m := &Map{Entries: []Entry{
		cpEntry(1, 'A', 'M'),
		cpEntry(2, 'A', 'Z'),
		cpEntry(3, 'N', 'Z'),
	}}
	plan, err := Resolve(m, SubsetDefinition{}, cpTarget('A', 'Z'))
	if err != nil {
		t.Fatalf("resolving: %v", err)
	}
	if diff := cmp.Diff([]uint32{2}, plan.IDs()); diff != "" {
		t.Errorf("plan differs (-want +got):\n%s", diff)
	}
}

func TestResolveTieBreakLowestID(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift.map")
	defer teardown()
	// file order deliberately differs from id order
	m := &Map{Entries: []Entry{
		cpEntry(5, 'A', 'M'),
		cpEntry(3, 'A', 'M'),
		cpEntry(9, 'N', 'Z'),
	}}
	plan, err := Resolve(m, SubsetDefinition{}, cpTarget('A', 'Z'))
	if err != nil {
		t.Fatalf("resolving: %v", err)
	}
	if diff := cmp.Diff([]uint32{3, 9}, plan.IDs()); diff != "" {
		t.Errorf("plan differs (-want +got):\n%s", diff)
	}
}

func TestResolveInvalidationPrunesCandidates(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift.map")
	defer teardown()
	// entry 2 would cover N-Z but is invalidated by the chosen entry 1;
	// edge to 99 dangles and must be ignored
	m := &Map{Entries: []Entry{
		cpEntry(1, 'A', 'M', 2, 99),
		cpEntry(2, 'N', 'Z'),
		cpEntry(3, 'N', 'Z'),
	}}
	plan, err := Resolve(m, SubsetDefinition{}, cpTarget('A', 'Z'))
	if err != nil {
		t.Fatalf("resolving: %v", err)
	}
	if diff := cmp.Diff([]uint32{1, 3}, plan.IDs()); diff != "" {
		t.Errorf("plan differs (-want +got):\n%s", diff)
	}
}

func TestResolveChosenEntrySurvivesInvalidation(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift.map")
	defer teardown()
	m := &Map{Entries: []Entry{
		cpEntry(1, 'A', 'Z'),
		cpEntry(2, '0', '9', 1),
	}}
	targetSet := cpTarget('A', 'Z')
	targetSet.Codepoints = targetSet.Codepoints.Union(NewCodepointSet('0', '5'))
	plan, err := Resolve(m, SubsetDefinition{}, targetSet)
	if err != nil {
		t.Fatalf("resolving: %v", err)
	}
	if diff := cmp.Diff([]uint32{1, 2}, plan.IDs()); diff != "" {
		t.Errorf("plan differs (-want +got):\n%s", diff)
	}
}

func TestResolveUnsatisfiable(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift.map")
	defer teardown()
	m := &Map{Entries: []Entry{cpEntry(1, 'A', 'Z')}}
	targetSet := cpTarget('A', 'C')
	targetSet.Codepoints = targetSet.Codepoints.Union(NewCodepointSet('Ω'))
	plan, err := Resolve(m, SubsetDefinition{}, targetSet)
	if err == nil {
		t.Fatal("expected resolution to fail")
	}
	var uerr *UnsatisfiableError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *UnsatisfiableError, got %T", err)
	}
	if !uerr.Remaining.Codepoints.Contains('Ω') || uerr.Remaining.Codepoints.Contains('A') {
		t.Errorf("unexpected remainder %v", uerr.Remaining.Codepoints)
	}
	if !plan.Empty() {
		t.Errorf("failed resolution must yield no plan, got %v", plan.IDs())
	}
	t.Logf("resolution failed as expected: %v", err)
}

func TestResolveMixedDimensions(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift.map")
	defer teardown()
	m := &Map{Entries: []Entry{
		cpEntry(1, 'A', 'Z'),
		{
			ID:     2,
			Format: TableKeyed,
			Subset: SubsetDefinition{
				Features: NewFeatureSet(sfnt.T("liga")),
				DesignSpace: NewDesignSpace(AxisSegment{
					Axis: sfnt.T("wght"),
					Lo:   sfnt.FixedFromFloat(0),
					Hi:   sfnt.FixedFromFloat(1000),
				}),
			},
		},
	}}
	targetSet := cpTarget('A', 'Z')
	targetSet.Features = NewFeatureSet(sfnt.T("liga"))
	targetSet.DesignSpace = NewDesignSpace(AxisSegment{
		Axis: sfnt.T("wght"),
		Lo:   sfnt.FixedFromFloat(100),
		Hi:   sfnt.FixedFromFloat(400),
	})
	plan, err := Resolve(m, SubsetDefinition{}, targetSet)
	if err != nil {
		t.Fatalf("resolving: %v", err)
	}
	if diff := cmp.Diff([]uint32{1, 2}, plan.IDs()); diff != "" {
		t.Errorf("plan differs (-want +got):\n%s", diff)
	}
}

func TestResolveDeterminism(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "ift.map")
	defer teardown()
	m := &Map{Entries: []Entry{
		cpEntry(4, 'A', 'M'),
		cpEntry(2, 'H', 'T'),
		cpEntry(7, 'N', 'Z', 2),
	}}
	first, err := Resolve(m, SubsetDefinition{}, cpTarget('A', 'Z'))
	if err != nil {
		t.Fatalf("resolving: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := Resolve(m, SubsetDefinition{}, cpTarget('A', 'Z'))
		if err != nil {
			t.Fatalf("resolving again: %v", err)
		}
		if diff := cmp.Diff(first.IDs(), again.IDs()); diff != "" {
			t.Errorf("plan not deterministic (-first +again):\n%s", diff)
		}
	}
}
