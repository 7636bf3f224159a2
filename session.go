package ift

import (
	"context"
	"errors"
	"fmt"

	"github.com/npillmayer/ift/iftmap"
	"github.com/npillmayer/ift/iftpatch"
	"github.com/npillmayer/ift/sfnt"
)

// State names the phase an extension session is in. Sessions cycle through
// Resolving, Fetching and Applying until they end up Done or Failed.
type State int8

const (
	Idle State = iota
	Resolving
	Fetching
	Applying
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Resolving:
		return "resolving"
	case Fetching:
		return "fetching"
	case Applying:
		return "applying"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int8(s))
}

// DefaultMaxRounds bounds the extension loop of a session. Well-formed
// fonts converge in a handful of rounds; the bound is a safety net against
// maps which keep advertising patches that never deliver.
const DefaultMaxRounds = 32

// Session drives the extension of one incremental font towards a target
// subset. It repeatedly parses the font's patch map, resolves a plan,
// fetches the planned patches concurrently, and applies them in plan
// order, until the target is covered. Applying a patch changes the map —
// satisfied entries disappear, a table op may install a successor map
// advertising new patches — which is why resolution starts over on the
// patched font each round.
//
// A session is single-shot and not safe for concurrent use; the fetches
// it spawns internally are concurrent.
type Session struct {
	font       *sfnt.Font // last committed state
	binary     []byte     // serialization of font, kept in step
	target     iftmap.SubsetDefinition
	baseline   iftmap.SubsetDefinition // floor under the derived support
	granted    iftmap.SubsetDefinition // union of applied entries' subsets
	support    iftmap.SubsetDefinition // as of the last resolve
	fetcher    Fetcher
	expander   TemplateExpander
	decoder    iftpatch.Decoder
	maxRounds  int
	state      State
	rounds     int
	applied    map[uint32]bool
	appliedIDs []uint32
	lastPlan   []uint32
}

// Option configures a Session.
type Option func(*Session)

// WithFetcher installs the transport which retrieves patch files. A
// session without a fetcher can still run, but fails as soon as a patch
// would have to be fetched.
func WithFetcher(f Fetcher) Option {
	return func(s *Session) { s.fetcher = f }
}

// WithTemplateExpander replaces the default URI construction, which
// substitutes the decimal entry id for "{id}" in the map's template.
func WithTemplateExpander(x TemplateExpander) Option {
	return func(s *Session) { s.expander = x }
}

// WithDecoder replaces the decoder for compressed patch streams. The
// default is brotli with shared-dictionary support.
func WithDecoder(d iftpatch.Decoder) Option {
	return func(s *Session) { s.decoder = d }
}

// WithBaseline declares support the session may assume regardless of what
// it reads off the font, a floor under the derived support. Use it when
// the rendering stack guarantees coverage the font itself does not show.
func WithBaseline(support iftmap.SubsetDefinition) Option {
	return func(s *Session) { s.baseline = support }
}

// WithMaxRounds bounds the number of extension rounds, default
// DefaultMaxRounds. Values below 1 are ignored.
func WithMaxRounds(n int) Option {
	return func(s *Session) {
		if n >= 1 {
			s.maxRounds = n
		}
	}
}

// NewSession parses the font and prepares, but does not start, an
// extension towards target.
func NewSession(font []byte, target iftmap.SubsetDefinition, opts ...Option) (*Session, error) {
	f, err := sfnt.Parse(font)
	if err != nil {
		return nil, err
	}
	s := &Session{
		font:      f,
		binary:    font,
		target:    target,
		expander:  idExpander{},
		decoder:   iftpatch.BrotliDecoder{},
		maxRounds: DefaultMaxRounds,
		applied:   make(map[uint32]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the phase the session is in.
func (s *Session) State() State {
	return s.state
}

// Rounds returns the number of completed extension rounds.
func (s *Session) Rounds() int {
	return s.rounds
}

// Applied returns the ids of all applied entries, in application order.
func (s *Session) Applied() []uint32 {
	return append([]uint32(nil), s.appliedIDs...)
}

// Support returns the subset the session considered covered at its last
// resolution step.
func (s *Session) Support() iftmap.SubsetDefinition {
	return s.support
}

// Font returns the serialized font of the last committed state: the
// extended font after a successful run, the last consistent one after a
// failure. Before the first committed round it returns the input bytes.
func (s *Session) Font() []byte {
	return s.binary
}

// Run executes the extension loop and returns the extended font. On
// failure the font of the last committed state stays available through
// Font; a failed round never leaves a half-patched font behind.
func (s *Session) Run(ctx context.Context) ([]byte, error) {
	if s.state != Idle {
		return nil, fmt.Errorf("session ran already, state is %s", s.state)
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, s.fail(err)
		}
		s.state = Resolving
		m, err := iftmap.FromFont(s.font)
		if err != nil {
			if !errors.Is(err, iftmap.ErrNoPatchMap) {
				return nil, s.fail(err)
			}
			// No patch map. Fine for a font already covering the target,
			// fatal otherwise: nothing more can ever be fetched.
			if s.target.Subtract(s.computeSupport(nil)).Empty() {
				return s.done()
			}
			return nil, s.fail(err)
		}
		plan, err := iftmap.Resolve(m, s.computeSupport(m), s.target)
		if err != nil {
			return nil, s.fail(err)
		}
		if plan.Empty() {
			return s.done()
		}
		todo := s.pending(plan)
		tracer().Debugf("extension round %d plans entries %v", s.rounds+1, todo.IDs())
		if todo.Empty() || equalIDs(todo.IDs(), s.lastPlan) {
			return nil, s.fail(fmt.Errorf("%w: entries %v did not extend the font",
				ErrNonConvergence, plan.IDs()))
		}
		if s.rounds >= s.maxRounds {
			return nil, s.fail(fmt.Errorf("%w: round limit %d reached",
				ErrNonConvergence, s.maxRounds))
		}
		s.lastPlan = todo.IDs()
		s.state = Fetching
		if s.fetcher == nil {
			return nil, s.fail(errors.New("no fetcher configured, cannot retrieve patches"))
		}
		uris, err := s.expandURIs(m.URITemplate, todo)
		if err != nil {
			return nil, s.fail(err)
		}
		raws, err := fetchAll(ctx, s.fetcher, uris)
		if err != nil {
			return nil, s.fail(err)
		}
		s.state = Applying
		if err := s.applyRound(m, todo, raws); err != nil {
			return nil, s.fail(err)
		}
		s.rounds++
	}
}

func (s *Session) done() ([]byte, error) {
	s.state = Done
	tracer().Infof("font extension complete after %d rounds, %d patches applied",
		s.rounds, len(s.appliedIDs))
	return s.binary, nil
}

func (s *Session) fail(err error) error {
	s.state = Failed
	tracer().Errorf("font extension failed: %v", err)
	return err
}

// computeSupport derives the covered subset for one resolution round.
// Codepoint support is read off the current font: what the cmap claims,
// minus what pending entries still advertise — the map's word beats a
// patch's claim, which is what lets a successor map demand further rounds
// for codepoints an applied patch only partially delivered. Feature and
// design-space support cannot be read off the font and accumulate from
// applied entries instead. The caller-provided baseline floors all three.
func (s *Session) computeSupport(m *iftmap.Map) iftmap.SubsetDefinition {
	sup := BaselineSupport(s.font, m).Union(s.baseline)
	sup.Features = sup.Features.Union(s.granted.Features)
	sup.DesignSpace = sup.DesignSpace.Union(s.granted.DesignSpace)
	s.support = sup
	return sup
}

// pending filters entries already applied in earlier rounds out of a
// plan. A patch is fetched and applied at most once per session.
func (s *Session) pending(plan iftmap.Plan) iftmap.Plan {
	var out iftmap.Plan
	for _, e := range plan.Entries {
		if !s.applied[e.ID] {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}

func (s *Session) expandURIs(template string, plan iftmap.Plan) ([]string, error) {
	uris := make([]string, len(plan.Entries))
	for i := range plan.Entries {
		uri, err := s.expander.Expand(template, plan.Entries[i].ID)
		if err != nil {
			return nil, err
		}
		uris[i] = uri
	}
	return uris, nil
}

// applyRound decodes and applies the fetched patches in plan order to a
// working copy of the font, retires the applied entries from the embedded
// patch map, and commits. Failures discard the working copy.
func (s *Session) applyRound(m *iftmap.Map, plan iftmap.Plan, raws [][]byte) error {
	work := s.font.Clone()
	retired := make([]uint32, 0, len(plan.Entries))
	for i := range plan.Entries {
		e := &plan.Entries[i]
		p, err := iftpatch.Decode(raws[i], s.decoder)
		if err != nil {
			return err
		}
		if p.CompatibilityID != m.CompatibilityID {
			return fmt.Errorf("patch of entry %d answers to map %s, font map is %s",
				e.ID, compatString(p.CompatibilityID), compatString(m.CompatibilityID))
		}
		switch {
		case e.Format == iftmap.TableKeyed && p.Format == iftpatch.TableKeyedTag:
			err = iftpatch.ApplyTableKeyed(work, p, s.decoder)
		case e.Format == iftmap.GlyphKeyed && p.Format == iftpatch.GlyphKeyedTag:
			err = iftpatch.ApplyGlyphKeyed(work, p)
		default:
			err = fmt.Errorf("entry %d advertises a %s patch, server sent %s",
				e.ID, e.Format, p.Format)
		}
		if err != nil {
			return err
		}
		retired = append(retired, e.ID)
		retired = append(retired, e.Invalidates...)
	}
	if err := retireEntries(work, retired); err != nil {
		return err
	}
	binary, err := work.Bytes()
	if err != nil {
		return err
	}
	s.font, s.binary = work, binary
	for i := range plan.Entries {
		e := &plan.Entries[i]
		s.applied[e.ID] = true
		s.appliedIDs = append(s.appliedIDs, e.ID)
		s.granted = s.granted.Union(e.Subset)
	}
	tracer().Infof("extension round %d applied %d patches, font has %d bytes now",
		s.rounds+1, len(plan.Entries), len(binary))
	return nil
}

// retireEntries removes the applied and invalidated ids from the font's
// patch map. A table op may have installed a successor map meanwhile;
// removal then hits whatever of the ids the successor still lists, ids
// without an entry are ignored. A font whose map vanished is final.
func retireEntries(f *sfnt.Font, ids []uint32) error {
	m, err := iftmap.FromFont(f)
	if errors.Is(err, iftmap.ErrNoPatchMap) {
		return nil
	}
	if err != nil {
		return err
	}
	raw, err := m.Remove(ids...).Bytes()
	if err != nil {
		return err
	}
	f.SetTable(iftmap.TableTag, raw)
	return nil
}

func compatString(id [4]uint32) string {
	return fmt.Sprintf("%08x:%08x:%08x:%08x", id[0], id[1], id[2], id[3])
}

func equalIDs(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
