package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/npillmayer/ift"
	"github.com/npillmayer/ift/iftmap"
	"github.com/npillmayer/ift/sfnt"
)

func infoOp(intp *Intp, op *Op) (err error, stop bool) {
	if err = intp.checkFont(); err != nil {
		return
	}
	pterm.Printf("path:    %s\n", intp.path)
	if family := intp.font.Name(sfnt.NameFamily); family != "" {
		pterm.Printf("family:  %s\n", family)
	}
	if version := intp.font.Name(sfnt.NameVersion); version != "" {
		pterm.Printf("version: %s\n", version)
	}
	pterm.Printf("tables:  %v\n", intp.font.Tags())
	if err := sfnt.ValidateChecksums(intp.binary); err != nil {
		pterm.Error.Printf("checksums invalid: %v\n", err)
	} else {
		pterm.Println("checksums ok")
	}
	return
}

func mapOp(intp *Intp, op *Op) (err error, stop bool) {
	var m *iftmap.Map
	if m, err = intp.checkMap(); err != nil {
		return
	}
	pterm.Printf("compatibility id: %s\n", formatCompat(m.CompatibilityID))
	pterm.Printf("URI template:     %s\n", m.URITemplate)
	pterm.Printf("entries:          %d\n", len(m.Entries))
	return
}

func entriesOp(intp *Intp, op *Op) (err error, stop bool) {
	var m *iftmap.Map
	if m, err = intp.checkMap(); err != nil {
		return
	}
	printEntries(m)
	return
}

func entryOp(intp *Intp, op *Op) (err error, stop bool) {
	var m *iftmap.Map
	if m, err = intp.checkMap(); err != nil {
		return
	}
	arg, ok := op.hasArg()
	if !ok {
		return errors.New("which entry? e.g. entry:12"), false
	}
	id, perr := strconv.ParseUint(arg, 10, 32)
	if perr != nil {
		return fmt.Errorf("entry id not numeric: %v", arg), false
	}
	e := m.Entry(uint32(id))
	if e == nil {
		return fmt.Errorf("map has no entry %d", id), false
	}
	printEntry(e, m)
	return
}

func supportOp(intp *Intp, op *Op) (err error, stop bool) {
	if err = intp.checkFont(); err != nil {
		return
	}
	sup := ift.BaselineSupport(intp.font, intp.pmap)
	pterm.Printf("font covers %s\n", sup)
	if !intp.target.Empty() {
		if needed := intp.target.Subtract(sup); needed.Empty() {
			pterm.Println("target is covered")
		} else {
			pterm.Printf("target still needs %s\n", needed)
		}
	}
	return
}

func targetOp(intp *Intp, op *Op) (err error, stop bool) {
	kind, ok := op.hasArg()
	if !ok {
		if intp.target.Empty() {
			pterm.Println("no target set, see help:target")
		} else {
			pterm.Printf("target is %s\n", intp.target)
		}
		return
	}
	switch strings.ToLower(kind) {
	case "text":
		intp.target.Codepoints = intp.target.Codepoints.Union(ift.CodepointsOfText(op.format))
	case "cp", "codepoints":
		var set iftmap.CodepointSet
		if set, err = parseCodepoints(op.format); err != nil {
			return
		}
		intp.target.Codepoints = intp.target.Codepoints.Union(set)
	case "feature", "features":
		var fs iftmap.FeatureSet
		if fs, err = parseFeatures(op.format); err != nil {
			return
		}
		intp.target.Features = intp.target.Features.Union(fs)
	case "clear":
		intp.target = iftmap.SubsetDefinition{}
	default:
		err = fmt.Errorf("unknown target kind '%s', see help:target", kind)
	}
	return
}

func planOp(intp *Intp, op *Op) (err error, stop bool) {
	var m *iftmap.Map
	if m, err = intp.checkMap(); err != nil {
		return
	}
	if intp.target.Empty() {
		return errors.New("no target set, nothing to plan"), false
	}
	support := ift.BaselineSupport(intp.font, m)
	plan, rerr := iftmap.Resolve(m, support, intp.target)
	if rerr != nil {
		return rerr, false
	}
	if plan.Empty() {
		pterm.Println("target is covered, nothing to fetch")
		return
	}
	printPlan(plan, m)
	return
}

func extendOp(intp *Intp, op *Op) (err error, stop bool) {
	if err = intp.checkFont(); err != nil {
		return
	}
	if intp.target.Empty() {
		return errors.New("no target set, nothing to extend"), false
	}
	session, serr := ift.NewSession(intp.binary, intp.target,
		ift.WithFetcher(&ift.DirFetcher{Dir: intp.patches}))
	if serr != nil {
		return serr, false
	}
	before := len(intp.binary)
	out, rerr := session.Run(context.Background())
	if rerr != nil {
		return rerr, false
	}
	f, perr := sfnt.Parse(out)
	if perr != nil {
		return perr, false
	}
	intp.binary, intp.font = out, f
	intp.refreshMap()
	pterm.Printf("applied patches %v in %d round(s), %d -> %d bytes\n",
		session.Applied(), session.Rounds(), before, len(out))
	return
}

func patchesOp(intp *Intp, op *Op) (err error, stop bool) {
	if dir, ok := op.hasArg(); ok {
		intp.patches = dir
	}
	pterm.Printf("patch directory is %s\n", intp.patches)
	return
}

func writeOp(intp *Intp, op *Op) (err error, stop bool) {
	if err = intp.checkFont(); err != nil {
		return
	}
	path, ok := op.hasArg()
	if !ok {
		return errors.New("write where? e.g. write:extended.ttf"), false
	}
	if err = os.WriteFile(path, intp.binary, 0o644); err != nil {
		return
	}
	pterm.Printf("wrote %s (%d bytes)\n", path, len(intp.binary))
	return
}

// parseCodepoints accepts a comma-separated list of codepoints and ranges,
// like "U+4E00,U+4E8C" or "U+4E00-4EFF". Bare hex and 0x-prefixed forms
// work as well.
func parseCodepoints(spec string) (iftmap.CodepointSet, error) {
	var ranges []iftmap.CodepointRange
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		lo := token
		hi := ""
		if dash := strings.LastIndexByte(token, '-'); dash > 0 {
			lo, hi = token[:dash], token[dash+1:]
		}
		r1, err := parseCodepoint(lo)
		if err != nil {
			return iftmap.CodepointSet{}, err
		}
		r2 := r1
		if hi != "" {
			if r2, err = parseCodepoint(hi); err != nil {
				return iftmap.CodepointSet{}, err
			}
		}
		if r2 < r1 {
			return iftmap.CodepointSet{}, fmt.Errorf("descending codepoint range %q", token)
		}
		ranges = append(ranges, iftmap.CodepointRange{Low: r1, High: r2})
	}
	if len(ranges) == 0 {
		return iftmap.CodepointSet{}, errors.New("no codepoints given")
	}
	return iftmap.CodepointSetOfRanges(ranges...), nil
}

func parseCodepoint(token string) (rune, error) {
	hex := token
	switch {
	case strings.HasPrefix(hex, "U+"), strings.HasPrefix(hex, "u+"):
		hex = hex[2:]
	case strings.HasPrefix(hex, "0x"), strings.HasPrefix(hex, "0X"):
		hex = hex[2:]
	}
	u, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid codepoint %q: %w", token, err)
	}
	return rune(u), nil
}

// parseFeatures accepts a comma-separated list of 4-character layout
// feature tags, like "liga" or "liga,smcp".
func parseFeatures(spec string) (iftmap.FeatureSet, error) {
	var tags []sfnt.Tag
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if len(token) != 4 {
			return nil, fmt.Errorf("feature tag %q is not 4 characters", token)
		}
		tags = append(tags, sfnt.T(token))
	}
	if len(tags) == 0 {
		return nil, errors.New("no feature tags given")
	}
	return iftmap.NewFeatureSet(tags...), nil
}
