package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/flopp/go-findfont"
	"github.com/thatisuday/commando"

	"github.com/npillmayer/ift"
	"github.com/npillmayer/ift/iftmap"
	"github.com/npillmayer/ift/sfnt"
)

func main() {
	commando.
		SetExecutableName("ift-tools").
		SetVersion("v0.1.0").
		SetDescription("CLI for extending incremental fonts and inspecting their patch maps.")

	commando.
		Register(nil).
		AddFlag("verbose,V", "display additional output", commando.Bool, nil)

	commando.
		Register("extend").
		SetDescription("Extend an incremental font until it covers the given text, codepoints and features.").
		SetShortDescription("extend a font").
		AddArgument("font", "font file path, or family name looked up via the system font folders", "").
		AddFlag("text,t", "text the extended font has to cover", commando.String, "-").
		AddFlag("codepoints,c", "codepoints to cover (e.g. U+4E00,U+4E8C or ranges U+4E00-4EFF)", commando.String, "-").
		AddFlag("features,f", "layout feature tags to cover (e.g. liga,smcp)", commando.String, "-").
		AddFlag("patches,p", "directory holding the patch files", commando.String, ".").
		AddFlag("output,o", "output font file", commando.String, "extended.ttf").
		AddFlag("max-rounds,r", "bound for extension rounds", commando.Int, ift.DefaultMaxRounds).
		SetAction(runExtendCommand)

	commando.
		Register("map").
		SetDescription("List the patch map entries of an incremental font.").
		SetShortDescription("list patch map").
		AddArgument("font", "font file path, or family name looked up via the system font folders", "").
		SetAction(runMapCommand)

	commando.
		Register("info").
		SetDescription("Print diagnostics and table information for a font.").
		SetShortDescription("font diagnostics").
		AddArgument("font", "font file path, or family name looked up via the system font folders", "").
		SetAction(runInfoCommand)

	commando.Parse(nil)
}

func runExtendCommand(args map[string]commando.ArgValue, flags map[string]commando.FlagValue) {
	path, binary := mustReadFont(args["font"])
	target, err := parseTarget(flags)
	if err != nil {
		fatalf("%v", err)
	}
	if target.Empty() {
		fatalf("nothing to cover, give --text, --codepoints or --features")
	}
	dir := optionalFlagString(flags["patches"], "patches")
	if dir == "" {
		dir = "."
	}
	out, err := ift.Extend(context.Background(), binary, target,
		&ift.DirFetcher{Dir: dir},
		ift.WithMaxRounds(mustFlagInt(flags["max-rounds"], "max-rounds")))
	if err != nil {
		fatalf("cannot extend %s: %v", path, err)
	}
	outPath := optionalFlagString(flags["output"], "output")
	if outPath == "" {
		fatalf("output path is empty")
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		fatalf("cannot write extended font: %v", err)
	}
	fmt.Printf("wrote %s (%d bytes, extended from %d)\n", outPath, len(out), len(binary))
}

func runMapCommand(args map[string]commando.ArgValue, flags map[string]commando.FlagValue) {
	path, binary := mustReadFont(args["font"])
	f, err := sfnt.Parse(binary)
	if err != nil {
		fatalf("cannot parse font %s: %v", path, err)
	}
	m, err := iftmap.FromFont(f)
	if errors.Is(err, iftmap.ErrNoPatchMap) {
		fmt.Printf("%s carries no patch map\n", path)
		return
	}
	if err != nil {
		fatalf("cannot read patch map of %s: %v", path, err)
	}
	fmt.Printf("Compatibility: %08x:%08x:%08x:%08x\n",
		m.CompatibilityID[0], m.CompatibilityID[1], m.CompatibilityID[2], m.CompatibilityID[3])
	fmt.Printf("URI template: %s\n", m.URITemplate)
	fmt.Printf("Entries (%d):\n", len(m.Entries))
	for _, e := range m.Entries {
		line := fmt.Sprintf("  %6d  %-11s  %s", e.ID, e.Format, e.Subset)
		if len(e.Invalidates) > 0 {
			line += fmt.Sprintf("  invalidates %v", e.Invalidates)
		}
		fmt.Println(line)
	}
}

func runInfoCommand(args map[string]commando.ArgValue, flags map[string]commando.FlagValue) {
	path, binary := mustReadFont(args["font"])
	f, err := sfnt.Parse(binary)
	if err != nil {
		fatalf("cannot parse font %s: %v", path, err)
	}
	fmt.Printf("Path: %s\n", path)
	fmt.Printf("Type: %s\n", scalerName(f.ScalerType))
	if family := f.Name(sfnt.NameFamily); family != "" {
		fmt.Printf("Family: %s\n", family)
	}
	if sub := f.Name(sfnt.NameSubfamily); sub != "" {
		fmt.Printf("Subfamily: %s\n", sub)
	}
	if version := f.Name(sfnt.NameVersion); version != "" {
		fmt.Printf("Version: %s\n", version)
	}
	tags := f.Tags()
	fmt.Printf("Tables (%d):", len(tags))
	for _, tag := range tags {
		fmt.Printf(" %s", tag)
	}
	fmt.Println()
	if err := sfnt.ValidateChecksums(binary); err != nil {
		fmt.Printf("Checksums: INVALID (%v)\n", err)
	} else {
		fmt.Println("Checksums: ok")
	}
	m, err := iftmap.FromFont(f)
	switch {
	case errors.Is(err, iftmap.ErrNoPatchMap):
		fmt.Println("Patch map: none, font is not incremental")
	case err != nil:
		fmt.Printf("Patch map: unreadable (%v)\n", err)
	default:
		fmt.Printf("Patch map: %d entries, template %q\n", len(m.Entries), m.URITemplate)
	}
}

func parseTarget(flags map[string]commando.FlagValue) (iftmap.SubsetDefinition, error) {
	var target iftmap.SubsetDefinition
	if text := optionalFlagString(flags["text"], "text"); text != "" {
		target.Codepoints = ift.CodepointsOfText(text)
	}
	if spec := optionalFlagString(flags["codepoints"], "codepoints"); spec != "" {
		set, err := parseCodepointSet(spec)
		if err != nil {
			return target, err
		}
		target.Codepoints = target.Codepoints.Union(set)
	}
	if spec := optionalFlagString(flags["features"], "features"); spec != "" {
		fs, err := parseFeatureSet(spec)
		if err != nil {
			return target, err
		}
		target.Features = fs
	}
	return target, nil
}

func parseCodepointSet(spec string) (iftmap.CodepointSet, error) {
	parts := splitCSVSpace(spec)
	ranges := make([]iftmap.CodepointRange, 0, len(parts))
	for _, p := range parts {
		lo, hi, err := parseCodepointRange(p)
		if err != nil {
			return iftmap.CodepointSet{}, err
		}
		ranges = append(ranges, iftmap.CodepointRange{Low: lo, High: hi})
	}
	return iftmap.CodepointSetOfRanges(ranges...), nil
}

func parseCodepointRange(token string) (rune, rune, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, 0, errors.New("empty codepoint token")
	}
	if dash := strings.LastIndexByte(token, '-'); dash > 0 {
		lo, err := parseCodepointToken(token[:dash])
		if err != nil {
			return 0, 0, err
		}
		hi, err := parseCodepointToken(token[dash+1:])
		if err != nil {
			return 0, 0, err
		}
		if hi < lo {
			return 0, 0, fmt.Errorf("descending codepoint range %q", token)
		}
		return lo, hi, nil
	}
	r, err := parseCodepointToken(token)
	return r, r, err
}

func parseCodepointToken(token string) (rune, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, errors.New("empty codepoint token")
	}
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

func parseFeatureSet(spec string) (iftmap.FeatureSet, error) {
	parts := splitCSVSpace(spec)
	tags := make([]sfnt.Tag, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) != 4 {
			return nil, fmt.Errorf("feature tag %q is not 4 characters", p)
		}
		tags = append(tags, sfnt.T(p))
	}
	return iftmap.NewFeatureSet(tags...), nil
}

func splitCSVSpace(spec string) []string {
	return strings.FieldsFunc(spec, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

func scalerName(scaler uint32) string {
	switch scaler {
	case sfnt.ScalerTrueType:
		return "TrueType"
	case sfnt.ScalerCFF:
		return "OpenType/CFF"
	case sfnt.ScalerApple:
		return "TrueType (Apple)"
	}
	return fmt.Sprintf("unknown (%08x)", scaler)
}

// mustReadFont resolves a font argument to a file, trying the argument as
// a path first and as a family name for the system font folders second.
func mustReadFont(arg commando.ArgValue) (string, []byte) {
	spec := strings.TrimSpace(arg.Value)
	if spec == "" {
		fatalf("font argument is required")
	}
	path := spec
	if _, err := os.Stat(path); err != nil {
		found, ferr := findfont.Find(spec)
		if ferr != nil {
			fatalf("cannot locate font %s: %v", spec, ferr)
		}
		path = found
	}
	b, err := os.ReadFile(path)
	if err != nil {
		fatalf("cannot read font %s: %v", path, err)
	}
	return path, b
}

func mustFlagInt(flag commando.FlagValue, name string) int {
	n, err := flag.GetInt()
	if err != nil {
		fatalf("invalid --%s flag: %v", name, err)
	}
	return n
}

func optionalFlagString(flag commando.FlagValue, name string) string {
	s, err := flag.GetString()
	if err != nil {
		fatalf("invalid --%s flag: %v", name, err)
	}
	s = strings.TrimSpace(s)
	if s == "-" {
		return ""
	}
	return s
}

func fatalf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(os.Stderr, "ift-tools: "+format+"\n", args...)
	os.Exit(1)
}
