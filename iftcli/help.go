package main

import (
	"strings"

	"github.com/pterm/pterm"
)

func helpOp(intp *Intp, op *Op) (error, bool) {
	help(op.arg)
	return nil, false
}

func help(topic string) {
	tracer().Infof("help %v", topic)
	t := strings.ToLower(topic)
	switch t {
	case "target":
		pterm.Info.Println("target")
		pterm.Println(`
	target:text:<text>      cover every character of <text>
	target:cp:<codepoints>  cover codepoints, e.g. target:cp:U+4E00,U+4E8C-4E9F
	target:feature:<tags>   cover layout features, e.g. target:feature:liga
	target:clear            start over with an empty target
	target                  show the current target

	Kinds accumulate: several target steps build up one combined target.
	Steps are separated by spaces, so text containing a space has to be
	given as several target:text: steps.
	`)
	case "plan", "resolve":
		pterm.Info.Println("plan")
		pterm.Println(`
	plan resolves the current target against the patch map: which patches
	would have to be fetched, and in which order. Invalidating patches
	come first, the remaining need is covered with as few patches as
	possible. The plan is a preview, nothing is fetched.
	`)
	case "extend":
		pterm.Info.Println("extend")
		pterm.Println(`
	extend runs the full extension loop for the current target: resolve a
	plan, fetch the patches from the patch directory (see the patches
	command), apply them, and repeat on the patched font until the target
	is covered. The extended font replaces the current font; save it with
	write:<path>.
	`)
	case "map", "entries", "entry":
		pterm.Info.Println("map / entries / entry")
		pterm.Println(`
	map shows the patch map header: the compatibility id patches have to
	answer to, and the URI template patch locations are derived from.

	entries lists all entries the map advertises. An entry names a patch,
	the subset it adds to the font, and the entries it invalidates.
	entry:<id> shows a single entry together with its patch URI.
	`)
	default:
		pterm.Info.Println("Commands")
		pterm.Println(`
	font:<path>     load a font file
	info            show font diagnostics
	map             show the patch map header
	entries         list the patch map entries
	entry:<id>      show one entry in detail
	support         show what the font covers already
	target:...      build up the extension target (help:target)
	plan            preview which patches the target needs (help:plan)
	extend          fetch and apply patches until the target is covered
	patches:<dir>   set the directory patches are fetched from
	write:<path>    save the current font
	quit            leave

	Commands can be chained on one line, separated by spaces.
	`)
	}
}
