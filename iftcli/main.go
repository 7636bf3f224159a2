package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/npillmayer/schuko/schukonf/testconfig"
	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gologadapter"
	"github.com/npillmayer/schuko/tracing/trace2go"
	"github.com/pterm/pterm"

	"github.com/npillmayer/ift/iftmap"
	"github.com/npillmayer/ift/sfnt"
)

// tracer traces with key 'ift'
func tracer() tracing.Trace {
	return tracing.Select("ift")
}

func main() {
	initDisplay()

	// set up logging
	tracing.RegisterTraceAdapter("go", gologadapter.GetAdapter(), false)
	conf := testconfig.Conf{
		"tracing.adapter": "go",
		"trace.ift":       "Info",
	}
	if err := trace2go.ConfigureRoot(conf, "trace", trace2go.ReplaceTracers(true)); err != nil {
		fmt.Printf("error configuring tracing")
		os.Exit(1)
	}
	tracing.SetTraceSelector(trace2go.Selector())

	// command line flags
	tlevel := flag.String("trace", "Info", "Trace level [Debug|Info|Error]")
	fontname := flag.String("font", "", "Incremental font to load")
	patchdir := flag.String("patches", ".", "Directory the patch files live in")
	flag.Parse()
	tracer().SetTraceLevel(tracing.LevelError) // will set the correct level later
	pterm.Info.Println("Welcome to the incremental font CLI")
	//
	// set up REPL
	repl, err := readline.New("ift > ")
	if err != nil {
		tracer().Errorf(err.Error())
		os.Exit(3)
	}
	intp := &Intp{repl: repl, patches: *patchdir}
	//
	// load font to inspect, may also be done later with the font command
	if *fontname != "" {
		if err := intp.loadFont(*fontname); err != nil {
			tracer().Errorf(err.Error())
			os.Exit(4)
		}
	}
	//
	// start receiving commands
	pterm.Info.Println("Quit with <ctrl>D") // inform user how to stop the CLI
	switch *tlevel {
	case "Debug":
		tracer().SetTraceLevel(tracing.LevelDebug)
	case "Info":
		tracer().SetTraceLevel(tracing.LevelInfo)
	case "Error":
		tracer().SetTraceLevel(tracing.LevelError)
	default:
		tracer().Errorf("Invalid trace level: %s", *tlevel)
		os.Exit(5)
	}
	tracer().Infof("Trace level is %s", *tlevel)
	intp.REPL() // go into interactive mode
}

// We use pterm for moderately fancy output.
func initDisplay() {
	pterm.EnableDebugMessages()
	pterm.Info.Prefix = pterm.Prefix{
		Text:  " !  ",
		Style: pterm.NewStyle(pterm.BgCyan, pterm.FgBlack),
	}
	pterm.Error.Prefix = pterm.Prefix{
		Text:  " Error",
		Style: pterm.NewStyle(pterm.BgRed, pterm.FgBlack),
	}
}

// Intp is our interpreter object
type Intp struct {
	repl    *readline.Instance
	path    string      // file the font was loaded from
	binary  []byte      // current font, serialized
	font    *sfnt.Font  // current font, parsed
	pmap    *iftmap.Map // patch map of the current font, nil if none
	target  iftmap.SubsetDefinition
	patches string // directory patches are fetched from
}

func (intp *Intp) String() string {
	if intp == nil || intp.font == nil {
		return "( no font )"
	}
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("( font=%s", filepath.Base(intp.path)))
	if intp.pmap == nil {
		sb.WriteString(" map=none")
	} else {
		sb.WriteString(fmt.Sprintf(" map=%d entries", len(intp.pmap.Entries)))
	}
	if !intp.target.Empty() {
		sb.WriteString(fmt.Sprintf(" target=%s", intp.target))
	}
	sb.WriteString(" )")
	return sb.String()
}

// REPL starts interactive mode.
func (intp *Intp) REPL() {
	for {
		pterm.Println(intp.String())
		line, err := intp.repl.Readline()
		if err != nil { // io.EOF
			break
		}
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		cmd, err := intp.parseCommand(line)
		if err != nil {
			tracer().Errorf(err.Error())
			continue
		}
		err, quit := intp.execute(cmd)
		if err != nil {
			tracer().Errorf(err.Error())
			continue
		}
		if quit {
			break
		}
	}
	pterm.Info.Println("Good bye!")
}

type Op struct {
	code   int
	arg    string
	format string
}

type Command struct {
	count int
	op    [32]Op
}

const NOOP = -1
const (
	// op-code QUIT will not have arguments
	QUIT int = iota
	// op-codes below may have arguments
	HELP
	FONT
	INFO
	MAP
	ENTRIES
	ENTRY
	SUPPORT
	TARGET
	PLAN
	EXTEND
	PATCHES
	WRITE
)

var opMap = map[string]int{
	"quit":    QUIT,
	"help":    HELP,
	"font":    FONT,
	"info":    INFO,
	"map":     MAP,
	"entries": ENTRIES,
	"entry":   ENTRY,
	"support": SUPPORT,
	"target":  TARGET,
	"plan":    PLAN,
	"extend":  EXTEND,
	"patches": PATCHES,
	"write":   WRITE,
}

var opNames = []string{
	"quit",
	"help",
	"font",
	"info",
	"map",
	"entries",
	"entry",
	"support",
	"target",
	"plan",
	"extend",
	"patches",
	"write",
}

var command = Command{}

func resetCommand() {
	command.count = 0
	for i := range command.op {
		command.op[i].code = NOOP
		command.op[i].arg = ""
		command.op[i].format = ""
	}
}

func (intp *Intp) parseCommand(line string) (*Command, error) {
	resetCommand()
	steps := strings.Split(line, " ")
	command.count = len(steps)
	for i, step := range steps {
		c := strings.Split(step, ":") // e.g.  "entry:12" or "target:cp:U+4E00" or "plan"
		code, ok := opMap[strings.ToLower(c[0])]
		if !ok {
			code = HELP
		}
		command.op[i].code = code
		command.op[i].arg = ""
		if command.op[i].code <= QUIT {
			return &command, nil
		}
		command.op[i].arg = getOptArg(c, 1)
		command.op[i].format = getOptArg(c, 2)
		if command.op[i].arg == "" {
			tracer().Debugf("%s", opNames[command.op[i].code])
		} else {
			tracer().Debugf("%s: looking for '%s'", opNames[command.op[i].code], command.op[i].arg)
		}
	}
	return &command, nil
}

var commandFn = map[int]func(*Intp, *Op) (error, bool){
	QUIT:    quitOp,
	HELP:    helpOp,
	FONT:    fontOp,
	INFO:    infoOp,
	MAP:     mapOp,
	ENTRIES: entriesOp,
	ENTRY:   entryOp,
	SUPPORT: supportOp,
	TARGET:  targetOp,
	PLAN:    planOp,
	EXTEND:  extendOp,
	PATCHES: patchesOp,
	WRITE:   writeOp,
}

func (intp *Intp) execute(cmd *Command) (err error, stop bool) {
	tracer().Debugf("cmd = %v", cmd.op)
	for _, c := range cmd.op {
		if c.code == NOOP {
			break
		}
		f, ok := commandFn[c.code]
		if !ok {
			pterm.Error.Printf("unknown command code: %d\n", c.code)
			return nil, false
		}
		err, stop = f(intp, &c)
		if err != nil {
			pterm.Error.Println(err)
			return
		}
		if stop {
			return
		}
	}
	return
}

func quitOp(intp *Intp, op *Op) (error, bool) {
	pterm.Println("Goodbye!")
	return nil, true
}

// --- Font Loading -----------------------------------------------------

func fontOp(intp *Intp, op *Op) (error, bool) {
	if op.noArg() {
		if err := intp.checkFont(); err != nil {
			return err, false
		}
		pterm.Printf("font %s, %d bytes\n", intp.path, len(intp.binary))
		return nil, false
	}
	return intp.loadFont(op.arg), false
}

// loadFont reads a font file and makes it the current font; target and
// patch map state start over.
func (intp *Intp) loadFont(fontname string) error {
	binary, err := os.ReadFile(fontname)
	if err != nil {
		tracer().Errorf("cannot load font %s: %s", fontname, err)
		return err
	}
	f, err := sfnt.Parse(binary)
	if err != nil {
		tracer().Errorf("cannot decode font %s: %s", fontname, err)
		return err
	}
	intp.path, intp.binary, intp.font = fontname, binary, f
	intp.target = iftmap.SubsetDefinition{}
	intp.refreshMap()
	pterm.Printf("font tables: %v\n", f.Tags())
	return nil
}

// refreshMap re-reads the patch map off the current font.
func (intp *Intp) refreshMap() {
	m, err := iftmap.FromFont(intp.font)
	if err != nil {
		if !errors.Is(err, iftmap.ErrNoPatchMap) {
			tracer().Errorf("patch map unreadable: %s", err)
		}
		intp.pmap = nil
		return
	}
	intp.pmap = m
}

// ----------------------------------------------------------------------

var ERR_NO_FONT = errors.New("no font loaded")
var ERR_NO_MAP = errors.New("font carries no patch map")

func (intp *Intp) checkFont() error {
	if intp.font == nil {
		return ERR_NO_FONT
	}
	return nil
}

func (intp *Intp) checkMap() (*iftmap.Map, error) {
	if err := intp.checkFont(); err != nil {
		return nil, err
	}
	if intp.pmap == nil {
		return nil, ERR_NO_MAP
	}
	return intp.pmap, nil
}

func getOptArg(s []string, inx int) string {
	if len(s) > inx {
		return s[inx]
	}
	return ""
}

func (op *Op) noArg() bool {
	if op.arg == "" {
		return true
	}
	return false
}

func (op *Op) hasArg() (string, bool) {
	if op.arg == "" {
		return "", false
	}
	return op.arg, true
}
