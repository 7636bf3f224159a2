package sfnt

import "fmt"

// ParseError describes a structural violation of the sfnt container format.
// Every container error is fatal for incremental font transfer: a patch must
// never be applied to a font whose table directory cannot be trusted.
type ParseError struct {
	Table   Tag    // table where the error was detected (zero for the font header)
	Section string // specific structure within the table (e.g., "TableRecord", "Offsets")
	Issue   string // human-readable description of the issue
	Offset  uint32 // byte offset in the font file where the error occurred (0 if unknown)
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Table == 0 {
		return fmt.Sprintf("sfnt %s: %s", e.Section, e.Issue)
	}
	if e.Offset > 0 {
		return fmt.Sprintf("sfnt %s/%s at offset %d: %s", e.Table, e.Section, e.Offset, e.Issue)
	}
	return fmt.Sprintf("sfnt %s/%s: %s", e.Table, e.Section, e.Issue)
}

// errFormat produces user level errors for font parsing.
func errFormat(table Tag, section, issue string, offset uint32) *ParseError {
	return &ParseError{Table: table, Section: section, Issue: issue, Offset: offset}
}
