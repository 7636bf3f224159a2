package iftpatch

import (
	"fmt"

	"github.com/npillmayer/ift/sfnt"
)

// DecodeError describes a patch which could not be decoded: an unknown
// format tag, a malformed envelope, a payload failing decompression, or a
// payload whose length or checksum contradicts its declaration.
type DecodeError struct {
	Format sfnt.Tag // patch format tag, zero if not even that is known
	Reason string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Format == 0 {
		return fmt.Sprintf("cannot decode patch: %s", e.Reason)
	}
	return fmt.Sprintf("cannot decode %s patch: %s", e.Format, e.Reason)
}

func errDecode(format sfnt.Tag, reason string, args ...interface{}) *DecodeError {
	return &DecodeError{Format: format, Reason: fmt.Sprintf(reason, args...)}
}

// ApplyError describes a well-formed patch which does not fit the font it
// is applied to, e.g. a delta whose source table diverged from the patch
// baseline, or a glyph id beyond the font's glyph count. The font is
// unchanged when an ApplyError is returned.
type ApplyError struct {
	Table  sfnt.Tag // table the operation targets
	Op     string   // "replace", "delta", "drop" or "glyphs"
	Reason string
	Err    error // underlying error, may be nil
}

// Error implements the error interface.
func (e *ApplyError) Error() string {
	return fmt.Sprintf("cannot apply %s to table %s: %s", e.Op, e.Table, e.Reason)
}

// Unwrap grants access to an underlying error.
func (e *ApplyError) Unwrap() error {
	return e.Err
}

func errApply(table sfnt.Tag, op, reason string, args ...interface{}) *ApplyError {
	return &ApplyError{Table: table, Op: op, Reason: fmt.Sprintf(reason, args...)}
}
