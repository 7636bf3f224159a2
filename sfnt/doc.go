/*
Package sfnt provides a mutable model of an sfnt font container (TrueType
and OpenType flavours), as needed by incremental font transfer.

Incremental font transfer patches fonts at the granularity of whole tables
and of single glyph records. That dictates the shape of this package: a font
is a directory of tagged byte segments which can be read, replaced, added
and dropped, plus a serializer which reproduces a structurally valid font
file from the directory. Serialization recomputes every derived quantity of
the container format, i.e. table offsets and lengths, per-table checksums,
the binary-search fields of the table directory, and the font-wide checksum
adjustment in table 'head'.

Package sfnt will not interpret the majority of tables; clients receive the
raw bytes and impose structure themselves. The few tables the engine has to
understand structurally (head, maxp, loca, cmap, name) have small typed
readers in this package.

# Status

Font collections ('ttcf') are not supported; incremental fonts are always
single-font files.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © Norbert Pillmayer <norbert@pillmayer.com>
*/
package sfnt

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer writes to trace with key 'ift.sfnt'
func tracer() tracing.Trace {
	return tracing.Select("ift.sfnt")
}
