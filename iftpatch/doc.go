/*
Package iftpatch decodes and applies incremental font transfer patches.

Patches arrive in two binary formats. Table-keyed patches ('iftk') carry a
list of operations on whole font tables: replace a table with a shipped
payload, transform a table by applying a compressed delta against its
current bytes, or drop a table altogether. Glyph-keyed patches ('ifgk')
carry outline data for individual glyph ids and are spliced into the glyf
and loca tables of the font, leaving every other table untouched.

Patch payloads are compressed with shared brotli. Delta streams use the
current table bytes as the compression dictionary, which is what makes
table deltas small: the encoder references the receiver's copy instead of
re-transmitting unchanged parts. Decoding is strict, declared lengths and
checksums of every payload are verified and mismatches abort the patch
before the font is touched.

Application is atomic per patch: either every operation of a patch is
applied to the font, or the font is left exactly as it was.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © Norbert Pillmayer <norbert@pillmayer.com>
*/
package iftpatch

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer writes to trace with key 'ift.patch'
func tracer() tracing.Trace {
	return tracing.Select("ift.patch")
}
