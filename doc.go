/*
Package ift implements the client side of incremental font transfer.

An incremental font starts life as a small initial file: complete enough to
render some core repertoire, but with most glyph outlines, layout features
or variation ranges left out. The font carries a patch map, an embedded
table listing binary patches the client may fetch, with a description of
what each patch adds. Extending the font for a piece of text is a loop:

  1. resolve — read the patch map and select a minimal, deterministic
     plan of patches whose subsets cover what is missing,
  2. fetch — retrieve the planned patches, concurrently,
  3. apply — decode each patch and splice it into the font, sequentially
     and atomically per patch,

repeated until the target is covered, since applying a patch may install
a successor patch map advertising further patches. Session is the driver
of this loop; Extend wraps it for the common one-shot case.

Subordinate packages do the heavy lifting: sfnt models the font container,
iftmap parses patch maps and resolves patch plans, iftpatch decodes and
applies the two binary patch formats.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © Norbert Pillmayer <norbert@pillmayer.com>
*/
package ift

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer writes to trace with key 'ift'
func tracer() tracing.Trace {
	return tracing.Select("ift")
}
