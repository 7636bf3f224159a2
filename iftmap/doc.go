/*
Package iftmap reads, writes and resolves the patch map of an incremental
font.

An incrementally transferred font carries a table 'IFT ' describing the
patches available for it: which subset of the font each patch extends
(character codes, layout features, variation-space regions), the binary
format of the patch, and which other map entries a patch invalidates when
applied. The package models this table as a Map of Entries, provides the
canonical binary codec for it, and implements the selection step of the
extension algorithm: given what a font already supports and what a client
needs, Resolve produces the minimal ordered list of patches to fetch.

Selection is deterministic, identical inputs produce identical plans,
regardless of platform or map iteration order.

# License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © Norbert Pillmayer <norbert@pillmayer.com>
*/
package iftmap

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer writes to trace with key 'ift.map'
func tracer() tracing.Trace {
	return tracing.Select("ift.map")
}
