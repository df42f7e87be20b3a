package elfimg

import "errors"

// Sentinel errors returned by the rewrite primitives, matching the
// "Semantic impossibility" category of spec.md §7. CLI wrappers translate
// these (via errors.Is) to the exit codes in spec.md §6's tool table.
var (
	// ErrNoSpareDynamicTag is returned by DynTagAppend when .dynamic has
	// no trailing DT_NULL entry to repurpose.
	ErrNoSpareDynamicTag = errors.New("elfimg: no spare DT_NULL entry in .dynamic")

	// ErrUnimplementedGNUHash is returned by SymToDynReconcile when a
	// rename forces a hash-table rebuild but only SHT_GNU_HASH is
	// present. See design note "GNU hash rebuild".
	ErrUnimplementedGNUHash = errors.New("elfimg: rewriting GNU hash table is not implemented")

	// ErrNoDynamicSection is returned by DynTagAppend when the object has
	// no .dynamic section at all.
	ErrNoDynamicSection = errors.New("elfimg: no .dynamic section")

	// ErrNotStaticPIE is PIEToRel's precondition failure: the object
	// must be ET_DYN.
	ErrNotStaticPIE = errors.New("elfimg: not an ET_DYN (static PIE) object")
)
