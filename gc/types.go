package gc

import "unsafe"

// Tracer lets the collector walk a host type's pointer fields without
// knowing their layout. H is the host's own header newtype (e.g.
// `type DemoHeader uint64`), constrained to ~uint64 so the collector can
// convert a raw header.Word load directly into H with no boxing or decode
// callback — the compile-time polymorphism spec.md's design notes ask for,
// in place of the original's template-parameterized Tracer/Policy classes.
//
// This is a deliberate simplification of marker.hpp's copy_obj/copy_obj_segment
// staging step: the C++ original takes a malloc'd snapshot of an object
// before reading its derived pointers, because a concurrent mutator could
// otherwise tear a multi-word read. A Go Tracer instead returns a
// []unsafe.Pointer of an object's current children directly — safe here
// because every field a Tracer exposes is itself a single machine word
// behind a WriteBarrier, and word-sized loads don't tear.
type Tracer[H ~uint64] interface {
	// NumLogPtrs reports how many write-barrier log-pointer slots precede
	// an object with header value h: zero for small, single-segment cells,
	// or one per segment for large, multi-segment blocks.
	NumLogPtrs(h H) int

	// DerivedPtrs returns obj's pointer fields, for objects with no
	// per-segment log pointers (NumLogPtrs(h) == 0).
	DerivedPtrs(h H, obj unsafe.Pointer) []unsafe.Pointer

	// SegmentDerivedPtrs returns the pointer fields that live within
	// segment seg of a multi-segment object.
	SegmentDerivedPtrs(h H, obj unsafe.Pointer, seg int) []unsafe.Pointer
}

// Policy lets the collector finalize an object once it's known unreachable.
type Policy[H ~uint64] interface {
	// Destroy is called once per reclaimed object, with its last header
	// value and its storage. Implementations run any host-side finalizer
	// and must not retain obj afterward.
	Destroy(h H, obj unsafe.Pointer)
}
