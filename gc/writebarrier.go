package gc

import (
	"sync/atomic"
	"unsafe"

	"github.com/mem-gc/otfgc/internal/header"
)

// prelude runs the otf_write_barrier_prelude logic: if parent is being
// traced and hasn't yet had its pre-image captured this cycle, snapshot its
// current children before the caller overwrites one of them, and note the
// parent so its log slot gets cleared once the cycle finishes.
func prelude[H ~uint64](m *Mutator[H], parent unsafe.Pointer, seg int) {
	if parent == nil || !m.Tracing() {
		return
	}

	o := m.col.reg.lookup(parent)
	if o == nil {
		return
	}

	raw := o.hdr.Load()
	if header.Color(raw) == m.allocColor {
		return
	}
	if o.log.Load() != nil {
		return
	}

	h := H(raw)
	var children []unsafe.Pointer
	if numLog := m.col.tracer.NumLogPtrs(h); numLog == 0 {
		children = m.col.tracer.DerivedPtrs(h, parent)
	} else {
		// One log slot covers the whole object (unlike the original's
		// per-segment log-pointer array), so the snapshot taken here has to
		// cover every segment, not just the one the caller is about to
		// mutate — otherwise a live pointer sitting in an untouched segment
		// would never be captured and would silently drop out of the root
		// set. seg is kept in the signature for symmetry with WriteRef/
		// CompareAndSwapRef's call shape; prelude itself no longer uses it.
		for s := 0; s < numLog; s++ {
			children = append(children, m.col.tracer.SegmentDerivedPtrs(h, parent, s)...)
		}
	}

	if len(children) == 0 {
		return
	}
	if o.log.Load() != nil {
		return
	}

	o.loggedChildren.Store(&children)
	if o.log.CompareAndSwapNil(logSentinel) {
		m.PushFrontBuffer(parent)
	}
}

// logSentinel is stored in an object's LogPtr slot to mark it logged for the
// current cycle. Its value is never dereferenced — only compared against
// nil — so any distinct non-nil address works.
var logSentinelTarget byte
var logSentinel = unsafe.Pointer(&logSentinelTarget)

// WriteRef performs the write barrier's prelude, then publishes val into
// dst, finally snooping val if the mutator is in a snapshot phase.
// parent is the payload pointer of the object dst lives inside; seg is
// which of that object's segments dst belongs to (0 for small, single-segment
// objects).
func WriteRef[H ~uint64, T any](m *Mutator[H], parent unsafe.Pointer, seg int, dst *atomic.Pointer[T], val *T) {
	prelude(m, parent, seg)
	dst.Store(val)
	if m.Snooping() && val != nil {
		m.PushFrontSnooping(unsafe.Pointer(val))
	}
}

// CompareAndSwapRef performs the write barrier's prelude, then attempts to
// install desired in place of expected, snooping desired only if the swap
// succeeds.
func CompareAndSwapRef[H ~uint64, T any](m *Mutator[H], parent unsafe.Pointer, seg int, dst *atomic.Pointer[T], expected, desired *T) bool {
	prelude(m, parent, seg)
	ok := dst.CompareAndSwap(expected, desired)
	if ok && m.Snooping() && desired != nil {
		m.PushFrontSnooping(unsafe.Pointer(desired))
	}
	return ok
}
