package gc

import (
	"sync/atomic"
	"unsafe"

	"github.com/mem-gc/otfgc/internal/atomiclist"
	"github.com/mem-gc/otfgc/internal/header"
	"github.com/mem-gc/otfgc/internal/phase"
)

// marker walks a root set to completion, recoloring every reachable object
// to the collector's current alloc color, grounded on marker.hpp's mark/mark_indiv.
type marker[H ~uint64] struct {
	tracer   Tracer[H]
	reg      *registry[H]
	roots    *atomiclist.Private[unsafe.Pointer]
	tickFreq int
}

func newMarker[H ~uint64](tracer Tracer[H], reg *registry[H], roots *atomiclist.Private[unsafe.Pointer], tickFreq int) *marker[H] {
	if tickFreq <= 0 {
		tickFreq = 64
	}
	return &marker[H]{tracer: tracer, reg: reg, roots: roots, tickFreq: tickFreq}
}

// mark processes roots until the queue drains or running flips false,
// checking running only every tickFreq (Config.MarkTickFrequency) roots so
// the check itself doesn't dominate the loop.
func (m *marker[H]) mark(target phase.Color, running *atomic.Bool) {
	ticks := 0
	for {
		n := m.roots.PopFront()
		if n == nil {
			return
		}
		if n.Value != nil {
			m.markIndiv(n.Value, target)
		}
		ticks++
		if ticks%m.tickFreq == 0 && !running.Load() {
			return
		}
	}
}

func (m *marker[H]) markIndiv(root unsafe.Pointer, target phase.Color) {
	o := m.reg.lookup(root)
	if o == nil {
		return
	}

	raw := o.hdr.Load()
	h := H(raw)
	if header.Color(raw) == target {
		return
	}

	// A write barrier's prelude always snapshots an object's *entire* set of
	// derived pointers the first time it fires this cycle — across every
	// segment, not just the one the caller was about to mutate — so a
	// non-nil loggedChildren is always a complete pre-image regardless of
	// NumLogPtrs. Only fall back to deriving live pointers when no barrier
	// has captured this object yet this cycle. The snapshot is trusted only
	// while the log slot is set: a snapshot left over from an earlier cycle
	// whose log slot has since been cleared is ignored.
	var snapshot *[]unsafe.Pointer
	if o.log.Load() != nil {
		snapshot = o.loggedChildren.Load()
	}
	var children []unsafe.Pointer
	if snapshot != nil {
		children = *snapshot
	} else if numLog := m.tracer.NumLogPtrs(h); numLog == 0 {
		children = m.tracer.DerivedPtrs(h, root)
	} else {
		for seg := 0; seg < numLog; seg++ {
			children = append(children, m.tracer.SegmentDerivedPtrs(h, root, seg)...)
		}
	}

	for _, child := range children {
		if child != nil {
			m.roots.PushFront(&atomiclist.Node[unsafe.Pointer]{Value: child})
		}
	}

	o.hdr.SetColor(target)
}
