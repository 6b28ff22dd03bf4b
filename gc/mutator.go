package gc

import (
	"unsafe"

	"github.com/mem-gc/otfgc/internal/atomiclist"
	"github.com/mem-gc/otfgc/internal/fixedalloc"
	"github.com/mem-gc/otfgc/internal/largeblock"
	"github.com/mem-gc/otfgc/internal/phase"
	"github.com/mem-gc/otfgc/internal/varalloc"
)

// fixedManager pairs one size class's bump allocator with its class index,
// so Mutator can reason about object sizes without re-deriving them.
type fixedManager struct {
	classIndex int
	m          *fixedalloc.Manager
}

func newFixedManager() *fixedManager { return &fixedManager{} }

func (fm *fixedManager) init(classIndex int) {
	fm.classIndex = classIndex
	fm.m = fixedalloc.NewManager(classIndex)
}

// classIndexFor returns the smallest size class whose cells fit size, or -1
// if size belongs in the large-object path.
func classIndexFor(cfg Config, size uintptr) int {
	threshold := uintptr(1) << (cfg.LargeObjectThresholdBits - 1)
	if size >= threshold {
		return -1
	}
	for i := 0; i < cfg.SmallSizeClasses; i++ {
		if fixedalloc.ClassSize(i) >= size {
			return i
		}
	}
	return -1
}

// Mutator is one registered allocator/tracer participant: it allocates
// objects, runs the write barrier's prelude on pointer stores, and
// acknowledges phase transitions via PollForSync (spec.md §4.C, §4.D, §4.F).
type Mutator[H ~uint64] struct {
	col *Collector[H]

	fixed     []*fixedManager
	smallUsed []*objectList[H]
	largeMgr  *varalloc.Manager
	largeUsed *objectList[H]

	allocColor   phase.Color
	currentPhase phase.Phase
	snoop        bool
	traceOn      bool

	rootCallback func() []unsafe.Pointer

	buffer  *atomiclist.Private[unsafe.Pointer]
	snooped *atomiclist.Private[unsafe.Pointer]

	// nodePool carves this mutator's own list<void*>-equivalent nodes
	// (buffer, snooped, root-set entries) out of 64-node slabs instead of
	// allocating each Node individually, mirroring node_pool.hpp's
	// per-thread pool. Stub and large-block list elements are intrusive
	// (the element embeds its own next/prev, container/list- and
	// mSpanList-style) so they never go through Node[T] and have nothing to
	// pool here.
	nodePool atomiclist.Pool[unsafe.Pointer]

	detached bool
}

func (m *Mutator[H]) Tracing() bool  { return m.traceOn }
func (m *Mutator[H]) Snooping() bool { return m.snoop }
func (m *Mutator[H]) Color() phase.Color { return m.allocColor }

// SetRootCallback installs the function PollForSync calls at Third to
// collect this mutator's current root set.
func (m *Mutator[H]) SetRootCallback(cb func() []unsafe.Pointer) { m.rootCallback = cb }

// Allocate carves a new object of size bytes tagged tag, returning its
// payload pointer. Size classification mirrors mutator::allocate: small
// sizes draw from a fixed-class bump allocator, large ones from the shared
// arena via buddy split.
func (m *Mutator[H]) Allocate(size uintptr, tag uint8) unsafe.Pointer {
	if ci := classIndexFor(m.col.cfg, size); ci >= 0 {
		return m.allocateSmall(ci, tag)
	}
	return m.allocateLarge(size, tag)
}

func (m *Mutator[H]) allocateSmall(classIndex int, tag uint8) unsafe.Pointer {
	fm := m.fixed[classIndex]
	if fm.m == nil {
		fm.init(classIndex)
	}

	payload := fm.m.GetBlock()
	if payload == nil {
		taken := m.col.smallFree[classIndex].Take()
		for s := taken.PopFront(); s != nil; s = taken.PopFront() {
			fm.m.PushFront(s.Start, s.Size)
		}
		payload = fm.m.GetBlock()
	}
	if payload == nil {
		payload = fm.m.GetNewBlock()
	}

	size := fixedalloc.ClassSize(classIndex)
	o := &object[H]{size: size, payload: payload}
	o.hdr.Init(m.allocColor, tag)

	m.smallUsed[classIndex].PushBack(o)
	m.col.reg.register(o)
	return payload
}

// allocateLarge draws a block through this mutator's private varalloc
// Manager: its own free list first, then the collector's recycling stack
// (filled by other mutators' Detach calls), and only then the shared arena,
// mirroring allocateSmall's fixedalloc fallback chain.
func (m *Mutator[H]) allocateLarge(size uintptr, tag uint8) unsafe.Pointer {
	blk := m.largeMgr.TryPrivateFreeList(size)
	if blk == nil {
		if node := m.col.largeFree.Pop(); node != nil {
			m.largeMgr.Append(node.Value)
			blk = m.largeMgr.TryPrivateFreeList(size)
		}
	}
	if blk == nil {
		blk = m.largeMgr.GetBlock(size)
	}

	o := &object[H]{size: blk.Size, payload: blk.Start, large: true, blk: blk}
	o.hdr.Init(m.allocColor, tag)

	m.largeUsed.PushBack(o)
	m.col.reg.register(o)
	return blk.Start
}

// PushFrontBuffer records parent, as a plain untagged payload pointer, at the
// front of the mutator's deferred-root buffer.
func (m *Mutator[H]) PushFrontBuffer(parent unsafe.Pointer) {
	n := m.nodePool.Get()
	n.Value = parent
	m.buffer.PushFront(n)
}

// AppendFrontBuffer splices a temporary pre-image buffer onto the front of
// the mutator's deferred-root buffer. temp is consumed: its contents become
// the front of the new buffer, with the buffer's previous contents after it.
func (m *Mutator[H]) AppendFrontBuffer(temp *atomiclist.Private[unsafe.Pointer]) {
	temp.Append(m.buffer)
	m.buffer = temp
}

// PushFrontSnooping records a reference a snapshot-phase load observed, so
// it survives as a root even if it's unreachable by the time tracing runs.
func (m *Mutator[H]) PushFrontSnooping(p unsafe.Pointer) {
	if p == nil {
		return
	}
	n := m.nodePool.Get()
	n.Value = p
	m.snooped.PushFront(n)
}

// PollForSync checks whether the collector has advanced the phase since
// this mutator last observed it, and if so performs the phase-specific
// handoff (publishing roots/used-lists at Third, the log buffer at Fourth)
// before acknowledging the handshake (spec.md §4.F).
func (m *Mutator[H]) PollForSync() {
	snap := m.col.machine.Load()
	if snap.Phase == m.currentPhase {
		return
	}
	m.currentPhase = snap.Phase

	switch m.currentPhase {
	case phase.Third:
		roots := m.rootCallback()
		for _, r := range roots {
			n := m.nodePool.Get()
			n.Value = r
			m.snooped.PushFront(n)
		}
		m.col.rootSet.VacateAndAppend(m.snooped)
		m.snooped = &atomiclist.Private[unsafe.Pointer]{}

		for i, fm := range m.fixed {
			if fm.m == nil {
				continue
			}
			m.col.smallUsed[i].VacateAndAppend(m.smallUsed[i])
			m.smallUsed[i] = (&objectList[H]{}).Init()
		}

		largeContribution := m.largeUsed
		m.largeUsed = (&objectList[H]{}).Init()
		m.col.largeUsed.VacateAndAppend(largeContribution)

		m.allocColor = m.col.machine.Load().Color
	case phase.Fourth:
		m.col.bufferSet.Push(&atomiclist.Node[*atomiclist.Private[unsafe.Pointer]]{Value: m.buffer})
		m.buffer = &atomiclist.Private[unsafe.Pointer]{}
	}

	m.snoop = m.currentPhase.Snooping()
	m.traceOn = m.currentPhase.Tracing()
	m.col.machine.Acknowledge()
}

// Detach unregisters the mutator, handing every inventory it still owns to
// the collector, mirroring registered_mutator's destructor.
func (m *Mutator[H]) Detach() {
	if m.detached {
		return
	}
	m.detached = true

	m.col.bufferSet.Push(&atomiclist.Node[*atomiclist.Private[unsafe.Pointer]]{Value: m.buffer})

	for i, fm := range m.fixed {
		if fm.m == nil {
			continue
		}
		m.col.smallFree[i].VacateAndAppend(fm.m.ReleaseFreeList())
		m.col.smallUsed[i].VacateAndAppend(m.smallUsed[i])
	}

	largeFree := m.largeMgr.ReleaseFreeList()
	if !largeFree.Empty() {
		m.col.largeFree.Push(&atomiclist.Node[*largeblock.List]{Value: largeFree})
	}
	m.col.largeUsed.VacateAndAppend(m.largeUsed)

	// The buffer's nodes were handed to the buffer set above and the snooped
	// list is dropped with the mutator; detach just drops the pool's retained
	// slabs rather than recycling them.
	m.nodePool.Reset()

	m.col.machine.Detach(m.currentPhase)
}
