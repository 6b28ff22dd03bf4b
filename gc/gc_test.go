package gc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/mem-gc/otfgc/internal/atomiclist"
	"github.com/mem-gc/otfgc/internal/phase"
)

// cellHeader is a toy host header newtype: nothing but a tag byte packed
// alongside the color bits header.Word already manages, recovered from the
// collector's header.Word via a plain uint64 conversion.
type cellHeader uint64

// cell is a toy cons cell: a value and two outgoing references, standing in
// for whatever pointer-bearing struct a real host would allocate through a
// Mutator. Its fields are plain atomic.Pointer[cell] so WriteRef/
// CompareAndSwapRef can operate on them directly.
type cell struct {
	val int
	car atomic.Pointer[cell]
	cdr atomic.Pointer[cell]
}

func newCell(m *Mutator[cellHeader], val int) *cell {
	p := m.Allocate(unsafe.Sizeof(cell{}), 0)
	c := (*cell)(p)
	c.val = val
	return c
}

type cellTracer struct{}

func (cellTracer) NumLogPtrs(h cellHeader) int { return 0 }

func (cellTracer) DerivedPtrs(h cellHeader, obj unsafe.Pointer) []unsafe.Pointer {
	c := (*cell)(obj)
	var out []unsafe.Pointer
	if p := c.car.Load(); p != nil {
		out = append(out, unsafe.Pointer(p))
	}
	if p := c.cdr.Load(); p != nil {
		out = append(out, unsafe.Pointer(p))
	}
	return out
}

func (cellTracer) SegmentDerivedPtrs(h cellHeader, obj unsafe.Pointer, seg int) []unsafe.Pointer {
	return nil
}

type cellPolicy struct {
	destroyed atomic.Int32
}

func (p *cellPolicy) Destroy(h cellHeader, obj unsafe.Pointer) {
	p.destroyed.Add(1)
}

func testConfig() Config {
	cfg := DefaultConfig()
	return cfg
}

// driveMutator calls PollForSync on m at a steady tick until ctx is done,
// standing in for a mutator thread that checks in between its own work.
func driveMutator(ctx context.Context, m *Mutator[cellHeader]) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.PollForSync()
		}
	}
}

func TestAllocateClassifiesSmallAndLarge(t *testing.T) {
	col := NewCollector[cellHeader](testConfig(), cellTracer{}, &cellPolicy{})
	m := col.CreateMutator()

	small := m.Allocate(16, 0)
	require.NotNil(t, small)

	large := m.Allocate(4096, 0)
	require.NotNil(t, large)

	o := col.reg.lookup(small)
	require.NotNil(t, o)
	require.False(t, o.large)

	o = col.reg.lookup(large)
	require.NotNil(t, o)
	require.True(t, o.large)
	require.NotNil(t, o.blk)
}

func TestWriteBarrierPreludeCapturesSnapshotOnce(t *testing.T) {
	col := NewCollector[cellHeader](testConfig(), cellTracer{}, &cellPolicy{})
	m := col.CreateMutator()

	parent := newCell(m, 1)
	child := newCell(m, 2)
	parent.car.Store(child)

	// Force parent stale relative to the mutator's current alloc color, and
	// put the mutator into a tracing phase, the way PollForSync would after
	// observing Second/Third/Tracing.
	o := col.reg.lookup(unsafe.Pointer(parent))
	require.NotNil(t, o)
	o.hdr.SetColor(m.allocColor.Flip())
	m.traceOn = true

	prelude(m, unsafe.Pointer(parent), 0)

	children := o.loggedChildren.Load()
	require.NotNil(t, children)
	require.Len(t, *children, 1)
	require.Equal(t, unsafe.Pointer(child), (*children)[0])
	require.NotNil(t, o.log.Load())

	// A second prelude call on the same parent must not re-derive or
	// re-push its buffer entry: the log slot is already claimed.
	before := m.buffer.Len()
	parent.cdr.Store(newCell(m, 3))
	prelude(m, unsafe.Pointer(parent), 0)
	require.Equal(t, before, m.buffer.Len())

	children = o.loggedChildren.Load()
	require.Len(t, *children, 1, "snapshot must not pick up the post-prelude mutation")
}

func TestWriteRefSnoopsDuringSnapshotPhase(t *testing.T) {
	col := NewCollector[cellHeader](testConfig(), cellTracer{}, &cellPolicy{})
	m := col.CreateMutator()
	m.snoop = true

	parent := newCell(m, 1)
	child := newCell(m, 2)

	WriteRef[cellHeader](m, unsafe.Pointer(parent), 0, &parent.car, child)

	require.Equal(t, child, parent.car.Load())
	require.Equal(t, 1, m.snooped.Len())
}

func TestDestroyFinalizesEverythingUnconditionally(t *testing.T) {
	col := NewCollector[cellHeader](testConfig(), cellTracer{}, &cellPolicy{})
	m := col.CreateMutator()

	for i := 0; i < 5; i++ {
		newCell(m, i)
	}
	_ = m.Allocate(4096, 0) // one large object too
	m.Detach()

	col.Destroy()

	policy := col.policy.(*cellPolicy)
	require.EqualValues(t, 6, policy.destroyed.Load())
}

// TestFullCycleReclaimsUnreachable drives the collector through repeated
// cycles with one mutator that keeps a root cell alive and lets an orphan
// cell become unreachable, asserting the orphan gets swept while the root
// survives.
func TestFullCycleReclaimsUnreachable(t *testing.T) {
	policy := &cellPolicy{}
	col := NewCollector[cellHeader](testConfig(), cellTracer{}, policy)
	m := col.CreateMutator()

	root := newCell(m, 1)
	_ = newCell(m, 2) // orphan: never reachable from any root

	m.SetRootCallback(func() []unsafe.Pointer {
		return []unsafe.Pointer{unsafe.Pointer(root)}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	go col.Run(ctx)
	go driveMutator(ctx, m)

	require.Eventually(t, func() bool {
		return policy.destroyed.Load() >= 1
	}, 450*time.Millisecond, time.Millisecond, "orphan cell was never swept")

	col.Stop()
	cancel()

	root2 := col.reg.lookup(unsafe.Pointer(root))
	require.NotNil(t, root2, "root-reachable cell must survive sweeping")
}

func TestLargeBlockFreedBySweepReturnsToArena(t *testing.T) {
	policy := &cellPolicy{}
	cfg := testConfig()
	col := NewCollector[cellHeader](cfg, cellTracer{}, policy)
	m := col.CreateMutator()

	orphan := m.Allocate(4096, 0)
	require.NotNil(t, orphan)

	m.SetRootCallback(func() []unsafe.Pointer { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	go col.Run(ctx)
	go driveMutator(ctx, m)

	require.Eventually(t, func() bool {
		return policy.destroyed.Load() >= 1
	}, 450*time.Millisecond, time.Millisecond, "large orphan was never swept")

	col.Stop()
	cancel()

	require.Nil(t, col.reg.lookup(orphan))

	// A fresh request of the same size must still be satisfiable once the
	// freed block has gone back to the arena.
	m2 := col.CreateMutator()
	again := m2.Allocate(4096, 0)
	require.NotNil(t, again)
}

// TestClearBuffersResolvesLiveAndSkipsStaleEntries drives clearBuffers
// directly over a buffer holding one parent still in the registry (whose log
// slot must come back nil) and one parent already forgotten by a prior sweep
// (which must resolve to a no-op, not a panic).
func TestClearBuffersResolvesLiveAndSkipsStaleEntries(t *testing.T) {
	col := NewCollector[cellHeader](testConfig(), cellTracer{}, &cellPolicy{})
	m := col.CreateMutator()

	live := newCell(m, 1)
	o := col.reg.lookup(unsafe.Pointer(live))
	require.NotNil(t, o)
	require.True(t, o.log.CompareAndSwapNil(logSentinel), "test setup: claim the log slot")

	stale := newCell(m, 2)
	col.reg.forget(unsafe.Pointer(stale))

	buf := &atomiclist.Private[unsafe.Pointer]{}
	buf.PushBack(&atomiclist.Node[unsafe.Pointer]{Value: unsafe.Pointer(live)})
	buf.PushBack(&atomiclist.Node[unsafe.Pointer]{Value: unsafe.Pointer(stale)})
	col.bufferSet.Push(&atomiclist.Node[*atomiclist.Private[unsafe.Pointer]]{Value: buf})

	require.NotPanics(t, col.clearBuffers)

	require.Nil(t, o.log.Load(), "clearBuffers must reset a resolvable parent's log slot")
}

func TestPhaseMachineFlipsAllocColorAcrossCycle(t *testing.T) {
	col := NewCollector[cellHeader](testConfig(), cellTracer{}, &cellPolicy{})
	m := col.CreateMutator()
	initial := m.Color()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go col.Run(ctx)
	go driveMutator(ctx, m)

	require.Eventually(t, func() bool {
		return m.Color() != initial
	}, 180*time.Millisecond, time.Millisecond, "alloc color never flipped across Second")

	col.Stop()
	cancel()
	require.True(t, initial == phase.Black || initial == phase.White)
}
