package gc

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"unsafe"

	"github.com/mem-gc/otfgc/internal/atomiclist"
	"github.com/mem-gc/otfgc/internal/largeblock"
	"github.com/mem-gc/otfgc/internal/phase"
	"github.com/mem-gc/otfgc/internal/stublist"
	"github.com/mem-gc/otfgc/internal/varalloc"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Collector owns every shared inventory mutators publish into, and runs the
// phase machine that advances tracing and sweeping. H is the host's header
// newtype; Collector is generic over it so a program can define its own
// header encoding without the collector core knowing anything about it
// beyond the ~uint64 bit pattern (spec.md §9).
type Collector[H ~uint64] struct {
	cfg     Config
	machine *phase.Machine
	reg     *registry[H]

	tracer Tracer[H]
	policy Policy[H]

	smallFree []*stublist.Shared
	smallUsed []*sharedObjectList[H]

	arena     *largeblock.Arena
	largeFree atomiclist.Stack[*largeblock.List]
	largeUsed sharedObjectList[H]

	rootSet   atomiclist.Shared[unsafe.Pointer]
	bufferSet atomiclist.Stack[*atomiclist.Private[unsafe.Pointer]]

	running atomic.Bool
}

// NewCollector returns a Collector ready to hand out mutators.
func NewCollector[H ~uint64](cfg Config, tracer Tracer[H], policy Policy[H]) *Collector[H] {
	c := &Collector[H]{
		cfg:    cfg,
		machine: phase.New(cfg.InitialAllocColor),
		reg:    newRegistry[H](),
		tracer: tracer,
		policy: policy,
		arena:  largeblock.NewArena(),
	}
	c.smallFree = make([]*stublist.Shared, cfg.SmallSizeClasses)
	c.smallUsed = make([]*sharedObjectList[H], cfg.SmallSizeClasses)
	for i := range c.smallFree {
		c.smallFree[i] = &stublist.Shared{}
		c.smallUsed[i] = &sharedObjectList[H]{}
	}
	return c
}

func (c *Collector[H]) log() *slog.Logger {
	if c.cfg.Logger != nil {
		return c.cfg.Logger
	}
	return discardLogger
}

// CreateMutator registers and returns a new Mutator bound to this collector.
func (c *Collector[H]) CreateMutator() *Mutator[H] {
	snap := c.machine.Register()
	m := &Mutator[H]{
		col:          c,
		allocColor:   snap.Color,
		currentPhase: snap.Phase,
		snoop:        snap.Phase.Snooping(),
		traceOn:      snap.Phase.Tracing(),
		rootCallback: func() []unsafe.Pointer { return nil },
	}
	m.fixed = make([]*fixedManager, c.cfg.SmallSizeClasses)
	for i := range m.fixed {
		m.fixed[i] = newFixedManager()
	}
	m.largeMgr = varalloc.NewManager(c.arena)
	m.buffer = &atomiclist.Private[unsafe.Pointer]{}
	m.snooped = &atomiclist.Private[unsafe.Pointer]{}
	m.smallUsed = make([]*objectList[H], c.cfg.SmallSizeClasses)
	for i := range m.smallUsed {
		m.smallUsed[i] = (&objectList[H]{}).Init()
	}
	m.largeUsed = (&objectList[H]{}).Init()
	return m
}

// Stop asks Run's loop to exit at its next iteration.
func (c *Collector[H]) Stop() { c.running.Store(false) }

// Run drives the phase machine until Stop is called or ctx is done,
// dispatching the tracer/sweeper/buffer-clearing work for each phase it
// advances into.
func (c *Collector[H]) Run(ctx context.Context) {
	c.running.Store(true)
	log := c.log()

	for c.running.Load() {
		select {
		case <-ctx.Done():
			c.running.Store(false)
			return
		default:
		}

		c.machine.WaitForHandshake()

		newPhase, ok := c.machine.TryAdvance()
		if !ok {
			continue
		}
		log.Debug("phase advanced", "phase", newPhase.String())

		switch newPhase {
		case phase.Tracing:
			roots := c.rootSet.Take()
			m := newMarker(c.tracer, c.reg, roots, c.cfg.MarkTickFrequency)
			m.mark(c.snapshotColor(), &c.running)
		case phase.Sweep:
			// Every mutator has acknowledged Fourth by now, so every log
			// buffer of this cycle is in the buffer set.
			c.clearBuffers()
			freeColor := c.snapshotColor().Flip()
			c.sweep(freeColor)
			log.Info("sweep pass complete", "free_color", freeColor.String())
		}
	}
}

func (c *Collector[H]) snapshotColor() phase.Color {
	return c.machine.Load().Color
}

// Destroy waits for every active mutator to detach, then finalizes every
// object still on the used lists unconditionally (mirrors gc::destroy:
// shutdown reclaims everything live, not just objects the sweeper would
// have freed).
func (c *Collector[H]) Destroy() {
	for {
		active, _ := c.machine.Counts()
		if active == 0 {
			break
		}
	}

	for i := range c.smallUsed {
		used := c.smallUsed[i].Take()
		for o := used.PopFront(); o != nil; o = used.PopFront() {
			c.policy.Destroy(o.Header(), o.payload)
			c.reg.forget(o.payload)
		}
	}

	large := c.largeUsed.Take()
	for o := large.PopFront(); o != nil; o = large.PopFront() {
		c.policy.Destroy(o.Header(), o.payload)
		c.reg.forget(o.payload)
	}
}

// clearBuffers drains the buffer set built up during Fourth, resetting the
// log-pointer slot of every "dirtied" parent a mutator recorded — the Go
// analogue of gc::clear_buffers, without the raw pointer-tag trick the
// original uses to mark a buffer entry as a parent vs. a plain derived
// pointer, since here a buffer entry is always a parent's payload pointer,
// resolved to its object[H] through the registry.
func (c *Collector[H]) clearBuffers() {
	for {
		node := c.bufferSet.Pop()
		if node == nil {
			return
		}
		buf := node.Value
		for n := buf.PopFront(); n != nil; n = buf.PopFront() {
			parent := n.Value
			if parent == nil {
				continue
			}
			if o := c.reg.lookup(parent); o != nil {
				o.log.Clear()
			}
		}
	}
}
