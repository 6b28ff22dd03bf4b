// Command otfgcdemo wires a toy linked-list host type to the gc package and
// runs a handful of mutator goroutines against one collector for a fixed
// window, logging sweep summaries as it goes (the collector's phase-transition
// records are debug level, below this demo's info-level handler). It exists
// to exercise the collector end to end, not as a library.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sync/errgroup"
	"log/slog"

	logger "github.com/ttrtcixy/fast-slog-handler"

	"github.com/mem-gc/otfgc/gc"
)

// nodeHeader is the demo's host header newtype: the collector only ever
// sees it as a ~uint64 bit pattern, and nodeTracer/nodePolicy ignore it,
// since every object the demo allocates is a node.
type nodeHeader uint64

// node is a singly linked list cell: every mutator builds its own chain of
// nodes and occasionally splices another mutator's chain onto its tail,
// giving the write barrier's prelude something to snapshot mid-trace.
type node struct {
	val  int
	next atomic.Pointer[node]
}

type nodeTracer struct{}

func (nodeTracer) NumLogPtrs(h nodeHeader) int { return 0 }

func (nodeTracer) DerivedPtrs(h nodeHeader, obj unsafe.Pointer) []unsafe.Pointer {
	n := (*node)(obj)
	if p := n.next.Load(); p != nil {
		return []unsafe.Pointer{unsafe.Pointer(p)}
	}
	return nil
}

func (nodeTracer) SegmentDerivedPtrs(h nodeHeader, obj unsafe.Pointer, seg int) []unsafe.Pointer {
	return nil
}

type nodePolicy struct {
	freed atomic.Int64
}

func (p *nodePolicy) Destroy(h nodeHeader, obj unsafe.Pointer) {
	p.freed.Add(1)
}

func newNode(m *gc.Mutator[nodeHeader], val int) *node {
	n := (*node)(m.Allocate(unsafe.Sizeof(node{}), 0))
	n.val = val
	return n
}

// worker allocates a chain of nodes, keeps its head as the root this mutator
// reports, and every so often reads another worker's published head and
// splices it onto its own tail through the write barrier.
func worker(ctx context.Context, id int, col *gc.Collector[nodeHeader], heads *atomic.Pointer[node], log *slog.Logger) error {
	m := col.CreateMutator()
	defer m.Detach()

	head := newNode(m, id*1000)
	tail := head
	m.SetRootCallback(func() []unsafe.Pointer {
		return []unsafe.Pointer{unsafe.Pointer(head)}
	})
	heads.Store(head)

	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	allocated := 0
	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopping", "id", id, "allocated", allocated)
			return nil
		case <-ticker.C:
			m.PollForSync()

			n := newNode(m, rand.Intn(1<<20))
			allocated++
			gc.WriteRef[nodeHeader](m, unsafe.Pointer(tail), 0, &tail.next, n)
			tail = n

			if other := heads.Load(); other != nil && rand.Intn(4) == 0 {
				gc.CompareAndSwapRef[nodeHeader](m, unsafe.Pointer(tail), 0, &tail.next, nil, other)
			}
		}
	}
}

func main() {
	handler := logger.NewJsonHandler(os.Stdout, &logger.Config{
		Level:          int(slog.LevelInfo),
		BufferedOutput: true,
	})
	log := slog.New(handler)

	cfg := gc.DefaultConfig()
	cfg.Logger = log

	policy := &nodePolicy{}
	col := gc.NewCollector[nodeHeader](cfg, nodeTracer{}, policy)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		col.Run(gctx)
		return nil
	})

	var heads atomic.Pointer[node]
	const numWorkers = 4
	for i := 0; i < numWorkers; i++ {
		id := i
		g.Go(func() error {
			return worker(gctx, id, col, &heads, log)
		})
	}

	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, "otfgcdemo:", err)
		os.Exit(1)
	}

	col.Stop()
	col.Destroy()
	log.Info("demo finished", "objects_freed", policy.freed.Load())
}
