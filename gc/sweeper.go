package gc

import (
	"github.com/mem-gc/otfgc/internal/header"
	"github.com/mem-gc/otfgc/internal/phase"
	"github.com/mem-gc/otfgc/internal/stublist"
)

// sweep reclaims every object still colored freeColor (the color mutators
// stopped allocating with, and therefore the color nothing could have been
// marked into this cycle), grounded on gc::sweep. Unlike the byte-range
// coalescing sweep of the original — which walks a stub's address range
// cell by cell and stitches adjacent freed cells back into bigger stubs —
// this rendering reclaims one object[H] at a time, since payload bytes here
// aren't addressed contiguously the way a single bump-allocated chunk's
// cells are; coalescing happens instead in the large path, where largeblock.Arena
// already does buddy coalescing on Free.
func (c *Collector[H]) sweep(freeColor phase.Color) {
	for i := range c.smallUsed {
		used := c.smallUsed[i].Take()
		kept := (&objectList[H]{}).Init()
		freed := (&stublist.List{}).Init()

		for o := used.PopFront(); o != nil; o = used.PopFront() {
			if header.Color(o.hdr.Load()) == freeColor {
				c.policy.Destroy(o.Header(), o.payload)
				c.reg.forget(o.payload)
				freed.PushBack(&stublist.Stub{Start: o.payload, Size: o.size})
			} else {
				kept.PushBack(o)
			}
		}

		c.smallUsed[i].VacateAndAppend(kept)
		c.smallFree[i].VacateAndAppend(freed)
	}

	used := c.largeUsed.Take()
	kept := (&objectList[H]{}).Init()

	for o := used.PopFront(); o != nil; o = used.PopFront() {
		if header.Color(o.hdr.Load()) == freeColor {
			c.policy.Destroy(o.Header(), o.payload)
			c.reg.forget(o.payload)
			c.arena.Free(o.blk)
		} else {
			kept.PushBack(o)
		}
	}

	c.largeUsed.VacateAndAppend(kept)
}
