package gc

import (
	"sync"
	"unsafe"
)

// registry maps a live object's payload pointer back to its metadata
// record, so a WriteBarrier holding only a parent pointer can recover that
// parent's header and log pointer without the original's pointer-arithmetic
// trick of reading bytes immediately before the payload.
type registry[H ~uint64] struct {
	mu sync.RWMutex
	m  map[unsafe.Pointer]*object[H]
}

func newRegistry[H ~uint64]() *registry[H] {
	return &registry[H]{m: make(map[unsafe.Pointer]*object[H])}
}

func (r *registry[H]) register(o *object[H]) {
	r.mu.Lock()
	r.m[o.payload] = o
	r.mu.Unlock()
}

func (r *registry[H]) lookup(payload unsafe.Pointer) *object[H] {
	r.mu.RLock()
	o := r.m[payload]
	r.mu.RUnlock()
	return o
}

func (r *registry[H]) forget(payload unsafe.Pointer) {
	r.mu.Lock()
	delete(r.m, payload)
	r.mu.Unlock()
}
