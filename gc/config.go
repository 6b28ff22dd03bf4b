// Package gc assembles the allocator, write barrier, marker and sweeper
// into the collector described in spec.md: a phase machine advanced by a
// handshake with registered mutators, snapshot-at-the-beginning plus
// incremental-update write barrier, and a sweep pass that runs interleaved
// with mutation rather than stopping it.
package gc

import (
	"log/slog"

	"github.com/mem-gc/otfgc/internal/fixedalloc"
	"github.com/mem-gc/otfgc/internal/phase"
)

// Config collects every tunable the original hard-codes as constexpr in
// impl_details.hpp, so two Collectors (e.g. one per test) never share state.
type Config struct {
	// SmallSizeClasses is the number of fixed-size small-object classes.
	SmallSizeClasses int

	// LargeObjectThresholdBits: an allocation of 2^(LargeObjectThresholdBits-1)
	// bytes or more is routed to the large-block allocator.
	LargeObjectThresholdBits uint

	// MarkTickFrequency bounds how many roots the marker processes before
	// checking whether the collector has been asked to stop.
	MarkTickFrequency int

	// SweepTickFrequency is carried but not read: Collector.sweep runs each
	// pass to completion and does not check whether the collector has been
	// asked to stop.
	SweepTickFrequency int

	// SearchDepth is carried but not read: the large-block free-list scans
	// are bounded by the largeblock.SearchDepth constant (32).
	SearchDepth int

	// InitialAllocColor is the alloc color new mutators and the collector
	// start with. Must be Black or White, never Blue.
	InitialAllocColor phase.Color

	// Logger receives structured phase-transition and sweep-summary events.
	// A nil Logger disables collector-side logging (mutators never log).
	Logger *slog.Logger
}

// DefaultConfig returns the tunables impl_details.hpp hard-codes, wrapped in
// a value every Collector can override independently.
func DefaultConfig() Config {
	return Config{
		SmallSizeClasses:         fixedalloc.SmallSizeClasses,
		LargeObjectThresholdBits: 10,
		MarkTickFrequency:        64,
		SweepTickFrequency:       32,
		SearchDepth:              32,
		InitialAllocColor:        phase.Black,
		Logger:                   nil,
	}
}
