package phase

import "sync"

// Machine owns the shared phase/color state and the active/shook handshake
// counters (spec.md §4.F). All mutation of active/shook and the committing
// step of TryAdvance happen under regMu, mirroring the original's reg_mut —
// the lock that "serializes only: registration, detachment, and
// try_advance's commit" (spec.md §5).
//
// The busy-wait the original leaves to the collector loop is instead
// rendered as a sync.Cond broadcast from Acknowledge, per the §9 design
// note preferring a condition variable over spinning.
type Machine struct {
	regMu sync.Mutex
	cond  *sync.Cond

	phase      Phase
	allocColor Color
	active     uint32
	shook      uint32
}

// New returns a Machine starting at phase First with the given initial
// alloc color (Black or White — never Blue).
func New(initialColor Color) *Machine {
	m := &Machine{phase: First, allocColor: initialColor}
	m.cond = sync.NewCond(&m.regMu)
	return m
}

// Snapshot is the phase/color pair observed by a mutator at a point in time.
type Snapshot struct {
	Phase Phase
	Color Color
}

// Load returns the current phase and alloc color, read together under regMu
// so a caller never pairs one cycle's phase with another cycle's color. It
// is safe to call from any number of concurrent mutators.
func (m *Machine) Load() Snapshot {
	m.regMu.Lock()
	defer m.regMu.Unlock()
	return Snapshot{Phase: m.phase, Color: m.allocColor}
}

// Register adds a new mutator: active and shook both increase, since a
// freshly registered mutator is considered caught up with the currently
// published phase until it is told otherwise.
func (m *Machine) Register() Snapshot {
	m.regMu.Lock()
	defer m.regMu.Unlock()
	m.active++
	m.shook++
	return Snapshot{Phase: m.phase, Color: m.allocColor}
}

// Detach removes a mutator. active always decreases; shook decreases only if
// the detaching mutator had acknowledged the currently published phase
// (i.e. its own last-observed phase still matches).
func (m *Machine) Detach(lastObserved Phase) {
	m.regMu.Lock()
	m.active--
	if lastObserved == m.phase {
		m.shook--
	}
	m.cond.Broadcast()
	m.regMu.Unlock()
}

// Acknowledge records that a mutator has caught up with the current phase
// (called once per phase transition the mutator observes, from
// poll_for_sync). Wakes the collector if it's waiting for the handshake to
// close.
func (m *Machine) Acknowledge() {
	m.regMu.Lock()
	m.shook++
	if m.shook == m.active {
		m.cond.Broadcast()
	}
	m.regMu.Unlock()
}

// TryAdvance attempts to advance the phase: if shook has caught up to
// active, it resets shook, flips the alloc color iff leaving Second, and
// advances the phase, returning the new phase and true. Otherwise it
// returns the zero Phase and false.
func (m *Machine) TryAdvance() (Phase, bool) {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	if m.shook != m.active {
		return 0, false
	}

	m.shook = 0
	if m.phase.LeavingFlipsColor() {
		m.allocColor = m.allocColor.Flip()
	}
	m.phase = m.phase.Advance()
	return m.phase, true
}

// WaitForHandshake blocks until shook == active or the machine's cond is
// broadcast and the condition happens to hold — used by the collector loop
// as the condition-variable-backed alternative to busy-waiting (§9). It
// always re-checks before returning, so a spurious or stale wakeup is safe.
func (m *Machine) WaitForHandshake() {
	m.regMu.Lock()
	for m.shook != m.active {
		m.cond.Wait()
	}
	m.regMu.Unlock()
}

// Counts reports the current active/shook counters, for diagnostics and
// logging.
func (m *Machine) Counts() (active, shook uint32) {
	m.regMu.Lock()
	defer m.regMu.Unlock()
	return m.active, m.shook
}
