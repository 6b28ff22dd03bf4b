package phase

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColorFlip(t *testing.T) {
	require.Equal(t, White, Black.Flip())
	require.Equal(t, Black, White.Flip())
	require.Panics(t, func() { Blue.Flip() })
}

func TestPhaseAdvanceWraps(t *testing.T) {
	p := Sweep
	require.Equal(t, First, p.Advance())
}

func TestPhasePredicates(t *testing.T) {
	require.True(t, First.Snooping())
	require.True(t, Second.Snooping())
	require.False(t, Third.Snooping())

	require.True(t, Second.Tracing())
	require.True(t, Third.Tracing())
	require.True(t, Tracing.Tracing())
	require.False(t, First.Tracing())
	require.False(t, Fourth.Tracing())

	require.True(t, Second.LeavingFlipsColor())
	require.False(t, First.LeavingFlipsColor())
	require.False(t, Third.LeavingFlipsColor())
}

func TestMachineRegisterDetach(t *testing.T) {
	m := New(Black)
	snap := m.Register()
	require.Equal(t, First, snap.Phase)
	require.Equal(t, Black, snap.Color)

	active, shook := m.Counts()
	require.EqualValues(t, 1, active)
	require.EqualValues(t, 1, shook)

	m.Detach(First)
	active, shook = m.Counts()
	require.EqualValues(t, 0, active)
	require.EqualValues(t, 0, shook)
}

func TestMachineDetachStalePhaseKeepsShook(t *testing.T) {
	m := New(Black)
	m.Register()
	m.Register()

	newPhase, ok := m.TryAdvance()
	require.True(t, ok)
	require.Equal(t, Second, newPhase)

	active, shook := m.Counts()
	require.EqualValues(t, 2, active)
	require.EqualValues(t, 0, shook)

	m.Detach(First)

	active, shook = m.Counts()
	require.EqualValues(t, 1, active)
	require.EqualValues(t, 0, shook)
}

func TestTryAdvanceRequiresFullHandshake(t *testing.T) {
	m := New(Black)
	m.Register()
	m.Register()
	m.shook = 0 // neither mutator has acknowledged the current phase yet

	_, ok := m.TryAdvance()
	require.False(t, ok)

	m.shook = 1
	_, ok = m.TryAdvance()
	require.False(t, ok)

	m.Acknowledge()
	newPhase, ok := m.TryAdvance()
	require.True(t, ok)
	require.Equal(t, Second, newPhase)
}

func TestTryAdvanceFlipsColorOnlyLeavingSecond(t *testing.T) {
	m := New(Black)
	m.Register()

	p, ok := m.TryAdvance() // First -> Second
	require.True(t, ok)
	require.Equal(t, Second, p)
	require.Equal(t, Black, m.Load().Color)

	m.Acknowledge()
	p, ok = m.TryAdvance() // Second -> Third: flips
	require.True(t, ok)
	require.Equal(t, Third, p)
	require.Equal(t, White, m.Load().Color)

	m.Acknowledge()
	p, ok = m.TryAdvance() // Third -> Tracing: no flip
	require.True(t, ok)
	require.Equal(t, Tracing, p)
	require.Equal(t, White, m.Load().Color)
}

func TestWaitForHandshakeUnblocksOnAcknowledge(t *testing.T) {
	m := New(Black)
	m.Register()
	m.Register()
	m.shook = 0

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	go func() {
		defer wg.Done()
		m.WaitForHandshake()
		close(done)
	}()

	m.Acknowledge()
	m.Acknowledge()
	wg.Wait()

	select {
	case <-done:
	default:
		t.Fatal("WaitForHandshake did not unblock")
	}
}

func TestMachineRegisterDetachConcurrent(t *testing.T) {
	m := New(Black)
	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Register()
		}()
	}
	wg.Wait()

	active, shook := m.Counts()
	require.EqualValues(t, n, active)
	require.EqualValues(t, n, shook)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Detach(First)
		}()
	}
	wg.Wait()

	active, shook = m.Counts()
	require.EqualValues(t, 0, active)
	require.EqualValues(t, 0, shook)
}
