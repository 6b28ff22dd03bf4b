package header

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/mem-gc/otfgc/internal/phase"
)

func TestPackUnpack(t *testing.T) {
	raw := Pack(phase.White, 200)
	require.Equal(t, phase.White, Color(raw))
	require.EqualValues(t, 200, Tag(raw))
}

func TestWordSetColorPreservesTag(t *testing.T) {
	var w Word
	w.Init(phase.Black, 42)
	w.SetColor(phase.White)

	raw := w.Load()
	require.Equal(t, phase.White, Color(raw))
	require.EqualValues(t, 42, Tag(raw))
}

func TestLogPtrCompareAndSwapNil(t *testing.T) {
	var lp LogPtr
	require.Nil(t, lp.Load())

	var dummy byte
	val := unsafe.Pointer(&dummy)

	require.True(t, lp.CompareAndSwapNil(val))
	require.False(t, lp.CompareAndSwapNil(val))
	require.Equal(t, val, lp.Load())

	lp.Clear()
	require.Nil(t, lp.Load())
}
