package fixedalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassSize(t *testing.T) {
	require.EqualValues(t, 8, ClassSize(0))
	require.EqualValues(t, 512, ClassSize(6))
}

func TestGetBlockAfterGetNewBlock(t *testing.T) {
	m := NewManager(0) // 8-byte cells, 64-byte chunk -> 8 cells total

	first := m.GetNewBlock()
	require.NotNil(t, first)

	seen := map[uintptr]bool{uintptr(first): true}
	for i := 0; i < 7; i++ {
		p := m.GetBlock()
		require.NotNil(t, p)
		seen[uintptr(p)] = true
	}
	require.Len(t, seen, 8)
	require.Equal(t, 8, m.used.Len())

	// chunk now fully handed out and no backing free chunk
	require.Nil(t, m.GetBlock())
}

func TestGetBlockReturnsNilWithoutChunk(t *testing.T) {
	m := NewManager(2)
	require.Nil(t, m.GetBlock())
}

func TestGetBlockResumesAfterNewChunk(t *testing.T) {
	m := NewManager(0)
	m.GetNewBlock() // chunk sized 2^(0+3+3)=64 bytes -> 8 cells, 1 consumed internally

	for i := 0; i < 7; i++ {
		require.NotNil(t, m.GetBlock())
	}

	// current chunk now exhausted and no backing free chunk: nil
	require.Nil(t, m.GetBlock())

	m.GetNewBlock()
	require.NotNil(t, m.GetBlock())
}
