package fiberio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFdTable_GetAllocatesAndReuses(t *testing.T) {
	tbl := NewFdTable()

	ctx1 := tbl.get(10)
	require.NotNil(t, ctx1)

	ctx2 := tbl.get(10)
	require.Same(t, ctx1, ctx2)
}

func TestFdTable_GrowsPastInitialCapacity(t *testing.T) {
	tbl := NewFdTable()

	// Initial slot count is 256; fd == 256 is exactly the off-by-one
	// boundary the size<=fd growth check (not size<fd) exists to cover.
	ctx := tbl.get(256)
	require.NotNil(t, ctx)

	got, ok := tbl.lookup(256)
	require.True(t, ok)
	require.Same(t, ctx, got)
}

func TestFdTable_GrowsForFarOutOfRangeFD(t *testing.T) {
	tbl := NewFdTable()

	ctx := tbl.get(100_000)
	require.NotNil(t, ctx)

	got, ok := tbl.lookup(100_000)
	require.True(t, ok)
	require.Same(t, ctx, got)
}

func TestFdTable_LookupMissingReturnsFalse(t *testing.T) {
	tbl := NewFdTable()
	_, ok := tbl.lookup(5)
	require.False(t, ok)
}

func TestFdTable_ReleaseClearsSlot(t *testing.T) {
	tbl := NewFdTable()
	tbl.get(3)
	tbl.release(3)
	_, ok := tbl.lookup(3)
	require.False(t, ok)
}

func TestFdTable_PendingCountReflectsParkedContinuations(t *testing.T) {
	tbl := NewFdTable()
	ctx := tbl.get(1)

	require.Equal(t, 0, tbl.pendingCount())

	ctx.mu.Lock()
	ctx.events[DirectionRead] = &continuation{}
	ctx.mu.Unlock()
	require.Equal(t, 1, tbl.pendingCount())

	ctx.mu.Lock()
	ctx.events[DirectionWrite] = &continuation{}
	ctx.mu.Unlock()
	require.Equal(t, 2, tbl.pendingCount())
}

func TestFdTable_RegisteredFDsReturnsSortedLiveEntries(t *testing.T) {
	tbl := NewFdTable()
	tbl.get(9)
	tbl.get(2)
	tbl.get(5)
	tbl.release(5)

	require.Equal(t, []int{2, 9}, tbl.RegisteredFDs())
}

func TestDirection_EventMapping(t *testing.T) {
	require.Equal(t, EventRead, DirectionRead.event())
	require.Equal(t, EventWrite, DirectionWrite.event())
	require.Equal(t, "read", DirectionRead.String())
	require.Equal(t, "write", DirectionWrite.String())
}
