package journal

import (
	"testing"
	"time"

	"storekit/internal/clock"
	"storekit/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_AttachRecordsCommits(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewManual(start)

	s := store.NewMap(store.Map{"count": 0})
	j := New[store.Map](10, clk)
	j.Attach(s)

	require.NoError(t, s.SetState(store.Set(store.Map{"count": 1})))
	clk.Advance(time.Second)
	require.NoError(t, s.SetState(store.Set(store.Map{"count": 1}))) // elided
	require.NoError(t, s.SetState(store.Set(store.Map{"count": 2})))

	entries := j.Entries()
	require.Len(t, entries, 2)

	assert.Equal(t, uint64(1), entries[0].Seq)
	assert.Equal(t, start, entries[0].Time)
	assert.Equal(t, store.Map{"count": 0}, entries[0].Prev)
	assert.Equal(t, store.Map{"count": 1}, entries[0].Next)

	assert.Equal(t, uint64(2), entries[1].Seq)
	assert.Equal(t, start.Add(time.Second), entries[1].Time)

	_, err := uuid.Parse(entries[0].ID)
	assert.NoError(t, err)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestJournal_RingWraps(t *testing.T) {
	j := New[int](3, clock.NewReal())
	for i := 1; i <= 5; i++ {
		j.Record(i, i-1)
	}

	assert.Equal(t, 3, j.Len())
	assert.Equal(t, uint64(5), j.Seq())

	entries := j.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []int{3, 4, 5}, []int{entries[0].Next, entries[1].Next, entries[2].Next})

	last, ok := j.Last()
	require.True(t, ok)
	assert.Equal(t, 5, last.Next)
}

func TestJournal_Since(t *testing.T) {
	j := New[int](4, nil)
	for i := 1; i <= 6; i++ {
		j.Record(i, i-1)
	}

	since := j.Since(4)
	require.Len(t, since, 2)
	assert.Equal(t, uint64(5), since[0].Seq)
	assert.Equal(t, uint64(6), since[1].Seq)

	assert.Empty(t, j.Since(6))
	assert.Len(t, j.Since(0), 4)
}

func TestJournal_EmptyAndDefaults(t *testing.T) {
	j := New[string](0, nil)
	assert.Equal(t, 0, j.Len())
	assert.Equal(t, DefaultSize, cap(j.entries))

	_, ok := j.Last()
	assert.False(t, ok)
	assert.Empty(t, j.Entries())
}
