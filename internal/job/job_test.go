package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddByIDByPGID(t *testing.T) {
	tbl := New(4)

	id, err := tbl.Add(1234, "sleep 30 &", Running)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	j, err := tbl.ByID(id)
	require.NoError(t, err)
	assert.Equal(t, 1234, j.PGID)
	assert.Equal(t, Running, j.State)

	j2, err := tbl.ByPGID(1234)
	require.NoError(t, err)
	assert.Equal(t, j, j2)
}

func TestUpdateStateTouchesOnlyStateField(t *testing.T) {
	tbl := New(4)
	id, _ := tbl.Add(99, "sleep 100", Running)

	ok := tbl.UpdateState(99, Stopped)
	assert.True(t, ok)

	j, err := tbl.ByID(id)
	require.NoError(t, err)
	assert.Equal(t, Stopped, j.State)
	assert.Equal(t, "sleep 100", j.Cmdline)

	assert.False(t, tbl.UpdateState(12345, Done))
}

func TestListOrderedByID(t *testing.T) {
	tbl := New(4)
	idA, _ := tbl.Add(1, "a", Running)
	idB, _ := tbl.Add(2, "b", Running)
	idC, _ := tbl.Add(3, "c", Running)

	list := tbl.List()
	require.Len(t, list, 3)
	assert.Equal(t, []int{idA, idB, idC}, []int{list[0].ID, list[1].ID, list[2].ID})
}

func TestReapDoneRemovesFromBothIndexes(t *testing.T) {
	tbl := New(4)
	tbl.Add(1, "a", Running)
	idB, _ := tbl.Add(2, "b", Running)
	tbl.UpdateState(2, Done)

	done := tbl.ReapDone()
	require.Len(t, done, 1)
	assert.Equal(t, idB, done[0].ID)

	_, err := tbl.ByID(idB)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tbl.ByPGID(2)
	assert.ErrorIs(t, err, ErrNotFound)

	// second call is idempotent: nothing left to reap
	assert.Empty(t, tbl.ReapDone())
}

func TestTableFull(t *testing.T) {
	tbl := New(1)
	_, err := tbl.Add(1, "a", Running)
	require.NoError(t, err)

	_, err = tbl.Add(2, "b", Running)
	assert.ErrorIs(t, err, ErrTableFull)
}

func TestMostRecent(t *testing.T) {
	tbl := New(4)
	tbl.Add(1, "a", Running)
	idB, _ := tbl.Add(2, "b", Stopped)

	j, err := tbl.MostRecent()
	require.NoError(t, err)
	assert.Equal(t, idB, j.ID)
}

func TestMostRecentEmpty(t *testing.T) {
	tbl := New(4)
	_, err := tbl.MostRecent()
	assert.ErrorIs(t, err, ErrNotFound)
}
