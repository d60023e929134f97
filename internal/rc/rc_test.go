package rc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInlineIncDec(t *testing.T) {
	var w Word
	w.Init()
	require.EqualValues(t, 1, w.StrongCount())

	w.IncStrong()
	require.EqualValues(t, 2, w.StrongCount())

	require.False(t, w.DecStrong())
	require.EqualValues(t, 1, w.StrongCount())

	require.True(t, w.DecStrong())
	require.EqualValues(t, 0, w.StrongCount())
}

func TestImmortalNoOp(t *testing.T) {
	var w Word
	w.InitImmortal()
	w.IncStrong()
	require.False(t, w.DecStrong())
	require.True(t, w.IsImmortal())
}

func TestSaturationUpgradesToSideTable(t *testing.T) {
	var w Word
	w.state.Store(inlineMaxSat << inlineShift)

	w.IncStrong()
	require.EqualValues(t, inlineMaxSat+1, w.StrongCount())
	require.NotZero(t, w.state.Load()&sideTableTag)
}

func TestWeakUpgradeAndGetObject(t *testing.T) {
	var w Word
	w.Init()

	w.IncWeak()
	require.NotZero(t, w.state.Load()&sideTableTag)

	ok := w.GetObject()
	require.True(t, ok)
	require.EqualValues(t, 2, w.StrongCount())

	require.False(t, w.DecStrong())
	require.True(t, w.DecStrong())
	require.EqualValues(t, 0, w.StrongCount())

	require.False(t, w.GetObject())

	w.DecWeak()
}

func TestGCTrackedSurvivesUpgrade(t *testing.T) {
	var w Word
	w.Init()
	w.SetGCTracked()
	require.True(t, w.IsGCTracked())

	w.IncWeak()
	require.True(t, w.IsGCTracked())
}
