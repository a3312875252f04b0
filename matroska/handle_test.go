package matroska

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/mkvblock/internal/ebmlio"
)

func handleAt(t *testing.T, tbl *Table, tr TrackID, cl ClusterID, policy Policy, ts uint64) *Handle {
	t.Helper()
	h := NewHandle(tbl, policy)
	require.NoError(t, h.SetParent(cl))
	require.NoError(t, h.AddFrameAuto(tr, ts, frameOf(2, byte(ts)), LacingAuto, nil, nil))
	return h
}

func TestHandle_NewPolicies(t *testing.T) {
	tbl := NewTable()
	assert.False(t, NewHandle(tbl, PolicyNoSimple).IsSimpleBlock())
	assert.Equal(t, KindFull, NewHandle(tbl, PolicyNoSimple).Kind())
	assert.True(t, NewHandle(tbl, PolicyAlwaysSimple).IsSimpleBlock())
	assert.Equal(t, KindCompact, NewHandle(tbl, PolicySimpleAuto).Kind())
}

func TestHandle_AddFrameAuto(t *testing.T) {
	tbl, tr, cl := newTestTable(1, 0)
	past := handleAt(t, tbl, tr, cl, PolicySimpleAuto, 0)
	future := handleAt(t, tbl, tr, cl, PolicySimpleAuto, 20)

	require.True(t, past.IsSimpleBlock())
	assert.True(t, past.Simple().IsKeyframe())
	assert.False(t, past.Simple().IsDiscardable())

	t.Run("auto converts when referencing", func(t *testing.T) {
		h := NewHandle(tbl, PolicySimpleAuto)
		require.NoError(t, h.SetParent(cl))
		require.NoError(t, h.AddFrameAuto(tr, 10, frameOf(2, 0), LacingAuto, past, nil))
		require.False(t, h.IsSimpleBlock())
		require.Equal(t, 1, h.Group().ReferenceCount())
		assert.Equal(t, int16(-10), h.Group().Reference(0).Delta)
	})

	t.Run("always simple with past", func(t *testing.T) {
		h := NewHandle(tbl, PolicyAlwaysSimple)
		require.NoError(t, h.SetParent(cl))
		require.NoError(t, h.AddFrameAuto(tr, 10, frameOf(2, 0), LacingAuto, past, nil))
		require.True(t, h.IsSimpleBlock())
		assert.False(t, h.Simple().IsKeyframe())
		assert.False(t, h.Simple().IsDiscardable())
	})

	t.Run("always simple with future", func(t *testing.T) {
		h := NewHandle(tbl, PolicyAlwaysSimple)
		require.NoError(t, h.SetParent(cl))
		require.NoError(t, h.AddFrameAuto(tr, 10, frameOf(2, 0), LacingAuto, past, future))
		require.True(t, h.IsSimpleBlock())
		assert.False(t, h.Simple().IsKeyframe())
		assert.True(t, h.Simple().IsDiscardable())
	})

	t.Run("no simple", func(t *testing.T) {
		h := NewHandle(tbl, PolicyNoSimple)
		require.NoError(t, h.SetParent(cl))
		require.NoError(t, h.AddFrameAuto(tr, 10, frameOf(2, 0), LacingAuto, nil, nil))
		assert.False(t, h.IsSimpleBlock())
		assert.Equal(t, 0, h.Group().ReferenceCount())
	})
}

func TestHandle_ReplaceSimpleByGroup(t *testing.T) {
	tbl, tr, cl := newTestTable(1, 100)
	h := NewHandle(tbl, PolicySimpleAuto)
	require.NoError(t, h.SetParent(cl))
	for i := 0; i < 3; i++ {
		require.NoError(t, h.AddFrameAuto(tr, 110+uint64(i), NewBuffer([]byte{byte(i), byte(i)}), LacingXiph, nil, nil))
	}
	h.Simple().SetInvisible(true)

	require.NoError(t, h.ReplaceSimpleByGroup())
	require.False(t, h.IsSimpleBlock())
	b := h.Internal()
	assert.Equal(t, KindFull, b.Kind())
	assert.Equal(t, 0, h.Group().ReferenceCount())
	assert.Equal(t, uint16(1), b.TrackNumber())
	assert.Equal(t, tr, b.track)
	require.Equal(t, 3, b.NumFrames())
	assert.Equal(t, []byte{1, 1}, b.Frame(1).Bytes())
	assert.Equal(t, int16(10), b.RelativeTimestamp())
	assert.Equal(t, LacingXiph, b.Lacing())
	assert.True(t, b.Invisible())
	ts, err := h.GlobalTimestamp()
	require.NoError(t, err)
	assert.Equal(t, uint64(110), ts)

	require.NoError(t, h.ReplaceSimpleByGroup())

	out := render(t, h.Element())
	assert.Equal(t, byte(IDBlockGroup), out[0])
}

func TestHandle_AlwaysSimpleForbidsGroups(t *testing.T) {
	tbl, tr, cl := newTestTable(1, 0)
	h := handleAt(t, tbl, tr, cl, PolicyAlwaysSimple, 5)

	assert.ErrorIs(t, h.ReplaceSimpleByGroup(), ErrConversionForbidden)
	assert.ErrorIs(t, h.SetBlockDuration(10), ErrConversionForbidden)
	assert.ErrorIs(t, h.SetBlockGroup(NewBlockGroup(tbl)), ErrConversionForbidden)
	assert.True(t, h.IsSimpleBlock())
	assert.Equal(t, 1, h.Internal().NumFrames())
}

func TestHandle_SetBlockDuration(t *testing.T) {
	tbl, tr, cl := newTestTable(1, 0)
	h := handleAt(t, tbl, tr, cl, PolicySimpleAuto, 5)

	require.NoError(t, h.SetBlockDuration(33))
	d, ok := h.Group().BlockDuration()
	assert.True(t, ok)
	assert.Equal(t, uint64(33), d)
	assert.Equal(t, 1, h.Internal().NumFrames())
}

func TestHandle_SetBlockGroup(t *testing.T) {
	tbl, tr, cl := newTestTable(1, 0)
	released := 0
	h := NewHandle(tbl, PolicySimpleAuto)
	require.NoError(t, h.SetParent(cl))
	buf := NewBuffer([]byte{1}, WithReleaser(func(*Buffer) error {
		released++
		return nil
	}))
	require.NoError(t, h.AddFrameAuto(tr, 3, buf, LacingAuto, nil, nil))

	g := NewBlockGroup(tbl)
	require.NoError(t, h.SetBlockGroup(g))
	assert.Same(t, g, h.Group())
	assert.Equal(t, 1, released)
	require.NoError(t, g.AddFrame(tr, 3, frameOf(1, 0), LacingAuto))
}

func TestHandle_WrongAccessorPanics(t *testing.T) {
	tbl := NewTable()
	assert.Panics(t, func() { NewHandle(tbl, PolicySimpleAuto).Group() })
	assert.Panics(t, func() { NewHandle(tbl, PolicyNoSimple).Simple() })
}

func TestReadHandle(t *testing.T) {
	tbl, tr, cl := newTestTable(1, 0)
	h := handleAt(t, tbl, tr, cl, PolicySimpleAuto, 7)
	out := render(t, h.Element())

	got, err := ReadHandle(ebmlio.NewReader(bytes.NewReader(out)), tbl, cl, ebmlio.ScopeAllData, PolicySimpleAuto)
	require.NoError(t, err)
	require.True(t, got.IsSimpleBlock())
	assert.True(t, got.Simple().IsKeyframe())
	assert.Equal(t, []byte{7, 7}, got.Internal().Frame(0).Bytes())

	_, err = ReadHandle(ebmlio.NewReader(bytes.NewReader([]byte{0xA2, 0x84, 0x81, 0x00, 0x00, 0x00})), tbl, cl, ebmlio.ScopeAllData, PolicySimpleAuto)
	assert.ErrorIs(t, err, ErrUnexpectedElement)
}
