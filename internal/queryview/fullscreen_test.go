package queryview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullscreenInitialFromLocation(t *testing.T) {
	on := NewFullscreenSync(newMemLocation(map[string]string{"fullscreen": "true"}), 100)
	assert.True(t, on.Stored())

	off := NewFullscreenSync(newMemLocation(nil), 100)
	assert.False(t, off.Stored())
}

func TestFullscreenToggleTwiceRestores(t *testing.T) {
	loc := newMemLocation(nil)
	f := NewFullscreenSync(loc, 100)

	collect(f.Toggle())
	v, ok := loc.Read("fullscreen")
	require.True(t, ok)
	assert.Equal(t, "true", v)

	collect(f.Toggle())
	_, ok = loc.Read("fullscreen")
	assert.False(t, ok)

	// A fresh mount reads back the state written at the end.
	assert.False(t, NewFullscreenSync(loc, 100).Stored())
}

func TestFullscreenOverlappingWritesConverge(t *testing.T) {
	loc := newMemLocation(nil)
	f := NewFullscreenSync(loc, 100)

	first := f.Toggle()
	second := f.Toggle()
	third := f.Toggle()

	// Deferred writes run out of order; all of them see the final flag.
	collect(third)
	collect(first)
	collect(second)

	v, ok := loc.Read("fullscreen")
	require.True(t, ok)
	assert.Equal(t, "true", v)
	assert.Equal(t, 3, loc.writes)
	assert.True(t, NewFullscreenSync(loc, 100).Stored())
}

func TestFullscreenForcedOffWhenNarrow(t *testing.T) {
	f := NewFullscreenSync(newMemLocation(map[string]string{"fullscreen": "true"}), 100)
	assert.True(t, f.Enabled(), "unknown width does not gate")

	f.SetWidth(80)
	assert.False(t, f.Enabled())
	assert.False(t, f.Available())
	assert.True(t, f.Stored())

	f.SetWidth(120)
	assert.True(t, f.Enabled())
}

func TestFullscreenWithoutLocation(t *testing.T) {
	f := NewFullscreenSync(nil, 0)
	assert.Nil(t, f.Toggle())
	assert.True(t, f.Enabled())
}
