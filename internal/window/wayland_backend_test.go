package window

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vaultos/vaultwm/internal/layout"
)

func TestWaylandBackendReportsNotSupported(t *testing.T) {
	var b Backend = NewWaylandBackend()
	require.Equal(t, "wayland", b.Name())
	require.ErrorIs(t, b.Connect(), ErrNotSupported)
	require.ErrorIs(t, b.Map(1), ErrNotSupported)
	require.ErrorIs(t, b.MoveResize(1, layout.Rect{Width: 10, Height: 10}), ErrNotSupported)
	_, _, err := b.Identify(1)
	require.ErrorIs(t, err, ErrNotSupported)
	_, err = b.CreateStatusSurface(layout.Rect{})
	require.ErrorIs(t, err, ErrNotSupported)
	require.NoError(t, b.Close())
}

func TestDetectUnknownPreference(t *testing.T) {
	_, err := Detect("quartz")
	require.Error(t, err)

	b, err := Detect("wayland")
	require.NoError(t, err)
	require.Equal(t, "wayland", b.Name())
}

func TestParseModifier(t *testing.T) {
	m, err := ParseModifier("mod4")
	require.NoError(t, err)
	require.Equal(t, Mod4, m)
	m, err = ParseModifier("alt")
	require.NoError(t, err)
	require.Equal(t, Mod1, m)
	_, err = ParseModifier("hyper")
	require.Error(t, err)
}

func TestEventKindString(t *testing.T) {
	require.Equal(t, "window-presented", WindowPresented.String())
	require.Equal(t, "configuration-changed", ConfigurationChanged.String())
	require.Equal(t, "event(42)", EventKind(42).String())
}
