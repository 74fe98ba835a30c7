package statusbar

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/basicfont"

	"github.com/vaultos/vaultwm/internal/layout"
	"github.com/vaultos/vaultwm/internal/sensors"
	"github.com/vaultos/vaultwm/internal/snapshot"
)

func sample() snapshot.Snapshot {
	return snapshot.Snapshot{
		Active: 0,
		Layout: layout.Tiling,
		Workspaces: []snapshot.Workspace{
			{Index: 0, Name: "1", Active: true, Clients: []snapshot.Client{{Handle: 1}, {Handle: 2}}},
			{Index: 1, Name: "2"},
			{Index: 2, Name: "3", Clients: []snapshot.Client{{Handle: 3, Urgent: true}}},
		},
		Sensors: sensors.Reading{
			CPUPercent: 12.4,
			MemUsed:    1,
			MemTotal:   4,
			NetRxRate:  1536,
			NetTxRate:  512,
		},
		Segments: []string{"09:07"},
	}
}

func TestDefaultLine(t *testing.T) {
	got := DefaultLine().Compose(sample())
	require.Equal(t,
		"VaultOS | [1] 3! | CPU 12% MEM 25% NET 1.5K/512B | 09:07 | Clients: 3 | Layout: tiling",
		got)
}

func TestLineSkipsEmptyAndDisabled(t *testing.T) {
	l := DefaultLine()
	seg, ok := l.Get("sensors")
	require.True(t, ok)
	seg.SetEnabled(false)

	s := sample()
	s.Segments = nil
	require.Equal(t, "VaultOS | [1] 3! | Clients: 3 | Layout: tiling", l.Compose(s))
}

func TestLineAddRemove(t *testing.T) {
	l := NewLine()
	require.NoError(t, l.Add(NewTextSegment("a", "A")))
	require.Error(t, l.Add(NewTextSegment("a", "again")))
	require.NoError(t, l.Add(NewTextSegment("b", "B")))
	require.Equal(t, []string{"a", "b"}, l.IDs())

	require.NoError(t, l.Remove("a"))
	require.Error(t, l.Remove("a"))
	require.Equal(t, "B", l.Compose(snapshot.Snapshot{}))
}

func TestPanickingSegmentIsDropped(t *testing.T) {
	l := NewLine()
	l.Add(NewTextSegment("ok", "fine"))
	l.Add(NewFuncSegment("bad", func(snapshot.Snapshot) string { panic("boom") }))
	require.Equal(t, "fine", l.Compose(snapshot.Snapshot{}))
}

func TestBarFit(t *testing.T) {
	b := NewBar(100, 20, "", DefaultForeground, DefaultBackground)
	require.Equal(t, "short", b.Fit("short"))
	require.Equal(t, "abcdefgh...", b.Fit("abcdefghijklmnop"))
}

func TestBarRender(t *testing.T) {
	b := NewBar(200, 30, "", DefaultForeground, DefaultBackground)
	img := b.Render("VaultOS")
	require.Equal(t, 200, img.Bounds().Dx())
	require.Equal(t, 30, img.Bounds().Dy())
	require.Equal(t, DefaultBackground, img.RGBAAt(0, 0))
	require.Equal(t, DefaultBackground, img.RGBAAt(199, 29))

	found := false
	for y := 0; y < 30 && !found; y++ {
		for x := 0; x < 200; x++ {
			if img.RGBAAt(x, y) == DefaultForeground {
				found = true
				break
			}
		}
	}
	require.True(t, found, "expected text pixels in foreground color")
}

func TestBarFontFallback(t *testing.T) {
	b := NewBar(100, 20, "/nonexistent/font.ttf", color.RGBA{A: 255}, color.RGBA{A: 255})
	require.Equal(t, basicfont.Face7x13, b.face)
	_, err := LoadFace("/nonexistent/font.ttf", 12)
	require.Error(t, err)
}
