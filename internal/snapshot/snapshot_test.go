package snapshot

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/vaultos/vaultwm/internal/layout"
)

func sample() Snapshot {
	return Snapshot{
		Active:  1,
		Layout:  layout.Grid,
		Mode:    "normal",
		Focused: 0x2a,
		Workspaces: []Workspace{
			{Index: 0, Name: "1", Clients: []Client{{Handle: 7, Class: "XTerm"}}},
			{Index: 1, Name: "web", Active: true, Focused: 0x2a, Clients: []Client{
				{Handle: 0x2a, Class: "firefox", Focused: true, Tags: []string{"work", "www"}},
				{Handle: 0x2b, Class: "Alacritty"},
			}},
		},
	}
}

func TestSummary(t *testing.T) {
	s := sample()
	require.Equal(t, 3, s.ClientCount())
	require.Equal(t,
		"workspace=2(web) layout=grid clients=3 mode=normal focused=0x2a class=firefox tags=work,www",
		s.Summary())

	s.Focused = 0
	require.Equal(t, "workspace=2(web) layout=grid clients=3 mode=normal", s.Summary())
}

func TestCurrentOutOfRange(t *testing.T) {
	_, ok := Snapshot{Active: 4}.Current()
	require.False(t, ok)
}

func TestHubLatest(t *testing.T) {
	h := NewHub()
	_, ok := h.Latest()
	require.False(t, ok)

	h.Publish(sample())
	got, ok := h.Latest()
	require.True(t, ok)
	if diff := cmp.Diff(sample(), got); diff != "" {
		t.Fatalf("latest snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestHubSlowSubscriberGetsNewest(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()

	for i := 0; i < 5; i++ {
		h.Publish(Snapshot{Active: i})
	}
	got := <-ch
	require.Equal(t, 4, got.Active)

	h.Unsubscribe(ch)
	_, open := <-ch
	require.False(t, open)

	// publishing after unsubscribe must not panic on the closed channel
	h.Publish(Snapshot{})
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	a, b := h.Subscribe(), h.Subscribe()
	h.Close()
	_, okA := <-a
	_, okB := <-b
	require.False(t, okA)
	require.False(t, okB)
}
