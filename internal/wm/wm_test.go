package wm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/vaultos/vaultwm/internal/config"
	"github.com/vaultos/vaultwm/internal/ipc"
	"github.com/vaultos/vaultwm/internal/layout"
	"github.com/vaultos/vaultwm/internal/output"
	"github.com/vaultos/vaultwm/internal/sensors"
	"github.com/vaultos/vaultwm/internal/window"
	"github.com/vaultos/vaultwm/internal/window/windowtest"
)

var epoch = time.Date(2026, 3, 1, 9, 7, 0, 0, time.UTC)

type fakeSensors struct{}

func (fakeSensors) CPUPercent() (float64, error)         { return 12, nil }
func (fakeSensors) Memory() (uint64, uint64, error)      { return 1 << 30, 4 << 30, nil }
func (fakeSensors) NetCounters() (uint64, uint64, error) { return 0, 0, nil }

type recordingNotifier struct {
	summaries []string
	closed    int
}

func (n *recordingNotifier) Notify(summary, _ string) error {
	n.summaries = append(n.summaries, summary)
	return nil
}

func (n *recordingNotifier) Close() error {
	n.closed++
	return nil
}

type fakeTicker struct {
	c chan time.Time
}

func (t fakeTicker) C() <-chan time.Time { return t.c }
func (t fakeTicker) Stop()               {}

type harness struct {
	loop     *ControlLoop
	backend  *windowtest.Backend
	notifier *recordingNotifier
	launched []string
	dir      string
	config   string
}

// start builds a loop on the fake backend. rulesText goes to the rules
// file; configText is appended to the config file.
func start(t *testing.T, configText, rulesText string, setup func(*windowtest.Backend)) *harness {
	t.Helper()
	h := &harness{
		backend:  windowtest.New(),
		notifier: &recordingNotifier{},
		dir:      t.TempDir(),
	}
	if setup != nil {
		setup(h.backend)
	}

	h.config = filepath.Join(h.dir, "config")
	rulesPath := filepath.Join(h.dir, "rules")
	h.writeConfig(t, configText)
	if rulesText != "" {
		require.NoError(t, os.WriteFile(rulesPath, []byte(rulesText), 0o600))
	}

	mgr, err := config.NewManager(h.config)
	require.NoError(t, err)

	h.loop, err = New(Options{
		Backend:  h.backend,
		Config:   mgr,
		Sensors:  fakeSensors{},
		Notifier: h.notifier,
		Launch: func(command string) error {
			h.launched = append(h.launched, command)
			return nil
		},
		Now: func() time.Time { return epoch },
	})
	require.NoError(t, err)
	require.NoError(t, h.loop.Start())
	t.Cleanup(func() { h.loop.Close() })
	return h
}

func (h *harness) writeConfig(t *testing.T, text string) {
	t.Helper()
	base := "rules_file=" + filepath.Join(h.dir, "rules") + "\nplugins=\n"
	require.NoError(t, os.WriteFile(h.config, []byte(base+text), 0o600))
}

func (h *harness) present(handles ...window.Handle) {
	for _, w := range handles {
		h.loop.dispatch(window.Event{Kind: window.WindowPresented, Window: w})
	}
}

func (h *harness) command(t *testing.T, line string) string {
	t.Helper()
	cmd, err := ipc.Parse(line)
	require.NoError(t, err)
	return h.loop.execute(cmd)
}

// column is the default tiling geometry for n windows: a 1920x1080
// screen minus the 30px bar, gap 5, border 2
func column(n int) []layout.Rect {
	var out []layout.Rect
	for _, r := range layout.Arrange(layout.Tiling, n, layout.Rect{Y: 30, Width: 1920, Height: 1050}, 5) {
		out = append(out, layout.Rect{X: r.X, Y: r.Y, Width: r.Width - 4, Height: r.Height - 4})
	}
	return out
}

func TestStartAdoptsExistingWindows(t *testing.T) {
	h := start(t, "", "", func(b *windowtest.Backend) {
		b.Existing = []window.Handle{10, 11}
	})
	b := h.backend

	require.True(t, b.IsMapped(10))
	require.True(t, b.IsMapped(11))
	require.Equal(t, window.Handle(11), b.FocusedWindow())

	require.NotNil(t, b.Status)
	require.Equal(t, layout.Rect{Width: 1920, Height: 30}, b.Status.Bounds)
	require.Equal(t, 1, b.Status.FrameCount())

	require.NotEmpty(t, b.Hints)
	last := b.Hints[len(b.Hints)-1]
	require.Len(t, last.Names, 9)
	require.Equal(t, []window.Handle{10, 11}, last.Clients)
	require.Equal(t, window.Handle(11), last.Active)

	require.Contains(t, b.Keys, window.KeyBinding{Mods: window.Mod4, Key: "Return"})
	require.Contains(t, b.Keys, window.KeyBinding{Mods: window.Mod4 | window.ModShift, Key: "9"})
	require.Equal(t, []window.ButtonBinding{{Mods: window.Mod4, Button: 1}, {Mods: window.Mod4, Button: 3}}, b.Buttons)
}

func TestTilingGeometry(t *testing.T) {
	h := start(t, "", "", nil)
	h.present(1, 2)

	want := column(2)
	got := []layout.Rect{h.backend.GeometryOf(1), h.backend.GeometryOf(2)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("geometry mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, layout.Rect{X: 5, Y: 35, Width: 1906, Height: 513}, got[0])
}

func TestRules(t *testing.T) {
	rules := strings.Join([]string{
		"Gimp:workspace=2",
		"Pavucontrol:float=true",
		"Xclock:position=100,200",
		"Firefox:tag=web",
		"Mpv:size=800x600",
	}, "\n")
	h := start(t, "", rules, func(b *windowtest.Backend) {
		b.Windows[1] = windowtest.Identity{Class: "Gimp", Instance: "gimp"}
		b.Windows[2] = windowtest.Identity{Class: "Pavucontrol", Instance: "pavucontrol"}
		b.Windows[3] = windowtest.Identity{Class: "Xclock", Instance: "xclock"}
		b.Windows[4] = windowtest.Identity{Class: "Firefox", Instance: "Navigator"}
		b.Windows[5] = windowtest.Identity{Class: "Mpv", Instance: "gl"}
	})
	h.present(1, 2, 3, 4, 5)
	b := h.backend

	// workspace rule: managed on workspace 2 but not shown
	require.False(t, b.IsMapped(1))
	c, ok := h.loop.set.Client(1)
	require.True(t, ok)
	require.Equal(t, 1, c.Workspace)
	require.Equal(t, 0, h.loop.set.Active())

	// float: centered on the output under the pointer
	require.Equal(t, layout.Rect{X: 640, Y: 300, Width: 640, Height: 480}, b.GeometryOf(2))

	// position implies floating and is used as given
	require.Equal(t, layout.Rect{X: 100, Y: 200, Width: 640, Height: 480}, b.GeometryOf(3))

	// size implies floating and is centered
	require.Equal(t, layout.Rect{X: 560, Y: 240, Width: 800, Height: 600}, b.GeometryOf(5))

	// the only tiled client on the visible workspace takes the whole area
	require.Equal(t, column(1)[0], b.GeometryOf(4))

	require.NoError(t, h.loop.set.FocusHandle(4))
	snap := h.loop.Snapshot()
	require.Equal(t, []string{"web"}, snap.Workspaces[0].Clients[2].Tags)
	require.True(t, strings.HasSuffix(snap.Summary(), "class=Firefox tags=web"), snap.Summary())
}

func TestLayoutRule(t *testing.T) {
	h := start(t, "", "Steam:layout=grid", func(b *windowtest.Backend) {
		b.Windows[7] = windowtest.Identity{Class: "Steam", Instance: "steam"}
	})
	h.present(7)
	require.Equal(t, layout.Grid, h.loop.set.Current().Layout)
}

func TestSwitchUnmapsBeforeMapping(t *testing.T) {
	h := start(t, "", "", nil)
	h.present(1, 2)
	require.Equal(t, "OK: workspace 2", h.command(t, "workspace 2"))
	h.present(3)

	h.backend.ResetOps()
	require.Equal(t, "OK: workspace 1", h.command(t, "workspace 1"))

	ops := h.backend.Operations()
	lastUnmap, firstMap := -1, len(ops)
	for i, op := range ops {
		if strings.HasPrefix(op, "unmap ") {
			lastUnmap = i
		}
		if strings.HasPrefix(op, "map ") && i < firstMap {
			firstMap = i
		}
	}
	require.Equal(t, "unmap 3", ops[lastUnmap])
	require.Less(t, lastUnmap, firstMap)

	require.Equal(t, []window.Handle{1, 2}, h.loop.set.MappedClients())
	// switching resets focus to the first client
	require.Equal(t, window.Handle(1), h.backend.FocusedWindow())
}

func TestWithdrawLastClientClearsFocus(t *testing.T) {
	h := start(t, "", "", nil)
	h.present(1, 2)
	h.loop.dispatch(window.Event{Kind: window.WindowWithdrawn, Window: 2})
	require.Equal(t, window.Handle(1), h.backend.FocusedWindow())
	require.Equal(t, column(1)[0], h.backend.GeometryOf(1))

	h.loop.dispatch(window.Event{Kind: window.WindowWithdrawn, Window: 1})
	_, ok := h.loop.set.Current().FocusedIndex()
	require.False(t, ok)
	require.Zero(t, h.loop.Snapshot().Focused)

	// unknown windows are ignored
	h.loop.dispatch(window.Event{Kind: window.WindowWithdrawn, Window: 99})
	require.Equal(t, 0, h.loop.set.Len())
}

func TestMonocleShowsOnlyFocused(t *testing.T) {
	h := start(t, "", "", nil)
	h.present(1, 2, 3)

	require.Equal(t, "OK: layout monocle", h.command(t, "toggle_layout"))
	require.Equal(t, []window.Handle{3}, h.loop.set.MappedClients())

	require.Equal(t, "OK: focus_next", h.command(t, "focus_next"))
	require.Equal(t, []window.Handle{1}, h.loop.set.MappedClients())
	require.Equal(t, window.Handle(1), h.backend.FocusedWindow())

	// leaving monocle shows everyone again
	require.Equal(t, "OK: layout grid", h.command(t, "toggle_layout"))
	require.Equal(t, []window.Handle{1, 2, 3}, h.loop.set.MappedClients())
}

func TestMonocleIgnoresRemapOfBackgroundClient(t *testing.T) {
	h := start(t, "", "", nil)
	h.present(1, 2, 3)
	require.Equal(t, "OK: layout monocle", h.command(t, "toggle_layout"))

	h.loop.dispatch(window.Event{Kind: window.WindowPresented, Window: 1})
	require.Equal(t, []window.Handle{3}, h.loop.set.MappedClients())
	require.False(t, h.backend.IsMapped(1))
	require.True(t, h.backend.IsMapped(3))

	// outside monocle the request is honored
	require.Equal(t, "OK: layout grid", h.command(t, "toggle_layout"))
	c, _ := h.loop.set.Client(2)
	h.loop.set.Hide(c)
	h.loop.dispatch(window.Event{Kind: window.WindowPresented, Window: 2})
	require.True(t, h.backend.IsMapped(2))
}

func TestMouseMoveAccumulatesDeltas(t *testing.T) {
	h := start(t, "", "", nil)
	h.present(1, 2)
	origin := h.backend.GeometryOf(1)

	h.loop.dispatch(window.Event{Kind: window.ButtonDown, Window: 1, Button: 1, Mods: window.Mod4, X: 100, Y: 100})
	require.Equal(t, ModeMoving, h.loop.mode)
	require.True(t, h.backend.Grabbed)
	c, _ := h.loop.set.Client(1)
	require.True(t, c.Floating)
	// the remaining tiled window takes the whole area
	require.Equal(t, column(1)[0], h.backend.GeometryOf(2))

	h.loop.dispatch(window.Event{Kind: window.PointerMoved, X: 110, Y: 105})
	h.loop.dispatch(window.Event{Kind: window.PointerMoved, X: 120, Y: 105})
	want := origin
	want.X += 20
	want.Y += 5
	require.Equal(t, want, h.backend.GeometryOf(1))
	require.Equal(t, "moving", h.loop.Snapshot().Mode)

	h.loop.dispatch(window.Event{Kind: window.ButtonUp, Button: 1})
	require.Equal(t, ModeNormal, h.loop.mode)
	require.False(t, h.backend.Grabbed)

	// motion outside a drag does nothing
	h.loop.dispatch(window.Event{Kind: window.PointerMoved, X: 500, Y: 500})
	require.Equal(t, want, h.backend.GeometryOf(1))
}

func TestResizeHasFloor(t *testing.T) {
	h := start(t, "", "", nil)
	h.present(1)

	h.loop.dispatch(window.Event{Kind: window.ButtonDown, Window: 1, Button: 3, Mods: window.Mod4, X: 500, Y: 500})
	require.Equal(t, ModeResizing, h.loop.mode)
	h.loop.dispatch(window.Event{Kind: window.PointerMoved, X: -5000, Y: -5000})

	got := h.backend.GeometryOf(1)
	require.Equal(t, MinSize, got.Width)
	require.Equal(t, MinSize, got.Height)
}

func TestButtonWithoutModifierIsIgnored(t *testing.T) {
	h := start(t, "", "", nil)
	h.present(1)
	h.loop.dispatch(window.Event{Kind: window.ButtonDown, Window: 1, Button: 1, X: 5, Y: 5})
	require.Equal(t, ModeNormal, h.loop.mode)
}

func TestKeyboardMoveEndsOnKeyRelease(t *testing.T) {
	h := start(t, "", "", nil)
	h.present(1)

	h.loop.dispatch(window.Event{Kind: window.KeyDown, Key: "m", Mods: window.Mod4, X: 10, Y: 10})
	require.Equal(t, ModeMoving, h.loop.mode)

	// a button release does not end a keyboard drag
	h.loop.dispatch(window.Event{Kind: window.ButtonUp, Button: 1})
	require.Equal(t, ModeMoving, h.loop.mode)

	h.loop.dispatch(window.Event{Kind: window.KeyUp, Key: "x", Mods: window.Mod4})
	require.Equal(t, ModeMoving, h.loop.mode)
	h.loop.dispatch(window.Event{Kind: window.KeyUp, Key: "m", Mods: window.Mod4})
	require.Equal(t, ModeNormal, h.loop.mode)
}

func TestKeyBindings(t *testing.T) {
	h := start(t, "", "", nil)
	h.present(1, 2)
	key := func(mods window.Modifier, name string) {
		h.loop.dispatch(window.Event{Kind: window.KeyDown, Key: name, Mods: mods})
	}

	key(window.Mod4, "Return")
	key(window.Mod4, "d")
	require.Equal(t, []string{"alacritty || xterm", "dmenu_run || rofi -show drun"}, h.launched)

	key(window.Mod4, "q")
	require.Equal(t, []window.Handle{2}, h.backend.Closed)

	key(window.Mod4|window.ModShift, "3")
	c, _ := h.loop.set.Client(2)
	require.Equal(t, 2, c.Workspace)
	require.False(t, h.backend.IsMapped(2))

	key(window.Mod4, "3")
	require.Equal(t, 2, h.loop.set.Active())
	require.True(t, h.backend.IsMapped(2))
	require.False(t, h.backend.IsMapped(1))

	key(window.Mod4, "t")
	require.Equal(t, layout.Monocle, h.loop.set.Current().Layout)

	key(window.Mod4, "f")
	require.True(t, c.Floating)

	// unbound keys are ignored
	key(window.Mod1, "Return")
	require.Len(t, h.launched, 2)

	key(window.Mod4|window.ModShift, "e")
	require.True(t, h.loop.quit)
}

func TestModKeyFromConfig(t *testing.T) {
	h := start(t, "mod_key=mod1\n", "", nil)
	h.loop.dispatch(window.Event{Kind: window.KeyDown, Key: "Return", Mods: window.Mod1})
	require.Len(t, h.launched, 1)
	require.Contains(t, h.backend.Keys, window.KeyBinding{Mods: window.Mod1, Key: "j"})
}

func TestLaunchFailureNotifies(t *testing.T) {
	h := start(t, "", "", nil)
	h.loop.launch = func(string) error { return errors.New("unsafe command") }
	h.loop.dispatch(window.Event{Kind: window.KeyDown, Key: "Return", Mods: window.Mod4})
	require.Equal(t, []string{"Failed to launch terminal"}, h.notifier.summaries)
}

func TestPanicInHandlerIsContained(t *testing.T) {
	h := start(t, "", "", nil)
	h.present(1)
	h.loop.launch = func(string) error { panic("boom") }

	h.loop.dispatch(window.Event{Kind: window.KeyDown, Key: "Return", Mods: window.Mod4})

	h.present(2)
	require.Equal(t, 2, h.loop.set.Len())
	require.Equal(t, window.Handle(2), h.backend.FocusedWindow())
}

func TestGeometryRequestsAreHonored(t *testing.T) {
	h := start(t, "", "Pavucontrol:float=true", func(b *windowtest.Backend) {
		b.Windows[2] = windowtest.Identity{Class: "Pavucontrol"}
	})

	unmanaged := window.GeometryRequest{Window: 99, Mask: window.ConfigWidth | window.ConfigHeight, Width: 300, Height: 200}
	h.loop.dispatch(window.Event{Kind: window.GeometryRequested, Window: 99, Request: unmanaged})
	require.Equal(t, []window.GeometryRequest{unmanaged}, h.backend.Configured)

	h.present(2)
	req := window.GeometryRequest{Window: 2, Mask: window.ConfigX | window.ConfigWidth, X: 40, Width: 900}
	h.loop.dispatch(window.Event{Kind: window.GeometryRequested, Window: 2, Request: req})
	c, _ := h.loop.set.Client(2)
	require.Equal(t, 40, c.Geometry.X)
	require.Equal(t, 900, c.Geometry.Width)
	require.Equal(t, 300, c.Geometry.Y)
}

func TestCommands(t *testing.T) {
	h := start(t, "workspace_3=mail\n", "", nil)

	require.Equal(t, "OK: workspace 3", h.command(t, "workspace 3"))
	require.Equal(t, 2, h.loop.set.Active())
	require.Equal(t, "OK: workspace=3(mail) layout=tiling clients=0 mode=normal", h.command(t, "get_status"))

	require.True(t, strings.HasPrefix(h.command(t, "workspace 10"), "ERROR: bad argument"))
	require.True(t, strings.HasPrefix(h.command(t, "workspace"), "ERROR: bad argument"))
	require.Equal(t, 2, h.loop.set.Active())

	require.Equal(t, "ERROR: no focused window", h.command(t, "close_window"))
	require.Equal(t, "ERROR: no focused window", h.command(t, "toggle_float"))
	require.Equal(t, "ERROR: no focused window", h.command(t, "move_to_workspace 1"))
	require.Equal(t, "OK: focus_prev", h.command(t, "focus_prev"))

	h.present(4)
	require.Equal(t, "OK: move_to_workspace 1", h.command(t, "move_to_workspace 1"))
	require.Equal(t, "OK: workspace=3(mail) layout=tiling clients=1 mode=normal", h.command(t, "get_status"))

	require.Equal(t, "OK: quit", h.command(t, "quit"))
	require.True(t, h.loop.quit)
}

func TestUrgentHiddenClient(t *testing.T) {
	h := start(t, "", "", nil)
	h.present(1)
	h.command(t, "workspace 2")

	// the hidden client asks to be shown again
	h.present(1)
	c, _ := h.loop.set.Client(1)
	require.True(t, c.Urgent)
	require.Equal(t, uint32(0xFF0000), h.backend.Borders[1])
	require.False(t, h.backend.IsMapped(1))

	h.command(t, "workspace 1")
	require.False(t, c.Urgent)
	require.True(t, h.backend.IsMapped(1))
}

func TestReload(t *testing.T) {
	h := start(t, "", "", nil)
	h.present(1)

	h.writeConfig(t, "gap_size=0\nborder_width=0\nworkspace_1=term\nplugins=clock\n")
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "rules"), []byte("Gimp:float=true\n"), 0o600))
	require.Equal(t, "OK: reload", h.command(t, "reload"))

	require.Equal(t, layout.Rect{Y: 30, Width: 1920, Height: 1050}, h.backend.GeometryOf(1))
	require.Equal(t, "term", h.loop.Snapshot().Workspaces[0].Name)
	require.Equal(t, 1, h.loop.rules.Len())
	require.Equal(t, []string{"clock"}, h.loop.plugins.Loaded())
}

func TestReloadFailureKeepsConfig(t *testing.T) {
	h := start(t, "gap_size=9\n", "", nil)
	require.NoError(t, os.Remove(h.config))
	require.NoError(t, os.Mkdir(h.config, 0o700))

	reply := h.command(t, "reload")
	require.True(t, strings.HasPrefix(reply, "ERROR:"), reply)
	require.Equal(t, 9, h.loop.cfg.GapSize)
	require.Equal(t, []string{"VaultWM reload failed"}, h.notifier.summaries)
}

func TestOutputChange(t *testing.T) {
	h := start(t, "", "", nil)
	h.present(1)

	h.backend.Screen = layout.Rect{Width: 3840, Height: 1080}
	h.backend.Outputs = []output.Output{
		{Name: "DP-1", Bounds: layout.Rect{Width: 1920, Height: 1080}},
		{Name: "DP-2", Primary: true, Bounds: layout.Rect{X: 1920, Width: 1920, Height: 1080}},
	}
	h.loop.dispatch(window.Event{Kind: window.ConfigurationChanged})

	got := h.backend.GeometryOf(1)
	require.Equal(t, 1925, got.X)
	require.Len(t, h.loop.Snapshot().Outputs, 2)
}

func TestOutputRemovalRecentersFloating(t *testing.T) {
	h := start(t, "", "", func(b *windowtest.Backend) {
		b.Screen = layout.Rect{Width: 3840, Height: 1080}
		b.Outputs = []output.Output{
			{Name: "DP-1", Primary: true, Bounds: layout.Rect{Width: 1920, Height: 1080}},
			{Name: "DP-2", Bounds: layout.Rect{X: 1920, Width: 1920, Height: 1080}},
		}
	})
	h.present(1, 2)
	stranded, _ := h.loop.set.Client(1)
	stranded.Floating = true
	stranded.Geometry = layout.Rect{X: 2500, Y: 100, Width: 640, Height: 480}
	kept, _ := h.loop.set.Client(2)
	kept.Floating = true
	kept.Geometry = layout.Rect{X: 100, Y: 100, Width: 640, Height: 480}

	// DP-2 unplugged
	h.backend.Screen = layout.Rect{Width: 1920, Height: 1080}
	h.backend.Outputs = h.backend.Outputs[:1]
	h.loop.dispatch(window.Event{Kind: window.ConfigurationChanged})

	want := layout.Rect{X: 640, Y: 300, Width: 640, Height: 480}
	require.Equal(t, want, stranded.Geometry)
	require.Equal(t, want, h.backend.GeometryOf(1))
	require.Equal(t, layout.Rect{X: 100, Y: 100, Width: 640, Height: 480}, kept.Geometry)
}

func TestExposeForcesRedraw(t *testing.T) {
	h := start(t, "", "", nil)
	frames := h.backend.Status.FrameCount()

	h.loop.tick(epoch)
	require.Equal(t, frames, h.backend.Status.FrameCount())

	h.loop.dispatch(window.Event{Kind: window.ExposeStatusSurface, Window: windowtest.StatusHandle})
	require.Equal(t, frames+1, h.backend.Status.FrameCount())

	// a state change alters the line and redraws it
	h.present(1)
	require.Equal(t, frames+2, h.backend.Status.FrameCount())
}

func TestStatusBarDisabled(t *testing.T) {
	h := start(t, "status_bar_enabled=false\n", "", nil)
	require.Nil(t, h.backend.Status)
	h.present(1)
	require.Equal(t, layout.Rect{X: 5, Y: 5, Width: 1906, Height: 1066}, h.backend.GeometryOf(1))
}

func TestStatusSurfaceIsNeverManaged(t *testing.T) {
	h := start(t, "", "", nil)
	h.present(windowtest.StatusHandle)
	require.Equal(t, 0, h.loop.set.Len())
}

func TestRunUntilQuit(t *testing.T) {
	h := start(t, "", "", nil)
	commands := make(chan ipc.Request)
	h.loop.AttachCommands(commands)
	ticks := make(chan time.Time)
	h.loop.tickerFactory = func(time.Duration) ticker { return fakeTicker{c: ticks} }

	done := make(chan error, 1)
	go func() { done <- h.loop.Run(context.Background()) }()

	ticks <- epoch
	replies := make(chan string, 1)
	commands <- ipc.Request{Command: ipc.Command{Name: ipc.CmdQuit}, Reply: replies}
	require.Equal(t, "OK: quit", <-replies)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

type panickingSensors struct{ fakeSensors }

func (panickingSensors) CPUPercent() (float64, error) { panic("sensor exploded") }

func TestRunSurvivesPanicInTick(t *testing.T) {
	h := start(t, "", "", nil)
	h.loop.sensors = sensors.NewCache(panickingSensors{}, sensors.DefaultIntervals())
	commands := make(chan ipc.Request)
	h.loop.AttachCommands(commands)
	ticks := make(chan time.Time)
	h.loop.tickerFactory = func(time.Duration) ticker { return fakeTicker{c: ticks} }

	done := make(chan error, 1)
	go func() { done <- h.loop.Run(context.Background()) }()

	ticks <- epoch
	replies := make(chan string, 1)
	commands <- ipc.Request{Command: ipc.Command{Name: ipc.CmdQuit}, Reply: replies}
	require.Equal(t, "OK: quit", <-replies)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := start(t, "", "", nil)
	h.loop.tickerFactory = func(time.Duration) ticker { return fakeTicker{c: make(chan time.Time)} }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestCloseTearsDownOnce(t *testing.T) {
	h := start(t, "", "", nil)
	h.present(1, 2)
	h.command(t, "workspace 2")
	h.present(3)

	require.NoError(t, h.loop.Close())
	require.NoError(t, h.loop.Close())

	destroyed := slices.Clone(h.backend.Destroyed)
	slices.Sort(destroyed)
	require.Equal(t, []window.Handle{1, 2, 3}, destroyed)
	require.Equal(t, 1, h.backend.CloseCount)
	require.Equal(t, 1, h.backend.Status.Destroyed)
	require.Equal(t, 1, h.notifier.closed)
}

func TestStartFailsWithoutDisplaySupport(t *testing.T) {
	mgr, err := config.NewManager(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	l, err := New(Options{Backend: window.NewWaylandBackend(), Config: mgr, Sensors: fakeSensors{}})
	require.NoError(t, err)

	require.ErrorIs(t, l.Start(), window.ErrNotSupported)
	require.NoError(t, l.Close())
}

func TestStartRejectsEmptyScreen(t *testing.T) {
	mgr, err := config.NewManager(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	b := windowtest.New()
	b.Screen = layout.Rect{}
	l, err := New(Options{Backend: b, Config: mgr, Sensors: fakeSensors{}})
	require.NoError(t, err)

	require.ErrorIs(t, l.Start(), ErrInvalidScreen)
	require.NoError(t, l.Close())
	require.Equal(t, 1, b.CloseCount)
}
