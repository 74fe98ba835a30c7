package wm

import (
	"errors"
	"slices"

	"github.com/vaultos/vaultwm/internal/logger"
	"github.com/vaultos/vaultwm/internal/snapshot"
	"github.com/vaultos/vaultwm/internal/window"
	"github.com/vaultos/vaultwm/internal/workspace"
)

// Snapshot copies the current state. Only the loop goroutine may call it;
// everyone else reads the hub.
func (l *ControlLoop) Snapshot() snapshot.Snapshot {
	s := snapshot.Snapshot{
		Time:     l.now(),
		Backend:  l.backend.Name(),
		Active:   l.set.Active(),
		Layout:   l.set.Current().Layout,
		Mode:     l.mode.String(),
		Outputs:  l.outputs.Outputs(),
		Sensors:  l.sensors.Reading(),
		Plugins:  l.plugins.Loaded(),
		Segments: l.plugins.Segments(),
	}
	if c, ok := l.set.Focused(); ok {
		s.Focused = c.Handle
	}

	for i := 0; i < workspace.Count; i++ {
		ws, err := l.set.Workspace(i)
		if err != nil {
			continue
		}
		focused, hasFocus := ws.FocusedHandle()
		w := snapshot.Workspace{
			Index:   i,
			Name:    ws.Name,
			Layout:  ws.Layout,
			Active:  i == s.Active,
			Clients: []snapshot.Client{},
		}
		if hasFocus {
			w.Focused = focused
		}
		for _, c := range l.set.Clients(i) {
			w.Clients = append(w.Clients, snapshot.Client{
				Handle:    c.Handle,
				Class:     c.Class,
				Instance:  c.Instance,
				Geometry:  c.Geometry,
				Floating:  c.Floating,
				Mapped:    c.Mapped,
				Urgent:    c.Urgent,
				Focused:   hasFocus && c.Handle == focused,
				Tags:      l.tags.Names(c.Tags),
				Workspace: i,
			})
		}
		s.Workspaces = append(s.Workspaces, w)
	}
	return s
}

// publish hands a fresh snapshot to the hub and updates the desktop hints
func (l *ControlLoop) publish() {
	if l.set == nil {
		return
	}
	snap := l.Snapshot()
	l.hub.Publish(snap)

	hints := window.DesktopHints{
		Current: snap.Active,
		Clients: l.set.All(),
		Active:  snap.Focused,
	}
	for _, ws := range snap.Workspaces {
		hints.Names = append(hints.Names, ws.Name)
	}
	if hintsEqual(hints, l.lastHints) {
		return
	}
	l.lastHints = hints
	if err := l.backend.SetDesktopHints(hints); err != nil && !errors.Is(err, window.ErrNotSupported) {
		logger.WithComponent("wm").Debug().Err(err).Msg("Failed to update desktop hints")
	}
}

func hintsEqual(a, b window.DesktopHints) bool {
	return a.Current == b.Current && a.Active == b.Active &&
		slices.Equal(a.Names, b.Names) && slices.Equal(a.Clients, b.Clients)
}

// redraw renders the status line from the last published snapshot. The
// sensors in it come from the cache, so nothing is sampled here. Without
// force, an unchanged line is not redrawn.
func (l *ControlLoop) redraw(force bool) {
	if l.status == nil || l.bar == nil {
		return
	}
	snap, ok := l.hub.Latest()
	if !ok {
		snap = l.Snapshot()
	}
	text := l.line.Compose(snap)
	if !force && text == l.lastText {
		return
	}
	l.lastText = text
	if err := l.status.Draw(l.bar.Render(text)); err != nil {
		logger.WithComponent("statusbar").Warn().Err(err).Msg("Failed to draw status line")
	}
}
