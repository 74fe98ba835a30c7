package wm

import (
	"github.com/vaultos/vaultwm/internal/layout"
	"github.com/vaultos/vaultwm/internal/logger"
)

// usable is the area tiled windows share: the primary output minus the
// status bar
func (l *ControlLoop) usable() layout.Rect {
	r := l.outputs.Primary().Bounds
	if l.status != nil {
		h := min(l.cfg.StatusBar.Height, r.Height)
		r.Y += h
		r.Height -= h
	}
	return r
}

// frame shrinks a layout cell so the window plus its border fits in it
func (l *ControlLoop) frame(r layout.Rect) layout.Rect {
	b := l.cfg.BorderWidth
	r.Width = max(0, r.Width-2*b)
	r.Height = max(0, r.Height-2*b)
	return r
}

// arrange recomputes geometry for the tiled clients of workspace i. Only
// the visible workspace is laid out. Monocle keeps just the focused
// client mapped.
func (l *ControlLoop) arrange(i int) {
	if i != l.set.Active() {
		return
	}
	ws, err := l.set.Workspace(i)
	if err != nil {
		return
	}
	tiled := l.set.Tiled(i)
	if len(tiled) == 0 {
		return
	}
	rects := layout.Arrange(ws.Layout, len(tiled), l.usable(), l.cfg.GapSize)

	shown := tiled[0].Handle
	if h, ok := ws.FocusedHandle(); ok {
		for _, c := range tiled {
			if c.Handle == h {
				shown = h
				break
			}
		}
	}

	for n, c := range tiled {
		if ws.Layout == layout.Monocle {
			if c.Handle != shown {
				l.set.Hide(c)
				continue
			}
			l.set.Show(c)
		}
		c.Geometry = l.frame(rects[n])
		if err := l.backend.MoveResize(c.Handle, c.Geometry); err != nil {
			logger.WithComponent("wm").Debug().Err(err).Uint32("window", uint32(c.Handle)).Msg("Failed to place window")
		}
	}
}
