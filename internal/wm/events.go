package wm

import (
	"github.com/vaultos/vaultwm/internal/layout"
	"github.com/vaultos/vaultwm/internal/logger"
	"github.com/vaultos/vaultwm/internal/rules"
	"github.com/vaultos/vaultwm/internal/window"
	"github.com/vaultos/vaultwm/internal/workspace"
)

// defaultFloatSize is used when a floating window reports no size
var defaultFloatSize = layout.Rect{Width: 640, Height: 480}

// dispatch handles one display event to completion. A panic is contained
// to the event that caused it.
func (l *ControlLoop) dispatch(ev window.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("wm").Error().
				Interface("panic", r).
				Str("event", ev.Kind.String()).
				Uint32("window", uint32(ev.Window)).
				Msg("Recovered from panic in event handler")
		}
		l.publish()
		l.redraw(false)
	}()
	l.handle(ev)
}

func (l *ControlLoop) handle(ev window.Event) {
	switch ev.Kind {
	case window.WindowPresented:
		l.manage(ev.Window)
	case window.WindowWithdrawn:
		l.withdraw(ev.Window)
	case window.GeometryRequested:
		l.configureRequest(ev.Request)
	case window.ButtonDown:
		l.buttonDown(ev)
	case window.ButtonUp:
		if l.mode != ModeNormal && l.drag.key == "" {
			l.endDrag()
		}
	case window.KeyDown:
		if act, ok := l.bindings[window.KeyBinding{Mods: ev.Mods, Key: ev.Key}]; ok {
			act(ev)
		}
	case window.KeyUp:
		if l.mode != ModeNormal && l.drag.key != "" && ev.Key == l.drag.key {
			l.endDrag()
		}
	case window.PointerMoved:
		l.motion(ev.X, ev.Y)
	case window.ExposeStatusSurface:
		l.redraw(true)
	case window.ConfigurationChanged:
		l.outputsChanged()
	}
}

// manage takes over a newly presented window: identify it, apply the
// best matching rule and hand it to its workspace
func (l *ControlLoop) manage(h window.Handle) {
	log := logger.WithComponent("wm")
	if h == 0 || (l.status != nil && h == l.status.Handle()) {
		return
	}
	if c, ok := l.set.Client(h); ok {
		// a managed window asking to be shown again
		switch {
		case c.Workspace != l.set.Active():
			l.set.MarkUrgent(h)
		case !c.Floating && l.set.Current().Layout == layout.Monocle:
			// monocle decides which tiled client is shown
			l.arrange(l.set.Active())
		default:
			l.set.Show(c)
		}
		return
	}

	class, instance, err := l.backend.Identify(h)
	if err != nil {
		log.Debug().Err(err).Uint32("window", uint32(h)).Msg("Failed to identify window")
	}
	geom, err := l.backend.Geometry(h)
	if err != nil || geom.Empty() {
		geom = defaultFloatSize
	}

	c := &workspace.Client{Handle: h, Geometry: geom, Class: class, Instance: instance}
	target, placed := l.set.Active(), false
	if r, ok := l.rules.BestMatch(class, instance); ok {
		target, placed = l.applyRule(c, r, target)
	}
	if c.Floating {
		if !placed {
			c.Geometry = centerOn(c.Geometry, l.pointerOutput())
		}
		if err := l.backend.MoveResize(h, c.Geometry); err != nil {
			log.Debug().Err(err).Uint32("window", uint32(h)).Msg("Failed to place floating window")
		}
	}

	if err := l.set.Manage(c, target); err != nil {
		log.Warn().Err(err).Uint32("window", uint32(h)).Msg("Failed to manage window")
		return
	}
	log.Info().
		Uint32("window", uint32(h)).
		Str("class", class).
		Str("instance", instance).
		Int("workspace", target+1).
		Bool("floating", c.Floating).
		Msg("Managing window")
}

// applyRule applies r to a client that is about to be managed. It
// returns the target workspace and whether the rule fixed the position.
func (l *ControlLoop) applyRule(c *workspace.Client, r rules.Rule, target int) (int, bool) {
	log := logger.WithComponent("rules").With().
		Str("class", c.Class).
		Str("kind", string(r.Kind)).
		Str("value", r.Value).
		Logger()

	placed := false
	switch r.Kind {
	case rules.KindWorkspace:
		ws, err := r.Workspace(workspace.Count)
		if err != nil {
			log.Warn().Err(err).Msg("Ignoring rule")
			break
		}
		target = ws
	case rules.KindFloat:
		c.Floating = r.Floating()
	case rules.KindLayout:
		kind, err := r.Layout()
		if err != nil {
			log.Warn().Err(err).Msg("Ignoring rule")
			break
		}
		if err := l.set.SetLayout(target, kind); err != nil {
			log.Warn().Err(err).Msg("Ignoring rule")
		}
	case rules.KindSize:
		w, h, err := r.Size()
		if err != nil {
			log.Warn().Err(err).Msg("Ignoring rule")
			break
		}
		c.Geometry.Width, c.Geometry.Height = w, h
		c.Floating = true
	case rules.KindPosition:
		x, y, err := r.Position()
		if err != nil {
			log.Warn().Err(err).Msg("Ignoring rule")
			break
		}
		c.Geometry.X, c.Geometry.Y = x, y
		c.Floating, placed = true, true
	case rules.KindTag:
		bit, err := l.tags.Bit(r.Value)
		if err != nil {
			log.Warn().Err(err).Msg("Ignoring rule")
			break
		}
		c.Tags = c.Tags.With(bit)
	}
	log.Debug().Int("priority", r.Priority).Msg("Rule applied")
	return target, placed
}

func (l *ControlLoop) pointerOutput() layout.Rect {
	x, y, err := l.backend.QueryPointer()
	if err != nil {
		return l.outputs.Primary().Bounds
	}
	return l.outputs.AtPoint(x, y).Bounds
}

// centerOn centers r inside bounds, shrinking it to fit
func centerOn(r, bounds layout.Rect) layout.Rect {
	r.Width = min(r.Width, bounds.Width)
	r.Height = min(r.Height, bounds.Height)
	r.X = bounds.X + (bounds.Width-r.Width)/2
	r.Y = bounds.Y + (bounds.Height-r.Height)/2
	return r
}

func (l *ControlLoop) withdraw(h window.Handle) {
	if l.mode != ModeNormal && l.drag.window == h {
		l.endDrag()
	}
	if c, ok := l.set.Unmanage(h); ok {
		logger.WithComponent("wm").Info().
			Uint32("window", uint32(h)).
			Str("class", c.Class).
			Msg("Window withdrawn")
	}
}

// configureRequest honors a geometry request exactly as asked, managed
// or not. Floating clients remember the new geometry; tiled clients are
// put back in place by the next arrange.
func (l *ControlLoop) configureRequest(req window.GeometryRequest) {
	if err := l.backend.Configure(req); err != nil {
		logger.WithComponent("wm").Debug().Err(err).Uint32("window", uint32(req.Window)).Msg("Failed to configure window")
	}
	c, ok := l.set.Client(req.Window)
	if !ok || !c.Floating {
		return
	}
	if req.Mask&window.ConfigX != 0 {
		c.Geometry.X = req.X
	}
	if req.Mask&window.ConfigY != 0 {
		c.Geometry.Y = req.Y
	}
	if req.Mask&window.ConfigWidth != 0 {
		c.Geometry.Width = req.Width
	}
	if req.Mask&window.ConfigHeight != 0 {
		c.Geometry.Height = req.Height
	}
}

func (l *ControlLoop) buttonDown(ev window.Event) {
	if l.mode != ModeNormal || ev.Mods&l.modKey != l.modKey {
		return
	}
	switch ev.Button {
	case 1:
		l.beginDrag(ModeMoving, ev.Window, ev.X, ev.Y, "")
	case 3:
		l.beginDrag(ModeResizing, ev.Window, ev.X, ev.Y, "")
	}
}

// beginDrag enters move or resize mode on h, or on the focused client
// when h is not a visible managed window. The client is promoted to
// floating so layout stops placing it.
func (l *ControlLoop) beginDrag(mode Mode, h window.Handle, x, y int, key string) {
	log := logger.WithComponent("wm")

	c, ok := l.set.Client(h)
	if !ok || c.Workspace != l.set.Active() {
		if c, ok = l.set.Focused(); !ok {
			return
		}
	}
	if err := l.set.FocusHandle(c.Handle); err != nil {
		log.Debug().Err(err).Msg("Failed to focus drag target")
	}
	if !c.Floating {
		c.Floating = true
		l.arrange(l.set.Active())
	}
	if err := l.backend.Raise(c.Handle); err != nil {
		log.Debug().Err(err).Uint32("window", uint32(c.Handle)).Msg("Failed to raise window")
	}
	if err := l.backend.GrabPointer(); err != nil {
		log.Warn().Err(err).Msg("Failed to grab pointer")
	}

	l.mode = mode
	l.drag = drag{window: c.Handle, x: x, y: y, key: key}
	log.Debug().Str("mode", mode.String()).Uint32("window", uint32(c.Handle)).Msg("Drag started")
}

// motion applies the delta since the last recorded pointer position
func (l *ControlLoop) motion(x, y int) {
	if l.mode == ModeNormal {
		return
	}
	c, ok := l.set.Client(l.drag.window)
	if !ok {
		l.endDrag()
		return
	}

	dx, dy := x-l.drag.x, y-l.drag.y
	l.drag.x, l.drag.y = x, y
	switch l.mode {
	case ModeMoving:
		c.Geometry.X += dx
		c.Geometry.Y += dy
	case ModeResizing:
		c.Geometry.Width = max(MinSize, c.Geometry.Width+dx)
		c.Geometry.Height = max(MinSize, c.Geometry.Height+dy)
	}
	if err := l.backend.MoveResize(c.Handle, c.Geometry); err != nil {
		logger.WithComponent("wm").Debug().Err(err).Uint32("window", uint32(c.Handle)).Msg("Failed to move window")
	}
}

func (l *ControlLoop) endDrag() {
	if err := l.backend.UngrabPointer(); err != nil {
		logger.WithComponent("wm").Debug().Err(err).Msg("Failed to release pointer")
	}
	logger.WithComponent("wm").Debug().Str("mode", l.mode.String()).Msg("Drag finished")
	l.mode = ModeNormal
	l.drag = drag{}
}

// outputsChanged rebuilds the output set after a monitor change
func (l *ControlLoop) outputsChanged() {
	screen, err := l.backend.ScreenSize()
	if err != nil || screen.Empty() {
		logger.WithComponent("wm").Warn().Err(err).Msg("Ignoring configuration change with unusable screen size")
		return
	}
	l.outputs.Rebuild(l.backend, screen)
	l.rescueFloating()
	l.arrange(l.set.Active())
}

// rescueFloating re-centers floating clients whose output went away onto
// the primary output
func (l *ControlLoop) rescueFloating() {
	for i := range workspace.Count {
		for _, c := range l.set.Clients(i) {
			if !c.Floating {
				continue
			}
			out := l.outputs.ForRect(c.Geometry)
			if out.Bounds.Contains(c.Geometry.Center()) {
				continue
			}
			c.Geometry = centerOn(c.Geometry, out.Bounds)
			if err := l.backend.MoveResize(c.Handle, c.Geometry); err != nil {
				logger.WithComponent("wm").Debug().Err(err).Uint32("window", uint32(c.Handle)).Msg("Failed to move floating window")
			}
		}
	}
}
