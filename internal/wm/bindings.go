package wm

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"github.com/vaultos/vaultwm/internal/layout"
	"github.com/vaultos/vaultwm/internal/logger"
	"github.com/vaultos/vaultwm/internal/window"
	"github.com/vaultos/vaultwm/internal/workspace"
)

type action func(ev window.Event)

// keyBindings returns the default bindings for the configured modifier
func (l *ControlLoop) keyBindings() map[window.KeyBinding]action {
	mod := l.modKey
	shift := mod | window.ModShift
	warn := func(what string, err error) {
		if err != nil {
			logger.WithComponent("wm").Warn().Err(err).Msg(what)
		}
	}

	b := map[window.KeyBinding]action{
		{Mods: mod, Key: "Return"}: func(window.Event) { _ = l.spawn("terminal", l.cfg.TerminalCommand()) },
		{Mods: mod, Key: "d"}:      func(window.Event) { _ = l.spawn("launcher", l.cfg.LauncherCommand()) },
		{Mods: mod, Key: "q"}:      func(window.Event) { warn("Close failed", l.closeFocused()) },
		{Mods: mod, Key: "t"}: func(window.Event) {
			_, err := l.cycleLayout()
			warn("Layout change failed", err)
		},
		{Mods: mod, Key: "f"}: func(window.Event) { warn("Toggle floating failed", l.toggleFloat()) },
		{Mods: mod, Key: "j"}: func(window.Event) { l.set.FocusNext() },
		{Mods: mod, Key: "k"}: func(window.Event) { l.set.FocusPrev() },
		{Mods: mod, Key: "m"}: func(ev window.Event) {
			if l.mode == ModeNormal {
				l.beginDrag(ModeMoving, 0, ev.X, ev.Y, ev.Key)
			}
		},
		{Mods: mod, Key: "r"}: func(ev window.Event) {
			if l.mode == ModeNormal {
				l.beginDrag(ModeResizing, 0, ev.X, ev.Y, ev.Key)
			}
		},
		{Mods: shift, Key: "e"}: func(window.Event) { l.quit = true },
	}
	for i := 1; i <= workspace.Count; i++ {
		key, ws := strconv.Itoa(i), i-1
		b[window.KeyBinding{Mods: mod, Key: key}] = func(window.Event) {
			warn("Workspace switch failed", l.set.Switch(ws))
		}
		b[window.KeyBinding{Mods: shift, Key: key}] = func(window.Event) {
			warn("Move to workspace failed", l.moveFocused(ws))
		}
	}
	return b
}

// grabInput installs the key and button grabs for the configured modifier
func (l *ControlLoop) grabInput() error {
	mod, err := window.ParseModifier(l.cfg.ModKey)
	if err != nil {
		return fmt.Errorf("invalid mod_key: %w", err)
	}
	l.modKey = mod
	l.bindings = l.keyBindings()

	keys := make([]window.KeyBinding, 0, len(l.bindings))
	for k := range l.bindings {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b window.KeyBinding) int {
		return cmp.Or(cmp.Compare(a.Key, b.Key), cmp.Compare(a.Mods, b.Mods))
	})

	log := logger.WithComponent("wm")
	if err := l.backend.GrabKeys(keys); err != nil {
		log.Warn().Err(err).Msg("Some key bindings could not be grabbed")
	}
	buttons := []window.ButtonBinding{{Mods: mod, Button: 1}, {Mods: mod, Button: 3}}
	if err := l.backend.GrabButtons(buttons); err != nil {
		log.Warn().Err(err).Msg("Some button bindings could not be grabbed")
	}
	log.Debug().Int("keys", len(keys)).Str("mod", l.cfg.ModKey).Msg("Input grabbed")
	return nil
}

func (l *ControlLoop) spawn(what, command string) error {
	if err := l.launch(command); err != nil {
		l.alert("Failed to launch "+what, err)
		return err
	}
	return nil
}

func (l *ControlLoop) alert(summary string, err error) {
	if nerr := l.notifier.Notify(summary, err.Error()); nerr != nil {
		logger.WithComponent("notify").Debug().Err(nerr).Msg("Notification not delivered")
	}
}

func (l *ControlLoop) closeFocused() error {
	c, ok := l.set.Focused()
	if !ok {
		return ErrNoFocus
	}
	return l.backend.SendClose(c.Handle)
}

func (l *ControlLoop) moveFocused(ws int) error {
	c, ok := l.set.Focused()
	if !ok {
		return ErrNoFocus
	}
	return l.set.MoveTo(c.Handle, ws)
}

func (l *ControlLoop) cycleLayout() (layout.Kind, error) {
	next := l.set.Current().Layout.Next()
	return next, l.set.SetLayout(l.set.Active(), next)
}

// toggleFloat flips the focused client between floating and tiled. A
// client that starts floating keeps the rect layout last gave it.
func (l *ControlLoop) toggleFloat() error {
	c, ok := l.set.Focused()
	if !ok {
		return ErrNoFocus
	}
	c.Floating = !c.Floating
	if c.Floating {
		if err := l.backend.MoveResize(c.Handle, c.Geometry); err != nil {
			return err
		}
		if err := l.backend.Raise(c.Handle); err != nil {
			return err
		}
	}
	l.arrange(l.set.Active())
	return nil
}
