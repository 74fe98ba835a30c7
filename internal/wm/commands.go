package wm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vaultos/vaultwm/internal/ipc"
	"github.com/vaultos/vaultwm/internal/logger"
	"github.com/vaultos/vaultwm/internal/statusbar"
	"github.com/vaultos/vaultwm/internal/workspace"
)

// execute runs one decoded command and returns its reply
func (l *ControlLoop) execute(cmd ipc.Command) (reply string) {
	log := logger.WithComponent("wm")
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("command", cmd.String()).Msg("Recovered from panic in command")
			reply = ipc.Error(fmt.Errorf("internal error running %s", cmd.Name))
		}
		l.publish()
		l.redraw(false)
	}()

	msg := cmd.String()
	var err error
	switch cmd.Name {
	case ipc.CmdQuit:
		l.quit = true
	case ipc.CmdReload:
		err = l.reload()
	case ipc.CmdWorkspace:
		var ws int
		if ws, err = workspaceArg(cmd.Args); err == nil {
			err = l.set.Switch(ws)
		}
	case ipc.CmdMoveToWorkspace:
		var ws int
		if ws, err = workspaceArg(cmd.Args); err == nil {
			err = l.moveFocused(ws)
		}
	case ipc.CmdFocusNext:
		l.set.FocusNext()
	case ipc.CmdFocusPrev:
		l.set.FocusPrev()
	case ipc.CmdCloseWindow:
		err = l.closeFocused()
	case ipc.CmdToggleFloat:
		err = l.toggleFloat()
	case ipc.CmdToggleLayout:
		kind, lerr := l.cycleLayout()
		err, msg = lerr, "layout "+kind.String()
	case ipc.CmdGetStatus:
		msg = l.Snapshot().Summary()
	default:
		err = fmt.Errorf("%w: %q", ipc.ErrUnknownCommand, cmd.Name)
	}

	if err != nil {
		log.Warn().Err(err).Str("command", cmd.String()).Msg("Command failed")
		return ipc.Error(err)
	}
	log.Debug().Str("command", cmd.String()).Msg("Command executed")
	return ipc.OK(msg)
}

// workspaceArg parses a 1-based workspace number into an index
func workspaceArg(args string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n < 1 || n > workspace.Count {
		return 0, fmt.Errorf("%w: workspace %q (want 1..%d)", ErrBadArgument, args, workspace.Count)
	}
	return n - 1, nil
}

// reload re-reads the config and rules files. On failure the previous
// settings stay active. The status surface keeps the size it was
// created with.
func (l *ControlLoop) reload() error {
	log := logger.WithComponent("wm")

	if err := l.configs.Reload(); err != nil {
		l.alert("VaultWM reload failed", err)
		return err
	}
	table, err := l.configs.LoadRules()
	if err != nil {
		log.Warn().Err(err).Msg("Rules file unreadable, keeping previous rules")
		l.alert("VaultWM rules not reloaded", err)
		table = l.rules
	}

	prev := l.cfg
	l.cfg = l.configs.Get()
	l.rules = table

	l.set.SetDecoration(decoration(l.cfg))
	for i, name := range l.cfg.WorkspaceNames {
		if ws, err := l.set.Workspace(i); err == nil && name != "" {
			ws.Name = name
		}
	}
	l.sensors.SetIntervals(intervals(l.cfg))
	if l.cfg.ModKey != prev.ModKey {
		if err := l.grabInput(); err != nil {
			log.Warn().Err(err).Msg("Keeping previous key bindings")
			l.cfg.ModKey = prev.ModKey
		}
	}
	l.syncPlugins()
	if l.bar != nil {
		l.bar.SetColors(rgba(l.cfg.BorderColorFocused), statusbar.DefaultBackground)
	}

	l.arrange(l.set.Active())
	l.redraw(true)
	log.Info().Int("rules", l.rules.Len()).Msg("Configuration reloaded")
	return nil
}

// syncPlugins unloads plugins no longer configured and loads new ones
func (l *ControlLoop) syncPlugins() {
	log := logger.WithComponent("plugins")
	want := make(map[string]bool, len(l.cfg.Plugins))
	for _, name := range l.cfg.Plugins {
		want[name] = true
	}
	for _, name := range l.plugins.Loaded() {
		if !want[name] {
			if err := l.plugins.Unload(name); err != nil {
				log.Warn().Err(err).Str("name", name).Msg("Failed to unload plugin")
			}
		}
	}
	for _, name := range l.cfg.Plugins {
		if _, ok := l.plugins.Get(name); ok {
			continue
		}
		if err := l.plugins.Load(name); err != nil {
			log.Warn().Err(err).Str("name", name).Msg("Skipping plugin")
		}
	}
}
