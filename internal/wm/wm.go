// Package wm is the window manager control loop. One goroutine owns every
// piece of state; display events, commands, reloads and the status tick
// are handled one at a time, each to completion.
package wm

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/vaultos/vaultwm/internal/config"
	"github.com/vaultos/vaultwm/internal/ipc"
	"github.com/vaultos/vaultwm/internal/launch"
	"github.com/vaultos/vaultwm/internal/layout"
	"github.com/vaultos/vaultwm/internal/logger"
	"github.com/vaultos/vaultwm/internal/notify"
	"github.com/vaultos/vaultwm/internal/output"
	"github.com/vaultos/vaultwm/internal/plugin"
	"github.com/vaultos/vaultwm/internal/rules"
	"github.com/vaultos/vaultwm/internal/sensors"
	"github.com/vaultos/vaultwm/internal/snapshot"
	"github.com/vaultos/vaultwm/internal/statusbar"
	"github.com/vaultos/vaultwm/internal/window"
	"github.com/vaultos/vaultwm/internal/workspace"
)

// MinSize is the smallest width or height an interactive resize allows
const MinSize = 32

var (
	// ErrInvalidScreen is returned when the display reports a zero-area screen
	ErrInvalidScreen = errors.New("invalid screen size")
	// ErrNoFocus is returned by commands that need a focused client
	ErrNoFocus = errors.New("no focused window")
	// ErrBadArgument is returned for a missing or malformed command argument
	ErrBadArgument = errors.New("bad argument")
	// ErrStreamClosed is returned by Run when the display goes away
	ErrStreamClosed = errors.New("display event stream closed")
)

// Mode is the interaction state of the loop
type Mode int

const (
	ModeNormal Mode = iota
	ModeMoving
	ModeResizing
)

func (m Mode) String() string {
	switch m {
	case ModeMoving:
		return "moving"
	case ModeResizing:
		return "resizing"
	}
	return "normal"
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	*time.Ticker
}

func (t realTicker) C() <-chan time.Time {
	return t.Ticker.C
}

// Options wires the loop to its collaborators. Backend and Config are
// required; everything else has a default.
type Options struct {
	Backend window.Backend
	Config  *config.Manager
	Hub     *snapshot.Hub

	// Sensors defaults to the host's gopsutil readings
	Sensors  sensors.Source
	Plugins  *plugin.Registry
	Notifier notify.Notifier

	// Commands carries decoded command-channel requests; nil disables it
	Commands <-chan ipc.Request
	// Reloads is signalled by the config file watcher
	Reloads <-chan struct{}

	// Launch starts a validated command; defaults to launch.Start
	Launch func(command string) error
	Now    func() time.Time
}

// drag is an interactive move or resize in progress
type drag struct {
	window window.Handle
	x, y   int
	// key is set for keyboard-driven drags, which end on its release
	key string
}

// ControlLoop owns the workspace set, outputs, rules and the interaction
// mode
type ControlLoop struct {
	backend  window.Backend
	configs  *config.Manager
	cfg      *config.Config
	rules    *rules.Table
	set      *workspace.Set
	outputs  *output.Topology
	tags     *workspace.TagRegistry
	hub      *snapshot.Hub
	sensors  *sensors.Cache
	plugins  *plugin.Registry
	notifier notify.Notifier

	line      *statusbar.Line
	bar       *statusbar.Bar
	status    window.StatusSurface
	lastText  string
	lastHints window.DesktopHints

	mode     Mode
	drag     drag
	modKey   window.Modifier
	bindings map[window.KeyBinding]action

	commands <-chan ipc.Request
	reloads  <-chan struct{}
	launch   func(string) error
	now      func() time.Time

	tickerFactory func(time.Duration) ticker

	quit      bool
	closeOnce sync.Once
}

// New creates a control loop. Nothing touches the display until Start.
func New(opts Options) (*ControlLoop, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("control loop needs a display backend")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("control loop needs a config manager")
	}

	l := &ControlLoop{
		backend:  opts.Backend,
		configs:  opts.Config,
		cfg:      opts.Config.Get(),
		rules:    rules.NewTable(),
		tags:     workspace.NewTagRegistry(),
		hub:      opts.Hub,
		plugins:  opts.Plugins,
		notifier: opts.Notifier,
		line:     statusbar.DefaultLine(),
		commands: opts.Commands,
		reloads:  opts.Reloads,
		launch:   opts.Launch,
		now:      opts.Now,
		tickerFactory: func(d time.Duration) ticker {
			return realTicker{time.NewTicker(d)}
		},
	}
	if l.hub == nil {
		l.hub = snapshot.NewHub()
	}
	if l.plugins == nil {
		l.plugins = plugin.NewRegistry()
	}
	if l.notifier == nil {
		l.notifier = notify.Nop{}
	}
	if l.launch == nil {
		l.launch = launch.Start
	}
	if l.now == nil {
		l.now = time.Now
	}
	source := opts.Sensors
	if source == nil {
		source = sensors.NewSystem()
	}
	l.sensors = sensors.NewCache(source, intervals(l.cfg))
	return l, nil
}

func intervals(cfg *config.Config) sensors.Intervals {
	return sensors.Intervals{
		CPU: time.Duration(cfg.StatusBar.CPUInterval) * time.Second,
		Mem: time.Duration(cfg.StatusBar.MemInterval) * time.Second,
		Net: time.Duration(cfg.StatusBar.NetInterval) * time.Second,
	}
}

func decoration(cfg *config.Config) workspace.Decoration {
	return workspace.Decoration{
		Width:     cfg.BorderWidth,
		Focused:   uint32(cfg.BorderColorFocused),
		Unfocused: uint32(cfg.BorderColorUnfocused),
		Urgent:    uint32(cfg.BorderColorUrgent),
	}
}

// Start claims the display, builds the initial state and adopts windows
// that were mapped before the manager started. Any error is fatal; Close
// is still safe to call afterwards.
func (l *ControlLoop) Start() error {
	log := logger.WithComponent("wm")

	if err := l.backend.Connect(); err != nil {
		return fmt.Errorf("failed to connect to display: %w", err)
	}
	screen, err := l.backend.ScreenSize()
	if err != nil {
		return fmt.Errorf("failed to query screen size: %w", err)
	}
	if screen.Empty() {
		return fmt.Errorf("%w: %s", ErrInvalidScreen, screen)
	}

	l.outputs = output.NewTopology(screen)
	l.outputs.Rebuild(l.backend, screen)

	l.set = workspace.NewSet(l.backend, decoration(l.cfg), l.cfg.DefaultLayout, l.cfg.WorkspaceNames)
	l.set.OnArrange(l.arrange)

	table, err := l.configs.LoadRules()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load rules file, using config rules only")
	}
	l.rules = table

	if l.cfg.StatusBar.Enabled {
		if err := l.createStatus(); err != nil {
			return err
		}
	}

	if err := l.grabInput(); err != nil {
		return err
	}

	n := l.plugins.LoadAll(l.cfg.Plugins)
	log.Info().Int("plugins", n).Strs("available", l.plugins.Available()).Msg("Plugins loaded")

	existing, err := l.backend.ExistingWindows()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list existing windows")
	}
	for _, h := range existing {
		l.manage(h)
	}

	now := l.now()
	l.sensors.Refresh(now)
	l.plugins.Update(now)
	l.publish()
	l.redraw(true)

	log.Info().
		Str("backend", l.backend.Name()).
		Str("screen", screen.String()).
		Int("outputs", len(l.outputs.Outputs())).
		Int("rules", l.rules.Len()).
		Int("adopted", l.set.Len()).
		Msg("Window manager started")
	return nil
}

func (l *ControlLoop) createStatus() error {
	primary := l.outputs.Primary().Bounds
	r := layout.Rect{X: primary.X, Y: primary.Y, Width: primary.Width, Height: l.cfg.StatusBar.Height}
	if r.Empty() {
		return nil
	}
	status, err := l.backend.CreateStatusSurface(r)
	if err != nil {
		return fmt.Errorf("failed to create status surface: %w", err)
	}
	l.status = status
	l.bar = statusbar.NewBar(r.Width, r.Height, l.cfg.StatusBar.Font,
		rgba(l.cfg.BorderColorFocused), statusbar.DefaultBackground)
	return nil
}

func rgba(c config.Color) color.RGBA {
	return color.RGBA{R: uint8(c >> 16), G: uint8(c >> 8), B: uint8(c), A: 0xFF}
}

// Run handles events until quit is requested, ctx is done or the display
// goes away. The ticker bounds every wait so the status line keeps
// refreshing on an idle display.
func (l *ControlLoop) Run(ctx context.Context) error {
	every := time.Duration(l.cfg.StatusBar.UpdateInterval) * time.Second
	if every <= 0 {
		every = time.Second
	}
	tick := l.tickerFactory(every)
	defer tick.Stop()

	events := l.backend.Events()
	for !l.quit {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-tick.C():
			l.guard("tick", func() { l.tick(now) })
		case ev, ok := <-events:
			if !ok {
				return ErrStreamClosed
			}
			l.dispatch(ev)
		case req, ok := <-l.commands:
			if !ok {
				l.commands = nil
				continue
			}
			req.Reply <- l.execute(req.Command)
		case _, ok := <-l.reloads:
			if !ok {
				l.reloads = nil
				continue
			}
			l.guard("reload", func() {
				if err := l.reload(); err != nil {
					logger.WithComponent("wm").Warn().Err(err).Msg("Reload failed, keeping previous config")
				}
				l.publish()
			})
		}
	}
	logger.WithComponent("wm").Info().Msg("Quit requested")
	return nil
}

// tick refreshes the sensor cache and plugins, then redraws if the line
// changed
func (l *ControlLoop) tick(now time.Time) {
	l.sensors.Refresh(now)
	l.plugins.Update(now)
	l.publish()
	l.redraw(false)
}

// AttachCommands sets the command channel. It must be called before Run,
// typically once Start has claimed the display.
func (l *ControlLoop) AttachCommands(commands <-chan ipc.Request) {
	l.commands = commands
}

// guard runs fn, containing a panic to that one unit of work
func (l *ControlLoop) guard(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("wm").Error().
				Interface("panic", r).
				Str("work", what).
				Msg("Recovered from panic")
		}
	}()
	fn()
}

// Hub returns the snapshot hub the loop publishes to
func (l *ControlLoop) Hub() *snapshot.Hub {
	return l.hub
}

// Close unmaps and destroys every managed window, then releases the
// status surface, plugins, notifier and display connection. Every step
// is attempted; failures are joined and logged. Safe to call twice or
// after a failed Start.
func (l *ControlLoop) Close() error {
	var err error
	l.closeOnce.Do(func() {
		log := logger.WithComponent("wm")
		var errs []error

		if l.mode != ModeNormal {
			l.endDrag()
		}
		if l.set != nil {
			for _, h := range l.set.All() {
				if e := l.backend.Unmap(h); e != nil {
					errs = append(errs, fmt.Errorf("unmap 0x%x: %w", uint32(h), e))
				}
				if e := l.backend.Destroy(h); e != nil {
					errs = append(errs, fmt.Errorf("destroy 0x%x: %w", uint32(h), e))
				}
			}
		}
		if e := l.plugins.Close(); e != nil {
			errs = append(errs, fmt.Errorf("plugins: %w", e))
		}
		if l.status != nil {
			if e := l.status.Destroy(); e != nil {
				errs = append(errs, fmt.Errorf("status surface: %w", e))
			}
			l.status = nil
		}
		if e := l.notifier.Close(); e != nil {
			errs = append(errs, fmt.Errorf("notifier: %w", e))
		}
		if e := l.backend.Close(); e != nil {
			errs = append(errs, fmt.Errorf("display: %w", e))
		}
		l.hub.Close()

		err = errors.Join(errs...)
		if err != nil {
			log.Error().Err(err).Msg("Teardown finished with errors")
		} else {
			log.Info().Msg("Teardown complete")
		}
	})
	return err
}
