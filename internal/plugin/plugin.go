// Package plugin hosts status-line and window manager extensions behind
// an explicit capability interface.
package plugin

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/vaultos/vaultwm/internal/logger"
)

// MaxNameLength bounds plugin names
const MaxNameLength = 64

// Kind says what a plugin extends
type Kind int

const (
	KindStatusBar Kind = iota + 1
	KindWM
	KindTheme
	KindApp
)

func (k Kind) String() string {
	switch k {
	case KindStatusBar:
		return "statusbar"
	case KindWM:
		return "wm"
	case KindTheme:
		return "theme"
	case KindApp:
		return "app"
	}
	return "unknown"
}

var (
	ErrUnknownPlugin = errors.New("unknown plugin")
	ErrAlreadyLoaded = errors.New("plugin already loaded")
	ErrNotLoaded     = errors.New("plugin not loaded")
	ErrInvalidName   = errors.New("invalid plugin name")
	ErrPanicked      = errors.New("plugin panicked")
)

// Record is the host-side state of one loaded plugin
type Record struct {
	Name    string
	Version string
	Kind    Kind
	// Data is owned by the plugin
	Data any
}

// Plugin is the one required entry point
type Plugin interface {
	Init(rec *Record) error
}

// Cleaner is implemented by plugins that release resources on unload
type Cleaner interface {
	Cleanup(rec *Record)
}

// Renderer contributes a status line segment
type Renderer interface {
	Render(rec *Record) string
}

// Updater is ticked by the control loop
type Updater interface {
	Update(rec *Record, now time.Time)
}

// Factory builds a fresh plugin instance
type Factory func() Plugin

type loaded struct {
	plugin Plugin
	record *Record
}

// Registry owns plugin factories and loaded instances, keyed by name
type Registry struct {
	factories map[string]Factory
	loaded    map[string]*loaded
	order     []string
}

// NewRegistry returns a registry knowing the built-in plugins
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		loaded:    make(map[string]*loaded),
	}
	r.Register("clock", NewClock)
	r.Register("uptime", NewUptime)
	return r
}

// Register makes a factory available under name
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Available lists registered plugin names
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Load instantiates and initializes the named plugin. Init runs once; a
// failed init leaves nothing loaded.
func (r *Registry) Load(name string) error {
	if name == "" || len(name) >= MaxNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if _, ok := r.loaded[name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyLoaded, name)
	}
	f, ok := r.factories[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}

	p := f()
	rec := &Record{Name: name}
	var err error
	if perr := contain(name, func() { err = p.Init(rec) }); perr != nil {
		err = perr
	}
	if err != nil {
		return fmt.Errorf("failed to init plugin %s: %w", name, err)
	}
	rec.Name = name

	r.loaded[name] = &loaded{plugin: p, record: rec}
	r.order = append(r.order, name)
	logger.WithComponent("plugins").Info().
		Str("name", name).
		Str("version", rec.Version).
		Str("kind", rec.Kind.String()).
		Msg("Plugin loaded")
	return nil
}

// LoadAll loads every name, logging and skipping failures. It returns
// the number loaded.
func (r *Registry) LoadAll(names []string) int {
	n := 0
	for _, name := range names {
		if err := r.Load(name); err != nil {
			logger.WithComponent("plugins").Warn().Err(err).Str("name", name).Msg("Skipping plugin")
			continue
		}
		n++
	}
	return n
}

// Unload runs the plugin's cleanup and forgets it
func (r *Registry) Unload(name string) error {
	l, ok := r.loaded[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}
	var err error
	if c, ok := l.plugin.(Cleaner); ok {
		err = contain(name, func() { c.Cleanup(l.record) })
	}
	delete(r.loaded, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	logger.WithComponent("plugins").Info().Str("name", name).Msg("Plugin unloaded")
	return err
}

// contain runs one plugin callback, turning a panic into ErrPanicked
func contain(name string, fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %s: %v", ErrPanicked, name, p)
		}
	}()
	fn()
	return nil
}

// Get returns the record of a loaded plugin
func (r *Registry) Get(name string) (*Record, bool) {
	l, ok := r.loaded[name]
	if !ok {
		return nil, false
	}
	return l.record, true
}

// Loaded lists loaded plugin names in load order
func (r *Registry) Loaded() []string {
	return slices.Clone(r.order)
}

// Update ticks every Updater. A panicking plugin is logged and skipped.
func (r *Registry) Update(now time.Time) {
	for _, name := range r.order {
		l := r.loaded[name]
		if u, ok := l.plugin.(Updater); ok {
			if err := contain(name, func() { u.Update(l.record, now) }); err != nil {
				logger.WithComponent("plugins").Error().Err(err).Msg("Plugin update failed")
			}
		}
	}
}

// Segments collects non-empty Renderer output in load order
func (r *Registry) Segments() []string {
	var segs []string
	for _, name := range r.order {
		l := r.loaded[name]
		rd, ok := l.plugin.(Renderer)
		if !ok {
			continue
		}
		var seg string
		if err := contain(name, func() { seg = rd.Render(l.record) }); err != nil {
			logger.WithComponent("plugins").Error().Err(err).Msg("Plugin render failed")
			continue
		}
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	return segs
}

// Close unloads everything, most recently loaded first. Every plugin is
// unloaded even if an earlier cleanup failed.
func (r *Registry) Close() error {
	var errs []error
	for i := len(r.order) - 1; i >= 0; i-- {
		if err := r.Unload(r.order[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
