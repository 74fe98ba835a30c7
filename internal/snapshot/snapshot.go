// Package snapshot carries read-only copies of window manager state from
// the control loop to the status line, the command channel and the HTTP
// API.
package snapshot

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vaultos/vaultwm/internal/layout"
	"github.com/vaultos/vaultwm/internal/output"
	"github.com/vaultos/vaultwm/internal/sensors"
	"github.com/vaultos/vaultwm/internal/window"
)

// Client describes one managed window
type Client struct {
	Handle    window.Handle `json:"handle" yaml:"handle"`
	Class     string        `json:"class" yaml:"class"`
	Instance  string        `json:"instance" yaml:"instance"`
	Geometry  layout.Rect   `json:"geometry" yaml:"geometry"`
	Floating  bool          `json:"floating" yaml:"floating"`
	Mapped    bool          `json:"mapped" yaml:"mapped"`
	Urgent    bool          `json:"urgent,omitempty" yaml:"urgent,omitempty"`
	Focused   bool          `json:"focused,omitempty" yaml:"focused,omitempty"`
	Tags      []string      `json:"tags,omitempty" yaml:"tags,omitempty"`
	Workspace int           `json:"workspace" yaml:"workspace"`
}

// Workspace describes one workspace and its clients in stacking order
type Workspace struct {
	Index   int           `json:"index" yaml:"index"`
	Name    string        `json:"name" yaml:"name"`
	Layout  layout.Kind   `json:"layout" yaml:"layout"`
	Active  bool          `json:"active" yaml:"active"`
	Focused window.Handle `json:"focused,omitempty" yaml:"focused,omitempty"`
	Clients []Client      `json:"clients" yaml:"clients"`
}

// Snapshot is the whole observable state at one instant
type Snapshot struct {
	Time       time.Time       `json:"time" yaml:"time"`
	Backend    string          `json:"backend" yaml:"backend"`
	Active     int             `json:"active" yaml:"active"`
	Layout     layout.Kind     `json:"layout" yaml:"layout"`
	Mode       string          `json:"mode" yaml:"mode"`
	Focused    window.Handle   `json:"focused,omitempty" yaml:"focused,omitempty"`
	Workspaces []Workspace     `json:"workspaces" yaml:"workspaces"`
	Outputs    []output.Output `json:"outputs" yaml:"outputs"`
	Sensors    sensors.Reading `json:"sensors" yaml:"sensors"`
	Plugins    []string        `json:"plugins,omitempty" yaml:"plugins,omitempty"`
	Segments   []string        `json:"segments,omitempty" yaml:"segments,omitempty"`
}

// ClientCount returns the number of managed windows on all workspaces
func (s Snapshot) ClientCount() int {
	n := 0
	for _, ws := range s.Workspaces {
		n += len(ws.Clients)
	}
	return n
}

// Current returns the active workspace, if any
func (s Snapshot) Current() (Workspace, bool) {
	if s.Active < 0 || s.Active >= len(s.Workspaces) {
		return Workspace{}, false
	}
	return s.Workspaces[s.Active], true
}

// FocusedClient returns the focused client of the active workspace
func (s Snapshot) FocusedClient() (Client, bool) {
	ws, ok := s.Current()
	if !ok {
		return Client{}, false
	}
	for _, c := range ws.Clients {
		if c.Handle == s.Focused && c.Focused {
			return c, true
		}
	}
	return Client{}, false
}

// Summary is the one-line form returned by get_status
func (s Snapshot) Summary() string {
	name := ""
	if ws, ok := s.Current(); ok {
		name = ws.Name
	}
	var b strings.Builder
	fmt.Fprintf(&b, "workspace=%d(%s) layout=%s clients=%d mode=%s",
		s.Active+1, name, s.Layout, s.ClientCount(), s.Mode)
	if c, ok := s.FocusedClient(); ok {
		fmt.Fprintf(&b, " focused=0x%x class=%s", uint32(c.Handle), c.Class)
		if len(c.Tags) > 0 {
			fmt.Fprintf(&b, " tags=%s", strings.Join(c.Tags, ","))
		}
	}
	return b.String()
}

// Hub fans published snapshots out to subscribers. Slow subscribers miss
// intermediate snapshots; the latest one is always retrievable.
type Hub struct {
	mu        sync.RWMutex
	latest    Snapshot
	published bool
	listeners []chan Snapshot
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{}
}

// Publish stores s as the latest snapshot and notifies subscribers
func (h *Hub) Publish(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest = s
	h.published = true
	for _, ch := range h.listeners {
		select {
		case ch <- s:
		default:
			// drop the stale value so the newest one fits
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// Latest returns the most recent snapshot and whether one was published
func (h *Hub) Latest() (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.published
}

// Subscribe adds a listener for new snapshots
func (h *Hub) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, 1)
	h.mu.Lock()
	h.listeners = append(h.listeners, ch)
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel
func (h *Hub) Unsubscribe(ch chan Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, listener := range h.listeners {
		if listener == ch {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// Close closes every subscriber channel
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.listeners {
		close(ch)
	}
	h.listeners = nil
}
