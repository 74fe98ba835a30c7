// Package workspace owns the managed clients and the fixed set of virtual
// workspaces they live on.
package workspace

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/vaultos/vaultwm/internal/layout"
	"github.com/vaultos/vaultwm/internal/logger"
	"github.com/vaultos/vaultwm/internal/window"
)

// Count is the number of workspaces
const Count = 9

var (
	// ErrIndexOutOfRange is returned for a workspace or client index that does not exist
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrAlreadyManaged is returned when managing a window twice
	ErrAlreadyManaged = errors.New("window already managed")
	// ErrNotManaged is returned for an unknown handle
	ErrNotManaged = errors.New("window not managed")
)

// Client is the record of one managed window
type Client struct {
	Handle    window.Handle
	Geometry  layout.Rect
	Floating  bool
	Mapped    bool
	Urgent    bool
	Class     string
	Instance  string
	Tags      TagSet
	Workspace int
}

// Surface is the part of the display the workspace set drives directly
type Surface interface {
	Map(h window.Handle) error
	Unmap(h window.Handle) error
	Focus(h window.Handle) error
	Raise(h window.Handle) error
	SetBorder(h window.Handle, width int, color uint32) error
}

// Decoration holds border settings
type Decoration struct {
	Width     int
	Focused   uint32
	Unfocused uint32
	Urgent    uint32
}

// Workspace is one virtual desktop
type Workspace struct {
	Name   string
	Layout layout.Kind

	order    []window.Handle
	focused  window.Handle
	hasFocus bool
}

// Len returns the number of clients on the workspace
func (w *Workspace) Len() int {
	return len(w.order)
}

// Handles returns the client handles in stacking order
func (w *Workspace) Handles() []window.Handle {
	return slices.Clone(w.order)
}

// FocusedIndex returns the position of the focused client, if any
func (w *Workspace) FocusedIndex() (int, bool) {
	if !w.hasFocus {
		return 0, false
	}
	i := slices.Index(w.order, w.focused)
	return i, i >= 0
}

// FocusedHandle returns the focused client handle, if any
func (w *Workspace) FocusedHandle() (window.Handle, bool) {
	return w.focused, w.hasFocus
}

func (w *Workspace) setFocus(i int) {
	if i < 0 || i >= len(w.order) {
		w.focused, w.hasFocus = 0, false
		return
	}
	w.focused, w.hasFocus = w.order[i], true
}

// remove drops h and repairs focus: a removed focused client hands focus
// to the previous index, clamped into range.
func (w *Workspace) remove(h window.Handle) bool {
	i := slices.Index(w.order, h)
	if i < 0 {
		return false
	}
	wasFocused := w.hasFocus && w.focused == h
	w.order = slices.Delete(w.order, i, i+1)
	if wasFocused {
		next := i - 1
		if next < 0 {
			next = 0
		}
		w.setFocus(next)
	}
	return true
}

// Set is the registry of every workspace and client
type Set struct {
	clients    map[window.Handle]*Client
	workspaces [Count]*Workspace
	active     int
	surface    Surface
	deco       Decoration
	arrange    func(ws int)
}

// NewSet creates the workspaces. Names may be shorter than Count; missing
// names default to the 1-based number.
func NewSet(surface Surface, deco Decoration, defaultLayout layout.Kind, names []string) *Set {
	s := &Set{
		clients: make(map[window.Handle]*Client),
		surface: surface,
		deco:    deco,
		arrange: func(int) {},
	}
	for i := range s.workspaces {
		name := strconv.Itoa(i + 1)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		s.workspaces[i] = &Workspace{Name: name, Layout: defaultLayout}
	}
	return s
}

// OnArrange sets the function that recomputes geometry for a workspace
func (s *Set) OnArrange(fn func(ws int)) {
	if fn == nil {
		fn = func(int) {}
	}
	s.arrange = fn
}

// SetDecoration replaces the border settings and redecorates every client
func (s *Set) SetDecoration(deco Decoration) {
	s.deco = deco
	for _, c := range s.clients {
		s.decorate(c)
	}
}

// Active returns the visible workspace index
func (s *Set) Active() int {
	return s.active
}

// Workspace returns workspace i
func (s *Set) Workspace(i int) (*Workspace, error) {
	if i < 0 || i >= Count {
		return nil, fmt.Errorf("%w: workspace %d", ErrIndexOutOfRange, i)
	}
	return s.workspaces[i], nil
}

// Current returns the visible workspace
func (s *Set) Current() *Workspace {
	return s.workspaces[s.active]
}

// Client looks up a managed client
func (s *Set) Client(h window.Handle) (*Client, bool) {
	c, ok := s.clients[h]
	return c, ok
}

// Len returns the number of managed clients
func (s *Set) Len() int {
	return len(s.clients)
}

// Focused returns the focused client of the visible workspace
func (s *Set) Focused() (*Client, bool) {
	h, ok := s.Current().FocusedHandle()
	if !ok {
		return nil, false
	}
	return s.Client(h)
}

// Clients returns the clients of workspace i in order
func (s *Set) Clients(i int) []*Client {
	if i < 0 || i >= Count {
		return nil
	}
	ws := s.workspaces[i]
	out := make([]*Client, 0, len(ws.order))
	for _, h := range ws.order {
		out = append(out, s.clients[h])
	}
	return out
}

// Tiled returns the non-floating clients of workspace i in order
func (s *Set) Tiled(i int) []*Client {
	var out []*Client
	for _, c := range s.Clients(i) {
		if !c.Floating {
			out = append(out, c)
		}
	}
	return out
}

// All returns every managed handle, workspace by workspace
func (s *Set) All() []window.Handle {
	var out []window.Handle
	for _, ws := range s.workspaces {
		out = append(out, ws.order...)
	}
	return out
}

// MappedClients returns every client currently shown
func (s *Set) MappedClients() []window.Handle {
	var out []window.Handle
	for _, h := range s.All() {
		if s.clients[h].Mapped {
			out = append(out, h)
		}
	}
	return out
}

// Manage adds c to workspace target. On the visible workspace the client
// is shown, re-laid out and focused.
func (s *Set) Manage(c *Client, target int) error {
	if target < 0 || target >= Count {
		return fmt.Errorf("%w: workspace %d", ErrIndexOutOfRange, target)
	}
	if _, ok := s.clients[c.Handle]; ok {
		return fmt.Errorf("%w: 0x%x", ErrAlreadyManaged, uint32(c.Handle))
	}

	ws := s.workspaces[target]
	c.Workspace = target
	s.clients[c.Handle] = c
	ws.order = append(ws.order, c.Handle)

	if target != s.active {
		c.Mapped = false
		if !ws.hasFocus {
			ws.setFocus(len(ws.order) - 1)
		}
		s.decorate(c)
		return nil
	}

	s.Show(c)
	ws.setFocus(len(ws.order) - 1)
	s.arrange(target)
	s.applyFocus()
	return nil
}

// Unmanage forgets the client with handle h. It returns the removed
// client, or false if h was not managed.
func (s *Set) Unmanage(h window.Handle) (*Client, bool) {
	c, ok := s.clients[h]
	if !ok {
		return nil, false
	}
	ws := s.workspaces[c.Workspace]
	ws.remove(h)
	delete(s.clients, h)

	if c.Workspace == s.active {
		s.arrange(s.active)
		s.applyFocus()
	}
	return c, true
}

// Switch makes workspace target visible. Every client of the old
// workspace is unmapped before any client of the new one is mapped.
func (s *Set) Switch(target int) error {
	if target < 0 || target >= Count {
		return fmt.Errorf("%w: workspace %d", ErrIndexOutOfRange, target)
	}
	if target == s.active {
		return nil
	}

	for _, c := range s.Clients(s.active) {
		s.Hide(c)
	}
	s.active = target

	ws := s.workspaces[target]
	for _, c := range s.Clients(target) {
		c.Urgent = false
		s.Show(c)
	}
	ws.setFocus(0)
	s.arrange(target)
	s.applyFocus()
	return nil
}

// FocusNext moves focus forward with wraparound
func (s *Set) FocusNext() {
	s.rotate(1)
}

// FocusPrev moves focus backward with wraparound
func (s *Set) FocusPrev() {
	s.rotate(-1)
}

func (s *Set) rotate(delta int) {
	ws := s.Current()
	n := len(ws.order)
	if n == 0 {
		return
	}
	i, ok := ws.FocusedIndex()
	if !ok {
		i = 0
	} else {
		i = ((i+delta)%n + n) % n
	}
	_ = s.Focus(i)
}

// Focus focuses client index on the visible workspace
func (s *Set) Focus(index int) error {
	ws := s.Current()
	if index < 0 || index >= len(ws.order) {
		return fmt.Errorf("%w: client %d of %d", ErrIndexOutOfRange, index, len(ws.order))
	}

	ws.setFocus(index)
	if ws.Layout == layout.Monocle {
		s.arrange(s.active)
	}
	s.applyFocus()
	return nil
}

// FocusHandle focuses h if it is on the visible workspace
func (s *Set) FocusHandle(h window.Handle) error {
	i := slices.Index(s.Current().order, h)
	if i < 0 {
		return fmt.Errorf("%w: 0x%x not on workspace %d", ErrNotManaged, uint32(h), s.active)
	}
	return s.Focus(i)
}

// MoveTo transfers a client to workspace target, appending it there
func (s *Set) MoveTo(h window.Handle, target int) error {
	if target < 0 || target >= Count {
		return fmt.Errorf("%w: workspace %d", ErrIndexOutOfRange, target)
	}
	c, ok := s.clients[h]
	if !ok {
		return fmt.Errorf("%w: 0x%x", ErrNotManaged, uint32(h))
	}
	source := c.Workspace
	if source == target {
		return nil
	}

	s.workspaces[source].remove(h)
	dst := s.workspaces[target]
	dst.order = append(dst.order, h)
	c.Workspace = target
	if !dst.hasFocus {
		dst.setFocus(len(dst.order) - 1)
	}

	switch s.active {
	case source:
		s.Hide(c)
		s.decorate(c)
		s.arrange(source)
		s.applyFocus()
	case target:
		s.Show(c)
		s.arrange(target)
		s.applyFocus()
	}
	return nil
}

// SetLayout changes the layout of workspace i
func (s *Set) SetLayout(i int, kind layout.Kind) error {
	if i < 0 || i >= Count {
		return fmt.Errorf("%w: workspace %d", ErrIndexOutOfRange, i)
	}
	ws := s.workspaces[i]
	if ws.Layout == kind {
		return nil
	}
	prev := ws.Layout
	ws.Layout = kind
	if i == s.active {
		if prev == layout.Monocle {
			// monocle left background clients unmapped
			for _, c := range s.Clients(i) {
				s.Show(c)
			}
		}
		s.arrange(i)
		s.applyFocus()
	}
	return nil
}

// Show maps a client that is not yet shown
func (s *Set) Show(c *Client) {
	if c.Mapped {
		return
	}
	c.Mapped = true
	if err := s.surface.Map(c.Handle); err != nil {
		logger.WithComponent("workspace").Warn().Err(err).Uint32("window", uint32(c.Handle)).Msg("Failed to map client")
	}
}

// Hide unmaps a shown client
func (s *Set) Hide(c *Client) {
	if !c.Mapped {
		return
	}
	c.Mapped = false
	if err := s.surface.Unmap(c.Handle); err != nil {
		logger.WithComponent("workspace").Warn().Err(err).Uint32("window", uint32(c.Handle)).Msg("Failed to unmap client")
	}
}

// MarkUrgent flags a client on a hidden workspace
func (s *Set) MarkUrgent(h window.Handle) {
	c, ok := s.clients[h]
	if !ok || c.Workspace == s.active {
		return
	}
	c.Urgent = true
	s.decorate(c)
}

func (s *Set) decorate(c *Client) {
	color := s.deco.Unfocused
	if h, ok := s.workspaces[c.Workspace].FocusedHandle(); ok && h == c.Handle && c.Workspace == s.active {
		color = s.deco.Focused
	}
	if c.Urgent {
		color = s.deco.Urgent
	}
	if err := s.surface.SetBorder(c.Handle, s.deco.Width, color); err != nil {
		logger.WithComponent("workspace").Debug().Err(err).Uint32("window", uint32(c.Handle)).Msg("Failed to set border")
	}
}

// applyFocus pushes the visible workspace's focus to the display. Every
// client is redecorated so the previous focus loses its border color.
func (s *Set) applyFocus() {
	for _, c := range s.Clients(s.active) {
		s.decorate(c)
	}
	c, ok := s.Focused()
	if !ok {
		return
	}
	log := logger.WithComponent("workspace")
	if err := s.surface.Focus(c.Handle); err != nil {
		log.Warn().Err(err).Uint32("window", uint32(c.Handle)).Msg("Failed to focus client")
	}
	if c.Floating || s.Current().Layout == layout.Monocle {
		if err := s.surface.Raise(c.Handle); err != nil {
			log.Debug().Err(err).Uint32("window", uint32(c.Handle)).Msg("Failed to raise client")
		}
	}
}
