// Package windowtest provides an in-memory display backend for tests.
package windowtest

import (
	"fmt"
	"image"
	"sync"

	"github.com/vaultos/vaultwm/internal/layout"
	"github.com/vaultos/vaultwm/internal/output"
	"github.com/vaultos/vaultwm/internal/window"
)

// StatusHandle is the handle of the fake status surface
const StatusHandle window.Handle = 0xba5

// Identity is the class and instance a fake window reports
type Identity struct {
	Class    string
	Instance string
}

// Backend records every call and keeps the resulting display state
type Backend struct {
	mu sync.Mutex

	Screen   layout.Rect
	Outputs  []output.Output
	Pointer  [2]int
	Windows  map[window.Handle]Identity
	Existing []window.Handle

	Ops        []string
	Mapped     map[window.Handle]bool
	Geometries map[window.Handle]layout.Rect
	Borders    map[window.Handle]uint32
	Focused    window.Handle
	Closed     []window.Handle
	Destroyed  []window.Handle
	Configured []window.GeometryRequest
	Keys       []window.KeyBinding
	Buttons    []window.ButtonBinding
	Hints      []window.DesktopHints
	Status     *Surface
	Grabbed    bool
	CloseCount int

	// FailMap makes Map fail for the listed handles
	FailMap map[window.Handle]bool

	events chan window.Event
}

var _ window.Backend = (*Backend)(nil)

// New returns a fake backend with a single 1920x1080 screen
func New() *Backend {
	return &Backend{
		Screen:     layout.Rect{Width: 1920, Height: 1080},
		Windows:    make(map[window.Handle]Identity),
		Mapped:     make(map[window.Handle]bool),
		Geometries: make(map[window.Handle]layout.Rect),
		Borders:    make(map[window.Handle]uint32),
		FailMap:    make(map[window.Handle]bool),
		events:     make(chan window.Event, 64),
	}
}

// Send queues an event for the control loop
func (b *Backend) Send(ev window.Event) {
	b.events <- ev
}

func (b *Backend) record(format string, args ...any) {
	b.Ops = append(b.Ops, fmt.Sprintf(format, args...))
}

// Operations returns a copy of the recorded operations
func (b *Backend) Operations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.Ops...)
}

// ResetOps clears the operation log
func (b *Backend) ResetOps() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Ops = nil
}

// IsMapped reports whether h is currently mapped
func (b *Backend) IsMapped(h window.Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Mapped[h]
}

// GeometryOf returns the last geometry set for h
func (b *Backend) GeometryOf(h window.Handle) layout.Rect {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Geometries[h]
}

// FocusedWindow returns the last focused handle
func (b *Backend) FocusedWindow() window.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Focused
}

func (b *Backend) Name() string   { return "fake" }
func (b *Backend) Connect() error { return nil }

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CloseCount++
	b.record("close")
	return nil
}

func (b *Backend) Events() <-chan window.Event { return b.events }

func (b *Backend) ScreenSize() (layout.Rect, error) { return b.Screen, nil }

func (b *Backend) Enumerate() ([]output.Output, error) {
	return b.Outputs, nil
}

func (b *Backend) ExistingWindows() ([]window.Handle, error) {
	return b.Existing, nil
}

func (b *Backend) Map(h window.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailMap[h] {
		return fmt.Errorf("map 0x%x failed", uint32(h))
	}
	b.Mapped[h] = true
	b.record("map %d", h)
	return nil
}

func (b *Backend) Unmap(h window.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Mapped[h] = false
	b.record("unmap %d", h)
	return nil
}

func (b *Backend) Destroy(h window.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Destroyed = append(b.Destroyed, h)
	delete(b.Mapped, h)
	b.record("destroy %d", h)
	return nil
}

func (b *Backend) MoveResize(h window.Handle, r layout.Rect) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Geometries[h] = r
	b.record("move %d %s", h, r)
	return nil
}

func (b *Backend) Configure(req window.GeometryRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Configured = append(b.Configured, req)
	b.record("configure %d", req.Window)
	return nil
}

func (b *Backend) SetBorder(h window.Handle, width int, color uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Borders[h] = color
	return nil
}

func (b *Backend) Focus(h window.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Focused = h
	b.record("focus %d", h)
	return nil
}

func (b *Backend) Raise(h window.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("raise %d", h)
	return nil
}

func (b *Backend) SendClose(h window.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = append(b.Closed, h)
	b.record("close-request %d", h)
	return nil
}

func (b *Backend) Identify(h window.Handle) (string, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.Windows[h]
	if !ok {
		return "", "", fmt.Errorf("no such window 0x%x", uint32(h))
	}
	return id.Class, id.Instance, nil
}

func (b *Backend) Geometry(h window.Handle) (layout.Rect, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.Geometries[h]; ok {
		return r, nil
	}
	return layout.Rect{Width: 640, Height: 480}, nil
}

func (b *Backend) QueryPointer() (int, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Pointer[0], b.Pointer[1], nil
}

func (b *Backend) GrabPointer() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Grabbed = true
	return nil
}

func (b *Backend) UngrabPointer() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Grabbed = false
	return nil
}

func (b *Backend) GrabKeys(keys []window.KeyBinding) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Keys = append(b.Keys, keys...)
	return nil
}

func (b *Backend) GrabButtons(buttons []window.ButtonBinding) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Buttons = append(b.Buttons, buttons...)
	return nil
}

func (b *Backend) CreateStatusSurface(r layout.Rect) (window.StatusSurface, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Status = &Surface{handle: StatusHandle, Bounds: r}
	return b.Status, nil
}

func (b *Backend) SetDesktopHints(h window.DesktopHints) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Hints = append(b.Hints, h)
	return nil
}

// Surface is a fake status surface that keeps the last drawn frame
type Surface struct {
	mu        sync.Mutex
	handle    window.Handle
	Bounds    layout.Rect
	Frames    int
	Last      *image.RGBA
	Destroyed int
}

func (s *Surface) Handle() window.Handle { return s.handle }

func (s *Surface) Draw(img *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames++
	s.Last = img
	return nil
}

// FrameCount returns how many frames were drawn
func (s *Surface) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Frames
}

func (s *Surface) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Destroyed++
	return nil
}
