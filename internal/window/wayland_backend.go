package window

import (
	"github.com/vaultos/vaultwm/internal/layout"
	"github.com/vaultos/vaultwm/internal/output"
)

// WaylandBackend is a placeholder for a compositor backend. Every
// operation reports ErrNotSupported so callers can detect the gap.
type WaylandBackend struct {
	events chan Event
}

// NewWaylandBackend creates the unimplemented Wayland backend
func NewWaylandBackend() *WaylandBackend {
	return &WaylandBackend{events: make(chan Event)}
}

// Name returns the backend name
func (b *WaylandBackend) Name() string { return "wayland" }

func (b *WaylandBackend) Connect() error { return ErrNotSupported }
func (b *WaylandBackend) Close() error { return nil }

// Events never delivers anything
func (b *WaylandBackend) Events() <-chan Event { return b.events }

func (b *WaylandBackend) ScreenSize() (layout.Rect, error) { return layout.Rect{}, ErrNotSupported }
func (b *WaylandBackend) Enumerate() ([]output.Output, error) { return nil, ErrNotSupported }
func (b *WaylandBackend) ExistingWindows() ([]Handle, error) { return nil, ErrNotSupported }

func (b *WaylandBackend) Map(Handle) error { return ErrNotSupported }
func (b *WaylandBackend) Unmap(Handle) error { return ErrNotSupported }
func (b *WaylandBackend) Destroy(Handle) error { return ErrNotSupported }
func (b *WaylandBackend) MoveResize(Handle, layout.Rect) error { return ErrNotSupported }
func (b *WaylandBackend) Configure(GeometryRequest) error { return ErrNotSupported }
func (b *WaylandBackend) SetBorder(Handle, int, uint32) error { return ErrNotSupported }
func (b *WaylandBackend) Focus(Handle) error { return ErrNotSupported }
func (b *WaylandBackend) Raise(Handle) error { return ErrNotSupported }
func (b *WaylandBackend) SendClose(Handle) error { return ErrNotSupported }
func (b *WaylandBackend) Identify(Handle) (string, string, error) { return "", "", ErrNotSupported }
func (b *WaylandBackend) Geometry(Handle) (layout.Rect, error) { return layout.Rect{}, ErrNotSupported }

func (b *WaylandBackend) QueryPointer() (int, int, error) { return 0, 0, ErrNotSupported }
func (b *WaylandBackend) GrabPointer() error { return ErrNotSupported }
func (b *WaylandBackend) UngrabPointer() error { return ErrNotSupported }
func (b *WaylandBackend) GrabKeys([]KeyBinding) error { return ErrNotSupported }
func (b *WaylandBackend) GrabButtons([]ButtonBinding) error { return ErrNotSupported }

func (b *WaylandBackend) CreateStatusSurface(layout.Rect) (StatusSurface, error) {
	return nil, ErrNotSupported
}

func (b *WaylandBackend) SetDesktopHints(DesktopHints) error { return ErrNotSupported }
