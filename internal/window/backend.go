package window

import (
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/vaultos/vaultwm/internal/layout"
	"github.com/vaultos/vaultwm/internal/output"
)

// ErrNotSupported is returned by every operation a backend cannot perform
var ErrNotSupported = errors.New("not supported by this backend")

// ErrAnotherWM is returned when the display already has a window manager
var ErrAnotherWM = errors.New("another window manager is already running")

// Handle identifies a window owned by the display server
type Handle uint32

// Modifier is a bitmask of held modifier keys
type Modifier uint16

// Modifier values match the core X protocol masks
const (
	ModShift   Modifier = 1 << 0
	ModLock    Modifier = 1 << 1
	ModControl Modifier = 1 << 2
	Mod1       Modifier = 1 << 3
	Mod2       Modifier = 1 << 4
	Mod4       Modifier = 1 << 6
)

// ParseModifier resolves a modifier name such as "mod4" or "super"
func ParseModifier(name string) (Modifier, error) {
	switch name {
	case "mod1", "alt", "Mod1":
		return Mod1, nil
	case "mod4", "super", "Mod4":
		return Mod4, nil
	case "control", "ctrl":
		return ModControl, nil
	case "shift":
		return ModShift, nil
	}
	return 0, fmt.Errorf("unknown modifier %q", name)
}

// Geometry request mask bits, matching the core X protocol
const (
	ConfigX uint16 = 1 << iota
	ConfigY
	ConfigWidth
	ConfigHeight
	ConfigBorderWidth
	ConfigSibling
	ConfigStackMode
)

// GeometryRequest is a window asking to be placed or resized
type GeometryRequest struct {
	Window      Handle
	Mask        uint16
	X, Y        int
	Width       int
	Height      int
	BorderWidth int
	Sibling     Handle
	StackMode   int
}

// Rect returns the requested rectangle
func (r GeometryRequest) Rect() layout.Rect {
	return layout.Rect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

// EventKind tags a display event
type EventKind int

const (
	WindowPresented EventKind = iota
	WindowWithdrawn
	GeometryRequested
	ButtonDown
	ButtonUp
	KeyDown
	KeyUp
	PointerMoved
	ExposeStatusSurface
	ConfigurationChanged
)

var eventNames = [...]string{
	"window-presented", "window-withdrawn", "geometry-requested",
	"button-down", "button-up", "key-down", "key-up", "pointer-moved",
	"expose-status", "configuration-changed",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventNames) {
		return fmt.Sprintf("event(%d)", int(k))
	}
	return eventNames[k]
}

// Event is one notification from the display server. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind    EventKind
	Window  Handle
	Request GeometryRequest
	Button  int
	Key     string
	Mods    Modifier
	// X and Y are root pointer coordinates
	X, Y int
}

// KeyBinding is a key grabbed on the root window
type KeyBinding struct {
	Mods Modifier
	Key  string
}

// ButtonBinding is a pointer button grabbed on the root window
type ButtonBinding struct {
	Mods   Modifier
	Button int
}

// DesktopHints is the desktop state advertised to pagers and bars
type DesktopHints struct {
	Names   []string
	Current int
	Clients []Handle
	Active  Handle
}

// StatusSurface is the window the status line is drawn into
type StatusSurface interface {
	Handle() Handle
	Draw(img *image.RGBA) error
	Destroy() error
}

// Backend is the display server session: it owns windows, grabs input
// and delivers events.
type Backend interface {
	// Name returns the backend name (e.g., "x11", "wayland")
	Name() string

	// Connect claims window management on the display
	Connect() error

	// Close releases the display connection. Safe to call twice.
	Close() error

	// Events streams display events until Close
	Events() <-chan Event

	// ScreenSize returns the combined screen rectangle
	ScreenSize() (layout.Rect, error)

	// Enumerate lists physical outputs; it may return none
	Enumerate() ([]output.Output, error)

	// ExistingWindows lists windows mapped before the manager started
	ExistingWindows() ([]Handle, error)

	Map(h Handle) error
	Unmap(h Handle) error
	Destroy(h Handle) error
	MoveResize(h Handle, r layout.Rect) error
	Configure(req GeometryRequest) error
	SetBorder(h Handle, width int, color uint32) error
	Focus(h Handle) error
	Raise(h Handle) error

	// SendClose asks the client to close politely
	SendClose(h Handle) error

	// Identify returns the class and instance strings of a window
	Identify(h Handle) (class, instance string, err error)
	Geometry(h Handle) (layout.Rect, error)

	QueryPointer() (x, y int, err error)
	GrabPointer() error
	UngrabPointer() error
	GrabKeys(keys []KeyBinding) error
	GrabButtons(buttons []ButtonBinding) error

	CreateStatusSurface(r layout.Rect) (StatusSurface, error)
	SetDesktopHints(h DesktopHints) error
}

// Detect returns the backend matching the session. preference may be
// "x11", "wayland" or "" for automatic selection.
func Detect(preference string) (Backend, error) {
	switch preference {
	case "x11":
		return newX11()
	case "wayland":
		return NewWaylandBackend(), nil
	case "", "auto":
	default:
		return nil, fmt.Errorf("unknown backend %q", preference)
	}

	if os.Getenv("DISPLAY") != "" {
		return newX11()
	}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return NewWaylandBackend(), nil
	}
	return nil, fmt.Errorf("no display: neither DISPLAY nor WAYLAND_DISPLAY is set")
}

func newX11() (Backend, error) {
	b, err := NewX11Backend()
	if err != nil {
		return nil, err
	}
	return b, nil
}
