package window

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xinerama"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xprop"

	"github.com/vaultos/vaultwm/internal/display"
	"github.com/vaultos/vaultwm/internal/layout"
	"github.com/vaultos/vaultwm/internal/logger"
	"github.com/vaultos/vaultwm/internal/output"
)

// WMName is advertised through _NET_SUPPORTING_WM_CHECK
const WMName = "VaultWM"

// lock modifiers that must not change what a binding means
var ignoredMods = []uint16{0, xproto.ModMaskLock, xproto.ModMask2, xproto.ModMaskLock | xproto.ModMask2}

// meaningful modifiers reported with input events
const reportedMods = ModShift | ModControl | Mod1 | Mod4

var ewmhSupported = []string{
	"_NET_SUPPORTED", "_NET_SUPPORTING_WM_CHECK", "_NET_WM_NAME",
	"_NET_NUMBER_OF_DESKTOPS", "_NET_CURRENT_DESKTOP", "_NET_DESKTOP_NAMES",
	"_NET_CLIENT_LIST", "_NET_ACTIVE_WINDOW",
}

// X11Backend implements the Backend interface using X11
type X11Backend struct {
	conn   *xgb.Conn
	xu     *xgbutil.XUtil
	screen *xproto.ScreenInfo
	root   xproto.Window

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	connected bool

	atomProtocols    xproto.Atom
	atomDeleteWindow xproto.Atom
	checkWin         xproto.Window
	hasRandr         bool
	hasXinerama      bool

	mu sync.Mutex
	// unmaps issued by us, so their UnmapNotify is not a withdrawal
	pendingUnmaps map[xproto.Window]int
	status        xproto.Window
	keys          []KeyBinding
}

// NewX11Backend opens the display named by $DISPLAY
func NewX11Backend() (*X11Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	xu, err := xgbutil.NewConnXgb(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to wrap X connection: %w", err)
	}

	screen := xproto.Setup(conn).DefaultScreen(conn)
	return &X11Backend{
		conn:          conn,
		xu:            xu,
		screen:        screen,
		root:          screen.Root,
		events:        make(chan Event, 64),
		done:          make(chan struct{}),
		pendingUnmaps: make(map[xproto.Window]int),
	}, nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

// Connect selects substructure redirection on the root window, which
// only one client may hold, and starts the event reader.
func (b *X11Backend) Connect() error {
	log := logger.WithComponent("x11-backend")

	err := xproto.ChangeWindowAttributesChecked(
		b.conn,
		b.root,
		xproto.CwEventMask,
		[]uint32{
			xproto.EventMaskSubstructureRedirect |
				xproto.EventMaskSubstructureNotify |
				xproto.EventMaskStructureNotify |
				xproto.EventMaskPropertyChange,
		},
	).Check()
	if err != nil {
		if _, ok := err.(xproto.AccessError); ok {
			return ErrAnotherWM
		}
		return fmt.Errorf("failed to select root events: %w", err)
	}

	if b.atomProtocols, err = xprop.Atm(b.xu, "WM_PROTOCOLS"); err != nil {
		return fmt.Errorf("failed to intern WM_PROTOCOLS: %w", err)
	}
	if b.atomDeleteWindow, err = xprop.Atm(b.xu, "WM_DELETE_WINDOW"); err != nil {
		return fmt.Errorf("failed to intern WM_DELETE_WINDOW: %w", err)
	}

	keybind.Initialize(b.xu)

	if err := randr.Init(b.conn); err == nil {
		b.hasRandr = true
		mask := uint16(randr.NotifyMaskScreenChange | randr.NotifyMaskCrtcChange | randr.NotifyMaskOutputChange)
		if err := randr.SelectInputChecked(b.conn, b.root, mask).Check(); err != nil {
			log.Warn().Err(err).Msg("Failed to select RandR events")
		}
	} else if err := xinerama.Init(b.conn); err == nil {
		b.hasXinerama = true
		log.Info().Msg("RandR unavailable, using Xinerama")
	} else {
		log.Warn().Msg("Neither RandR nor Xinerama available, using the whole screen")
	}

	if err := b.advertise(); err != nil {
		log.Warn().Err(err).Msg("Failed to advertise EWMH support")
	}

	b.connected = true
	go b.readEvents()

	log.Info().
		Int("width", int(b.screen.WidthInPixels)).
		Int("height", int(b.screen.HeightInPixels)).
		Bool("randr", b.hasRandr).
		Msg("Managing X display")
	return nil
}

// advertise creates the _NET_SUPPORTING_WM_CHECK window
func (b *X11Backend) advertise() error {
	win, err := xproto.NewWindowId(b.conn)
	if err != nil {
		return err
	}
	err = xproto.CreateWindowChecked(b.conn, b.screen.RootDepth, win, b.root,
		-1, -1, 1, 1, 0, xproto.WindowClassInputOutput, b.screen.RootVisual,
		xproto.CwOverrideRedirect, []uint32{1}).Check()
	if err != nil {
		return err
	}
	b.checkWin = win

	if err := ewmh.SupportingWmCheckSet(b.xu, b.root, win); err != nil {
		return err
	}
	if err := ewmh.SupportingWmCheckSet(b.xu, win, win); err != nil {
		return err
	}
	if err := ewmh.WmNameSet(b.xu, win, WMName); err != nil {
		return err
	}
	return ewmh.SupportedSet(b.xu, ewmhSupported)
}

// Close releases the display connection. Safe to call twice.
func (b *X11Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		if b.checkWin != 0 {
			err = xproto.DestroyWindowChecked(b.conn, b.checkWin).Check()
		}
		b.conn.Close()
		if !b.connected {
			close(b.events)
		}
		logger.WithComponent("x11-backend").Info().Msg("X connection closed")
	})
	return err
}

// Events streams display events until Close
func (b *X11Backend) Events() <-chan Event {
	return b.events
}

func (b *X11Backend) readEvents() {
	defer close(b.events)
	log := logger.WithComponent("x11-backend")

	for {
		ev, xerr := b.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			// connection closed
			return
		}
		if xerr != nil {
			log.Debug().Str("error", xerr.Error()).Msg("X error")
			continue
		}

		out, ok := b.translate(ev)
		if !ok {
			continue
		}
		select {
		case b.events <- out:
		case <-b.done:
			return
		}
	}
}

// translate maps a protocol event to a backend event. Events the
// window manager does not act on are dropped.
func (b *X11Backend) translate(ev xgb.Event) (Event, bool) {
	switch e := ev.(type) {
	case xproto.MapRequestEvent:
		return Event{Kind: WindowPresented, Window: Handle(e.Window)}, true

	case xproto.UnmapNotifyEvent:
		if e.Event != b.root || b.consumeUnmap(e.Window) {
			return Event{}, false
		}
		return Event{Kind: WindowWithdrawn, Window: Handle(e.Window)}, true

	case xproto.DestroyNotifyEvent:
		b.mu.Lock()
		delete(b.pendingUnmaps, e.Window)
		b.mu.Unlock()
		return Event{Kind: WindowWithdrawn, Window: Handle(e.Window)}, true

	case xproto.ConfigureRequestEvent:
		return Event{Kind: GeometryRequested, Window: Handle(e.Window), Request: GeometryRequest{
			Window:      Handle(e.Window),
			Mask:        e.ValueMask,
			X:           int(e.X),
			Y:           int(e.Y),
			Width:       int(e.Width),
			Height:      int(e.Height),
			BorderWidth: int(e.BorderWidth),
			Sibling:     Handle(e.Sibling),
			StackMode:   int(e.StackMode),
		}}, true

	case xproto.ConfigureNotifyEvent:
		if e.Window != b.root {
			return Event{}, false
		}
		return Event{Kind: ConfigurationChanged}, true

	case randr.ScreenChangeNotifyEvent:
		return Event{Kind: ConfigurationChanged}, true

	case xproto.ButtonPressEvent:
		return Event{Kind: ButtonDown, Window: Handle(e.Child), Button: int(e.Detail),
			Mods: Modifier(e.State) & reportedMods, X: int(e.RootX), Y: int(e.RootY)}, true

	case xproto.ButtonReleaseEvent:
		return Event{Kind: ButtonUp, Window: Handle(e.Child), Button: int(e.Detail),
			Mods: Modifier(e.State) & reportedMods, X: int(e.RootX), Y: int(e.RootY)}, true

	case xproto.KeyPressEvent:
		return Event{Kind: KeyDown, Window: Handle(e.Child), Key: b.keyName(e.Detail),
			Mods: Modifier(e.State) & reportedMods, X: int(e.RootX), Y: int(e.RootY)}, true

	case xproto.KeyReleaseEvent:
		return Event{Kind: KeyUp, Window: Handle(e.Child), Key: b.keyName(e.Detail),
			Mods: Modifier(e.State) & reportedMods, X: int(e.RootX), Y: int(e.RootY)}, true

	case xproto.MotionNotifyEvent:
		return Event{Kind: PointerMoved, Window: Handle(e.Child),
			Mods: Modifier(e.State) & reportedMods, X: int(e.RootX), Y: int(e.RootY)}, true

	case xproto.ExposeEvent:
		b.mu.Lock()
		isStatus := e.Window == b.status
		b.mu.Unlock()
		if !isStatus || e.Count != 0 {
			return Event{}, false
		}
		return Event{Kind: ExposeStatusSurface, Window: Handle(e.Window)}, true

	case xproto.MappingNotifyEvent:
		b.refreshKeymap()
	}
	return Event{}, false
}

// keyName resolves the unshifted keysym name, so MOD+Shift+1 reports "1"
func (b *X11Backend) keyName(code xproto.Keycode) string {
	return keybind.LookupString(b.xu, 0, code)
}

func (b *X11Backend) refreshKeymap() {
	keyMap, modMap := keybind.MapsGet(b.xu)
	keybind.KeyMapSet(b.xu, keyMap)
	keybind.ModMapSet(b.xu, modMap)

	b.mu.Lock()
	keys := slices.Clone(b.keys)
	b.mu.Unlock()
	if len(keys) > 0 {
		if err := b.GrabKeys(keys); err != nil {
			logger.WithComponent("x11-backend").Warn().Err(err).Msg("Failed to re-grab keys after mapping change")
		}
	}
}

func (b *X11Backend) consumeUnmap(w xproto.Window) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pendingUnmaps[w] > 0 {
		b.pendingUnmaps[w]--
		if b.pendingUnmaps[w] == 0 {
			delete(b.pendingUnmaps, w)
		}
		return true
	}
	return false
}

// ScreenSize returns the root window rectangle
func (b *X11Backend) ScreenSize() (layout.Rect, error) {
	r := layout.Rect{Width: int(b.screen.WidthInPixels), Height: int(b.screen.HeightInPixels)}
	if r.Empty() {
		return r, fmt.Errorf("invalid screen size %s", r)
	}
	return r, nil
}

// Enumerate lists connected outputs through RandR, falling back to
// Xinerama. It returns an empty list when neither is available.
func (b *X11Backend) Enumerate() ([]output.Output, error) {
	switch {
	case b.hasRandr:
		return b.enumerateRandr()
	case b.hasXinerama:
		return b.enumerateXinerama()
	}
	return nil, nil
}

func (b *X11Backend) enumerateRandr() ([]output.Output, error) {
	res, err := randr.GetScreenResourcesCurrent(b.conn, b.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}
	var primary randr.Output
	if p, err := randr.GetOutputPrimary(b.conn, b.root).Reply(); err == nil {
		primary = p.Output
	}

	var outs []output.Output
	for _, o := range res.Outputs {
		info, err := randr.GetOutputInfo(b.conn, o, res.ConfigTimestamp).Reply()
		if err != nil || info.Connection != randr.ConnectionConnected || info.Crtc == 0 {
			continue
		}
		crtc, err := randr.GetCrtcInfo(b.conn, info.Crtc, res.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		outs = append(outs, output.Output{
			Bounds: layout.Rect{
				X:      int(crtc.X),
				Y:      int(crtc.Y),
				Width:  int(crtc.Width),
				Height: int(crtc.Height),
			},
			Name:    string(info.Name),
			Primary: o == primary,
		})
	}
	return outs, nil
}

func (b *X11Backend) enumerateXinerama() ([]output.Output, error) {
	r, err := xinerama.QueryScreens(b.conn).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to query xinerama screens: %w", err)
	}
	outs := make([]output.Output, 0, len(r.ScreenInfo))
	for i, s := range r.ScreenInfo {
		outs = append(outs, output.Output{
			Bounds: layout.Rect{
				X:      int(s.XOrg),
				Y:      int(s.YOrg),
				Width:  int(s.Width),
				Height: int(s.Height),
			},
			Name:    fmt.Sprintf("xinerama-%d", i),
			Primary: i == 0,
		})
	}
	return outs, nil
}

// ExistingWindows lists viewable, non-override-redirect children of root
func (b *X11Backend) ExistingWindows() ([]Handle, error) {
	tree, err := xproto.QueryTree(b.conn, b.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to query window tree: %w", err)
	}
	var handles []Handle
	for _, c := range tree.Children {
		if c == b.checkWin || c == b.status {
			continue
		}
		attrs, err := xproto.GetWindowAttributes(b.conn, c).Reply()
		if err != nil {
			continue
		}
		if attrs.OverrideRedirect || attrs.MapState != xproto.MapStateViewable {
			continue
		}
		handles = append(handles, Handle(c))
	}
	return handles, nil
}

func (b *X11Backend) Map(h Handle) error {
	if err := xproto.MapWindowChecked(b.conn, xproto.Window(h)).Check(); err != nil {
		return fmt.Errorf("failed to map window 0x%x: %w", uint32(h), err)
	}
	return nil
}

func (b *X11Backend) Unmap(h Handle) error {
	w := xproto.Window(h)
	b.mu.Lock()
	b.pendingUnmaps[w]++
	b.mu.Unlock()

	if err := xproto.UnmapWindowChecked(b.conn, w).Check(); err != nil {
		b.consumeUnmap(w)
		return fmt.Errorf("failed to unmap window 0x%x: %w", uint32(h), err)
	}
	return nil
}

func (b *X11Backend) Destroy(h Handle) error {
	if err := xproto.DestroyWindowChecked(b.conn, xproto.Window(h)).Check(); err != nil {
		return fmt.Errorf("failed to destroy window 0x%x: %w", uint32(h), err)
	}
	return nil
}

func (b *X11Backend) MoveResize(h Handle, r layout.Rect) error {
	mask := uint16(xproto.ConfigWindowX | xproto.ConfigWindowY | xproto.ConfigWindowWidth | xproto.ConfigWindowHeight)
	values := []uint32{uint32(int32(r.X)), uint32(int32(r.Y)), uint32(max(r.Width, 1)), uint32(max(r.Height, 1))}
	if err := xproto.ConfigureWindowChecked(b.conn, xproto.Window(h), mask, values).Check(); err != nil {
		return fmt.Errorf("failed to move window 0x%x: %w", uint32(h), err)
	}
	return nil
}

// Configure applies a geometry request exactly as the client asked
func (b *X11Backend) Configure(req GeometryRequest) error {
	mask, values := uint16(0), []uint32(nil)
	if req.Mask&ConfigX != 0 {
		mask |= xproto.ConfigWindowX
		values = append(values, uint32(int32(req.X)))
	}
	if req.Mask&ConfigY != 0 {
		mask |= xproto.ConfigWindowY
		values = append(values, uint32(int32(req.Y)))
	}
	if req.Mask&ConfigWidth != 0 {
		mask |= xproto.ConfigWindowWidth
		values = append(values, uint32(req.Width))
	}
	if req.Mask&ConfigHeight != 0 {
		mask |= xproto.ConfigWindowHeight
		values = append(values, uint32(req.Height))
	}
	if req.Mask&ConfigBorderWidth != 0 {
		mask |= xproto.ConfigWindowBorderWidth
		values = append(values, uint32(req.BorderWidth))
	}
	if req.Mask&ConfigSibling != 0 {
		mask |= xproto.ConfigWindowSibling
		values = append(values, uint32(req.Sibling))
	}
	if req.Mask&ConfigStackMode != 0 {
		mask |= xproto.ConfigWindowStackMode
		values = append(values, uint32(req.StackMode))
	}
	if err := xproto.ConfigureWindowChecked(b.conn, xproto.Window(req.Window), mask, values).Check(); err != nil {
		return fmt.Errorf("failed to configure window 0x%x: %w", uint32(req.Window), err)
	}
	return nil
}

func (b *X11Backend) SetBorder(h Handle, width int, color uint32) error {
	w := xproto.Window(h)
	err := xproto.ConfigureWindowChecked(b.conn, w, xproto.ConfigWindowBorderWidth, []uint32{uint32(width)}).Check()
	if err != nil {
		return fmt.Errorf("failed to set border width: %w", err)
	}
	if err := xproto.ChangeWindowAttributesChecked(b.conn, w, xproto.CwBorderPixel, []uint32{color}).Check(); err != nil {
		return fmt.Errorf("failed to set border color: %w", err)
	}
	return nil
}

func (b *X11Backend) Focus(h Handle) error {
	err := xproto.SetInputFocusChecked(b.conn, xproto.InputFocusPointerRoot, xproto.Window(h), xproto.TimeCurrentTime).Check()
	if err != nil {
		return fmt.Errorf("failed to focus window 0x%x: %w", uint32(h), err)
	}
	return nil
}

func (b *X11Backend) Raise(h Handle) error {
	err := xproto.ConfigureWindowChecked(b.conn, xproto.Window(h), xproto.ConfigWindowStackMode,
		[]uint32{xproto.StackModeAbove}).Check()
	if err != nil {
		return fmt.Errorf("failed to raise window 0x%x: %w", uint32(h), err)
	}
	return nil
}

// SendClose posts WM_DELETE_WINDOW; the client decides whether to exit
func (b *X11Backend) SendClose(h Handle) error {
	w := xproto.Window(h)
	if protos, err := icccm.WmProtocolsGet(b.xu, w); err == nil && !slices.Contains(protos, "WM_DELETE_WINDOW") {
		logger.WithComponent("x11-backend").Debug().
			Uint32("window_id", uint32(w)).
			Msg("Window does not advertise WM_DELETE_WINDOW")
	}

	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: w,
		Type:   b.atomProtocols,
		Data: xproto.ClientMessageDataUnionData32New([]uint32{
			uint32(b.atomDeleteWindow),
			uint32(xproto.TimeCurrentTime),
			0,
			0,
			0,
		}),
	}
	if err := xproto.SendEventChecked(b.conn, false, w, xproto.EventMaskNoEvent, string(ev.Bytes())).Check(); err != nil {
		return fmt.Errorf("failed to send close request: %w", err)
	}
	return nil
}

// Identify reads WM_CLASS
func (b *X11Backend) Identify(h Handle) (string, string, error) {
	wc, err := icccm.WmClassGet(b.xu, xproto.Window(h))
	if err != nil {
		return "", "", fmt.Errorf("failed to read WM_CLASS: %w", err)
	}
	return wc.Class, wc.Instance, nil
}

func (b *X11Backend) Geometry(h Handle) (layout.Rect, error) {
	g, err := xproto.GetGeometry(b.conn, xproto.Drawable(h)).Reply()
	if err != nil {
		return layout.Rect{}, fmt.Errorf("failed to get geometry: %w", err)
	}
	return layout.Rect{X: int(g.X), Y: int(g.Y), Width: int(g.Width), Height: int(g.Height)}, nil
}

func (b *X11Backend) QueryPointer() (int, int, error) {
	p, err := xproto.QueryPointer(b.conn, b.root).Reply()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query pointer: %w", err)
	}
	return int(p.RootX), int(p.RootY), nil
}

// GrabPointer routes all pointer motion and release to the manager
func (b *X11Backend) GrabPointer() error {
	reply, err := xproto.GrabPointer(b.conn, false, b.root,
		xproto.EventMaskPointerMotion|xproto.EventMaskButtonRelease,
		xproto.GrabModeAsync, xproto.GrabModeAsync,
		xproto.WindowNone, xproto.CursorNone, xproto.TimeCurrentTime).Reply()
	if err != nil {
		return fmt.Errorf("failed to grab pointer: %w", err)
	}
	if reply.Status != xproto.GrabStatusSuccess {
		return fmt.Errorf("failed to grab pointer: status %d", reply.Status)
	}
	return nil
}

func (b *X11Backend) UngrabPointer() error {
	return xproto.UngrabPointerChecked(b.conn, xproto.TimeCurrentTime).Check()
}

// GrabKeys replaces all root key grabs with keys
func (b *X11Backend) GrabKeys(keys []KeyBinding) error {
	xproto.UngrabKey(b.conn, xproto.GrabAny, b.root, xproto.ModMaskAny)

	var errs []error
	for _, k := range keys {
		codes := keybind.StrToKeycodes(b.xu, k.Key)
		if len(codes) == 0 {
			errs = append(errs, fmt.Errorf("no keycode for %q", k.Key))
			continue
		}
		for _, code := range codes {
			for _, extra := range ignoredMods {
				if err := keybind.GrabChecked(b.xu, b.root, uint16(k.Mods)|extra, code); err != nil {
					errs = append(errs, fmt.Errorf("failed to grab %q: %w", k.Key, err))
				}
			}
		}
	}

	b.mu.Lock()
	b.keys = slices.Clone(keys)
	b.mu.Unlock()
	return errors.Join(errs...)
}

func (b *X11Backend) GrabButtons(buttons []ButtonBinding) error {
	xproto.UngrabButton(b.conn, xproto.ButtonIndexAny, b.root, xproto.ModMaskAny)

	var errs []error
	for _, bb := range buttons {
		for _, extra := range ignoredMods {
			err := xproto.GrabButtonChecked(b.conn, false, b.root,
				xproto.EventMaskButtonPress|xproto.EventMaskButtonRelease|xproto.EventMaskPointerMotion,
				xproto.GrabModeAsync, xproto.GrabModeAsync, xproto.WindowNone, xproto.CursorNone,
				byte(bb.Button), uint16(bb.Mods)|extra).Check()
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to grab button %d: %w", bb.Button, err))
			}
		}
	}
	return errors.Join(errs...)
}

type x11Status struct {
	*display.Surface
}

func (s x11Status) Handle() Handle {
	return Handle(s.ID())
}

func (b *X11Backend) CreateStatusSurface(r layout.Rect) (StatusSurface, error) {
	s, err := display.NewSurface(b.conn, b.screen, r, "vaultwm", WMName)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.status = xproto.Window(s.ID())
	b.mu.Unlock()
	return x11Status{s}, nil
}

// SetDesktopHints publishes the EWMH desktop properties on root
func (b *X11Backend) SetDesktopHints(h DesktopHints) error {
	clients := make([]xproto.Window, len(h.Clients))
	for i, c := range h.Clients {
		clients[i] = xproto.Window(c)
	}
	return errors.Join(
		ewmh.NumberOfDesktopsSet(b.xu, uint(len(h.Names))),
		ewmh.CurrentDesktopSet(b.xu, uint(h.Current)),
		ewmh.DesktopNamesSet(b.xu, h.Names),
		ewmh.ClientListSet(b.xu, clients),
		ewmh.ActiveWindowSet(b.xu, xproto.Window(h.Active)),
	)
}

var _ Backend = (*X11Backend)(nil)
