// Package display draws rendered images into an X11 window.
package display

import (
	"errors"
	"fmt"
	"image"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/vaultos/vaultwm/internal/layout"
	"github.com/vaultos/vaultwm/internal/logger"
)

// maxRequestBytes keeps each PutImage under the core protocol request
// limit (65535 four-byte units) with room for the header.
const maxRequestBytes = 65535*4 - 64

// ErrDestroyed is returned when drawing into a destroyed surface
var ErrDestroyed = errors.New("surface destroyed")

// Format describes how the server stores pixels at the root depth
type Format struct {
	Depth        uint8
	BitsPerPixel uint8
	ScanlinePad  uint8
}

// Stride returns the padded byte length of one scanline
func (f Format) Stride(width int) int {
	unpadded := width * int(f.BitsPerPixel) / 8
	padBytes := int(f.ScanlinePad) / 8
	if padBytes == 0 {
		return unpadded
	}
	return ((unpadded + padBytes - 1) / padBytes) * padBytes
}

// Encode converts img rows [y0,y1) to ZPixmap bytes in BGRx/BGR order
func Encode(img *image.RGBA, f Format, y0, y1 int) ([]byte, error) {
	width := img.Bounds().Dx()
	bytesPerPixel := int(f.BitsPerPixel) / 8
	if bytesPerPixel != 3 && bytesPerPixel != 4 {
		return nil, fmt.Errorf("unsupported bytes per pixel: %d", bytesPerPixel)
	}
	stride := f.Stride(width)
	data := make([]byte, stride*(y1-y0))

	for y := y0; y < y1; y++ {
		src := img.Pix[(y-img.Bounds().Min.Y)*img.Stride:]
		dst := data[(y-y0)*stride:]
		for x := 0; x < width; x++ {
			s := src[x*4:]
			d := dst[x*bytesPerPixel:]
			d[0], d[1], d[2] = s[2], s[1], s[0]
			if bytesPerPixel == 4 && f.Depth == 32 {
				d[3] = s[3]
			}
		}
	}
	return data, nil
}

// Surface is an override-redirect window the window manager paints into
type Surface struct {
	conn      *xgb.Conn
	screen    *xproto.ScreenInfo
	win       xproto.Window
	gc        xproto.Gcontext
	bounds    layout.Rect
	format    Format
	destroyed bool
}

// NewSurface creates and maps a surface at r on conn's default screen
func NewSurface(conn *xgb.Conn, screen *xproto.ScreenInfo, r layout.Rect, instance, class string) (*Surface, error) {
	if r.Empty() {
		return nil, fmt.Errorf("invalid surface geometry %s", r)
	}

	s := &Surface{conn: conn, screen: screen, bounds: r}
	if err := s.findFormat(); err != nil {
		return nil, err
	}

	win, err := xproto.NewWindowId(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create window ID: %w", err)
	}

	mask := uint32(xproto.CwBackPixel | xproto.CwOverrideRedirect | xproto.CwEventMask)
	values := []uint32{
		screen.BlackPixel,
		1, // override redirect: never managed as a client
		xproto.EventMaskExposure,
	}
	err = xproto.CreateWindowChecked(
		conn,
		screen.RootDepth,
		win,
		screen.Root,
		int16(r.X), int16(r.Y),
		uint16(r.Width), uint16(r.Height),
		0,
		xproto.WindowClassInputOutput,
		screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	s.win = win

	log := logger.WithComponent("statusbar")
	if err := s.setClass(instance, class); err != nil {
		log.Warn().Err(err).Msg("Failed to set window class")
	}

	gc, err := xproto.NewGcontextId(conn)
	if err != nil {
		s.Destroy()
		return nil, fmt.Errorf("failed to create graphics context ID: %w", err)
	}
	if err := xproto.CreateGCChecked(conn, gc, xproto.Drawable(win), 0, nil).Check(); err != nil {
		s.Destroy()
		return nil, fmt.Errorf("failed to create GC: %w", err)
	}
	s.gc = gc

	if err := xproto.MapWindowChecked(conn, win).Check(); err != nil {
		s.Destroy()
		return nil, fmt.Errorf("failed to map window: %w", err)
	}

	log.Info().
		Str("geometry", r.String()).
		Uint32("window_id", uint32(win)).
		Msg("Status surface created")
	return s, nil
}

func (s *Surface) findFormat() error {
	depth := s.screen.RootDepth
	for _, f := range xproto.Setup(s.conn).PixmapFormats {
		if f.Depth == depth {
			s.format = Format{Depth: depth, BitsPerPixel: f.BitsPerPixel, ScanlinePad: f.ScanlinePad}
			return nil
		}
	}
	return fmt.Errorf("no pixmap format for depth %d", depth)
}

// ID returns the surface's window ID
func (s *Surface) ID() uint32 {
	return uint32(s.win)
}

// Draw uploads img, which must match the surface size, in row bands
// small enough for a single request each.
func (s *Surface) Draw(img *image.RGBA) error {
	if s.destroyed {
		return ErrDestroyed
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w != s.bounds.Width || h != s.bounds.Height {
		return fmt.Errorf("image size mismatch: got %dx%d, expected %dx%d",
			w, h, s.bounds.Width, s.bounds.Height)
	}

	rows := maxRequestBytes / s.format.Stride(w)
	if rows < 1 {
		return fmt.Errorf("surface too wide: %d", w)
	}
	for y0 := 0; y0 < h; y0 += rows {
		y1 := min(y0+rows, h)
		data, err := Encode(img, s.format, y0, y1)
		if err != nil {
			return err
		}
		err = xproto.PutImageChecked(
			s.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(s.win),
			s.gc,
			uint16(w), uint16(y1-y0),
			0, int16(y0),
			0,
			s.format.Depth,
			data,
		).Check()
		if err != nil {
			return fmt.Errorf("failed to put image: %w", err)
		}
	}
	return nil
}

// Destroy frees the GC and window. Safe to call more than once.
func (s *Surface) Destroy() error {
	if s.destroyed {
		return nil
	}
	s.destroyed = true

	var errs []error
	if s.gc != 0 {
		if err := xproto.FreeGCChecked(s.conn, s.gc).Check(); err != nil {
			errs = append(errs, fmt.Errorf("failed to free GC: %w", err))
		}
	}
	if s.win != 0 {
		if err := xproto.DestroyWindowChecked(s.conn, s.win).Check(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy window: %w", err))
		}
	}
	logger.WithComponent("statusbar").Info().Msg("Status surface destroyed")
	return errors.Join(errs...)
}

// setClass sets WM_CLASS (instance\0class\0) and _NET_WM_NAME
func (s *Surface) setClass(instance, class string) error {
	classStr := instance + "\x00" + class + "\x00"
	if err := xproto.ChangePropertyChecked(
		s.conn,
		xproto.PropModeReplace,
		s.win,
		xproto.AtomWmClass,
		xproto.AtomString,
		8,
		uint32(len(classStr)),
		[]byte(classStr),
	).Check(); err != nil {
		return err
	}

	nameAtom, err := s.atom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := s.atom("UTF8_STRING")
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(
		s.conn,
		xproto.PropModeReplace,
		s.win,
		nameAtom,
		utf8Atom,
		8,
		uint32(len(class)),
		[]byte(class),
	).Check()
}

func (s *Surface) atom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(s.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}
