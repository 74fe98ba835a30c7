// Package layout computes window geometry for the tiling policies.
// Every function here is pure: no state, no I/O.
package layout

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Phi is the golden ratio used by the Fibonacci policy.
const Phi = 1.618033988749

// ErrUnknownKind is returned when a layout name does not match any policy
var ErrUnknownKind = errors.New("unknown layout")

// Rect is a rectangle in screen-pixel coordinates
type Rect struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Empty reports whether the rect has zero area
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether the point lies inside the rect
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Center returns the center point of the rect
func (r Rect) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Inset shrinks the rect by n on every side, clamping the size at zero.
// The result never leaves r.
func (r Rect) Inset(n int) Rect {
	return Rect{X: r.X + n, Y: r.Y + n, Width: r.Width - 2*n, Height: r.Height - 2*n}.fit(r)
}

// Overlaps reports whether two rects share any area
func (r Rect) Overlaps(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.X+o.Width && o.X < r.X+r.Width &&
		r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

// Within reports whether r lies entirely inside o
func (r Rect) Within(o Rect) bool {
	return r.X >= o.X && r.Y >= o.Y &&
		r.X+r.Width <= o.X+o.Width && r.Y+r.Height <= o.Y+o.Height
}

func (r Rect) clamp() Rect {
	if r.Width < 0 {
		r.Width = 0
	}
	if r.Height < 0 {
		r.Height = 0
	}
	return r
}

// fit moves the origin into b and trims the size so r lies within b
func (r Rect) fit(b Rect) Rect {
	r = r.clamp()
	b = b.clamp()
	r.X = min(max(r.X, b.X), b.X+b.Width)
	r.Y = min(max(r.Y, b.Y), b.Y+b.Height)
	r.Width = min(r.Width, b.X+b.Width-r.X)
	r.Height = min(r.Height, b.Y+b.Height-r.Y)
	return r
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// Kind names a layout policy
type Kind int

const (
	Tiling Kind = iota
	Monocle
	Grid
	Fibonacci
	Dwindle
)

var kindNames = [...]string{"tiling", "monocle", "grid", "fibonacci", "dwindle"}

// Kinds lists every policy in cycling order
var Kinds = []Kind{Tiling, Monocle, Grid, Fibonacci, Dwindle}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("layout(%d)", int(k))
	}
	return kindNames[k]
}

// Next returns the policy that follows k when cycling
func (k Kind) Next() Kind {
	return Kind((int(k) + 1) % len(kindNames))
}

// ParseKind resolves a layout name, case-insensitively
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	// "tile" is accepted as shorthand in config files
	if name == "tile" {
		return Tiling, nil
	}
	return Tiling, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Arrange returns exactly count rectangles for the given policy, in the
// order of the windows passed in. Floating windows must not be counted.
// Monocle gives every window the full usable rect; the caller decides which
// one stays mapped.
func Arrange(kind Kind, count int, bounds Rect, gap int) []Rect {
	if count <= 0 {
		return nil
	}
	if gap < 0 {
		gap = 0
	}
	bounds = bounds.clamp()

	out := make([]Rect, 0, count)
	switch kind {
	case Monocle:
		usable := bounds.Inset(gap)
		for i := 0; i < count; i++ {
			out = append(out, usable)
		}
	case Grid:
		out = grid(out, count, bounds, gap)
	case Fibonacci:
		out = fibonacci(out, count, bounds, gap)
	case Dwindle:
		out = dwindle(out, count, bounds, gap, 0)
	default:
		out = tile(out, count, bounds, gap)
	}
	// an oversized gap can push cells past the edge
	for i := range out {
		out[i] = out[i].fit(bounds)
	}
	return out
}

// tile stacks windows in one column separated by gap
func tile(out []Rect, count int, bounds Rect, gap int) []Rect {
	usable := bounds.Inset(gap)
	avail := usable.Height - gap*(count-1)
	if avail < 0 {
		avail = 0
	}
	h := avail / count
	y := usable.Y
	for i := 0; i < count; i++ {
		out = append(out, Rect{X: usable.X, Y: y, Width: usable.Width, Height: h})
		y += h + gap
	}
	return out
}

func grid(out []Rect, count int, bounds Rect, gap int) []Rect {
	cols := int(math.Ceil(math.Sqrt(float64(count))))
	rows := (count + cols - 1) / cols

	cellW := (bounds.Width - gap*(cols+1)) / cols
	cellH := (bounds.Height - gap*(rows+1)) / rows
	for i := 0; i < count; i++ {
		row, col := i/cols, i%cols
		out = append(out, Rect{
			X:      bounds.X + gap + col*(cellW+gap),
			Y:      bounds.Y + gap + row*(cellH+gap),
			Width:  cellW,
			Height: cellH,
		}.clamp())
	}
	return out
}

// fibonacci gives the first window a width/Phi slice and recurses the
// remainder into the complementary rect, so depth is bounded by count.
func fibonacci(out []Rect, count int, bounds Rect, gap int) []Rect {
	for count > 0 {
		if count == 1 {
			return append(out, bounds.Inset(gap))
		}
		main := int(float64(bounds.Width) / Phi)
		out = append(out, Rect{
			X:      bounds.X + gap,
			Y:      bounds.Y + gap,
			Width:  main - gap,
			Height: bounds.Height - 2*gap,
		}.clamp())
		bounds = Rect{X: bounds.X + main, Y: bounds.Y, Width: bounds.Width - main, Height: bounds.Height}.clamp()
		count--
	}
	return out
}

// dwindle bisects bounds, splitting left|right at even depth and
// top|bottom at odd depth. The first half of the windows takes the first
// half-rect.
func dwindle(out []Rect, count int, bounds Rect, gap int, depth int) []Rect {
	if count == 1 {
		return append(out, bounds.Inset(gap))
	}
	first, second := split(bounds, depth)
	mid := count / 2
	out = dwindle(out, mid, first, gap, depth+1)
	return dwindle(out, count-mid, second, gap, depth+1)
}

func split(r Rect, depth int) (Rect, Rect) {
	if depth%2 == 0 {
		w := r.Width / 2
		return Rect{X: r.X, Y: r.Y, Width: w, Height: r.Height},
			Rect{X: r.X + w, Y: r.Y, Width: r.Width - w, Height: r.Height}
	}
	h := r.Height / 2
	return Rect{X: r.X, Y: r.Y, Width: r.Width, Height: h},
		Rect{X: r.X, Y: r.Y + h, Width: r.Width, Height: r.Height - h}
}
