// Package statusbar composes and renders the one-line status display.
package statusbar

import (
	"fmt"
	"strings"

	"github.com/vaultos/vaultwm/internal/sensors"
	"github.com/vaultos/vaultwm/internal/snapshot"
)

// Segment contributes one " | "-separated part of the status line
type Segment interface {
	// ID returns the unique identifier for this segment
	ID() string

	// Text renders the segment for a snapshot. Empty text is skipped.
	Text(s snapshot.Snapshot) string

	// IsEnabled returns whether the segment should be rendered
	IsEnabled() bool

	// SetEnabled sets whether the segment should be rendered
	SetEnabled(enabled bool)
}

// BaseSegment provides common functionality for all segments
type BaseSegment struct {
	id      string
	enabled bool
}

// NewBaseSegment creates a new enabled base segment
func NewBaseSegment(id string) *BaseSegment {
	return &BaseSegment{id: id, enabled: true}
}

// ID returns the segment's unique identifier
func (b *BaseSegment) ID() string {
	return b.id
}

// IsEnabled returns whether the segment should be rendered
func (b *BaseSegment) IsEnabled() bool {
	return b.enabled
}

// SetEnabled sets whether the segment should be rendered
func (b *BaseSegment) SetEnabled(enabled bool) {
	b.enabled = enabled
}

// TextSegment shows fixed text
type TextSegment struct {
	*BaseSegment
	text string
}

// NewTextSegment creates a segment showing text
func NewTextSegment(id, text string) *TextSegment {
	return &TextSegment{BaseSegment: NewBaseSegment(id), text: text}
}

func (t *TextSegment) Text(snapshot.Snapshot) string {
	return t.text
}

// SetText updates the text content
func (t *TextSegment) SetText(text string) {
	t.text = text
}

// FuncSegment renders through a function
type FuncSegment struct {
	*BaseSegment
	fn func(snapshot.Snapshot) string
}

// NewFuncSegment creates a segment rendered by fn
func NewFuncSegment(id string, fn func(snapshot.Snapshot) string) *FuncSegment {
	return &FuncSegment{BaseSegment: NewBaseSegment(id), fn: fn}
}

func (f *FuncSegment) Text(s snapshot.Snapshot) string {
	return f.fn(s)
}

// Workspaces lists workspace names, bracketing the active one and
// marking urgent ones with '!'. Empty inactive workspaces are hidden.
func Workspaces(s snapshot.Snapshot) string {
	var parts []string
	for _, ws := range s.Workspaces {
		urgent := false
		for _, c := range ws.Clients {
			if c.Urgent {
				urgent = true
				break
			}
		}
		switch {
		case ws.Active:
			parts = append(parts, "["+ws.Name+"]")
		case urgent:
			parts = append(parts, ws.Name+"!")
		case len(ws.Clients) > 0:
			parts = append(parts, ws.Name)
		}
	}
	return strings.Join(parts, " ")
}

// Sensors renders the cached CPU, memory and network readings
func Sensors(s snapshot.Snapshot) string {
	r := s.Sensors
	return fmt.Sprintf("CPU %.0f%% MEM %.0f%% NET %s/%s",
		r.CPUPercent, r.MemPercent(),
		sensors.FormatBytes(r.NetRxRate), sensors.FormatBytes(r.NetTxRate))
}

// Plugins joins the plugin-provided segments
func Plugins(s snapshot.Snapshot) string {
	return strings.Join(s.Segments, " | ")
}

// Clients renders the managed window count
func Clients(s snapshot.Snapshot) string {
	return fmt.Sprintf("Clients: %d", s.ClientCount())
}

// Layout renders the active workspace's layout policy
func Layout(s snapshot.Snapshot) string {
	return "Layout: " + s.Layout.String()
}
