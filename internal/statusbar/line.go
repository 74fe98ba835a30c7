package statusbar

import (
	"fmt"
	"strings"

	"github.com/vaultos/vaultwm/internal/logger"
	"github.com/vaultos/vaultwm/internal/snapshot"
)

// Separator joins segments
const Separator = " | "

// Brand is the fixed leading segment
const Brand = "VaultOS"

// Line holds the ordered segments of the status line. It is used from the
// control loop only.
type Line struct {
	segments []Segment
	byID     map[string]Segment
}

// NewLine creates an empty line
func NewLine() *Line {
	return &Line{byID: make(map[string]Segment)}
}

// DefaultLine returns the standard layout:
// VaultOS | workspaces | sensors | plugins | Clients: N | Layout: name
func DefaultLine() *Line {
	l := NewLine()
	l.Add(NewTextSegment("brand", Brand))
	l.Add(NewFuncSegment("workspaces", Workspaces))
	l.Add(NewFuncSegment("sensors", Sensors))
	l.Add(NewFuncSegment("plugins", Plugins))
	l.Add(NewFuncSegment("clients", Clients))
	l.Add(NewFuncSegment("layout", Layout))
	return l
}

// Add appends a segment
func (l *Line) Add(seg Segment) error {
	if _, exists := l.byID[seg.ID()]; exists {
		return fmt.Errorf("segment with ID %s already exists", seg.ID())
	}
	l.byID[seg.ID()] = seg
	l.segments = append(l.segments, seg)
	return nil
}

// Remove drops a segment
func (l *Line) Remove(id string) error {
	if _, exists := l.byID[id]; !exists {
		return fmt.Errorf("segment with ID %s not found", id)
	}
	delete(l.byID, id)
	for i, seg := range l.segments {
		if seg.ID() == id {
			l.segments = append(l.segments[:i], l.segments[i+1:]...)
			break
		}
	}
	return nil
}

// Get retrieves a segment by ID
func (l *Line) Get(id string) (Segment, bool) {
	seg, ok := l.byID[id]
	return seg, ok
}

// IDs lists segment IDs in display order
func (l *Line) IDs() []string {
	ids := make([]string, len(l.segments))
	for i, seg := range l.segments {
		ids[i] = seg.ID()
	}
	return ids
}

// Compose renders every enabled segment for s
func (l *Line) Compose(s snapshot.Snapshot) string {
	parts := make([]string, 0, len(l.segments))
	for _, seg := range l.segments {
		if !seg.IsEnabled() {
			continue
		}
		text := composeSafely(seg, s)
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, Separator)
}

// composeSafely keeps one misbehaving segment from blanking the line
func composeSafely(seg Segment, s snapshot.Snapshot) (text string) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("statusbar").Error().
				Str("segment", seg.ID()).
				Interface("panic", r).
				Msg("Segment failed to render")
			text = ""
		}
	}()
	return seg.Text(s)
}
