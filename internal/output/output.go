// Package output tracks the physical monitors of the combined screen.
package output

import (
	"fmt"

	"github.com/vaultos/vaultwm/internal/layout"
	"github.com/vaultos/vaultwm/internal/logger"
)

// MaxOutputs caps how many outputs a topology keeps
const MaxOutputs = 16

// DefaultName names the synthetic output used when enumeration fails
const DefaultName = "default"

// Output is one physical display region
type Output struct {
	Bounds  layout.Rect `json:"bounds" yaml:"bounds"`
	Name    string      `json:"name" yaml:"name"`
	Primary bool        `json:"primary" yaml:"primary"`
}

func (o Output) String() string {
	if o.Primary {
		return fmt.Sprintf("%s %s (primary)", o.Name, o.Bounds)
	}
	return fmt.Sprintf("%s %s", o.Name, o.Bounds)
}

// Enumerator discovers the current outputs. It may return an empty list.
type Enumerator interface {
	Enumerate() ([]Output, error)
}

// EnumeratorFunc adapts a function to Enumerator
type EnumeratorFunc func() ([]Output, error)

// Enumerate calls f
func (f EnumeratorFunc) Enumerate() ([]Output, error) {
	return f()
}

// Topology holds the current set of outputs. It is owned by the control
// loop and never mutated in place: Rebuild swaps the whole set.
type Topology struct {
	outputs []Output
	screen  layout.Rect
}

// NewTopology returns a topology containing only the synthetic output
// spanning screen
func NewTopology(screen layout.Rect) *Topology {
	return &Topology{
		outputs: []Output{synthetic(screen)},
		screen:  screen,
	}
}

func synthetic(screen layout.Rect) Output {
	return Output{Bounds: screen, Name: DefaultName, Primary: true}
}

// Rebuild replaces the outputs with what enum reports. Zero-area outputs
// are dropped; if nothing usable remains, or enum is nil or fails, a
// single synthetic output spanning screen is used.
func (t *Topology) Rebuild(enum Enumerator, screen layout.Rect) []Output {
	log := logger.WithComponent("outputs")
	t.screen = screen

	var found []Output
	if enum != nil {
		outs, err := enum.Enumerate()
		if err != nil {
			log.Warn().Err(err).Msg("Output enumeration unavailable, using full screen")
		}
		for _, o := range outs {
			if o.Bounds.Empty() {
				log.Debug().Str("output", o.Name).Msg("Skipping zero-area output")
				continue
			}
			if len(found) == MaxOutputs {
				log.Warn().Int("max", MaxOutputs).Msg("Too many outputs, ignoring the rest")
				break
			}
			found = append(found, o)
		}
	}
	if len(found) == 0 {
		found = []Output{synthetic(screen)}
	}

	t.outputs = found
	log.Info().Int("count", len(found)).Str("primary", t.Primary().Name).Msg("Output topology rebuilt")
	return t.Outputs()
}

// Outputs returns a copy of the current outputs
func (t *Topology) Outputs() []Output {
	out := make([]Output, len(t.outputs))
	copy(out, t.outputs)
	return out
}

// Screen returns the full screen rectangle last used to rebuild
func (t *Topology) Screen() layout.Rect {
	return t.screen
}

// Primary returns the output flagged primary, or the first output
func (t *Topology) Primary() Output {
	for _, o := range t.outputs {
		if o.Primary {
			return o
		}
	}
	if len(t.outputs) == 0 {
		return synthetic(t.screen)
	}
	return t.outputs[0]
}

// AtPoint returns the first output containing (x, y), else the primary
func (t *Topology) AtPoint(x, y int) Output {
	for _, o := range t.outputs {
		if o.Bounds.Contains(x, y) {
			return o
		}
	}
	return t.Primary()
}

// ForRect returns the output holding the center of r
func (t *Topology) ForRect(r layout.Rect) Output {
	x, y := r.Center()
	return t.AtPoint(x, y)
}
