// Package rules matches newly presented windows against declarative
// placement rules of the form class[:instance]:kind=value.
package rules

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/vaultos/vaultwm/internal/layout"
	"github.com/vaultos/vaultwm/internal/logger"
)

// MaxRules bounds the size of a single table
const MaxRules = 64

var (
	// ErrMalformed is returned for a line that is not a rule
	ErrMalformed = errors.New("malformed rule")
	// ErrUnknownKind is returned for an unrecognized rule kind
	ErrUnknownKind = errors.New("unknown rule kind")
	// ErrTableFull is returned once MaxRules rules are loaded
	ErrTableFull = errors.New("rule table full")
)

// Wildcard matches any class or instance
const Wildcard = "*"

// Kind is the policy a rule applies
type Kind string

const (
	KindFloat     Kind = "float"
	KindWorkspace Kind = "workspace"
	KindLayout    Kind = "layout"
	KindSize      Kind = "size"
	KindPosition  Kind = "position"
	KindTag       Kind = "tag"
)

// ParseKind resolves a rule kind name; "floating" is an alias of "float"
func ParseKind(s string) (Kind, error) {
	switch strings.TrimSpace(s) {
	case "float", "floating":
		return KindFloat, nil
	case "workspace":
		return KindWorkspace, nil
	case "layout":
		return KindLayout, nil
	case "size":
		return KindSize, nil
	case "position":
		return KindPosition, nil
	case "tag":
		return KindTag, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Rule is one entry of the table
type Rule struct {
	Class    string `json:"class" yaml:"class"`
	Instance string `json:"instance" yaml:"instance"`
	Kind     Kind   `json:"kind" yaml:"kind"`
	Value    string `json:"value" yaml:"value"`
	Priority int    `json:"priority" yaml:"priority"`
}

// Matches reports whether the rule applies to a window
func (r Rule) Matches(class, instance string) bool {
	if r.Class != Wildcard && r.Class != class {
		return false
	}
	return r.Instance == Wildcard || r.Instance == instance
}

// Workspace returns the zero-based workspace index named by a 1-based value
func (r Rule) Workspace(count int) (int, error) {
	n, err := strconv.Atoi(r.Value)
	if err != nil || n < 1 || n > count {
		return 0, fmt.Errorf("workspace %q out of range 1..%d", r.Value, count)
	}
	return n - 1, nil
}

// Layout returns the layout policy named by the value
func (r Rule) Layout() (layout.Kind, error) {
	return layout.ParseKind(r.Value)
}

// Size parses a WxH value
func (r Rule) Size() (int, int, error) {
	w, h, ok := splitPair(r.Value, "x")
	if !ok || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q (want WxH)", r.Value)
	}
	return w, h, nil
}

// Position parses an X,Y value
func (r Rule) Position() (int, int, error) {
	x, y, ok := splitPair(r.Value, ",")
	if !ok {
		return 0, 0, fmt.Errorf("invalid position %q (want X,Y)", r.Value)
	}
	return x, y, nil
}

// Floating reports whether the rule forces the window to float. Size and
// position only make sense for floating windows.
func (r Rule) Floating() bool {
	switch r.Kind {
	case KindFloat:
		return r.Value == "" || r.Value == "1" || strings.EqualFold(r.Value, "true") || strings.EqualFold(r.Value, "yes")
	case KindSize, KindPosition:
		return true
	}
	return false
}

func splitPair(s, sep string) (int, int, bool) {
	a, b, ok := strings.Cut(strings.ToLower(s), sep)
	if !ok {
		return 0, 0, false
	}
	x, err1 := strconv.Atoi(strings.TrimSpace(a))
	y, err2 := strconv.Atoi(strings.TrimSpace(b))
	return x, y, err1 == nil && err2 == nil
}

// ParseLine parses class:instance:kind=value or class:kind=value. The
// returned rule has no priority yet.
func ParseLine(line string) (Rule, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Rule{}, fmt.Errorf("%w: empty", ErrMalformed)
	}

	head, value, ok := strings.Cut(line, "=")
	if !ok {
		return Rule{}, fmt.Errorf("%w: missing '='", ErrMalformed)
	}
	// the value is a single token
	if fields := strings.Fields(value); len(fields) > 0 {
		value = fields[0]
	} else {
		value = ""
	}

	parts := strings.Split(head, ":")
	var r Rule
	switch len(parts) {
	case 2:
		r = Rule{Class: parts[0], Instance: Wildcard}
	case 3:
		r = Rule{Class: parts[0], Instance: parts[1]}
	default:
		return Rule{}, fmt.Errorf("%w: want class[:instance]:kind=value", ErrMalformed)
	}
	if r.Class == "" || r.Instance == "" {
		return Rule{}, fmt.Errorf("%w: empty class or instance", ErrMalformed)
	}

	kind, err := ParseKind(parts[len(parts)-1])
	if err != nil {
		return Rule{}, err
	}
	r.Kind = kind
	r.Value = value
	if value == "" && kind != KindFloat {
		return Rule{}, fmt.Errorf("%w: %s rule needs a value", ErrMalformed, kind)
	}
	return r, nil
}

// Table is an ordered set of rules. Priority equals insertion order.
type Table struct {
	rules []Rule
}

// NewTable returns an empty table
func NewTable() *Table {
	return &Table{}
}

// Load parses rule text. Malformed lines are logged and skipped.
func Load(text string) *Table {
	t := NewTable()
	t.LoadText(text)
	return t
}

// LoadFile reads rules from path; a missing file yields an empty table
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewTable(), nil
		}
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	t := NewTable()
	t.load(bufio.NewScanner(f))
	return t, nil
}

// LoadText appends the rules found in text
func (t *Table) LoadText(text string) {
	t.load(bufio.NewScanner(strings.NewReader(text)))
}

func (t *Table) load(sc *bufio.Scanner) {
	log := logger.WithComponent("rules")
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r, err := ParseLine(line)
		if err != nil {
			log.Warn().Err(err).Int("line", lineNo).Str("text", line).Msg("Skipping rule")
			continue
		}
		if err := t.Add(r); err != nil {
			log.Warn().Err(err).Int("line", lineNo).Msg("Ignoring remaining rules")
			return
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn().Err(err).Msg("Rule scan stopped early")
	}
}

// Add appends a rule and assigns it the next priority
func (t *Table) Add(r Rule) error {
	if len(t.rules) >= MaxRules {
		return ErrTableFull
	}
	r.Priority = len(t.rules)
	t.rules = append(t.rules, r)
	return nil
}

// Merge appends every rule of other after the rules already present, so
// the merged rules outrank existing ones.
func (t *Table) Merge(other *Table) error {
	if other == nil {
		return nil
	}
	for _, r := range other.rules {
		if err := t.Add(r); err != nil {
			return err
		}
	}
	return nil
}

// BestMatch returns the highest-priority rule matching class and instance
func (t *Table) BestMatch(class, instance string) (Rule, bool) {
	var (
		best  Rule
		found bool
	)
	for _, r := range t.rules {
		if !r.Matches(class, instance) {
			continue
		}
		if !found || r.Priority > best.Priority {
			best, found = r, true
		}
	}
	return best, found
}

// Len returns the number of rules
func (t *Table) Len() int {
	return len(t.rules)
}

// Rules returns a copy of the rules in priority order
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}
