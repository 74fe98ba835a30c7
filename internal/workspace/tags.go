package workspace

import (
	"errors"
	"fmt"
	"math/bits"
)

// MaxTags is the number of distinct tags a registry can name
const MaxTags = 32

// ErrTooManyTags is returned once every tag bit is allocated
var ErrTooManyTags = errors.New("tag registry full")

// TagSet is a bitset of tag membership
type TagSet uint32

// Has reports whether bit is set
func (s TagSet) Has(bit int) bool {
	return bit >= 0 && bit < MaxTags && s&(1<<uint(bit)) != 0
}

// With returns s with bit set
func (s TagSet) With(bit int) TagSet {
	if bit < 0 || bit >= MaxTags {
		return s
	}
	return s | 1<<uint(bit)
}

// Without returns s with bit cleared
func (s TagSet) Without(bit int) TagSet {
	if bit < 0 || bit >= MaxTags {
		return s
	}
	return s &^ (1 << uint(bit))
}

// Len returns how many tags are set
func (s TagSet) Len() int {
	return bits.OnesCount32(uint32(s))
}

// TagRegistry assigns bits to tag names in allocation order
type TagRegistry struct {
	bits  map[string]int
	names []string
}

// NewTagRegistry returns an empty registry
func NewTagRegistry() *TagRegistry {
	return &TagRegistry{bits: make(map[string]int)}
}

// Bit returns the bit for name, allocating one if needed
func (r *TagRegistry) Bit(name string) (int, error) {
	if bit, ok := r.bits[name]; ok {
		return bit, nil
	}
	if len(r.names) == MaxTags {
		return 0, fmt.Errorf("%w: cannot add %q", ErrTooManyTags, name)
	}
	bit := len(r.names)
	r.bits[name] = bit
	r.names = append(r.names, name)
	return bit, nil
}

// Lookup returns the bit for an existing tag
func (r *TagRegistry) Lookup(name string) (int, bool) {
	bit, ok := r.bits[name]
	return bit, ok
}

// Names returns the tag names present in s, in bit order
func (r *TagRegistry) Names(s TagSet) []string {
	var out []string
	for bit, name := range r.names {
		if s.Has(bit) {
			out = append(out, name)
		}
	}
	return out
}
