// Package layout provides the mapping from (physical keyboard, input
// method, subtype) to a concrete keyboard layout.
package layout

import (
	"github.com/openkbd/kbscand/internal/ime"
	"github.com/openkbd/kbscand/internal/input"
)

// Layout is one resolvable keyboard layout with a human-readable label.
type Layout struct {
	Descriptor string
	Label      string
}

// Store answers layout lookups. A nil layout with a nil error means no
// mapping exists yet for that combination; that is not an error.
type Store interface {
	LayoutFor(dev input.Identity, method ime.MethodID, subtype ime.SubtypeID) (*Layout, error)
	SetLayout(dev input.Identity, method ime.MethodID, subtype ime.SubtypeID, l Layout) error
	Close() error
}
