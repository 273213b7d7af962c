// Package ime models the input-method side of layout resolution: which
// methods are enabled for the current user and which of their subtypes
// apply to a physical keyboard.
package ime

import (
	"strings"
)

// ModeKeyboard is the subtype operating mode relevant to physical
// keyboards. Matching is case-insensitive.
const ModeKeyboard = "keyboard"

type MethodID string

type SubtypeID string

// Subtype is one named operating variant of an input method.
type Subtype struct {
	ID      SubtypeID
	Label   string
	Mode    string
	Enabled bool
	// Implicit marks a subtype that applies when the user has enabled no
	// subtype of the method explicitly.
	Implicit bool
}

func (s Subtype) KeyboardMode() bool {
	return strings.EqualFold(s.Mode, ModeKeyboard)
}

type Method struct {
	ID       MethodID
	Label    string
	Subtypes []Subtype
}

// Registry reports the enabled input methods and their subtypes in a stable
// enumeration order.
type Registry interface {
	EnabledMethods() []Method
	// EnabledSubtypes returns the explicitly enabled subtypes of the method
	// in declaration order. When none is explicitly enabled and
	// includeImplicit is set, the implicitly applicable subtypes are
	// returned instead. Unknown methods yield nil.
	EnabledSubtypes(id MethodID, includeImplicit bool) []Subtype
}

type staticRegistry struct {
	methods []Method
	byID    map[MethodID]Method
}

// NewStaticRegistry builds a registry over a fixed set of enabled methods,
// typically sourced from configuration.
func NewStaticRegistry(methods []Method) Registry {
	byID := make(map[MethodID]Method, len(methods))
	for _, m := range methods {
		byID[m.ID] = m
	}
	return &staticRegistry{
		methods: methods,
		byID:    byID,
	}
}

func (r *staticRegistry) EnabledMethods() []Method {
	return r.methods
}

func (r *staticRegistry) EnabledSubtypes(id MethodID, includeImplicit bool) []Subtype {
	method, ok := r.byID[id]
	if !ok {
		return nil
	}

	var enabled []Subtype
	for _, s := range method.Subtypes {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	if len(enabled) > 0 || !includeImplicit {
		return enabled
	}

	var implicit []Subtype
	for _, s := range method.Subtypes {
		if s.Implicit {
			implicit = append(implicit, s)
		}
	}
	return implicit
}
