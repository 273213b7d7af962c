package scan

import (
	"fmt"

	"github.com/openkbd/kbscand/internal/ime"
	"github.com/openkbd/kbscand/internal/input"
	"github.com/openkbd/kbscand/internal/layout"
)

// Token identifies one resolution pass. Tokens are minted monotonically by
// the coordinator and never reused within its lifetime.
type Token uint64

// Candidate is one usable (method, subtype, layout) combination for a
// device. Layout is nil when no mapping exists yet.
type Candidate struct {
	Method       ime.MethodID
	MethodLabel  string
	Subtype      ime.SubtypeID
	SubtypeLabel string
	Layout       *layout.Layout
}

// DisplayLabel is the row title the presentation layer shows for the
// candidate.
func (c Candidate) DisplayLabel() string {
	return fmt.Sprintf("%s (%s)", c.SubtypeLabel, c.MethodLabel)
}

// DeviceLayouts pairs one attached keyboard with its ordered candidates.
// A device with no qualifying candidates keeps an empty list; it is never
// dropped from the result.
type DeviceLayouts struct {
	Device     input.Identity
	Candidates []Candidate
}

// Result is the complete outcome of one scan.
type Result struct {
	Token   Token
	Devices []DeviceLayouts
}
