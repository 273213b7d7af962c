package input

// Identity is the stable value identity of one physical keyboard. Equality
// is structural over all four fields; Name is compared as plain text.
type Identity struct {
	Name       string
	Vendor     uint16
	Product    uint16
	Descriptor string
}

// Snapshot is the ordered set of attached physical full keyboards at one
// point in time. Order is enumeration order and participates in equality.
type Snapshot []Identity

func IdentityOf(dev Device) Identity {
	return Identity{
		Name:       dev.Name(),
		Vendor:     dev.Vendor(),
		Product:    dev.Product(),
		Descriptor: dev.Descriptor(),
	}
}

// Capture enumerates the provider and returns the identities of all attached
// non-virtual full keyboards in enumeration order. Absent devices are
// skipped, never reported as errors.
func Capture(p Provider) Snapshot {
	var snap Snapshot
	for _, id := range p.DeviceIDs() {
		dev, ok := p.DeviceByID(id)
		if !ok {
			continue
		}
		if !IsHardKeyboard(dev) {
			continue
		}
		snap = append(snap, IdentityOf(dev))
	}
	return snap
}

func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Changed reports whether next warrants a rescan. Sequence equality is
// deliberate: a reordered device list is treated as a change, since layout
// resolution is per-device and index-aligned.
func Changed(prev, next Snapshot) bool {
	return !prev.Equal(next)
}
