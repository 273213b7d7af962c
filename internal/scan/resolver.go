package scan

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/openkbd/kbscand/internal/ime"
	"github.com/openkbd/kbscand/internal/input"
	"github.com/openkbd/kbscand/internal/layout"
)

// Resolver computes the layout candidates for every device in a snapshot.
// It only reads the inputs it was handed; all coordinator state stays with
// the coordinator.
type Resolver struct {
	registry ime.Registry
	store    layout.Store
}

func NewResolver(registry ime.Registry, store layout.Store) *Resolver {
	return &Resolver{
		registry: registry,
		store:    store,
	}
}

// Resolve walks the snapshot device by device. Cancellation is cooperative
// between per-device work units: once ctx is done the error is returned and
// no partial result escapes.
func (r *Resolver) Resolve(ctx context.Context, snap input.Snapshot) ([]DeviceLayouts, error) {
	devices := make([]DeviceLayouts, 0, len(snap))
	for _, dev := range snap {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		devices = append(devices, r.resolveDevice(dev))
	}
	return devices, nil
}

func (r *Resolver) resolveDevice(dev input.Identity) DeviceLayouts {
	var candidates []Candidate
	for _, method := range r.registry.EnabledMethods() {
		for _, subtype := range r.registry.EnabledSubtypes(method.ID, true) {
			if !subtype.KeyboardMode() {
				continue
			}
			candidates = append(candidates, Candidate{
				Method:       method.ID,
				MethodLabel:  method.Label,
				Subtype:      subtype.ID,
				SubtypeLabel: subtype.Label,
				Layout:       r.lookupLayout(dev, method.ID, subtype.ID),
			})
		}
	}
	return DeviceLayouts{
		Device:     dev,
		Candidates: candidates,
	}
}

func (r *Resolver) lookupLayout(dev input.Identity, method ime.MethodID, subtype ime.SubtypeID) *layout.Layout {
	l, err := r.store.LayoutFor(dev, method, subtype)
	if err != nil {
		// Lookup failures degrade to "no layout mapped yet".
		klog.V(2).Infof("layout lookup failed for %q/%s/%s: %v", dev.Name, method, subtype, err)
		return nil
	}
	return l
}
