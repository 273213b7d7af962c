package input

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	libudev "github.com/jochenvg/go-udev"

	"k8s.io/klog/v2"

	"github.com/openkbd/kbscand/internal/mux"
)

const (
	InputSubsystem = "input"

	PropertyKeyboard = "ID_INPUT_KEYBOARD"
	PropertyVendorID = "ID_VENDOR_ID"
	PropertyModelID  = "ID_MODEL_ID"

	SysAttrName = "name"
	SysAttrUniq = "uniq"

	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"

	virtualPathMarker = "/devices/virtual/"
)

type udevDevice struct {
	syspath string
	name    string
	virtual bool
	fullKbd bool
	vendor  uint16
	product uint16
	uniq    string
}

func (d *udevDevice) ID() DeviceID {
	return DeviceID(d.syspath)
}

func (d *udevDevice) Name() string {
	return d.name
}

func (d *udevDevice) Virtual() bool {
	return d.virtual
}

func (d *udevDevice) FullKeyboard() bool {
	return d.fullKbd
}

func (d *udevDevice) Vendor() uint16 {
	return d.vendor
}

func (d *udevDevice) Product() uint16 {
	return d.product
}

// Descriptor is a stable digest of the hardware identity, independent of the
// syspath the device happens to be attached under.
func (d *udevDevice) Descriptor() string {
	seed := d.uniq
	if seed == "" {
		seed = d.name
	}
	sum := sha1.Sum([]byte(fmt.Sprintf("%04x:%04x:%s", d.vendor, d.product, seed)))
	return hex.EncodeToString(sum[:])
}

func parseHexID(s string) uint16 {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}

func newUdevDevice(dev *libudev.Device) *udevDevice {
	name := strings.TrimSpace(dev.SysattrValue(SysAttrName))
	return &udevDevice{
		syspath: dev.Syspath(),
		name:    name,
		virtual: strings.Contains(dev.Syspath(), virtualPathMarker),
		fullKbd: dev.PropertyValue(PropertyKeyboard) == "1",
		vendor:  parseHexID(dev.PropertyValue(PropertyVendorID)),
		product: parseHexID(dev.PropertyValue(PropertyModelID)),
		uniq:    strings.TrimSpace(dev.SysattrValue(SysAttrUniq)),
	}
}

// UdevProvider enumerates input-class devices through libudev. DeviceIDs
// refreshes an internal view of the attached devices; DeviceByID answers
// from that view, so a device that vanished mid-walk is simply absent.
type UdevProvider struct {
	udev libudev.Udev

	mu   sync.Mutex
	seen map[DeviceID]Device
}

func NewUdevProvider() *UdevProvider {
	return &UdevProvider{
		seen: make(map[DeviceID]Device),
	}
}

func (p *UdevProvider) DeviceIDs() []DeviceID {
	enum := p.udev.NewEnumerate()
	devs, err := enum.Devices()
	if err != nil {
		// Degrades to "nothing attached" per the snapshot contract.
		klog.Errorf("failed to enumerate input devices: %v", err)
		return nil
	}

	seen := make(map[DeviceID]Device)
	var ids []DeviceID
	for _, dev := range devs {
		if dev == nil || dev.Subsystem() != InputSubsystem {
			continue
		}
		ud := newUdevDevice(dev)
		if ud.name == "" {
			// Child event nodes carry no name sysattr. The named inputN
			// node is the one identity per physical device.
			continue
		}
		seen[ud.ID()] = ud
		ids = append(ids, ud.ID())
	}

	p.mu.Lock()
	p.seen = seen
	p.mu.Unlock()

	return ids
}

func (p *UdevProvider) DeviceByID(id DeviceID) (Device, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dev, ok := p.seen[id]
	return dev, ok
}

type udevHotplug struct {
	mux    *mux.Mux[Event]
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

// NewUdevHotplug starts a netlink monitor for input subsystem events and
// fans them out to subscribers.
func NewUdevHotplug(wg *sync.WaitGroup) (Hotplug, error) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &udevHotplug{
		mux:    mux.Make[Event](),
		cancel: cancel,
		wg:     wg,
	}

	u := libudev.Udev{}
	mon := u.NewMonitorFromNetlink("udev")
	devChan, errChan, err := mon.DeviceChan(ctx)
	if err != nil {
		cancel()
		klog.Errorf("failed to create udev device channel: %v", err)
		return nil, err
	}

	wg.Add(1)
	go h.monitor(ctx, u, devChan, errChan)

	return h, nil
}

func (h *udevHotplug) monitor(ctx context.Context, u libudev.Udev, devChan <-chan *libudev.Device, errChan <-chan error) {
	defer h.wg.Done()
	defer h.mux.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case dev := <-devChan:
			if dev == nil || dev.Subsystem() != InputSubsystem {
				continue
			}
			id := DeviceID(dev.Syspath())
			klog.V(5).Infof("udev input event (%s): %s", dev.Action(), dev.Syspath())
			switch dev.Action() {
			case ActionAdd:
				h.mux.Submit(DeviceAdded{id})
			case ActionRemove:
				h.mux.Submit(DeviceRemoved{id})
			case ActionChange:
				h.mux.Submit(DeviceChanged{id})
			}
		case err := <-errChan:
			klog.Errorf("error from udev monitor, reconnecting: %v", err)
		retry:
			mon := u.NewMonitorFromNetlink("udev")
			var cErr error
			devChan, errChan, cErr = mon.DeviceChan(ctx)
			if cErr != nil {
				if ctx.Err() != nil {
					return
				}
				klog.Errorf("failed to recreate udev device channel, retrying: %v", cErr)
				time.Sleep(1 * time.Second)
				goto retry
			}
			klog.Info("successfully reconnected to udev")
		}
	}
}

func (h *udevHotplug) Subscribe(sink mux.Sink[Event]) mux.CancelFunc {
	return h.mux.Subscribe(sink)
}

func (h *udevHotplug) Close() {
	h.cancel()
}
