package input_test

import (
	"github.com/openkbd/kbscand/internal/input"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeDevice struct {
	id         input.DeviceID
	name       string
	virtual    bool
	fullKbd    bool
	vendor     uint16
	product    uint16
	descriptor string
}

func (d *fakeDevice) ID() input.DeviceID { return d.id }
func (d *fakeDevice) Name() string       { return d.name }
func (d *fakeDevice) Virtual() bool      { return d.virtual }
func (d *fakeDevice) FullKeyboard() bool { return d.fullKbd }
func (d *fakeDevice) Vendor() uint16     { return d.vendor }
func (d *fakeDevice) Product() uint16    { return d.product }
func (d *fakeDevice) Descriptor() string { return d.descriptor }

type fakeProvider struct {
	order   []input.DeviceID
	devices map[input.DeviceID]input.Device
	absent  map[input.DeviceID]bool
}

func newFakeProvider(devs ...*fakeDevice) *fakeProvider {
	p := &fakeProvider{
		devices: make(map[input.DeviceID]input.Device),
		absent:  make(map[input.DeviceID]bool),
	}
	for _, d := range devs {
		p.order = append(p.order, d.id)
		p.devices[d.id] = d
	}
	return p
}

func (p *fakeProvider) DeviceIDs() []input.DeviceID {
	return p.order
}

func (p *fakeProvider) DeviceByID(id input.DeviceID) (input.Device, bool) {
	if p.absent[id] {
		return nil, false
	}
	dev, ok := p.devices[id]
	return dev, ok
}

func keyboard(id, name, descriptor string) *fakeDevice {
	return &fakeDevice{
		id:         input.DeviceID(id),
		name:       name,
		fullKbd:    true,
		vendor:     0x046d,
		product:    0xc31c,
		descriptor: descriptor,
	}
}

var _ = Describe("Capture", func() {
	It("returns identities in enumeration order", func() {
		p := newFakeProvider(
			keyboard("dev1", "Keyboard A", "aaaa"),
			keyboard("dev2", "Keyboard B", "bbbb"),
		)

		snap := input.Capture(p)

		Expect(snap).To(HaveLen(2))
		Expect(snap[0].Name).To(Equal("Keyboard A"))
		Expect(snap[1].Name).To(Equal("Keyboard B"))
	})

	It("excludes virtual devices", func() {
		virtual := keyboard("dev1", "Virtual Keyboard", "vvvv")
		virtual.virtual = true
		p := newFakeProvider(virtual, keyboard("dev2", "Real Keyboard", "rrrr"))

		snap := input.Capture(p)

		Expect(snap).To(HaveLen(1))
		Expect(snap[0].Name).To(Equal("Real Keyboard"))
	})

	It("excludes devices without full keyboard capability", func() {
		mouse := keyboard("dev1", "Mouse", "mmmm")
		mouse.fullKbd = false
		p := newFakeProvider(mouse)

		Expect(input.Capture(p)).To(BeEmpty())
	})

	It("skips devices that vanished between enumeration and lookup", func() {
		p := newFakeProvider(
			keyboard("dev1", "Keyboard A", "aaaa"),
			keyboard("dev2", "Keyboard B", "bbbb"),
		)
		p.absent["dev1"] = true

		snap := input.Capture(p)

		Expect(snap).To(HaveLen(1))
		Expect(snap[0].Name).To(Equal("Keyboard B"))
	})
})

var _ = Describe("Changed", func() {
	identA := input.Identity{Name: "Keyboard A", Vendor: 1, Product: 2, Descriptor: "aaaa"}
	identB := input.Identity{Name: "Keyboard B", Vendor: 3, Product: 4, Descriptor: "bbbb"}

	It("is false for identical snapshots", func() {
		Expect(input.Changed(nil, nil)).To(BeFalse())
		Expect(input.Changed(input.Snapshot{identA}, input.Snapshot{identA})).To(BeFalse())
		Expect(input.Changed(input.Snapshot{identA, identB}, input.Snapshot{identA, identB})).To(BeFalse())
	})

	It("treats an empty snapshot and a nil snapshot alike", func() {
		Expect(input.Changed(input.Snapshot{}, nil)).To(BeFalse())
	})

	It("is true when the length differs", func() {
		Expect(input.Changed(input.Snapshot{identA}, input.Snapshot{identA, identB})).To(BeTrue())
		Expect(input.Changed(input.Snapshot{identA}, nil)).To(BeTrue())
	})

	It("is true when the order differs", func() {
		Expect(input.Changed(input.Snapshot{identA, identB}, input.Snapshot{identB, identA})).To(BeTrue())
	})

	It("is true when any field of any element differs", func() {
		renamed := identA
		renamed.Name = "Keyboard A rev2"
		Expect(input.Changed(input.Snapshot{identA}, input.Snapshot{renamed})).To(BeTrue())

		rebadged := identA
		rebadged.Vendor = 99
		Expect(input.Changed(input.Snapshot{identA}, input.Snapshot{rebadged})).To(BeTrue())

		reflashed := identA
		reflashed.Descriptor = "cccc"
		Expect(input.Changed(input.Snapshot{identA}, input.Snapshot{reflashed})).To(BeTrue())
	})
})
