package scan_test

import (
	"sync"

	"github.com/openkbd/kbscand/internal/input"
	"github.com/openkbd/kbscand/internal/mux"
	"github.com/openkbd/kbscand/internal/scan"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Coordinator", func() {
	var (
		wg          *sync.WaitGroup
		provider    *fakeProvider
		coordinator *scan.Coordinator
		results     chan scan.Result
	)

	startWith := func(resolver scan.DeviceResolver) {
		wg = &sync.WaitGroup{}
		coordinator = scan.NewCoordinator(provider, resolver, wg)
		results = make(chan scan.Result, 16)
		coordinator.Subscribe(mux.SinkFromChan(results))
	}

	BeforeEach(func() {
		provider = &fakeProvider{}
	})

	AfterEach(func() {
		coordinator.Close()
		wg.Wait()
	})

	Context("with an immediate resolver", func() {
		var resolver *fakeResolver

		BeforeEach(func() {
			resolver = newFakeResolver(false)
			startWith(resolver)
		})

		It("launches no scan when no keyboard is attached", func() {
			coordinator.Refresh()

			Consistently(resolver.calls).ShouldNot(Receive())
			Expect(coordinator.State().LiveTokens).To(BeEmpty())
		})

		It("scans when the first keyboard appears", func() {
			provider.set(device("dev1", "Keyboard A"))

			coordinator.Refresh()

			var res scan.Result
			Eventually(results).Should(Receive(&res))
			Expect(res.Token).To(Equal(scan.Token(0)))
			Expect(res.Devices).To(HaveLen(1))
			Expect(res.Devices[0].Device.Name).To(Equal("Keyboard A"))
			Expect(coordinator.State().Snapshot).To(HaveLen(1))
		})

		It("does not rescan for an unchanged device set", func() {
			provider.set(device("dev1", "Keyboard A"))

			coordinator.Refresh()
			coordinator.Refresh()

			Eventually(resolver.calls).Should(Receive())
			Consistently(resolver.calls).ShouldNot(Receive())
		})

		It("rescans when devices reorder", func() {
			a := device("dev1", "Keyboard A")
			b := device("dev2", "Keyboard B")
			provider.set(a, b)
			coordinator.Refresh()
			Eventually(results).Should(Receive())

			provider.set(b, a)
			coordinator.Refresh()

			var res scan.Result
			Eventually(results).Should(Receive(&res))
			Expect(res.Token).To(Equal(scan.Token(1)))
			Expect(res.Devices[0].Device.Name).To(Equal("Keyboard B"))
		})

		It("rescans on hotplug events from an attached source", func() {
			events := mux.Make[input.Event]()
			defer events.Close()
			detach := coordinator.Attach(events)
			defer detach()

			provider.set(device("dev1", "Keyboard A"))
			events.Submit(input.DeviceAdded{ID: "dev1"})

			var res scan.Result
			Eventually(results).Should(Receive(&res))
			Expect(res.Devices).To(HaveLen(1))
		})

		It("re-snapshots on a device change event", func() {
			events := mux.Make[input.Event]()
			defer events.Close()
			detach := coordinator.Attach(events)
			defer detach()

			a := device("dev1", "Keyboard A")
			provider.set(a)
			events.Submit(input.DeviceAdded{ID: "dev1"})
			Eventually(results).Should(Receive())

			renamed := device("dev1", "Keyboard A rev2")
			provider.set(renamed)
			events.Submit(input.DeviceChanged{ID: "dev1"})

			var res scan.Result
			Eventually(results).Should(Receive(&res))
			Expect(res.Devices[0].Device.Name).To(Equal("Keyboard A rev2"))
			Expect(input.Changed(input.Snapshot{input.IdentityOf(a)}, input.Snapshot{res.Devices[0].Device})).To(BeTrue())
		})
	})

	Context("with overlapping scans", func() {
		var resolver *fakeResolver

		BeforeEach(func() {
			resolver = newFakeResolver(true)
			startWith(resolver)
		})

		It("applies a superseded result that is still registered, in arrival order", func() {
			a := device("dev1", "Keyboard A")
			b := device("dev2", "Keyboard B")

			provider.set(a)
			coordinator.Refresh()
			var first *resolveCall
			Eventually(resolver.calls).Should(Receive(&first))
			Expect(first.snapshot).To(HaveLen(1))

			provider.set(a, b)
			coordinator.Refresh()
			var second *resolveCall
			Eventually(resolver.calls).Should(Receive(&second))
			Expect(second.snapshot).To(HaveLen(2))

			Expect(coordinator.State().LiveTokens).To(HaveLen(2))

			// The newer scan finishes first.
			close(second.release)
			var res scan.Result
			Eventually(results).Should(Receive(&res))
			Expect(res.Token).To(Equal(scan.Token(1)))
			Expect(res.Devices).To(HaveLen(2))

			// The older scan is still registered, so its late result is
			// applied too.
			close(first.release)
			Eventually(results).Should(Receive(&res))
			Expect(res.Token).To(Equal(scan.Token(0)))
			Expect(res.Devices).To(HaveLen(1))

			Expect(coordinator.State().LiveTokens).To(BeEmpty())
		})

		It("never applies a result whose token was retired by pause", func() {
			provider.set(device("dev1", "Keyboard A"))
			coordinator.Refresh()

			var call *resolveCall
			Eventually(resolver.calls).Should(Receive(&call))

			coordinator.Pause()
			close(call.release)

			Consistently(results).ShouldNot(Receive())
			Expect(coordinator.State().LiveTokens).To(BeEmpty())
		})

		It("clears the remembered snapshot on pause so resume rescans", func() {
			provider.set(device("dev1", "Keyboard A"))
			coordinator.Refresh()
			Eventually(resolver.calls).Should(Receive())

			coordinator.Pause()
			Expect(coordinator.State().Snapshot).To(BeEmpty())

			// Same physical devices, fresh scan regardless.
			coordinator.Refresh()

			var call *resolveCall
			Eventually(resolver.calls).Should(Receive(&call))
			close(call.release)

			var res scan.Result
			Eventually(results).Should(Receive(&res))
			Expect(res.Token).To(Equal(scan.Token(1)))
		})
	})
})
