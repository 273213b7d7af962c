package mux_test

import (
	"github.com/openkbd/kbscand/internal/mux"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("FilterFunc combinators", func() {
	even := mux.FilterFunc[int](func(v int) bool { return v%2 == 0 })
	positive := mux.FilterFunc[int](func(v int) bool { return v > 0 })

	It("Any accepts everything", func() {
		Expect(mux.Any[int]()(0)).To(BeTrue())
		Expect(mux.Any[int]()(-7)).To(BeTrue())
	})

	It("Not inverts", func() {
		Expect(mux.Not(even)(3)).To(BeTrue())
		Expect(mux.Not(even)(4)).To(BeFalse())
	})

	It("And requires all", func() {
		f := mux.And(even, positive)
		Expect(f(4)).To(BeTrue())
		Expect(f(-4)).To(BeFalse())
		Expect(f(3)).To(BeFalse())
	})

	It("Or requires one", func() {
		f := mux.Or(even, positive)
		Expect(f(-4)).To(BeTrue())
		Expect(f(3)).To(BeTrue())
		Expect(f(-3)).To(BeFalse())
	})
})

var _ = Describe("FilterSink", func() {
	It("only forwards matching values", func() {
		ch := make(chan int, 4)
		sink := mux.FilterSink(mux.SinkFromChan(ch), func(v int) bool { return v > 10 })

		Expect(sink.Submit(5)).To(Succeed())
		Expect(sink.Submit(15)).To(Succeed())
		Expect(sink.Submit(25)).To(Succeed())

		Expect(ch).To(Receive(Equal(15)))
		Expect(ch).To(Receive(Equal(25)))
		Expect(ch).NotTo(Receive())
	})
})
