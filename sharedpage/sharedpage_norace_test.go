//go:build !race

package sharedpage_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/palmsim/coretiming"
	"github.com/sarchlab/palmsim/sharedpage"
)

// The slot bytes are deliberately unsynchronized (guest-facing ABI; only the
// generation counter is atomic), so this cross-goroutine check is excluded
// from race-detector builds.
var _ = Describe("Handler tear-free reads", func() {
	It("should never expose a half-written slot", func() {
		timing := coretiming.New()
		page := sharedpage.New(timing,
			sharedpage.WithBootTime(time.Date(2020, 1, 15, 12, 0, 0, 0, time.UTC)))

		done := make(chan struct{})
		var reads []sharedpage.DateTime
		go func() {
			defer close(done)
			for i := 0; i < 20000; i++ {
				reads = append(reads, page.ReadDateTime())
			}
		}()

		for i := 0; i < 200; i++ {
			timing.AddTicks(uint64(coretiming.MsToTicks(hourTicks)))
			timing.Advance()
		}
		<-done

		var lastTick uint64
		for _, dt := range reads {
			Expect(dt.Coefficient).To(Equal(uint64(coretiming.BaseClockRate)))
			Expect(dt.UpdateTick).To(BeNumerically(">=", lastTick))
			lastTick = dt.UpdateTick
		}
	})
})
