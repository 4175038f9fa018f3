package sharedpage_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/palmsim/coretiming"
	"github.com/sarchlab/palmsim/sharedpage"
)

func TestSharedPage(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "SharedPage Suite")
}

const hourTicks = 60 * 60 * 1000

var _ = Describe("Handler", func() {
	var (
		timing *coretiming.Timing
		page   *sharedpage.Handler
	)

	bootTime := time.Date(2020, 1, 15, 12, 0, 0, 0, time.UTC)

	BeforeEach(func() {
		timing = coretiming.New()
		page = sharedpage.New(timing, sharedpage.WithBootTime(bootTime))
	})

	It("should initialize the fixed hardware identity fields", func() {
		raw := page.Raw()

		Expect(raw[0x04]).To(Equal(uint8(0x1)), "running_hw")
		Expect(raw[0x60:0x66]).To(Equal([]byte{0x40, 0xF4, 0x07, 0x00, 0x00, 0x00}))
		Expect(raw[0x66]).To(Equal(uint8(3)), "wifi link level")
		Expect(raw[0x67]).To(Equal(uint8(sharedpage.NetworkInternet)))
		Expect(raw[0x86]).To(Equal(uint8(0x1)))
	})

	It("should publish a valid timestamp before the first refresh", func() {
		dt := page.ReadDateTime()

		epoch2000 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
		want := uint64(3155673600_000 + bootTime.Sub(epoch2000).Milliseconds())
		Expect(dt.ConsoleTime).To(Equal(want))
		Expect(dt.UpdateTick).To(Equal(uint64(0)))
		Expect(dt.Coefficient).To(Equal(uint64(coretiming.BaseClockRate)))
		Expect(page.Counter()).To(Equal(uint32(0)))
	})

	Describe("hourly refresh", func() {
		It("should flip the counter and write the other slot", func() {
			timing.AddTicks(uint64(coretiming.MsToTicks(hourTicks)) + 100)
			timing.Advance()

			Expect(page.Counter()).To(Equal(uint32(1)))
			dt := page.ReadDateTime()
			Expect(dt.UpdateTick).To(Equal(timing.GetTicks()))
		})

		It("should re-arm minus the observed lateness", func() {
			timing.AddTicks(uint64(coretiming.MsToTicks(hourTicks)) + 100)
			timing.Advance()

			Expect(timing.GetDowncount()).
				To(Equal(coretiming.MsToTicks(hourTicks) - 100))
		})

		It("should advance console time with virtual time", func() {
			before := page.ReadDateTime()

			timing.AddTicks(uint64(coretiming.MsToTicks(hourTicks)))
			timing.Advance()

			after := page.ReadDateTime()
			delta := after.ConsoleTime - before.ConsoleTime
			Expect(delta).To(BeNumerically("~", hourTicks, 10_000))
		})

		It("should stop refreshing after Shutdown", func() {
			page.Shutdown()

			timing.AddTicks(uint64(coretiming.MsToTicks(hourTicks)) * 3)
			timing.Advance()

			Expect(page.Counter()).To(Equal(uint32(0)))
		})
	})

	Describe("device state setters", func() {
		It("should pack the battery bit-field byte", func() {
			page.SetBatteryState(5, true, true)
			Expect(page.Raw()[0x85]).To(Equal(uint8(0b10111)))

			page.SetBatteryState(3, false, false)
			Expect(page.Raw()[0x85]).To(Equal(uint8(0b01100)))
		})

		It("should be immediately visible without a refresh", func() {
			page.SetWifiLinkLevel(1)
			page.SetNetworkState(sharedpage.NetworkDisabled)
			page.Set3DLed(1)
			page.SetMacAddress([6]byte{2, 4, 6, 8, 10, 12})

			raw := page.Raw()
			Expect(raw[0x66]).To(Equal(uint8(1)))
			Expect(raw[0x67]).To(Equal(uint8(sharedpage.NetworkDisabled)))
			Expect(raw[0x84]).To(Equal(uint8(1)))
			Expect(raw[0x60:0x66]).To(Equal([]byte{2, 4, 6, 8, 10, 12}))
		})

		It("should store the 3D slider as a float", func() {
			page.Set3DSlider(1.0)
			Expect(page.Raw()[0x80:0x84]).To(Equal([]byte{0x00, 0x00, 0x80, 0x3F}))
		})
	})
})
