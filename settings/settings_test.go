package settings_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/palmsim/settings"
)

func TestSettings(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Settings Suite")
}

var _ = Describe("Settings", func() {
	It("should provide valid defaults", func() {
		s := settings.Default()

		Expect(s.Validate()).To(Succeed())
		Expect(s.TicksMode).To(Equal(settings.TicksModeAuto))
		Expect(s.InitClock).To(Equal(settings.InitClockSystem))
	})

	It("should round-trip through a file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "settings.json")

		s := settings.Default()
		s.TicksMode = settings.TicksModeCustom
		s.CustomTicks = 21000
		s.BatteryLevel = 2
		Expect(s.Save(path)).To(Succeed())

		loaded, err := settings.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(s))
	})

	It("should fill unset fields from defaults when loading", func() {
		path := filepath.Join(GinkgoT().TempDir(), "settings.json")
		Expect(os.WriteFile(path, []byte(`{"battery_level": 1}`), 0644)).
			To(Succeed())

		loaded, err := settings.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.BatteryLevel).To(Equal(uint8(1)))
		Expect(loaded.TicksMode).To(Equal(settings.TicksModeAuto))
		Expect(loaded.WifiLinkLevel).To(Equal(uint8(3)))
	})

	It("should report missing files as errors", func() {
		_, err := settings.Load("/nonexistent/settings.json")
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("validation",
		func(mutate func(*settings.Settings), ok bool) {
			s := settings.Default()
			mutate(s)
			if ok {
				Expect(s.Validate()).To(Succeed())
			} else {
				Expect(s.Validate()).NotTo(Succeed())
			}
		},
		Entry("unknown ticks mode",
			func(s *settings.Settings) { s.TicksMode = "fast" }, false),
		Entry("custom mode without a constant",
			func(s *settings.Settings) {
				s.TicksMode = settings.TicksModeCustom
				s.CustomTicks = 0
			}, false),
		Entry("custom mode with a constant",
			func(s *settings.Settings) {
				s.TicksMode = settings.TicksModeCustom
				s.CustomTicks = 5000
			}, true),
		Entry("unknown init clock",
			func(s *settings.Settings) { s.InitClock = "ntp" }, false),
		Entry("battery level out of range",
			func(s *settings.Settings) { s.BatteryLevel = 6 }, false),
		Entry("wifi level out of range",
			func(s *settings.Settings) { s.WifiLinkLevel = 4 }, false),
		Entry("3D factor out of range",
			func(s *settings.Settings) { s.Factor3D = 1.5 }, false),
	)

	It("should clone independently", func() {
		s := settings.Default()
		c := s.Clone()
		c.BatteryLevel = 0

		Expect(s.BatteryLevel).To(Equal(uint8(5)))
	})
})
