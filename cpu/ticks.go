package cpu

// TicksMode selects how executed guest cycles are converted to virtual-clock
// ticks. Some titles are sensitive to wall-clock-correlated timing in ways a
// naive cycle count does not reproduce acceptably, so the count can be
// replaced by a fixed per-block constant.
type TicksMode int

// Tick accounting modes.
const (
	// TicksAccurate reports the real executed-cycle count.
	TicksAccurate TicksMode = iota
	// TicksAuto uses the per-title override table, falling back to the
	// executed-cycle count when the title has no entry.
	TicksAuto
	// TicksCustom uses a user-configured constant for every block.
	TicksCustom
)

// titleTicks is the compiled-in per-title override table, keyed by the
// 64-bit title identifier. Values were tuned per title for acceptable
// audio/video pacing.
var titleTicks = map[uint64]uint64{
	0x0004000000055D00: 27000, // fighting title, JP
	0x0004000000055E00: 27000, // fighting title, US
	0x000400000011C400: 27000, // fighting title, EU
	0x000400000008FE00: 6000,  // rhythm title
	0x0004000000126300: 16000, // RPG remake, US
	0x0004000000126100: 16000, // RPG remake, EU
	0x00040000001B5000: 10000, // puzzle collection
	0x000400000016E100: 21000, // action title
}

// OverrideTicks resolves the tick override for (titleID, mode). It is a pure
// function of its arguments. The second return value reports whether an
// override applies; when false the caller accounts real executed cycles.
func OverrideTicks(mode TicksMode, titleID, customValue uint64) (uint64, bool) {
	switch mode {
	case TicksAuto:
		ticks, ok := titleTicks[titleID]
		return ticks, ok
	case TicksCustom:
		return customValue, true
	default:
		return 0, false
	}
}
