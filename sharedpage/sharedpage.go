// Package sharedpage maintains the guest-visible shared status page: a
// fixed-layout region mapped read-only into every guest process that
// exposes wall-clock time, battery and adapter state, and network status.
//
// The time fields are double-buffered. The refresh event writes the
// inactive slot and then bumps the generation counter, so guest code that
// reads "the slot selected by the counter's parity" always observes a
// complete timestamp, without locks. Only the counter is host-atomic; the
// slot bytes follow the guest protocol rather than the Go memory model, so
// the race detector flags cross-goroutine slot reads. The tear-free
// guarantee rests on the counter-recheck retry in ReadDateTime.
//
// The byte layout is guest-facing ABI and must stay bit-stable.
package sharedpage

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"time"

	"github.com/sarchlab/palmsim/coretiming"
	"github.com/sarchlab/palmsim/memory"
)

// Field offsets within the page.
const (
	offDateTimeCounter = 0x00
	offRunningHW       = 0x04
	offDateTime0       = 0x20
	offDateTime1       = 0x40
	offMacAddress      = 0x60
	offWifiLinkLevel   = 0x66
	offNetworkState    = 0x67
	off3DSlider        = 0x80
	off3DLedState      = 0x84
	offBatteryState    = 0x85
	offUnknownValue    = 0x86
	offMenuTitleID     = 0xA0
	offActiveMenuID    = 0xA8
)

// DateTime slot field offsets, relative to the slot.
const (
	dtDateTime    = 0x00
	dtUpdateTick  = 0x08
	dtCoefficient = 0x10
	dtTickOffset  = 0x18
)

// NetworkState is the guest-visible network status byte.
type NetworkState uint8

// Network states.
const (
	NetworkEnabled  NetworkState = 0
	NetworkInternet NetworkState = 2
	NetworkLocal    NetworkState = 3
	NetworkDisabled NetworkState = 7
)

// baseConsoleTime is the console time at the auxiliary epoch: milliseconds
// between Jan 1 1900 (the console's time origin) and Jan 1 2000.
const baseConsoleTime = 3155673600_000

// refreshPeriodMs is the guest-time interval between time refreshes.
const refreshPeriodMs = 60 * 60 * 1000

// runningHWProduct marks the page as produced by retail hardware.
const runningHWProduct = 0x1

// DateTime is one decoded timestamp slot.
type DateTime struct {
	// ConsoleTime is milliseconds since Jan 1 1900, local time.
	ConsoleTime uint64
	// UpdateTick is the virtual-clock tick at which the slot was written.
	UpdateTick uint64
	// Coefficient converts ticks to seconds.
	Coefficient uint64
	TickOffset  uint64
}

// Handler owns the shared page's backing bytes and its refresh event.
type Handler struct {
	timing *coretiming.Timing
	raw    []byte

	counter     atomic.Uint32
	updateEvent *coretiming.EventType
	bootTime    time.Time
}

// Option is a functional option for configuring the Handler.
type Option func(*Handler)

// WithBootTime fixes the wall-clock origin instead of capturing the host
// clock, for a fixed init clock setting and for tests.
func WithBootTime(t time.Time) Option {
	return func(h *Handler) {
		h.bootTime = t
	}
}

// New creates the shared page, writes its initial field values, publishes
// the first timestamp, and arms the hourly refresh event.
func New(timing *coretiming.Timing, opts ...Option) *Handler {
	h := &Handler{
		timing:   timing,
		raw:      make([]byte, memory.PageSize),
		bootTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.raw[offRunningHW] = runningHWProduct
	h.raw[offUnknownValue] = 0x1
	// Fixed plausible hardware identity; no secure element is present.
	h.SetMacAddress([6]byte{0x40, 0xF4, 0x07, 0x00, 0x00, 0x00})
	h.SetWifiLinkLevel(3)
	h.SetNetworkState(NetworkInternet)

	// The counter starts at zero, selecting slot 0; fill it before guest
	// code can look.
	h.writeSlot(offDateTime0)

	h.updateEvent = timing.RegisterEvent("sharedpage_update_time", h.onUpdateTime)
	timing.ScheduleEvent(coretiming.MsToTicks(refreshPeriodMs), h.updateEvent, 0)
	return h
}

// Raw returns the page's backing bytes for mapping into guest address
// spaces.
func (h *Handler) Raw() []byte {
	return h.raw
}

// Shutdown removes the pending refresh so no callback fires after the
// handler is torn down.
func (h *Handler) Shutdown() {
	h.timing.UnscheduleEvent(h.updateEvent, 0)
}

// onUpdateTime is the hourly refresh: write the inactive slot, publish it
// by bumping the counter, re-arm minus the observed lateness.
func (h *Handler) onUpdateTime(_ uint64, ticksLate int64) {
	c := h.counter.Load()
	if c%2 == 0 {
		h.writeSlot(offDateTime1)
	} else {
		h.writeSlot(offDateTime0)
	}
	h.counter.Store(c + 1)
	binary.LittleEndian.PutUint32(h.raw[offDateTimeCounter:], c+1)

	h.timing.ScheduleEvent(
		coretiming.MsToTicks(refreshPeriodMs)-ticksLate, h.updateEvent, 0)
}

func (h *Handler) writeSlot(slot int) {
	binary.LittleEndian.PutUint64(h.raw[slot+dtDateTime:], h.systemTime())
	binary.LittleEndian.PutUint64(h.raw[slot+dtUpdateTick:], h.timing.GetTicks())
	binary.LittleEndian.PutUint64(h.raw[slot+dtCoefficient:], coretiming.BaseClockRate)
	binary.LittleEndian.PutUint64(h.raw[slot+dtTickOffset:], 0)
}

// systemTime converts the boot-time origin plus elapsed virtual time into
// console time: milliseconds since Jan 1 1900, local time. The
// daylight-saving adjustment is a best-effort host heuristic.
func (h *Handler) systemTime() uint64 {
	elapsed := time.Duration(h.timing.GetGlobalTimeUs()) * time.Microsecond
	now := h.bootTime.Add(elapsed)

	epoch2000 := time.Date(2000, 1, 1, 0, 0, 0, 0, now.Location())
	consoleTime := baseConsoleTime + now.Sub(epoch2000).Milliseconds()
	if now.IsDST() {
		consoleTime += 60 * 60 * 1000
	}
	return uint64(consoleTime)
}

// ReadDateTime returns the current timestamp slot, retrying if a refresh
// publishes a new slot mid-read. Safe to call concurrently with refreshes.
func (h *Handler) ReadDateTime() DateTime {
	for {
		c := h.counter.Load()
		slot := offDateTime0
		if c%2 != 0 {
			slot = offDateTime1
		}
		dt := DateTime{
			ConsoleTime: binary.LittleEndian.Uint64(h.raw[slot+dtDateTime:]),
			UpdateTick:  binary.LittleEndian.Uint64(h.raw[slot+dtUpdateTick:]),
			Coefficient: binary.LittleEndian.Uint64(h.raw[slot+dtCoefficient:]),
			TickOffset:  binary.LittleEndian.Uint64(h.raw[slot+dtTickOffset:]),
		}
		if h.counter.Load() == c {
			return dt
		}
	}
}

// Counter returns the timestamp generation counter.
func (h *Handler) Counter() uint32 {
	return h.counter.Load()
}

// SetMacAddress sets the wireless MAC address bytes.
func (h *Handler) SetMacAddress(mac [6]byte) {
	copy(h.raw[offMacAddress:], mac[:])
}

// SetWifiLinkLevel sets the wireless signal strength (0-3).
func (h *Handler) SetWifiLinkLevel(level uint8) {
	h.raw[offWifiLinkLevel] = level
}

// SetNetworkState sets the guest-visible network status.
func (h *Handler) SetNetworkState(state NetworkState) {
	h.raw[offNetworkState] = uint8(state)
}

// Set3DSlider sets the stereoscopy slider position (0.0-1.0).
func (h *Handler) Set3DSlider(position float32) {
	binary.LittleEndian.PutUint32(h.raw[off3DSlider:], math.Float32bits(position))
}

// Set3DLed sets the stereoscopy indicator LED state.
func (h *Handler) Set3DLed(state uint8) {
	h.raw[off3DLedState] = state
}

// SetBatteryState packs the battery byte: bit 0 adapter connected, bit 1
// charging, bits 2-4 charge level (0-5). The caller pre-validates ranges.
func (h *Handler) SetBatteryState(level uint8, adapterConnected, charging bool) {
	var b uint8
	if adapterConnected {
		b |= 1 << 0
	}
	if charging {
		b |= 1 << 1
	}
	b |= (level & 0x7) << 2
	h.raw[offBatteryState] = b
}

// SetMenuTitleID sets the home menu title identifiers.
func (h *Handler) SetMenuTitleID(titleID uint64) {
	binary.LittleEndian.PutUint64(h.raw[offMenuTitleID:], titleID)
	binary.LittleEndian.PutUint64(h.raw[offActiveMenuID:], titleID)
}
