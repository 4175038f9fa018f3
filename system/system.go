// Package system assembles the emulated machine and drives it.
//
// The System owns the construction order of the subsystems (virtual clock,
// guest memory, CPU execution unit, kernel, shared status page), loads a
// guest image through the loader boundary, and runs the machine loop on one
// host goroutine. Other goroutines never touch machine state directly; they
// submit closures through RunTask and the loop executes them between
// scheduling slices.
package system

import (
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sarchlab/palmsim/coretiming"
	"github.com/sarchlab/palmsim/cpu"
	"github.com/sarchlab/palmsim/kernel"
	"github.com/sarchlab/palmsim/loader"
	"github.com/sarchlab/palmsim/memory"
	"github.com/sarchlab/palmsim/settings"
	"github.com/sarchlab/palmsim/sharedpage"
)

// ResultStatus classifies the outcome of a System operation.
type ResultStatus int

// System operation statuses.
const (
	ResultSuccess ResultStatus = iota
	ResultErrorNotInitialized
	ResultErrorGetLoader
	ResultErrorSystemMode
	ResultErrorLoader
	ResultErrorLoaderEncrypted
	ResultErrorLoaderInvalidFormat
	ResultShutdownRequested
	ResultFatalError
)

func (s ResultStatus) String() string {
	switch s {
	case ResultSuccess:
		return "success"
	case ResultErrorNotInitialized:
		return "system not initialized"
	case ResultErrorGetLoader:
		return "could not find a loader for the image"
	case ResultErrorSystemMode:
		return "could not determine the system mode"
	case ResultErrorLoader:
		return "loader failed"
	case ResultErrorLoaderEncrypted:
		return "image is encrypted"
	case ResultErrorLoaderInvalidFormat:
		return "image format is invalid"
	case ResultShutdownRequested:
		return "shutdown requested"
	case ResultFatalError:
		return "fatal error"
	default:
		return "unknown status"
	}
}

// loaderStatus maps a loader result onto a System result.
func loaderStatus(s loader.ResultStatus) ResultStatus {
	switch s {
	case loader.ResultSuccess:
		return ResultSuccess
	case loader.ResultErrorEncrypted:
		return ResultErrorLoaderEncrypted
	case loader.ResultErrorInvalidFormat, loader.ResultErrorUnsupportedArch:
		return ResultErrorLoaderInvalidFormat
	default:
		return ResultErrorLoader
	}
}

// State is the System lifecycle state.
type State int

// System lifecycle states.
const (
	StateUninitialized State = iota
	StateInitialized
	StateShuttingDown
)

// System is the assembled machine.
type System struct {
	cfg    *settings.Settings
	logger *log.Logger

	timing     *coretiming.Timing
	mem        *memory.Memory
	cpu        *cpu.Cpu
	kernel     *kernel.Kernel
	sharedPage *sharedpage.Handler

	state State

	// running gates the machine loop; tasks still run while paused.
	mu      sync.Mutex
	cond    *sync.Cond
	running bool
	tasks   []func()

	shutdownRequested atomic.Bool

	perf *PerfStats
}

// Option is a functional option for configuring the System.
type Option func(*System)

// WithLogger sets the System's logger. Subsystems built during Load inherit
// it.
func WithLogger(logger *log.Logger) Option {
	return func(s *System) {
		s.logger = logger
	}
}

// New creates an unloaded System configured by cfg. Subsystems are built
// when an image is loaded.
func New(cfg *settings.Settings, opts ...Option) *System {
	s := &System{
		cfg:    cfg,
		logger: log.New(os.Stderr, "system: ", 0),
		perf:   NewPerfStats(),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timing returns the virtual clock, or nil before Load.
func (s *System) Timing() *coretiming.Timing { return s.timing }

// Memory returns guest memory, or nil before Load.
func (s *System) Memory() *memory.Memory { return s.mem }

// CPU returns the execution unit, or nil before Load.
func (s *System) CPU() *cpu.Cpu { return s.cpu }

// Kernel returns the guest kernel, or nil before Load.
func (s *System) Kernel() *kernel.Kernel { return s.kernel }

// SharedPage returns the shared status page handler, or nil before Load.
func (s *System) SharedPage() *sharedpage.Handler { return s.sharedPage }

// Perf returns the performance counters.
func (s *System) Perf() *PerfStats { return s.perf }

// Load builds the machine and loads the image at path into it. On success
// the System is initialized and paused; call SetRunning(true) and RunLoop to
// execute. On failure the System stays uninitialized.
func (s *System) Load(path string) ResultStatus {
	ldr, err := loader.GetLoader(path)
	if err != nil {
		s.logger.Printf("no loader for %q: %v", path, err)
		return ResultErrorGetLoader
	}

	if _, status := ldr.LoadKernelSystemMode(); status != loader.ResultSuccess {
		s.logger.Printf("could not determine system mode: %v", status)
		return ResultErrorSystemMode
	}

	s.init()

	process, status := ldr.Load(s.kernel)
	if status != loader.ResultSuccess {
		s.logger.Printf("failed to load %q: %v", path, status)
		s.teardown()
		return loaderStatus(status)
	}

	s.attachProcess(process)
	s.applySettings(process.TitleID)

	s.state = StateInitialized
	s.shutdownRequested.Store(false)
	title, _ := ldr.ReadTitle()
	s.logger.Printf("loaded %q (title ID %016X)", title, process.TitleID)
	return ResultSuccess
}

// init builds the subsystems. Construction order matters: each subsystem
// receives its collaborators explicitly.
func (s *System) init() {
	s.timing = coretiming.New()
	s.mem = memory.NewMemory(memory.WithLogger(s.logger))
	s.cpu = cpu.New(s.mem, s.timing,
		cpu.WithFaultHandler(s),
		cpu.WithLogger(s.logger))
	s.kernel = kernel.New(s.timing, s.mem, s.cpu,
		kernel.WithLogger(s.logger))

	spOpts := []sharedpage.Option{}
	if s.cfg.InitClock == settings.InitClockFixed {
		spOpts = append(spOpts,
			sharedpage.WithBootTime(time.Unix(s.cfg.InitTime, 0)))
	}
	s.sharedPage = sharedpage.New(s.timing, spOpts...)
}

// attachProcess maps the shared status page into the process's address
// space through a kernel shared memory object.
func (s *System) attachProcess(process *kernel.Process) {
	block, _ := s.kernel.CreateSharedMemory(
		"shared_page", memory.PageSize, s.sharedPage.Raw())
	block.MapInto(process.PageTable, memory.SharedPageVAddr)
}

// applySettings pushes the user configuration into the built subsystems.
func (s *System) applySettings(titleID uint64) {
	var mode cpu.TicksMode
	switch s.cfg.TicksMode {
	case settings.TicksModeAccurate:
		mode = cpu.TicksAccurate
	case settings.TicksModeCustom:
		mode = cpu.TicksCustom
	default:
		mode = cpu.TicksAuto
	}
	s.cpu.SetTickAccounting(mode, titleID, s.cfg.CustomTicks)

	s.sharedPage.SetBatteryState(
		s.cfg.BatteryLevel, s.cfg.AdapterConnected, s.cfg.BatteryCharging)
	s.sharedPage.SetWifiLinkLevel(s.cfg.WifiLinkLevel)
	if s.cfg.NetworkEnabled {
		s.sharedPage.SetNetworkState(sharedpage.NetworkInternet)
	} else {
		s.sharedPage.SetNetworkState(sharedpage.NetworkDisabled)
	}
	s.sharedPage.Set3DSlider(s.cfg.Factor3D)
	s.sharedPage.SetMenuTitleID(titleID)
}

// IsPoweredOn reports whether a machine is built and loaded.
func (s *System) IsPoweredOn() bool {
	return s.state == StateInitialized
}

// SetRunning pauses or resumes the machine loop. Safe to call from any
// goroutine.
func (s *System) SetRunning(running bool) {
	s.mu.Lock()
	s.running = running
	s.mu.Unlock()
	s.cond.Broadcast()
}

// IsRunning reports whether the machine loop is unpaused.
func (s *System) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RequestShutdown asks the machine loop to exit at the next slice boundary.
// Safe to call from any goroutine.
func (s *System) RequestShutdown() {
	s.shutdownRequested.Store(true)
	s.cond.Broadcast()
}

// RunTask submits a closure for execution on the machine thread. Tasks run
// between scheduling slices, and also while the loop is paused. Safe to call
// from any goroutine.
func (s *System) RunTask(task func()) {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	s.cond.Broadcast()
}

// drainTasks runs queued tasks on the caller's goroutine.
func (s *System) drainTasks() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	for _, task := range tasks {
		task()
	}
}

// waitRunnable blocks until the loop is unpaused, a task is queued, or
// shutdown is requested.
func (s *System) waitRunnable() {
	s.mu.Lock()
	for !s.running && len(s.tasks) == 0 && !s.shutdownRequested.Load() {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// RunLoop drives the machine until shutdown is requested. It must run on
// exactly one goroutine; that goroutine becomes the machine thread.
func (s *System) RunLoop() ResultStatus {
	if s.state != StateInitialized {
		return ResultErrorNotInitialized
	}

	for !s.shutdownRequested.Load() {
		s.waitRunnable()
		s.drainTasks()
		if s.shutdownRequested.Load() {
			break
		}
		if !s.IsRunning() {
			continue
		}
		s.RunSlice()
	}

	s.state = StateShuttingDown
	s.Shutdown()
	return ResultShutdownRequested
}

// RunSlice executes one scheduling slice: run guest code (or idle the clock
// when no thread is runnable), fire due events, and reschedule.
func (s *System) RunSlice() {
	start := time.Now()
	ticksBefore := s.timing.GetTicks()

	if s.kernel.CurrentThread() == nil {
		s.kernel.Reschedule()
	}
	if s.kernel.HasRunnableThread() {
		s.cpu.Run()
	} else {
		s.timing.Idle()
	}
	s.timing.Advance()
	s.kernel.Reschedule()

	s.perf.AddSlice(
		s.timing.GetTicks()-ticksBefore, time.Since(start))
}

// Shutdown tears the machine down in reverse construction order. Idempotent.
func (s *System) Shutdown() {
	if s.sharedPage != nil {
		s.sharedPage.Shutdown()
	}
	if s.kernel != nil {
		s.kernel.Shutdown()
	}
	s.teardown()
	s.state = StateUninitialized
	s.logger.Printf("shutdown complete")
}

func (s *System) teardown() {
	s.sharedPage = nil
	s.kernel = nil
	s.cpu = nil
	s.mem = nil
	s.timing = nil
}

// HandleFault receives unrecoverable guest faults from the execution unit.
// These indicate an emulation gap, not a guest bug, so the machine cannot
// usefully continue.
func (s *System) HandleFault(pc uint32, kind cpu.FaultKind) {
	panic(fmt.Sprintf(
		"unrecoverable guest fault at PC=0x%08X: %v", pc, kind))
}
