package kernel

import "github.com/sarchlab/palmsim/memory"

// Process is one guest program instance. It owns an address space; threads
// of the same process share it.
type Process struct {
	kernel *Kernel

	name      string
	ProcessID uint32
	TitleID   uint64

	// PageTable is the process's address space. The config memory and
	// shared status pages are mapped into it at their fixed addresses.
	PageTable *memory.PageTable
}

// Name returns the process name.
func (p *Process) Name() string { return p.name }

// Kind returns KindProcess.
func (p *Process) Kind() ObjectKind { return KindProcess }

// CreateProcess creates a process with a fresh address space, maps the
// config memory page, and registers the process in the handle table. The
// caller maps code/data regions and the shared status page.
func (k *Kernel) CreateProcess(name string, titleID uint64) (*Process, Handle) {
	p := &Process{
		kernel:    k,
		name:      name,
		ProcessID: k.nextProcessID,
		TitleID:   titleID,
		PageTable: memory.NewPageTable(),
	}
	k.nextProcessID++
	p.PageTable.MapBacked(memory.ConfigMemVAddr, k.configMem)

	h, _ := k.handleTable.Create(p)
	if k.currentProcess == nil {
		k.currentProcess = p
		k.mem.SetCurrentPageTable(p.PageTable)
		k.cpu.PageTableChanged()
	}
	return p, h
}
