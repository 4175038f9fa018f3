package kernel

import (
	"encoding/binary"

	"github.com/sarchlab/palmsim/memory"
)

// Config memory field offsets. The page is a fixed-layout region of
// firmware and kernel version constants mapped read-only into every guest
// address space, sibling of the shared status page.
const (
	offKernelVersionMin = 0x02
	offKernelVersionMaj = 0x03
	offNSTitleID        = 0x08
	offSysCoreVer       = 0x10
	offUnitInfo         = 0x14
	offPrevFirm         = 0x17
	offCtrSdkVer        = 0x18
	offFirmVersionMin   = 0x62
	offFirmVersionMaj   = 0x63
	offFirmSysCoreVer   = 0x64
	offFirmCtrSdkVer    = 0x68
)

// Config memory constants, matching the retail firmware the core claims to
// be.
const (
	kernelVersionMin = 0x34
	kernelVersionMaj = 0x2
	nsTitleID        = 0x0004013000008002
	sysCoreVer       = 0x2
	unitInfo         = 0x1 // retail unit
	prevFirm         = 0x1
	ctrSdkVer        = 0x0000F297
)

// buildConfigMem assembles the config memory page.
func buildConfigMem() []byte {
	page := make([]byte, memory.PageSize)

	page[offKernelVersionMin] = kernelVersionMin
	page[offKernelVersionMaj] = kernelVersionMaj
	binary.LittleEndian.PutUint64(page[offNSTitleID:], nsTitleID)
	binary.LittleEndian.PutUint32(page[offSysCoreVer:], sysCoreVer)
	page[offUnitInfo] = unitInfo
	page[offPrevFirm] = prevFirm
	binary.LittleEndian.PutUint32(page[offCtrSdkVer:], ctrSdkVer)

	// The firmware mirrors the kernel's version fields.
	page[offFirmVersionMin] = kernelVersionMin
	page[offFirmVersionMaj] = kernelVersionMaj
	binary.LittleEndian.PutUint32(page[offFirmSysCoreVer:], sysCoreVer)
	binary.LittleEndian.PutUint32(page[offFirmCtrSdkVer:], ctrSdkVer)

	return page
}
