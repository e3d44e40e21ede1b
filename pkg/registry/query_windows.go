//go:build windows

package registry

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// ProcessQuerier implements AllocationQuerier against a live remote
// process handle via VirtualQueryEx.
type ProcessQuerier struct {
	Process windows.Handle
}

// NewProcessQuerier wraps an already-open process handle (PROCESS_QUERY_INFORMATION
// | PROCESS_VM_READ access is sufficient).
func NewProcessQuerier(proc windows.Handle) *ProcessQuerier {
	return &ProcessQuerier{Process: proc}
}

// AllocationBase returns the base address of the memory allocation
// backing addr, or 0 if addr lies outside any committed region.
func (q *ProcessQuerier) AllocationBase(addr uint64) uint64 {
	var mbi windows.MemoryBasicInformation
	err := windows.VirtualQueryEx(q.Process, uintptr(addr), &mbi, unsafe.Sizeof(mbi))
	if err != nil {
		return 0
	}
	if mbi.State != windows.MEM_COMMIT {
		return 0
	}
	return uint64(mbi.AllocationBase)
}
