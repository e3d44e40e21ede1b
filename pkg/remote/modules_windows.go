//go:build windows

package remote

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// ModuleSnapshot is one entry of a process's loaded-module list, the raw
// material the Module Registry is populated from at the start of a scan
// pass.
type ModuleSnapshot struct {
	Base uint64
	Size uint64
	Path string
}

// EnumModules lists every module currently mapped into the process,
// via the same CreateToolhelp32Snapshot/Module32First/Next walk every
// Windows process-inspection tool uses.
func (p *WinProcess) EnumModules() ([]ModuleSnapshot, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, p.Pid)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(snap)

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var out []ModuleSnapshot
	err = windows.Module32First(snap, &entry)
	for err == nil {
		out = append(out, ModuleSnapshot{
			Base: uint64(entry.ModBaseAddr),
			Size: uint64(entry.ModBaseSize),
			Path: windows.UTF16ToString(entry.ExePath[:]),
		})
		err = windows.Module32Next(snap, &entry)
	}
	if err != nil && err != syscall.ERROR_NO_MORE_FILES {
		return out, err
	}
	return out, nil
}
