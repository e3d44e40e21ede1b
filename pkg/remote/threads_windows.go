//go:build windows

package remote

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// EnumThreads lists every thread ID currently owned by the process, via
// a Toolhelp32 thread snapshot filtered down to this process's PID (the
// snapshot is always system-wide; there is no per-process thread
// snapshot flag).
func (p *WinProcess) EnumThreads() ([]uint32, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPTHREAD, 0)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(snap)

	var entry windows.ThreadEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var out []uint32
	err = windows.Thread32First(snap, &entry)
	for err == nil {
		if entry.OwnerProcessID == p.Pid {
			out = append(out, entry.ThreadID)
		}
		err = windows.Thread32Next(snap, &entry)
	}
	if err != nil && err != syscall.ERROR_NO_MORE_FILES {
		return out, err
	}
	return out, nil
}
