//go:build !windows

package remote

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by every operation on this platform; live
// process introspection is Windows-only. The stub exists so pkg/iatscan
// and pkg/threadscan stay buildable and testable elsewhere against fakes.
var ErrUnsupported = errors.New("remote: live process introspection is only supported on windows")

// WinProcess is a non-functional stand-in on non-Windows builds.
type WinProcess struct{}

func OpenWinProcess(pid uint32) (*WinProcess, error) { return nil, ErrUnsupported }

func (p *WinProcess) PID() uint32                   { return 0 }
func (p *WinProcess) Bitness() (is64 bool, ok bool) { return false, false }

func (p *WinProcess) ReadMemory(ctx context.Context, addr uint64, size uint32) ([]byte, error) {
	return nil, ErrUnsupported
}

func (p *WinProcess) QueryProtection(ctx context.Context, addr uint64) (Protection, error) {
	return 0, ErrUnsupported
}

func (p *WinProcess) AllocationBase(addr uint64) uint64 { return 0 }

// ModuleSnapshot is one entry of a process's loaded-module list.
type ModuleSnapshot struct {
	Base uint64
	Size uint64
	Path string
}

func (p *WinProcess) EnumModules() ([]ModuleSnapshot, error) { return nil, ErrUnsupported }

func (p *WinProcess) EnumThreads() ([]uint32, error) { return nil, ErrUnsupported }

// WinThread is a non-functional stand-in on non-Windows builds.
type WinThread struct{}

func OpenWinThread(proc *WinProcess, tid uint32) (*WinThread, error) { return nil, ErrUnsupported }

func (t *WinThread) TID() uint32 { return 0 }

func (t *WinThread) SampleInfo(ctx context.Context) (ThreadInfo, error) {
	return ThreadInfo{}, ErrUnsupported
}

func (t *WinThread) Suspend(ctx context.Context) (ThreadContext, error) {
	return ThreadContext{}, ErrUnsupported
}

func (t *WinThread) Resume(ctx context.Context) error { return ErrUnsupported }

func (t *WinThread) Unwind(ctx context.Context, snapshot ThreadContext) ([]uint64, bool, error) {
	return nil, false, ErrUnsupported
}
