package registry

import (
	"testing"

	"github.com/pescan-dev/pescan/pkg/types"
)

type fakeQuerier struct{ base uint64 }

func (f fakeQuerier) AllocationBase(addr uint64) uint64 { return f.base }

func TestFindModuleContaining(t *testing.T) {
	r := New(nil)
	r.Add(types.ModuleDescriptor{Base: 0x10000, Size: 0x2000, Path: `C:\Windows\System32\ntdll.dll`})
	r.Add(types.ModuleDescriptor{Base: 0x20000, Size: 0x1000, Path: `C:\Windows\System32\kernel32.dll`})
	r.Freeze()

	m, ok := r.FindModuleContaining(0x10500)
	if !ok || m.Path != `C:\Windows\System32\ntdll.dll` {
		t.Fatalf("expected ntdll hit, got %+v ok=%v", m, ok)
	}

	m, ok = r.FindModuleContaining(0x20fff)
	if !ok || m.Path != `C:\Windows\System32\kernel32.dll` {
		t.Fatalf("expected kernel32 hit, got %+v ok=%v", m, ok)
	}

	_, ok = r.FindModuleContaining(0x21000)
	if ok {
		t.Fatalf("expected miss just past kernel32's range")
	}
}

func TestFindModuleContainingFallsBackToAllocationQuerier(t *testing.T) {
	r := New(fakeQuerier{base: 0x90000})
	r.Add(types.ModuleDescriptor{Base: 0x10000, Size: 0x1000})
	r.Freeze()

	m, ok := r.FindModuleContaining(0x95000)
	if !ok || m.Base != 0x90000 || m.Size != 0 {
		t.Fatalf("expected allocation-base fallback hit, got %+v ok=%v", m, ok)
	}
}

func TestFindModuleContainingInvalidAddress(t *testing.T) {
	r := New(fakeQuerier{base: 0})
	r.Add(types.ModuleDescriptor{Base: 0x10000, Size: 0x1000})
	r.Freeze()

	_, ok := r.FindModuleContaining(0xdeadbeef)
	if ok {
		t.Fatalf("expected invalid address to be reported as a miss")
	}
}

func TestAddRejectsZeroBase(t *testing.T) {
	r := New(nil)
	r.Add(types.ModuleDescriptor{Base: 0, Size: 0x1000})
	r.Freeze()
	if len(r.Snapshot()) != 0 {
		t.Fatalf("zero-base module must not be registered")
	}
}
