package exportsmap

import (
	"testing"

	"github.com/pescan-dev/pescan/pkg/types"
)

func TestFindExportsByVAMultiValued(t *testing.T) {
	m := New()
	m.AddModule(0x10000, 0x1000, `C:\Windows\System32\ntdll.dll`, []types.ExportedFunc{
		{LibName: "ntdll", FuncName: "RtlAllocateHeap", RVA: 0x100},
		{LibName: "ntdll", FuncName: "HeapAlloc", RVA: 0x100}, // alias, same RVA
	})
	m.Freeze()

	set, ok := m.FindExportsByVA(0x10100)
	if !ok || len(set) != 2 {
		t.Fatalf("expected 2 aliased exports at shared VA, got %d ok=%v", len(set), ok)
	}

	base, ok := m.FindDLLBaseByFuncVA(0x10100)
	if !ok || base != 0x10000 {
		t.Fatalf("expected base 0x10000, got 0x%x ok=%v", base, ok)
	}

	if m.GetDLLPath(0x10000) != `C:\Windows\System32\ntdll.dll` {
		t.Fatalf("unexpected path: %s", m.GetDLLPath(0x10000))
	}
	if m.GetDLLPath(0xbad) != "" {
		t.Fatalf("expected empty path for unknown base")
	}
}

func TestFindExportsByVAMiss(t *testing.T) {
	m := New()
	m.AddModule(0x10000, 0x1000, `C:\Windows\System32\ntdll.dll`, nil)
	m.Freeze()

	if _, ok := m.FindExportsByVA(0x99999); ok {
		t.Fatalf("expected miss outside any registered DLL range")
	}
}

func TestIsInSystemDir(t *testing.T) {
	sys32 := `C:\Windows\System32`
	wow64 := `C:\Windows\SysWoW64`

	if !IsInSystemDir(`C:\WINDOWS\SYSTEM32\kernel32.dll`, sys32, wow64) {
		t.Fatalf("expected case-insensitive match under System32")
	}
	if IsInSystemDir(`C:\Users\evil\payload.dll`, sys32, wow64) {
		t.Fatalf("did not expect a match outside system directories")
	}
}

func TestShortName(t *testing.T) {
	if got := ShortName(`C:\Windows\System32\KERNEL32.DLL`); got != "kernel32" {
		t.Fatalf("got %q", got)
	}
}
