package iatscan

import (
	"testing"

	"github.com/pescan-dev/pescan/pkg/exportsmap"
	"github.com/pescan-dev/pescan/pkg/registry"
	"github.com/pescan-dev/pescan/pkg/types"
)

func TestDetectBitness(t *testing.T) {
	buf := make([]byte, 0x200)
	buf[0x3c] = 0x80 // e_lfanew = 0x80
	buf[0x84] = 0x64 // Machine field little-endian 0x8664
	buf[0x85] = 0x86
	is64, ok := detectBitness(buf)
	if !ok || !is64 {
		t.Fatalf("expected amd64 detection, got is64=%v ok=%v", is64, ok)
	}

	buf[0x84] = 0x4c
	buf[0x85] = 0x01
	is64, ok = detectBitness(buf)
	if !ok || is64 {
		t.Fatalf("expected i386 detection, got is64=%v ok=%v", is64, ok)
	}
}

func TestDetectBitnessTooShort(t *testing.T) {
	if _, ok := detectBitness(make([]byte, 4)); ok {
		t.Fatalf("expected ok=false on a truncated buffer")
	}
}

func TestReadThunkAt(t *testing.T) {
	buf := make([]byte, 0x100)
	buf[0x20] = 0xef
	buf[0x21] = 0xbe
	buf[0x22] = 0xad
	buf[0x23] = 0xde
	val, ok := readThunkAt(buf, 0x20, false)
	if !ok || val != 0xdeadbeef {
		t.Fatalf("got 0x%x ok=%v", val, ok)
	}
	if _, ok := readThunkAt(buf, 0xfc, true); ok {
		t.Fatalf("expected out-of-bounds read to fail")
	}
}

func TestIsDotNetEntryStub(t *testing.T) {
	cases := []struct {
		f    types.ExportedFunc
		want bool
	}{
		{types.ExportedFunc{LibName: "mscoree", FuncName: "_CorExeMain"}, true},
		{types.ExportedFunc{LibName: "mscoree", FuncName: "_CorDllMain"}, true},
		{types.ExportedFunc{LibName: "mscoree", FuncName: "OtherFunc"}, false},
		{types.ExportedFunc{LibName: "kernel32", FuncName: "_CorExeMain"}, false},
	}
	for _, c := range cases {
		if got := isDotNetEntryStub(c.f); got != c.want {
			t.Errorf("isDotNetEntryStub(%+v) = %v, want %v", c.f, got, c.want)
		}
	}
}

func newTestScanner() (*Scanner, *registry.Registry, *exportsmap.Map) {
	reg := registry.New(nil)
	exp := exportsmap.New()
	s := New(nil, reg, exp, types.FilterListed, `c:\windows\system32`, `c:\windows\syswow64`, nil)
	return s, reg, exp
}

func TestIsValidFuncFilledSameDLL(t *testing.T) {
	s, _, exp := newTestScanner()
	exp.AddModule(0x10000, 0x1000, `c:\windows\system32\kernel32.dll`, []types.ExportedFunc{
		{LibName: "kernel32", FuncName: "HeapAlloc", RVA: 0x10},
	})
	exp.Freeze()

	defined := types.ExportedFunc{LibName: "kernel32", FuncName: "HeapAlloc"}
	possible := types.ExportedFunc{LibName: "kernel32", FuncName: "HeapAlloc"}
	if !s.isValidFuncFilled(0x10010, defined, possible) {
		t.Fatalf("expected same-dll same-name fill to be valid")
	}
}

func TestIsValidFuncFilledSystemRedirect(t *testing.T) {
	s, _, exp := newTestScanner()
	exp.AddModule(0x20000, 0x1000, `c:\windows\system32\kernelbase.dll`, []types.ExportedFunc{
		{LibName: "kernelbase", FuncName: "HeapAlloc", RVA: 0x30},
	})
	exp.Freeze()

	defined := types.ExportedFunc{LibName: "kernel32", FuncName: "HeapAlloc"}
	possible := types.ExportedFunc{LibName: "kernelbase", FuncName: "HeapAlloc"}
	if !s.isValidFuncFilled(0x20030, defined, possible) {
		t.Fatalf("expected a redirect into a system DLL to be valid")
	}
}

func TestIsValidFuncFilledRejectsNonSystemRedirect(t *testing.T) {
	s, _, exp := newTestScanner()
	exp.AddModule(0x30000, 0x1000, `c:\users\evil\payload.dll`, []types.ExportedFunc{
		{LibName: "payload", FuncName: "HeapAlloc", RVA: 0x40},
	})
	exp.Freeze()

	defined := types.ExportedFunc{LibName: "kernel32", FuncName: "HeapAlloc"}
	possible := types.ExportedFunc{LibName: "payload", FuncName: "HeapAlloc"}
	if s.isValidFuncFilled(0x30040, defined, possible) {
		t.Fatalf("expected a redirect into a non-system DLL to be rejected")
	}
}

func TestIsValidFuncFilledRejectsNameMismatch(t *testing.T) {
	s, _, _ := newTestScanner()
	defined := types.ExportedFunc{LibName: "kernel32", FuncName: "HeapAlloc"}
	possible := types.ExportedFunc{LibName: "kernel32", FuncName: "HeapFree"}
	if s.isValidFuncFilled(0x1, defined, possible) {
		t.Fatalf("expected a function-name mismatch to be rejected regardless of DLL")
	}
}

func TestFilterResultsListedDropsSystemHooks(t *testing.T) {
	s, reg, exp := newTestScanner()
	reg.Add(types.ModuleDescriptor{Base: 0x40000, Size: 0x1000, Path: `c:\windows\system32\ntdll.dll`})
	reg.Add(types.ModuleDescriptor{Base: 0x50000, Size: 0x1000, Path: `c:\users\evil\payload.dll`, Suspicious: true})
	reg.Freeze()
	exp.AddModule(0x40000, 0x1000, `c:\windows\system32\ntdll.dll`, nil)
	exp.AddModule(0x50000, 0x1000, `c:\users\evil\payload.dll`, nil)
	exp.Freeze()

	notCovered := types.NewImpsNotCovered()
	notCovered.Insert(0x10, 0x40010) // resolves into a system dll -> dropped
	notCovered.Insert(0x20, 0x50010) // resolves into a non-system dll -> kept
	notCovered.Insert(0x30, 0xdead)  // resolves into nothing -> kept

	report := types.NewIATScanReport(0x1000, 0x1000, "victim.exe")
	s.filterResults(notCovered, report)

	if report.CountHooked() != 2 {
		t.Fatalf("expected 2 surviving hooks, got %d", report.CountHooked())
	}
}

func TestFilterResultsCleanSysFilteredKeepsSuspiciousModuleHooks(t *testing.T) {
	s, reg, exp := newTestScanner()
	s.Filter = types.FilterCleanSysFiltered
	reg.Add(types.ModuleDescriptor{Base: 0x40000, Size: 0x1000, Path: `c:\windows\system32\ntdll.dll`, Suspicious: true})
	reg.Freeze()
	exp.AddModule(0x40000, 0x1000, `c:\windows\system32\ntdll.dll`, nil)
	exp.Freeze()

	notCovered := types.NewImpsNotCovered()
	notCovered.Insert(0x10, 0x40010)

	report := types.NewIATScanReport(0x1000, 0x1000, "victim.exe")
	s.filterResults(notCovered, report)

	if report.CountHooked() != 1 {
		t.Fatalf("expected the hook into a flagged-suspicious system module to survive, got %d", report.CountHooked())
	}
}
