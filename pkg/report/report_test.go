package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pescan-dev/pescan/pkg/exportsmap"
	"github.com/pescan-dev/pescan/pkg/registry"
	"github.com/pescan-dev/pescan/pkg/types"
)

func TestBuildHooksList(t *testing.T) {
	r := types.NewIATScanReport(0x1000, 0x2000, "victim.exe")
	r.NotCovered.Insert(0x20, 0xdeadbeef)
	r.NotCovered.Insert(0x10, 0xcafe)
	r.StoredFunc = types.NewImportsCollection()
	r.StoredFunc.ThunkToFunc[0x10] = &types.ExportedFunc{LibName: "kernel32", FuncName: "HeapAlloc"}

	doc := BuildHooksList(r)
	if len(doc.HooksList) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(doc.HooksList))
	}
	if doc.HooksList[0].ThunkRVA != "10" || doc.HooksList[0].FuncName != "kernel32.HeapAlloc" {
		t.Fatalf("unexpected first entry: %+v", doc.HooksList[0])
	}
	if doc.HooksList[1].ThunkRVA != "20" || doc.HooksList[1].FuncName != "" {
		t.Fatalf("unexpected second entry: %+v", doc.HooksList[1])
	}
}

func TestWriteHooksListJSONEmptyIsSkipped(t *testing.T) {
	r := types.NewIATScanReport(0x1000, 0x2000, "victim.exe")
	var buf bytes.Buffer
	wrote, err := WriteHooksListJSON(&buf, r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wrote || buf.Len() != 0 {
		t.Fatalf("expected no output for an empty not-covered set")
	}
}

func TestBuildThreadScanDocSuspAddrVsReturnAddr(t *testing.T) {
	r := types.NewThreadScanReport(42)
	r.SuspAddr = 0x7fffdead
	r.ModuleSuspAddr = true
	doc := BuildThreadScanDoc(r, types.JSONBasic)
	if doc.ThreadScan.SuspAddr == "" || doc.ThreadScan.SuspReturnAddr != "" {
		t.Fatalf("expected susp_addr, not susp_return_addr, got %+v", doc.ThreadScan)
	}

	r2 := types.NewThreadScanReport(43)
	r2.SuspAddr = 0x7fffdead
	r2.ModuleSuspAddr = false
	doc2 := BuildThreadScanDoc(r2, types.JSONBasic)
	if doc2.ThreadScan.SuspReturnAddr == "" || doc2.ThreadScan.SuspAddr != "" {
		t.Fatalf("expected susp_return_addr, not susp_addr, got %+v", doc2.ThreadScan)
	}
}

func TestBuildThreadScanDocHidesFramesAtBasicDetailUnlessForced(t *testing.T) {
	r := types.NewThreadScanReport(1)
	r.StackPtr = 0x1000
	r.Details.CallStack = []uint64{0x10, 0x20}
	doc := BuildThreadScanDoc(r, types.JSONBasic)
	if doc.ThreadScan.ThreadInfo.Callstack.Frames != nil {
		t.Fatalf("expected frames hidden at basic detail with no forcing indicator")
	}

	r.Raise(types.IndicatorSusCallstackSHC)
	doc2 := BuildThreadScanDoc(r, types.JSONBasic)
	if len(doc2.ThreadScan.ThreadInfo.Callstack.Frames) != 2 {
		t.Fatalf("expected frames forced visible by SUS_CALLSTACK_SHC")
	}
}

func TestIndicatorStringsFixedOrder(t *testing.T) {
	set := map[types.Indicator]struct{}{
		types.IndicatorSusCallstackCorrupt: {},
		types.IndicatorSusStart:            {},
	}
	got := indicatorStrings(set)
	want := []string{"SUS_START", "SUS_CALLSTACK_CORRUPT"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestWriteNotCoveredCSV(t *testing.T) {
	reg := registry.New(nil)
	reg.Add(types.ModuleDescriptor{Base: 0x50000, Size: 0x1000, Path: `c:\users\evil\payload.dll`, Suspicious: true})
	reg.Freeze()
	exp := exportsmap.New()
	exp.AddModule(0x50000, 0x1000, `c:\users\evil\payload.dll`, nil)
	exp.Freeze()

	r := types.NewIATScanReport(0x1000, 0x2000, "victim.exe")
	r.NotCovered.Insert(0x30, 0x50010)
	r.StoredFunc = types.NewImportsCollection()
	r.StoredFunc.ThunkToFunc[0x30] = &types.ExportedFunc{LibName: "kernel32", FuncName: "HeapAlloc"}

	var buf bytes.Buffer
	wrote, err := WriteNotCoveredCSV(&buf, r, reg, exp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !wrote {
		t.Fatalf("expected output to be written")
	}
	line := buf.String()
	if !strings.HasPrefix(line, "30;kernel32.HeapAlloc->") {
		t.Fatalf("unexpected line prefix: %q", line)
	}
	if !strings.Contains(line, "payload.(unknown_func)") {
		t.Fatalf("expected unknown-func fallback naming, got %q", line)
	}
	if !strings.HasSuffix(strings.TrimRight(line, "\n"), ";1") {
		t.Fatalf("expected trailing suspicious flag of 1, got %q", line)
	}
}
