package threadscan

import (
	"context"
	"testing"

	"github.com/pescan-dev/pescan/pkg/exportsmap"
	"github.com/pescan-dev/pescan/pkg/registry"
	"github.com/pescan-dev/pescan/pkg/remote"
	"github.com/pescan-dev/pescan/pkg/types"
)

type fakeProcess struct {
	protections map[uint64]remote.Protection
}

func (p *fakeProcess) ReadMemory(ctx context.Context, addr uint64, size uint32) ([]byte, error) {
	return make([]byte, size), nil
}
func (p *fakeProcess) QueryProtection(ctx context.Context, addr uint64) (remote.Protection, error) {
	if prot, ok := p.protections[addr]; ok {
		return prot, nil
	}
	return remote.ProtExecuteRead, nil
}
func (p *fakeProcess) AllocationBase(addr uint64) uint64      { return 0 }
func (p *fakeProcess) PID() uint32                            { return 1234 }
func (p *fakeProcess) Bitness() (is64 bool, ok bool)          { return true, true }

type fakeThread struct {
	tid      uint32
	snapshot remote.ThreadContext
	frames   []uint64
}

func (t *fakeThread) TID() uint32 { return t.tid }
func (t *fakeThread) SampleInfo(ctx context.Context) (remote.ThreadInfo, error) {
	return remote.ThreadInfo{State: remote.ThreadStateRunning}, nil
}
func (t *fakeThread) Suspend(ctx context.Context) (remote.ThreadContext, error) {
	return t.snapshot, nil
}
func (t *fakeThread) Resume(ctx context.Context) error { return nil }
func (t *fakeThread) Unwind(ctx context.Context, snapshot remote.ThreadContext) ([]uint64, bool, error) {
	return t.frames, false, nil
}

func newTestFixture() (*Scanner, *registry.Registry, *exportsmap.Map) {
	reg := registry.New(nil)
	reg.Add(types.ModuleDescriptor{Base: 0x10000, Size: 0x1000, Path: `C:\Windows\System32\ntdll.dll`})
	reg.Freeze()
	exp := exportsmap.New()
	exp.AddModule(0x10000, 0x1000, `C:\Windows\System32\ntdll.dll`, []types.ExportedFunc{
		{LibName: "ntdll", FuncName: "NtWaitForSingleObject", RVA: 0x200},
	})
	exp.Freeze()
	proc := &fakeProcess{protections: map[uint64]remote.Protection{}}
	s := New(proc, reg, exp, nil, nil)
	return s, reg, exp
}

func TestScanThreadCleanInModule(t *testing.T) {
	s, _, _ := newTestFixture()
	th := &fakeThread{tid: 1, snapshot: remote.ThreadContext{IP: 0x10100, SP: 0x20000, Entry: 0x10100}, frames: []uint64{0x10150}}
	report, err := s.ScanThread(context.Background(), th, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != types.StatusNotSuspicious {
		t.Fatalf("expected clean thread to be NOT_SUSPICIOUS, got %v (indicators %v)", report.Status, report.Indicators)
	}
}

func TestScanThreadSuspiciousIP(t *testing.T) {
	s, _, _ := newTestFixture()
	th := &fakeThread{tid: 2, snapshot: remote.ThreadContext{IP: 0x99999, SP: 0x20000, Entry: 0x10100}}
	report, err := s.ScanThread(context.Background(), th, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Has(types.IndicatorSusIP) {
		t.Fatalf("expected SUS_IP for an IP outside any module")
	}
	if report.Status != types.StatusSuspicious {
		t.Fatalf("expected SUSPICIOUS status, got %v", report.Status)
	}
	if report.SuspAddr != 0x99999 {
		t.Fatalf("expected susp_addr to be the out-of-module IP, got 0x%x", report.SuspAddr)
	}
}

func TestScanThreadShellcodeCandidateFrame(t *testing.T) {
	s, _, _ := newTestFixture()
	s.Process.(*fakeProcess).protections[0x30000] = remote.ProtExecuteReadWrite
	th := &fakeThread{tid: 3, snapshot: remote.ThreadContext{IP: 0x10100, SP: 0x20000, Entry: 0x10100}, frames: []uint64{0x30000}}
	report, err := s.ScanThread(context.Background(), th, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Has(types.IndicatorSusCallstackSHC) {
		t.Fatalf("expected SUS_CALLSTACK_SHC for a writable+executable frame")
	}
	if _, ok := report.ShcCandidates[0x30000]; !ok {
		t.Fatalf("expected 0x30000 recorded as a shellcode candidate")
	}
}

func TestScanThreadManagedFilterSuppressesIndicators(t *testing.T) {
	s, _, _ := newTestFixture()
	s.Process.(*fakeProcess).protections[0x30000] = remote.ProtExecuteReadWrite
	th := &fakeThread{tid: 4, snapshot: remote.ThreadContext{IP: 0x10100, SP: 0x20000, Entry: 0x10100}, frames: []uint64{0x30000}}
	report, err := s.ScanThread(context.Background(), th, func(mod types.ModuleDescriptor) bool { return true })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Has(types.IndicatorSusCallstackSHC) {
		t.Fatalf("expected SUS_CALLSTACK_SHC to be filtered for a managed thread")
	}
	if !report.Details.IsManaged {
		t.Fatalf("expected Details.IsManaged to be set")
	}
}

func TestResolveAddrFallsBackToModuleOffset(t *testing.T) {
	s, _, _ := newTestFixture()
	got := s.resolveAddr(context.Background(), 0x10050)
	if got != `ntdll.dll!+0x50` {
		t.Fatalf("got %q", got)
	}
}

func TestResolveAddrPrefersExportedName(t *testing.T) {
	s, _, _ := newTestFixture()
	got := s.resolveAddr(context.Background(), 0x10200)
	if got != "ntdll.NtWaitForSingleObject" {
		t.Fatalf("got %q", got)
	}
}
