// Package threadscan implements the Thread Execution Scanner (spec
// component E): for one live thread, it samples state, suspends it just
// long enough to capture a register snapshot and unwind its call stack,
// resumes it, then classifies the result against the Module Registry and
// Exports Map.
package threadscan

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pescan-dev/pescan/pkg/detect"
	"github.com/pescan-dev/pescan/pkg/exportsmap"
	"github.com/pescan-dev/pescan/pkg/registry"
	"github.com/pescan-dev/pescan/pkg/remote"
	"github.com/pescan-dev/pescan/pkg/types"
)

// SymbolResolver is the external Symbol Resolver collaborator (spec §1):
// given an address, it returns a debug-quality symbol name when one is
// available. A nil Scanner.Symbols falls back to Exports Map / module
// offset resolution only.
type SymbolResolver interface {
	Resolve(ctx context.Context, addr uint64) (name string, ok bool)
}

// Scanner holds the shared views one scan pass needs to classify a
// thread: the live process, the module registry, the exports map, and an
// optional debug symbol source.
type Scanner struct {
	Process    remote.Process
	Registry   *registry.Registry
	ExportsMap *exportsmap.Map
	Symbols    SymbolResolver
	Logger     *zap.SugaredLogger

	// Yara is an optional detection-extras collaborator (spec component
	// L). When set, every shellcode-candidate address raised during call
	// stack classification is scanned against it; nil disables the
	// enrichment with no change to the indicator classification itself.
	Yara *detect.YaraScanner

	// CaptureBuffer, when set, is handed each shellcode-candidate buffer
	// once ScanThread concludes the thread is suspicious; see
	// iatscan.Scanner.CaptureBuffer for the same role on the module side.
	CaptureBuffer func(addr uint64, buf []byte)
}

// New returns a Scanner sharing the given registry and exports map.
func New(proc remote.Process, reg *registry.Registry, exp *exportsmap.Map, symbols SymbolResolver, logger *zap.SugaredLogger) *Scanner {
	return &Scanner{Process: proc, Registry: reg, ExportsMap: exp, Symbols: symbols, Logger: logger}
}

// shcProbeSize is how much memory is read from each shellcode-candidate
// address for a YARA scan; candidates are return addresses, not mapped
// regions, so the read is deliberately small.
const shcProbeSize = 0x1000

// ErrSuspendFailed wraps any failure to sample or suspend a thread; it is
// always a hard failure (spec §4.E "Failure modes"), never a suspicious
// finding.
var ErrSuspendFailed = errors.New("threadscan: failed to sample or suspend thread")

// isManagedFunc decides whether a thread belongs to a .NET/CLR runtime,
// given its resolved instruction-pointer module. Managed threads get
// their stack-shape indicators filtered (spec §4.E step 9: JIT'd code
// routinely produces frames and returns that would otherwise read as
// shellcode or integrity violations).
type isManagedFunc func(ipModule types.ModuleDescriptor) bool

// ScanThread runs the full 9-step algorithm against one live thread and
// returns its classification. handle must belong to the process s.Process
// was built from.
func (s *Scanner) ScanThread(ctx context.Context, handle remote.ThreadHandle, isManaged isManagedFunc) (*types.ThreadScanReport, error) {
	report := types.NewThreadScanReport(handle.TID())

	// Step 1: sample state without disturbing the thread.
	info, err := handle.SampleInfo(ctx)
	if err != nil {
		report.Status = types.StatusError
		report.Warning = err.Error()
		return report, fmt.Errorf("threadscan: %w: %w", ErrSuspendFailed, err)
	}
	report.ThreadState = threadStateString(info.State)
	report.ThreadWaitRsn = waitReasonString(info.WaitReason)
	report.ThreadWaitTime = info.WaitTimeMs

	// Step 2: suspend and capture the register snapshot; always resume
	// before returning, even on a classification error.
	snapshot, err := handle.Suspend(ctx)
	if err != nil {
		report.Status = types.StatusError
		report.Warning = err.Error()
		return report, fmt.Errorf("threadscan: %w: %w", ErrSuspendFailed, err)
	}
	defer func() {
		if rerr := handle.Resume(ctx); rerr != nil && s.Logger != nil {
			s.Logger.Warnw("failed to resume thread after scan", "tid", handle.TID(), "error", rerr)
		}
	}()

	report.StackPtr = snapshot.SP
	report.Details.Is64 = snapshot.Is64
	report.Details.IP = snapshot.IP
	report.Details.SP = snapshot.SP
	report.Details.FP = snapshot.FP

	// Step 3: unwind the call stack, innermost frame first, then resume
	// the thread; every later step works from the snapshot.
	frames, usedFallback, uerr := handle.Unwind(ctx, snapshot)
	if rerr := handle.Resume(ctx); rerr != nil && s.Logger != nil {
		s.Logger.Warnw("failed to resume thread after unwind", "tid", handle.TID(), "error", rerr)
	}
	report.Details.CallStack = frames
	if uerr != nil {
		report.Raise(types.IndicatorSusCallstackCorrupt)
		report.Warning = uerr.Error()
	}

	// Steps 4-8: classify instruction pointer, thread start, call stack
	// shape, and return-address integrity.
	s.classifyIP(ctx, snapshot, report)
	s.classifyEntry(ctx, snapshot, report)
	s.classifyCallStack(ctx, frames, usedFallback, info.WaitReason, snapshot, report)
	s.resolveSymbols(ctx, snapshot, report)
	if s.Yara != nil {
		s.scanShcCandidates(ctx, report)
	}

	// Step 9: suppress stack-shape indicators for known-managed threads.
	if ipMod, ok := s.Registry.FindModuleContaining(snapshot.IP); ok && isManaged != nil && isManaged(ipMod) {
		s.filterManaged(report)
	}

	report.Status = types.StatusNotSuspicious
	if len(report.Indicators) > 0 {
		report.Status = types.StatusSuspicious
	}

	if report.Status == types.StatusSuspicious && s.CaptureBuffer != nil {
		s.captureShcCandidates(ctx, report)
	}

	return report, nil
}

// captureShcCandidates reads every shellcode-candidate region and hands
// it to CaptureBuffer; a read failure on one candidate is skipped.
func (s *Scanner) captureShcCandidates(ctx context.Context, report *types.ThreadScanReport) {
	for addr := range report.ShcCandidates {
		buf, err := s.Process.ReadMemory(ctx, addr, shcProbeSize)
		if err != nil {
			continue
		}
		s.CaptureBuffer(addr, buf)
	}
}

// scanShcCandidates runs the YARA collaborator over every
// shellcode-candidate address raised by classifyCallStack, appending any
// rule names that matched. A read or scan failure on one candidate is
// logged and skipped; it never fails the whole thread scan.
func (s *Scanner) scanShcCandidates(ctx context.Context, report *types.ThreadScanReport) {
	for addr := range report.ShcCandidates {
		buf, err := s.Process.ReadMemory(ctx, addr, shcProbeSize)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warnw("read of shellcode candidate failed", "addr", addr, "error", err)
			}
			continue
		}
		matches, err := s.Yara.Scan(buf)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warnw("yara scan of shellcode candidate failed", "addr", addr, "error", err)
			}
			continue
		}
		report.YaraMatches = append(report.YaraMatches, matches...)
	}
}

func threadStateString(s remote.ThreadState) string {
	switch s {
	case remote.ThreadStateRunning:
		return "RUNNING"
	case remote.ThreadStateWaiting:
		return "WAITING"
	case remote.ThreadStateSuspended:
		return "SUSPENDED"
	case remote.ThreadStateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

func waitReasonString(w remote.WaitReason) string {
	switch w {
	case remote.WaitReasonSyscall:
		return "SYSCALL"
	case remote.WaitReasonOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}
