package threadscan

import (
	"context"
	"strings"

	"github.com/pescan-dev/pescan/pkg/remote"
	"github.com/pescan-dev/pescan/pkg/types"
)

// classifyIP raises SUS_IP when the instruction pointer (a) doesn't
// resolve into any registered module, (b) resolves into a module the
// registry already marked suspicious, or (c) sits in memory whose
// protection is writable and executable. Module/ModuleSize/ModuleSuspAddr
// are populated whenever a module is found at all, independent of whether
// that finding also made the thread suspicious — susp_addr vs
// susp_return_addr in the emitted report distinguishes "identified module"
// from "no module", not "suspicious" from "not suspicious".
func (s *Scanner) classifyIP(ctx context.Context, snapshot remote.ThreadContext, report *types.ThreadScanReport) {
	mod, found := s.Registry.FindModuleContaining(snapshot.IP)
	found = found && mod.Size != 0

	suspicious := !found
	if found && mod.Suspicious {
		suspicious = true
	}
	if prot, err := s.Process.QueryProtection(ctx, snapshot.IP); err == nil && prot.IsWritableExecutable() {
		suspicious = true
	}

	if found {
		report.Module = mod.Base
		report.ModuleSize = mod.Size
		report.ModuleSuspAddr = true
	}
	if suspicious {
		report.Raise(types.IndicatorSusIP)
		report.SuspAddr = snapshot.IP
	}
}

// classifyEntry applies the same three-way test as classifyIP to the
// thread's start address, raising SUS_START instead of SUS_IP.
func (s *Scanner) classifyEntry(ctx context.Context, snapshot remote.ThreadContext, report *types.ThreadScanReport) {
	if snapshot.Entry == 0 {
		return // start address unknown on this platform/path; nothing to classify
	}

	mod, found := s.Registry.FindModuleContaining(snapshot.Entry)
	found = found && mod.Size != 0

	suspicious := !found
	if found && mod.Suspicious {
		suspicious = true
	}
	if prot, err := s.Process.QueryProtection(ctx, snapshot.Entry); err == nil && prot.IsWritableExecutable() {
		suspicious = true
	}

	if suspicious {
		report.Raise(types.IndicatorSusStart)
		if report.SuspAddr == 0 {
			report.SuspAddr = snapshot.Entry
		}
	}
}

// classifyCallStack inspects every unwound frame for return addresses that
// are shellcode candidates (outside any registered module and carrying
// writable+executable protection), then runs the integrity checks on the
// innermost return address.
func (s *Scanner) classifyCallStack(ctx context.Context, frames []uint64, usedFallback bool, waitReason remote.WaitReason, snapshot remote.ThreadContext, report *types.ThreadScanReport) {
	if len(frames) == 0 {
		if usedFallback {
			report.Raise(types.IndicatorSusCallstackCorrupt)
		}
		return
	}

	for _, addr := range frames {
		if mod, found := s.Registry.FindModuleContaining(addr); found && mod.Size != 0 {
			continue
		}
		prot, err := s.Process.QueryProtection(ctx, addr)
		if err != nil || !prot.IsWritableExecutable() {
			continue
		}
		report.ShcCandidates[addr] = struct{}{}
		report.Raise(types.IndicatorSusCallstackSHC)
	}

	lastRet := frames[0]
	report.Details.LastRet = lastRet
	report.Details.RetOnStack = lastRet

	s.classifyReturnIntegrity(ctx, lastRet, waitReason, snapshot, report)
}

// classifyReturnIntegrity decodes the bytes immediately preceding the
// innermost return address to tell whether it really follows a CALL
// instruction. A failed decode while the thread is reportedly blocked in a
// syscall raises SUS_RET: a real syscall return always comes back to the
// instruction right after the call that entered the kernel. Regardless of
// wait state, a failed decode also clears IsRetInFrame, which otherwise
// defaults true.
//
// When the decode does succeed and resolves a direct call target, that
// target's name becomes LastFunction; while the thread is blocked in a
// syscall, the instruction pointer's own resolved name becomes LastSyscall
// (it sits inside the ntdll syscall stub currently executing). The two are
// compared, and a mismatch raises SUS_CALLS_INTEGRITY: the call stack
// claims one function is running while the thread is actually parked
// inside another.
func (s *Scanner) classifyReturnIntegrity(ctx context.Context, lastRet uint64, waitReason remote.WaitReason, snapshot remote.ThreadContext, report *types.ThreadScanReport) {
	report.Details.IsRetInFrame = true

	buf, err := s.Process.ReadMemory(ctx, lastRet-callProbeWindow, callProbeWindow)
	if err != nil {
		return // can't read the preceding bytes; leave the default in place
	}

	target, isCall := decodeCall(buf, lastRet, snapshot.Is64)
	if !isCall {
		report.Details.IsRetInFrame = false
		report.Details.IsRetAsCall = false
		if waitReason == remote.WaitReasonSyscall {
			report.Raise(types.IndicatorSusRet)
		}
		return
	}
	report.Details.IsRetAsCall = true

	if target != 0 {
		report.LastFunction = s.resolveAddr(ctx, target)
	}
	if waitReason == remote.WaitReasonSyscall {
		report.LastSyscall = s.resolveAddr(ctx, snapshot.IP)
	}
	if !sameCallTarget(report.LastFunction, report.LastSyscall) {
		report.Raise(types.IndicatorSusCallsIntegrity)
	}
}

// sameCallTarget reports whether two resolved symbol names describe the
// same call target closely enough that their divergence shouldn't raise
// SUS_CALLS_INTEGRITY. Either name being empty means there's nothing
// concrete to compare. ntdll exposes most syscalls under both an Nt and a
// Zw prefix for the same entry point, so that difference alone doesn't
// count as a divergence.
func sameCallTarget(lastFunction, lastSyscall string) bool {
	if lastFunction == "" || lastSyscall == "" {
		return true
	}
	if lastFunction == lastSyscall {
		return true
	}
	return stripNtZwPrefix(lastFunction) == stripNtZwPrefix(lastSyscall)
}

func stripNtZwPrefix(name string) string {
	bang := strings.IndexByte(name, '!')
	if bang < 0 {
		bang = strings.IndexByte(name, '.') // Exports Map form "lib.Func"
	}
	module, fn := name[:bang+1], name[bang+1:]
	if strings.HasPrefix(fn, "Nt") || strings.HasPrefix(fn, "Zw") {
		fn = fn[2:]
	}
	return module + fn
}

// filterManaged suppresses the stack-shape indicators that .NET's JIT
// routinely trips: managed frames are not laid out the way the
// unmanaged-code heuristics above assume.
func (s *Scanner) filterManaged(report *types.ThreadScanReport) {
	report.Details.IsManaged = true
	delete(report.Indicators, types.IndicatorSusCallstackSHC)
	delete(report.Indicators, types.IndicatorSusCallsIntegrity)
	report.ShcCandidates = make(map[uint64]struct{})
}
