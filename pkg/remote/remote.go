// Package remote abstracts the live introspection primitives the IAT and
// thread scanners need from a foreign process: reading its virtual
// memory, querying page protection, and suspending/resuming/unwinding its
// threads. Concrete implementations are Windows-only (remote_windows.go);
// the interfaces here let the scanner packages stay buildable and
// testable on any platform against fakes.
package remote

import "context"

// MemoryReader reads the virtual memory of a foreign process.
type MemoryReader interface {
	// ReadMemory reads size bytes starting at the remote virtual address
	// addr. Implementations return an error rather than a short read.
	ReadMemory(ctx context.Context, addr uint64, size uint32) ([]byte, error)
}

// Protection is a page-protection bitmask, values matching the Windows
// PAGE_* constants (PAGE_EXECUTE_READWRITE etc.) so callers can test for
// writable+executable without depending on GOOS.
type Protection uint32

const (
	ProtNoAccess         Protection = 0x01
	ProtReadOnly         Protection = 0x02
	ProtReadWrite        Protection = 0x04
	ProtWriteCopy        Protection = 0x08
	ProtExecute          Protection = 0x10
	ProtExecuteRead      Protection = 0x20
	ProtExecuteReadWrite Protection = 0x40
	ProtExecuteWriteCopy Protection = 0x80
)

// IsWritableExecutable reports whether p grants both write and execute
// access, the signature the thread scanner treats as inherently
// suspicious for an instruction pointer (spec §4.E step 4(c)).
func (p Protection) IsWritableExecutable() bool {
	return p == ProtExecuteReadWrite || p == ProtExecuteWriteCopy
}

// MemoryQuerier reports the protection and allocation base of the page
// containing an address.
type MemoryQuerier interface {
	QueryProtection(ctx context.Context, addr uint64) (Protection, error)
	AllocationBase(addr uint64) uint64
}

// Process bundles everything the scanners need from a live target
// process: memory access and page queries. Thread-level operations live
// on ThreadHandle since they require their own OS handle lifetime.
type Process interface {
	MemoryReader
	MemoryQuerier
	PID() uint32
	Bitness() (is64 bool, ok bool)
}

// WaitReason mirrors the OS thread wait reasons relevant to return-address
// classification (spec §4.E step 1/5): only whether the thread is
// currently blocked in a system call matters to the scanner.
type WaitReason int

const (
	WaitReasonUnknown WaitReason = iota
	WaitReasonSyscall
	WaitReasonOther
)

// ThreadState is a coarse OS thread state used only for report display.
type ThreadState int

const (
	ThreadStateUnknown ThreadState = iota
	ThreadStateRunning
	ThreadStateWaiting
	ThreadStateSuspended
	ThreadStateTerminated
)

// ThreadInfo is the sampled, pre-suspension thread state (spec §4.E step 1).
type ThreadInfo struct {
	State      ThreadState
	WaitReason WaitReason
	WaitTimeMs uint32
}

// ThreadContext is the captured register snapshot (spec §4.E step 2).
type ThreadContext struct {
	Is64  bool
	IP    uint64
	SP    uint64
	FP    uint64
	Entry uint64 // thread start address, used by SUS_START
}

// ThreadHandle is a live thread the scanner can sample, suspend/resume,
// and unwind. Suspension is held only between sampling the context and
// handing control back to the caller (spec §4.E state machine).
type ThreadHandle interface {
	TID() uint32
	SampleInfo(ctx context.Context) (ThreadInfo, error)
	// Suspend pauses the thread and returns its context; Resume must be
	// called before any expensive work (spec §4.E step 2).
	Suspend(ctx context.Context) (ThreadContext, error)
	Resume(ctx context.Context) error
	// Unwind walks the call stack starting at snapshot, innermost frame
	// first. Implementations fall back to a bounded linear scan when the
	// OS stack walker fails (spec §4.E step 3); usedFallback reports which
	// path was taken so callers can raise SUS_CALLSTACK_CORRUPT appropriately.
	Unwind(ctx context.Context, snapshot ThreadContext) (frames []uint64, usedFallback bool, err error)
}
