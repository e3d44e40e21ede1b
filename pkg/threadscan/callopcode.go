package threadscan

import (
	"golang.org/x/arch/x86/x86asm"
)

// callProbeWindow is how many bytes before a candidate return address are
// read looking for the call that produced it; long enough to cover the
// longest plausible CALL encoding once prefixes are counted.
const callProbeWindow = 16

// decodeCall scans every offset in buf for an instruction that decodes
// cleanly and ends exactly at the end of buf (the return address under
// test). found reports whether such an instruction exists and is a CALL;
// target is its resolved destination for a direct (relative) call, 0 for
// an indirect one or when found is false.
func decodeCall(buf []byte, retAddr uint64, is64 bool) (target uint64, found bool) {
	mode := 32
	if is64 {
		mode = 64
	}
	for i := 0; i < len(buf); i++ {
		inst, err := x86asm.Decode(buf[i:], mode)
		if err != nil || inst.Len == 0 || i+inst.Len != len(buf) {
			continue
		}
		if inst.Op != x86asm.CALL && inst.Op != x86asm.LCALL {
			continue
		}
		if rel, ok := inst.Args[0].(x86asm.Rel); ok {
			return uint64(int64(retAddr) + int64(rel)), true
		}
		return 0, true
	}
	return 0, false
}
