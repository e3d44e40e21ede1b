package threadscan

import (
	"context"

	"github.com/pescan-dev/pescan/pkg/remote"
	"github.com/pescan-dev/pescan/pkg/types"
)

// resolveSymbols fills AddrToSymbol for the instruction pointer and
// every call-stack frame, preferring, in order: a debug symbol from the
// external Symbol Resolver, an exported function name from the Exports
// Map, then a "module!+0x<offset>" fallback built from the Module Registry.
func (s *Scanner) resolveSymbols(ctx context.Context, snapshot remote.ThreadContext, report *types.ThreadScanReport) {
	addrs := append([]uint64{snapshot.IP}, report.Details.CallStack...)
	for _, addr := range addrs {
		if _, done := report.AddrToSymbol[addr]; done {
			continue
		}
		report.AddrToSymbol[addr] = s.resolveAddr(ctx, addr)
	}
}

func (s *Scanner) resolveAddr(ctx context.Context, addr uint64) string {
	if s.Symbols != nil {
		if name, ok := s.Symbols.Resolve(ctx, addr); ok {
			return name
		}
	}
	if funcs, ok := s.ExportsMap.FindExportsByVA(addr); ok {
		for f := range funcs {
			return f.String()
		}
	}
	mod, ok := s.Registry.FindModuleContaining(addr)
	if !ok {
		return ""
	}
	return moduleOffsetName(mod, addr)
}

func moduleOffsetName(mod types.ModuleDescriptor, addr uint64) string {
	name := mod.Path
	if i := lastSlash(name); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		name = "unknown"
	}
	offset := addr - mod.Base
	return name + "!+0x" + hexString(offset)
}

func lastSlash(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '\\' || path[i] == '/' {
			return i
		}
	}
	return -1
}

func hexString(v uint64) string {
	if v == 0 {
		return "0"
	}
	const digits = "0123456789abcdef"
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}
