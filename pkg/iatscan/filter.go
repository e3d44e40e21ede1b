package iatscan

import (
	"github.com/pescan-dev/pescan/pkg/exportsmap"
	"github.com/pescan-dev/pescan/pkg/types"
)

// filterResults applies the post-classification filter (spec §4.D
// filter modes) to a raw set of uncovered thunks, populating report's
// final NotCovered set.
//
// FilterListed and FilterCleanSysFiltered both drop hooks whose target
// resolves into a system DLL, on the theory that a legitimate redirection
// the is_valid_fill check didn't catch is far more likely there than a
// malicious one. FilterCleanSysFiltered makes one exception: if the
// Module Registry has already flagged the target module suspicious for
// an unrelated reason, the hook is kept regardless of where it lives.
// A hook whose target address doesn't resolve to any known allocation at
// all is never filtered, in either mode — it's the strongest possible
// signal.
func (s *Scanner) filterResults(notCovered *types.ImpsNotCovered, report *types.IATScanReport) {
	for _, entry := range notCovered.Sorted() {
		s.classifyOne(entry, report)
	}
}

func (s *Scanner) classifyOne(entry types.NotCoveredEntry, report *types.IATScanReport) {
	addr := entry.FilledVal

	mod, ok := s.Registry.FindModuleContaining(addr)
	if !ok {
		// Invalid address: outside any committed allocation.
		report.NotCovered.Insert(entry.ThunkRVA, addr)
		return
	}

	if s.Filter == types.FilterCleanSysFiltered && mod.Suspicious {
		report.NotCovered.Insert(entry.ThunkRVA, addr)
		return
	}

	path := s.ExportsMap.GetDLLPath(mod.Base)
	if exportsmap.IsInSystemDir(path, s.System32, s.SysWow64) {
		return
	}
	report.NotCovered.Insert(entry.ThunkRVA, addr)
}
