// Package iatscan implements the IAT Scanner (spec component D): it
// compares the import thunks filled into a live module's address space
// against the module's own on-disk import table and the Exports Map,
// flagging thunks that resolve to a function other than the one declared.
package iatscan

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pescan-dev/pescan/pkg/detect"
	"github.com/pescan-dev/pescan/pkg/exportsmap"
	"github.com/pescan-dev/pescan/pkg/importreader"
	"github.com/pescan-dev/pescan/pkg/peimage"
	"github.com/pescan-dev/pescan/pkg/registry"
	"github.com/pescan-dev/pescan/pkg/remote"
	"github.com/pescan-dev/pescan/pkg/types"
)

var errUnsupportedOptionalHeader = errors.New("iatscan: unsupported optional header type")

// ErrBitnessMismatch is returned when the live module's bitness
// disagrees with its own on-disk header; this is a hard failure, not a
// suspicious finding, since it means the scan inputs themselves are
// inconsistent (spec §4.D preconditions).
var ErrBitnessMismatch = errors.New("iatscan: remote module bitness does not match on-disk header")

// Scanner holds the shared, read-only views one scan pass needs: the
// live process, the module registry, and the exports map. A single
// Scanner is reused across every module scanned in a pass.
type Scanner struct {
	Process    remote.Process
	Registry   *registry.Registry
	ExportsMap *exportsmap.Map
	Filter     types.FilterMode
	System32   string
	SysWow64   string
	Logger     *zap.SugaredLogger

	// Yara and Fuzzy are optional detection-extras collaborators (spec
	// component L). Nil disables the corresponding enrichment; neither
	// participates in the hooked/not-hooked verdict.
	Yara  *detect.YaraScanner
	Fuzzy *detect.FuzzyHash

	// CaptureBuffer, when set, is handed the module's dumped remote image
	// once ScanModule concludes it is suspicious. It exists so driver-side
	// evidence quarantine can retain the exact bytes a verdict was based
	// on without the scanner needing to know anything about quarantining.
	CaptureBuffer func(modulePath string, buf []byte)
}

// New returns a Scanner sharing the given registry and exports map.
func New(proc remote.Process, reg *registry.Registry, exp *exportsmap.Map, filter types.FilterMode, system32, sysWow64 string, logger *zap.SugaredLogger) *Scanner {
	return &Scanner{
		Process:    proc,
		Registry:   reg,
		ExportsMap: exp,
		Filter:     filter,
		System32:   system32,
		SysWow64:   sysWow64,
		Logger:     logger,
	}
}

// headerProbeSize is how much of the live module's header region is read
// to detect bitness before committing to a full image read.
const headerProbeSize = 0x1000

// ScanModule compares the live thunks of one loaded module, at
// [moduleBase, moduleBase+moduleSize), against modulePath's own on-disk
// import table.
func (s *Scanner) ScanModule(ctx context.Context, modulePath string, moduleBase, moduleSize uint64) (*types.IATScanReport, error) {
	report := types.NewIATScanReport(moduleBase, moduleSize, exportsmap.ShortName(modulePath))

	img, err := peimage.Open(modulePath, peimage.Options{Fast: true}, s.Logger)
	if err != nil {
		report.Status = types.StatusError
		report.Warning = err.Error()
		return report, fmt.Errorf("iatscan: open %s: %w", modulePath, err)
	}
	defer img.Close()

	header, err := readHeader(img)
	if err != nil {
		report.Status = types.StatusError
		report.Warning = err.Error()
		return report, fmt.Errorf("iatscan: read header of %s: %w", modulePath, err)
	}

	if !header.HasImportTable() {
		report.Status = types.StatusNotSuspicious
		return report, nil
	}

	if err := s.checkBitness(ctx, moduleBase, header); err != nil {
		report.Status = types.StatusError
		report.Warning = err.Error()
		return report, err
	}

	collection, err := importreader.Read(modulePath, s.Logger)
	if err != nil {
		report.Status = types.StatusError
		report.Warning = err.Error()
		return report, fmt.Errorf("iatscan: read imports of %s: %w", modulePath, err)
	}

	imgSize := moduleSize
	if header.ImageSize > imgSize {
		imgSize = header.ImageSize
	}
	remoteBuf, err := s.Process.ReadMemory(ctx, moduleBase, uint32(imgSize))
	if err != nil {
		report.Status = types.StatusError
		report.Warning = err.Error()
		return report, fmt.Errorf("iatscan: read remote image of %s: %w", modulePath, err)
	}

	if s.Fuzzy != nil {
		if hash, err := s.Fuzzy.Hash(remoteBuf); err == nil {
			report.FuzzyHash = hash
		} else if s.Logger != nil {
			s.Logger.Warnw("fuzzy hash failed", "module", modulePath, "error", err)
		}
	}
	if s.Yara != nil {
		if matches, err := s.Yara.Scan(remoteBuf); err == nil {
			report.YaraMatches = matches
		} else if s.Logger != nil {
			s.Logger.Warnw("yara scan failed", "module", modulePath, "error", err)
		}
	}

	notCovered := s.scanByOriginalTable(remoteBuf, header.Is64, collection)

	status := types.StatusNotSuspicious
	if notCovered.Count() > 0 {
		status = types.StatusSuspicious
		report.StoredFunc = collection
	}

	if s.Filter != types.FilterUnfiltered && s.Filter != types.FilterUnfilteredSysAll {
		s.filterResults(notCovered, report)
	} else {
		report.NotCovered = notCovered
	}

	report.Status = status
	if report.CountHooked() == 0 {
		report.Status = types.StatusNotSuspicious
	}
	if report.Status == types.StatusSuspicious && s.CaptureBuffer != nil {
		s.CaptureBuffer(modulePath, remoteBuf)
	}
	return report, nil
}

func (s *Scanner) checkBitness(ctx context.Context, moduleBase uint64, header ModuleHeaderInfo) error {
	probeSize := uint32(headerProbeSize)
	if header.ImageSize > 0 && header.ImageSize < uint64(probeSize) {
		probeSize = uint32(header.ImageSize)
	}
	probe, err := s.Process.ReadMemory(ctx, moduleBase, probeSize)
	if err != nil {
		return fmt.Errorf("iatscan: read remote header: %w", err)
	}
	is64, ok := detectBitness(probe)
	if !ok {
		return nil // can't tell; don't hard-fail on an ambiguous probe
	}
	if is64 != header.Is64 {
		return ErrBitnessMismatch
	}
	return nil
}

// scanByOriginalTable is the comparison algorithm: for every thunk the
// on-disk import table declares, read the value actually filled into the
// live module's IAT and check it against what the Exports Map says lives
// at that address.
func (s *Scanner) scanByOriginalTable(remoteBuf []byte, is64 bool, collection *types.ImportsCollection) *types.ImpsNotCovered {
	notCovered := types.NewImpsNotCovered()

	for thunkRVA, definedFunc := range collection.ThunkToFunc {
		if definedFunc == nil {
			continue
		}

		filledVal, ok := readThunkAt(remoteBuf, thunkRVA, is64)
		if !ok {
			continue
		}

		possible, found := s.ExportsMap.FindExportsByVA(filledVal)
		if !found || len(possible) == 0 {
			if isDotNetEntryStub(*definedFunc) {
				continue
			}
			notCovered.Insert(thunkRVA, filledVal)
			continue
		}

		covered := false
		for candidate := range possible {
			if s.isValidFuncFilled(filledVal, *definedFunc, candidate) {
				covered = true
				break
			}
		}
		if !covered {
			notCovered.Insert(thunkRVA, filledVal)
		}
	}
	return notCovered
}

// readThunkAt reads the pointer-sized value filled at RVA thunkRVA within
// a dumped remote image. Unlike an on-disk file, RVA equals byte offset
// directly in a mapped image, so no file-alignment translation is needed.
func readThunkAt(buf []byte, thunkRVA uint32, is64 bool) (uint64, bool) {
	width := uint32(4)
	if is64 {
		width = 8
	}
	start := thunkRVA
	if uint64(start)+uint64(width) > uint64(len(buf)) {
		return 0, false
	}
	if is64 {
		return leUint64(buf[start : start+8]), true
	}
	return uint64(leUint32(buf[start : start+4])), true
}

// isDotNetEntryStub reports whether an unresolved import is the
// mscoree.dll CLR entry stub. The host loader satisfies _CorExeMain and
// _CorDllMain through a mechanism the Exports Map never sees, so neither
// should ever be flagged as a missing export, regardless of which one the
// module actually imports.
func isDotNetEntryStub(f types.ExportedFunc) bool {
	if exportsmap.ShortName(f.LibName) != "mscoree" {
		return false
	}
	return f.FuncName == "_CorExeMain" || f.FuncName == "_CorDllMain"
}

// isValidFuncFilled is the is_valid_fill policy: a thunk is considered
// correctly filled when the live value resolves to an export sharing the
// declared function name, either from the same DLL or from another DLL
// under a system directory (a common, benign cross-DLL redirection).
func (s *Scanner) isValidFuncFilled(filledVal uint64, defined, possible types.ExportedFunc) bool {
	if !possible.SameFuncName(defined) {
		return false
	}
	if possible.SameDLLName(defined) {
		return true
	}
	dllBase, ok := s.ExportsMap.FindDLLBaseByFuncVA(filledVal)
	if !ok {
		return false
	}
	path := s.ExportsMap.GetDLLPath(dllBase)
	return exportsmap.IsInSystemDir(path, s.System32, s.SysWow64)
}
