// Package scanpass runs one full scan pass over a live process: populate
// the Module Registry and Exports Map from its loaded modules, then run
// the IAT Scanner over every module and the Thread Scanner over every
// thread. It is the one piece of logic shared between the scan
// orchestrator service and the one-shot command-line scan.
package scanpass

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/djherbis/times"

	"github.com/pescan-dev/pescan/pkg/detect"
	"github.com/pescan-dev/pescan/pkg/exportsmap"
	"github.com/pescan-dev/pescan/pkg/iatscan"
	"github.com/pescan-dev/pescan/pkg/peimage"
	"github.com/pescan-dev/pescan/pkg/registry"
	"github.com/pescan-dev/pescan/pkg/remote"
	"github.com/pescan-dev/pescan/pkg/report"
	"github.com/pescan-dev/pescan/pkg/signing"
	"github.com/pescan-dev/pescan/pkg/threadscan"
	"github.com/pescan-dev/pescan/pkg/types"
)

// Options configures one scan pass.
type Options struct {
	Filter   types.FilterMode
	System32 string
	SysWow64 string
	// Symbols is the external Symbol Resolver collaborator; nil disables
	// it, falling back to the Exports Map and module+offset naming.
	Symbols threadscan.SymbolResolver

	// Yara and Fuzzy are the optional detection-extras collaborators;
	// nil disables the corresponding enrichment on both scanners.
	Yara  *detect.YaraScanner
	Fuzzy *detect.FuzzyHash

	// CheckSignatures enables an Authenticode check of every loaded
	// module's own on-disk image; disabled by default since it requires
	// a second, full (non-Fast) parse of each module.
	CheckSignatures bool

	// CaptureEvidence enables retaining the raw buffer a suspicious
	// module or thread verdict was based on, surfaced on Result.Buffers
	// for driver-side evidence quarantine (pkg/quarantine). Disabled by
	// default since it holds every flagged buffer in memory for the
	// duration of the pass.
	CaptureEvidence bool
}

// Result is what one scan pass produces: the JSON report file, whether
// any module or thread came back suspicious, and (when
// Options.CaptureEvidence is set) the raw buffers those verdicts were
// based on, keyed by a descriptive evidence name.
type Result struct {
	File       *os.File
	Suspicious bool
	Buffers    map[string][]byte
}

// Run opens pid and runs the full scan pass. Result.File is a temp file
// positioned at the start of the resulting JSON document; the caller
// owns it and must close and remove it.
func Run(ctx context.Context, pid uint32, opts Options, logger *zap.SugaredLogger) (*Result, error) {
	proc, err := remote.OpenWinProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("scanpass: open process: %w", err)
	}

	mods, err := proc.EnumModules()
	if err != nil {
		return nil, fmt.Errorf("scanpass: enumerate modules: %w", err)
	}

	reg := registry.New(proc)
	exp := exportsmap.New()

	for _, m := range mods {
		desc := types.ModuleDescriptor{Base: m.Base, Size: m.Size, Path: m.Path}
		if ts, err := times.Stat(m.Path); err == nil {
			desc.ModifiedAt = ts.ModTime()
		}
		if opts.CheckSignatures {
			desc.Signature = checkSignature(m.Path, logger)
			// An unsigned or invalidly-signed module is a heuristic input
			// to the clean_sys_filtered filter (pkg/iatscan/filter.go),
			// not a verdict on its own; the IAT comparison itself is what
			// actually raises StatusSuspicious.
			desc.Suspicious = desc.Signature == types.SignatureInvalidOrAbsent
		}

		img, err := peimage.Open(m.Path, peimage.Options{Fast: false}, logger)
		if err != nil {
			if logger != nil {
				logger.Warnw("skipping unreadable module", "path", m.Path, "error", err)
			}
			reg.Add(desc)
			continue
		}
		exp.AddModule(m.Base, m.Size, m.Path, exportsmap.ExportedFuncsOf(img))
		reg.Add(desc)
		img.Close()
	}
	reg.Freeze()
	exp.Freeze()

	iat := iatscan.New(proc, reg, exp, opts.Filter, opts.System32, opts.SysWow64, logger)
	iat.Yara = opts.Yara
	iat.Fuzzy = opts.Fuzzy
	threads := threadscan.New(proc, reg, exp, opts.Symbols, logger)
	threads.Yara = opts.Yara

	res := &Result{}
	if opts.CaptureEvidence {
		res.Buffers = make(map[string][]byte)
		iat.CaptureBuffer = func(modulePath string, buf []byte) {
			res.Buffers[fmt.Sprintf("module-%s.bin", exportsmap.ShortName(modulePath))] = buf
		}
		threads.CaptureBuffer = func(addr uint64, buf []byte) {
			res.Buffers[fmt.Sprintf("shc-%x.bin", addr)] = buf
		}
	}

	tmp, err := os.CreateTemp("", "pescan-report-*.json")
	if err != nil {
		return nil, err
	}

	suspicious, err := writeReport(ctx, tmp, proc, mods, iat, threads, logger)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}

	if _, err := tmp.Seek(0, 0); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	res.File = tmp
	res.Suspicious = suspicious
	return res, nil
}

// checkSignature runs the Authenticode check for one module, collapsing
// a hard parse failure into SignatureUnknown rather than failing the
// whole scan pass over it.
func checkSignature(path string, logger *zap.SugaredLogger) types.SignatureState {
	valid, present, err := signing.CheckAuthenticode(path, logger)
	if err != nil {
		if logger != nil {
			logger.Warnw("authenticode check failed", "path", path, "error", err)
		}
		return types.SignatureUnknown
	}
	if !present || !valid {
		return types.SignatureInvalidOrAbsent
	}
	return types.SignatureValid
}

// clrHostModules are the module basenames (no extension, lowercased) that
// host a managed runtime; a thread whose instruction pointer resolves into
// one of them gets its stack-shape indicators filtered (threadscan step 9
// in pkg/threadscan/threadscan.go), since JIT'd code is not laid out the
// way the unmanaged-code heuristics assume.
var clrHostModules = map[string]struct{}{
	"clr":      {},
	"coreclr":  {},
	"mscorwks": {},
	"mscoree":  {},
	"mono":     {},
	"mono-2.0": {},
}

// isManagedModule reports whether path names a known CLR/.NET host module.
func isManagedModule(path string) bool {
	_, ok := clrHostModules[exportsmap.ShortName(path)]
	return ok
}

func writeReport(ctx context.Context, w io.Writer, proc *remote.WinProcess, mods []remote.ModuleSnapshot, iat *iatscan.Scanner, threads *threadscan.Scanner, logger *zap.SugaredLogger) (bool, error) {
	suspicious := false

	fmt.Fprint(w, "{\"iat\":[")
	written := 0
	for _, m := range mods {
		r, err := iat.ScanModule(ctx, m.Path, m.Base, m.Size)
		if err != nil {
			if logger != nil {
				logger.Warnw("iat scan failed", "module", m.Path, "error", err)
			}
			continue
		}
		if r.Status == types.StatusSuspicious {
			suspicious = true
		}
		if r.NotCovered.Count() == 0 {
			continue
		}
		if written > 0 {
			fmt.Fprint(w, ",")
		}
		if _, err := report.WriteHooksListJSON(w, r); err != nil {
			return suspicious, err
		}
		written++
	}
	fmt.Fprint(w, "],\"threads\":[")

	tids, err := proc.EnumThreads()
	if err != nil && logger != nil {
		logger.Warnw("enumerate threads failed", "error", err)
	}
	written = 0
	for _, tid := range tids {
		th, err := remote.OpenWinThread(proc, tid)
		if err != nil {
			if logger != nil {
				logger.Warnw("open thread failed", "tid", tid, "error", err)
			}
			continue
		}
		r, err := threads.ScanThread(ctx, th, func(ipModule types.ModuleDescriptor) bool {
			return isManagedModule(ipModule.Path)
		})
		if err != nil {
			if logger != nil {
				logger.Warnw("thread scan failed", "tid", tid, "error", err)
			}
			continue
		}
		if r.Status == types.StatusSuspicious {
			suspicious = true
		}
		if written > 0 {
			fmt.Fprint(w, ",")
		}
		if err := report.WriteThreadScanJSON(w, r, types.JSONBasic); err != nil {
			return suspicious, err
		}
		written++
	}
	fmt.Fprint(w, "]}")
	return suspicious, nil
}
