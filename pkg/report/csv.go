package report

import (
	"io"
	"strconv"

	"github.com/pescan-dev/pescan/pkg/exportsmap"
	"github.com/pescan-dev/pescan/pkg/registry"
	"github.com/pescan-dev/pescan/pkg/types"
)

const csvDelim = ';'

// WriteNotCoveredCSV writes one line per uncovered thunk:
//
//	<thunk_rva>;<declared_func>-><resolved_func>;<module_start>+<offset>;<module_suspicious>
//
// mirroring the original tool's best-effort column layout. declared_func
// and its "->" are omitted when the report carries no StoredFunc
// collection, and read "(unknown)" when that collection has no entry for
// the thunk; resolved_func falls back to "(invalid)" when the target lies
// in no known allocation and to "<dll>.(unknown_func)" otherwise;
// module_suspicious is omitted when the target lies in no known
// allocation. Returns false, nil when there is nothing to write.
func WriteNotCoveredCSV(w io.Writer, r *types.IATScanReport, reg *registry.Registry, exp *exportsmap.Map) (bool, error) {
	entries := r.NotCovered.Sorted()
	if len(entries) == 0 {
		return false, nil
	}
	for _, e := range entries {
		if err := writeNotCoveredLine(w, e, r, reg, exp); err != nil {
			return false, err
		}
	}
	return true, nil
}

func writeNotCoveredLine(w io.Writer, e types.NotCoveredEntry, r *types.IATScanReport, reg *registry.Registry, exp *exportsmap.Map) error {
	var line []byte
	line = appendHex(line, uint64(e.ThunkRVA))
	line = append(line, csvDelim)

	if r.StoredFunc != nil {
		if fn := r.StoredFunc.ThunkToFunc[e.ThunkRVA]; fn != nil {
			line = append(line, fn.String()...)
		} else {
			line = append(line, "(unknown)"...)
		}
		line = append(line, "->"...)
	}

	moduleStart, suspicious, hasModule := resolveTarget(e.FilledVal, reg)

	if funcs, ok := exp.FindExportsByVA(e.FilledVal); ok {
		line = append(line, firstFuncString(funcs)...)
	} else if !hasModule {
		line = append(line, "(invalid)"...)
	} else {
		name := exportsmap.ShortName(exp.GetDLLPath(moduleStart))
		if name == "" {
			name = "(unknown)"
		}
		line = append(line, name...)
		line = append(line, ".(unknown_func)"...)
	}

	line = append(line, csvDelim)
	line = appendHex(line, moduleStart)
	line = append(line, '+')
	line = appendHex(line, e.FilledVal-moduleStart)

	if hasModule {
		line = append(line, csvDelim)
		if suspicious {
			line = append(line, '1')
		} else {
			line = append(line, '0')
		}
	}
	line = append(line, '\n')

	_, err := w.Write(line)
	return err
}

// resolveTarget finds the module (if any) covering addr, returning its
// base and suspicious flag. A zero base with hasModule=false means addr
// is outside any committed region.
func resolveTarget(addr uint64, reg *registry.Registry) (base uint64, suspicious bool, hasModule bool) {
	mod, ok := reg.FindModuleContaining(addr)
	if !ok {
		return 0, false, false
	}
	return mod.Base, mod.Suspicious, true
}

func firstFuncString(funcs map[types.ExportedFunc]struct{}) string {
	for f := range funcs {
		return f.String()
	}
	return ""
}

func appendHex(dst []byte, v uint64) []byte {
	return strconv.AppendUint(dst, v, 16)
}
