// Package report implements the Report Emitters (spec component F): the
// JSON hooks_list / thread_scan document shapes, built over
// json-iterator/go for drop-in encoding/json compatibility with
// deterministic struct-field ordering, and the ';'-delimited CSV
// not-recovered listing, written line by line without an encoder.
package report

import (
	"io"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/pescan-dev/pescan/pkg/types"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// hookEntry is one row of hooks_list.
type hookEntry struct {
	ThunkRVA string `json:"thunk_rva"`
	FuncName string `json:"func_name,omitempty"`
	Target   string `json:"target"`
}

// hooksListDoc is the top-level hooks_list document.
type hooksListDoc struct {
	HooksList   []hookEntry `json:"hooks_list"`
	FuzzyHash   string      `json:"fuzzy_hash,omitempty"`
	YaraMatches []string    `json:"yara_matches,omitempty"`
}

// BuildHooksList renders report's uncovered thunks in ascending RVA
// order, each paired with the function name its own on-disk import
// table declared (when the unfiltered StoredFunc collection is present).
func BuildHooksList(r *types.IATScanReport) hooksListDoc {
	entries := r.NotCovered.Sorted()
	doc := hooksListDoc{HooksList: make([]hookEntry, 0, len(entries))}
	for _, e := range entries {
		he := hookEntry{
			ThunkRVA: hexString(uint64(e.ThunkRVA)),
			Target:   hexString(e.FilledVal),
		}
		if r.StoredFunc != nil {
			if fn := r.StoredFunc.ThunkToFunc[e.ThunkRVA]; fn != nil {
				he.FuncName = fn.String()
			}
		}
		doc.HooksList = append(doc.HooksList, he)
	}
	doc.FuzzyHash = r.FuzzyHash
	doc.YaraMatches = r.YaraMatches
	return doc
}

// WriteHooksListJSON writes report's hooks_list document to w. It writes
// nothing and returns (false, nil) when there is nothing to report,
// matching the original tool's "only emit the section if non-empty"
// behavior.
func WriteHooksListJSON(w io.Writer, r *types.IATScanReport) (bool, error) {
	if r.NotCovered.Count() == 0 {
		return false, nil
	}
	doc := BuildHooksList(r)
	enc := jsonAPI.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return false, err
	}
	return true, nil
}

// threadInfoDoc is the thread_scan.thread_info object.
type threadInfoDoc struct {
	State      string         `json:"state"`
	WaitReason string         `json:"wait_reason,omitempty"`
	Callstack  *callstackDoc  `json:"callstack,omitempty"`
	LastSysc   string         `json:"last_sysc,omitempty"`
	LastFunc   string         `json:"last_func,omitempty"`
}

type callstackDoc struct {
	StackPtr    string   `json:"stack_ptr"`
	FramesCount int      `json:"frames_count,omitempty"`
	Frames      []string `json:"frames,omitempty"`
}

// threadScanDoc is the thread_scan object itself.
type threadScanDoc struct {
	ThreadID       uint32        `json:"thread_id"`
	ThreadInfo     threadInfoDoc `json:"thread_info"`
	Indicators     []string      `json:"indicators"`
	SuspAddr       string        `json:"susp_addr,omitempty"`
	SuspReturnAddr string        `json:"susp_return_addr,omitempty"`
	Module         string        `json:"module,omitempty"`
	ModuleSize     string        `json:"module_size,omitempty"`
	YaraMatches    []string      `json:"yara_matches,omitempty"`
}

type threadScanEnvelope struct {
	ThreadScan threadScanDoc `json:"thread_scan"`
}

// BuildThreadScanDoc renders a ThreadScanReport the way the original
// tool's fieldsToJSON does: the call stack's frame addresses are only
// included at JSONDetails or above, unless a corrupt-stack or
// shellcode-candidate indicator forces them to be shown regardless of
// the requested detail level; susp_addr is used when the suspicious
// address fell inside a named module, susp_return_addr otherwise.
func BuildThreadScanDoc(r *types.ThreadScanReport, detail types.JSONDetailLevel) threadScanEnvelope {
	doc := threadScanDoc{
		ThreadID: r.ThreadID,
		ThreadInfo: threadInfoDoc{
			State:      r.ThreadState,
			WaitReason: r.ThreadWaitRsn,
			LastSysc:   r.LastSyscall,
			LastFunc:   r.LastFunction,
		},
		Indicators: indicatorStrings(r.Indicators),
	}

	if r.StackPtr != 0 {
		cs := &callstackDoc{StackPtr: hexString(r.StackPtr), FramesCount: len(r.Details.CallStack)}
		showFrames := detail >= types.JSONDetails || r.Has(types.IndicatorSusCallstackCorrupt) || r.Has(types.IndicatorSusCallstackSHC)
		if showFrames && len(r.Details.CallStack) > 0 {
			cs.Frames = make([]string, len(r.Details.CallStack))
			for i, addr := range r.Details.CallStack {
				f := hexString(addr)
				if sym, ok := r.AddrToSymbol[addr]; ok && sym != "" {
					f += ";" + sym
				}
				cs.Frames[i] = f
			}
		}
		doc.ThreadInfo.Callstack = cs
	}

	if r.SuspAddr != 0 {
		if r.ModuleSuspAddr {
			doc.SuspAddr = hexString(r.SuspAddr)
		} else {
			doc.SuspReturnAddr = hexString(r.SuspAddr)
		}
	}
	if r.Module != 0 {
		doc.Module = hexString(r.Module)
		if r.ModuleSize != 0 {
			doc.ModuleSize = hexString(r.ModuleSize)
		}
	}
	doc.YaraMatches = r.YaraMatches

	return threadScanEnvelope{ThreadScan: doc}
}

// WriteThreadScanJSON writes r's thread_scan document to w.
func WriteThreadScanJSON(w io.Writer, r *types.ThreadScanReport, detail types.JSONDetailLevel) error {
	doc := BuildThreadScanDoc(r, detail)
	enc := jsonAPI.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func indicatorStrings(indicators map[types.Indicator]struct{}) []string {
	// Fixed taxonomy order rather than map iteration order, so repeated
	// runs against the same report produce byte-identical output.
	order := []types.Indicator{
		types.IndicatorSusStart,
		types.IndicatorSusIP,
		types.IndicatorSusRet,
		types.IndicatorSusCallstackSHC,
		types.IndicatorSusCallsIntegrity,
		types.IndicatorSusCallstackCorrupt,
	}
	out := make([]string, 0, len(indicators))
	for _, ind := range order {
		if _, ok := indicators[ind]; ok {
			out = append(out, string(ind))
		}
	}
	return out
}

// hexString renders v as unpadded lowercase hex, the convention the
// original tool's std::hex stream formatting follows throughout its JSON
// and CSV output.
func hexString(v uint64) string {
	return strconv.FormatUint(v, 16)
}
