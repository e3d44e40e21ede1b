// Package exportsmap implements the Exports Map (spec component B): for
// each DLL discovered on disk, the mapping (virtual address -> exported
// functions), with reverse lookup by address. There is no lookup by
// function name; exports are indexed by VA only. The map is a pure, read-only view over on-disk images; it is built once
// per scan pass and is not kept consistent with runtime unloads during a
// single pass.
package exportsmap

import (
	"sort"
	"strings"
	"sync"

	"github.com/pescan-dev/pescan/pkg/types"
)

type dllEntry struct {
	base  uint64
	size  uint64
	path  string
	byVA  map[uint64]map[types.ExportedFunc]struct{}
}

// Map is the Exports Map. Build it once via AddModule for every DLL path
// discovered by the Module Registry, then share it read-only across
// concurrent IAT/thread scans.
type Map struct {
	mu      sync.RWMutex
	entries []*dllEntry // kept sorted by base once Freeze is called
	byBase  map[uint64]*dllEntry
}

// New returns an empty Exports Map.
func New() *Map {
	return &Map{byBase: make(map[uint64]*dllEntry)}
}

// AddModule registers one DLL's exports. funcs is the set of exported
// functions parsed from the on-disk image (see pkg/peimage +
// ExportedFuncsOf); base/size come from the Module Registry entry for
// the same path.
func (m *Map) AddModule(base, size uint64, path string, funcs []types.ExportedFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &dllEntry{base: base, size: size, path: path, byVA: make(map[uint64]map[types.ExportedFunc]struct{})}
	for _, f := range funcs {
		va := base + uint64(f.RVA)
		f.DLLBase = base
		set, ok := e.byVA[va]
		if !ok {
			set = make(map[types.ExportedFunc]struct{})
			e.byVA[va] = set
		}
		set[f] = struct{}{}
	}
	m.byBase[base] = e
	m.entries = append(m.entries, e)
}

// Freeze sorts entries by base address for binary-search lookup. Call
// once after all AddModule calls, before sharing the map across scans.
func (m *Map) Freeze() {
	m.mu.Lock()
	defer m.mu.Unlock()
	sort.Slice(m.entries, func(i, j int) bool { return m.entries[i].base < m.entries[j].base })
}

// FindExportsByVA returns every exported function sharing va (multi-valued
// to preserve alias/forwarder information), or ok=false if va is not an
// exported address of any parsed DLL.
func (m *Map) FindExportsByVA(va uint64) (map[types.ExportedFunc]struct{}, bool) {
	e := m.dllCovering(va)
	if e == nil {
		return nil, false
	}
	set, ok := e.byVA[va]
	return set, ok
}

// FindDLLBaseByFuncVA resolves which loaded DLL currently backs va.
func (m *Map) FindDLLBaseByFuncVA(va uint64) (base uint64, ok bool) {
	e := m.dllCovering(va)
	if e == nil {
		return 0, false
	}
	return e.base, true
}

// GetDLLPath returns the on-disk path for base, or "" if unknown.
func (m *Map) GetDLLPath(base uint64) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.byBase[base]; ok {
		return e.path
	}
	return ""
}

func (m *Map) dllCovering(va uint64) *dllEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.entries
	i := sort.Search(len(entries), func(i int) bool { return entries[i].base > va })
	if i == 0 {
		return nil
	}
	cand := entries[i-1]
	if va >= cand.base && va < cand.base+cand.size {
		return cand
	}
	return nil
}

// IsInSystemDir reports whether path resides under the OS's canonical
// System32/SysWoW64 directories (case-insensitive), the same test the IAT
// scanner's is_valid_fill policy and post-classification filter rely on.
func IsInSystemDir(path string, system32, sysWow64 string) bool {
	dir := dirName(path)
	dir = strings.ToLower(dir)
	return dir == strings.ToLower(system32) || dir == strings.ToLower(sysWow64)
}

func dirName(path string) string {
	i := strings.LastIndexAny(path, `\/`)
	if i < 0 {
		return ""
	}
	return path[:i]
}
