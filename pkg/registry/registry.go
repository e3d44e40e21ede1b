// Package registry tracks the modules loaded into a target process: base
// address, size, on-disk path, and a suspicious flag derived by other
// scanners. It is populated once per scan pass and is read-only for the
// pass's duration, so it can be shared across parallel module/thread
// scanners without synchronization.
package registry

import (
	"sort"
	"sync"

	"github.com/pescan-dev/pescan/pkg/types"
)

// AllocationQuerier is the OS fallback used when no registered module
// covers an address: it returns the allocation base of the page
// containing addr, or 0 if addr is outside any committed region. On
// Windows this is backed by VirtualQueryEx; see query_windows.go.
type AllocationQuerier interface {
	AllocationBase(addr uint64) uint64
}

// Registry is the Module Registry (spec component A). Zero value is
// usable; call Add to populate it, then Freeze before sharing it across
// concurrent scanners.
type Registry struct {
	mu       sync.RWMutex
	frozen   bool
	modules  []types.ModuleDescriptor // kept sorted by Base once frozen
	byBase   map[uint64]int
	querier  AllocationQuerier
}

// New returns an empty registry using querier for out-of-registry address
// lookups. querier may be nil, in which case FindModuleContaining never
// falls back and unregistered addresses are always reported invalid.
func New(querier AllocationQuerier) *Registry {
	return &Registry{
		byBase:  make(map[uint64]int),
		querier: querier,
	}
}

// Add registers a module. Base must be non-zero; callers populating from
// a malformed loaded-modules view should skip zero-base entries rather
// than calling Add with one.
func (r *Registry) Add(m types.ModuleDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.Base == 0 {
		return
	}
	if r.byBase == nil {
		r.byBase = make(map[uint64]int)
	}
	if idx, ok := r.byBase[m.Base]; ok {
		r.modules[idx] = m
		return
	}
	r.byBase[m.Base] = len(r.modules)
	r.modules = append(r.modules, m)
	r.frozen = false
}

// Freeze sorts the registry by base address, enabling O(log n) interval
// lookup. Call once after population and before handing the registry to
// concurrent scanners; mutating after Freeze requires a fresh Freeze.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.Slice(r.modules, func(i, j int) bool { return r.modules[i].Base < r.modules[j].Base })
	r.byBase = make(map[uint64]int, len(r.modules))
	for i, m := range r.modules {
		r.byBase[m.Base] = i
	}
	r.frozen = true
}

// FindModuleContaining returns the module covering addr, using a binary
// search over sorted base addresses. If no registered module covers addr,
// the caller-supplied AllocationQuerier is consulted for the allocation
// base of addr's page; a zero result means addr is outside any committed
// region and is treated as invalid (ok=false, everything else zero).
func (r *Registry) FindModuleContaining(addr uint64) (m types.ModuleDescriptor, ok bool) {
	r.mu.RLock()
	mods := r.modules
	r.mu.RUnlock()

	// Interval lookup: find the last module whose Base <= addr, then
	// check coverage. Modules don't overlap in a well-formed snapshot.
	i := sort.Search(len(mods), func(i int) bool { return mods[i].Base > addr })
	if i > 0 {
		cand := mods[i-1]
		if cand.Covers(addr) {
			return cand, true
		}
	}
	if r.querier == nil {
		return types.ModuleDescriptor{}, false
	}
	base := r.querier.AllocationBase(addr)
	if base == 0 {
		return types.ModuleDescriptor{}, false
	}
	// The allocation base is a valid committed region but not a
	// registered module (e.g. a private VirtualAlloc); surface it as an
	// unregistered-but-valid hit with Size 0 so callers can distinguish
	// "inside some allocation" from "inside a named module".
	return types.ModuleDescriptor{Base: base}, true
}

// Snapshot returns a copy of all registered modules, sorted by base.
func (r *Registry) Snapshot() []types.ModuleDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ModuleDescriptor, len(r.modules))
	copy(out, r.modules)
	return out
}
