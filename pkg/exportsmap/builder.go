package exportsmap

import (
	"strings"

	"github.com/pescan-dev/pescan/pkg/peimage"
	"github.com/pescan-dev/pescan/pkg/types"
)

// ExportedFuncsOf reads img's export directory and returns one
// types.ExportedFunc per entry. Ordinal-only exports (no name, as seen
// for a handful of functions in e.g. ws2_32.dll) carry an empty FuncName
// and their numeric Ordinal, matching the PE Import Reader's own
// "#<ordinal>" convention for unresolved imports.
func ExportedFuncsOf(img *peimage.Image) []types.ExportedFunc {
	short := ShortName(img.Path)
	exp := img.File.Export.Functions
	out := make([]types.ExportedFunc, 0, len(exp))
	for _, f := range exp {
		out = append(out, types.ExportedFunc{
			LibName:  short,
			FuncName: f.Name,
			Ordinal:  f.Ordinal,
			RVA:      f.FunctionRVA,
		})
	}
	return out
}

// ShortName returns a DLL's short name the way the original tool compares
// them: lowercase, no directory, no extension (e.g. "kernel32" for
// "C:\Windows\System32\KERNEL32.DLL"). Paths are always Windows paths
// regardless of the host this scanner is built for, so directory
// splitting is done by hand rather than through path/filepath, which
// would treat '\' as an ordinary character on a non-Windows GOOS.
func ShortName(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `\/`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[:i]
	}
	return strings.ToLower(base)
}
