// Package importreader implements the PE Import Reader (spec component
// C): given the on-disk bytes of one module, it produces an
// ImportsCollection keyed by thunk RVA. The IMAGE_IMPORT_DESCRIPTOR walk
// itself is performed by github.com/saferwall/pe (the PE helper library
// assumed provided per spec §1, see pkg/peimage); this package's job is
// pairing each parsed thunk with the ExportedFunc identity it declares,
// the way pkg/peparser/imports.go in the reference codebase did
// from-scratch against raw bytes.
package importreader

import (
	"fmt"

	"github.com/pescan-dev/pescan/pkg/exportsmap"
	"github.com/pescan-dev/pescan/pkg/peimage"
	"github.com/pescan-dev/pescan/pkg/types"
	"go.uber.org/zap"
)

// Read parses path's on-disk import directory and returns the declared
// thunk-RVA -> ExportedFunc mapping.
//
// An absent import directory is not an error: it yields an empty, non-nil
// collection (spec §4.C "Failure modes"). A malformed directory is
// reported by the PE library as a parse error and propagated as a hard
// failure here.
func Read(path string, logger *zap.SugaredLogger) (*types.ImportsCollection, error) {
	img, err := peimage.Open(path, peimage.Options{Fast: false}, logger)
	if err != nil {
		return nil, fmt.Errorf("importreader: %w", err)
	}
	defer img.Close()

	coll := types.NewImportsCollection()
	for _, imp := range img.File.Imports {
		lib := exportsmap.ShortName(imp.Name)
		for _, fn := range imp.Functions {
			coll.ThunkToFunc[fn.ThunkRVA] = declaredFunc(lib, fn.Name, fn.ByOrdinal, fn.Ordinal)
		}
	}
	return coll, nil
}

// declaredFunc builds the ExportedFunc identity a thunk declares. When
// the import is by ordinal, the name is left empty and Ordinal carries
// the value so ExportedFunc.String renders "lib.#ordinal" (spec §4.C:
// "ordinals without a resolvable name yield a non-null entry carrying
// #<ordinal>"). When neither a name nor an ordinal is usable, nil is
// returned — a permitted null entry, skipped silently during comparison
// (spec §3).
func declaredFunc(lib, name string, byOrdinal bool, ordinal uint32) *types.ExportedFunc {
	if name != "" {
		return &types.ExportedFunc{LibName: lib, FuncName: name}
	}
	if byOrdinal {
		return &types.ExportedFunc{LibName: lib, Ordinal: ordinal}
	}
	return nil
}
