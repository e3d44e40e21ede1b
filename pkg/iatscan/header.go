package iatscan

import (
	saferwallpe "github.com/saferwall/pe"

	"github.com/pescan-dev/pescan/pkg/peimage"
)

// ModuleHeaderInfo is the subset of a module's on-disk header the scanner
// needs before it ever touches remote memory: bitness, declared image
// size, and whether an import directory is present at all.
type ModuleHeaderInfo struct {
	Is64          bool
	ImageSize     uint64
	ImportDirRVA  uint32
	ImportDirSize uint32
}

// HasImportTable reports whether the header declares a non-empty import
// directory that falls within the declared image size.
func (h ModuleHeaderInfo) HasImportTable() bool {
	if h.ImportDirSize == 0 {
		return false
	}
	return uint64(h.ImportDirRVA) <= h.ImageSize
}

// readHeader extracts ModuleHeaderInfo from an already-opened on-disk image.
func readHeader(img *peimage.Image) (ModuleHeaderInfo, error) {
	switch oh := img.File.NtHeader.OptionalHeader.(type) {
	case saferwallpe.ImageOptionalHeader64:
		dir := oh.DataDirectory[saferwallpe.ImageDirectoryEntryImport]
		return ModuleHeaderInfo{
			Is64:          true,
			ImageSize:     uint64(oh.SizeOfImage),
			ImportDirRVA:  dir.VirtualAddress,
			ImportDirSize: dir.Size,
		}, nil
	case saferwallpe.ImageOptionalHeader32:
		dir := oh.DataDirectory[saferwallpe.ImageDirectoryEntryImport]
		return ModuleHeaderInfo{
			Is64:          false,
			ImageSize:     uint64(oh.SizeOfImage),
			ImportDirRVA:  dir.VirtualAddress,
			ImportDirSize: dir.Size,
		}, nil
	default:
		return ModuleHeaderInfo{}, errUnsupportedOptionalHeader
	}
}
