// Package peimage is the thin adapter over the PE parsing primitives this
// system assumes are provided externally (spec §1): it wraps
// github.com/saferwall/pe with the validation and logging conventions the
// rest of the module expects, so that pkg/exportsmap (Exports Map) and
// pkg/importreader (PE Import Reader) never touch raw PE bytes directly.
package peimage

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	saferwallpe "github.com/saferwall/pe"
	"go.uber.org/zap"
)

// Image is an opened, parsed on-disk PE file.
type Image struct {
	File *saferwallpe.File
	Path string
}

// Options mirror the subset of saferwall/pe.Options this system needs.
// Fast parses the headers only and skips every data directory, imports
// and exports included; it suits callers that need nothing beyond the
// headers, and callers reading import or export directories leave it off.
type Options struct {
	Fast           bool
	SectionEntropy bool
	// DisableCertValidation skips chain-of-trust verification of an
	// embedded Authenticode signature, leaving only its own structural
	// validity (signature content against the image's authentihash) to
	// be checked. Set by pkg/signing, which is explicitly out of scope
	// for chain trust.
	DisableCertValidation bool
}

// Open validates that path is really a PE image (via mimetype, before
// asking the PE library to parse anything) and returns a parsed Image.
// The underlying file is memory-mapped by saferwall/pe rather than fully
// read; callers must call Close when done.
func Open(path string, opts Options, logger *zap.SugaredLogger) (*Image, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("peimage: detect mimetype of %s: %w", path, err)
	}
	if !looksLikePE(mtype) {
		return nil, fmt.Errorf("peimage: %s does not look like a PE image (mimetype %s)", path, mtype.String())
	}

	f, err := saferwallpe.New(path, &saferwallpe.Options{
		Fast:                  opts.Fast,
		SectionEntropy:        opts.SectionEntropy,
		DisableCertValidation: opts.DisableCertValidation,
	})
	if err != nil {
		return nil, fmt.Errorf("peimage: open %s: %w", path, err)
	}
	if err := f.Parse(); err != nil {
		f.Close()
		return nil, fmt.Errorf("peimage: parse %s: %w", path, err)
	}
	if logger != nil {
		logger.Debugw("parsed PE image", "path", path, "is64", f.Is64, "imports", len(f.Imports), "exports", len(f.Export.Functions))
	}
	return &Image{File: f, Path: path}, nil
}

// Close releases the memory-mapped file.
func (img *Image) Close() error {
	return img.File.Close()
}

// Is64 reports the image's bitness.
func (img *Image) Is64() bool {
	return img.File.Is64
}

func looksLikePE(m *mimetype.MIME) bool {
	for cur := m; cur != nil; cur = cur.Parent() {
		switch cur.Extension() {
		case ".exe", ".dll", ".sys", ".ocx", ".cpl", ".scr", ".drv":
			return true
		}
	}
	return false
}
