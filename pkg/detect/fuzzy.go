package detect

import "github.com/glaslos/ssdeep"

// FuzzyHash computes ssdeep context-triggered piecewise hashes over
// scanned buffers, letting callers cluster/compare suspicious images
// without needing an exact byte match.
type FuzzyHash struct{}

// NewFuzzyHash returns a ready-to-use hasher; it carries no state.
func NewFuzzyHash() *FuzzyHash { return &FuzzyHash{} }

// Hash returns the ssdeep digest of buf.
func (FuzzyHash) Hash(buf []byte) (string, error) {
	return ssdeep.FuzzyBytes(buf)
}
