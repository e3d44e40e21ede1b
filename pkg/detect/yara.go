// Package detect wraps the optional detection-extras collaborators the
// IAT Scanner and Thread Scanner can be handed: a YARA rule scanner and a
// fuzzy (ssdeep) hasher. Both are nil-safe; leaving them unset disables
// the corresponding enrichment with no change to the core algorithms.
package detect

import (
	"os"

	yara "github.com/hillu/go-yara/v4"
)

// YaraScanner compiles a rule file once and scans buffers against it.
type YaraScanner struct {
	rules *yara.Rules
}

// NewYaraScanner compiles every rule in the single rule file at
// rulesPath; a directory of rule files is not accepted.
func NewYaraScanner(rulesPath string) (*YaraScanner, error) {
	f, err := os.Open(rulesPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	compiler, err := yara.NewCompiler()
	if err != nil {
		return nil, err
	}
	if err := compiler.AddFile(f, ""); err != nil {
		return nil, err
	}
	rules, err := compiler.GetRules()
	if err != nil {
		return nil, err
	}
	return &YaraScanner{rules: rules}, nil
}

// Scan returns the names of every rule that matched buf.
func (y *YaraScanner) Scan(buf []byte) ([]string, error) {
	var matches yara.MatchRules
	if err := y.rules.ScanMem(buf, 0, 0, &matches); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.Rule)
	}
	return names, nil
}
