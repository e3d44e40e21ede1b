package config

import (
	"testing"

	"github.com/pescan-dev/pescan/pkg/types"
)

func TestFilterCfgResolve(t *testing.T) {
	cases := []struct {
		mode string
		want types.FilterMode
	}{
		{"unfiltered", types.FilterUnfiltered},
		{"listed", types.FilterListed},
		{"clean_sys_filtered", types.FilterCleanSysFiltered},
		{"unfiltered_sys_all", types.FilterUnfilteredSysAll},
		{"", types.FilterCleanSysFiltered},
		{"bogus", types.FilterCleanSysFiltered},
	}
	for _, c := range cases {
		if got := (FilterCfg{Mode: c.mode}).Resolve(); got != c.want {
			t.Errorf("Resolve(%q) = %v, want %v", c.mode, got, c.want)
		}
	}
}
