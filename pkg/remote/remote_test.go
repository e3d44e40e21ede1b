package remote

import "testing"

func TestProtectionIsWritableExecutable(t *testing.T) {
	cases := []struct {
		p    Protection
		want bool
	}{
		{ProtExecuteReadWrite, true},
		{ProtExecuteWriteCopy, true},
		{ProtExecuteRead, false},
		{ProtExecute, false},
		{ProtReadWrite, false},
		{ProtNoAccess, false},
	}
	for _, c := range cases {
		if got := c.p.IsWritableExecutable(); got != c.want {
			t.Errorf("Protection(0x%x).IsWritableExecutable() = %v, want %v", uint32(c.p), got, c.want)
		}
	}
}
