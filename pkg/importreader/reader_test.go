package importreader

import "testing"

func TestDeclaredFuncByName(t *testing.T) {
	f := declaredFunc("kernel32", "HeapAlloc", false, 0)
	if f == nil || f.LibName != "kernel32" || f.FuncName != "HeapAlloc" {
		t.Fatalf("unexpected: %+v", f)
	}
}

func TestDeclaredFuncByOrdinal(t *testing.T) {
	f := declaredFunc("ws2_32", "", true, 42)
	if f == nil || f.FuncName != "" || f.Ordinal != 42 {
		t.Fatalf("unexpected: %+v", f)
	}
	if got := f.String(); got != "ws2_32.#42" {
		t.Fatalf("expected ordinal rendering, got %q", got)
	}
}

func TestDeclaredFuncUnresolved(t *testing.T) {
	if f := declaredFunc("mystery", "", false, 0); f != nil {
		t.Fatalf("expected nil for unresolved import, got %+v", f)
	}
}
