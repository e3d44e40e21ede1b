package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestWithAddsField(t *testing.T) {
	base := New(zap.NewNop())
	child := base.With(context.Background(), "pid", 42)

	if child.Sugar() == base.Sugar() {
		t.Fatalf("With should return a distinct child logger")
	}
}
