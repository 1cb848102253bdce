package logger

import (
	"context"
	"testing"
)

func TestWithRunID_And_RunIDFromContext(t *testing.T) {
	ctx := context.Background()
	runID := "run-12345"

	if got := RunIDFromContext(ctx); got != "" {
		t.Errorf("RunIDFromContext() on empty ctx = %v, want empty", got)
	}

	ctx = WithRunID(ctx, runID)
	if got := RunIDFromContext(ctx); got != runID {
		t.Errorf("RunIDFromContext() = %v, want %v", got, runID)
	}
}

func TestFromContext_WithRunID(t *testing.T) {
	base := New()
	ctx := context.Background()
	runID := "run-67890"

	logger := FromContext(ctx, base)
	if logger == nil {
		t.Error("FromContext() returned nil")
	}

	ctx = WithRunID(ctx, runID)
	loggerWithID := FromContext(ctx, base)
	if loggerWithID == nil {
		t.Error("FromContext() with run id returned nil")
	}
}

func TestNew_ReturnsLogger(t *testing.T) {
	logger := New()
	if logger == nil {
		t.Error("New() returned nil")
	}
}
