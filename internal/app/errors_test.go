package app

import (
	"errors"
	"testing"
)

func TestComponentError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ComponentError
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "component only",
			err:      &ComponentError{Component: "watcher"},
			expected: "watcher",
		},
		{
			name:     "component and action",
			err:      &ComponentError{Component: "watcher", Action: "watch"},
			expected: "watcher: watch",
		},
		{
			name:     "component, action, and error",
			err:      &ComponentError{Component: "watcher", Action: "add", Err: errors.New("too many open files")},
			expected: "watcher: add: too many open files",
		},
		{
			name:     "component and error only",
			err:      &ComponentError{Component: "watcher", Err: errors.New("failed")},
			expected: "watcher: failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.err.Error()
			if result != tt.expected {
				t.Errorf("Error() = '%s', expected '%s'", result, tt.expected)
			}
		})
	}
}

func TestComponentError_Unwrap(t *testing.T) {
	inner := errors.New("inner error")
	err := NewComponentError("watcher", "add", inner)

	if err.Unwrap() != inner {
		t.Error("Unwrap() did not return inner error")
	}
}

func TestComponentError_Unwrap_Nil(t *testing.T) {
	var err *ComponentError
	if err.Unwrap() != nil {
		t.Error("expected nil from Unwrap() on nil receiver")
	}
}

func TestComponentError_Is(t *testing.T) {
	sentinel := errors.New("sentinel error")
	err := NewComponentError("watcher", "add", sentinel)

	// Should match wrapped error
	if !errors.Is(err, sentinel) {
		t.Error("expected errors.Is to match wrapped sentinel")
	}

	// Should match same instance
	if !errors.Is(err, err) {
		t.Error("expected errors.Is to match same instance")
	}
}

func TestComponentError_Is_Nil(t *testing.T) {
	var err *ComponentError
	if err.Is(errors.New("any")) {
		t.Error("expected Is() to return false for nil receiver")
	}
}

func TestWrapError(t *testing.T) {
	inner := errors.New("inner error")
	wrapped := WrapError(inner, "context: %s", "value")

	if wrapped == nil {
		t.Fatal("expected non-nil wrapped error")
	}
	if !errors.Is(wrapped, inner) {
		t.Error("expected wrapped error to contain inner error")
	}
	expected := "context: value: inner error"
	if wrapped.Error() != expected {
		t.Errorf("expected '%s', got '%s'", expected, wrapped.Error())
	}
}

func TestWrapError_Nil(t *testing.T) {
	wrapped := WrapError(nil, "context")
	if wrapped != nil {
		t.Error("expected nil for nil input")
	}
}

func TestSentinelErrors(t *testing.T) {
	// Verify all sentinel errors are distinct
	sentinels := []error{
		ErrAlreadyRunning,
		ErrInitialization,
		ErrShutdownTimeout,
		ErrDownloadDisabled,
	}

	for i, err1 := range sentinels {
		for j, err2 := range sentinels {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}
