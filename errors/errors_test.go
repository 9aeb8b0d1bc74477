package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(42), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			if got := test.class.String(); got != test.expected {
				t.Errorf("expected %s, got %s", test.expected, got)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection lost", ErrConnectionLost, true},
		{"storage unavailable", ErrStorageUnavailable, true},
		{"context canceled", context.Canceled, true},
		{"timeout in message", fmt.Errorf("fetch timeout from remote"), true},
		{"spool file exists", ErrSpoolFileExists, false},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("x")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("timeout")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsTransient(test.err); got != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, got, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"spool file exists", ErrSpoolFileExists, true},
		{"no active exchanges", ErrNoActiveExchanges, true},
		{"unit of work done", ErrUnitOfWorkDone, true},
		{"disk full message", fmt.Errorf("write /tmp/x: no space left on device"), true},
		{"connection lost", ErrConnectionLost, false},
		{"wrapped fatal", fmt.Errorf("outer: %w", WrapFatal(errors.New("x"), "A", "B", "c")), true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsFatal(test.err); got != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, got, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	if !IsInvalid(ErrUnsupportedCipher) {
		t.Error("unsupported cipher should be invalid")
	}
	if !IsInvalid(WrapInvalid(errors.New("bad"), "Config", "Validate", "threshold")) {
		t.Error("WrapInvalid should produce an invalid error")
	}
	if IsInvalid(ErrConnectionLost) {
		t.Error("connection lost should not be invalid")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil", nil, ErrorTransient},
		{"fatal", ErrUnitOfWorkDone, ErrorFatal},
		{"invalid", ErrInvalidConfig, ErrorInvalid},
		{"unknown", errors.New("something odd"), ErrorTransient},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.err); got != test.expected {
				t.Errorf("expected %v, got %v", test.expected, got)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("disk gone")
	err := Wrap(base, "TempFileManager", "CreateOutputStream", "open spool file")

	want := "TempFileManager.CreateOutputStream: open spool file failed: disk gone"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should unwrap to base")
	}
	if Wrap(nil, "a", "b", "c") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("boom")

	err := WrapFatal(base, "Comp", "Op", "act")
	var ce *ClassifiedError
	if !errors.As(err, &ce) {
		t.Fatal("expected classified error")
	}
	if ce.Class != ErrorFatal || ce.Component != "Comp" || ce.Operation != "Op" {
		t.Errorf("unexpected classified fields: %+v", ce)
	}
	if !errors.Is(err, base) {
		t.Error("classified error should unwrap to base")
	}

	if WrapTransient(nil, "a", "b", "c") != nil {
		t.Error("WrapTransient(nil) should be nil")
	}
}

func TestRetryConfig(t *testing.T) {
	rc := RetryConfig{MaxRetries: 2}

	if !rc.ShouldRetry(ErrConnectionLost, 0) {
		t.Error("transient error within budget should retry")
	}
	if rc.ShouldRetry(ErrConnectionLost, 2) {
		t.Error("exhausted budget should not retry")
	}
	if rc.ShouldRetry(ErrInvalidConfig, 0) {
		t.Error("invalid error should not retry")
	}
	if got := rc.ToRetryConfig().MaxAttempts; got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if DefaultRetryConfig().ShouldRetry(ErrConnectionLost, 0) {
		t.Error("default config should not retry within a tick")
	}
}
