package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	cause := errors.New("disk full")
	tests := []struct {
		name string
		err  *Error
		want string
		msg  string
	}{
		{
			"plain",
			New(ErrCodeInvalidCoordinate, "invalid coordinate %q", "junit"),
			`INVALID_COORDINATE: invalid coordinate "junit"`,
			`invalid coordinate "junit"`,
		},
		{
			"wrapped",
			Wrap(ErrCodeStorage, cause, "save registry to %s", "registry.json"),
			"STORAGE_ERROR: save registry to registry.json: disk full",
			"save registry to registry.json: disk full",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if got := UserMessage(tt.err); got != tt.msg {
				t.Errorf("UserMessage() = %q, want %q", got, tt.msg)
			}
		})
	}
	if got := UserMessage(cause); got != "disk full" {
		t.Errorf("UserMessage(plain) = %q", got)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(ErrCodeMalformedDocument, cause, "read metadata")
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap() lost the cause")
	}
}

func TestIsAndGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code Code
	}{
		{"coded", New(ErrCodeNotFound, "missing"), ErrCodeNotFound},
		{"outer code wins", Wrap(ErrCodeStorage, New(ErrCodeInvalidInput, "inner"), "outer"), ErrCodeStorage},
		{"through fmt wrapping", fmt.Errorf("load: %w", New(ErrCodeInvalidConfig, "bad")), ErrCodeInvalidConfig},
		{"plain", errors.New("plain"), ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.code {
				t.Errorf("GetCode() = %q, want %q", got, tt.code)
			}
			if tt.code != "" && !Is(tt.err, tt.code) {
				t.Errorf("Is(%q) = false", tt.code)
			}
			if Is(tt.err, ErrCodeCycleRunning) {
				t.Error("Is(CYCLE_RUNNING) = true")
			}
		})
	}
	if Is(errors.New("plain"), "") {
		t.Error("Is(plain, \"\") should not match")
	}
}

func TestViolation(t *testing.T) {
	defer func() {
		err, ok := recover().(*Error)
		if !ok {
			t.Fatal("Violation() did not panic with *Error")
		}
		if err.Code != ErrCodeUnknownRepository || err.Message != `no repository with id "nope"` {
			t.Errorf("recovered %v", err)
		}
	}()
	Violation(ErrCodeUnknownRepository, "no repository with id %q", "nope")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{New(ErrCodeInvalidCoordinate, "x"), ExitUsage},
		{New(ErrCodeInvalidConfig, "x"), ExitUsage},
		{fmt.Errorf("cmd: %w", New(ErrCodeNotFound, "x")), ExitNotFound},
		{New(ErrCodeUnknownArtifact, "x"), ExitNotFound},
		{New(ErrCodeStorage, "x"), ExitFailure},
		{errors.New("plain"), ExitFailure},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
