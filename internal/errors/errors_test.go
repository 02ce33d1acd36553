package errors

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "validation error",
			err:      Missing("actual_sales"),
			expected: "Error: validation failed: actual_sales is required",
		},
		{
			name:     "not found error",
			err:      NotFound("activity", "a-1"),
			expected: "Error: activity not found: a-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Format(tt.err)
			if result != tt.expected {
				t.Errorf("Format(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestFormatf(t *testing.T) {
	got := Formatf("quota for %s on %s", "agent-7", "2026-10-19")
	want := "Error: quota for agent-7 on 2026-10-19"
	if got != want {
		t.Errorf("Formatf() = %q, want %q", got, want)
	}
}

func TestTaxonomyMatching(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", Invalid("callstatus", "unknown value %q", "Maybe"), ErrValidation},
		{"not found", NotFound("quota", "agent-1/2026-10-19"), ErrNotFound},
		{"conflict", Conflict("activity", "a-1"), ErrConflict},
		{"dependency", Dependency("survey dispatcher", errors.New("timeout")), ErrDependency},
		{"wrapped validation", fmt.Errorf("update rejected: %w", Missing("so_number")), ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false, want true", tt.err, tt.sentinel)
			}
			for _, other := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrDependency} {
				if other != tt.sentinel && errors.Is(tt.err, other) {
					t.Errorf("errors.Is(%v, %v) = true, want false", tt.err, other)
				}
			}
		})
	}
}

func TestDependencyUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Dependency("account registry", cause)
	if !errors.Is(err, cause) {
		t.Errorf("Dependency error should unwrap to its cause")
	}
	if Dependency("account registry", nil) != nil {
		t.Errorf("Dependency(nil) should return nil")
	}

	var dep *DependencyError
	if !errors.As(err, &dep) || dep.Dependency != "account registry" {
		t.Errorf("errors.As() did not recover DependencyError, got %#v", dep)
	}
}

func TestValidationErrorField(t *testing.T) {
	var verr *ValidationError
	err := fmt.Errorf("wrapped: %w", Missing("followup_date"))
	if !errors.As(err, &verr) {
		t.Fatal("errors.As() failed for ValidationError")
	}
	if verr.Field != "followup_date" {
		t.Errorf("Field = %q, want followup_date", verr.Field)
	}
}

// TestFatal tests the Fatal function using exec helper process
func TestFatal(t *testing.T) {
	if os.Getenv("GO_TEST_FATAL") == "1" {
		Fatal(errors.New("test error"))
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFatal$")
	cmd.Env = append(os.Environ(), "GO_TEST_FATAL=1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if e, ok := err.(*exec.ExitError); ok && !e.Success() {
		if e.ExitCode() != 1 {
			t.Errorf("Fatal() exit code = %d, want 1", e.ExitCode())
		}
		if !strings.Contains(stderr.String(), "Error: test error") {
			t.Errorf("Fatal() stderr = %q, want to contain %q", stderr.String(), "Error: test error")
		}
	} else {
		t.Errorf("Fatal() did not exit with error: %v", err)
	}
}

// TestFatal_NilError tests that Fatal does nothing when passed a nil error
func TestFatal_NilError(t *testing.T) {
	if os.Getenv("GO_TEST_FATAL_NIL") == "1" {
		Fatal(nil)
		os.Exit(0)
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFatal_NilError")
	cmd.Env = append(os.Environ(), "GO_TEST_FATAL_NIL=1")

	if err := cmd.Run(); err != nil {
		t.Errorf("Fatal(nil) should not exit, but got error: %v", err)
	}
}
