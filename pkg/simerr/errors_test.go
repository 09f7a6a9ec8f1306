package simerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "configuration with field",
			err:      Config("build").Field("ward W1").Msg("fractions sum to %.2f", 0.8),
			expected: "configuration: build (field ward W1): fractions sum to 0.80",
		},
		{
			name:     "corruption with seed, timestep and agent",
			err:      Corruption("advance").Seed(3).Timestep(12).Agent(40).Msg("negative dwell"),
			expected: "state corruption: advance seed=3 t=12 agent=40: negative dwell",
		},
		{
			name:     "export with context",
			err:      Export("emit").Seed(0).Context("sink graphml").Wrap(fmt.Errorf("disk full")),
			expected: "export: emit seed=0 (sink graphml): disk full",
		},
		{
			name:     "minimal",
			err:      Config("load").Build(),
			expected: "configuration: load",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_KindMatching(t *testing.T) {
	cfg := Config("build").Msg("bad")
	bad := Corruption("step").Msg("bad")
	exp := Export("emit").Msg("bad")

	if !IsConfiguration(cfg) || IsStateCorruption(cfg) || IsExport(cfg) {
		t.Error("configuration error misclassified")
	}
	if !IsStateCorruption(bad) || IsConfiguration(bad) {
		t.Error("state corruption error misclassified")
	}
	if !IsExport(exp) || IsStateCorruption(exp) {
		t.Error("export error misclassified")
	}

	wrapped := fmt.Errorf("seed 4: %w", bad)
	if !IsStateCorruption(wrapped) {
		t.Error("wrapped corruption should still match")
	}
}

func TestError_UnwrapCause(t *testing.T) {
	cause := errors.New("boom")
	err := Export("emit").Wrap(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}

	var se *Error
	if !errors.As(err, &se) {
		t.Fatal("errors.As should find *Error")
	}
	if se.Kind != KindExport {
		t.Errorf("Kind = %v, want export", se.Kind)
	}
}

func TestWithSeed(t *testing.T) {
	err := Config("build").Msg("no age table")
	err = WithSeed(err, 7)

	var se *Error
	if !errors.As(err, &se) {
		t.Fatal("expected *Error")
	}
	if se.Seed != 7 {
		t.Errorf("Seed = %d, want 7", se.Seed)
	}

	// An explicit seed is kept.
	err = WithSeed(Config("build").Seed(2).Msg("x"), 9)
	errors.As(err, &se)
	if se.Seed != 2 {
		t.Errorf("Seed = %d, want 2", se.Seed)
	}

	plain := errors.New("plain")
	if WithSeed(plain, 1) != plain {
		t.Error("non-taxonomy errors should pass through")
	}
}
