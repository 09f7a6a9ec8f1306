package validation

import (
	"strings"
	"testing"
)

type layerSpec struct {
	Name string  `validate:"required"`
	P    float64 `validate:"gte=0,lte=1"`
	Kind string  `validate:"omitempty,oneof=clique ring"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		wantErr string
	}{
		{"valid", &layerSpec{Name: "work", P: 0.2}, ""},
		{"missing name", &layerSpec{P: 0.2}, "field is required"},
		{"probability too high", &layerSpec{Name: "work", P: 1.5}, "must not exceed 1"},
		{"probability negative", &layerSpec{Name: "work", P: -1}, "must be at least 0"},
		{"bad kind", &layerSpec{Name: "work", Kind: "star"}, "must be one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Struct() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestStructNil(t *testing.T) {
	if err := Struct(nil); err == nil {
		t.Error("expected error for nil")
	}
}

type networkSpec struct {
	MaxAge int `yaml:"max_age" validate:"gte=1"`
}

type paramsSpec struct {
	Network networkSpec `yaml:"network"`
	Runs    int         `yaml:"monte_carlo_runs,omitempty" validate:"gte=1"`
}

func TestStructUsesYAMLNames(t *testing.T) {
	err := Struct(&paramsSpec{Runs: 1})
	if err == nil || !strings.HasPrefix(err.Error(), "network.max_age:") {
		t.Errorf("error = %v, want prefix network.max_age:", err)
	}
	err = Struct(&paramsSpec{Network: networkSpec{MaxAge: 90}})
	if err == nil || !strings.HasPrefix(err.Error(), "monte_carlo_runs:") {
		t.Errorf("error = %v, want prefix monte_carlo_runs:", err)
	}
}
