package validation

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestConfigValidator_Required(t *testing.T) {
	if err := NewConfigValidator("Params").Required("name", "").Validate(); err == nil {
		t.Error("expected error for empty required field")
	}
	if err := NewConfigValidator("Params").Required("name", "x").Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConfigValidator_IntRules(t *testing.T) {
	tests := []struct {
		name    string
		apply   func(*ConfigValidator)
		wantErr bool
	}{
		{"min ok", func(cv *ConfigValidator) { cv.MinInt("n", 1, 1) }, false},
		{"min fail", func(cv *ConfigValidator) { cv.MinInt("n", 0, 1) }, true},
		{"range ok", func(cv *ConfigValidator) { cv.RangeInt("age", 5, 0, 17) }, false},
		{"range fail", func(cv *ConfigValidator) { cv.RangeInt("age", 18, 0, 17) }, true},
		{"positive fail", func(cv *ConfigValidator) { cv.Positive("runs", 0) }, true},
		{"non-negative ok", func(cv *ConfigValidator) { cv.NonNegative("offset", 0) }, false},
		{"non-negative fail", func(cv *ConfigValidator) { cv.NonNegative("offset", -1) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cv := NewConfigValidator("Params")
			tt.apply(cv)
			if got := cv.HasErrors(); got != tt.wantErr {
				t.Errorf("HasErrors() = %v, want %v (%v)", got, tt.wantErr, cv.Errors())
			}
		})
	}
}

func TestConfigValidator_FloatRules(t *testing.T) {
	tests := []struct {
		name    string
		apply   func(*ConfigValidator)
		wantErr bool
	}{
		{"probability zero", func(cv *ConfigValidator) { cv.Probability("p", 0) }, false},
		{"probability one", func(cv *ConfigValidator) { cv.Probability("p", 1) }, false},
		{"probability above", func(cv *ConfigValidator) { cv.Probability("p", 1.01) }, true},
		{"probability negative", func(cv *ConfigValidator) { cv.Probability("p", -0.1) }, true},
		{"probability NaN", func(cv *ConfigValidator) { cv.Probability("p", math.NaN()) }, true},
		{"positive float fail", func(cv *ConfigValidator) { cv.PositiveFloat("mean", 0) }, true},
		{"positive float inf", func(cv *ConfigValidator) { cv.PositiveFloat("mean", math.Inf(1)) }, true},
		{"non-negative float ok", func(cv *ConfigValidator) { cv.NonNegativeFloat("r", 0) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cv := NewConfigValidator("Params")
			tt.apply(cv)
			if got := cv.HasErrors(); got != tt.wantErr {
				t.Errorf("HasErrors() = %v, want %v (%v)", got, tt.wantErr, cv.Errors())
			}
		})
	}
}

func TestConfigValidator_OneOf(t *testing.T) {
	cv := NewConfigValidator("Dwell").OneOf("distribution", "weibull", []string{"fixed", "exponential"})
	if !cv.HasErrors() {
		t.Fatal("expected error")
	}
	if !strings.Contains(cv.Validate().Error(), "Dwell.distribution") {
		t.Errorf("error should name the field: %v", cv.Validate())
	}
}

func TestConfigValidator_CustomAndWhen(t *testing.T) {
	sentinel := errors.New("window inverted")
	cv := NewConfigValidator("Intervention").
		Custom("end", func() error { return sentinel }).
		When(false, func(cv *ConfigValidator) { cv.Positive("never", 0) })

	if len(cv.Errors()) != 1 {
		t.Fatalf("expected 1 error, got %v", cv.Errors())
	}
	if !errors.Is(cv.Validate(), sentinel) {
		t.Error("custom error should be wrapped")
	}
}

func TestConfigValidator_MergeAndMultipleErrors(t *testing.T) {
	inner := NewConfigValidator("Layer").Probability("p", 2)
	cv := NewConfigValidator("Params").Positive("runs", 0).Merge(inner)

	err := cv.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "2 errors") {
		t.Errorf("expected count in message, got %v", err)
	}
	if !strings.Contains(err.Error(), "Layer.p") {
		t.Errorf("merged error missing: %v", err)
	}
}

func TestDefaultOr(t *testing.T) {
	if DefaultOr("", "household") != "household" {
		t.Error("empty string should take default")
	}
	if DefaultOr(0.5, 1.0) != 0.5 {
		t.Error("non-zero float should be kept")
	}
	if DefaultOrInt(-3, 4) != 4 || DefaultOrInt(2, 4) != 2 {
		t.Error("DefaultOrInt wrong")
	}
}
