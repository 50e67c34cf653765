package provider

import (
	"math"
	"testing"
)

func TestCost_PerMillion(t *testing.T) {
	usage := &TokenUsage{Input: 500, Output: 500}
	pricing := &Pricing{Input: 10, Output: 40, Unit: PerMillionTokens}

	got := Cost(usage, pricing)
	if got == nil {
		t.Fatal("Cost() = nil, want value")
	}
	if math.Abs(*got-0.025) > 1e-9 {
		t.Errorf("Cost() = %v, want 0.025", *got)
	}
}

func TestCost_PerThousand(t *testing.T) {
	usage := &TokenUsage{Input: 1000, Output: 2000}
	pricing := &Pricing{Input: 0.01, Output: 0.03, Unit: PerThousandTokens}

	got := Cost(usage, pricing)
	if got == nil {
		t.Fatal("Cost() = nil, want value")
	}
	want := 0.01 + 2*0.03
	if math.Abs(*got-want) > 1e-9 {
		t.Errorf("Cost() = %v, want %v", *got, want)
	}
}

func TestCost_MissingInputs(t *testing.T) {
	pricing := &Pricing{Input: 1, Output: 1, Unit: PerMillionTokens}
	usage := &TokenUsage{Input: 10, Output: 10}

	if got := Cost(nil, pricing); got != nil {
		t.Errorf("Cost(nil usage) = %v, want nil", *got)
	}
	if got := Cost(usage, nil); got != nil {
		t.Errorf("Cost(nil pricing) = %v, want nil", *got)
	}
}

func TestCost_ZeroUsage(t *testing.T) {
	usage := &TokenUsage{}
	pricing := &Pricing{Input: 10, Output: 40, Unit: PerMillionTokens}

	got := Cost(usage, pricing)
	if got == nil {
		t.Fatal("Cost() = nil, want zero value")
	}
	if *got != 0 {
		t.Errorf("Cost() = %v, want 0", *got)
	}
}

func TestEstimateUsage(t *testing.T) {
	tests := []struct {
		total       int64
		wantIn      int64
		wantOut     int64
		wantPresent bool
	}{
		{1000, 500, 500, true},
		{101, 50, 51, true},
		{1, 0, 1, true},
		{0, 0, 0, false},
		{-5, 0, 0, false},
	}

	for _, tt := range tests {
		got := EstimateUsage(tt.total)
		if !tt.wantPresent {
			if got != nil {
				t.Errorf("EstimateUsage(%d) = %+v, want nil", tt.total, got)
			}
			continue
		}
		if got == nil {
			t.Fatalf("EstimateUsage(%d) = nil", tt.total)
		}
		if got.Input != tt.wantIn || got.Output != tt.wantOut {
			t.Errorf("EstimateUsage(%d) = {%d, %d}, want {%d, %d}",
				tt.total, got.Input, got.Output, tt.wantIn, tt.wantOut)
		}
		if got.Total() != tt.total {
			t.Errorf("EstimateUsage(%d).Total() = %d", tt.total, got.Total())
		}
	}
}

func TestDefaultPricing(t *testing.T) {
	if p := DefaultPricing("gpt-4o"); p == nil || p.Input != 2.50 {
		t.Errorf("DefaultPricing(gpt-4o) = %+v, want exact match", p)
	}

	// Versioned model names resolve by longest prefix.
	if p := DefaultPricing("gpt-4o-mini-2024-07-18"); p == nil || p.Input != 0.15 {
		t.Errorf("DefaultPricing(gpt-4o-mini-...) = %+v, want gpt-4o-mini entry", p)
	}
	if p := DefaultPricing("claude-opus-4-20250514"); p == nil || p.Output != 75.00 {
		t.Errorf("DefaultPricing(claude-opus-4-...) = %+v, want claude-opus-4 entry", p)
	}

	if p := DefaultPricing("unknown-model"); p != nil {
		t.Errorf("DefaultPricing(unknown) = %+v, want nil", p)
	}
	if p := DefaultPricing(""); p != nil {
		t.Errorf("DefaultPricing(\"\") = %+v, want nil", p)
	}
}

func TestPricingValidate(t *testing.T) {
	valid := Pricing{Input: 1, Output: 2, Unit: PerThousandTokens}
	if err := valid.validate(); err != nil {
		t.Errorf("validate() error = %v", err)
	}

	negative := Pricing{Input: -1, Unit: PerThousandTokens}
	if err := negative.validate(); err == nil {
		t.Error("validate() expected error for negative price")
	}

	badUnit := Pricing{Input: 1, Output: 1, Unit: 500}
	if err := badUnit.validate(); err == nil {
		t.Error("validate() expected error for unknown unit")
	}
}
