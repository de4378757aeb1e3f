package types

import (
	"encoding/json"
	"testing"
)

func TestQuantityConversionRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		qty    float64
		factor float64
		want   float64 // qty * factor, rounded to 2 decimals
	}{
		{"whole sacks", 40, 25, 1000},
		{"fractional sacks", 30.5, 25, 762.5},
		{"pallet", 1, 1000, 1000},
		{"sub-unit factor", 10, 0.25, 2.5},
		{"rounding at 2dp", 1, 0.3333, 0.33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQuantityFromFloat64(tt.qty)
			f := NewQuantityFromFloat64(tt.factor)

			got := q.MulFactor(f).Round2()
			if got.Float64() != tt.want {
				t.Errorf("MulFactor(%v, %v) = %v, want %v", tt.qty, tt.factor, got.Float64(), tt.want)
			}
		})
	}
}

func TestQuantityDivFactor(t *testing.T) {
	// 750 kg in 25 kg sacks = 30 sacks
	base := NewQuantityFromFloat64(750)
	factor := NewQuantityFromFloat64(25)

	got := base.DivFactor(factor).Round2()
	if got.Float64() != 30 {
		t.Errorf("DivFactor = %v, want 30", got.Float64())
	}

	// Indivisible remainder keeps full precision until Round2
	base = NewQuantityFromFloat64(751)
	got = base.DivFactor(factor).Round2()
	if got.Float64() != 30.04 {
		t.Errorf("DivFactor = %v, want 30.04", got.Float64())
	}
}

func TestQuantityRound2HalfAwayFromZero(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.005, 1.01},
		{1.004, 1.0},
		{-1.005, -1.01},
		{-1.004, -1.0},
		{0.0049, 0.0},
	}

	for _, tt := range tests {
		got := NewQuantityFromFloat64(tt.in).Round2()
		if got.Float64() != tt.want {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got.Float64(), tt.want)
		}
	}
}

func TestQuantityIsNegligible(t *testing.T) {
	if !NewQuantityFromFloat64(0.0009).IsNegligible() {
		t.Error("0.0009 should be negligible")
	}
	if NewQuantityFromFloat64(0.001).IsNegligible() {
		t.Error("0.001 should not be negligible")
	}
	if !NewQuantityFromFloat64(-0.0005).IsNegligible() {
		t.Error("-0.0005 should be negligible")
	}
}

func TestQuantityJSON(t *testing.T) {
	type payload struct {
		Qty Quantity `json:"qty"`
	}

	var p payload
	if err := json.Unmarshal([]byte(`{"qty": 30.5}`), &p); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if p.Qty != NewQuantityFromFloat64(30.5) {
		t.Errorf("unmarshal number = %v", p.Qty)
	}

	if err := json.Unmarshal([]byte(`{"qty": "12.25"}`), &p); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if p.Qty != NewQuantityFromFloat64(12.25) {
		t.Errorf("unmarshal string = %v", p.Qty)
	}

	// Exponent form is accepted too, via the float path.
	if err := json.Unmarshal([]byte(`{"qty": 2.5e2}`), &p); err != nil {
		t.Fatalf("unmarshal exponent: %v", err)
	}
	if p.Qty != NewQuantityFromFloat64(250) {
		t.Errorf("unmarshal exponent = %v", p.Qty)
	}

	out, err := json.Marshal(payload{Qty: NewQuantityFromFloat64(40)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"qty":40.0000}` {
		t.Errorf("marshal = %s", out)
	}
}
