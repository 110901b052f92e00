package service

import (
	"encoding/json"
	"testing"

	"DealSync/internal/model"
)

func TestValidatorValidate(t *testing.T) {
	v := NewValidator(testCatalog())
	titles := []string{
		"3080 for sale",
		"[USA-NY] [H] RTX 3080 Ti FE, RX 6800 XT [W] PayPal",
		"[USA-TX] [H] RTX 3080 Founders Edition 10GB LHR card [W] Local cash",
	}

	tests := []struct {
		name      string
		entry     model.ExtractedEntry
		strict    bool
		wantModel string
		wantPrice int
		wantIdx   int
		reason    string
	}{
		{"model not in title", entry("4090", 1500, "Listing 1"), true, "", 0, 0, ReasonModel},
		{"canonical spelling", entry("3080 ti", 650, "Listing 2"), true, "3080 Ti", 650, 1, ""},
		{"whitespace ignored", entry("rx6800xt", "400", "Listing 2"), false, "rx6800xt", 400, 1, ""},
		{"strict needs vocabulary", entry("RTX 3080 Ti", 650, "Listing 2"), true, "", 0, 0, ReasonModel},
		{"permissive keeps oracle value", entry(" RTX 3080 Ti ", 650, "Listing 2"), false, "RTX 3080 Ti", 650, 1, ""},
		{"fraction truncated", entry("3080", "450.99", "Listing 1"), true, "3080", 450, 0, ""},
		{"numeric listing id", entry("3080", 450, "1"), true, "3080", 450, 0, ""},
		{"zero price", entry("3080", 0, "Listing 1"), true, "", 0, 0, ReasonPrice},
		{"text price", entry("3080", "best offer", "Listing 1"), true, "", 0, 0, ReasonPrice},
		{"missing price", model.ExtractedEntry{Model: "3080", ListingRef: "Listing 1"}, true, "", 0, 0, ReasonPrice},
		{"ref out of range", entry("3080", 450, "Listing 4"), true, "", 0, 0, ReasonRef},
		{"price above int4", entry("3080", "3000000000", "Listing 1"), true, "", 0, 0, ReasonPrice},
		{"price at int4 max", entry("3080", 2147483647, "Listing 1"), true, "3080", 2147483647, 0, ""},
		{"model wider than column", entry("RTX 3080 Founders Edition 10GB LHR card", 700, "Listing 3"), false, "", 0, 0, ReasonModel},
		{"model at column width", entry("RTX 3080 Founders Edition 10GB", 700, "Listing 3"), false, "RTX 3080 Founders Edition 10GB", 700, 2, ""},
		{"missing ref", entry("3080", 450, ""), true, "", 0, 0, ReasonRef},
		{"empty model", entry("  ", 450, "Listing 1"), false, "", 0, 0, ReasonModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason, err := v.Validate(tt.entry, titles, tt.strict)
			if tt.reason != "" {
				if err == nil || reason != tt.reason {
					t.Fatalf("Validate: got (%+v, %q, %v), want rejection %q", got, reason, err, tt.reason)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate: unexpected error %v (reason %q)", err, reason)
			}
			if got.Model != tt.wantModel || got.Price != tt.wantPrice || got.Index != tt.wantIdx {
				t.Errorf("Validate: got %+v, want model=%q price=%d index=%d", got, tt.wantModel, tt.wantPrice, tt.wantIdx)
			}
		})
	}
}

func TestCoercePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want int
		ok   bool
	}{
		{`450`, 450, true},
		{`"450"`, 450, true},
		{`" 1200.5 "`, 1200, true},
		{`-5`, 0, false},
		{`0.4`, 0, false},
		{`null`, 0, false},
		{`"$450"`, 0, false},
		{`2147483648`, 0, false},
		{`"2147483647.9"`, 2147483647, true},
		{`1e300`, 0, false},
		{`"NaN"`, 0, false},
		{`"Inf"`, 0, false},
		{`"-Inf"`, 0, false},
	}
	for _, tt := range tests {
		got, err := coercePrice(json.RawMessage(tt.raw))
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("coercePrice(%s): got (%d, %v), want %d ok=%v", tt.raw, got, err, tt.want, tt.ok)
		}
	}
}
