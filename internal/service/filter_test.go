package service

import (
	"strings"
	"testing"
)

func TestCandidateFilterAccepts(t *testing.T) {
	f := NewCandidateFilter(testCatalog(), 1400)

	tests := []struct {
		name   string
		title  string
		body   string
		want   bool
		reason string
	}{
		{"plain model", "[USA-TX][H] RTX 3080 FE [W] PayPal", "", true, ""},
		{"case insensitive", "[H] rx 6800 xt reference [W] cash", "", true, ""},
		{"custom build rejected", "Selling RTX 3080 10GB, full custom build with case", "", false, ReasonKeyword + ":custom build"},
		{"keyword in body", "[H] 4090 [W] PayPal", "Part of a PREBUILT, never opened", false, ReasonKeyword + ":prebuilt"},
		{"digit boundary", "[H] 10800 mAh power bank [W] PayPal", "", false, ReasonNoModel},
		{"model only in body", "[H] graphics card [W] PayPal", "it is a 3080", false, ReasonNoModel},
		{"too long", "[H] 3080 [W] PayPal", strings.Repeat("x", 1400), false, ReasonTooLong},
		{"length counts characters", "[H] 3080 [W] PayPal", strings.Repeat("€", 1380), true, ""},
		{"one character over", "[H] 3080 [W] PayPal", strings.Repeat("€", 1381), false, ReasonTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := f.Accepts(tt.title, tt.body)
			if ok != tt.want || reason != tt.reason {
				t.Errorf("Accepts: got (%v, %q), want (%v, %q)", ok, reason, tt.want, tt.reason)
			}
		})
	}
}

func TestCandidateFilterFollowsCatalogReload(t *testing.T) {
	store := testCatalog()
	f := NewCandidateFilter(store, 0)
	if ok, _ := f.Accepts("[H] RTX 5090 [W] PayPal", ""); ok {
		t.Fatal("5090 should not match before it is added to the catalog")
	}

	next := *store.Current()
	next.Models = append(append([]string{}, next.Models...), "5090")
	store.Swap(&next)

	if ok, reason := f.Accepts("[H] RTX 5090 [W] PayPal", ""); !ok {
		t.Fatalf("5090 should match after reload, reason %q", reason)
	}
}
