package instrument

import "testing"

func TestValidTicker(t *testing.T) {
	tests := []struct {
		ticker string
		want   bool
	}{
		{"AB", true},
		{"ABCDEFGHIJ", true},
		{"RUB", true},
		{"A", false},
		{"ABCDEFGHIJK", false},
		{"abc", false},
		{"AB1", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.ticker, func(t *testing.T) {
			if got := ValidTicker(tt.ticker); got != tt.want {
				t.Fatalf("ValidTicker(%q) = %v, want %v", tt.ticker, got, tt.want)
			}
		})
	}
}

func TestAddRejectsDuplicateTicker(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(Instrument{Name: "Acme", Ticker: "ACME"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(Instrument{Name: "Other", Ticker: "ACME"}); err == nil {
		t.Fatal("duplicate ticker must be rejected")
	}
}

func TestRemove(t *testing.T) {
	r := NewRegistry()
	_ = r.Add(Instrument{Name: "Acme", Ticker: "ACME"})

	if !r.Remove("ACME") {
		t.Fatal("Remove of listed instrument must succeed")
	}
	if r.Remove("ACME") {
		t.Fatal("Remove of delisted instrument must fail")
	}
	if r.Exists("ACME") {
		t.Fatal("instrument still listed after Remove")
	}
}
