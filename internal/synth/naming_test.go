package synth

import (
	"strings"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Orders_DB", "ordersdb"},
		{"cache", "cache"},
		{"my--service--", "my--service"},
		{"__", "resource"},
		{"9lives", "r9lives"},
		{"a-very-long-logical-name-that-exceeds-the-limit", "a-very-long-logical-name"},
	}
	for _, tc := range cases {
		got := normalizeName(tc.in)
		if got != tc.want {
			t.Fatalf("normalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if len(got) > maxNameLength {
			t.Fatalf("normalizeName(%q) = %q exceeds %d chars", tc.in, got, maxNameLength)
		}
	}
}

func TestNameSuffixIsDeterministic(t *testing.T) {
	if nameSuffix("orders") != nameSuffix("orders") {
		t.Fatalf("suffix for the same input differs across calls")
	}
	if len(nameSuffix("orders")) != 4 {
		t.Fatalf("suffix length = %d, want 4", len(nameSuffix("orders")))
	}
}

func TestAssignNamesResolvesConflicts(t *testing.T) {
	// Both normalize to "ordersdb"; lexicographic order decides who keeps it.
	names := assignNames([]string{"Orders_DB", "orders-db"})

	if names["Orders_DB"] != "ordersdb" {
		t.Fatalf("first claimant got %q, want plain name", names["Orders_DB"])
	}
	later := names["orders-db"]
	if !strings.HasPrefix(later, "ordersdb-") {
		t.Fatalf("conflicting name %q lacks suffix", later)
	}
	if later == names["Orders_DB"] {
		t.Fatalf("conflict not resolved, both resources named %q", later)
	}
	if len(later) > maxNameLength {
		t.Fatalf("suffixed name %q exceeds %d chars", later, maxNameLength)
	}
}

func TestAssignNamesIsStable(t *testing.T) {
	input := []string{"alpha", "beta", "gamma"}
	first := assignNames(input)
	second := assignNames(input)
	for logical, name := range first {
		if second[logical] != name {
			t.Fatalf("unstable assignment for %q: %q vs %q", logical, name, second[logical])
		}
	}
}
