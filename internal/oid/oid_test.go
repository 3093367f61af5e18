package oid

import "testing"

func TestNewProducesValidIDs(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := New()
		if !Valid(id) {
			t.Fatalf("generated id %q is not valid", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"65a1b2c3d4e5f60718293a4b", true},
		{"65A1B2C3D4E5F60718293A4B", true},
		{"not-an-id", false},
		{"", false},
		{"65a1b2c3d4e5f60718293a4", false},
		{"65a1b2c3d4e5f60718293a4bc", false},
		{"65a1b2c3d4e5f60718293a4g", false},
	}
	for _, tc := range cases {
		if got := Valid(tc.id); got != tc.want {
			t.Fatalf("Valid(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}
