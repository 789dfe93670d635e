package phone

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"+7 (912) 345-67-89", "79123456789"},
		{"8 912 345 67 89", "89123456789"},
		{"89123456789", "89123456789"},
		{"tel: +7-912-345-67-89", "79123456789"},
		{"no digits here", ""},
		{"", ""},
	}

	for _, c := range cases {
		if got := Normalize(c.raw); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestIdentityKeyStableAcrossFormatting(t *testing.T) {
	a := IdentityKey("+7 (912) 345-67-89")
	b := IdentityKey("79123456789")
	if a != b {
		t.Fatalf("same number in different formats produced different keys: %s vs %s", a, b)
	}

	c := IdentityKey("79123456780")
	if a == c {
		t.Fatalf("different numbers produced the same key")
	}
}

func TestIdentityKeyShape(t *testing.T) {
	key := IdentityKey("+7 (912) 345-67-89")
	if len(key) != 64 {
		t.Fatalf("expected 64 hex chars, got %d: %s", len(key), key)
	}
	for _, r := range key {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			t.Fatalf("non-hex rune %q in key %s", r, key)
		}
	}
}
