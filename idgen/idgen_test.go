package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	gen := UUIDv7()
	id := gen()
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Fatalf("UUIDv7: expected 5 parts, got %d in %q", len(parts), id)
	}
	if len(id) != 36 {
		t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
	}
}

func TestUUIDv7_Uniqueness(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := gen()
		if _, ok := seen[id]; ok {
			t.Fatalf("UUIDv7: duplicate at iteration %d", i)
		}
		seen[id] = struct{}{}
	}
}

func TestNanoID_LengthAndAlphabet(t *testing.T) {
	gen := NanoID(16)
	id := gen()
	if len(id) != 16 {
		t.Fatalf("NanoID(16): got length %d", len(id))
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
			t.Fatalf("NanoID: unexpected character %q in %q", c, id)
		}
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("tab_", UUIDv7())
	id := gen()
	if !strings.HasPrefix(id, "tab_") {
		t.Fatalf("Prefixed: %q missing prefix", id)
	}
	if len(id) != 4+36 {
		t.Fatalf("Prefixed: unexpected length %d", len(id))
	}
}

func TestTimestamped(t *testing.T) {
	gen := Timestamped(NanoID(6))
	id := gen()
	if !strings.Contains(id, "_") {
		t.Fatalf("Timestamped: %q missing separator", id)
	}
	if !strings.HasSuffix(id[:16], "Z") {
		t.Fatalf("Timestamped: %q missing timestamp", id)
	}
}
