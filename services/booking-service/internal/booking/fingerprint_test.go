package booking

import "testing"

func TestFingerprint(t *testing.T) {
	if fingerprint("a", "b") == fingerprint("ab") {
		t.Fatal("field boundaries must affect the hash")
	}
	if fingerprint("a", "b") == fingerprint("a", "b", "") {
		t.Fatal("a trailing empty field must affect the hash")
	}
	if fingerprint("a", "b") != fingerprint("a", "b") {
		t.Fatal("fingerprint must be deterministic")
	}
}
