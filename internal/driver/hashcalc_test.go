package driver

import "testing"

func TestUnitKey(t *testing.T) {
	a := UnitKey([]byte("x"), "fp1")
	if a.IsZero() {
		t.Fatal("zero key")
	}
	if a != UnitKey([]byte("x"), "fp1") {
		t.Fatal("key is not deterministic")
	}
	if a == UnitKey([]byte("x"), "fp2") {
		t.Fatal("fingerprint does not affect the key")
	}
	if a == UnitKey([]byte("y"), "fp1") {
		t.Fatal("content does not affect the key")
	}
	if len(a.String()) != 64 {
		t.Fatalf("hex = %q", a.String())
	}
}

func TestCombineDigest_LengthPrefixed(t *testing.T) {
	c := contentDigest(nil)
	if combineDigest(c, "ab", "c") == combineDigest(c, "a", "bc") {
		t.Fatal("parts are not separated")
	}
}
