package canonical

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	input := map[string]any{"c": 3, "a": 1, "b": 2}
	b, err := Canonicalize(input)
	if err != nil {
		t.Fatalf("Canonicalize failed: %v", err)
	}
	if string(b) != `{"a":1,"b":2,"c":3}` {
		t.Errorf("got %s", string(b))
	}
}

func TestCanonicalizeNestedDeterminism(t *testing.T) {
	a := map[string]any{"z": map[string]any{"y": "foo", "x": "bar"}, "a": 1}
	b := map[string]any{"a": 1, "z": map[string]any{"x": "bar", "y": "foo"}}

	ab, err := Canonicalize(a)
	if err != nil {
		t.Fatal(err)
	}
	bb, err := Canonicalize(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(ab) != string(bb) {
		t.Errorf("semantically equal maps canonicalized differently:\n%s\n%s", ab, bb)
	}
}

func TestCanonicalizeNoHTMLEscaping(t *testing.T) {
	b, err := Canonicalize(map[string]string{"html": "<x> &"})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"html":"<x> &"}` {
		t.Errorf("got %s, HTML must not be escaped", string(b))
	}
}

func TestCanonicalizeRejectsNaN(t *testing.T) {
	_, err := Canonicalize(map[string]any{"bad": math.NaN()})
	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected *EncodingError, got %v", err)
	}
}

func TestHashIsVersioned(t *testing.T) {
	h := Hash([]byte("hello"))
	if !strings.HasPrefix(h, DigestPrefix) {
		t.Errorf("digest %q missing version prefix", h)
	}
	if len(h) != len(DigestPrefix)+64 {
		t.Errorf("digest length %d, want %d", len(h), len(DigestPrefix)+64)
	}
}

func TestHashValueStability(t *testing.T) {
	type doc struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	h1, err := HashValue(doc{Name: "a", Count: 2})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashValue(doc{Name: "a", Count: 2})
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("equal values hashed differently")
	}
	h3, _ := HashValue(doc{Name: "a", Count: 3})
	if h1 == h3 {
		t.Error("distinct values collided")
	}
}

func TestHexDigestLength(t *testing.T) {
	if got := len(HexDigest([]byte("manifesto"))); got != 64 {
		t.Errorf("hex digest length = %d, want 64", got)
	}
}
