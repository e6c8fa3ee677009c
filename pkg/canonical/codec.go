// Package canonical provides deterministic serialization and hashing for
// borg genomes. Canonical bytes follow RFC 8785 (JSON Canonicalization
// Scheme); digests are versioned BLAKE2b-256.
package canonical

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

// DigestPrefix versions the hash function. Changing algorithms requires a new
// prefix so stored digests never become silently incomparable.
const DigestPrefix = "blake2b-256:"

// EncodingError reports input that cannot be represented canonically:
// invalid UTF-8, NaN/Inf numerics, or unserializable values.
type EncodingError struct {
	Reason string
	cause  error
}

func (e *EncodingError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("canonical: %s: %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("canonical: %s", e.Reason)
}

func (e *EncodingError) Unwrap() error { return e.cause }

// Canonicalize produces the deterministic byte form of v: invariant to map
// key order, insignificant whitespace, and numeric formatting. Two
// semantically equal models always yield byte-identical output.
func Canonicalize(v any) ([]byte, error) {
	// Pre-marshal through encoding/json so struct tags are respected.
	// HTML escaping is disabled: RFC 8785 forbids it.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, &EncodingError{Reason: "value is not representable as JSON", cause: err}
	}
	raw := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})

	if !utf8.Valid(raw) {
		return nil, &EncodingError{Reason: "serialized form is not valid UTF-8"}
	}
	// Unicode NFC so visually identical text hashes identically.
	raw = norm.NFC.Bytes(raw)

	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, &EncodingError{Reason: "JCS transform failed", cause: err}
	}
	return out, nil
}

// Hash returns the versioned BLAKE2b-256 digest of canonical bytes.
func Hash(b []byte) string {
	sum := blake2b.Sum256(b)
	return DigestPrefix + hex.EncodeToString(sum[:])
}

// HashValue canonicalizes v and hashes the result.
func HashValue(v any) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return Hash(b), nil
}

// HexDigest hashes raw bytes and returns the bare hex digest without the
// version prefix. Used for out-of-band documents such as the manifesto.
func HexDigest(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}
