package credentials

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// FileProvider derives keys exactly like MemoryProvider but persists the
// master seed in a keystore file, so every key ID yields the same keypair
// across restarts. The file is created with owner-only permissions and
// rejected when anyone else can read it.
type FileProvider struct {
	inner *MemoryProvider
	path  string
}

// NewFileProvider opens the keystore at path, creating it with a fresh
// random seed when it does not exist yet.
func NewFileProvider(path string) (*FileProvider, error) {
	seed, err := loadOrCreateSeed(path)
	if err != nil {
		return nil, err
	}
	inner, err := NewMemoryProviderFromSeed(seed)
	if err != nil {
		return nil, err
	}
	return &FileProvider{inner: inner, path: path}, nil
}

// Path reports the keystore file location.
func (p *FileProvider) Path() string { return p.path }

func (p *FileProvider) Acquire(ctx context.Context, keyID string) (Signer, error) {
	return p.inner.Acquire(ctx, keyID)
}

func loadOrCreateSeed(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return createSeed(path)
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: keystore %s: %w", path, err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("credentials: keystore %s is readable by group or world (%04o)", path, info.Mode().Perm())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credentials: keystore %s: %w", path, err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("credentials: keystore %s is not hex-encoded: %w", path, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("credentials: keystore %s holds %d bytes, want %d", path, len(seed), ed25519.SeedSize)
	}
	return seed, nil
}

func createSeed(path string) ([]byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("credentials: seed generation: %w", err)
	}
	encoded := hex.EncodeToString(seed) + "\n"
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("credentials: keystore %s: %w", path, err)
	}
	return seed, nil
}
