// Package credential keeps API keys out of plaintext. Secrets are sealed
// with AES-256-GCM under a machine-derived key before they reach the
// configuration store, and resolved back on demand. Snapshots never carry
// keys at all; this package is the only path by which a key persists.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// sealedPrefix marks sealed values in the configuration store.
const sealedPrefix = "sealed:v1:"

var (
	ErrUnsealFailed  = errors.New("failed to unseal credential")
	ErrBadCiphertext = errors.New("malformed sealed credential")
)

// ConfigStore is the slice of the storage layer the vault needs.
type ConfigStore interface {
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)
}

// Vault seals and unseals secrets against a configuration store. The sealing
// key is derived from machine identity, so a copied database yields only
// ciphertext on another host.
type Vault struct {
	key []byte
	cfg ConfigStore
}

// Open creates a vault over the given configuration store.
func Open(cfg ConfigStore) (*Vault, error) {
	key, err := deriveKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}
	return &Vault{key: key, cfg: cfg}, nil
}

// Put seals a secret and stores it under name. An empty secret clears the
// entry.
func (v *Vault) Put(name, secret string) error {
	sealed, err := v.Seal(secret)
	if err != nil {
		return err
	}
	return v.cfg.SetConfig(name, sealed)
}

// Get resolves a stored secret by name. A missing entry returns "".
func (v *Vault) Get(name string) (string, error) {
	stored, err := v.cfg.GetConfig(name)
	if err != nil {
		return "", err
	}
	return v.Unseal(stored)
}

// Seal encrypts a secret for storage. Empty input seals to the empty string.
func (v *Vault) Seal(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}

	gcm, err := v.cipher()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(secret), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Unseal reverses Seal. Values without the sealed prefix pass through
// unchanged so hand-edited plaintext entries keep working.
func (v *Vault) Unseal(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadCiphertext, err)
	}

	gcm, err := v.cipher()
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", ErrBadCiphertext
	}

	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	secret, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrUnsealFailed
	}
	return string(secret), nil
}

func (v *Vault) cipher() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// IsSealed reports whether a stored value is sealed ciphertext.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

// deriveKey builds a stable 32-byte AES key from machine identity. The same
// host always derives the same key; any other host derives a different one.
func deriveKey() ([]byte, error) {
	var identity strings.Builder

	hostname, _ := os.Hostname()
	identity.WriteString(hostname)

	home, _ := os.UserHomeDir()
	identity.WriteString(home)

	identity.WriteString(runtime.GOOS)
	identity.WriteString(runtime.GOARCH)
	identity.WriteString("fable-vault-v1")

	if uid := os.Getuid(); uid != -1 {
		fmt.Fprintf(&identity, "uid:%d", uid)
	}
	if username := os.Getenv("USER"); username != "" {
		identity.WriteString(username)
	}

	hash := sha256.Sum256([]byte(identity.String()))
	return hash[:], nil
}

// Mask renders a secret safe for display, keeping only the edges.
func Mask(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
