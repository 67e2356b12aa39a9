// Copyright 2025 Ukweli Project
//
// Keystore Port
// Resolves user names to key material and signs record digests. Private keys
// never leave the keystore; the core only ever receives signatures and
// public keys.

package keystore

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"github.com/ukweli/ukwelidb/pkg/signing"
)

// Sentinel errors for keystore operations
var (
	// ErrUnknownUser is returned when no key exists for a user
	ErrUnknownUser = errors.New("no key for user")

	// ErrKeyExists is returned when creating a key that already exists
	ErrKeyExists = errors.New("key already exists")
)

// Keystore is the port consumed by the chain engine for signing.
type Keystore interface {
	// Sign signs a record digest with the named user's private key.
	Sign(user string, digest [sha256.Size]byte) ([]byte, error)

	// PublicKey returns the named user's public key.
	PublicKey(user string) ([]byte, error)
}

// Manager extends the port with key creation, used by the façade when a
// user is registered.
type Manager interface {
	Keystore

	// CreateKey generates and stores a new key pair for a user.
	CreateKey(user string) (ed25519.PublicKey, error)
}

// MemKeystore is an in-memory Keystore for tests.
type MemKeystore struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PrivateKey
}

// NewMemKeystore creates an empty in-memory keystore.
func NewMemKeystore() *MemKeystore {
	return &MemKeystore{keys: make(map[string]ed25519.PrivateKey)}
}

// CreateKey generates and stores a new key pair for a user.
func (m *MemKeystore) CreateKey(user string) (ed25519.PublicKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.keys[user]; exists {
		return nil, fmt.Errorf("%w: %s", ErrKeyExists, user)
	}
	pub, priv, err := signing.GenerateKey()
	if err != nil {
		return nil, err
	}
	m.keys[user] = priv
	return pub, nil
}

// Sign implements Keystore.Sign
func (m *MemKeystore) Sign(user string, digest [sha256.Size]byte) ([]byte, error) {
	m.mu.RLock()
	priv, exists := m.keys[user]
	m.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, user)
	}
	return signing.SignDigest(priv, digest)
}

// PublicKey implements Keystore.PublicKey
func (m *MemKeystore) PublicKey(user string) ([]byte, error) {
	m.mu.RLock()
	priv, exists := m.keys[user]
	m.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, user)
	}
	return []byte(priv.Public().(ed25519.PublicKey)), nil
}
