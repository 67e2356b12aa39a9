// Copyright 2025 Ukweli Project
//
// File Keystore
// Stores one hex-encoded Ed25519 seed per user under <dir>/keys/<name>.key
// with owner-only permissions. Key files are loaded lazily and cached.

package keystore

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ukweli/ukwelidb/pkg/signing"
)

// KeysDirName is the name of the key directory inside a database directory.
const KeysDirName = "keys"

const keyFileSuffix = ".key"

// FileKeystore is a directory-backed Keystore.
type FileKeystore struct {
	mu    sync.Mutex
	dir   string
	cache map[string]ed25519.PrivateKey
}

// OpenFileKeystore opens (or creates) the key directory inside dir.
func OpenFileKeystore(dir string) (*FileKeystore, error) {
	keysDir := filepath.Join(dir, KeysDirName)
	if err := os.MkdirAll(keysDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory %s: %w", keysDir, err)
	}
	return &FileKeystore{
		dir:   keysDir,
		cache: make(map[string]ed25519.PrivateKey),
	}, nil
}

// CreateKey generates a new key pair for a user and writes the seed file.
func (f *FileKeystore) CreateKey(user string) (ed25519.PublicKey, error) {
	if err := validateUserName(user); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.keyPath(user)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyExists, user)
	}

	pub, priv, err := signing.GenerateKey()
	if err != nil {
		return nil, err
	}
	seed := priv.Seed()
	data := hex.EncodeToString(seed) + "\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write key file %s: %w", path, err)
	}

	f.cache[user] = priv
	return pub, nil
}

// Sign implements Keystore.Sign
func (f *FileKeystore) Sign(user string, digest [sha256.Size]byte) ([]byte, error) {
	priv, err := f.load(user)
	if err != nil {
		return nil, err
	}
	return signing.SignDigest(priv, digest)
}

// PublicKey implements Keystore.PublicKey
func (f *FileKeystore) PublicKey(user string) ([]byte, error) {
	priv, err := f.load(user)
	if err != nil {
		return nil, err
	}
	return []byte(priv.Public().(ed25519.PublicKey)), nil
}

// Users lists the users that have key files, sorted by name.
func (f *FileKeystore) Users() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}
	var users []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, keyFileSuffix) {
			continue
		}
		users = append(users, strings.TrimSuffix(name, keyFileSuffix))
	}
	sort.Strings(users)
	return users, nil
}

func (f *FileKeystore) load(user string) (ed25519.PrivateKey, error) {
	if err := validateUserName(user); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if priv, ok := f.cache[user]; ok {
		return priv, nil
	}

	data, err := os.ReadFile(f.keyPath(user))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownUser, user)
		}
		return nil, fmt.Errorf("failed to read key file for %s: %w", user, err)
	}

	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid key file for %s: %w", user, err)
	}
	_, priv, err := signing.KeyFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid key file for %s: %w", user, err)
	}

	f.cache[user] = priv
	return priv, nil
}

func (f *FileKeystore) keyPath(user string) string {
	return filepath.Join(f.dir, user+keyFileSuffix)
}

// validateUserName rejects names that would escape the key directory or
// produce unreadable file names. User names are ASCII identifiers.
func validateUserName(user string) error {
	if user == "" {
		return fmt.Errorf("user name must not be empty")
	}
	for _, c := range user {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return fmt.Errorf("invalid user name %q: only ASCII letters, digits, '-', '_', '.' allowed", user)
		}
	}
	if strings.HasPrefix(user, ".") {
		return fmt.Errorf("invalid user name %q: must not start with '.'", user)
	}
	return nil
}
