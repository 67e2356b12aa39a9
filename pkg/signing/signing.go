// Copyright 2025 Ukweli Project
//
// Ed25519 Record Signing
// Deterministic asymmetric signatures over record digests with domain
// separation. Signing covers the digest, never the raw record bytes, so that
// multi-signer content is order-independent and signatures never sign
// signatures.

package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
)

// DomainRecord is the signing domain for ledger records.
const DomainRecord = "UKWELI_RECORD_V1"

// Common errors
var (
	ErrBadPublicKeySize  = errors.New("invalid public key size")
	ErrBadPrivateKeySize = errors.New("invalid private key size")
	ErrBadSignatureSize  = errors.New("invalid signature size")
	ErrBadSeedSize       = errors.New("invalid seed size")
)

// domainMessage derives the domain-separated message actually signed.
func domainMessage(digest []byte) []byte {
	msg := make([]byte, 0, len(DomainRecord)+len(digest))
	msg = append(msg, DomainRecord...)
	msg = append(msg, digest...)
	hash := sha256.Sum256(msg)
	return hash[:]
}

// SignDigest signs a record digest with an Ed25519 private key.
func SignDigest(privateKey ed25519.PrivateKey, digest [sha256.Size]byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d, got %d",
			ErrBadPrivateKeySize, ed25519.PrivateKeySize, len(privateKey))
	}
	return ed25519.Sign(privateKey, domainMessage(digest[:])), nil
}

// VerifyDigest verifies a signature over a record digest.
// Malformed key material and length mismatches are reported as errors;
// a well-formed but non-matching signature returns (false, nil).
func VerifyDigest(publicKey []byte, digest [sha256.Size]byte, signature []byte) (bool, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("%w: expected %d, got %d",
			ErrBadPublicKeySize, ed25519.PublicKeySize, len(publicKey))
	}
	if len(signature) != ed25519.SignatureSize {
		return false, fmt.Errorf("%w: expected %d, got %d",
			ErrBadSignatureSize, ed25519.SignatureSize, len(signature))
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), domainMessage(digest[:]), signature), nil
}

// GenerateKey generates a new Ed25519 key pair.
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate Ed25519 key pair: %w", err)
	}
	return pub, priv, nil
}

// KeyFromSeed derives an Ed25519 key pair from a 32-byte seed.
func KeyFromSeed(seed []byte) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, nil, fmt.Errorf("%w: expected %d, got %d",
			ErrBadSeedSize, ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv.Public().(ed25519.PublicKey), priv, nil
}
