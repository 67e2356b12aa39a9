// Copyright 2025 Ukweli Project
//
// Ledger Record Model
// Defines the atomic unit of the UkweliDB chain and its identity-critical
// canonical form. The canonical serialization is the only input ever hashed
// or signed; the stored JSON form is for persistence and display.

package record

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrBadPreviousHash = errors.New("previous hash must be 32 bytes")
	ErrBadHashLength   = errors.New("record hash must be 32 bytes")
	ErrNoSignatures    = errors.New("record has no signatures")
	ErrBadSignature    = errors.New("malformed record signature")
)

const (
	// HashSize is the size of record hashes and link hashes in bytes.
	HashSize = sha256.Size

	// SignatureSize is the size of an Ed25519 record signature in bytes.
	SignatureSize = 64
)

// GenesisPreviousHash is the defined previous-hash sentinel for record 0.
var GenesisPreviousHash = make([]byte, HashSize)

// Signature binds a signer name to an Ed25519 signature over the record digest.
// Signers are ordered in storage for display; signature validity is
// order-independent because each signature covers the same digest.
type Signature struct {
	Signer    string `json:"signer"`
	Signature []byte `json:"signature"`
}

// WorkflowRef names the workflow transition a record performs.
// Version is the definition version current at the entity's first gated
// record; the hash commits the (name, version) tuple.
type WorkflowRef struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Action  string `json:"action"`
}

// Qualified returns the canonical workflow name committed by the record hash.
func (w *WorkflowRef) Qualified() string {
	if w == nil {
		return ""
	}
	return w.Name + "@" + w.Version
}

// Record is the atomic unit of the ledger. Records are created by append,
// never mutated, never deleted.
type Record struct {
	ID           uint64       `json:"id"`
	PreviousHash []byte       `json:"previous_hash"`
	Timestamp    int64        `json:"timestamp"` // milliseconds since Unix epoch
	EntityID     string       `json:"entity_id,omitempty"`
	Workflow     *WorkflowRef `json:"workflow,omitempty"`
	Payload      []byte       `json:"payload"`
	Signatures   []Signature  `json:"signatures"`
	Hash         []byte       `json:"hash"`
}

// Digest computes the SHA-256 digest of the record's canonical form.
// Signatures and the stored hash are excluded; every other field is covered,
// including the chain position via ID and PreviousHash.
func (r *Record) Digest() [HashSize]byte {
	return sha256.Sum256(r.Canonical())
}

// ComputeHash recomputes the record hash from the canonical form.
func (r *Record) ComputeHash() []byte {
	d := r.Digest()
	return d[:]
}

// SealHash stamps the stored hash from the canonical form.
func (r *Record) SealHash() {
	r.Hash = r.ComputeHash()
}

// HashValid reports whether the stored hash matches the canonical form.
func (r *Record) HashValid() bool {
	return bytes.Equal(r.Hash, r.ComputeHash())
}

// HashHex returns the stored hash as a hex string for display.
func (r *Record) HashHex() string {
	return hex.EncodeToString(r.Hash)
}

// IsGenesis reports whether this record is the chain genesis.
func (r *Record) IsGenesis() bool {
	return r.ID == 0
}

// SignerNames returns the ordered list of signer names on the record.
func (r *Record) SignerNames() []string {
	names := make([]string, len(r.Signatures))
	for i, sig := range r.Signatures {
		names[i] = sig.Signer
	}
	return names
}

// ValidateShape checks structural well-formedness that does not depend on
// chain context: hash and link lengths, signature lengths, and the non-empty
// signature rule for non-genesis records. The chain engine gates every
// append on it and verify rechecks it for every stored record; the sentinel
// wrapped in the returned error identifies the violated rule.
func (r *Record) ValidateShape() error {
	if len(r.PreviousHash) != HashSize {
		return fmt.Errorf("%w: record %d has %d bytes", ErrBadPreviousHash, r.ID, len(r.PreviousHash))
	}
	if len(r.Hash) != HashSize {
		return fmt.Errorf("%w: record %d has %d bytes", ErrBadHashLength, r.ID, len(r.Hash))
	}
	if !r.IsGenesis() && len(r.Signatures) == 0 {
		return fmt.Errorf("%w: record %d", ErrNoSignatures, r.ID)
	}
	for _, sig := range r.Signatures {
		if sig.Signer == "" {
			return fmt.Errorf("%w: record %d has an empty signer name", ErrBadSignature, r.ID)
		}
		if len(sig.Signature) != SignatureSize {
			return fmt.Errorf("%w: record %d signature by %q has length %d",
				ErrBadSignature, r.ID, sig.Signer, len(sig.Signature))
		}
	}
	return nil
}
