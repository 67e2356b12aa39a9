// Copyright 2025 Ukweli Project
//
// Chain Engine
// Owns the canonical ordered sequence of records: computes and verifies
// linking hashes, validates signatures against the identity registry,
// enforces monotonic ids and timestamps, and writes through the persistence
// port. Appends are all-or-nothing: on any failure neither the store nor the
// in-memory chain is modified.

package chain

import (
	"bytes"
	"fmt"

	"github.com/ukweli/ukwelidb/pkg/identity"
	"github.com/ukweli/ukwelidb/pkg/keystore"
	"github.com/ukweli/ukwelidb/pkg/record"
	"github.com/ukweli/ukwelidb/pkg/signing"
	"github.com/ukweli/ukwelidb/pkg/storage"
)

// Proposal is a record before chain placement. The engine assigns the id and
// previous hash, obtains signatures, and seals the hash.
type Proposal struct {
	Timestamp int64 // milliseconds since Unix epoch
	Payload   []byte
	EntityID  string
	Workflow  *record.WorkflowRef
	Signers   []string
}

// Engine owns the record sequence.
//
// CONCURRENCY: single-writer, multi-reader, enforced by the ledger façade.
// The engine itself performs no locking.
type Engine struct {
	store    storage.Store
	registry *identity.Registry
	keys     keystore.Keystore
	records  []*record.Record
}

// NewEngine creates a chain engine over the given ports.
func NewEngine(store storage.Store, registry *identity.Registry, keys keystore.Keystore) *Engine {
	return &Engine{
		store:    store,
		registry: registry,
		keys:     keys,
	}
}

// Load reads the full chain from the persistence port into memory.
func (e *Engine) Load() error {
	records, err := e.store.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to load chain: %w", err)
	}
	e.records = records
	return nil
}

// Len returns the number of records on the chain.
func (e *Engine) Len() uint64 {
	return uint64(len(e.records))
}

// Get returns the record with the given id.
func (e *Engine) Get(id uint64) (*record.Record, error) {
	if id >= uint64(len(e.records)) {
		return nil, fmt.Errorf("%w: id %d, chain length %d", ErrRecordNotFound, id, len(e.records))
	}
	return e.records[id], nil
}

// Tail returns the most recent record.
func (e *Engine) Tail() (*record.Record, error) {
	if len(e.records) == 0 {
		return nil, ErrEmptyChain
	}
	return e.records[len(e.records)-1], nil
}

// Records returns the full chain in order.
func (e *Engine) Records() []*record.Record {
	out := make([]*record.Record, len(e.records))
	copy(out, e.records)
	return out
}

// Append validates a proposal, signs it, and durably appends it.
// Signature collection: for each declared signer the engine resolves the
// public key from the registry (unknown user rejects the append), asks the
// keystore to sign the digest, and verifies the produced signature against
// the registry key so a keystore/registry key mismatch is caught before the
// record is written.
func (e *Engine) Append(p *Proposal) (*record.Record, error) {
	if len(p.Signers) == 0 {
		return nil, ErrNoSigners
	}

	rec := &record.Record{
		ID:        uint64(len(e.records)),
		Timestamp: p.Timestamp,
		EntityID:  p.EntityID,
		Workflow:  p.Workflow,
		Payload:   p.Payload,
	}

	if len(e.records) == 0 {
		rec.PreviousHash = record.GenesisPreviousHash
	} else {
		tail := e.records[len(e.records)-1]
		rec.PreviousHash = tail.Hash
		if p.Timestamp < tail.Timestamp {
			return nil, fmt.Errorf("%w: proposed %d, tail %d",
				ErrTimestampRegression, p.Timestamp, tail.Timestamp)
		}
	}

	digest := rec.Digest()
	for _, signer := range p.Signers {
		pub, err := e.registry.KeyOf(signer)
		if err != nil {
			return nil, err
		}
		sig, err := e.keys.Sign(signer, digest)
		if err != nil {
			return nil, err
		}
		ok, err := signing.VerifyDigest(pub, digest, sig)
		if err != nil {
			return nil, &SignatureError{Signer: signer, Reason: err.Error()}
		}
		if !ok {
			return nil, &SignatureError{Signer: signer, Reason: "keystore key does not match registry key"}
		}
		rec.Signatures = append(rec.Signatures, record.Signature{Signer: signer, Signature: sig})
	}

	rec.SealHash()
	if err := rec.ValidateShape(); err != nil {
		return nil, err
	}

	if err := e.store.Append(rec); err != nil {
		return nil, fmt.Errorf("failed to persist record %d: %w", rec.ID, err)
	}
	if err := e.store.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush record %d: %w", rec.ID, err)
	}

	e.records = append(e.records, rec)
	return rec, nil
}

// WriteGenesis creates record 0 on an empty chain: all-zero previous hash,
// the database name and creation timestamp as payload, and one signature by
// the system keypair. Genesis is never workflow-gated.
func (e *Engine) WriteGenesis(databaseName string, createdAtMS int64) (*record.Record, error) {
	if len(e.records) != 0 {
		return nil, ErrAlreadyInitialized
	}

	systemPub, err := e.keys.PublicKey(identity.SystemUser)
	if err != nil {
		return nil, fmt.Errorf("system key unavailable: %w", err)
	}
	payload, err := record.NewGenesisPayload(databaseName, createdAtMS, systemPub)
	if err != nil {
		return nil, err
	}

	rec := &record.Record{
		ID:           0,
		PreviousHash: record.GenesisPreviousHash,
		Timestamp:    createdAtMS,
		Payload:      payload,
	}

	digest := rec.Digest()
	sig, err := e.keys.Sign(identity.SystemUser, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign genesis: %w", err)
	}
	rec.Signatures = []record.Signature{{Signer: identity.SystemUser, Signature: sig}}
	rec.SealHash()
	if err := rec.ValidateShape(); err != nil {
		return nil, err
	}

	if err := e.store.Append(rec); err != nil {
		return nil, fmt.Errorf("failed to persist genesis: %w", err)
	}
	if err := e.store.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush genesis: %w", err)
	}

	e.records = append(e.records, rec)
	return rec, nil
}

// linkValid reports whether a record correctly links to its predecessor.
func linkValid(prev, rec *record.Record) bool {
	if prev == nil {
		return bytes.Equal(rec.PreviousHash, record.GenesisPreviousHash)
	}
	return bytes.Equal(rec.PreviousHash, prev.Hash)
}
