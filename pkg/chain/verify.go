// Copyright 2025 Ukweli Project
//
// Chain Verification
// Walks the chain from record 0, recomputing every hash and link and
// reverifying every signature against the identity registry as rebuilt at
// that position. Breaks are collected, not fatal: verify reports everything
// it finds and never mutates state.

package chain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ukweli/ukwelidb/pkg/identity"
	"github.com/ukweli/ukwelidb/pkg/record"
	"github.com/ukweli/ukwelidb/pkg/signing"
)

// Break kinds reported by verify.
const (
	BreakChain     = "chain_break"
	BreakSignature = "signature_error"
	BreakWorkflow  = "workflow_break"
	BreakIntegrity = "integrity_error"
)

// Break describes one verification failure.
type Break struct {
	RecordID uint64 `json:"record_id"`
	Kind     string `json:"kind"`
	Reason   string `json:"reason"`
}

// VerifyReport aggregates the result of a full chain verification.
type VerifyReport struct {
	ReportID uuid.UUID `json:"report_id"`
	Records  uint64    `json:"records"`
	OK       bool      `json:"ok"`
	Breaks   []Break   `json:"breaks,omitempty"`
}

// FirstBreak returns the earliest break by record id, or nil if none.
func (r *VerifyReport) FirstBreak() *Break {
	if len(r.Breaks) == 0 {
		return nil
	}
	first := &r.Breaks[0]
	for i := range r.Breaks {
		if r.Breaks[i].RecordID < first.RecordID {
			first = &r.Breaks[i]
		}
	}
	return first
}

// ReplayFunc folds one chain-resident record into derived state during
// verification. The registry passed is the state as of immediately before
// the record. A returned error is reported as a workflow break.
type ReplayFunc func(rec *record.Record, registry *identity.Registry) error

// Verify re-reads the chain from the persistence port and checks every
// invariant from scratch. The replay callback, if non-nil, receives each
// record after its signatures check out, in chain order, for workflow
// folding.
func (e *Engine) Verify(replay ReplayFunc) (*VerifyReport, error) {
	records, err := e.store.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read chain for verify: %w", err)
	}

	report := &VerifyReport{
		ReportID: uuid.New(),
		Records:  uint64(len(records)),
	}
	add := func(id uint64, kind, reason string) {
		report.Breaks = append(report.Breaks, Break{RecordID: id, Kind: kind, Reason: reason})
	}

	registry := identity.NewRegistry()
	var prev *record.Record
	for i, rec := range records {
		id := uint64(i)

		if rec.ID != id {
			add(id, BreakIntegrity, fmt.Sprintf("expected id %d, found %d", id, rec.ID))
		}
		if err := rec.ValidateShape(); err != nil {
			add(id, shapeBreakKind(err), err.Error())
		}
		if prev != nil && rec.Timestamp < prev.Timestamp {
			add(id, BreakIntegrity, fmt.Sprintf("timestamp %d earlier than predecessor %d",
				rec.Timestamp, prev.Timestamp))
		}

		if !rec.HashValid() {
			add(id, BreakChain, "stored hash does not match recomputed hash")
		}
		if !linkValid(prev, rec) {
			add(id, BreakChain, "previous hash does not match predecessor")
		}

		// Genesis registers the system user from its own payload before its
		// signature is checked; every other record is checked against the
		// registry as of immediately before it.
		if rec.IsGenesis() && i == 0 {
			if err := registry.Apply(rec); err != nil {
				add(id, BreakIntegrity, fmt.Sprintf("genesis replay failed: %v", err))
			}
		}

		sigOK := e.verifySignatures(rec, registry, add)

		if sigOK && replay != nil {
			if err := replay(rec, registry); err != nil {
				add(id, BreakWorkflow, err.Error())
			}
		}

		if !rec.IsGenesis() {
			if err := registry.Apply(rec); err != nil {
				add(id, BreakIntegrity, fmt.Sprintf("registry replay failed: %v", err))
			}
		}

		prev = rec
	}

	report.OK = len(report.Breaks) == 0
	return report, nil
}

// shapeBreakKind maps a ValidateShape sentinel to the break kind reported
// for a chain-resident record.
func shapeBreakKind(err error) string {
	switch {
	case errors.Is(err, record.ErrBadPreviousHash), errors.Is(err, record.ErrBadHashLength):
		return BreakChain
	case errors.Is(err, record.ErrBadSignature):
		return BreakSignature
	default:
		return BreakIntegrity
	}
}

// verifySignatures checks each signature on a record against the registry.
// Returns false if any signature failed.
func (e *Engine) verifySignatures(rec *record.Record, registry *identity.Registry, add func(uint64, string, string)) bool {
	ok := true
	digest := rec.Digest()
	for _, sig := range rec.Signatures {
		pub, err := registry.KeyOf(sig.Signer)
		if err != nil {
			add(rec.ID, BreakSignature, fmt.Sprintf("signer %q: %v", sig.Signer, err))
			ok = false
			continue
		}
		valid, err := signing.VerifyDigest(pub, digest, sig.Signature)
		if err != nil {
			add(rec.ID, BreakSignature, fmt.Sprintf("signer %q: %v", sig.Signer, err))
			ok = false
			continue
		}
		if !valid {
			add(rec.ID, BreakSignature, fmt.Sprintf("signer %q: signature does not verify", sig.Signer))
			ok = false
		}
	}
	return ok
}
