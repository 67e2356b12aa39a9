// Copyright 2025 Ukweli Project
//
// Chain Engine Errors

package chain

import (
	"errors"
	"fmt"
)

// Sentinel errors for chain operations
var (
	// ErrNoSigners is returned when a proposed record declares no signers
	ErrNoSigners = errors.New("record must declare at least one signer")

	// ErrTimestampRegression is returned when a proposed timestamp is
	// strictly less than the chain tail's
	ErrTimestampRegression = errors.New("timestamp is earlier than chain tail")

	// ErrRecordNotFound is returned for an id beyond the chain tail
	ErrRecordNotFound = errors.New("record not found")

	// ErrEmptyChain is returned when reading the tail of an empty chain
	ErrEmptyChain = errors.New("chain is empty")

	// ErrAlreadyInitialized is returned when writing genesis onto a
	// non-empty chain
	ErrAlreadyInitialized = errors.New("chain already has a genesis record")
)

// SignatureError reports a signature failure naming the offending signer.
type SignatureError struct {
	Signer string
	Reason string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("signature error for signer %q: %s", e.Signer, e.Reason)
}
