// Copyright 2025 Ukweli Project
//
// Error Taxonomy
// The façade surfaces a closed set of error kinds. KindOf classifies any
// error from the core into one of them; the CLI maps kinds to exit codes.

package ledger

import (
	"errors"
	"os"

	"github.com/ukweli/ukwelidb/pkg/chain"
	"github.com/ukweli/ukwelidb/pkg/identity"
	"github.com/ukweli/ukwelidb/pkg/keystore"
	"github.com/ukweli/ukwelidb/pkg/record"
	"github.com/ukweli/ukwelidb/pkg/signing"
	"github.com/ukweli/ukwelidb/pkg/storage"
	"github.com/ukweli/ukwelidb/pkg/workflow"
)

// Kind is the error classification surfaced by the façade.
type Kind string

const (
	KindNone              Kind = ""
	KindInput             Kind = "input_error"
	KindChainBreak        Kind = "chain_break"
	KindSignature         Kind = "signature_error"
	KindWorkflowRejection Kind = "workflow_rejection"
	KindWorkflowBreak     Kind = "workflow_break"
	KindIO                Kind = "io_error"
	KindIntegrity         Kind = "integrity_error"
)

// Sentinel errors for façade operations
var (
	// ErrClosed is returned when operating on a closed ledger
	ErrClosed = errors.New("ledger is closed")

	// ErrNotInitialized is returned when opening a directory with no chain
	ErrNotInitialized = errors.New("database not initialized")

	// ErrAdminSignerRequired is returned when an administrative payload is
	// not signed by the system key
	ErrAdminSignerRequired = errors.New("administrative records must be signed by the system key")

	// ErrVerifyFailed is returned by callers that treat a verify report with
	// breaks as an operation failure
	ErrVerifyFailed = errors.New("chain verification failed")
)

// KindOf classifies an error into the façade taxonomy.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var rejection *workflow.RejectionError
	if errors.As(err, &rejection) {
		return KindWorkflowRejection
	}

	var sigErr *chain.SignatureError
	if errors.As(err, &sigErr) {
		return KindSignature
	}
	switch {
	case errors.Is(err, signing.ErrBadPublicKeySize),
		errors.Is(err, signing.ErrBadPrivateKeySize),
		errors.Is(err, signing.ErrBadSignatureSize),
		errors.Is(err, signing.ErrBadSeedSize),
		errors.Is(err, record.ErrBadSignature):
		return KindSignature
	}

	switch {
	case errors.Is(err, identity.ErrUnknownUser),
		errors.Is(err, identity.ErrUserExists),
		errors.Is(err, identity.ErrBadPublicKey),
		errors.Is(err, keystore.ErrUnknownUser),
		errors.Is(err, keystore.ErrKeyExists),
		errors.Is(err, chain.ErrNoSigners),
		errors.Is(err, chain.ErrRecordNotFound),
		errors.Is(err, chain.ErrEmptyChain),
		errors.Is(err, workflow.ErrUnknownWorkflow),
		errors.Is(err, workflow.ErrDuplicateName),
		errors.Is(err, ErrAdminSignerRequired):
		return KindInput
	}

	switch {
	case errors.Is(err, chain.ErrTimestampRegression),
		errors.Is(err, chain.ErrAlreadyInitialized),
		errors.Is(err, record.ErrBadPreviousHash),
		errors.Is(err, record.ErrBadHashLength),
		errors.Is(err, record.ErrNoSignatures),
		errors.Is(err, ErrNotInitialized),
		errors.Is(err, ErrVerifyFailed):
		return KindIntegrity
	}

	if errors.Is(err, storage.ErrClosed) || errors.Is(err, ErrClosed) {
		return KindIO
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return KindIO
	}

	// Everything else reaches the caller through a port.
	return KindIO
}

// ExitCode maps an error kind to the CLI exit code contract:
// 0 success, 1 input error, 2 integrity failure, 3 I/O error.
func ExitCode(kind Kind) int {
	switch kind {
	case KindNone:
		return 0
	case KindInput, KindWorkflowRejection:
		return 1
	case KindChainBreak, KindSignature, KindWorkflowBreak, KindIntegrity:
		return 2
	case KindIO:
		return 3
	default:
		return 2
	}
}
