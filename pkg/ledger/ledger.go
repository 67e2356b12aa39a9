// Copyright 2025 Ukweli Project
//
// Ledger Façade
// Composes the chain engine, identity registry, and workflow engine behind a
// single object. An append performs workflow admission, signature
// collection, and durable chain mutation atomically from the caller's
// perspective: on any error neither the database file nor in-memory state
// changes. The ledger is the only process-wide state; its lifecycle is
// open -> operate -> close.

package ledger

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ukweli/ukwelidb/pkg/chain"
	"github.com/ukweli/ukwelidb/pkg/config"
	"github.com/ukweli/ukwelidb/pkg/database"
	"github.com/ukweli/ukwelidb/pkg/identity"
	"github.com/ukweli/ukwelidb/pkg/keystore"
	"github.com/ukweli/ukwelidb/pkg/kvdb"
	"github.com/ukweli/ukwelidb/pkg/merkle"
	"github.com/ukweli/ukwelidb/pkg/metrics"
	"github.com/ukweli/ukwelidb/pkg/record"
	"github.com/ukweli/ukwelidb/pkg/storage"
	"github.com/ukweli/ukwelidb/pkg/workflow"
)

// Proposal re-exports the chain proposal type for façade callers.
type Proposal = chain.Proposal

// Ledger is the façade over one UkweliDB database directory.
//
// CONCURRENCY: single-writer, multi-reader. Mutating operations take the
// writer lock; reads and verify share the reader lock, so verify sees either
// the pre- or post-append state, never a partial one.
type Ledger struct {
	mu sync.RWMutex

	dir    string
	cfg    *config.DBConfig
	store  storage.Store
	keys   keystore.Manager
	logger *log.Logger

	registry  *identity.Registry
	chain     *chain.Engine
	workflows *workflow.Engine

	metrics *metrics.Metrics
	mirror  *database.RecordRepository

	closed bool
}

// Option is a functional option for configuring the ledger.
type Option func(*Ledger)

// WithLogger sets a custom logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithMirror attaches the non-authoritative Postgres mirror.
func WithMirror(repo *database.RecordRepository) Option {
	return func(l *Ledger) { l.mirror = repo }
}

// WithStore overrides the persistence backend (used by tests).
func WithStore(store storage.Store) Option {
	return func(l *Ledger) { l.store = store }
}

// WithKeystore overrides the keystore (used by tests).
func WithKeystore(keys keystore.Manager) Option {
	return func(l *Ledger) { l.keys = keys }
}

// Init creates a new database in dir: the directory layout, the system
// keypair, the configuration document, and the genesis record. The returned
// ledger is open and ready for use.
func Init(dir, name string, createdAtMS int64, opts ...Option) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	l := newLedger(dir, opts...)

	if l.keys == nil {
		keys, err := keystore.OpenFileKeystore(dir)
		if err != nil {
			return nil, err
		}
		l.keys = keys
	}
	if _, err := l.keys.CreateKey(identity.SystemUser); err != nil {
		return nil, fmt.Errorf("failed to create system key: %w", err)
	}

	l.cfg = config.DefaultDBConfig(name)
	if err := config.SaveDBConfig(dir, l.cfg); err != nil {
		return nil, err
	}

	if l.store == nil {
		store, err := openStore(dir, l.cfg)
		if err != nil {
			return nil, err
		}
		l.store = store
	}

	l.chain = chain.NewEngine(l.store, l.registry, l.keys)
	genesis, err := l.chain.WriteGenesis(name, createdAtMS)
	if err != nil {
		return nil, err
	}
	if err := l.registry.Apply(genesis); err != nil {
		return nil, fmt.Errorf("failed to apply genesis: %w", err)
	}

	l.observeHeight()
	l.mirrorRecord(genesis)
	l.logger.Printf("initialized database %q in %s", name, dir)
	return l, nil
}

// Open loads an existing database from dir and rebuilds all derived state
// by cold replay of the chain.
func Open(dir string, opts ...Option) (*Ledger, error) {
	l := newLedger(dir, opts...)

	cfg, err := config.LoadDBConfig(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotInitialized, dir)
		}
		return nil, err
	}
	l.cfg = cfg

	if l.keys == nil {
		keys, err := keystore.OpenFileKeystore(dir)
		if err != nil {
			return nil, err
		}
		l.keys = keys
	}
	if l.store == nil {
		store, err := openStore(dir, cfg)
		if err != nil {
			return nil, err
		}
		l.store = store
	}

	defs, err := workflow.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if err := l.workflows.AddDefinition(def); err != nil {
			return nil, err
		}
	}

	l.chain = chain.NewEngine(l.store, l.registry, l.keys)
	if err := l.chain.Load(); err != nil {
		return nil, err
	}
	if l.chain.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, dir)
	}

	l.replay()
	l.observeHeight()
	return l, nil
}

func newLedger(dir string, opts ...Option) *Ledger {
	l := &Ledger{
		dir:       dir,
		logger:    log.New(log.Writer(), "[Ledger] ", log.LstdFlags),
		registry:  identity.NewRegistry(),
		workflows: workflow.NewEngine(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func openStore(dir string, cfg *config.DBConfig) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendKVDB:
		return kvdb.OpenGoLevelDB("chain", dir)
	default:
		return storage.OpenChainFile(dir)
	}
}

// replay folds the loaded chain into the identity registry and workflow
// state. Replay is lenient: breaks are logged and surfaced by Verify, not
// here, so a damaged database can still be opened and inspected.
func (l *Ledger) replay() {
	l.workflows.Reset()
	for _, rec := range l.chain.Records() {
		if err := l.registry.Apply(rec); err != nil {
			l.logger.Printf("replay: record %d registry apply failed: %v", rec.ID, err)
		}
		if rec.Workflow == nil {
			continue
		}
		if err := l.workflows.Apply(rec, l.registry); err != nil {
			l.logger.Printf("replay: record %d workflow apply failed: %v", rec.ID, err)
		}
	}
}

// Close releases the persistence backend. Appends, user operations and
// Verify fail with ErrClosed afterwards; reads keep returning the in-memory
// state loaded before Close.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.store.Close()
}

// Name returns the database name from the configuration document.
func (l *Ledger) Name() string {
	if l.cfg == nil {
		return ""
	}
	return l.cfg.DatabaseName
}

// Dir returns the database directory.
func (l *Ledger) Dir() string {
	return l.dir
}

// ====== Append Path ======

// Append admits, signs, and durably appends a proposed record.
// Admission runs before any mutation: workflow rules for gated records,
// administrative semantics for admin payloads. The chain engine enforces
// signature collection and link integrity.
func (l *Ledger) Append(p *Proposal) (*record.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.appendLocked(p)
	if err != nil {
		l.observeRejection(err)
		return nil, err
	}
	return rec, nil
}

func (l *Ledger) appendLocked(p *Proposal) (*record.Record, error) {
	if l.closed {
		return nil, ErrClosed
	}

	if p.Workflow != nil {
		def, err := l.workflows.Definition(p.Workflow.Name)
		if err == nil && p.Workflow.Version == "" {
			// Bind the proposal to the loaded definition version.
			p.Workflow.Version = def.Version
		}
		if err := l.workflows.Admit(p.Workflow, p.EntityID, p.Signers, l.registry); err != nil {
			return nil, err
		}
	}

	if op, ok := record.ParseAdminOp(p.Payload); ok {
		if err := l.admitAdmin(op, p.Signers); err != nil {
			return nil, err
		}
	}

	rec, err := l.chain.Append(p)
	if err != nil {
		return nil, err
	}

	if err := l.registry.Apply(rec); err != nil {
		// Admission checked admin semantics; reaching this is a bug.
		l.logger.Printf("append: record %d registry apply failed: %v", rec.ID, err)
	}
	if rec.Workflow != nil {
		if err := l.workflows.Commit(rec.Workflow, rec.EntityID); err != nil {
			l.logger.Printf("append: record %d workflow commit failed: %v", rec.ID, err)
		}
	}

	if l.metrics != nil {
		l.metrics.AppendsTotal.Inc()
	}
	l.observeHeight()
	l.mirrorRecord(rec)
	return rec, nil
}

// admitAdmin checks administrative payload semantics before the chain is
// touched, so a failed admin append leaves no trace.
func (l *Ledger) admitAdmin(op *record.AdminOp, signers []string) error {
	system := false
	for _, s := range signers {
		if s == identity.SystemUser {
			system = true
			break
		}
	}
	if !system {
		return ErrAdminSignerRequired
	}

	switch op.Type {
	case record.AdminUserCreate:
		key, err := op.PublicKeyBytes()
		if err != nil {
			return err
		}
		if _, err := l.registry.KeyOf(op.Name); err == nil {
			return fmt.Errorf("%w: %s", identity.ErrUserExists, op.Name)
		}
		if len(key) != ed25519.PublicKeySize {
			return fmt.Errorf("%w: user %s", identity.ErrBadPublicKey, op.Name)
		}
	case record.AdminUserAddRole:
		if _, err := l.registry.KeyOf(op.Name); err != nil {
			return err
		}
		if op.Role == "" {
			return fmt.Errorf("role must not be empty")
		}
	}
	return nil
}

// UserCreate generates a keypair for a new user and appends the
// corresponding user_create record signed by the system key.
func (l *Ledger) UserCreate(name string, nowMS int64) (*record.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	if _, err := l.registry.KeyOf(name); err == nil {
		err := fmt.Errorf("%w: %s", identity.ErrUserExists, name)
		l.observeRejection(err)
		return nil, err
	}

	pub, err := l.keys.CreateKey(name)
	if err != nil {
		l.observeRejection(err)
		return nil, err
	}
	payload, err := record.NewUserCreatePayload(name, pub)
	if err != nil {
		return nil, err
	}

	rec, err := l.appendLocked(&Proposal{
		Timestamp: nowMS,
		Payload:   payload,
		Signers:   []string{identity.SystemUser},
	})
	if err != nil {
		l.observeRejection(err)
		return nil, err
	}
	return rec, nil
}

// UserAddRole appends a user_add_role record signed by the system key.
// Role grants are chain records, so role history is tamper-evident.
func (l *Ledger) UserAddRole(name, role string, nowMS int64) (*record.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	payload, err := record.NewAddRolePayload(name, role)
	if err != nil {
		return nil, err
	}
	rec, err := l.appendLocked(&Proposal{
		Timestamp: nowMS,
		Payload:   payload,
		Signers:   []string{identity.SystemUser},
	})
	if err != nil {
		l.observeRejection(err)
		return nil, err
	}
	return rec, nil
}

// ====== Read Path ======

// Records returns the full chain in order.
func (l *Ledger) Records() []*record.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chain.Records()
}

// Record returns the record with the given id.
func (l *Ledger) Record(id uint64) (*record.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chain.Get(id)
}

// Len returns the chain length including genesis.
func (l *Ledger) Len() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chain.Len()
}

// CurrentState returns the derived workflow state of an entity.
func (l *Ledger) CurrentState(workflowName, entityID string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.workflows.CurrentState(workflowName, entityID)
}

// Users returns all registered users.
func (l *Ledger) Users() []*identity.User {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.registry.Users()
}

// User returns one registered user.
func (l *Ledger) User(name string) (*identity.User, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.registry.User(name)
}

// Workflows returns the loaded workflow definitions.
func (l *Ledger) Workflows() []*workflow.Definition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.workflows.Definitions()
}

// Checkpoint summarizes the current chain head as a Merkle root over all
// record hashes.
func (l *Ledger) Checkpoint() (*merkle.Checkpoint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tree, err := l.buildTree()
	if err != nil {
		return nil, err
	}
	return tree.Checkpoint(), nil
}

// InclusionProof proves that the record with the given id is covered by the
// current checkpoint root.
func (l *Ledger) InclusionProof(id uint64) (*merkle.InclusionProof, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, err := l.chain.Get(id); err != nil {
		return nil, err
	}
	tree, err := l.buildTree()
	if err != nil {
		return nil, err
	}
	return tree.Prove(id)
}

func (l *Ledger) buildTree() (*merkle.Tree, error) {
	records := l.chain.Records()
	hashes := make([][]byte, len(records))
	for i, rec := range records {
		hashes[i] = rec.Hash
	}
	return merkle.Build(hashes)
}

// Verify re-reads the chain from the persistence port and rechecks every
// chain, signature, and workflow invariant from scratch. Verification is
// read-only and deterministic for an unchanged chain.
func (l *Ledger) Verify() (*chain.VerifyReport, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}

	fresh := l.workflows.Fresh()
	report, err := l.chain.Verify(func(rec *record.Record, registry *identity.Registry) error {
		return fresh.Apply(rec, registry)
	})
	if err != nil {
		return nil, err
	}

	if l.metrics != nil {
		l.metrics.VerifyRunsTotal.Inc()
		for _, b := range report.Breaks {
			l.metrics.VerifyBreaks.WithLabelValues(b.Kind).Inc()
		}
	}
	return report, nil
}

// ====== Observers ======

func (l *Ledger) observeHeight() {
	if l.metrics != nil && l.chain != nil {
		l.metrics.ChainHeight.Set(float64(l.chain.Len()))
	}
}

func (l *Ledger) observeRejection(err error) {
	if l.metrics != nil && err != nil {
		l.metrics.RejectionsTotal.WithLabelValues(string(KindOf(err))).Inc()
	}
}

// mirrorRecord best-effort copies an appended record into the Postgres
// mirror. Mirror failures are logged, never propagated: the chain file is
// authoritative.
func (l *Ledger) mirrorRecord(rec *record.Record) {
	if l.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.mirror.MirrorRecord(ctx, rec); err != nil {
		l.logger.Printf("mirror: record %d: %v", rec.ID, err)
	}
}
