// Copyright 2025 Ukweli Project
//
// Workflow Engine
// Maintains derived per-entity state by folding workflow-gated records in
// chain order, and admits or rejects proposed records before the chain
// engine finalizes an append. Derived state is never persisted; it must be
// reproducible by cold replay so tampering cannot hide in a cache.

package workflow

import (
	"fmt"
	"sync"

	"github.com/ukweli/ukwelidb/pkg/record"
)

// Rejection reason codes for the admission rules.
const (
	RejectUnknownWorkflow   = "unknown_workflow"
	RejectUnknownAction     = "unknown_action"
	RejectMissingEntity     = "missing_entity"
	RejectVersionMismatch   = "version_mismatch"
	RejectFromStateMismatch = "from_state_mismatch"
	RejectTerminalState     = "terminal_state"
	RejectMissingRole       = "missing_role"
)

// RejectionError reports a workflow admission failure with a specific
// reason code.
type RejectionError struct {
	Workflow string
	Action   string
	EntityID string
	Code     string
	Detail   string
}

func (e *RejectionError) Error() string {
	msg := fmt.Sprintf("workflow rejection (%s): workflow=%s action=%s entity=%s",
		e.Code, e.Workflow, e.Action, e.EntityID)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// RoleResolver resolves whether a signer holds a role at the current chain
// point. The identity registry satisfies this.
type RoleResolver interface {
	HasRole(name, role string) bool
}

// entityKey scopes derived state by (workflow, entity).
type entityKey struct {
	workflow string
	entity   string
}

// entityState is the derived state of one entity under one workflow.
type entityState struct {
	state   string
	version string // definition version bound at the entity's first gated record
}

// Engine owns immutable workflow definitions and the derived per-entity
// state map.
//
// CONCURRENCY: mutations (AddDefinition, Commit, Reset) happen only under
// the ledger's writer lock; the mutex guards concurrent readers.
type Engine struct {
	mu       sync.RWMutex
	defs     map[string]*Definition
	entities map[entityKey]*entityState
}

// NewEngine creates an engine with no definitions loaded.
func NewEngine() *Engine {
	return &Engine{
		defs:     make(map[string]*Definition),
		entities: make(map[entityKey]*entityState),
	}
}

// AddDefinition registers a loaded definition. One definition per workflow
// name; records reference it by (name, version).
func (e *Engine) AddDefinition(def *Definition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.defs[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, def.Name)
	}
	e.defs[def.Name] = def
	return nil
}

// Definition returns a loaded definition by name.
func (e *Engine) Definition(name string) (*Definition, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, exists := e.defs[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}
	return def, nil
}

// Definitions returns all loaded definitions.
func (e *Engine) Definitions() []*Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	defs := make([]*Definition, 0, len(e.defs))
	for _, def := range e.defs {
		defs = append(defs, def)
	}
	return defs
}

// CurrentState returns the derived state of an entity: the to_state of the
// most recent applied transition, or the workflow's initial state if the
// entity has no gated records.
func (e *Engine) CurrentState(workflowName, entityID string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, exists := e.defs[workflowName]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowName)
	}
	if es, ok := e.entities[entityKey{workflowName, entityID}]; ok {
		return es.state, nil
	}
	return def.InitialState, nil
}

// Admit applies the admission rules to a proposed workflow reference.
// The returned error, if any, is a *RejectionError carrying a reason code:
//
//  1. the workflow must be loaded and the action declared
//  2. the transition's from state must equal the entity's current state
//  3. each required role slot needs a distinct valid signer holding it
//  4. the current state must not be terminal
//
// A nil error means the record may be committed.
func (e *Engine) Admit(ref *record.WorkflowRef, entityID string, signers []string, roles RoleResolver) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.admitLocked(ref, entityID, signers, roles)
}

func (e *Engine) admitLocked(ref *record.WorkflowRef, entityID string, signers []string, roles RoleResolver) error {
	reject := func(code, detail string) *RejectionError {
		return &RejectionError{
			Workflow: ref.Name,
			Action:   ref.Action,
			EntityID: entityID,
			Code:     code,
			Detail:   detail,
		}
	}

	def, exists := e.defs[ref.Name]
	if !exists {
		return reject(RejectUnknownWorkflow, "")
	}
	trans, ok := def.Transition(ref.Action)
	if !ok {
		return reject(RejectUnknownAction, "")
	}
	if entityID == "" {
		return reject(RejectMissingEntity, "workflow-gated records require an entity id")
	}
	if ref.Version != "" && ref.Version != def.Version {
		return reject(RejectVersionMismatch, fmt.Sprintf(
			"record bound to version %s, loaded definition is version %s", ref.Version, def.Version))
	}

	current := def.InitialState
	if es, ok := e.entities[entityKey{ref.Name, entityID}]; ok {
		current = es.state
		if es.version != def.Version {
			return reject(RejectVersionMismatch, fmt.Sprintf(
				"entity bound to version %s, loaded definition is version %s", es.version, def.Version))
		}
	}

	if trans.From != current {
		return reject(RejectFromStateMismatch, fmt.Sprintf(
			"transition from %q, entity is in %q", trans.From, current))
	}
	if def.IsTerminal(current) {
		return reject(RejectTerminalState, fmt.Sprintf("current state %q is terminal", current))
	}

	// Role slots: a required role with multiplicity m needs at least m
	// distinct signers holding it. One signer may cover slots of different
	// roles but never two slots of the same role. Extra signers are fine.
	needed := make(map[string]int)
	for _, role := range trans.RequiredRoles {
		needed[role]++
	}
	seen := make(map[string]bool, len(signers))
	for role, count := range needed {
		holders := 0
		for _, signer := range signers {
			if seen[signer+"\x00"+role] {
				continue
			}
			if roles.HasRole(signer, role) {
				seen[signer+"\x00"+role] = true
				holders++
			}
		}
		if holders < count {
			return reject(RejectMissingRole, fmt.Sprintf(
				"missing_role=%s: need %d distinct signer(s), have %d", role, count, holders))
		}
	}

	return nil
}

// Commit updates derived state after a record passed admission and was
// appended. The entity binds to the definition version at its first gated
// record.
func (e *Engine) Commit(ref *record.WorkflowRef, entityID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, exists := e.defs[ref.Name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, ref.Name)
	}
	if _, ok := def.Transition(ref.Action); !ok {
		return fmt.Errorf("unknown action %q in workflow %s", ref.Action, ref.Name)
	}
	return e.commitLocked(ref, entityID)
}

// Apply re-admits and commits a chain-resident record during replay.
// A rejection here on a stored record is a workflow break.
func (e *Engine) Apply(rec *record.Record, roles RoleResolver) error {
	if rec.Workflow == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.admitLocked(rec.Workflow, rec.EntityID, rec.SignerNames(), roles); err != nil {
		return err
	}
	return e.commitLocked(rec.Workflow, rec.EntityID)
}

func (e *Engine) commitLocked(ref *record.WorkflowRef, entityID string) error {
	def := e.defs[ref.Name]
	trans, _ := def.Transition(ref.Action)
	key := entityKey{ref.Name, entityID}
	es, seen := e.entities[key]
	if !seen {
		es = &entityState{version: def.Version}
		e.entities[key] = es
	}
	es.state = trans.To
	return nil
}

// Fresh returns a new engine sharing this engine's definitions with empty
// derived state. Verification replays into a fresh engine so it never
// disturbs live state.
func (e *Engine) Fresh() *Engine {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fresh := NewEngine()
	for name, def := range e.defs {
		fresh.defs[name] = def
	}
	return fresh
}

// Reset clears all derived entity state, keeping definitions. Used before a
// cold replay.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entities = make(map[entityKey]*entityState)
}
