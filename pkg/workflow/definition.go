// Copyright 2025 Ukweli Project
//
// Workflow Definitions
// Declarative state machines gating entity records: state sets, labeled
// transitions, role requirements, and terminal states. Definitions are
// immutable after load.

package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	ErrUnknownWorkflow = errors.New("unknown workflow")
	ErrDuplicateName   = errors.New("workflow already loaded")
)

// Transition is a labeled edge (from_state -> to_state) identified by an
// action name unique within its workflow. RequiredRoles is a multiset: a
// role listed twice needs two distinct signers holding it.
type Transition struct {
	From          string   `yaml:"from" json:"from"`
	To            string   `yaml:"to" json:"to"`
	Action        string   `yaml:"action" json:"action"`
	RequiredRoles []string `yaml:"required_roles" json:"required_roles"`
}

// Definition is a validated workflow state machine.
type Definition struct {
	Name           string
	Version        string
	States         []string
	Roles          []string
	InitialState   string
	TerminalStates map[string]bool
	Transitions    []Transition

	// actions indexes transitions by action name
	actions map[string]*Transition
}

// Transition returns the declared transition for an action name.
func (d *Definition) Transition(action string) (*Transition, bool) {
	t, ok := d.actions[action]
	return t, ok
}

// IsTerminal reports whether a state is terminal. Once an entity reaches a
// terminal state it is frozen; no transitions leave terminal states.
func (d *Definition) IsTerminal(state string) bool {
	return d.TerminalStates[state]
}

// TerminalList returns the terminal states in declaration order.
func (d *Definition) TerminalList() []string {
	var out []string
	for _, s := range d.States {
		if d.TerminalStates[s] {
			out = append(out, s)
		}
	}
	return out
}

// validate checks a definition after parsing and computes derived fields:
// the initial state (first listed unless overridden) and terminal states
// (states with no outgoing transition unless overridden).
func (d *Definition) validate() error {
	var violations []string
	add := func(msg string) {
		violations = append(violations, msg)
	}

	if d.Name == "" {
		add("workflow.name must not be empty")
	}
	if d.Version == "" {
		add("workflow.version must not be empty")
	}
	if len(d.States) == 0 {
		add("states must not be empty")
	}

	declared := make(map[string]bool, len(d.States))
	for _, s := range d.States {
		if s == "" {
			add("states must not contain empty names")
			continue
		}
		if declared[s] {
			add(fmt.Sprintf("state %q declared more than once", s))
		}
		declared[s] = true
	}

	declaredRoles := make(map[string]bool, len(d.Roles))
	for _, r := range d.Roles {
		declaredRoles[r] = true
	}

	outgoing := make(map[string]int, len(d.States))
	d.actions = make(map[string]*Transition, len(d.Transitions))
	for i := range d.Transitions {
		t := &d.Transitions[i]
		if t.Action == "" {
			add(fmt.Sprintf("transitions[%d].action must not be empty", i))
		} else if _, dup := d.actions[t.Action]; dup {
			add(fmt.Sprintf("action %q declared more than once", t.Action))
		} else {
			d.actions[t.Action] = t
		}
		if !declared[t.From] {
			add(fmt.Sprintf("transitions[%d].from references undeclared state %q", i, t.From))
		}
		if !declared[t.To] {
			add(fmt.Sprintf("transitions[%d].to references undeclared state %q", i, t.To))
		}
		if len(t.RequiredRoles) == 0 {
			add(fmt.Sprintf("transitions[%d].required_roles must not be empty", i))
		}
		if len(declaredRoles) > 0 {
			for _, r := range t.RequiredRoles {
				if !declaredRoles[r] {
					add(fmt.Sprintf("transitions[%d] requires undeclared role %q", i, r))
				}
			}
		}
		outgoing[t.From]++
	}

	// Initial state: first listed unless explicitly set.
	if d.InitialState == "" && len(d.States) > 0 {
		d.InitialState = d.States[0]
	}
	if d.InitialState != "" && !declared[d.InitialState] {
		add(fmt.Sprintf("initial_state %q is not a declared state", d.InitialState))
	}

	// Terminal states: no outgoing transition unless explicitly overridden.
	if d.TerminalStates == nil {
		d.TerminalStates = make(map[string]bool)
		for _, s := range d.States {
			if outgoing[s] == 0 {
				d.TerminalStates[s] = true
			}
		}
	} else {
		for s := range d.TerminalStates {
			if !declared[s] {
				add(fmt.Sprintf("terminal state %q is not a declared state", s))
			}
			if outgoing[s] > 0 {
				add(fmt.Sprintf("terminal state %q has outgoing transitions", s))
			}
		}
	}

	if len(violations) > 0 {
		return fmt.Errorf("workflow definition %q invalid (%d violations):\n- %s",
			d.Name, len(violations), strings.Join(violations, "\n- "))
	}
	return nil
}
