// Copyright 2025 Ukweli Project
//
// Workflow Loader Tests

package workflow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const procurementYAML = `
workflow:
  name: procurement
  version: "1"
states: [open, awarded]
transitions:
  - from: open
    to: awarded
    action: award_contract
    required_roles: [procuring_officer, finance_approver]
`

func TestParse_Valid(t *testing.T) {
	def, err := Parse([]byte(procurementYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.Name != "procurement" || def.Version != "1" {
		t.Errorf("unexpected identity: %s@%s", def.Name, def.Version)
	}
	if def.InitialState != "open" {
		t.Errorf("initial state: got %q, want open (first listed)", def.InitialState)
	}
	if !def.IsTerminal("awarded") {
		t.Error("awarded should be terminal (no outgoing transitions)")
	}
	if def.IsTerminal("open") {
		t.Error("open should not be terminal")
	}
	trans, ok := def.Transition("award_contract")
	if !ok {
		t.Fatal("declared action not found")
	}
	if trans.From != "open" || trans.To != "awarded" {
		t.Errorf("unexpected transition: %+v", trans)
	}
}

func TestParse_UnknownTopLevelKey(t *testing.T) {
	doc := procurementYAML + "\nextras: true\n"
	if _, err := Parse([]byte(doc)); err == nil {
		t.Error("document with unknown top-level key accepted")
	}
}

func TestParse_UndeclaredState(t *testing.T) {
	doc := `
workflow:
  name: w
  version: "1"
states: [open]
transitions:
  - from: open
    to: closed
    action: close
    required_roles: [clerk]
`
	_, err := Parse([]byte(doc))
	if err == nil {
		t.Fatal("transition to undeclared state accepted")
	}
	if !strings.Contains(err.Error(), "undeclared state") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParse_DuplicateAction(t *testing.T) {
	doc := `
workflow:
  name: w
  version: "1"
states: [a, b, c]
transitions:
  - {from: a, to: b, action: go, required_roles: [clerk]}
  - {from: b, to: c, action: go, required_roles: [clerk]}
`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Error("duplicate action name accepted")
	}
}

func TestParse_EmptyRequiredRoles(t *testing.T) {
	doc := `
workflow:
  name: w
  version: "1"
states: [a, b]
transitions:
  - {from: a, to: b, action: go, required_roles: []}
`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Error("transition without required roles accepted")
	}
}

func TestParse_ExplicitInitialAndTerminal(t *testing.T) {
	doc := `
workflow:
  name: titles
  version: "2"
states: [draft, registered, disputed]
initial_state: draft
terminal_states: [registered]
transitions:
  - {from: draft, to: registered, action: register, required_roles: [land_officer]}
  - {from: draft, to: disputed, action: dispute, required_roles: [land_officer]}
`
	def, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !def.IsTerminal("registered") {
		t.Error("explicit terminal state missing")
	}
	// disputed has no outgoing transitions but was not listed as terminal:
	// the explicit list overrides the computed set
	if def.IsTerminal("disputed") {
		t.Error("explicit terminal list should override computed terminals")
	}
}

func TestParse_TerminalWithOutgoing(t *testing.T) {
	doc := `
workflow:
  name: w
  version: "1"
states: [a, b]
terminal_states: [a]
transitions:
  - {from: a, to: b, action: go, required_roles: [clerk]}
`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Error("terminal state with outgoing transitions accepted")
	}
}

func TestParse_EnvSubstitution(t *testing.T) {
	t.Setenv("WF_VERSION", "7")
	doc := `
workflow:
  name: w
  version: "${WF_VERSION}"
states: [a]
transitions: []
`
	def, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.Version != "7" {
		t.Errorf("env substitution failed: got %q, want 7", def.Version)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	wfDir := filepath.Join(dir, WorkflowsDirName)
	if err := os.MkdirAll(wfDir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(wfDir, "procurement.yaml"), []byte(procurementYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	// Non-YAML files are ignored
	os.WriteFile(filepath.Join(wfDir, "README"), []byte("notes"), 0o600)

	defs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "procurement" {
		t.Errorf("unexpected definitions: %+v", defs)
	}
}

func TestLoadDir_Missing(t *testing.T) {
	defs, err := LoadDir(t.TempDir())
	if err != nil {
		t.Fatalf("missing workflows dir errored: %v", err)
	}
	if len(defs) != 0 {
		t.Errorf("expected no definitions, got %d", len(defs))
	}
}
