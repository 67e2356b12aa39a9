// Copyright 2025 Ukweli Project
//
// Workflow Definition Loader
// Parses declarative workflow documents from YAML with strict field checking
// and ${VAR} environment substitution.

package workflow

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// WorkflowsDirName is the name of the definitions directory inside a
// database directory.
const WorkflowsDirName = "workflows"

// document is the on-disk schema of a workflow definition file.
// Unknown keys are rejected by the strict decoder.
type document struct {
	Workflow struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"workflow"`
	States         []string     `yaml:"states"`
	Roles          []string     `yaml:"roles"`
	InitialState   string       `yaml:"initial_state"`
	TerminalStates []string     `yaml:"terminal_states"`
	Transitions    []Transition `yaml:"transitions"`
}

// Parse parses and validates a workflow definition document.
func Parse(data []byte) (*Definition, error) {
	expanded := substituteEnvVars(string(data))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse workflow document: %w", err)
	}

	def := &Definition{
		Name:         doc.Workflow.Name,
		Version:      doc.Workflow.Version,
		States:       doc.States,
		Roles:        doc.Roles,
		InitialState: doc.InitialState,
		Transitions:  doc.Transitions,
	}
	if len(doc.TerminalStates) > 0 {
		def.TerminalStates = make(map[string]bool, len(doc.TerminalStates))
		for _, s := range doc.TerminalStates {
			def.TerminalStates[s] = true
		}
	}

	if err := def.validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadFile parses a workflow definition from a file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("workflow file %s: %w", path, err)
	}
	return def, nil
}

// LoadDir loads every .yaml/.yml definition in the workflows directory of a
// database dir, sorted by file name. A missing directory yields no
// definitions.
func LoadDir(dir string) ([]*Definition, error) {
	wfDir := filepath.Join(dir, WorkflowsDirName)
	entries, err := os.ReadDir(wfDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read workflows directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	defs := make([]*Definition, 0, len(names))
	for _, name := range names {
		def, err := LoadFile(filepath.Join(wfDir, name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// envVarPattern matches ${VAR_NAME} placeholders.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnvVars replaces ${VAR} placeholders with environment values.
// Unset variables substitute to the empty string.
func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
