package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const designBuildDoc = `
name: design-build
description: Two phase workflow
initial_state: design
metadata:
  domain: code
states:
  design:
    description: Design the thing
    default_instructions: Write the design in $DESIGN_DOC.
    transitions:
      - trigger: keep_designing
        to: design
        transition_reason: still designing
        instructions: Keep designing.
      - trigger: design_done
        to: build
        transition_reason: design is done
        review_perspectives:
          - perspective: architect
            prompt: Is it sound?
  build:
    description: Build the thing
    default_instructions: Build it.
`

func requireLoadError(t *testing.T, err error, kind LoadErrorKind, field string) {
	t.Helper()
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr), "expected LoadError, got %v", err)
	require.Equal(t, kind, loadErr.Kind)
	require.Equal(t, field, loadErr.Field)
}

func TestLoad_Valid(t *testing.T) {
	wf, err := Load([]byte(designBuildDoc), "design-build.yaml")
	require.NoError(t, err)
	require.Equal(t, "design-build", wf.Name)
	require.Equal(t, "design", wf.InitialState)
	require.Equal(t, "Two phase workflow", wf.Description)
	require.Equal(t, "code", wf.Metadata.Domain)
	require.Equal(t, SourceBundled, wf.Source)
}

func TestLoad_PreservesDeclaredOrder(t *testing.T) {
	doc := `
name: ordered
initial_state: zeta
states:
  zeta:
    default_instructions: z
  alpha:
    default_instructions: a
  mu:
    default_instructions: m
`
	wf, err := Load([]byte(doc), "ordered")
	require.NoError(t, err)
	require.Equal(t, []string{"zeta", "alpha", "mu"}, wf.Phases())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		kind  LoadErrorKind
		field string
	}{
		{
			name: "empty document",
			doc:  "",
			kind: KindMalformed,
		},
		{
			name: "not yaml mapping",
			doc:  "just a string",
			kind: KindMalformed,
		},
		{
			name: "broken yaml",
			doc:  "name: [unclosed",
			kind: KindMalformed,
		},
		{
			name:  "missing name",
			doc:   "initial_state: a\nstates:\n  a:\n    default_instructions: x\n",
			kind:  KindMissingField,
			field: "name",
		},
		{
			name:  "missing initial_state",
			doc:   "name: w\nstates:\n  a:\n    default_instructions: x\n",
			kind:  KindMissingField,
			field: "initial_state",
		},
		{
			name:  "missing states",
			doc:   "name: w\ninitial_state: a\n",
			kind:  KindMissingField,
			field: "states",
		},
		{
			name:  "empty states",
			doc:   "name: w\ninitial_state: a\nstates: {}\n",
			kind:  KindMissingField,
			field: "states",
		},
		{
			name:  "states not a mapping",
			doc:   "name: w\ninitial_state: a\nstates: [a, b]\n",
			kind:  KindMalformed,
			field: "states",
		},
		{
			name:  "undeclared initial state",
			doc:   "name: w\ninitial_state: ghost\nstates:\n  a:\n    default_instructions: x\n",
			kind:  KindDanglingTarget,
			field: "initial_state",
		},
		{
			name: "dangling transition target",
			doc: `
name: w
initial_state: a
states:
  a:
    default_instructions: x
    transitions:
      - to: b
        transition_reason: go
      - to: ghost
        transition_reason: go
  b:
    default_instructions: y
`,
			kind:  KindDanglingTarget,
			field: "states.a.transitions[1].to",
		},
		{
			name: "missing transition reason",
			doc: `
name: w
initial_state: a
states:
  a:
    default_instructions: x
    transitions:
      - to: a
`,
			kind:  KindInvalidTransition,
			field: "states.a.transitions[0].transition_reason",
		},
		{
			name: "no instructions and no target default",
			doc: `
name: w
initial_state: a
states:
  a:
    default_instructions: x
    transitions:
      - to: b
        transition_reason: go
  b:
    description: nothing to fall back on
`,
			kind:  KindInvalidTransition,
			field: "states.a.transitions[0].instructions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf, err := Load([]byte(tt.doc), "test.yaml")
			require.Nil(t, wf)
			requireLoadError(t, err, tt.kind, tt.field)
			require.Contains(t, err.Error(), "test.yaml")
		})
	}
}

func TestLoad_DanglingTargetCheckedBeforeReasons(t *testing.T) {
	doc := `
name: w
initial_state: a
states:
  a:
    default_instructions: x
    transitions:
      - to: a
      - to: ghost
        transition_reason: go
`
	_, err := Load([]byte(doc), "order")
	requireLoadError(t, err, KindDanglingTarget, "states.a.transitions[1].to")
}

func TestLoad_TransitionInstructionsSatisfyMissingDefault(t *testing.T) {
	doc := `
name: w
initial_state: a
states:
  a:
    default_instructions: x
    transitions:
      - to: b
        transition_reason: go
        instructions: do b
  b:
    description: no default
`
	wf, err := Load([]byte(doc), "ok")
	require.NoError(t, err)
	require.Empty(t, wf.State("b").DefaultInstructions)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "design-build.yaml")
	require.NoError(t, os.WriteFile(path, []byte(designBuildDoc), 0o644))

	wf, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "design-build", wf.Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "reading workflow file")
}

func TestLoad_BundledWorkflowsAreValid(t *testing.T) {
	entries, err := os.ReadDir("workflows")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		t.Run(entry.Name(), func(t *testing.T) {
			wf, err := LoadFile(filepath.Join("workflows", entry.Name()))
			require.NoError(t, err)
			require.Equal(t, strings.TrimSuffix(entry.Name(), ".yaml"), wf.Name)
			require.NotEmpty(t, wf.Metadata.Domain)
			require.Equal(t, wf.InitialState, wf.Phases()[0])
		})
	}
}

// genDocument renders a random workflow whose states are s0..sN-1. When
// dangle is set, one transition targets an undeclared state.
func genDocument(t *rapid.T, initialDeclared, dangle bool) string {
	n := rapid.IntRange(1, 6).Draw(t, "states")
	var b strings.Builder
	b.WriteString("name: generated\n")
	if initialDeclared {
		fmt.Fprintf(&b, "initial_state: s%d\n", rapid.IntRange(0, n-1).Draw(t, "initial"))
	} else {
		b.WriteString("initial_state: undeclared\n")
	}
	b.WriteString("states:\n")

	dangleAt := rapid.IntRange(0, n-1).Draw(t, "dangleAt")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "  s%d:\n    default_instructions: work on s%d\n    transitions:\n", i, i)
		edges := rapid.IntRange(0, 3).Draw(t, fmt.Sprintf("edges%d", i))
		for e := 0; e < edges; e++ {
			to := rapid.IntRange(0, n-1).Draw(t, fmt.Sprintf("to%d_%d", i, e))
			fmt.Fprintf(&b, "      - to: s%d\n        transition_reason: r\n", to)
		}
		if dangle && i == dangleAt {
			b.WriteString("      - to: nowhere\n        transition_reason: r\n")
		}
	}
	return b.String()
}

func TestLoad_Property_ValidDocumentsLoad(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		wf, err := Load([]byte(genDocument(t, true, false)), "gen")
		if err != nil {
			t.Fatalf("valid document rejected: %v", err)
		}
		if !wf.HasPhase(wf.InitialState) {
			t.Fatalf("initial state %q not declared", wf.InitialState)
		}
	})
}

func TestLoad_Property_UndeclaredInitialStateFails(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		_, err := Load([]byte(genDocument(t, false, rapid.Bool().Draw(t, "dangle"))), "gen")
		var loadErr *LoadError
		if !errors.As(err, &loadErr) || loadErr.Field != "initial_state" {
			t.Fatalf("expected initial_state LoadError, got %v", err)
		}
	})
}

func TestLoad_Property_DanglingTargetFails(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		_, err := Load([]byte(genDocument(t, true, true)), "gen")
		var loadErr *LoadError
		if !errors.As(err, &loadErr) || loadErr.Kind != KindDanglingTarget {
			t.Fatalf("expected dangling target LoadError, got %v", err)
		}
	})
}
