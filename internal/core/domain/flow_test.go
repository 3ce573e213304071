package domain

import (
	"strings"
	"testing"
)

func TestFlowValidateAcceptsForwardBranches(t *testing.T) {
	flow := FlowDefinition{
		Name: "intake",
		Nodes: []QuestionNode{
			{ID: "parties", Text: "Who is the plaintiff?", NextOnAnswer: map[string]string{"insufficient": "end"}},
			{ID: "claim", Text: "What is alleged?", NextOnAnswer: map[string]string{"negative": "damages"}},
			{ID: "defense", Text: "What does the defendant say?"},
			{ID: "damages", Text: "What damages are sought?"},
		},
	}
	if err := flow.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if flow.RootID() != "parties" {
		t.Fatalf("expected root to default to first node, got %q", flow.RootID())
	}
}

func TestFlowValidateRejectsDanglingReference(t *testing.T) {
	flow := FlowDefinition{
		Nodes: []QuestionNode{
			{ID: "a", Text: "A?", NextOnAnswer: map[string]string{"answered": "missing"}},
		},
	}
	err := flow.Validate()
	if !IsKind(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected dangling target in error, got %v", err)
	}
}

func TestFlowValidateRejectsBackEdgeCycle(t *testing.T) {
	flow := FlowDefinition{
		Nodes: []QuestionNode{
			{ID: "a", Text: "A?"},
			{ID: "b", Text: "B?"},
			{ID: "c", Text: "C?", NextOnAnswer: map[string]string{"negative": "a"}},
		},
	}
	err := flow.Validate()
	if !IsKind(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestFlowValidateRejectsSelfLoopAndDuplicates(t *testing.T) {
	selfLoop := FlowDefinition{
		Nodes: []QuestionNode{{ID: "a", Text: "A?", NextOnAnswer: map[string]string{"answered": "a"}}},
	}
	if err := selfLoop.Validate(); !IsKind(err, ErrInvalidConfig) {
		t.Fatalf("expected self loop rejection, got %v", err)
	}

	dup := FlowDefinition{
		Nodes: []QuestionNode{{ID: "a", Text: "A?"}, {ID: "a", Text: "again?"}},
	}
	if err := dup.Validate(); !IsKind(err, ErrInvalidConfig) {
		t.Fatalf("expected duplicate id rejection, got %v", err)
	}
}

func TestFlowValidateRejectsUnknownRootAndEmptyFlow(t *testing.T) {
	if err := (FlowDefinition{}).Validate(); !IsKind(err, ErrInvalidConfig) {
		t.Fatalf("expected empty flow rejection, got %v", err)
	}
	flow := FlowDefinition{Root: "nope", Nodes: []QuestionNode{{ID: "a", Text: "A?"}}}
	if err := flow.Validate(); !IsKind(err, ErrInvalidConfig) {
		t.Fatalf("expected unknown root rejection, got %v", err)
	}
}

func TestFusionConfigValidateRejectsNegativeWeights(t *testing.T) {
	cfg := DefaultFusionConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}
	cfg.Weights.Semantic = -0.5
	if err := cfg.Validate(); !IsKind(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestChunkingParamsValidate(t *testing.T) {
	if err := DefaultChunkingParams().Validate(); err != nil {
		t.Fatalf("default params must be valid: %v", err)
	}
	if err := (ChunkingParams{TargetSize: 50, Overlap: 50}).Validate(); !IsKind(err, ErrInvalidConfig) {
		t.Fatalf("expected overlap >= target rejection, got %v", err)
	}
}
