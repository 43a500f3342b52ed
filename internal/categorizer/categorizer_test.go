package categorizer

import (
	"context"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/modforge/assembler/internal/domain"
	"github.com/modforge/assembler/internal/llmgateway"
)

type fakeModel struct{ text string }

func (m *fakeModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        m.text,
			GenerationInfo: map[string]any{"InputTokens": 40, "OutputTokens": 10},
		}},
	}, nil
}

func newTestCategorizer(responseJSON string) *Categorizer {
	gw := llmgateway.New(&fakeModel{text: responseJSON}, "test-model", llmgateway.PricePerMillion{Input: 1, Output: 2}, 1000, 1000)
	return New(gw)
}

func TestCategorize_AssignsKnownCategories(t *testing.T) {
	c := newTestCategorizer(`{"assignments": [
		{"source_id": "sodium", "category": "Performance"},
		{"source_id": "jei", "category": "Libraries"}
	]}`)

	mods := []domain.Mod{
		{SourceID: "sodium", Name: "Sodium", Capabilities: []string{"performance.rendering"}},
		{SourceID: "jei", Name: "JEI", Capabilities: []string{"dependency.library"}},
	}

	result, err := c.Categorize(context.Background(), mods)
	if err != nil {
		t.Fatalf("Categorize() error: %v", err)
	}
	if len(result.Assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(result.Assignments))
	}
	if result.Assignments[0].Category != CategoryPerformance {
		t.Errorf("sodium category = %q, want Performance", result.Assignments[0].Category)
	}
	if result.Assignments[1].Category != CategoryLibraries {
		t.Errorf("jei category = %q, want Libraries", result.Assignments[1].Category)
	}
}

func TestCategorize_UnknownOrMissingAssignmentFallsBackToOther(t *testing.T) {
	c := newTestCategorizer(`{"assignments": [
		{"source_id": "sodium", "category": "Not A Real Category"}
	]}`)

	mods := []domain.Mod{
		{SourceID: "sodium", Name: "Sodium"},
		{SourceID: "unmentioned", Name: "Unmentioned"},
	}

	result, err := c.Categorize(context.Background(), mods)
	if err != nil {
		t.Fatalf("Categorize() error: %v", err)
	}
	if len(result.Assignments) != 2 {
		t.Fatalf("expected every input mod to get an assignment, got %d", len(result.Assignments))
	}
	for _, a := range result.Assignments {
		if a.Category != CategoryOther {
			t.Errorf("expected %s to fall back to Other, got %q", a.SourceID, a.Category)
		}
	}
}

func TestCategorize_EmptyInputReturnsEmptyResult(t *testing.T) {
	c := newTestCategorizer(`{"assignments": []}`)
	result, err := c.Categorize(context.Background(), nil)
	if err != nil {
		t.Fatalf("Categorize() error: %v", err)
	}
	if len(result.Assignments) != 0 {
		t.Errorf("expected no assignments for empty input, got %d", len(result.Assignments))
	}
}

func TestCategorize_PreservesInputOrdering(t *testing.T) {
	c := newTestCategorizer(`{"assignments": [
		{"source_id": "b", "category": "World"},
		{"source_id": "a", "category": "Gameplay"}
	]}`)

	mods := []domain.Mod{
		{SourceID: "a", Name: "A"},
		{SourceID: "b", Name: "B"},
	}

	result, err := c.Categorize(context.Background(), mods)
	if err != nil {
		t.Fatalf("Categorize() error: %v", err)
	}
	if result.Assignments[0].SourceID != "a" || result.Assignments[1].SourceID != "b" {
		t.Errorf("expected output ordering to match input ordering, got %+v", result.Assignments)
	}
}
