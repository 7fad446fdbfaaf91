package llm

import (
	"errors"
	"strings"
	"testing"
)

func TestRepairRecoversMissingClosingBrace(t *testing.T) {
	raw := `{"selected_part": 1, "initial_analysis": "x", "chapter_comparison": "y", "final_answer": "z"`

	var choice PartChoice
	if err := ParseStructured(raw, &choice); err != nil {
		t.Fatalf("parse with repair: %v", err)
	}
	if choice.SelectedPart == nil || *choice.SelectedPart != 1 {
		t.Fatalf("selected_part = %v, want 1", choice.SelectedPart)
	}
	if choice.InitialAnalysis != "x" {
		t.Fatalf("initial_analysis = %q", choice.InitialAnalysis)
	}
}

func TestRepairDropsGarbageLinesAfterClose(t *testing.T) {
	raw := "{\"evaluation\": \"CORRECT\",\n\"analysis\": \"fine\"}\ntrailing noise"

	var judgment FinalJudgment
	if err := ParseStructured(raw, &judgment); err != nil {
		t.Fatalf("parse with repair: %v", err)
	}
	if judgment.Evaluation != EvalCorrect {
		t.Fatalf("evaluation = %q", judgment.Evaluation)
	}
}

func TestRepairDropsTruncatedLines(t *testing.T) {
	raw := "{\"evaluation\": \"PARTIAL\",\n\"analysis\": \"some text\"},\ngarbled tail without colon"

	var judgment FinalJudgment
	if err := ParseStructured(raw, &judgment); err != nil {
		t.Fatalf("parse with repair: %v", err)
	}
	if judgment.Evaluation != EvalPartial {
		t.Fatalf("evaluation = %q", judgment.Evaluation)
	}
}

func TestUnsalvageableTextKeepsBothVersions(t *testing.T) {
	raw := "not json at all"

	var choice PartChoice
	err := ParseStructured(raw, &choice)
	if err == nil {
		t.Fatal("expected error for unsalvageable text")
	}
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("error = %T, want *SchemaError", err)
	}
	if schemaErr.Original != raw {
		t.Fatalf("original = %q", schemaErr.Original)
	}
	if schemaErr.Repaired == "" {
		t.Fatal("expected repaired text in error")
	}
}

func TestWellFormedButInvalidIsNotRepaired(t *testing.T) {
	// Valid JSON with a missing mandatory field must fail immediately.
	raw := `{"initial_analysis": "x", "chapter_comparison": "y", "final_answer": "z"}`

	var choice PartChoice
	err := ParseStructured(raw, &choice)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("error = %T, want *SchemaError", err)
	}
	if schemaErr.Repaired != "" {
		t.Fatalf("repair ran on well-formed JSON: %q", schemaErr.Repaired)
	}
	if !strings.Contains(schemaErr.Err.Error(), "selected_part") {
		t.Fatalf("error should name the missing field, got %v", schemaErr.Err)
	}
}

func TestEmptyRationaleIsSchemaViolation(t *testing.T) {
	raw := `{"preliminary_analysis": "", "chapter_analysis": "b", "final_reasoning": "c", "selected_chapter": 2}`

	var choice ChapterChoice
	if err := ParseStructured(raw, &choice); err == nil {
		t.Fatal("empty rationale field must fail validation")
	}
}

func TestNullSelectionIsAccepted(t *testing.T) {
	raw := `{"preliminary_analysis": "a", "chapter_analysis": "b", "final_reasoning": "c", "selected_chapter": null}`

	var choice ChapterChoice
	if err := ParseStructured(raw, &choice); err != nil {
		t.Fatalf("null selection should validate: %v", err)
	}
	if choice.SelectedChapter != nil {
		t.Fatalf("selected_chapter = %v, want nil", choice.SelectedChapter)
	}
}

func TestUnknownEvaluationRejected(t *testing.T) {
	raw := `{"evaluation": "MAYBE", "analysis": "text"}`

	var judgment FinalJudgment
	if err := ParseStructured(raw, &judgment); err == nil {
		t.Fatal("unknown evaluation label must fail validation")
	}
}

func TestUnknownExtraFieldsIgnored(t *testing.T) {
	raw := `{"evaluation": "INCORRECT", "analysis": "text", "confidence": 0.4}`

	var judgment FinalJudgment
	if err := ParseStructured(raw, &judgment); err != nil {
		t.Fatalf("extra fields should be ignored: %v", err)
	}
}
