package forms

import (
	"testing"
)

func TestParseSubmissionPreservesFieldOrder(t *testing.T) {
	raw := []byte(`{"row_id": "r1", "Q1": "a1", "Q2": "a2", "Q3": "a3"}`)
	submission, err := ParseSubmission(raw, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if submission.RowID != "r1" {
		t.Fatalf("row_id = %q", submission.RowID)
	}
	if len(submission.QAPairs) != 3 {
		t.Fatalf("pairs = %+v, want 3", submission.QAPairs)
	}
	for i, want := range []string{"Q1", "Q2", "Q3"} {
		if submission.QAPairs[i].Question != want {
			t.Fatalf("pair %d question = %q, want %q", i, submission.QAPairs[i].Question, want)
		}
	}
	if submission.QAPairs[0].UserAnswer != "a1" {
		t.Fatalf("pair 0 answer = %q", submission.QAPairs[0].UserAnswer)
	}
	if submission.QAPairs[0].LLMResponse != "" {
		t.Fatal("fresh pairs must have empty llm_response")
	}
	if submission.Processed {
		t.Fatal("fresh submission must not be processed")
	}
}

func TestParseSubmissionSkipsMetadataFields(t *testing.T) {
	raw := []byte(`{"Timestamp": "2025-03-01", "row_id": "r2", "user_email": "u@example.com", "Q1": "a1"}`)
	submission, err := ParseSubmission(raw, []string{"Timestamp"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if submission.UserEmail != "u@example.com" {
		t.Fatalf("user_email = %q", submission.UserEmail)
	}
	if len(submission.QAPairs) != 1 || submission.QAPairs[0].Question != "Q1" {
		t.Fatalf("pairs = %+v", submission.QAPairs)
	}
}

func TestParseSubmissionRejectsNonObject(t *testing.T) {
	if _, err := ParseSubmission([]byte(`["not", "an", "object"]`), nil); err == nil {
		t.Fatal("expected error for non-object payload")
	}
	if _, err := ParseSubmission([]byte(`{broken`), nil); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestParseSubmissionRendersNonStringScalars(t *testing.T) {
	raw := []byte(`{"row_id": "r3", "Q1": 42}`)
	submission, err := ParseSubmission(raw, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if submission.QAPairs[0].UserAnswer != "42" {
		t.Fatalf("answer = %q", submission.QAPairs[0].UserAnswer)
	}
}
