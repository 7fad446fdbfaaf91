package reason

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"bookmentor/pkg/llm"
)

// scriptedLLM returns canned structured responses in call order and
// records the context blocks it was given.
type scriptedLLM struct {
	structured []string
	freeText   string
	calls      int
	contexts   []string
	err        error
}

func (s *scriptedLLM) Complete(_ context.Context, _, userPrompt string) (string, error) {
	s.contexts = append(s.contexts, userPrompt)
	if s.err != nil {
		return "", s.err
	}
	return s.freeText, nil
}

func (s *scriptedLLM) CompleteStructured(_ context.Context, _, contextBlock, _ string, out llm.Schema) error {
	s.contexts = append(s.contexts, contextBlock)
	if s.err != nil {
		return s.err
	}
	if s.calls >= len(s.structured) {
		return fmt.Errorf("unexpected structured call %d", s.calls)
	}
	text := s.structured[s.calls]
	s.calls++
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return err
	}
	return out.Validate()
}

type fakeBooks struct {
	parts       string
	chapters    map[int]string
	subchapters map[string]string
	content     map[string]string
	fetched     []string
}

func (f *fakeBooks) Parts(context.Context) (string, error) {
	f.fetched = append(f.fetched, "parts")
	return f.parts, nil
}

func (f *fakeBooks) Chapters(_ context.Context, part int) (string, error) {
	f.fetched = append(f.fetched, fmt.Sprintf("chapters:%d", part))
	return f.chapters[part], nil
}

func (f *fakeBooks) Subchapters(_ context.Context, part, chapter int) (string, error) {
	key := fmt.Sprintf("%d.%d", part, chapter)
	f.fetched = append(f.fetched, "subchapters:"+key)
	return f.subchapters[key], nil
}

func (f *fakeBooks) SubchapterContent(_ context.Context, id string) (string, error) {
	f.fetched = append(f.fetched, "content:"+id)
	if text, ok := f.content[id]; ok {
		return text, nil
	}
	return "", errors.New("unknown subchapter " + id)
}

func TestAnswerRunsAllFourStages(t *testing.T) {
	client := &scriptedLLM{structured: []string{
		`{"initial_analysis": "a", "chapter_comparison": "b", "final_answer": "c", "selected_part": 2}`,
		`{"preliminary_analysis": "a", "chapter_analysis": "b", "final_reasoning": "c", "selected_chapter": 7}`,
		`{"preliminary_analysis": "a", "subchapter_analysis": "b", "final_reasoning": "c", "selected_subchapter": "2.7.1"}`,
		`{"evaluation": "CORRECT", "analysis": "matches the book"}`,
	}}
	books := &fakeBooks{
		parts:       "part listing",
		chapters:    map[int]string{2: "chapter listing"},
		subchapters: map[string]string{"2.7": "subchapter listing"},
		content:     map[string]string{"2.7.1": "page text"},
	}
	pipeline, err := New(Config{LLM: client, Books: books})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	answer, err := pipeline.Answer(context.Background(), "what does delegation mean?")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !strings.HasPrefix(answer.Answer, "CORRECT\n") {
		t.Fatalf("answer = %q, want evaluation label first", answer.Answer)
	}
	if !strings.Contains(answer.Answer, "matches the book") {
		t.Fatalf("answer = %q", answer.Answer)
	}

	wantFetches := []string{"parts", "chapters:2", "subchapters:2.7", "content:2.7.1"}
	if fmt.Sprint(books.fetched) != fmt.Sprint(wantFetches) {
		t.Fatalf("fetches = %v, want %v", books.fetched, wantFetches)
	}
	if !strings.Contains(client.contexts[3], `subchapter="2.7.1"`) {
		t.Fatalf("final context = %q, want tagged excerpt", client.contexts[3])
	}
}

func TestAnswerAdvancesPastNullChapter(t *testing.T) {
	client := &scriptedLLM{structured: []string{
		`{"initial_analysis": "a", "chapter_comparison": "b", "final_answer": "c", "selected_part": 1}`,
		`{"preliminary_analysis": "a", "chapter_analysis": "b", "final_reasoning": "c", "selected_chapter": null}`,
		`{"preliminary_analysis": "a", "subchapter_analysis": "b", "final_reasoning": "c", "selected_subchapter": null}`,
		`{"evaluation": "UNKNOWN", "analysis": "the excerpt does not cover this"}`,
	}}
	books := &fakeBooks{parts: "part listing", chapters: map[int]string{1: "chapters"}}
	pipeline, err := New(Config{LLM: client, Books: books})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	answer, err := pipeline.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("null chapter must not abort the run: %v", err)
	}
	if !strings.HasPrefix(answer.Answer, "UNKNOWN\n") {
		t.Fatalf("answer = %q", answer.Answer)
	}
	// No subchapter or content fetch may happen for null selections.
	for _, fetch := range books.fetched {
		if strings.HasPrefix(fetch, "subchapters:") || strings.HasPrefix(fetch, "content:") {
			t.Fatalf("unexpected upstream fetch %q after null selection", fetch)
		}
	}
	// Stage three still ran, against an empty listing.
	if got := client.contexts[2]; !strings.Contains(got, "[]") {
		t.Fatalf("stage-three context = %q, want empty listing", got)
	}
}

func TestAnswerAbortsOnStageFailure(t *testing.T) {
	client := &scriptedLLM{structured: []string{
		`{"initial_analysis": "a", "chapter_comparison": "b", "final_answer": "c"}`,
	}}
	books := &fakeBooks{parts: "part listing"}
	pipeline, err := New(Config{LLM: client, Books: books})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	if _, err := pipeline.Answer(context.Background(), "q"); err == nil {
		t.Fatal("missing mandatory selection must abort the pipeline")
	}
}

func TestEvaluateAnswerUsesFixedSubchapters(t *testing.T) {
	client := &scriptedLLM{freeText: "CORRECT\nwell grounded"}
	books := &fakeBooks{content: map[string]string{
		"1.2": "first excerpt",
		"3.4": "second excerpt",
	}}
	pipeline, err := New(Config{LLM: client, Books: books, FixedSubchapters: []string{"1.2", "3.4"}})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	text, err := pipeline.EvaluateAnswer(context.Background(), "what is feedback?", "it is talking")
	if err != nil {
		t.Fatalf("evaluate answer: %v", err)
	}
	if text != "CORRECT\nwell grounded" {
		t.Fatalf("text = %q", text)
	}
	prompt := client.contexts[len(client.contexts)-1]
	for _, want := range []string{"first excerpt", "second excerpt", "what is feedback?", "it is talking"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestEvaluateAnswerFailsWhenUnconfigured(t *testing.T) {
	pipeline, err := New(Config{LLM: &scriptedLLM{}, Books: &fakeBooks{}})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	if _, err := pipeline.EvaluateAnswer(context.Background(), "q", "a"); err == nil {
		t.Fatal("expected error without fixed subchapters")
	}
}
