package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Schema is a structured response contract. Implementations are the
// fixed shapes the provider is asked to fill; SchemaHint is embedded in
// the prompt as a reminder of the exact expected JSON.
type Schema interface {
	SchemaHint() string
	Validate() error
}

// Evaluation labels the final judgment of a user answer.
type Evaluation string

const (
	EvalCorrect   Evaluation = "CORRECT"
	EvalPartial   Evaluation = "PARTIAL"
	EvalIncorrect Evaluation = "INCORRECT"
	EvalUnknown   Evaluation = "UNKNOWN"
)

func (e Evaluation) known() bool {
	switch e {
	case EvalCorrect, EvalPartial, EvalIncorrect, EvalUnknown:
		return true
	}
	return false
}

// PartChoice is the stage-one result: which book part to descend into.
// All three analysis fields and the selection are mandatory.
type PartChoice struct {
	InitialAnalysis   string `json:"initial_analysis"`
	ChapterComparison string `json:"chapter_comparison"`
	FinalAnswer       string `json:"final_answer"`
	SelectedPart      *int   `json:"selected_part"`
}

func (p *PartChoice) SchemaHint() string {
	return `{
    "initial_analysis": "...",
    "chapter_comparison": "...",
    "final_answer": "...",
    "selected_part": 2
}`
}

func (p *PartChoice) Validate() error {
	if strings.TrimSpace(p.InitialAnalysis) == "" {
		return fmt.Errorf("part choice: initial_analysis is required")
	}
	if strings.TrimSpace(p.ChapterComparison) == "" {
		return fmt.Errorf("part choice: chapter_comparison is required")
	}
	if strings.TrimSpace(p.FinalAnswer) == "" {
		return fmt.Errorf("part choice: final_answer is required")
	}
	if p.SelectedPart == nil {
		return fmt.Errorf("part choice: selected_part is required")
	}
	return nil
}

// ChapterChoice is the stage-two result. SelectedChapter may be null,
// meaning the model could not commit to a chapter.
type ChapterChoice struct {
	PreliminaryAnalysis string `json:"preliminary_analysis"`
	ChapterAnalysis     string `json:"chapter_analysis"`
	FinalReasoning      string `json:"final_reasoning"`
	SelectedChapter     *int   `json:"selected_chapter"`
}

func (c *ChapterChoice) SchemaHint() string {
	return `{
    "preliminary_analysis": "...",
    "chapter_analysis": "...",
    "final_reasoning": "...",
    "selected_chapter": 4
}`
}

func (c *ChapterChoice) Validate() error {
	if strings.TrimSpace(c.PreliminaryAnalysis) == "" {
		return fmt.Errorf("chapter choice: preliminary_analysis is required")
	}
	if strings.TrimSpace(c.ChapterAnalysis) == "" {
		return fmt.Errorf("chapter choice: chapter_analysis is required")
	}
	if strings.TrimSpace(c.FinalReasoning) == "" {
		return fmt.Errorf("chapter choice: final_reasoning is required")
	}
	return nil
}

// SubchapterChoice is the stage-three result. SelectedSubchapter is a
// dotted identifier such as "3.11.2" and may be null.
type SubchapterChoice struct {
	PreliminaryAnalysis string  `json:"preliminary_analysis"`
	SubchapterAnalysis  string  `json:"subchapter_analysis"`
	FinalReasoning      string  `json:"final_reasoning"`
	SelectedSubchapter  *string `json:"selected_subchapter"`
}

func (s *SubchapterChoice) SchemaHint() string {
	return `{
    "preliminary_analysis": "...",
    "subchapter_analysis": "...",
    "final_reasoning": "...",
    "selected_subchapter": "3.2"
}`
}

func (s *SubchapterChoice) Validate() error {
	if strings.TrimSpace(s.PreliminaryAnalysis) == "" {
		return fmt.Errorf("subchapter choice: preliminary_analysis is required")
	}
	if strings.TrimSpace(s.SubchapterAnalysis) == "" {
		return fmt.Errorf("subchapter choice: subchapter_analysis is required")
	}
	if strings.TrimSpace(s.FinalReasoning) == "" {
		return fmt.Errorf("subchapter choice: final_reasoning is required")
	}
	return nil
}

// FinalJudgment is the stage-four result: a verdict on the user's
// answer plus the supporting analysis.
type FinalJudgment struct {
	Evaluation Evaluation `json:"evaluation"`
	Analysis   string     `json:"analysis"`
}

func (f *FinalJudgment) SchemaHint() string {
	return `{
    "evaluation": "CORRECT | PARTIAL | INCORRECT | UNKNOWN",
    "analysis": "..."
}`
}

func (f *FinalJudgment) Validate() error {
	if !f.Evaluation.known() {
		return fmt.Errorf("final judgment: evaluation %q is not a known label", string(f.Evaluation))
	}
	if strings.TrimSpace(f.Analysis) == "" {
		return fmt.Errorf("final judgment: analysis is required")
	}
	return nil
}

// Render formats the judgment as the user-facing string: the label on
// its own line, then the analysis.
func (f *FinalJudgment) Render() string {
	return string(f.Evaluation) + "\n" + strings.TrimSpace(f.Analysis)
}

// ParseStructured decodes provider output into out, falling back to
// RepairJSON when the text is not well-formed JSON. Well-formed JSON
// that fails semantic validation is rejected without a repair attempt;
// the salvage exists for truncation, not for wrong content.
func ParseStructured(text string, out Schema) error {
	if err := json.Unmarshal([]byte(text), out); err == nil {
		if verr := out.Validate(); verr != nil {
			return &SchemaError{Original: text, Err: verr}
		}
		return nil
	}
	repaired := RepairJSON(text)
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return &SchemaError{Original: text, Repaired: repaired, Err: err}
	}
	if err := out.Validate(); err != nil {
		return &SchemaError{Original: text, Repaired: repaired, Err: err}
	}
	return nil
}
