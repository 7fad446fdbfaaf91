package domain

import "time"

// QAPair is one question/answer slot of a submitted form.
// LLMResponse stays empty until the pair has been evaluated.
type QAPair struct {
	Question    string `json:"question"`
	UserAnswer  string `json:"user_answer"`
	LLMResponse string `json:"llm_response"`
}

// Answered reports whether the pair already carries an evaluation.
func (p QAPair) Answered() bool {
	return p.LLMResponse != ""
}

// FormSubmission is one externally submitted form keyed by RowID.
// Field names follow the persisted document format.
type FormSubmission struct {
	RowID      string     `json:"row_id"`
	ReceivedAt time.Time  `json:"received_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
	UserEmail  string     `json:"user_email,omitempty"`
	Processed  bool       `json:"processed"`
	QAPairs    []QAPair   `json:"qa_pairs"`
}

// Answer is the result of a full reasoning run.
type Answer struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"createdAt"`
}
