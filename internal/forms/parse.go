package forms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bookmentor/pkg/domain"
)

const emailField = "user_email"

// ParseSubmission converts a posted form document into a FormSubmission.
//
// The document is a flat JSON object mapping question labels to the
// user's answers, plus bookkeeping fields: row_id, user_email, and any
// configured metadata columns (the sheet's timestamp column and the
// like). Pair order follows the order fields appear in the document —
// the skip-first rule downstream depends on it, so the object is read
// with a streaming decoder rather than into a map.
func ParseSubmission(raw []byte, ignoredFields []string) (domain.FormSubmission, error) {
	ignored := make(map[string]struct{}, len(ignoredFields))
	for _, field := range ignoredFields {
		ignored[field] = struct{}{}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return domain.FormSubmission{}, fmt.Errorf("parse submission: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return domain.FormSubmission{}, fmt.Errorf("parse submission: top-level object required")
	}

	submission := domain.FormSubmission{
		ReceivedAt: time.Now().UTC(),
		QAPairs:    []domain.QAPair{},
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return domain.FormSubmission{}, fmt.Errorf("parse submission: %w", err)
		}
		key := keyTok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return domain.FormSubmission{}, fmt.Errorf("parse submission field %q: %w", key, err)
		}
		text := scalarText(value)

		switch {
		case key == "row_id":
			submission.RowID = text
		case key == emailField:
			submission.UserEmail = text
		default:
			if _, skip := ignored[key]; skip {
				continue
			}
			submission.QAPairs = append(submission.QAPairs, domain.QAPair{
				Question:   key,
				UserAnswer: text,
			})
		}
	}
	return submission, nil
}

// scalarText renders a JSON value as the answer text. Form answers are
// strings in practice; anything else keeps its JSON rendering.
func scalarText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
