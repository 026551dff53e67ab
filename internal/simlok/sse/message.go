package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoSubmissionID: the payload decoded but carries no submission id.
var ErrNoSubmissionID = errors.New("push message has no submission id")

// Message is the decoded push payload. Only SubmissionID is relied on; receivers
// always refetch.
type Message struct {
	SubmissionID string
	Action       string
}

const maxNesting = 4

// DecodeMessage accepts the shapes the push channel has been seen to carry: a flat
// object, an object nested under "data" or "payload", and any of those encoded again
// as a JSON string. Both submissionId and submission_id keys are recognised.
func DecodeMessage(data string) (Message, error) {
	return decodeMessage(json.RawMessage(data), 0)
}

func decodeMessage(raw json.RawMessage, depth int) (Message, error) {
	if depth > maxNesting {
		return Message{}, errors.New("push message nested too deeply")
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return Message{}, errors.New("empty push message")
	}

	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
			return Message{}, fmt.Errorf("decode push message: %w", err)
		}
		return decodeMessage(json.RawMessage(inner), depth+1)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return Message{}, fmt.Errorf("decode push message: %w", err)
	}

	msg := Message{
		SubmissionID: stringField(obj, "submissionId", "submission_id"),
		Action:       stringField(obj, "action", "type"),
	}
	if msg.SubmissionID != "" {
		return msg, nil
	}
	for _, key := range []string{"data", "payload"} {
		if nested, ok := obj[key]; ok {
			inner, err := decodeMessage(nested, depth+1)
			if err == nil {
				if inner.Action == "" {
					inner.Action = msg.Action
				}
				return inner, nil
			}
		}
	}
	return Message{}, ErrNoSubmissionID
}

func stringField(obj map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n != "" {
			return n.String()
		}
	}
	return ""
}
