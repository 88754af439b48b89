// Package llm holds the optional language-model backends. A Completer
// sends one prompt to a model; the NLU adapters in this package turn a
// Completer into the dialog engine's external classifier, ranker and
// responder.
package llm

import (
	"context"
	"errors"
	"strings"
)

// Request is one completion call.
type Request struct {
	System    string
	Prompt    string
	JSON      bool // ask for a single JSON object as the reply
	MaxTokens int
}

// Completer is a text-completion backend.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ErrEmptyCompletion is returned when a backend answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// extractJSON finds the first balanced JSON object in a model reply,
// skipping any preamble or markdown fence around it.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(response); i++ {
		c := response[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}
