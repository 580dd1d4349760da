package generate

import (
	"fmt"
	"strings"
)

// NoInformationAnswer is the fixed response when there is no retrieved
// context to ground an answer in.
const NoInformationAnswer = "I don't have information about that. Please upload a document and ask again."

// extractiveLimit bounds how much retrieved text the fallback echoes back.
const extractiveLimit = 1200

// Extractive is the terminal generation tier. It never fails and never
// returns an empty string: with context it surfaces the most relevant
// retrieved passages verbatim behind a disclaimer, and without context it
// returns the fixed no-information answer. It needs no network and no
// model weights, which is the point — the chat must answer even on a
// machine with nothing downloaded.
type Extractive struct{}

func NewExtractive() *Extractive { return &Extractive{} }

// Answer builds the deterministic fallback response.
func (e *Extractive) Answer(question, contextText string) string {
	if strings.TrimSpace(contextText) == "" {
		return NoInformationAnswer
	}

	excerpt := contextText
	truncated := ""
	if runes := []rune(excerpt); len(runes) > extractiveLimit {
		excerpt = string(runes[:extractiveLimit])
		truncated = "..."
	}
	return fmt.Sprintf(
		"Based on the documents, here is the most relevant content for %q:\n\n%s%s\n\n(This is extracted from the uploaded documents, not a generated answer.)",
		question, excerpt, truncated)
}
