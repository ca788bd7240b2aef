package rag

import (
	"fmt"
	"strings"
)

// promptInstruction is the fixed preamble placed before the retrieved
// context. It is deliberately a compile-time constant: the prompt builder
// must be deterministic so identical (question, hits) inputs always produce
// byte-identical prompts.
const promptInstruction = "Answer the question as truthfully as possible using the numbered documents " +
	"in the context below. If the answer is not contained in the context, say " +
	"\"I don't know\".\n\nContext:\n"

// BuildPrompt renders the ordered hits and the original question into a
// single prompt string: the fixed instruction, each hit's text under a
// "Document N" label in ranked order, then the literal question.
//
// No truncation, deduplication, or token-budget enforcement happens here.
// If the combined context exceeds the generation provider's input limit,
// the provider's own behaviour applies. With zero hits the context section
// is empty and the question is still present.
func BuildPrompt(question string, hits []Hit) string {
	var b strings.Builder
	b.WriteString(promptInstruction)

	for i, hit := range hits {
		fmt.Fprintf(&b, "Document %d:\n%s\n\n", i+1, hit.Text)
	}

	b.WriteString("Question: ")
	b.WriteString(question)

	return b.String()
}
