package openai

import "fmt"

const answerSystemPrompt = `You are a personal knowledge-base assistant. You answer questions using
only the user's saved notes provided below the question.

Rules:
- Base the answer strictly on the provided notes. Do not invent facts.
- If the notes do not contain the answer, say so plainly.
- Answer in the same language as the question.
- Be concise: a few sentences at most.
- When several notes are relevant, synthesize them into one answer.`

const answerPromptTemplate = `Question: %s

Saved notes:
%s`

const answerPromptNoContext = `Question: %s

Saved notes: (none found)`

// buildAnswerPrompt assembles the user message from the question and the
// retrieved note context.
func buildAnswerPrompt(question, noteContext string) string {
	if noteContext == "" {
		return fmt.Sprintf(answerPromptNoContext, question)
	}
	return fmt.Sprintf(answerPromptTemplate, question, noteContext)
}
