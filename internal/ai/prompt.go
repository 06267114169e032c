package ai

import (
	"fmt"
	"strings"

	"github.com/najirlabs/najir/internal/search"
)

const routerPrompt = `You are a helpful, concise assistant that coordinates responses from specialized agents for a Nepali Supreme Court case-law assistant.

Decide which specialized agent should handle the user's message:

- najir_expert_agent: questions about a SPECIFIC CASE NUMBER or a particular case.
  Examples: "What is case 7821 about?", "Tell me more about case number 1234"
- greeting_agent: greetings and introductions ("hello", "hi", "namaste")
- farewell_agent: the user is ending the conversation ("goodbye", "bye", "thanks, that's all")
- case_search_agent: the user wants to SEARCH for cases about a topic, party or keyword without giving a case number.
  Examples: "Find cases about property disputes", "Cases about sagar thapa"

Reply ONLY with the agent name in square brackets, for example [case_search_agent].
Use [root_agent] only if none of the specialized agents fit. Do not add any explanation.`

const rootPrompt = `You are Najir, an assistant for legal research on decisions of the Supreme Court of Nepal.
Answer the user's question directly and concisely. If you are unsure, say so; never invent case numbers or holdings.`

const greetingPrompt = `You are Najir, a friendly legal research assistant for Nepali Supreme Court cases.
Greet the user briefly and explain that you can search cases by topic or party and answer questions about a specific case number.`

const farewellPrompt = `You are Najir, a legal research assistant. The user is ending the conversation. Say a short, polite goodbye.`

const expertPrompt = `You are Najir, an expert on decisions of the Supreme Court of Nepal.
Answer questions about the specific case(s) the user refers to. Cite the case number for every statement.
Structure the answer with short headings: Facts, Issues, Holding, Reasoning. Never invent details you do not know.`

// BuildSelectedCasesPrompt returns the instruction used when the user asks
// about cases picked from search results.
func BuildSelectedCasesPrompt(details []search.CaseDetail) string {
	ids := make([]string, len(details))
	for i, d := range details {
		ids[i] = d.CaseID
	}
	return fmt.Sprintf(`%s

The user selected these case numbers from search results: %s.
Answer the user's question for each selected case in turn, under a heading with the case number.

%s`, expertPrompt, strings.Join(ids, ", "), FormatCaseDetails(details))
}

// BuildExpertPrompt adds looked-up records of the cases the user named.
func BuildExpertPrompt(details []search.CaseDetail) string {
	if len(details) == 0 {
		return expertPrompt
	}
	return fmt.Sprintf("%s\n\nUse these case records:\n\n%s", expertPrompt, FormatCaseDetails(details))
}

// FormatCaseDetails renders case records as markdown sections.
func FormatCaseDetails(details []search.CaseDetail) string {
	switch len(details) {
	case 0:
		return "No case information available."
	case 1:
		d := details[0]
		return fmt.Sprintf("# %s (Case ID: %s)\n\n%s", d.Title, d.CaseID, d.Details)
	}
	var sb strings.Builder
	sb.WriteString("# Case Details\n\n")
	for _, d := range details {
		fmt.Fprintf(&sb, "## %s (Case ID: %s)\n\n%s\n\n---\n\n", d.Title, d.CaseID, d.Details)
	}
	return sb.String()
}
