package prompts

import (
	"fmt"
	"strings"
)

// AdvisorSystemPrompt frames the business-ideas advisor.
const AdvisorSystemPrompt = `You are a pragmatic business advisor for website owners. You evaluate business ideas against the market the user operates in: demand signals, differentiation, execution difficulty, and realistic next steps. Be direct about weaknesses.`

// BuildAdvisorPrompt renders the advisor user prompt for a business idea.
// Deep mode asks for a fuller breakdown; quick mode asks for a verdict.
func BuildAdvisorPrompt(idea string, deep bool) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("Business idea:\n%s\n\n", strings.TrimSpace(idea)))

	if deep {
		prompt.WriteString("Provide a deep analysis with the following sections:\n")
		prompt.WriteString("1. Market demand and who pays\n")
		prompt.WriteString("2. Competition and differentiation\n")
		prompt.WriteString("3. Execution risks and required capabilities\n")
		prompt.WriteString("4. Monetization paths with rough pricing\n")
		prompt.WriteString("5. Concrete first three steps\n")
		return prompt.String()
	}

	prompt.WriteString("Give a quick verdict: is this worth pursuing? ")
	prompt.WriteString("Answer in at most three short paragraphs covering the biggest strength, the biggest risk, and the single next step.\n")
	return prompt.String()
}
