package scoring

import (
	"fmt"
	"strings"

	"PaperTriage/internal/domain"
)

const rubricSpec = `Respond with a JSON object matching this exact structure:

{
  "novelty": <1-5>,
  "evidence": <1-5>,
  "clarity": <1-5>,
  "reusability": <1-5>,
  "fit": <1-5>
}

Field constraints:
- novelty: how new the idea is relative to prior work.
- evidence: strength of experiments, proofs or data behind the claims.
- clarity: how clearly the abstract states problem, method and result.
- reusability: how likely code, data or methods can be reused.
- fit: relevance to the reader interests listed below.

Behavioral constraints:
- Always respond with valid JSON, no markdown fencing
- Use integers only, 1 is worst and 5 is best
- Judge only from the title and abstract given`

// RubricPrompt embeds the record into the fixed rubric instructions.
func RubricPrompt(rec domain.CatalogRecord, interests []string) string {
	var b strings.Builder
	b.WriteString("Score the paper below on five axes.\n\n")
	b.WriteString(rubricSpec)
	b.WriteString("\n\n")
	if len(interests) > 0 {
		fmt.Fprintf(&b, "Reader interests: %s\n\n", strings.Join(interests, ", "))
	}
	fmt.Fprintf(&b, "Title: %s\n", rec.Title)
	fmt.Fprintf(&b, "Abstract: %s\n", rec.Abstract)
	return b.String()
}
