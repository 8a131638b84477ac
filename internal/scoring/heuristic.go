package scoring

import (
	"strings"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/ranking"
)

var (
	noveltyTerms  = wordSet("novel", "new", "first", "propose", "proposed", "introduce", "introduces", "unprecedented")
	evidenceTerms = wordSet("experiment", "experiments", "benchmark", "benchmarks", "evaluation", "evaluate",
		"results", "dataset", "datasets", "outperform", "outperforms", "ablation", "empirical")
	reuseTerms = wordSet("code", "open", "source", "release", "released", "github", "library", "toolkit",
		"available", "reproducible", "implementation")
)

// Heuristic derives a rubric from text alone. It is a pure function of the
// record's title, abstract and the configured interests.
func Heuristic(rec domain.CatalogRecord, interests []string) domain.Rubric {
	tokens := ranking.Tokenize(rec.Text())

	r := domain.Rubric{
		Novelty:     2 + min(3, countHits(tokens, noveltyTerms)),
		Evidence:    1 + min(4, countHits(tokens, evidenceTerms)),
		Clarity:     clarity(len(ranking.Tokenize(rec.Abstract))),
		Reusability: 2 + min(3, countHits(tokens, reuseTerms)),
		Fit:         fit(rec, interests),
	}
	return ClampRubric(r)
}

func clarity(abstractWords int) int {
	switch {
	case abstractWords < 20:
		return 2
	case abstractWords <= 250:
		return 4
	default:
		return 3
	}
}

func fit(rec domain.CatalogRecord, interests []string) int {
	if len(interests) == 0 {
		return 3
	}
	text := strings.ToLower(rec.Text() + " " + strings.Join(rec.Categories, " "))
	matched := 0
	for _, interest := range interests {
		if interest = strings.ToLower(strings.TrimSpace(interest)); interest != "" && strings.Contains(text, interest) {
			matched++
		}
	}
	return 1 + min(4, matched*2)
}

func countHits(tokens []string, terms map[string]struct{}) int {
	hits := 0
	for _, t := range tokens {
		if _, ok := terms[t]; ok {
			hits++
		}
	}
	return hits
}

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
