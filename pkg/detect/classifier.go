// Package detect implements the rule-based scam classifier. Classification
// is a pure function of (text, language): no learned model, no shared state,
// identical input always yields identical output.
package detect

import (
	"math"
	"regexp"

	"golang.org/x/text/language"

	"github.com/TryMightyAI/decoy/pkg/patterns"
)

// Scoring constants. The additive weights were tuned against labeled scam
// transcripts; urgency is capped so repeated pressure words cannot dominate
// the score on their own.
const (
	// ScamThreshold is the confidence at or above which a turn is flagged.
	ScamThreshold = 0.5

	urgencyPerMatch     = 0.10
	urgencyCap          = 0.20
	impersonationWeight = 0.25
	financialWeight     = 0.30
	phishingWeight      = 0.20
	lureWeight          = 0.25
	bareURLWeight       = 0.15

	// multiSignalBonus applies once three or more categories matched.
	multiSignalBonus   = 0.10
	multiSignalMinHits = 3
)

// Human-readable reasons attached to positive category matches. These travel
// all the way to the evaluation callback, so keep them stable.
var categoryReasons = map[patterns.Category]string{
	patterns.CategoryUrgency:       "Urgency tactics detected",
	patterns.CategoryImpersonation: "Impersonation of trusted entity",
	patterns.CategoryFinancial:     "Requesting sensitive financial information",
	patterns.CategoryPhishing:      "Phishing attempt detected",
	patterns.CategoryLure:          "Prize/lottery scam indicators",
}

const urlReason = "Contains URL link"

// Result is the classifier's verdict for a single turn.
type Result struct {
	IsScam       bool     `json:"isScam"`
	Confidence   float64  `json:"confidence"`
	Reasons      []string `json:"reasons"`
	MatchedTerms []string `json:"matchedTerms"`
}

// Classify scores one message against the weighted rule categories for the
// conversation's declared language. English patterns always apply; the
// declared language contributes its own urgency set on top.
func Classify(text string, lang language.Tag) Result {
	reg := patterns.Get()

	score := 0.0
	var reasons []string
	var terms []string

	for _, cat := range patterns.ScamCategories {
		matched := reg.MatchCategory(text, lang, cat)
		if len(matched) == 0 {
			continue
		}

		hits := 0
		for _, p := range matched {
			found := p.Regex.FindAllString(text, -1)
			hits += len(found)
			terms = append(terms, found...)
		}

		if cat == patterns.CategoryUrgency {
			score += math.Min(urgencyCap, urgencyPerMatch*float64(hits))
		} else {
			score += categoryWeight(cat)
		}
		reasons = append(reasons, categoryReasons[cat])
	}

	if containsURL(text) {
		score += bareURLWeight
		reasons = append(reasons, urlReason)
	}

	if len(reasons) >= multiSignalMinHits {
		score += multiSignalBonus
	}

	confidence := math.Min(1.0, score)

	return Result{
		IsScam:       confidence >= ScamThreshold,
		Confidence:   confidence,
		Reasons:      reasons,
		MatchedTerms: dedupe(terms),
	}
}

func categoryWeight(cat patterns.Category) float64 {
	switch cat {
	case patterns.CategoryImpersonation:
		return impersonationWeight
	case patterns.CategoryFinancial:
		return financialWeight
	case patterns.CategoryPhishing:
		return phishingWeight
	case patterns.CategoryLure:
		return lureWeight
	default:
		return 0
	}
}

// Any bare URL in a first contact is suspicious on its own.
var reBareURL = regexp.MustCompile(`https?://`)

func containsURL(text string) bool {
	return reBareURL.MatchString(text)
}

// dedupe preserves first-seen order; matched terms are reported in the order
// they appeared in the message.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
