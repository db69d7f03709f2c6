// Package matcher finds categories for a raw transaction from labeled history and from the
// keyword sections of the accounting rules document.
package matcher

import (
	"math"
	"strings"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
	"github.com/dvloznov/ledger-categorizer/internal/normalizer"
	"github.com/dvloznov/ledger-categorizer/internal/rules"
)

const (
	// SimilarityThreshold is the lowest boosted score a historical match may have.
	SimilarityThreshold = 0.7
	// VendorBoost is added when both vendor names are present and equal, ignoring case.
	VendorBoost = 0.2
	// MaxHistoryConfidence caps the confidence of any historical match.
	MaxHistoryConfidence = 0.98

	baseHistoryConfidence = 0.90
	// epsilon absorbs float noise when comparing a score with the threshold.
	epsilon = 1e-9
)

func tokens(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if len([]rune(w)) > 2 {
			set[w] = struct{}{}
		}
	}
	return set
}

// Similarity is the Jaccard index of the word sets of a and b. Words of two characters or fewer
// are ignored; the result is 0 when either set is empty.
func Similarity(a, b string) float64 {
	wa, wb := tokens(a), tokens(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

// Score is the description similarity plus the vendor boost. The boost is not capped.
func Score(raw domain.RawTransactionRecord, tx domain.MappedTrainingTransaction) float64 {
	score := Similarity(raw.Description, tx.Description)
	rv, tv := strings.TrimSpace(raw.VendorCustomerName), strings.TrimSpace(tx.VendorCustomerName)
	if rv != "" && tv != "" && strings.EqualFold(rv, tv) {
		score += VendorBoost
	}
	return score
}

// HistoryConfidence maps an accepted score to a confidence between 0.90 and 0.98.
func HistoryConfidence(score float64) float64 {
	c := baseHistoryConfidence + (score - SimilarityThreshold)
	return math.Min(math.Round(c*1e6)/1e6, MaxHistoryConfidence)
}

// FindMatch returns the category of the most similar corpus entry, or nil when no entry reaches
// SimilarityThreshold or its stored category no longer resolves to a broad category.
// The first entry wins a tie. source only tags the result.
func FindMatch(raw domain.RawTransactionRecord, corpus []domain.MappedTrainingTransaction, rs *rules.RuleSet, source domain.PredictionSource) *domain.CategorizationResult {
	if strings.TrimSpace(raw.Description) == "" || len(corpus) == 0 {
		return nil
	}

	best := -1
	bestScore := 0.0
	for i, tx := range corpus {
		if s := Score(raw, tx); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 || bestScore+epsilon < SimilarityThreshold {
		return nil
	}

	match := corpus[best]
	nc := normalizer.Normalize(match.Category, rs)
	if nc.BroadCategory == domain.CategoryUnknown {
		return nil
	}
	return &domain.CategorizationResult{
		SpecificCategory:   nc.SpecificName,
		BroadCategory:      nc.BroadCategory,
		Confidence:         HistoryConfidence(bestScore),
		TransactionType:    match.TransactionType,
		VendorCustomerName: match.VendorCustomerName,
		PredictionSource:   source,
	}
}
