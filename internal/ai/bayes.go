package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/jbrukh/bayesian"

	"github.com/dvloznov/ledger-categorizer/internal/domain"
)

// BayesCategorizer is an offline fallback: a TF-IDF naive Bayes classifier trained on the
// labeled corpus. It needs at least two distinct categories to be ready.
type BayesCategorizer struct {
	classes []bayesian.Class
	cl      *bayesian.Classifier
	types   map[bayesian.Class]string
}

func classificationTerms(desc string) []string {
	desc = strings.ToLower(desc)
	for _, sep := range []string{"/", "-", "*", ",", ".", "#", ":"} {
		desc = strings.ReplaceAll(desc, sep, " ")
	}
	var terms []string
	for _, t := range strings.Fields(desc) {
		if len(t) > 1 {
			terms = append(terms, t)
		}
	}
	return terms
}

// NewBayesCategorizer trains on every labeled entry of corpus.
func NewBayesCategorizer(corpus []domain.MappedTrainingTransaction) *BayesCategorizer {
	b := &BayesCategorizer{types: make(map[bayesian.Class]string)}

	seen := make(map[string]bool)
	for _, tx := range corpus {
		label := strings.TrimSpace(tx.Category)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		b.classes = append(b.classes, bayesian.Class(label))
	}
	if len(b.classes) < 2 {
		return b
	}

	b.cl = bayesian.NewClassifierTfIdf(b.classes...)
	for _, tx := range corpus {
		label := strings.TrimSpace(tx.Category)
		terms := classificationTerms(tx.Description)
		if label == "" || len(terms) == 0 {
			continue
		}
		b.cl.Learn(terms, bayesian.Class(label))
		if tx.TransactionType != "" {
			b.types[bayesian.Class(label)] = tx.TransactionType
		}
	}
	b.cl.ConvertTermsFreqToTfIdf()
	return b
}

func (b *BayesCategorizer) Ready() bool {
	return b != nil && b.cl != nil
}

// Categorize returns the most probable class. The runner-up is offered as the suggestion.
func (b *BayesCategorizer) Categorize(ctx context.Context, description, industry string) (*Guess, error) {
	if !b.Ready() {
		return nil, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := classificationTerms(description)
	if len(terms) == 0 {
		return nil, fmt.Errorf("BayesCategorizer.Categorize: no usable terms: %w", ErrMalformedResponse)
	}

	scores, best, _ := b.cl.ProbScores(terms)
	second := -1
	for i := range scores {
		if i != best && (second < 0 || scores[i] > scores[second]) {
			second = i
		}
	}

	class := b.classes[best]
	g := &Guess{
		Category:        string(class),
		Confidence:      clamp01(scores[best]),
		TransactionType: b.types[class],
	}
	if second >= 0 {
		g.SuggestedCategory = string(b.classes[second])
	}
	return g, nil
}
